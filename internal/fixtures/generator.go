package fixtures

import (
	"math"
	"math/rand"
	"strings"

	"github.com/google/uuid"

	"github.com/okian/bsn/internal/domain/geometry"
	"github.com/okian/bsn/internal/domain/model"
)

// Dataset is a synthetic set of annotations, TEM curves and PEM tables.
type Dataset struct {
	Records   map[string]model.VideoRecord
	Curves    map[string]model.BoundaryCurve
	Evaluated map[string][]model.Proposal
}

// Generate builds a dataset. The same Config always yields the same dataset.
func Generate(cfg Config) Dataset {
	cfg = withDefaults(cfg)
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // reproducible fixtures

	ds := Dataset{
		Records:   make(map[string]model.VideoRecord, cfg.Videos),
		Curves:    make(map[string]model.BoundaryCurve, cfg.Videos),
		Evaluated: make(map[string][]model.Proposal, cfg.Videos),
	}
	for i := 0; i < cfg.Videos; i++ {
		name := videoID(rng)
		duration := cfg.MinDuration + rng.Float64()*(cfg.MaxDuration-cfg.MinDuration)
		segments := generateSegments(rng, cfg.MaxSegments)

		annotations := make([]model.Annotation, len(segments))
		for j, s := range segments {
			annotations[j] = model.Annotation{
				Segment: [2]float64{s[0] * duration, s[1] * duration},
				Label:   "synthetic",
			}
		}
		ds.Records[name] = model.VideoRecord{
			Name:           name,
			Subset:         subsetFor(i),
			DurationSecond: duration,
			Annotations:    annotations,
		}
		ds.Curves[name] = generateCurve(rng, cfg.TScale, segments)
		if cfg.Evaluated > 0 {
			ds.Evaluated[name] = generateEvaluated(rng, cfg.Evaluated, segments)
		}
	}
	return ds
}

func withDefaults(cfg Config) Config {
	if cfg.Videos < 1 {
		cfg.Videos = DefaultVideos
	}
	if cfg.TScale < 1 {
		cfg.TScale = DefaultTScale
	}
	if cfg.MinDuration <= 0 {
		cfg.MinDuration = DefaultMinDuration
	}
	if cfg.MaxDuration < cfg.MinDuration {
		cfg.MaxDuration = max(DefaultMaxDuration, cfg.MinDuration)
	}
	if cfg.MaxSegments < 1 {
		cfg.MaxSegments = DefaultMaxSegments
	}
	return cfg
}

// videoID returns "v_" followed by an 11-character id drawn from rng.
func videoID(rng *rand.Rand) string {
	u, err := uuid.NewRandomFromReader(rng)
	if err != nil {
		// math/rand readers never fail
		panic(err)
	}
	return "v_" + strings.ReplaceAll(u.String(), "-", "")[:idLength]
}

// subsetFor spreads videos 2:1:1 over training, validation and test.
func subsetFor(i int) string {
	switch i % 4 {
	case 2:
		return model.SubsetValidation
	case 3:
		return model.SubsetTest
	default:
		return model.SubsetTraining
	}
}

// generateSegments returns normalized [start, end] pairs.
func generateSegments(rng *rand.Rand, maxSegments int) [][2]float64 {
	n := 1 + rng.Intn(maxSegments)
	out := make([][2]float64, n)
	for i := range out {
		start := rng.Float64() * maxSegmentStart
		width := minSegmentWidth + rng.Float64()*(maxSegmentWidth-minSegmentWidth)
		out[i] = [2]float64{start, math.Min(1, start+width)}
	}
	return out
}

// generateCurve places Gaussian bumps at segment boundaries and a plateau
// inside segments, plus uniform noise.
func generateCurve(rng *rand.Rand, tscale int, segments [][2]float64) model.BoundaryCurve {
	sigma := 1.0 / float64(tscale)
	c := model.BoundaryCurve{
		Start:  make([]float64, tscale),
		End:    make([]float64, tscale),
		Action: make([]float64, tscale),
	}
	for i := 0; i < tscale; i++ {
		x := (float64(i) + 0.5) / float64(tscale)
		start, end, action := 0.0, 0.0, actionOutside
		for _, s := range segments {
			start = math.Max(start, boundaryPeak*bump(x-s[0], sigma))
			end = math.Max(end, boundaryPeak*bump(x-s[1], sigma))
			if x >= s[0] && x <= s[1] {
				action = actionInside
			}
		}
		c.Start[i] = clamp01(start + rng.Float64()*noiseAmplitude)
		c.End[i] = clamp01(end + rng.Float64()*noiseAmplitude)
		c.Action[i] = clamp01(action + (rng.Float64()-0.5)*noiseAmplitude)
	}
	return c
}

// generateEvaluated jitters ground-truth segments into proposals whose
// iou_score is their true overlap with the segment they came from.
func generateEvaluated(rng *rand.Rand, n int, segments [][2]float64) []model.Proposal {
	out := make([]model.Proposal, n)
	for i := range out {
		s := segments[rng.Intn(len(segments))]
		xmin := clamp01(s[0] + (rng.Float64()*2-1)*boundaryJitter)
		xmax := clamp01(s[1] + (rng.Float64()*2-1)*boundaryJitter)
		if xmax <= xmin {
			xmin, xmax = s[0], s[1]
		}
		out[i] = model.Proposal{
			XMin:      xmin,
			XMax:      xmax,
			XMinScore: minBoundScore + rng.Float64()*(1-minBoundScore),
			XMaxScore: minBoundScore + rng.Float64()*(1-minBoundScore),
			IoUScore:  geometry.IoU(xmin, xmax, s[0], s[1]),
		}
	}
	return out
}

func bump(d, sigma float64) float64 {
	return math.Exp(-(d * d) / (2 * sigma * sigma))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
