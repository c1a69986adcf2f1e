// Package proposal turns TEM boundary curves into ranked temporal proposals.
package proposal

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/okian/bsn/internal/domain/geometry"
	"github.com/okian/bsn/internal/domain/model"
)

// Default generator configuration constants.
const (
	defaultTScale    = 100
	defaultThreshold = 0.5
	defaultTopKTrain = 500
	defaultTopK      = 1000
	defaultSeed      = 42
)

// Params configures a Generator.
type Params struct {
	TScale        int
	PeakThreshold float64
	TopKTrain     int
	TopK          int
}

// Result is the outcome of generating proposals for one video.
type Result struct {
	// Proposals holds exactly top-K entries sorted by descending score.
	Proposals []model.Proposal
	// Candidates is the number of gated anchors before padding.
	Candidates int
	// Padded is the number of random candidates added.
	Padded int
	// MatchErr explains why ground-truth matches are absent, if they are.
	MatchErr error
}

// Option applies a configuration option to the Generator.
type Option func(*Generator)

// WithParams overrides the generator parameters. Non-positive sizes keep
// their defaults; the threshold is taken as given when it lies in [0,1].
func WithParams(p Params) Option {
	return func(g *Generator) {
		if p.TScale > 0 {
			g.params.TScale = p.TScale
		}
		if p.PeakThreshold >= 0 && p.PeakThreshold <= 1 {
			g.params.PeakThreshold = p.PeakThreshold
		}
		if p.TopKTrain > 0 {
			g.params.TopKTrain = p.TopKTrain
		}
		if p.TopK > 0 {
			g.params.TopK = p.TopK
		}
	}
}

// WithSeed sets the base seed for padding.
func WithSeed(seed int64) Option {
	return func(g *Generator) {
		g.seed = seed
	}
}

// Generator builds proposals from gated boundary curves. It holds no mutable
// state, so one value may be shared by concurrent shards.
type Generator struct {
	params     Params
	seed       int64
	anchorMins []float64
	anchorMaxs []float64
}

// NewGenerator creates a Generator with defaults overridden by opts.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		params: Params{
			TScale:        defaultTScale,
			PeakThreshold: defaultThreshold,
			TopKTrain:     defaultTopKTrain,
			TopK:          defaultTopK,
		},
		seed: defaultSeed,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.anchorMins, g.anchorMaxs = geometry.Anchors(g.params.TScale)
	return g
}

// Params returns the effective parameters.
func (g *Generator) Params() Params { return g.params }

// TopKFor returns the proposal budget for a subset.
func (g *Generator) TopKFor(subset string) int {
	if subset == model.SubsetTraining {
		return g.params.TopKTrain
	}
	return g.params.TopK
}

// Generate runs gating, anchor enumeration, padding, ranking and ground-truth
// matching for one video.
func (g *Generator) Generate(curve model.BoundaryCurve, record model.VideoRecord) (Result, error) {
	tscale := g.params.TScale
	if curve.Len() != tscale || len(curve.End) != tscale {
		return Result{}, fmt.Errorf("%w: got %d start and %d end bins, want %d",
			ErrCurveLength, len(curve.Start), len(curve.End), tscale)
	}

	startMask := geometry.BoundaryChoose(curve.Start, g.params.PeakThreshold)
	startMask[0] = 1
	endMask := geometry.BoundaryChoose(curve.End, g.params.PeakThreshold)
	endMask[tscale-1] = 1

	candidates := g.candidates(curve, startMask, endMask)
	numData := len(candidates)

	topK := g.TopKFor(record.Subset)
	padded := 0
	if numData < topK {
		rng := rand.New(rand.NewSource(g.videoSeed(record.Name))) //nolint:gosec // padding does not need a CSPRNG
		for i := 0; i < topK-numData; i++ {
			s := rng.Intn(tscale)
			e := s + rng.Intn(tscale-s)
			candidates = append(candidates, g.anchor(curve, s, e))
		}
		padded = topK - numData
	}

	for i := range candidates {
		candidates[i].Score = candidates[i].XMinScore * candidates[i].XMaxScore
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	candidates = candidates[:topK]

	res := Result{Proposals: candidates, Candidates: numData, Padded: padded}

	matches, err := Match(candidates, record)
	if err != nil {
		res.MatchErr = err
		return res, nil
	}
	for i := range res.Proposals {
		m := matches[i]
		res.Proposals[i].Match = &m
	}
	return res, nil
}

// candidates enumerates every (start, end) pair allowed by the masks, with the
// duration offset in the outer loop.
func (g *Generator) candidates(curve model.BoundaryCurve, startMask, endMask []float64) []model.Proposal {
	tscale := g.params.TScale
	out := make([]model.Proposal, 0, tscale)
	for d := 0; d < tscale; d++ {
		for s := 0; s+d < tscale; s++ {
			e := s + d
			if startMask[s] == 1 && endMask[e] == 1 {
				out = append(out, g.anchor(curve, s, e))
			}
		}
	}
	return out
}

func (g *Generator) anchor(curve model.BoundaryCurve, s, e int) model.Proposal {
	return model.Proposal{
		XMin:      g.anchorMins[s],
		XMax:      g.anchorMaxs[e],
		XMinScore: curve.Start[s],
		XMaxScore: curve.End[e],
	}
}

// videoSeed derives a per-video seed so padding does not depend on sharding.
func (g *Generator) videoSeed(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return g.seed ^ int64(h.Sum64()) //nolint:gosec // wrap-around is fine for a seed
}

// Match computes, for each proposal, the best IoU and IoA against the video's
// ground-truth segments normalized by its duration.
func Match(props []model.Proposal, record model.VideoRecord) ([]model.GTMatch, error) {
	if len(record.Annotations) == 0 {
		return nil, ErrNoAnnotations
	}
	if !(record.DurationSecond > 0) {
		return nil, fmt.Errorf("%w: duration %g", ErrMalformedAnnotation, record.DurationSecond)
	}

	gtMins := make([]float64, len(record.Annotations))
	gtMaxs := make([]float64, len(record.Annotations))
	for i, a := range record.Annotations {
		if a.Segment[1] < a.Segment[0] {
			return nil, fmt.Errorf("%w: segment %d ends before it starts", ErrMalformedAnnotation, i)
		}
		gtMins[i] = a.Segment[0] / record.DurationSecond
		gtMaxs[i] = a.Segment[1] / record.DurationSecond
	}

	if len(props) == 0 {
		return []model.GTMatch{}, nil
	}

	mins := make([]float64, len(props))
	maxs := make([]float64, len(props))
	for i, p := range props {
		mins[i], maxs[i] = p.XMin, p.XMax
	}

	// One row per ground-truth segment; the best overlap is each column's max.
	ious := mat.NewDense(len(gtMins), len(props), nil)
	ioas := mat.NewDense(len(gtMins), len(props), nil)
	for j := range gtMins {
		ious.SetRow(j, geometry.IoUWithAnchors(mins, maxs, gtMins[j], gtMaxs[j]))
		ioas.SetRow(j, geometry.IoAWithAnchors(mins, maxs, gtMins[j], gtMaxs[j]))
	}

	out := make([]model.GTMatch, len(props))
	col := make([]float64, len(gtMins))
	for i := range out {
		out[i].IoU = floats.Max(mat.Col(col, i, ious))
		out[i].IoA = floats.Max(mat.Col(col, i, ioas))
	}
	return out, nil
}
