// Package service runs the proposal generation pipeline: proposal
// generation, BSP feature sampling and post-processing, each sharded over
// the video list.
package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/bsn/internal/adapters/repository"
	"github.com/okian/bsn/internal/adapters/worker"
	"github.com/okian/bsn/internal/config"
	"github.com/okian/bsn/internal/domain/feature"
	"github.com/okian/bsn/internal/domain/model"
	"github.com/okian/bsn/internal/domain/postprocess"
	"github.com/okian/bsn/internal/domain/proposal"
	"github.com/okian/bsn/internal/domain/softnms"
	"github.com/okian/bsn/pkg/logger"
	"github.com/okian/bsn/pkg/metrics"
)

// Stage names accepted by Run.
const (
	StageProposals   = metrics.StageProposals
	StageFeatures    = metrics.StageFeatures
	StagePostProcess = metrics.StagePostProcess
)

// reasonKeyCollision labels videos dropped because another video already
// owns their result key.
const reasonKeyCollision = "key_collision"

// StageReport summarizes one stage run.
type StageReport struct {
	RunID    string
	Stage    string
	Videos   int
	Failed   int
	Duration time.Duration
	// Output is the result document written by post-processing.
	Output string
}

// Service wires the domain components to a store and a shard pool.
type Service struct {
	cfg    *config.Config
	store  repository.Store
	logger logger.Logger
	seed   *int64
	runID  string

	generator *proposal.Generator
	sampler   *feature.Sampler
	post      postprocess.Params

	mu      sync.RWMutex
	history []StageReport
}

// New constructs a Service. The configuration is validated and the domain
// components are built once, so a Service is safe to share across stages.
func New(opts ...Option) (*Service, error) {
	s := &Service{runID: uuid.NewString()}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg == nil {
		s.cfg = config.New(context.Background())
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger = s.logger.Named("pgm").With(logger.String("run_id", s.runID))

	cfg := s.cfg
	if s.store == nil {
		s.store = repository.NewFileStore(
			repository.WithAnnotationFile(cfg.AnnotationFile),
			repository.WithTEMDir(cfg.TEMResultsDir),
			repository.WithProposalDir(cfg.PGMProposalsDir),
			repository.WithFeatureDir(cfg.PGMFeatureDir),
			repository.WithPEMDir(cfg.PEMResultsDir),
			repository.WithResultDirs(cfg.EvaluateResultsDir, cfg.PredictResultsDir),
		)
	}

	seed := cfg.PGMSeed
	if s.seed != nil {
		seed = *s.seed
	}
	s.generator = proposal.NewGenerator(
		proposal.WithParams(proposal.Params{
			TScale:        cfg.TScale,
			PeakThreshold: cfg.PGMThreshold,
			TopKTrain:     cfg.PGMTopKTrain,
			TopK:          cfg.PGMTopK,
		}),
		proposal.WithSeed(seed),
	)

	sampler, err := feature.NewSampler(feature.WithParams(feature.Params{
		TScale:          cfg.TScale,
		NumSampleStart:  cfg.NumSampleStart,
		NumSampleEnd:    cfg.NumSampleEnd,
		NumSampleAction: cfg.NumSampleAction,
		NumSamplePerBin: cfg.NumSamplePerBin,
	}), feature.WithBoundaryRatio(cfg.BSPBoundaryRatio))
	if err != nil {
		return nil, err
	}
	s.sampler = sampler

	s.post = postprocess.Params{
		SoftNMS: softnms.Params{
			Alpha:   cfg.SNMSAlpha,
			T1:      cfg.SNMST1,
			T2:      cfg.SNMST2,
			MaxKeep: softnms.DefaultMaxKeep,
		},
		MaxResults: cfg.MaxResults,
	}
	return s, nil
}

// RunID identifies this Service in logs and reports.
func (s *Service) RunID() string { return s.runID }

// GenerateProposals writes a proposal table for every annotated video.
func (s *Service) GenerateProposals(ctx context.Context) (StageReport, error) {
	return runStage(ctx, s, StageProposals, s.cfg.PGMThread, "", func(records map[string]model.VideoRecord) worker.Func[struct{}] {
		return func(ctx context.Context, name string) (struct{}, bool, error) {
			curve, err := s.store.ReadBoundaryCurve(ctx, name)
			if err != nil {
				return struct{}{}, false, err
			}
			res, err := s.generator.Generate(curve, records[name])
			if err != nil {
				return struct{}{}, false, err
			}
			metrics.RecordProposalsGenerated(res.Candidates)
			metrics.RecordProposalsPadded(res.Padded)
			if res.MatchErr != nil {
				metrics.RecordGTMatchSkipped(matchReason(res.MatchErr))
				s.logger.Debug(ctx, "ground truth match skipped",
					logger.String("video", name),
					logger.Error(res.MatchErr),
				)
			}
			return struct{}{}, true, s.store.WriteProposals(ctx, name, res.Proposals)
		}
	}, nil)
}

// GenerateFeatures writes a BSP feature matrix for every annotated video.
func (s *Service) GenerateFeatures(ctx context.Context) (StageReport, error) {
	return runStage(ctx, s, StageFeatures, s.cfg.PGMThread, "", func(map[string]model.VideoRecord) worker.Func[struct{}] {
		return func(ctx context.Context, name string) (struct{}, bool, error) {
			action, err := s.store.ReadActionCurve(ctx, name)
			if err != nil {
				return struct{}{}, false, err
			}
			props, err := s.store.ReadProposals(ctx, name)
			if err != nil {
				return struct{}{}, false, err
			}
			m, err := s.sampler.Sample(action, props)
			if err != nil {
				return struct{}{}, false, err
			}
			return struct{}{}, true, s.store.WriteFeatures(ctx, name, m)
		}
	}, nil)
}

// PostProcess builds and writes the result document of subset, which must be
// validation or test.
func (s *Service) PostProcess(ctx context.Context, subset string) (StageReport, error) {
	if subset != model.SubsetValidation && subset != model.SubsetTest {
		return StageReport{RunID: s.runID, Stage: StagePostProcess},
			fmt.Errorf("%w: %q", repository.ErrUnknownSubset, subset)
	}

	var outputs map[string]postprocess.Output
	report, err := runStage(ctx, s, StagePostProcess, s.cfg.PostThread, subset, func(records map[string]model.VideoRecord) worker.Func[postprocess.Output] {
		return func(ctx context.Context, name string) (postprocess.Output, bool, error) {
			props, err := s.store.ReadEvaluatedProposals(ctx, name)
			if err != nil {
				return postprocess.Output{}, false, err
			}
			out := postprocess.ProcessVideo(props, records[name], s.post)
			metrics.RecordSoftNMSKept(out.Kept)
			return out, true, nil
		}
	}, &outputs)
	if outputs == nil {
		return report, err
	}

	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	results := make(map[string][]model.Detection, len(outputs))
	owners := make(map[string]string, len(outputs))
	for _, name := range names {
		out := outputs[name]
		if owner, dup := owners[out.Key]; dup {
			metrics.RecordVideoError(StagePostProcess, reasonKeyCollision)
			s.logger.Warn(ctx, "result key collision; keeping first video",
				logger.String("key", out.Key),
				logger.String("video", name),
				logger.String("kept", owner),
			)
			continue
		}
		owners[out.Key] = name
		results[out.Key] = out.Detections
	}

	path, werr := s.store.WriteResults(ctx, subset, postprocess.NewDocument(results))
	if werr != nil {
		return report, errors.Join(err, werr)
	}
	report.Output = path
	s.logger.Info(ctx, "results written",
		logger.String("subset", subset),
		logger.String("path", path),
		logger.Int("videos", len(results)),
	)
	return report, err
}

// Run executes stages in order. A stage whose videos partly failed does not
// stop the run; any other stage error does.
func (s *Service) Run(ctx context.Context, subset string, stages ...string) ([]StageReport, error) {
	reports := make([]StageReport, 0, len(stages))
	var errs []error
	for _, stage := range stages {
		var (
			report StageReport
			err    error
		)
		switch stage {
		case StageProposals:
			report, err = s.GenerateProposals(ctx)
		case StageFeatures:
			report, err = s.GenerateFeatures(ctx)
		case StagePostProcess:
			report, err = s.PostProcess(ctx, subset)
		default:
			return reports, errors.Join(append(errs, fmt.Errorf("%w: %q", ErrUnknownStage, stage))...)
		}
		reports = append(reports, report)
		s.remember(report)
		if err == nil {
			continue
		}
		errs = append(errs, err)
		if !errors.Is(err, worker.ErrVideoFailed) || ctx.Err() != nil {
			break
		}
	}
	return reports, errors.Join(errs...)
}

func (s *Service) remember(r StageReport) {
	s.mu.Lock()
	s.history = append(s.history, r)
	s.mu.Unlock()
}

// Reports returns the stages completed by Run so far, oldest first.
func (s *Service) Reports() []StageReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]StageReport(nil), s.history...)
}

// GetStats returns the run progress for the monitoring endpoint.
func (s *Service) GetStats() map[string]any {
	reports := s.Reports()
	stages := make([]map[string]any, 0, len(reports))
	for _, r := range reports {
		stage := map[string]any{
			"stage":       r.Stage,
			"videos":      r.Videos,
			"failed":      r.Failed,
			"duration_ms": r.Duration.Milliseconds(),
		}
		if r.Output != "" {
			stage["output"] = r.Output
		}
		stages = append(stages, stage)
	}
	return map[string]any{
		"run_id": s.runID,
		"stages": stages,
	}
}

// runStage loads the records, optionally keeps one subset, and dispatches
// the per-video function built by build. When out is given it receives the
// merged per-video values.
func runStage[T any](
	ctx context.Context,
	s *Service,
	stage string,
	shards int,
	subset string,
	build func(map[string]model.VideoRecord) worker.Func[T],
	out *map[string]T,
) (StageReport, error) {
	start := time.Now()
	report := StageReport{RunID: s.runID, Stage: stage}
	log := s.logger.With(logger.String("stage", stage))

	records, err := s.store.LoadVideoRecords(ctx)
	if err != nil {
		return report, err
	}
	if subset != "" {
		for name, r := range records {
			if r.Subset != subset {
				delete(records, name)
			}
		}
		if len(records) == 0 {
			return report, fmt.Errorf("%w: %q", ErrNoVideos, subset)
		}
	}
	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	sort.Strings(names)

	log.Info(ctx, "stage started", logger.Int("videos", len(names)), logger.Int("shards", shards))
	pool := worker.NewPool[T](shards,
		worker.WithStage(stage),
		worker.WithLogger(s.logger),
		worker.WithReason(failureReason),
	)
	values, err := pool.Run(ctx, names, build(records))
	if out != nil {
		*out = values
	}

	report.Videos = len(names)
	report.Failed = len(names) - len(values)
	report.Duration = time.Since(start)
	metrics.RecordStageDuration(stage, float64(report.Duration.Milliseconds()))
	log.Info(ctx, "stage finished",
		logger.Int("videos", report.Videos),
		logger.Int("failed", report.Failed),
		logger.Duration("duration", report.Duration),
	)
	return report, err
}

// failureReason maps a per-video error to a metrics label.
func failureReason(err error) string {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "missing_file"
	case errors.Is(err, repository.ErrMalformedTable):
		return "malformed_table"
	case errors.Is(err, proposal.ErrCurveLength):
		return "curve_length"
	case errors.Is(err, feature.ErrNoProposals), errors.Is(err, feature.ErrEmptyCurve):
		return "empty_input"
	default:
		return worker.DefaultReason(err)
	}
}

func matchReason(err error) string {
	if errors.Is(err, proposal.ErrNoAnnotations) {
		return "no_annotations"
	}
	return "malformed_annotation"
}
