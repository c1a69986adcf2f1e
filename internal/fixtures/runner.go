// Package fixtures generates synthetic annotations, TEM curves and PEM
// tables so the pipeline can run end to end without trained models.
package fixtures

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/okian/bsn/internal/adapters/worker"
	"github.com/okian/bsn/internal/domain/model"
	"github.com/okian/bsn/pkg/logger"
)

const stageFixtures = "fixtures"

// Sink receives generated artifacts. repository.FileStore implements it.
type Sink interface {
	WriteVideoRecords(ctx context.Context, records map[string]model.VideoRecord) error
	WriteBoundaryCurve(ctx context.Context, video string, c model.BoundaryCurve) error
	WriteEvaluatedProposals(ctx context.Context, video string, props []model.Proposal) error
}

// Run generates a dataset and writes it to sink.
func Run(ctx context.Context, cfg Config, sink Sink) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named(stageFixtures)

	ds := Generate(cfg)
	log.Info(ctx, "generated dataset",
		logger.Int("videos", len(ds.Records)),
		logger.Int("tscale", withDefaults(cfg).TScale),
		logger.Bool("evaluated", len(ds.Evaluated) > 0),
	)

	if err := sink.WriteVideoRecords(ctx, ds.Records); err != nil {
		return nil, fmt.Errorf("write annotations: %w", err)
	}

	names := make([]string, 0, len(ds.Records))
	for name, r := range ds.Records {
		names = append(names, name)
		stats.Segments += len(r.Annotations)
		switch r.Subset {
		case model.SubsetTraining:
			stats.Training++
		case model.SubsetValidation:
			stats.Validation++
		case model.SubsetTest:
			stats.Test++
		}
	}
	sort.Strings(names)

	pool := worker.NewPool[struct{}](cfg.Workers, worker.WithStage(stageFixtures), worker.WithLogger(log))
	written, err := pool.Run(ctx, names, func(ctx context.Context, name string) (struct{}, bool, error) {
		if err := sink.WriteBoundaryCurve(ctx, name, ds.Curves[name]); err != nil {
			return struct{}{}, false, err
		}
		if props, ok := ds.Evaluated[name]; ok {
			if err := sink.WriteEvaluatedProposals(ctx, name, props); err != nil {
				return struct{}{}, false, err
			}
		}
		return struct{}{}, true, nil
	})
	stats.Videos = len(written)
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	if err != nil {
		return stats, fmt.Errorf("write tables: %w", err)
	}

	displayFinalStats(ctx, log, stats)
	return stats, nil
}

// displayFinalStats logs the generation summary.
func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	log.Info(ctx, "final statistics",
		logger.Int("videos", stats.Videos),
		logger.Int("segments", stats.Segments),
		logger.Int("training", stats.Training),
		logger.Int("validation", stats.Validation),
		logger.Int("test", stats.Test),
		logger.Duration("duration", stats.Duration),
	)
}
