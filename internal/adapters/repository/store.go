// Package repository persists pipeline artifacts as per-video files that the
// training side reads back with pandas and numpy.
package repository

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"github.com/okian/bsn/internal/domain/model"
)

// Store provides read/write access to pipeline artifacts.
type Store interface {
	// LoadVideoRecords returns every annotated video keyed by name.
	LoadVideoRecords(ctx context.Context) (map[string]model.VideoRecord, error)

	// ReadBoundaryCurve returns the TEM start/end/action curves of a video.
	ReadBoundaryCurve(ctx context.Context, video string) (model.BoundaryCurve, error)
	// ReadActionCurve returns only the TEM action curve of a video.
	ReadActionCurve(ctx context.Context, video string) ([]float64, error)

	// WriteProposals stores generated proposals in rank order.
	WriteProposals(ctx context.Context, video string, props []model.Proposal) error
	// ReadProposals returns proposals previously written by WriteProposals.
	ReadProposals(ctx context.Context, video string) ([]model.Proposal, error)

	// WriteFeatures stores the BSP feature matrix of a video.
	WriteFeatures(ctx context.Context, video string, m *mat.Dense) error
	// ReadFeatures returns a feature matrix previously written.
	ReadFeatures(ctx context.Context, video string) (*mat.Dense, error)

	// ReadEvaluatedProposals returns proposals with the evaluator's IoU estimate.
	ReadEvaluatedProposals(ctx context.Context, video string) ([]model.Proposal, error)

	// WriteResults stores the result document of a subset and returns its path.
	WriteResults(ctx context.Context, subset string, doc model.ResultDocument) (string, error)
}
