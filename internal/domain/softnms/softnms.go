// Package softnms implements Gaussian soft non-maximum suppression over
// temporal proposals.
package softnms

import (
	"math"
	"sort"

	"github.com/okian/bsn/internal/domain/geometry"
	"github.com/okian/bsn/internal/domain/model"
)

// DefaultMaxKeep is the number of proposals kept per video.
const DefaultMaxKeep = 101

// Params configures soft-NMS.
type Params struct {
	// Alpha is the Gaussian decay width; overlapping scores decay by exp(-iou^2/Alpha).
	Alpha float64
	// T1 and T2 bound the width-adaptive IoU threshold T1+(T2-T1)*width.
	T1 float64
	T2 float64
	// MaxKeep caps the output length; zero means DefaultMaxKeep.
	MaxKeep int
}

// DefaultParams returns the BSN post-processing defaults.
func DefaultParams() Params {
	return Params{Alpha: 0.75, T1: 0.65, T2: 0.9, MaxKeep: DefaultMaxKeep}
}

// Apply sorts props by descending Score and greedily selects the best
// candidate, decaying the score of every remaining candidate that overlaps it
// beyond the threshold. Selection stops once one candidate is left or MaxKeep
// have been kept, so the last survivor is never emitted. The output is in
// selection order; props is not modified.
func Apply(props []model.Proposal, p Params) []model.Proposal {
	if len(props) <= 1 {
		return append([]model.Proposal(nil), props...)
	}
	maxKeep := p.MaxKeep
	if maxKeep <= 0 {
		maxKeep = DefaultMaxKeep
	}

	work := append([]model.Proposal(nil), props...)
	sort.SliceStable(work, func(i, j int) bool {
		return work[i].Score > work[j].Score
	})

	kept := make([]model.Proposal, 0, min(maxKeep, len(work)))
	for len(work) > 1 && len(kept) < maxKeep {
		best := argmax(work)
		top := work[best]
		threshold := p.T1 + (p.T2-p.T1)*top.Width()

		for i := range work {
			if i == best {
				continue
			}
			iou := geometry.IoU(work[i].XMin, work[i].XMax, top.XMin, top.XMax)
			if iou > threshold {
				work[i].Score *= math.Exp(-(iou * iou) / p.Alpha)
			}
		}

		kept = append(kept, top)
		work = append(work[:best], work[best+1:]...)
	}
	return kept
}

// argmax returns the index of the first maximal score.
func argmax(props []model.Proposal) int {
	best := 0
	for i := 1; i < len(props); i++ {
		if props[i].Score > props[best].Score {
			best = i
		}
	}
	return best
}
