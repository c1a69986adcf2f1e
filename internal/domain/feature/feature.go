// Package feature builds boundary-sensitive proposal (BSP) feature vectors by
// resampling a video's action curve around each proposal.
package feature

import (
	"fmt"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/okian/bsn/internal/domain/model"
)

// Default sampler configuration constants.
const (
	defaultTScale          = 100
	defaultNumSampleStart  = 8
	defaultNumSampleEnd    = 8
	defaultNumSampleAction = 16
	defaultNumSamplePerBin = 3
	defaultBoundaryRatio   = 0.2

	// extendPad is added to a quarter of the curve length to size the zero margin.
	extendPad = 10
)

// Params configures a Sampler.
type Params struct {
	TScale          int
	NumSampleStart  int
	NumSampleEnd    int
	NumSampleAction int
	NumSamplePerBin int
	BoundaryRatio   float64
}

// Dim returns the feature vector length.
func (p Params) Dim() int {
	return p.NumSampleAction + p.NumSampleStart + p.NumSampleEnd
}

// ActionCurve is a piecewise-linear action score over normalized time,
// zero-extended beyond [0,1].
type ActionCurve struct {
	pl     interp.PiecewiseLinear
	lo, hi float64
}

// NewActionCurve fits the interpolant for one video's action scores. Bin
// centers sit at (i+0.5)/tscale; floor(n/4)+10 zero bins are added per side.
func NewActionCurve(action []float64, tscale int) (*ActionCurve, error) {
	n := len(action)
	if n == 0 {
		return nil, ErrEmptyCurve
	}
	if tscale < 1 {
		return nil, fmt.Errorf("%w: tscale %d", ErrInvalidParams, tscale)
	}
	// The trailing zero bins start at tscale, so a longer curve would overlap them.
	if n > tscale {
		return nil, fmt.Errorf("%w: %d bins against tscale %d", ErrInvalidCurve, n, tscale)
	}

	step := 1.0 / float64(tscale)
	gap := step // width of one bin
	last := step * float64(tscale)
	ext := n/4 + extendPad

	xs := make([]float64, 0, n+2*ext)
	ys := make([]float64, 0, n+2*ext)
	for i := 0; i < ext; i++ {
		xs = append(xs, -gap/2-float64(ext-1-i)*gap)
		ys = append(ys, 0)
	}
	for i := 0; i < n; i++ {
		xs = append(xs, gap/2+float64(i)*gap)
		ys = append(ys, action[i])
	}
	for i := 0; i < ext; i++ {
		xs = append(xs, gap/2+last+float64(i)*gap)
		ys = append(ys, 0)
	}

	c := &ActionCurve{lo: xs[0], hi: xs[len(xs)-1]}
	if err := c.pl.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("%w: %d bins against tscale %d: %w", ErrInvalidCurve, n, tscale, err)
	}
	return c, nil
}

// At evaluates the curve; queries outside the extended domain return 0.
func (c *ActionCurve) At(x float64) float64 {
	return c.pl.Predict(x)
}

// Domain returns the first and last interpolation knots.
func (c *ActionCurve) Domain() (lo, hi float64) { return c.lo, c.hi }

// SampleWindow averages the curve over n output bins spanning a window that
// starts at x0 and has the given length. Each window is probed at n*perbin+1
// evenly spaced points; bin i is the mean of points i*perbin..(i+1)*perbin.
func SampleWindow(c *ActionCurve, x0, length float64, n, perbin int) []float64 {
	plen := length / float64(n-1)
	sample := plen / float64(perbin)

	points := make([]float64, n*perbin+1)
	for k := range points {
		points[k] = c.At(x0 - plen/2 + sample*float64(k))
	}

	out := make([]float64, n)
	for i := range out {
		out[i] = stat.Mean(points[i*perbin:(i+1)*perbin+1], nil)
	}
	return out
}

// Option applies a configuration option to the Sampler.
type Option func(*Sampler)

// WithParams overrides sampler parameters; zero values keep their defaults.
// Use WithBoundaryRatio to set a ratio of zero.
func WithParams(p Params) Option {
	return func(s *Sampler) {
		if p.TScale > 0 {
			s.params.TScale = p.TScale
		}
		if p.NumSampleStart > 0 {
			s.params.NumSampleStart = p.NumSampleStart
		}
		if p.NumSampleEnd > 0 {
			s.params.NumSampleEnd = p.NumSampleEnd
		}
		if p.NumSampleAction > 0 {
			s.params.NumSampleAction = p.NumSampleAction
		}
		if p.NumSamplePerBin > 0 {
			s.params.NumSamplePerBin = p.NumSamplePerBin
		}
		if p.BoundaryRatio > 0 {
			s.params.BoundaryRatio = p.BoundaryRatio
		}
	}
}

// WithBoundaryRatio sets the boundary window ratio. Zero collapses the start
// and end windows onto the boundary; negative values are ignored.
func WithBoundaryRatio(r float64) Option {
	return func(s *Sampler) {
		if r >= 0 {
			s.params.BoundaryRatio = r
		}
	}
}

// Sampler computes BSP features. It is immutable after construction.
type Sampler struct {
	params Params
}

// NewSampler creates a Sampler with defaults overridden by opts.
func NewSampler(opts ...Option) (*Sampler, error) {
	s := &Sampler{params: Params{
		TScale:          defaultTScale,
		NumSampleStart:  defaultNumSampleStart,
		NumSampleEnd:    defaultNumSampleEnd,
		NumSampleAction: defaultNumSampleAction,
		NumSamplePerBin: defaultNumSamplePerBin,
		BoundaryRatio:   defaultBoundaryRatio,
	}}
	for _, opt := range opts {
		opt(s)
	}
	p := s.params
	if p.NumSampleStart < 2 || p.NumSampleEnd < 2 || p.NumSampleAction < 2 {
		return nil, fmt.Errorf("%w: every window needs at least two samples", ErrInvalidParams)
	}
	return s, nil
}

// Params returns the effective parameters.
func (s *Sampler) Params() Params { return s.params }

// Features returns action ++ start ++ end samples for one proposal.
func (s *Sampler) Features(c *ActionCurve, p model.Proposal) []float64 {
	r := s.params.BoundaryRatio
	perbin := s.params.NumSamplePerBin
	xlen := p.XMax - p.XMin

	xmin0, xmin1 := p.XMin-xlen*r, p.XMin+xlen*r
	xmax0, xmax1 := p.XMax-xlen*r, p.XMax+xlen*r

	out := make([]float64, 0, s.params.Dim())
	out = append(out, SampleWindow(c, p.XMin, p.XMax-p.XMin, s.params.NumSampleAction, perbin)...)
	out = append(out, SampleWindow(c, xmin0, xmin1-xmin0, s.params.NumSampleStart, perbin)...)
	out = append(out, SampleWindow(c, xmax0, xmax1-xmax0, s.params.NumSampleEnd, perbin)...)
	return out
}

// Sample builds the feature matrix of one video; row i belongs to props[i].
func (s *Sampler) Sample(action []float64, props []model.Proposal) (*mat.Dense, error) {
	if len(props) == 0 {
		return nil, ErrNoProposals
	}
	c, err := NewActionCurve(action, s.params.TScale)
	if err != nil {
		return nil, err
	}

	dim := s.params.Dim()
	m := mat.NewDense(len(props), dim, nil)
	for i, p := range props {
		m.SetRow(i, s.Features(c, p))
	}
	return m, nil
}
