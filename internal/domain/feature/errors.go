package feature

import "errors"

// Sentinel kinds for feature sampling errors.
var (
	ErrEmptyCurve    = errors.New("action curve is empty")
	ErrInvalidCurve  = errors.New("action curve cannot be interpolated")
	ErrInvalidParams = errors.New("invalid sampler parameters")
	ErrNoProposals   = errors.New("no proposals to sample")
)
