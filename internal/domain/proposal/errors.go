package proposal

import "errors"

// Sentinel kinds for proposal generation errors.
var (
	ErrCurveLength         = errors.New("boundary curve length does not match tscale")
	ErrNoAnnotations       = errors.New("video has no ground-truth annotations")
	ErrMalformedAnnotation = errors.New("malformed ground-truth annotation")
)
