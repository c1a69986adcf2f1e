package worker

import "errors"

// Sentinel kinds for pool errors.
var (
	ErrVideoFailed = errors.New("video failed")
	ErrPanic       = errors.New("worker panicked")
)
