package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrUnknownStage = errors.New("unknown stage")
	ErrNoVideos     = errors.New("no videos in subset")
)
