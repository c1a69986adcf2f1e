package repository

import "errors"

// Sentinel kinds for file store errors.
var (
	ErrMalformedTable = errors.New("malformed table")
	ErrUnknownSubset  = errors.New("unknown subset")
	ErrNoFeatures     = errors.New("empty feature matrix")
)
