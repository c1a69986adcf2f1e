package worker

import (
	"github.com/okian/bsn/pkg/logger"
)

type options struct {
	stage  string
	logger logger.Logger
	reason func(error) string
}

// Option applies a configuration option to a Pool.
type Option func(*options)

// WithStage sets the stage label used for logs and metrics.
func WithStage(stage string) Option {
	return func(o *options) {
		if stage != "" {
			o.stage = stage
		}
	}
}

// WithLogger sets a custom logger for the pool.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithReason sets the classifier that maps an item error to a metrics reason label.
func WithReason(fn func(error) string) Option {
	return func(o *options) {
		if fn != nil {
			o.reason = fn
		}
	}
}
