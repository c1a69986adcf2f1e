package service

import (
	"github.com/okian/bsn/internal/adapters/repository"
	"github.com/okian/bsn/internal/config"
	"github.com/okian/bsn/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the pipeline configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithStore sets the artifact store. Defaults to a FileStore laid out by the config.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRandSeed overrides the configured padding seed.
func WithRandSeed(seed int64) Option {
	return func(s *Service) {
		s.seed = &seed
	}
}
