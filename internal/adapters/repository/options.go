package repository

// Option applies a configuration option to the FileStore.
type Option func(*FileStore)

// WithAnnotationFile sets the path of the video annotation JSON.
func WithAnnotationFile(path string) Option {
	return func(s *FileStore) {
		if path != "" {
			s.annotationFile = path
		}
	}
}

// WithTEMDir sets the directory of per-video boundary curve tables.
func WithTEMDir(dir string) Option {
	return func(s *FileStore) {
		if dir != "" {
			s.temDir = dir
		}
	}
}

// WithProposalDir sets the directory of generated proposal tables.
func WithProposalDir(dir string) Option {
	return func(s *FileStore) {
		if dir != "" {
			s.proposalDir = dir
		}
	}
}

// WithFeatureDir sets the directory of .npy feature matrices.
func WithFeatureDir(dir string) Option {
	return func(s *FileStore) {
		if dir != "" {
			s.featureDir = dir
		}
	}
}

// WithPEMDir sets the directory of evaluated proposal tables.
func WithPEMDir(dir string) Option {
	return func(s *FileStore) {
		if dir != "" {
			s.pemDir = dir
		}
	}
}

// WithResultDirs sets where validation and test result documents go.
func WithResultDirs(evaluateDir, predictDir string) Option {
	return func(s *FileStore) {
		if evaluateDir != "" {
			s.evaluateDir = evaluateDir
		}
		if predictDir != "" {
			s.predictDir = predictDir
		}
	}
}
