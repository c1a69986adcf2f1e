// Package config defines the pipeline configuration and loading hooks.
//
// Conventions:
//   - Keys are flat and snake_case; they double as koanf tags and env suffixes.
//   - New(ctx) returns defaults; Load(ctx) layers file and env on top.
//   - Validation errors wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"runtime"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// TScale is the number of temporal bins per video.
	TScale int `koanf:"tscale"`
	// PGMThreshold is the peak_threshold used by boundary gating.
	PGMThreshold float64 `koanf:"pgm_threshold"`
	// PGMTopKTrain and PGMTopK are proposal counts for training and other subsets.
	PGMTopKTrain int `koanf:"pgm_top_k_train"`
	PGMTopK      int `koanf:"pgm_top_k"`
	// PGMThread is the shard count for proposal and feature generation.
	PGMThread int `koanf:"pgm_thread"`
	// PGMSeed seeds the random padding of short candidate lists.
	PGMSeed int64 `koanf:"pgm_seed"`

	// BSP feature sampling.
	NumSampleStart   int     `koanf:"num_sample_start"`
	NumSampleEnd     int     `koanf:"num_sample_end"`
	NumSampleAction  int     `koanf:"num_sample_action"`
	NumSamplePerBin  int     `koanf:"num_sample_perbin"`
	BSPBoundaryRatio float64 `koanf:"bsp_boundary_ratio"`

	// Soft-NMS parameters.
	SNMSAlpha float64 `koanf:"snms_alpha"`
	SNMST1    float64 `koanf:"snms_t1"`
	SNMST2    float64 `koanf:"snms_t2"`
	// PostThread is the shard count for post-processing.
	PostThread int `koanf:"post_thread"`
	// MaxResults caps detections written per video.
	MaxResults int `koanf:"max_results"`

	// Filesystem layout.
	AnnotationFile     string `koanf:"annotation_file"`
	TEMResultsDir      string `koanf:"tem_results_dir"`
	PGMProposalsDir    string `koanf:"pgm_proposals_dir"`
	PGMFeatureDir      string `koanf:"pgm_feature_dir"`
	PEMResultsDir      string `koanf:"pem_results_dir"`
	EvaluateResultsDir string `koanf:"evaluate_results_dir"`
	PredictResultsDir  string `koanf:"predict_results_dir"`

	// MetricsAddr, when set, serves /healthz, /metrics and /stats while the pipeline runs.
	MetricsAddr string `koanf:"metrics_addr"`
	// MetricsTextfile, when set, receives a metrics dump after the run.
	MetricsTextfile string `koanf:"metrics_textfile"`
}

// New creates a Config populated with defaults. Context is accepted first to
// satisfy the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",

		TScale:       100,
		PGMThreshold: 0.5,
		PGMTopKTrain: 500,
		PGMTopK:      1000,
		PGMThread:    runtime.NumCPU(),
		PGMSeed:      42,

		NumSampleStart:   8,
		NumSampleEnd:     8,
		NumSampleAction:  16,
		NumSamplePerBin:  3,
		BSPBoundaryRatio: 0.2,

		SNMSAlpha:  0.75,
		SNMST1:     0.65,
		SNMST2:     0.9,
		PostThread: 12,
		MaxResults: 100,

		AnnotationFile:     "data/activitynet_annotations/anet_anno_action.json",
		TEMResultsDir:      "data/output/TEM_results",
		PGMProposalsDir:    "data/output/PGM_proposals",
		PGMFeatureDir:      "data/output/PGM_feature",
		PEMResultsDir:      "data/output/PEM_results",
		EvaluateResultsDir: "data/evaluate_results",
		PredictResultsDir:  "data/predict_results",
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.TScale < 1:
		return invalid("tscale must be >= 1, got %d", c.TScale)
	case c.PGMThreshold < 0 || c.PGMThreshold > 1:
		return invalid("pgm_threshold must be within [0,1], got %g", c.PGMThreshold)
	case c.PGMTopKTrain < 1 || c.PGMTopK < 1:
		return invalid("pgm_top_k_train and pgm_top_k must be >= 1")
	case c.PGMThread < 1 || c.PostThread < 1:
		return invalid("pgm_thread and post_thread must be >= 1")
	case c.NumSampleStart < 2 || c.NumSampleEnd < 2 || c.NumSampleAction < 2:
		return invalid("num_sample_start, num_sample_end and num_sample_action must be >= 2")
	case c.NumSamplePerBin < 1:
		return invalid("num_sample_perbin must be >= 1, got %d", c.NumSamplePerBin)
	case c.BSPBoundaryRatio < 0:
		return invalid("bsp_boundary_ratio must be >= 0, got %g", c.BSPBoundaryRatio)
	case c.SNMSAlpha <= 0:
		return invalid("snms_alpha must be > 0, got %g", c.SNMSAlpha)
	case c.MaxResults < 1:
		return invalid("max_results must be >= 1, got %d", c.MaxResults)
	case c.AnnotationFile == "":
		return invalid("annotation_file must not be empty")
	case c.TEMResultsDir == "" || c.PGMProposalsDir == "" || c.PGMFeatureDir == "" ||
		c.PEMResultsDir == "" || c.EvaluateResultsDir == "" || c.PredictResultsDir == "":
		return invalid("result directories must not be empty")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
