package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/okian/bsn/internal/adapters/http/api"
	"github.com/okian/bsn/internal/adapters/http/swagger"
	app "github.com/okian/bsn/internal/app"
	"github.com/okian/bsn/internal/config"
	"github.com/okian/bsn/internal/domain/model"
	"github.com/okian/bsn/pkg/logger"
	"github.com/okian/bsn/pkg/metrics"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// Monitoring server timeouts.
const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

const stageAll = "all"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pgm", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		stage      = fs.String("stage", stageAll, "Stage to run: proposals, features, postprocess or all")
		subset     = fs.String("subset", model.SubsetValidation, "Subset to post-process: validation or test")
		configPath = fs.String("config", "", "YAML config file (sets "+config.EnvConfigFile+")")
		help       = fs.Bool("help", false, "Show help")
	)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *help {
		showHelp(stdout)
		return exitOK
	}

	stages, err := parseStages(*stage)
	if err != nil {
		_, _ = io.WriteString(stderr, err.Error()+"\n")
		return exitUsage
	}

	if err := logger.Init(logger.WithWriter(stdout)); err != nil {
		_, _ = io.WriteString(stderr, "failed to initialize logging: "+err.Error()+"\n")
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *configPath != "" {
		if err := os.Setenv(config.EnvConfigFile, *configPath); err != nil {
			_, _ = io.WriteString(stderr, "failed to set config path: "+err.Error()+"\n")
			return exitFailure
		}
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		_, _ = io.WriteString(stderr, "failed to load config: "+err.Error()+"\n")
		return exitFailure
	}

	if err := logger.Init(logger.WithWriter(stdout), logger.WithFormat(cfg.LogFormat)); err != nil {
		_, _ = io.WriteString(stderr, "failed to initialize logging: "+err.Error()+"\n")
		return exitFailure
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc, err := app.New(app.WithConfig(cfg), app.WithLogger(log))
	if err != nil {
		log.Error(ctx, "failed to create service", logger.Error(err))
		return exitFailure
	}

	if cfg.MetricsAddr != "" {
		srv := startMonitoringServer(ctx, cfg.MetricsAddr, svc, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error(ctx, "monitoring server shutdown failed", logger.Error(err))
			}
		}()
	}

	reports, runErr := svc.Run(ctx, *subset, stages...)
	for _, r := range reports {
		log.Info(ctx, "stage summary",
			logger.String("run_id", r.RunID),
			logger.String("stage", r.Stage),
			logger.Int("videos", r.Videos),
			logger.Int("failed", r.Failed),
			logger.Duration("duration", r.Duration),
		)
	}

	if cfg.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
			log.Error(ctx, "failed to write metrics textfile", logger.Error(err))
		}
	}

	if runErr != nil {
		log.Error(ctx, "pipeline finished with errors", logger.Error(runErr))
		return exitFailure
	}
	return exitOK
}

// parseStages expands a -stage value into the stages to run in order.
func parseStages(stage string) ([]string, error) {
	switch strings.ToLower(strings.TrimSpace(stage)) {
	case stageAll:
		return []string{app.StageProposals, app.StageFeatures, app.StagePostProcess}, nil
	case app.StageProposals:
		return []string{app.StageProposals}, nil
	case app.StageFeatures:
		return []string{app.StageFeatures}, nil
	case app.StagePostProcess:
		return []string{app.StagePostProcess}, nil
	default:
		return nil, errors.Join(app.ErrUnknownStage, errors.New("valid stages: proposals, features, postprocess, all"))
	}
}

// startMonitoringServer serves the monitoring routes and their OpenAPI
// document until shutdown.
func startMonitoringServer(ctx context.Context, addr string, stats api.StatsProvider, log logger.Logger) *http.Server {
	metrics.RegisterRuntimeCollectors()

	mux := http.NewServeMux()
	api.NewServer(stats).Register(mux)
	swagger.Register(mux)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "serving monitoring endpoints", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "monitoring server failed", logger.Error(err))
		}
	}()
	return srv
}

func showHelp(w io.Writer) {
	_, _ = io.WriteString(w, `BSN Proposal Generation
=======================

Generates temporal action proposals and BSP features from TEM boundary
curves, and turns evaluated proposals into the result document.

Usage:
  pgm [options]

Options:
  -stage string
        proposals, features, postprocess or all (default "all")
  -subset string
        Subset written by postprocess: validation or test (default "validation")
  -config string
        YAML config file; same as setting BSN_CONFIG
  -help
        Show this help message

Every config key can be overridden with a BSN_ environment variable,
for example BSN_PGM_THREAD=16 or BSN_TSCALE=100.

Examples:
  # Generate proposals and features for every annotated video
  pgm -stage proposals && pgm -stage features

  # Write the validation result document after PEM has run
  pgm -stage postprocess -subset validation

  # Expose /healthz, /metrics, /stats and /openapi.yaml during a run
  BSN_METRICS_ADDR=:9090 pgm -stage all
`)
}
