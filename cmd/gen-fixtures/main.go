package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/okian/bsn/internal/adapters/repository"
	"github.com/okian/bsn/internal/fixtures"
	"github.com/okian/bsn/pkg/logger"
)

func main() {
	var (
		out       = flag.String("out", "data", "Root directory")
		videos    = flag.Int("videos", fixtures.DefaultVideos, "Number of videos")
		tscale    = flag.Int("tscale", fixtures.DefaultTScale, "Bins per boundary curve")
		seed      = flag.Int64("seed", fixtures.DefaultSeed, "Random seed")
		evaluated = flag.Int("evaluated", fixtures.DefaultEvaluated, "Evaluated proposals per video; 0 skips PEM tables")
		workers   = flag.Int("workers", runtime.NumCPU(), "Concurrent writers")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		fixtures.ShowHelp(os.Stdout)
		return
	}

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := repository.NewFileStore(
		repository.WithAnnotationFile(filepath.Join(*out, "activitynet_annotations", "anet_anno_action.json")),
		repository.WithTEMDir(filepath.Join(*out, "output", "TEM_results")),
		repository.WithPEMDir(filepath.Join(*out, "output", "PEM_results")),
	)
	cfg := fixtures.Config{
		Videos:      *videos,
		TScale:      *tscale,
		Seed:        *seed,
		MinDuration: fixtures.DefaultMinDuration,
		MaxDuration: fixtures.DefaultMaxDuration,
		MaxSegments: fixtures.DefaultMaxSegments,
		Evaluated:   *evaluated,
		Workers:     *workers,
	}

	if _, err := fixtures.Run(ctx, cfg, store); err != nil {
		os.Stderr.WriteString("Generation failed: " + err.Error() + "\n")
		stop()
		os.Exit(1) //nolint:gocritic // stop already called
	}
}
