package fixtures

import (
	"io"
)

// ShowHelp prints usage information for the fixture generator.
func ShowHelp(w io.Writer) {
	_, _ = io.WriteString(w, `BSN Fixture Generator
=====================

Writes a synthetic ActivityNet-style dataset: the annotation file, one TEM
table per video and, optionally, one PEM table per video. The layout under
-out matches the pipeline defaults when -out is "data".

Usage:
  go run ./cmd/gen-fixtures [options]

Options:
  -out string
        Root directory (default "data")
  -videos int
        Number of videos (default 200)
  -tscale int
        Bins per boundary curve (default 100)
  -seed int
        Random seed (default 42)
  -evaluated int
        Evaluated proposals per video; 0 skips PEM tables (default 100)
  -workers int
        Concurrent writers (default CPU cores)
  -help
        Show this help message

Examples:
  # Small dataset for a smoke run of every stage
  go run ./cmd/gen-fixtures -videos 20 && go run ./cmd -stage all
`)
}
