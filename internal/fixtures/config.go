package fixtures

import "time"

// Config holds configuration for a synthetic dataset.
type Config struct {
	Videos      int     // Number of videos to generate
	TScale      int     // Bins per boundary curve
	Seed        int64   // Seed for every random choice
	MinDuration float64 // Shortest video, in seconds
	MaxDuration float64 // Longest video, in seconds
	MaxSegments int     // Upper bound on annotated segments per video
	Evaluated   int     // Evaluated proposals per video; 0 skips PEM tables
	Workers     int     // Concurrent writers
}

// Stats holds generation statistics.
type Stats struct {
	Videos     int
	Segments   int
	Training   int
	Validation int
	Test       int
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}
