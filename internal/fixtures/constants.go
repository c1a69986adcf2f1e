package fixtures

// Default dataset shape.
const (
	DefaultVideos      = 200
	DefaultTScale      = 100
	DefaultSeed        = 42
	DefaultMinDuration = 30.0
	DefaultMaxDuration = 240.0
	DefaultMaxSegments = 3
	DefaultEvaluated   = 100
)

// Curve synthesis constants.
const (
	idLength        = 11   // ActivityNet video ids are 11 characters
	boundaryPeak    = 0.9  // height of a boundary bump
	actionInside    = 0.85 // action score inside a segment
	actionOutside   = 0.1  // action score outside every segment
	noiseAmplitude  = 0.05
	minSegmentWidth = 0.05
	maxSegmentWidth = 0.3
	maxSegmentStart = 0.8
	boundaryJitter  = 0.05
	minBoundScore   = 0.5
)
