// Package model contains domain models passed between layers.
package model

// Subset labels carried by video records.
const (
	SubsetTraining   = "training"
	SubsetValidation = "validation"
	SubsetTest       = "test"
)

// ResultVersion is the version string of the detection result document.
const ResultVersion = "VERSION 1.3"

// BoundaryCurve holds the per-bin TEM probabilities of one video.
type BoundaryCurve struct {
	Start  []float64
	End    []float64
	Action []float64
}

// Len returns the number of temporal bins.
func (c BoundaryCurve) Len() int { return len(c.Start) }

// GTMatch is the best overlap of a proposal against the ground truth.
type GTMatch struct {
	IoU float64
	IoA float64
}

// Proposal is a candidate temporal segment in normalized video time.
type Proposal struct {
	XMin      float64
	XMax      float64
	XMinScore float64
	XMaxScore float64
	// IoUScore is the evaluator's quality estimate; zero until PEM has run.
	IoUScore float64
	// Score is XMinScore*XMaxScore after generation and the fused score after evaluation.
	Score float64
	// Match is nil when ground truth was unavailable or malformed.
	Match *GTMatch
}

// Width returns XMax-XMin.
func (p Proposal) Width() float64 { return p.XMax - p.XMin }

// Annotation is one ground-truth segment in seconds.
type Annotation struct {
	Segment [2]float64 `json:"segment"`
	Label   string     `json:"label,omitempty"`
}

// VideoRecord is the external metadata of one video.
type VideoRecord struct {
	Name           string       `json:"-"`
	Subset         string       `json:"subset"`
	DurationSecond float64      `json:"duration_second"`
	Annotations    []Annotation `json:"annotations"`
}

// Detection is one proposal in the result document.
type Detection struct {
	Score   float64    `json:"score"`
	Segment [2]float64 `json:"segment"`
}

// ResultDocument is the aggregated output of post-processing.
type ResultDocument struct {
	Version      string                 `json:"version"`
	Results      map[string][]Detection `json:"results"`
	ExternalData map[string]any         `json:"external_data"`
}
