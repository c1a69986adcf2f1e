// Package postprocess turns evaluated proposals into the detection result
// document: score fusion, soft-NMS, and conversion to seconds.
package postprocess

import (
	"github.com/okian/bsn/internal/domain/model"
	"github.com/okian/bsn/internal/domain/softnms"
)

// DefaultMaxResults is the number of detections kept per video.
const DefaultMaxResults = 100

// keyPrefixLen is the length of the "v_" prefix carried by ActivityNet names.
const keyPrefixLen = 2

// Params configures per-video post-processing.
type Params struct {
	SoftNMS    softnms.Params
	MaxResults int
}

// DefaultParams returns the BSN post-processing defaults.
func DefaultParams() Params {
	return Params{SoftNMS: softnms.DefaultParams(), MaxResults: DefaultMaxResults}
}

// Fuse sets Score = XMinScore*XMaxScore*IoUScore on every proposal in place.
func Fuse(props []model.Proposal) {
	for i := range props {
		p := &props[i]
		p.Score = p.XMinScore * p.XMaxScore * p.IoUScore
	}
}

// ToDetections converts the first maxResults proposals to detections in
// seconds, clipping bounds to [0,1] before scaling.
func ToDetections(props []model.Proposal, duration float64, maxResults int) []model.Detection {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	n := min(maxResults, len(props))
	out := make([]model.Detection, n)
	for i := 0; i < n; i++ {
		p := props[i]
		out[i] = model.Detection{
			Score:   p.Score,
			Segment: [2]float64{max(0, p.XMin) * duration, min(1, p.XMax) * duration},
		}
	}
	return out
}

// ResultKey maps a video name to its result document key.
func ResultKey(videoName string) string {
	if len(videoName) < keyPrefixLen {
		return ""
	}
	return videoName[keyPrefixLen:]
}

// Output is the post-processed form of one video.
type Output struct {
	Key        string
	Detections []model.Detection
	// Kept is the number of proposals that survived soft-NMS.
	Kept int
}

// ProcessVideo fuses scores, suppresses overlaps and converts one video's
// evaluated proposals. props is not modified.
func ProcessVideo(props []model.Proposal, record model.VideoRecord, p Params) Output {
	work := append([]model.Proposal(nil), props...)
	Fuse(work)
	if len(work) > 1 {
		work = softnms.Apply(work, p.SoftNMS)
	}
	return Output{
		Key:        ResultKey(record.Name),
		Detections: ToDetections(work, record.DurationSecond, p.MaxResults),
		Kept:       len(work),
	}
}

// NewDocument wraps merged per-video detections in a result document.
func NewDocument(results map[string][]model.Detection) model.ResultDocument {
	if results == nil {
		results = map[string][]model.Detection{}
	}
	return model.ResultDocument{
		Version:      model.ResultVersion,
		Results:      results,
		ExternalData: map[string]any{},
	}
}
