// Package geometry provides temporal overlap measures and boundary gating.
//
// Intervals are half-open [min, max) in normalized video time. Degenerate
// intervals have an overlap of 0 instead of NaN, so results stay comparable
// when they are sorted or thresholded.
package geometry

import (
	"gonum.org/v1/gonum/floats"
)

// IoU returns the intersection-over-union of [aMin,aMax) and [bMin,bMax).
func IoU(aMin, aMax, bMin, bMax float64) float64 {
	inter := intersection(aMin, aMax, bMin, bMax)
	union := (aMax - aMin) - inter + (bMax - bMin)
	if union <= 0 {
		return 0
	}
	return inter / union
}

// IoA returns the intersection of the anchor [aMin,aMax) with the box
// [bMin,bMax) divided by the anchor length.
func IoA(aMin, aMax, bMin, bMax float64) float64 {
	length := aMax - aMin
	if length <= 0 {
		return 0
	}
	return intersection(aMin, aMax, bMin, bMax) / length
}

// IoUWithAnchors computes IoU of every anchor against one box.
func IoUWithAnchors(mins, maxs []float64, boxMin, boxMax float64) []float64 {
	out := make([]float64, len(mins))
	for i := range mins {
		out[i] = IoU(mins[i], maxs[i], boxMin, boxMax)
	}
	return out
}

// IoAWithAnchors computes IoA of every anchor against one box.
func IoAWithAnchors(mins, maxs []float64, boxMin, boxMax float64) []float64 {
	out := make([]float64, len(mins))
	for i := range mins {
		out[i] = IoA(mins[i], maxs[i], boxMin, boxMax)
	}
	return out
}

func intersection(aMin, aMax, bMin, bMax float64) float64 {
	return max(min(aMax, bMax)-max(aMin, bMin), 0)
}

// BoundaryChoose flags bins that are plausible proposal boundaries. Bin i is
// selected when its score exceeds peakThreshold*max(curve), or when it is a
// strict local peak. Both curve ends are compared against a virtual zero.
func BoundaryChoose(curve []float64, peakThreshold float64) []float64 {
	n := len(curve)
	mask := make([]float64, n)
	if n == 0 {
		return mask
	}

	high := floats.Max(curve) * peakThreshold
	for i, v := range curve {
		prev, next := 0.0, 0.0
		if i > 0 {
			prev = curve[i-1]
		}
		if i < n-1 {
			next = curve[i+1]
		}
		if v > high || (v > prev && v > next) {
			mask[i] = 1
		}
	}
	return mask
}

// Anchors returns the uniform bin partition of [0,1] into tscale bins.
func Anchors(tscale int) (mins, maxs []float64) {
	mins = make([]float64, tscale)
	maxs = make([]float64, tscale)
	step := 1.0 / float64(tscale)
	for i := 0; i < tscale; i++ {
		mins[i] = step * float64(i)
		maxs[i] = step * float64(i+1)
	}
	return mins, maxs
}
