package scoring

import "math"

// Normalize clamps value into [min, max] and rescales it linearly onto
// [0, 10]. Out-of-range values are clamped, never rejected. NaN is treated as
// min, and a degenerate range (max <= min) yields 0.
func Normalize(value, min, max float64) float64 {
	if max <= min {
		return 0
	}
	if math.IsNaN(value) {
		value = min
	}
	constrained := clip(value, min, max)
	return (constrained - min) / (max - min) * scaleMax
}

func clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
