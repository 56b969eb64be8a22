// Package calc holds small progress arithmetic helpers.
package calc

import (
	"math"
	"time"
)

// Fraction returns downloaded/total clamped to [0, 1]. A non-positive total yields 0.
func Fraction(downloaded, total int64) float64 {
	if total <= 0 || downloaded <= 0 {
		return 0
	}

	return Clamp(float64(downloaded) / float64(total))
}

// Clamp limits v to [0, 1]. NaN becomes 0.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Percent converts a fraction to a rounded whole percentage.
func Percent(fraction float64) int {
	if math.IsNaN(fraction) || math.IsInf(fraction, 0) {
		return 0
	}

	return int(math.Round(fraction * 100))
}

// ETA estimates the remaining time from the elapsed time and the bytes done so far.
func ETA(downloaded, total int64, elapsed time.Duration) time.Duration {
	if total <= 0 || downloaded <= 0 || downloaded >= total {
		return 0
	}

	return time.Duration(float64(elapsed) * (float64(total)/float64(downloaded) - 1))
}
