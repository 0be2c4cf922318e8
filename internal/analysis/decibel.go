// SPDX-License-Identifier: MIT
package analysis

import "math"

// MinDecibel is the floor of the decibel view.
const MinDecibel = -96.0

// Decibel converts a linear amplitude to 20·log10(max(v, 1e-30)), floored at
// MinDecibel.
func Decibel(v float64) float64 {
	if math.IsNaN(v) {
		return MinDecibel
	}
	db := 20 * math.Log10(math.Max(v, 1e-30))
	if db < MinDecibel {
		return MinDecibel
	}
	return db
}

// Decibels converts every value into dst (allocated if too short).
func Decibels(values, dst []float64) []float64 {
	if cap(dst) < len(values) {
		dst = make([]float64, len(values))
	}
	dst = dst[:len(values)]
	for i, v := range values {
		dst[i] = Decibel(v)
	}
	return dst
}
