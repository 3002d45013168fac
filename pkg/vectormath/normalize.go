// Package vectormath provides utilities for embedding vectors (e.g. L2
// normalization).
package vectormath

import (
	"math"
)

// NormalizeL2 scales vector in place to unit length. A zero vector is left
// unchanged. Modifying in place avoids allocations on the per-chunk
// embedding path.
func NormalizeL2(vector []float32) {
	var sumSquares float64

	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}

	if sumSquares == 0 {
		return
	}

	magnitude := math.Sqrt(sumSquares)

	for i := range vector {
		vector[i] = float32(float64(vector[i]) / magnitude)
	}
}
