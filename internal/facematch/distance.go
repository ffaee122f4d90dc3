package facematch

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimensionMismatch is returned when two embeddings have different lengths.
var ErrDimensionMismatch = errors.New("embedding dimensions differ")

// EuclideanDistance computes sqrt(sum((a_i - b_i)^2)).
// Vectors of different length are a caller error and are never truncated.
func EuclideanDistance(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}
