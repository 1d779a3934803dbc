package opt

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// NormFunc reduces a residual vector to a scalar.
type NormFunc func(v []float64) float64

// L2Norm is the Euclidean norm. It is the default for residual comparison.
func L2Norm(v []float64) float64 {
	return floats.Norm(v, 2)
}

// InfNorm is the maximum absolute entry. Termination tests use it.
func InfNorm(v []float64) float64 {
	return floats.Norm(v, math.Inf(1))
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
