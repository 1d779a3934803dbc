package poly

import (
	"math"

	"github.com/cwbudde/polyroot/internal/opt"
)

// BestIndex returns the index of the residual with the smallest norm.
// Ties go to the earliest entry and NaN norms never beat a number.
// It returns -1 for an empty input.
func BestIndex(resids [][]float64, norm opt.NormFunc) int {
	return argmin(len(resids), func(i int) float64 { return norm(resids[i]) })
}

// BestOf returns the solution with the smallest residual norm, or nil.
func BestOf(sols []*opt.Solution, norm opt.NormFunc) *opt.Solution {
	i := argmin(len(sols), func(i int) float64 { return sols[i].ResidualNorm(norm) })
	if i < 0 {
		return nil
	}
	return sols[i]
}

func argmin(n int, normAt func(i int) float64) int {
	if n == 0 {
		return -1
	}
	best, bestNorm := 0, normAt(0)
	for i := 1; i < n; i++ {
		if v := normAt(i); better(v, bestNorm) {
			best, bestNorm = i, v
		}
	}
	return best
}

// better reports whether a strictly improves on b.
func better(a, b float64) bool {
	if math.IsNaN(a) {
		return false
	}
	return a < b || math.IsNaN(b)
}
