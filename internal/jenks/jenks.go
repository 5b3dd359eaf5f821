// Package jenks implements Jenks natural breaks optimization: a 1-D
// clustering that partitions a sorted sample into k classes while minimizing
// the sum of within-class variance (equivalently, maximizing the variance
// between classes). The Migrator uses it to group processes by average
// run-burst length; no natural-breaks package exists in this module's
// dependency graph, so the classic Fisher-Jenks dynamic program is
// implemented here directly.
package jenks

import (
	"math"
	"sort"
)

// Breaks returns k+1 class boundaries for data: Breaks[0] is the minimum
// value, Breaks[k] is the maximum, and Breaks[1:k] are the upper bounds of
// the first k-1 classes. data need not be sorted. If k <= 0 or data is
// empty, Breaks returns nil. If k >= len(data), k is clamped to len(data),
// every value is its own class, and Breaks returns len(data)+1 boundaries.
func Breaks(data []float64, k int) []float64 {
	if len(data) == 0 || k <= 0 {
		return nil
	}
	if k > len(data) {
		k = len(data)
	}

	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	n := len(sorted)

	if k == 1 {
		return []float64{sorted[0], sorted[n-1]}
	}

	// lowerClassLimits[i][j] is the optimal index (1-based) at which the
	// j-th class begins, when classifying the first i values into j
	// classes. varCombinations[i][j] is the sum of within-class variances
	// for that optimal classification.
	lowerClassLimits := make([][]int, n+1)
	varCombinations := make([][]float64, n+1)
	for i := range lowerClassLimits {
		lowerClassLimits[i] = make([]int, k+1)
		varCombinations[i] = make([]float64, k+1)
	}
	for j := 1; j <= k; j++ {
		lowerClassLimits[1][j] = 1
		varCombinations[1][j] = 0
		for i := 2; i <= n; i++ {
			varCombinations[i][j] = math.MaxFloat64
		}
	}

	for l := 2; l <= n; l++ {
		var sum, sumSquares, w float64
		for m := 1; m <= l; m++ {
			lowerLimit := l - m + 1
			val := sorted[lowerLimit-1]

			w++
			sum += val
			sumSquares += val * val
			variance := sumSquares - (sum*sum)/w

			i4 := lowerLimit - 1
			if i4 != 0 {
				for j := 2; j <= k; j++ {
					candidate := variance + varCombinations[i4][j-1]
					if varCombinations[l][j] >= candidate {
						lowerClassLimits[l][j] = lowerLimit
						varCombinations[l][j] = candidate
					}
				}
			}
		}
		lowerClassLimits[l][1] = 1
		varCombinations[l][1] = sumSquares - (sum*sum)/w
	}

	// Walk the lowerClassLimits table backwards to recover the boundary
	// between each class and the next.
	breaks := make([]float64, k+1)
	breaks[k] = sorted[n-1]
	breaks[0] = sorted[0]

	classBoundary := n
	for countNum := k; countNum >= 2; countNum-- {
		idx := lowerClassLimits[classBoundary][countNum] - 2
		if idx < 0 {
			idx = 0
		}
		breaks[countNum-1] = sorted[idx]
		classBoundary = lowerClassLimits[classBoundary][countNum] - 1
	}

	return breaks
}
