package training

import "sort"

// rocAUC computes the area under the ROC curve with the rank-sum
// (Mann-Whitney U) formulation, averaging ranks across score ties. The
// second return is false when the labels contain only one class, in which
// case discrimination is undefined.
func rocAUC(labels []int, scores []float64) (float64, bool) {
	n := len(labels)
	if n == 0 || n != len(scores) {
		return 0, false
	}

	var nPos, nNeg float64
	for _, y := range labels {
		if y == 1 {
			nPos++
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0, false
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j < n && scores[idx[j]] == scores[idx[i]] {
			j++
		}
		// 1-based ranks, averaged over the tie group [i, j).
		avg := float64(i+j+1) / 2.0
		for k := i; k < j; k++ {
			ranks[idx[k]] = avg
		}
		i = j
	}

	var rankSumPos float64
	for i, y := range labels {
		if y == 1 {
			rankSumPos += ranks[i]
		}
	}

	return (rankSumPos - nPos*(nPos+1)/2.0) / (nPos * nNeg), true
}
