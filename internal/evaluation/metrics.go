package evaluation

import (
	"math"
	"sort"
)

// Metrics operate on one query: ranked is the run's ordering expressed as
// relevance grades, allGrades holds every grade judged for the query (the
// run may not retrieve all of them). A grade >= threshold counts as
// relevant; this corpus grades binary 0/1 but nothing here assumes that.

// AveragePrecision sums precision at each rank where a relevant document
// appears and divides by the query's total relevant count, so documents
// the run never retrieved still depress the score.
func AveragePrecision(ranked []int, totalRelevant, threshold int) float64 {
	if totalRelevant == 0 {
		return 0
	}

	hits := 0
	sum := 0.0
	for i, grade := range ranked {
		if grade >= threshold {
			hits++
			sum += float64(hits) / float64(i+1)
		}
	}

	return sum / float64(totalRelevant)
}

// NDCG calculates Normalized Discounted Cumulative Gain at k. The ideal
// ordering comes from allGrades, not just the retrieved documents.
func NDCG(ranked []int, allGrades []int, k int) float64 {
	idcg := dcg(idealOrder(allGrades), k)
	if idcg == 0 {
		return 0
	}
	return dcg(ranked, k) / idcg
}

func dcg(grades []int, k int) float64 {
	if k > len(grades) {
		k = len(grades)
	}
	var sum float64
	for i := 0; i < k; i++ {
		sum += float64(grades[i]) / math.Log2(float64(i+2))
	}
	return sum
}

func idealOrder(grades []int) []int {
	sorted := make([]int, len(grades))
	copy(sorted, grades)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	return sorted
}

// Recall calculates the fraction of the query's relevant documents that
// appear in the top k of the run.
func Recall(ranked []int, totalRelevant, k, threshold int) float64 {
	if totalRelevant == 0 {
		return 0
	}
	if k > len(ranked) {
		k = len(ranked)
	}

	hits := 0
	for i := 0; i < k; i++ {
		if ranked[i] >= threshold {
			hits++
		}
	}

	return float64(hits) / float64(totalRelevant)
}
