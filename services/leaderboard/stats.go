package leaderboard

import "sort"

// rankingStatistics expects scores sorted in descending order.
func rankingStatistics(scores []float64) *RankingStatistics {
	n := len(scores)
	if n == 0 {
		return &RankingStatistics{}
	}

	var sum float64
	for _, s := range scores {
		sum += s
	}

	return &RankingStatistics{
		TotalUsers:                 n,
		TopOwnershipPercentage:     scores[0],
		AverageOwnershipPercentage: sum / float64(n),
		MedianOwnershipPercentage:  scores[n/2],
		GiniCoefficient:            giniCoefficient(scores),
	}
}

// giniCoefficient is 0 for perfect equality and approaches 1 as one holder
// owns everything.
func giniCoefficient(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	if sum == 0 {
		return 0
	}

	var g float64
	for i, v := range sorted {
		g += float64(2*(i+1)-n-1) * v
	}
	return g / (float64(n) * sum)
}
