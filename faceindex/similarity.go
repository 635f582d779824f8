package faceindex

import "math"

// DefaultSimilarityThreshold is the L2 distance at which similarity reaches
// 0%. The scale is fixed rather than min-max relative so that percentages
// stay comparable across queries and index snapshots.
const DefaultSimilarityThreshold = 0.6

// DistanceToSimilarity converts a raw L2 distance to a calibrated
// similarity percentage, rounded to two decimal places:
//
//	similarity = max(0, 100 * (1 - distance/threshold))
//
// A distance of 0 maps to 100; distances at or beyond the threshold map
// to 0. The result is monotonically non-increasing in distance.
func DistanceToSimilarity(distance, threshold float64) float64 {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	similarity := 100 * (1 - distance/threshold)
	if similarity < 0 {
		return 0
	}
	return math.Round(similarity*100) / 100
}
