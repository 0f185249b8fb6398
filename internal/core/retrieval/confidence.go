package retrieval

import "math"

const (
	bonusSimilarityThreshold = 0.7
	bonusConfidence          = 0.1
)

// Score converts the distances of one query's surviving results into a confidence in [0, 1].
//
// base = clamp(1 - mean(d)); when the best similarity (1 - min(d)) exceeds 0.7 the bonus is
// added and the sum clamped again. The result is rounded to 3 decimals. Not a calibrated
// probability.
func Score(distances []float64) float64 {
	if len(distances) == 0 {
		return 0
	}

	sum := 0.0
	minDistance := distances[0]
	for _, d := range distances {
		sum += d
		if d < minDistance {
			minDistance = d
		}
	}
	avg := sum / float64(len(distances))

	confidence := clamp01(1 - avg)
	if 1-minDistance > bonusSimilarityThreshold {
		confidence = clamp01(confidence + bonusConfidence)
	}
	return math.Round(confidence*1000) / 1000
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
