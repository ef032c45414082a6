package stats

import "math"

// z-score for a two-sided 95% interval.
const z95 = 1.96

// ConfidenceScore reports how tight the estimate of a variant's conversion
// rate is, as a 0-100 score derived from the 95% margin of error on the
// binomial proportion: score = (1 - 2*margin) * 100, clamped to [0, 100].
// It is a precision measure for one variant, not a significance test; the
// two are computed from different formulas on purpose and must not be
// conflated.
func ConfidenceScore(conversions, exposures int) float64 {
	if exposures == 0 {
		return 0
	}
	p := float64(conversions) / float64(exposures)
	margin := z95 * math.Sqrt(p*(1-p)/float64(exposures))
	score := (1 - 2*margin) * 100
	return clamp(score, 0, 100)
}

// WilsonInterval is the Wilson score 95% interval for a binomial
// proportion. Better behaved than the normal approximation on small
// samples, which is exactly where operators stare at early results.
func WilsonInterval(successes, trials int) (lower, upper float64) {
	if trials == 0 {
		return 0, 0
	}

	p := float64(successes) / float64(trials)
	n := float64(trials)
	z := z95

	denominator := 1 + z*z/n
	center := (p + z*z/(2*n)) / denominator
	spread := (z / denominator) * math.Sqrt(p*(1-p)/n+z*z/(4*n*n))

	return clamp(center-spread, 0, 1), clamp(center+spread, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
