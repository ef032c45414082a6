package stats

import "math"

// ZTest runs a two-proportion z-test between a variant (c1 conversions over
// n1 exposures) and control (c2 over n2). It returns the z statistic, a
// confidence level as a 0-100 percentage, and whether the difference is
// significant at the 95% level.
//
// The level maps z through fixed tiers (1.96 -> 95, 1.64 -> 90, 1.28 -> 80)
// with a smooth normal-CDF fallback below, so small samples report a
// graded number instead of flapping between 0 and 80.
func ZTest(c1, n1, c2, n2 int) (z float64, level float64, significant bool) {
	if n1 == 0 || n2 == 0 {
		return 0, 0, false
	}

	p1 := float64(c1) / float64(n1)
	p2 := float64(c2) / float64(n2)

	// Pooled proportion under the null hypothesis p1 == p2.
	pooled := float64(c1+c2) / float64(n1+n2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(n1) + 1/float64(n2)))
	if se == 0 {
		return 0, 0, false
	}

	z = math.Abs(p1-p2) / se

	switch {
	case z >= 1.96:
		level = 95
	case z >= 1.64:
		level = 90
	case z >= 1.28:
		level = 80
	default:
		level = (2*normalCDF(z) - 1) * 100
	}

	return z, level, z >= 1.96
}

// normalCDF approximates the standard normal CDF using Abramowitz and
// Stegun formula 7.1.26.
func normalCDF(x float64) float64 {
	a1 := 0.254829592
	a2 := -0.284496736
	a3 := 1.421413741
	a4 := -1.453152027
	a5 := 1.061405429
	p := 0.3275911

	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	x = math.Abs(x) / math.Sqrt(2)

	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)

	return 0.5 * (1.0 + sign*y)
}
