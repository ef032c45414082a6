// Package bucket maps identifier strings to stable pseudo-random buckets.
// Assignment stability across restarts and reimplementations depends on the
// exact hash below, so it is fixed by contract: a Java-style polynomial
// rolling hash (h = h*31 + byte) with 32-bit wraparound, absolute value,
// reduced modulo 10000.
package bucket

import "github.com/carsuggester/roadtest/internal/store"

// Buckets is the output range of Bucket: [0, Buckets). 10000 buckets give
// two-decimal percentile resolution.
const Buckets = 10000

// Bucket returns the bucket for a seed, in [0, Buckets). Same seed, same
// bucket, on every platform and in every run.
func Bucket(seed string) int {
	var h int32
	for i := 0; i < len(seed); i++ {
		h = h*31 + int32(seed[i])
	}
	// Negate in 64 bits: -MinInt32 does not fit in an int32.
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return int(v % Buckets)
}

// Percent returns the seed's position on a [0, 100) percentage line.
func Percent(seed string) float64 {
	return float64(Bucket(seed)) / 100.0
}

// InclusionSeed composes the seed for the traffic-allocation draw.
func InclusionSeed(userID, experimentID string) string {
	return userID + experimentID
}

// VariantSeed composes the seed for the variant-selection draw. It differs
// from the inclusion seed so the two decisions are not correlated.
func VariantSeed(userID, experimentID string) string {
	return userID + experimentID + "variant"
}

// FlagSeed composes the seed for a feature-flag rollout draw.
func FlagSeed(userID, flagID string) string {
	return userID + flagID
}

// SelectVariant walks the variant list accumulating allocations and returns
// the first variant whose cumulative allocation exceeds percent. This is a
// cumulative-distribution draw: order decides which sub-range of the line a
// variant owns, not how much of it. When allocations do not sum to 100 the
// draw can fall off the end; the second return is false and the caller
// treats it as no assignment.
func SelectVariant(percent float64, variants []store.Variant) (*store.Variant, bool) {
	cumulative := 0.0
	for i := range variants {
		cumulative += variants[i].Allocation
		if percent < cumulative {
			return &variants[i], true
		}
	}
	return nil, false
}
