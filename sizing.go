package velocitybloom

import (
	"math"

	"github.com/bits-and-blooms/bloom/v3"
)

// DefaultFalsePositiveRate is the target false positive rate of filters
// created without WithFalsePositiveRate or WithSizer.
const DefaultFalsePositiveRate = 0.01

// Sizer chooses the bit array length and probe count for a filter of a
// given capacity. Both methods must be deterministic.
type Sizer interface {
	// SizeFor returns the number of bits m for capacity inserts.
	SizeFor(capacity uint64) uint64

	// ProbesFor returns the number of hash probes k for capacity inserts
	// into m bits.
	ProbesFor(capacity, m uint64) uint64
}

// FPRateSizer uses the closed-form optimum for a target false positive rate:
//
//	m = ceil(-n * ln(p) / ln(2)^2)
//	k = round(m / n * ln(2))
//
// Both results are at least 1. A Rate outside (0, 1), including the zero
// value, sizes for DefaultFalsePositiveRate.
type FPRateSizer struct {
	Rate float64
}

// SizeFor returns the optimal number of bits for capacity inserts at the
// sizer's rate.
func (s FPRateSizer) SizeFor(capacity uint64) uint64 {
	m := math.Ceil(-float64(capacity) * math.Log(validRate(s.Rate)) / (math.Ln2 * math.Ln2))
	return atLeastOne(m)
}

// ProbesFor returns the number of probes that minimizes the false positive
// rate for capacity inserts into m bits.
func (s FPRateSizer) ProbesFor(capacity, m uint64) uint64 {
	if capacity == 0 {
		return 1
	}
	k := math.Round(float64(m) / float64(capacity) * math.Ln2)
	return atLeastOne(k)
}

// EstimatingSizer delegates to the parameter estimation of
// github.com/bits-and-blooms/bloom, which rounds the probe count up instead
// of to the nearest integer. A Rate outside (0, 1) sizes for
// DefaultFalsePositiveRate.
type EstimatingSizer struct {
	Rate float64
}

// SizeFor returns the bit count estimated by bloom.EstimateParameters.
func (s EstimatingSizer) SizeFor(capacity uint64) uint64 {
	m, _ := bloom.EstimateParameters(uint(capacity), validRate(s.Rate))
	return uint64(m)
}

// ProbesFor returns ceil(m / n * ln(2)).
func (s EstimatingSizer) ProbesFor(capacity, m uint64) uint64 {
	if capacity == 0 {
		return 1
	}
	return atLeastOne(math.Ceil(math.Ln2 * float64(m) / float64(capacity)))
}

// FixedSizer always returns the same m and k regardless of capacity.
type FixedSizer struct {
	M, K uint64
}

// SizeFor returns s.M.
func (s FixedSizer) SizeFor(uint64) uint64 { return s.M }

// ProbesFor returns s.K.
func (s FixedSizer) ProbesFor(uint64, uint64) uint64 { return s.K }

func validRate(rate float64) float64 {
	if rate > 0 && rate < 1 {
		return rate
	}
	return DefaultFalsePositiveRate
}

func atLeastOne(v float64) uint64 {
	if v < 1 || math.IsNaN(v) {
		return 1
	}
	return uint64(v)
}
