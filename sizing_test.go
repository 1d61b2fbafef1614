package velocitybloom

import (
	"testing"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/stretchr/testify/assert"
)

func TestFPRateSizer(t *testing.T) {
	tests := []struct {
		capacity uint64
		rate     float64
		m, k     uint64
	}{
		{capacity: 1, rate: 0.01, m: 10, k: 7},
		{capacity: 10, rate: 0.01, m: 96, k: 7},
		{capacity: 1000, rate: 0.01, m: 9586, k: 7},
		{capacity: 1000, rate: 0.1, m: 4793, k: 3},
	}
	for _, test := range tests {
		s := FPRateSizer{Rate: test.rate}
		m := s.SizeFor(test.capacity)
		assert.Equal(t, test.m, m, "m for n=%d p=%v", test.capacity, test.rate)
		assert.Equal(t, test.k, s.ProbesFor(test.capacity, m), "k for n=%d p=%v", test.capacity, test.rate)
	}
}

func TestFPRateSizerNeverReturnsZero(t *testing.T) {
	s := FPRateSizer{Rate: 0.999}
	m := s.SizeFor(1)
	assert.Equal(t, uint64(1), m)
	assert.Equal(t, uint64(1), s.ProbesFor(1, m))
	assert.Equal(t, uint64(1), s.ProbesFor(0, 0))
}

func TestSizerRateOutOfRange(t *testing.T) {
	def := FPRateSizer{Rate: DefaultFalsePositiveRate}
	for _, rate := range []float64{0, -1, 1, 2} {
		s := FPRateSizer{Rate: rate}
		assert.Equal(t, def.SizeFor(10), s.SizeFor(10), "rate %v", rate)

		e := EstimatingSizer{Rate: rate}
		assert.Equal(t, EstimatingSizer{Rate: DefaultFalsePositiveRate}.SizeFor(10), e.SizeFor(10), "rate %v", rate)
	}
}

func TestEstimatingSizerMatchesBitsAndBlooms(t *testing.T) {
	for _, n := range []uint64{1, 10, 1000, 123456} {
		s := EstimatingSizer{Rate: 0.01}
		wantM, wantK := bloom.EstimateParameters(uint(n), 0.01)

		m := s.SizeFor(n)
		assert.Equal(t, uint64(wantM), m)
		assert.Equal(t, uint64(wantK), s.ProbesFor(n, m))
	}
}

func TestEstimatingSizerAgreesOnBitCount(t *testing.T) {
	closed := FPRateSizer{Rate: 0.01}
	estimated := EstimatingSizer{Rate: 0.01}
	assert.Equal(t, closed.SizeFor(5000), estimated.SizeFor(5000))
}

func TestFixedSizer(t *testing.T) {
	s := FixedSizer{M: 128, K: 4}
	assert.Equal(t, uint64(128), s.SizeFor(1))
	assert.Equal(t, uint64(128), s.SizeFor(1<<40))
	assert.Equal(t, uint64(4), s.ProbesFor(7, 128))
}
