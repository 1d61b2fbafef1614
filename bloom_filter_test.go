package velocitybloom

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubHashes maps payloads to fixed probe hashes so tests do not depend on
// the statistical behaviour of a real hash.
func stubHashes(table map[string][]uint64) HashFamily {
	return HashFunc(func(payload []byte, seed uint64) uint64 {
		if h, ok := table[string(payload)]; ok && seed < uint64(len(h)) {
			return h[seed]
		}
		return uint64(len(payload)) + seed
	})
}

// recordingVector is a BitVector that records every Set call.
type recordingVector struct {
	bits []bool
	sets int
}

func newRecordingVector(size uint64) *recordingVector {
	return &recordingVector{bits: make([]bool, size)}
}

func (r *recordingVector) Set(i uint64)        { r.bits[i] = true; r.sets++ }
func (r *recordingVector) IsSet(i uint64) bool { return r.bits[i] }
func (r *recordingVector) Len() uint64         { return uint64(len(r.bits)) }

func (r *recordingVector) snapshot() []bool {
	return append([]bool(nil), r.bits...)
}

func TestNewFilterDefaults(t *testing.T) {
	f, err := NewFilter(10)
	require.NoError(t, err)

	assert.Equal(t, uint64(96), f.Bits())
	assert.Equal(t, uint64(7), f.Probes())
	assert.Equal(t, uint64(10), f.Capacity())
	assert.Equal(t, uint64(0), f.Count())
	assert.False(t, f.Full())
	assert.Equal(t, float64(0), f.FillRatio())
	assert.Equal(t, float64(0), f.EstimatedFPRate())
}

func TestNewFilterRejectsBadParameters(t *testing.T) {
	_, err := NewFilter(0)
	assert.ErrorIs(t, err, ErrZeroCapacity)

	for _, rate := range []float64{0, 1, -0.5, 1.5} {
		_, err = NewFilter(10, WithFalsePositiveRate(rate))
		assert.ErrorIs(t, err, ErrInvalidFPRate, "rate %v", rate)
	}

	_, err = NewFilter(10, WithSizer(FixedSizer{M: 0, K: 3}))
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = NewFilter(10, WithSizer(FixedSizer{M: 64, K: 0}))
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = NewFilter(10, WithSizer(FixedSizer{M: MaxBits + 1, K: 3}))
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = NewFilter(10, WithSizer(FixedSizer{M: 64, K: MaxProbes + 1}))
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestNewFilterZeroValueSizers(t *testing.T) {
	for _, sizer := range []Sizer{FPRateSizer{}, EstimatingSizer{}} {
		f, err := NewFilter(10, WithSizer(sizer))
		if !assert.NoError(t, err, "%T", sizer) {
			continue
		}
		assert.LessOrEqual(t, f.Bits(), uint64(100), "%T", sizer)
		assert.LessOrEqual(t, f.Probes(), uint64(7), "%T", sizer)
	}
}

func TestFilterHelloWorldMars(t *testing.T) {
	hashes := stubHashes(map[string][]uint64{
		"hello": {1, 2},
		"world": {3, 4},
		"mars":  {5, 1},
	})
	f, err := NewFilter(10, WithSizer(FixedSizer{M: 16, K: 2}), WithHashFamily(hashes))
	require.NoError(t, err)

	f.Add([]byte("hello"))
	f.Add([]byte("world"))

	assert.True(t, f.Check([]byte("hello")))
	assert.True(t, f.Check([]byte("world")))
	assert.False(t, f.Check([]byte("mars")))
	assert.Equal(t, uint64(2), f.Count())
}

func TestFilterCapacityOne(t *testing.T) {
	f, err := NewFilter(1)
	require.NoError(t, err)

	assert.True(t, f.Accept([]byte("a")))
	assert.False(t, f.Accept([]byte("b")))

	assert.True(t, f.Check([]byte("a")))
	assert.Equal(t, uint64(1), f.Count())
	assert.True(t, f.Full())
}

func TestFilterCapacityGate(t *testing.T) {
	var vec *recordingVector
	f, err := NewFilter(5, WithBitVector(func(size uint64) BitVector {
		vec = newRecordingVector(size)
		return vec
	}))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		f.Add([]byte(fmt.Sprintf("key-%d", i)))
	}
	require.True(t, f.Full())

	before := vec.snapshot()
	sets := vec.sets

	f.Add([]byte("one-too-many"))

	assert.Equal(t, uint64(5), f.Count())
	assert.Equal(t, sets, vec.sets, "no bit may be touched past capacity")
	assert.Equal(t, before, vec.bits)
}

func TestFilterBitsAreMonotonic(t *testing.T) {
	var vec *recordingVector
	f, err := NewFilter(50, WithBitVector(func(size uint64) BitVector {
		vec = newRecordingVector(size)
		return vec
	}))
	require.NoError(t, err)

	prev := vec.snapshot()
	for i := 0; i < 60; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		f.Add(key)
		f.Check(key)
		f.Check([]byte(fmt.Sprintf("absent-%d", i)))

		for j, set := range prev {
			if set {
				require.True(t, vec.bits[j], "bit %d cleared after insert %d", j, i)
			}
		}
		prev = vec.snapshot()
	}
}

func TestFilterNoFalseNegatives(t *testing.T) {
	families := map[string]HashFamily{
		"murmur3": Murmur3{},
		"xxhash":  XXHash{},
		"siphash": SipHash{Key0: 0x0706050403020100, Key1: 0x0f0e0d0c0b0a0908},
	}
	for name, h := range families {
		t.Run(name, func(t *testing.T) {
			const n = 2000
			f, err := NewFilter(n, WithHashFamily(h))
			require.NoError(t, err)

			for i := 0; i < n; i++ {
				f.Add([]byte(fmt.Sprintf("item-%d", i)))
			}
			for i := 0; i < n; i++ {
				assert.True(t, f.Check([]byte(fmt.Sprintf("item-%d", i))), "item-%d", i)
			}
			assert.True(t, f.Full())
		})
	}
}

func TestFilterEmptyPayload(t *testing.T) {
	f, err := NewFilter(4)
	require.NoError(t, err)

	f.Add(nil)
	assert.True(t, f.Check([]byte{}))
	assert.Equal(t, uint64(1), f.Count())
}

func TestFilterDuplicateInsertConsumesCapacity(t *testing.T) {
	f, err := NewFilter(3)
	require.NoError(t, err)

	f.Add([]byte("dup"))
	f.Add([]byte("dup"))
	assert.True(t, f.Check([]byte("dup")))
	assert.Equal(t, uint64(2), f.Count())

	f.Add([]byte("dup"))
	assert.True(t, f.Full())
	assert.False(t, f.Accept([]byte("fresh")))
}

func TestFilterSlotIsDeterministic(t *testing.T) {
	f, err := NewFilter(100)
	require.NoError(t, err)

	payload := []byte("determinism")
	for i := uint64(0); i < f.Probes(); i++ {
		first := f.slot(payload, i)
		assert.Less(t, first, f.Bits())
		for j := 0; j < 10; j++ {
			assert.Equal(t, first, f.slot(payload, i))
		}
	}
}

func TestFilterFalsePositiveRate(t *testing.T) {
	const n = 10000
	f, err := NewFilter(n)
	require.NoError(t, err)

	for i := 0; i < n; i++ {
		f.Add([]byte(fmt.Sprintf("present-%d", i)))
	}
	require.True(t, f.Full())

	falsePositives := 0
	for i := 0; i < n; i++ {
		if f.Check([]byte(fmt.Sprintf("absent-%d", i))) {
			falsePositives++
		}
	}
	assert.Less(t, float64(falsePositives)/n, 2*DefaultFalsePositiveRate)
	assert.InDelta(t, DefaultFalsePositiveRate, f.EstimatedFPRate(), 0.002)
	assert.InDelta(t, 0.5, f.FillRatio(), 0.05)
}

func TestFilterFillRatioUnsupported(t *testing.T) {
	f, err := NewFilter(8, WithBitVector(func(size uint64) BitVector {
		return newRecordingVector(size)
	}))
	require.NoError(t, err)
	assert.Equal(t, float64(-1), f.FillRatio())
}
