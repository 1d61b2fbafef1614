package velocitybloom

import (
	"math"

	"github.com/mirkobrombin/go-foundation/pkg/options"
)

const (
	// MaxBits is the largest bit array a filter will allocate.
	MaxBits = 1 << 40

	// MaxProbes is the largest number of probes a filter will perform per
	// operation.
	MaxProbes = 1024
)

// Filter is a fixed-capacity Bloom filter.
//
// A Filter answers "has this payload possibly been added?" without false
// negatives. It is sized once, at construction, for an intended number of
// inserts; once that many inserts have been accepted further calls to Add
// are silently ignored so the false positive rate never exceeds the one the
// filter was sized for.
//
// A Filter is not safe for concurrent mutation. Add requires exclusive
// access, while any number of goroutines may call Check at the same time as
// long as no Add is in flight. See SyncFilter for a locked wrapper.
type Filter struct {
	bits     BitVector  // Bit array of length m, owned by the filter.
	hashes   HashFamily // Seeded hash family used to derive probe indices.
	m        uint64     // Length of the bit array.
	k        uint64     // Number of hash probes per operation.
	capacity uint64     // Number of inserts the filter is sized for.
	count    uint64     // Number of accepted inserts so far.
}

// filterConfig collects the construction options for a Filter.
type filterConfig struct {
	fpRate    float64
	sizer     Sizer
	hashes    HashFamily
	newVector BitVectorFactory
}

// Option configures a Filter at construction time.
type Option = options.Option[filterConfig]

// NewFilter creates a Filter sized for capacity inserts.
//
// Unless overridden with options, the filter targets a false positive rate of
// DefaultFalsePositiveRate, probes with the Murmur3 hash family and stores
// its bits in a bitset. It returns ErrZeroCapacity for a zero capacity,
// ErrInvalidFPRate for a target rate outside (0, 1) and ErrInvalidSize when
// the sizer yields no bits, no probes, more than MaxBits bits or more than
// MaxProbes probes.
func NewFilter(capacity uint64, opts ...Option) (*Filter, error) {
	cfg := filterConfig{
		fpRate:    DefaultFalsePositiveRate,
		hashes:    Murmur3{},
		newVector: NewBitset,
	}
	options.Apply(&cfg, opts...)

	if capacity == 0 {
		return nil, ErrZeroCapacity
	}
	if cfg.sizer == nil {
		if !(cfg.fpRate > 0 && cfg.fpRate < 1) {
			return nil, ErrInvalidFPRate
		}
		cfg.sizer = FPRateSizer{Rate: cfg.fpRate}
	}

	m := cfg.sizer.SizeFor(capacity)
	if m == 0 || m > MaxBits {
		return nil, ErrInvalidSize
	}
	k := cfg.sizer.ProbesFor(capacity, m)
	if k == 0 || k > MaxProbes {
		return nil, ErrInvalidSize
	}

	log.Debugf("New filter: capacity=%d bits=%d probes=%d", capacity, m, k)

	return &Filter{
		bits:     cfg.newVector(m),
		hashes:   cfg.hashes,
		m:        m,
		k:        k,
		capacity: capacity,
	}, nil
}

// slot derives the bit index for probe i of payload. Add and Check must
// derive indices through this method only.
func (f *Filter) slot(payload []byte, i uint64) uint64 {
	return f.hashes.Hash(payload, i) % f.m
}

// Add inserts payload into the filter. It is a no-op once the filter has
// accepted Capacity inserts. Inserting a payload that is already present
// still consumes one unit of capacity.
func (f *Filter) Add(payload []byte) {
	f.Accept(payload)
}

// Accept behaves like Add and reports whether the insert passed the
// capacity gate.
func (f *Filter) Accept(payload []byte) bool {
	if f.count == f.capacity {
		return false
	}
	for i := uint64(0); i < f.k; i++ {
		f.bits.Set(f.slot(payload, i))
	}
	f.count++
	if f.count == f.capacity {
		log.Debugf("Filter reached capacity %d, further inserts are ignored",
			f.capacity)
	}
	return true
}

// Check reports whether payload may have been added to the filter. A false
// result is definitive; a true result may be a false positive.
func (f *Filter) Check(payload []byte) bool {
	for i := uint64(0); i < f.k; i++ {
		if !f.bits.IsSet(f.slot(payload, i)) {
			return false
		}
	}
	return true
}

// Capacity returns the number of inserts the filter was sized for.
func (f *Filter) Capacity() uint64 {
	return f.capacity
}

// Count returns the number of inserts accepted so far.
func (f *Filter) Count() uint64 {
	return f.count
}

// Full reports whether the filter ignores further inserts.
func (f *Filter) Full() bool {
	return f.count == f.capacity
}

// Bits returns the length of the bit array (m).
func (f *Filter) Bits() uint64 {
	return f.m
}

// Probes returns the number of hash probes per operation (k).
func (f *Filter) Probes() uint64 {
	return f.k
}

// FillRatio returns the fraction of bits that are set. It returns -1 when
// the bit vector is unable to count its set bits.
func (f *Filter) FillRatio() float64 {
	c, ok := f.bits.(interface{ Count() uint64 })
	if !ok {
		return -1
	}
	return float64(c.Count()) / float64(f.m)
}

// EstimatedFPRate returns the expected false positive rate for the current
// number of accepted inserts, (1 - e^(-k*count/m))^k.
func (f *Filter) EstimatedFPRate() float64 {
	k := float64(f.k)
	exp := math.Exp(-k * float64(f.count) / float64(f.m))
	return math.Pow(1-exp, k)
}
