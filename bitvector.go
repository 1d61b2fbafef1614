package velocitybloom

import "github.com/bits-and-blooms/bitset"

// BitVector is a fixed-size array of bits. Indices passed to Set and IsSet
// must be less than Len.
type BitVector interface {
	Set(i uint64)
	IsSet(i uint64) bool
	Len() uint64
}

// BitVectorFactory returns a BitVector of size bits, all unset.
type BitVectorFactory func(size uint64) BitVector

// Bitset is the default BitVector, backed by a bits-and-blooms bitset.
type Bitset struct {
	set  *bitset.BitSet
	size uint64
}

// NewBitset returns a Bitset of size bits, all unset.
func NewBitset(size uint64) BitVector {
	return &Bitset{
		set:  bitset.New(uint(size)),
		size: size,
	}
}

// Set sets bit i.
func (b *Bitset) Set(i uint64) {
	b.set.Set(uint(i))
}

// IsSet reports whether bit i is set.
func (b *Bitset) IsSet(i uint64) bool {
	return b.set.Test(uint(i))
}

// Len returns the number of bits in the vector.
func (b *Bitset) Len() uint64 {
	return b.size
}

// Count returns the number of set bits.
func (b *Bitset) Count() uint64 {
	return uint64(b.set.Count())
}
