package velocitybloom

import (
	"github.com/cespare/xxhash/v2"
	"github.com/dchest/siphash"
	"github.com/spaolacci/murmur3"
)

// HashFamily produces a 64-bit hash of a payload for a given seed. Distinct
// seeds must yield near-independent outputs over the same payload, and the
// same payload and seed must always hash to the same value.
type HashFamily interface {
	Hash(payload []byte, seed uint64) uint64
}

// HashFunc adapts an ordinary function to the HashFamily interface.
type HashFunc func(payload []byte, seed uint64) uint64

// Hash calls fn(payload, seed).
func (fn HashFunc) Hash(payload []byte, seed uint64) uint64 {
	return fn(payload, seed)
}

// Murmur3 is the default hash family: the 64-bit murmur3 hash seeded with
// the probe number.
type Murmur3 struct{}

// Hash returns murmur3.Sum64WithSeed(payload, seed). Only the low 32 bits of
// the seed are used.
func (Murmur3) Hash(payload []byte, seed uint64) uint64 {
	return murmur3.Sum64WithSeed(payload, uint32(seed))
}

// XXHash is a hash family built on seeded xxhash64.
type XXHash struct{}

// Hash returns the xxhash64 of payload using seed.
func (XXHash) Hash(payload []byte, seed uint64) uint64 {
	d := xxhash.NewWithSeed(seed)
	d.Write(payload)
	return d.Sum64()
}

// SipHash is a keyed hash family built on SipHash-2-4. Keeping the key
// secret prevents callers from grinding payloads that collide in the
// filter.
type SipHash struct {
	Key0, Key1 uint64
}

// Hash returns SipHash-2-4 of payload with the second key half offset by
// seed.
func (h SipHash) Hash(payload []byte, seed uint64) uint64 {
	return siphash.Hash(h.Key0, h.Key1+seed, payload)
}

// HashFamilyByName returns the hash family registered under name: "murmur3",
// "xxhash" or "siphash" (zero key). The second result is false for an
// unknown name.
func HashFamilyByName(name string) (HashFamily, bool) {
	switch name {
	case "murmur3":
		return Murmur3{}, true
	case "xxhash":
		return XXHash{}, true
	case "siphash":
		return SipHash{}, true
	}
	return nil, false
}
