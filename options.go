package velocitybloom

// WithFalsePositiveRate sets the target false positive rate used by the
// default sizer. It has no effect when WithSizer is also given.
func WithFalsePositiveRate(rate float64) Option {
	return func(c *filterConfig) {
		c.fpRate = rate
	}
}

// WithSizer replaces the sizing oracle that chooses m and k.
func WithSizer(s Sizer) Option {
	return func(c *filterConfig) {
		c.sizer = s
	}
}

// WithHashFamily replaces the seeded hash family used to derive probe
// indices.
func WithHashFamily(h HashFamily) Option {
	return func(c *filterConfig) {
		c.hashes = h
	}
}

// WithBitVector replaces the constructor of the filter's bit array.
func WithBitVector(factory BitVectorFactory) Option {
	return func(c *filterConfig) {
		c.newVector = factory
	}
}
