package velocitybloom

import "errors"

var (
	// ErrZeroCapacity is returned when a filter is requested for zero
	// inserts.
	ErrZeroCapacity = errors.New("velocitybloom: capacity must be positive")

	// ErrInvalidFPRate is returned when the target false positive rate is
	// not strictly between 0 and 1.
	ErrInvalidFPRate = errors.New("velocitybloom: false positive rate must be in (0, 1)")

	// ErrInvalidSize is returned when a sizer yields a bit count or probe
	// count that is zero or above MaxBits or MaxProbes.
	ErrInvalidSize = errors.New("velocitybloom: sizer returned an unusable bit or probe count")
)
