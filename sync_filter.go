package velocitybloom

import "sync"

// SyncFilter wraps a Filter with a read-write mutex so it can be shared
// between goroutines. Add and Accept take the write lock, every read takes
// the read lock.
type SyncFilter struct {
	mtx sync.RWMutex
	f   *Filter
}

// NewSyncFilter creates a SyncFilter around a new Filter. The arguments are
// those of NewFilter.
func NewSyncFilter(capacity uint64, opts ...Option) (*SyncFilter, error) {
	f, err := NewFilter(capacity, opts...)
	if err != nil {
		return nil, err
	}
	return &SyncFilter{f: f}, nil
}

// Add inserts payload. See Filter.Add.
func (s *SyncFilter) Add(payload []byte) {
	s.mtx.Lock()
	s.f.Add(payload)
	s.mtx.Unlock()
}

// Accept inserts payload and reports whether the insert was accepted. See
// Filter.Accept.
func (s *SyncFilter) Accept(payload []byte) bool {
	s.mtx.Lock()
	accepted := s.f.Accept(payload)
	s.mtx.Unlock()
	return accepted
}

// Check reports whether payload may have been added. See Filter.Check.
func (s *SyncFilter) Check(payload []byte) bool {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.f.Check(payload)
}

// Count returns the number of accepted inserts.
func (s *SyncFilter) Count() uint64 {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.f.Count()
}

// Full reports whether the filter ignores further inserts.
func (s *SyncFilter) Full() bool {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.f.Full()
}

// Capacity returns the number of inserts the filter was sized for.
func (s *SyncFilter) Capacity() uint64 {
	return s.f.Capacity()
}
