package lsm

import (
	"sync/atomic"
	"time"

	"github.com/huandu/skiplist"
)

// Memtable is a memory table that supports fast writes, reads, deletes, and range scans.
// It uses a skip list as the underlying data structure to store entries.
type Memtable struct {
	data          *skiplist.SkipList // Skip list to store entries by key.
	size          int64              // Size of the memtable in bytes.
	lastTimestamp int64              // Newest timestamp written to the memtable.
}

// NewMemtable creates a new memtable.
func NewMemtable() *Memtable {
	return &Memtable{
		data: skiplist.New(skiplist.String), // Create a new skip list with string keys.
	}
}

// apply stores an already stamped entry, replacing any entry for its key.
// A delete is applied as a tombstone entry. Not Thread-Safe Implementation.
func (m *Memtable) apply(entry *Entry) {
	if existing := m.data.Get(entry.Key); existing != nil {
		// the key is already accounted for, only the value changes.
		m.size -= int64(len(existing.Value.(*Entry).Value))
	} else {
		m.size += int64(len(entry.Key))
	}
	m.data.Set(entry.Key, entry)
	m.size += int64(len(entry.Value))
	if entry.Timestamp > m.lastTimestamp {
		m.lastTimestamp = entry.Timestamp
	}
}

// Get retrieves the entry for a given key from the memtable, Not Thread-Safe Implementation.
// Tombstones are returned as well; the caller checks the Command field.
func (m *Memtable) Get(key string) *Entry {
	elem := m.data.Get(key)
	if elem == nil {
		return nil
	}
	return elem.Value.(*Entry)
}

// RangeScan returns all entries in the memtable within the given key range, Not Thread-Safe Implementation.
// The startKey is inclusive, and the endKey is inclusive. Tombstones are included.
func (m *Memtable) RangeScan(startKey, endKey string) []*Entry {
	var results []*Entry
	// Find the first entry that is greater than or equal to the start key.
	for elem := m.data.Find(startKey); elem != nil; elem = elem.Next() {
		if elem.Key().(string) > endKey {
			break
		}
		results = append(results, elem.Value.(*Entry))
	}
	return results
}

// SizeInBytes returns the size of the memtable in bytes. Not Thread-Safe Implementation.
func (m *Memtable) SizeInBytes() int64 {
	return m.size
}

// Len returns the number of keys in the memtable. Not Thread-Safe Implementation.
func (m *Memtable) Len() int {
	return m.data.Len()
}

// GenerateEntries returns the memtable entries in sorted key order. Not Thread-Safe Implementation.
func (m *Memtable) GenerateEntries() []*Entry {
	results := make([]*Entry, 0, m.data.Len())
	for elem := m.data.Front(); elem != nil; elem = elem.Next() {
		results = append(results, elem.Value.(*Entry))
	}
	return results
}

// lastTimestamp is the most recent timestamp handed out by nextTimestamp.
var lastTimestamp atomic.Int64

// nextTimestamp returns the current time in nanoseconds, bumped when needed
// so that timestamps are strictly increasing within the process. Merges
// resolve duplicate keys by timestamp, so two writes must never tie.
func nextTimestamp() int64 {
	for {
		last := lastTimestamp.Load()
		ts := time.Now().UnixNano()
		if ts <= last {
			ts = last + 1
		}
		if lastTimestamp.CompareAndSwap(last, ts) {
			return ts
		}
	}
}

// observeTimestamp makes later timestamps from nextTimestamp newer than ts.
func observeTimestamp(ts int64) {
	for {
		last := lastTimestamp.Load()
		if ts <= last || lastTimestamp.CompareAndSwap(last, ts) {
			return
		}
	}
}

// newEntry returns a new Entry stamped with the next timestamp.
func newEntry(key string, value []byte, command Command) *Entry {
	return &Entry{
		Key:       key,
		Value:     value,
		Command:   command,
		Timestamp: nextTimestamp(),
	}
}
