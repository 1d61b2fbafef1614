package lsm

import (
	"container/heap"

	"github.com/huandu/skiplist"
)

// heap entry for k-way merge algorithm
type heapEntry struct {
	entry     *Entry
	listIndex int              // index of entry source
	index     int              // index of entry in the list
	iterator  *SSTableIterator // iterator for the entry
}

// heap implementation for k-way merge algorithm, ordered by key and then by
// timestamp.
type mergeHeap []heapEntry

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	if h[i].entry.Key != h[j].entry.Key {
		return h[i].entry.Key < h[j].entry.Key
	}
	return h[i].entry.Timestamp < h[j].entry.Timestamp
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) { *h = append(*h, x.(heapEntry)) }

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[0 : n-1]
	return entry
}

// keepNewest records entry in seen unless a more recent entry for the same
// key is already there.
func keepNewest(seen *skiplist.SkipList, entry *Entry) {
	if previous := seen.Get(entry.Key); previous != nil {
		if previous.Value.(*Entry).Timestamp >= entry.Timestamp {
			return
		}
	}
	seen.Set(entry.Key, entry)
}

// mergeRanges performs a k-way merge on the list of possibly overlapping
// ranges and merges them into a single sorted list of key-value pairs
// without duplicates or tombstones. The most recent entry for a key wins.
func mergeRanges(ranges [][]*Entry) []KVPair {
	minHeap := &mergeHeap{}
	heap.Init(minHeap)

	// keep track of the most recent entry for each key, in sorted order of keys
	seen := skiplist.New(skiplist.String)

	// add the first element from each range to the heap
	for i, rangeEntries := range ranges {
		if len(rangeEntries) > 0 {
			heap.Push(minHeap, heapEntry{entry: rangeEntries[0], listIndex: i, index: 0})
		}
	}

	for minHeap.Len() > 0 {
		minEntry := heap.Pop(minHeap).(heapEntry)
		keepNewest(seen, minEntry.entry)

		// add the next element from the same list to the heap
		if next := minEntry.index + 1; next < len(ranges[minEntry.listIndex]) {
			heap.Push(minHeap, heapEntry{
				entry:     ranges[minEntry.listIndex][next],
				listIndex: minEntry.listIndex,
				index:     next,
			})
		}
	}

	var results []KVPair
	for elem := seen.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(*Entry)
		if entry.Command == CommandDelete {
			continue
		}
		results = append(results, KVPair{Key: entry.Key, Value: entry.Value})
	}
	return results
}

// mergeIterators performs a k-way merge on SSTable iterators of possibly
// overlapping ranges and merges them into a single sorted range without
// duplicate keys. The most recent entry for a key wins. Tombstones are kept
// unless dropTombstones is set, which is only safe when no older table can
// hold the key.
func mergeIterators(iterators []*SSTableIterator, dropTombstones bool) ([]*Entry, error) {
	minHeap := &mergeHeap{}
	heap.Init(minHeap)

	seen := skiplist.New(skiplist.String)

	for _, iterator := range iterators {
		if iterator == nil {
			continue
		}
		heap.Push(minHeap, heapEntry{entry: iterator.Value, iterator: iterator})
	}

	for minHeap.Len() > 0 {
		minEntry := heap.Pop(minHeap).(heapEntry)
		keepNewest(seen, minEntry.entry)

		if next := minEntry.iterator.Next(); next != nil {
			heap.Push(minHeap, heapEntry{entry: next, iterator: minEntry.iterator})
		}
	}
	for _, iterator := range iterators {
		if iterator != nil && iterator.Err() != nil {
			return nil, iterator.Err()
		}
	}

	results := make([]*Entry, 0, seen.Len())
	for elem := seen.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(*Entry)
		if dropTombstones && entry.Command == CommandDelete {
			continue
		}
		results = append(results, entry)
	}
	return results, nil
}
