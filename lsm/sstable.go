package lsm

import (
	"bufio"
	"errors"
	"io"
	"os"

	"github.com/danish45007/velocitybloom"
)

// EntrySize is the size of an entry in the SSTable.
type EntrySize int64

// SSTable is an immutable, sorted, on-disk table of entries.
//
// Each table owns a Bloom filter over its keys so lookups for absent keys
// are answered without touching the file. The filter is not persisted: it
// is rebuilt from the key index whenever the table is opened.
type SSTable struct {
	filter     *velocitybloom.Filter // Bloom filter over the keys of the SSTable.
	index      []IndexEntry          // Index for the SSTable, sorted by key.
	file       *os.File              // File handle for on-disk ssTable file storage.
	dataOffset EntrySize             // Offset from where the actual entries start in the file.
	size       EntrySize             // Total size of the file.
}

// SSTableIterator is an iterator for SSTable
type SSTableIterator struct {
	reader    *bufio.Reader // buffered reader over the data section.
	remaining int64         // bytes left in the data section.
	err       error         // first read error, if any.
	Value     *Entry        // current entry.
}

/*
SerializeToSSTable writes a sorted list of entries to file in SSTable format.
The format of the SSTable file is as follows:
1. Index size (EntrySize, little-endian)
2. Index data (protobuf wire format)
3. Data entries

The data entries are written in the following format:
1. Size of the entry (EntrySize, little-endian)
2. Entry data (protobuf wire format)

The filter options configure the Bloom filter built for the table.
*/
func SerializeToSSTable(entries []*Entry, filename string, opts ...velocitybloom.Option) (*SSTable, error) {
	if len(entries) == 0 {
		return nil, errEmptyTable
	}
	filter, index, buffEntries, err := generateMetaDataAndEntriesBuffer(entries, opts...)
	if err != nil {
		return nil, err
	}
	dataOffset, size, err := writeToSSTable(filename, marshalIndex(index), buffEntries)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	return &SSTable{
		filter:     filter,
		index:      index,
		file:       file,
		dataOffset: dataOffset,
		size:       size,
	}, nil
}

// OpenSSTable opens an SSTable file and returns an SSTable object for reading.
func OpenSSTable(filename string, opts ...velocitybloom.Option) (*SSTable, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	index, dataOffset, err := readSSTableMetadata(file, EntrySize(info.Size()))
	if err != nil {
		file.Close()
		return nil, err
	}
	filter, err := buildFilter(index, opts...)
	if err != nil {
		file.Close()
		return nil, err
	}
	return &SSTable{
		filter:     filter,
		index:      index,
		file:       file,
		dataOffset: dataOffset,
		size:       EntrySize(info.Size()),
	}, nil
}

// Close closes the SSTable file.
func (s *SSTable) Close() error {
	return s.file.Close()
}

// Name returns the path of the SSTable file.
func (s *SSTable) Name() string {
	return s.file.Name()
}

// Len returns the number of entries in the SSTable.
func (s *SSTable) Len() int {
	return len(s.index)
}

// Filter returns the Bloom filter of the SSTable.
func (s *SSTable) Filter() *velocitybloom.Filter {
	return s.filter
}

// MayContain reports whether the SSTable may hold an entry for key. A false
// result means the key is definitely absent.
func (s *SSTable) MayContain(key string) bool {
	return s.filter.Check([]byte(key))
}

// lookup finds key through the index without consulting the filter. It
// returns nil if the key is not in the table.
func (s *SSTable) lookup(key string) (*Entry, error) {
	offset, found := findOffsetForKey(key, s.index)
	if !found {
		return nil, nil
	}
	// offsets in the index are relative to the start of the data entries.
	return readEntryAt(s.file, s.dataOffset+offset, s.size)
}

// RangeScan returns all the entries in the SSTable that have keys in the range [startKey, endKey] inclusive.
func (s *SSTable) RangeScan(startKey, endKey string) ([]*Entry, error) {
	startOffset, found := findStartOffsetForRangeScan(s.index, startKey)
	if !found {
		return nil, nil
	}
	it := s.iteratorAt(startOffset)
	var results []*Entry
	for entry := it.Next(); entry != nil; entry = it.Next() {
		if entry.Key > endKey {
			break
		}
		results = append(results, entry)
	}
	return results, it.Err()
}

// Front returns an Iterator for the SSTable positioned at the first entry.
// It returns nil if the table cannot be read.
func (s *SSTable) Front() *SSTableIterator {
	it := s.iteratorAt(InitialOffset)
	if it.Next() == nil {
		return nil
	}
	return it
}

// iteratorAt returns an iterator that reads entries starting at offset,
// relative to the start of the data entries. The first call to Next
// returns the entry at offset.
func (s *SSTable) iteratorAt(offset EntrySize) *SSTableIterator {
	start := int64(s.dataOffset + offset)
	remaining := int64(s.size) - start
	section := io.NewSectionReader(s.file, start, remaining)
	return &SSTableIterator{reader: bufio.NewReader(section), remaining: remaining}
}

// Next advances the iterator and returns the new current entry, or nil when
// the table is exhausted or unreadable.
func (it *SSTableIterator) Next() *Entry {
	entry, n, err := readNextEntry(it.reader, it.remaining)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			log.Errorf("Failed to read sstable entry: %v", err)
			it.err = err
		}
		it.Value = nil
		return nil
	}
	it.remaining -= n
	it.Value = entry
	return entry
}

// Err returns the first read error encountered by the iterator, if any.
func (it *SSTableIterator) Err() error {
	return it.err
}
