package lsm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/danish45007/velocitybloom"
)

var errEmptyTable = errors.New("lsm: refusing to write an empty sstable")

// Generate a bloom filter, index and entries buffer for the SSTable from a sorted list of entries.
func generateMetaDataAndEntriesBuffer(entries []*Entry, opts ...velocitybloom.Option) (*velocitybloom.Filter, []IndexEntry, *bytes.Buffer, error) {
	filter, err := velocitybloom.NewFilter(uint64(len(entries)), opts...)
	if err != nil {
		return nil, nil, nil, err
	}
	var (
		index         = make([]IndexEntry, 0, len(entries))
		currentOffset = EntrySize(InitialOffset)
		entriesBuffer = new(bytes.Buffer) // Buffer to store the entries.
	)
	for _, entry := range entries {
		data := marshalEntry(entry)
		entrySize := EntrySize(len(data))

		// add the entry to index and bloom filter.
		index = append(index, IndexEntry{
			Key:    entry.Key,
			Offset: int64(currentOffset),
		})
		filter.Add([]byte(entry.Key))

		// entry size is written as a 64-bit integer in little-endian format.
		if err := binary.Write(entriesBuffer, binary.LittleEndian, entrySize); err != nil {
			return nil, nil, nil, err
		}
		entriesBuffer.Write(data)

		// the next entry starts after the size prefix and the entry data.
		currentOffset += EntrySize(binary.Size(entrySize)) + entrySize
	}
	return filter, index, entriesBuffer, nil
}

// buildFilter rebuilds the bloom filter of an SSTable from its index.
func buildFilter(index []IndexEntry, opts ...velocitybloom.Option) (*velocitybloom.Filter, error) {
	if len(index) == 0 {
		return nil, fmt.Errorf("%w: empty index", ErrCorruptTable)
	}
	filter, err := velocitybloom.NewFilter(uint64(len(index)), opts...)
	if err != nil {
		return nil, err
	}
	for _, ie := range index {
		filter.Add([]byte(ie.Key))
	}
	return filter, nil
}

// writeToSSTable writes the index and the entries to a temporary file,
// syncs it and renames it to filename, so a table is either complete or
// absent. It returns the offset at which the data entries start and the
// size of the file.
func writeToSSTable(filename string, indexData []byte, entriesData *bytes.Buffer) (EntrySize, EntrySize, error) {
	tmpName := filename + tmpFileSuffix
	dataOffset, size, err := writeTableFile(tmpName, indexData, entriesData)
	if err != nil {
		os.Remove(tmpName)
		return 0, 0, err
	}
	if err := os.Rename(tmpName, filename); err != nil {
		os.Remove(tmpName)
		return 0, 0, err
	}
	return dataOffset, size, nil
}

func writeTableFile(filename string, indexData []byte, entriesData *bytes.Buffer) (EntrySize, EntrySize, error) {
	file, err := os.Create(filename)
	if err != nil {
		return 0, 0, err
	}
	defer file.Close()

	indexSize := EntrySize(len(indexData))
	if err := binary.Write(file, binary.LittleEndian, indexSize); err != nil {
		return 0, 0, err
	}
	if _, err := file.Write(indexData); err != nil {
		return 0, 0, err
	}
	dataOffset := EntrySize(binary.Size(indexSize)) + indexSize

	n, err := io.Copy(file, entriesData)
	if err != nil {
		return 0, 0, err
	}
	if err := file.Sync(); err != nil {
		return 0, 0, err
	}
	return dataOffset, dataOffset + EntrySize(n), nil
}

// readDataSizeAt reads a size prefix at the given absolute offset.
func readDataSizeAt(file io.ReaderAt, offset EntrySize) (EntrySize, error) {
	var buf [8]byte
	if _, err := file.ReadAt(buf[:], int64(offset)); err != nil {
		return 0, err
	}
	return EntrySize(binary.LittleEndian.Uint64(buf[:])), nil
}

// readEntryAt reads the size-prefixed entry at the given absolute offset of
// a table whose file is tableSize bytes long.
func readEntryAt(file io.ReaderAt, offset, tableSize EntrySize) (*Entry, error) {
	size, err := readDataSizeAt(file, offset)
	if err != nil {
		return nil, err
	}
	if size < 0 || size > tableSize-offset-8 {
		return nil, fmt.Errorf("%w: entry size %d out of bounds", ErrCorruptTable, size)
	}
	data := make([]byte, size)
	if _, err := file.ReadAt(data, int64(offset)+8); err != nil {
		return nil, err
	}
	return unmarshalEntry(data)
}

// readNextEntry reads the next size-prefixed entry from a sequential reader
// holding at most remaining bytes, and returns the number of bytes it
// consumed. It returns io.EOF when there are no more entries.
func readNextEntry(r io.Reader, remaining int64) (*Entry, int64, error) {
	var size EntrySize
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, 0, err
	}
	if size < 0 || int64(size) > remaining-8 {
		return nil, 0, fmt.Errorf("%w: entry size %d out of bounds", ErrCorruptTable, size)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, 0, fmt.Errorf("%w: truncated entry: %v", ErrCorruptTable, err)
	}
	entry, err := unmarshalEntry(data)
	if err != nil {
		return nil, 0, err
	}
	return entry, 8 + int64(size), nil
}

// readSSTableMetadata reads the index and data offset from an SSTable file
// of tableSize bytes.
func readSSTableMetadata(file io.ReaderAt, tableSize EntrySize) ([]IndexEntry, EntrySize, error) {
	indexSize, err := readDataSizeAt(file, InitialOffset)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: reading index size: %v", ErrCorruptTable, err)
	}
	if indexSize < 0 || indexSize > tableSize-8 {
		return nil, 0, fmt.Errorf("%w: index size %d out of bounds", ErrCorruptTable, indexSize)
	}
	indexData := make([]byte, indexSize)
	if _, err := file.ReadAt(indexData, 8); err != nil {
		return nil, 0, fmt.Errorf("%w: reading index: %v", ErrCorruptTable, err)
	}
	index, err := unmarshalIndex(indexData)
	if err != nil {
		return nil, 0, err
	}
	return index, 8 + indexSize, nil
}

// findOffsetForKey finds the offset of the key in the SSTable index using binary search.
func findOffsetForKey(key string, index []IndexEntry) (EntrySize, bool) {
	i := sort.Search(len(index), func(i int) bool { return index[i].Key >= key })
	if i < len(index) && index[i].Key == key {
		return EntrySize(index[i].Offset), true
	}
	return 0, false
}

// findStartOffsetForRangeScan finds the offset of the smallest key in the
// SSTable that is greater than or equal to the start key.
func findStartOffsetForRangeScan(index []IndexEntry, startKey string) (EntrySize, bool) {
	i := sort.Search(len(index), func(i int) bool { return index[i].Key >= startKey })
	if i >= len(index) {
		return 0, false
	}
	return EntrySize(index[i].Offset), true
}
