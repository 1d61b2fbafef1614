package lsm

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/danish45007/velocitybloom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestTable writes the test data to an SSTable, optionally closing and
// reopening it so both the freshly written and the loaded paths are covered.
func openTestTable(t *testing.T, reopen bool) *SSTable {
	t.Helper()
	testFileName := filepath.Join(t.TempDir(), "TestSStable.sst")

	memtable := NewMemtable()
	populateMemtableWithTestData(memtable)

	sstable, err := SerializeToSSTable(memtable.GenerateEntries(), testFileName)
	require.NoError(t, err)

	if reopen {
		require.NoError(t, sstable.Close())
		sstable, err = OpenSSTable(testFileName)
		require.NoError(t, err)
	}
	t.Cleanup(func() { sstable.Close() })
	return sstable
}

func TestSSTable(t *testing.T) {
	t.Parallel()

	for _, reopen := range []bool{false, true} {
		t.Run(fmt.Sprintf("reopen=%v", reopen), func(t *testing.T) {
			sstable := openTestTable(t, reopen)
			assert.Equal(t, 5, sstable.Len())

			entry, err := sstable.lookup("key1")
			assert.NoError(t, err)
			assert.Equal(t, []byte("value1"), entry.Value)
			assert.NotZero(t, entry.Timestamp, "Timestamp should be set")

			entry, err = sstable.lookup("key3")
			assert.NoError(t, err)
			assert.Equal(t, []byte("value3"), entry.Value)

			// read deleted entry
			entry, err = sstable.lookup("key2")
			assert.NoError(t, err)
			assert.Nil(t, entry.Value)
			assert.Equal(t, CommandDelete, entry.Command)

			// read the non-existent key
			entry, err = sstable.lookup("key6")
			assert.NoError(t, err)
			assert.Nil(t, entry)
		})
	}
}

// Test RangeScan on an SSTable
func TestSSTableRangeScan(t *testing.T) {
	t.Parallel()

	for _, reopen := range []bool{false, true} {
		sstable := openTestTable(t, reopen)

		entries, err := sstable.RangeScan("key1", "key5")
		assert.NoError(t, err)
		require.Len(t, entries, 5)

		assert.Equal(t, []byte("value1"), entries[0].Value)
		assert.Equal(t, CommandDelete, entries[1].Command)
		assert.Equal(t, []byte("value3"), entries[2].Value)
		assert.Equal(t, CommandDelete, entries[3].Command)
		assert.Equal(t, []byte("value5"), entries[4].Value)

		// start keys that are not in the table begin at the next key.
		entries, err = sstable.RangeScan("key0", "key1")
		assert.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "key1", entries[0].Key)

		entries, err = sstable.RangeScan("key25", "key4")
		assert.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "key3", entries[0].Key)
		assert.Equal(t, "key4", entries[1].Key)
	}
}

// Test RangeScan on an SSTable with a non-existent Range
func TestSSTableRangeScanNonExistentRange(t *testing.T) {
	t.Parallel()

	for _, reopen := range []bool{false, true} {
		sstable := openTestTable(t, reopen)

		entries, err := sstable.RangeScan("key6", "key10")
		assert.NoError(t, err)
		assert.Nil(t, entries)
	}
}

func TestSSTableIterator(t *testing.T) {
	sstable := openTestTable(t, true)

	it := sstable.Front()
	require.NotNil(t, it)

	var keys []string
	for entry := it.Value; entry != nil; entry = it.Next() {
		keys = append(keys, entry.Key)
	}
	assert.NoError(t, it.Err())
	assert.Equal(t, []string{"key1", "key2", "key3", "key4", "key5"}, keys)
}

func TestSSTableFreshTableIsIterable(t *testing.T) {
	sstable := openTestTable(t, false)
	info, err := sstable.file.Stat()
	require.NoError(t, err)
	assert.Equal(t, EntrySize(info.Size()), sstable.size)

	it := sstable.Front()
	require.NotNil(t, it)
	count := 0
	for entry := it.Value; entry != nil; entry = it.Next() {
		count++
	}
	assert.NoError(t, it.Err())
	assert.Equal(t, 5, count)
}

func TestSSTableFilterRebuiltOnOpen(t *testing.T) {
	fresh := openTestTable(t, false)
	reopened := openTestTable(t, true)

	// the filter is sized for the entries of the table, tombstones included.
	assert.Equal(t, uint64(5), reopened.Filter().Capacity())
	assert.True(t, reopened.Filter().Full())
	assert.Equal(t, fresh.Filter().Bits(), reopened.Filter().Bits())
	for i := 1; i <= 5; i++ {
		key := fmt.Sprintf("key%d", i)
		assert.True(t, reopened.MayContain(key), key)
	}
}

func TestSSTableSkipsLookupWhenFilterRulesOut(t *testing.T) {
	// a hash family that sends every probe of "absent" to a bit no key sets.
	hashes := velocitybloom.HashFunc(func(payload []byte, seed uint64) uint64 {
		if string(payload) == "absent" {
			return 63
		}
		return seed
	})
	filterOpts := []velocitybloom.Option{
		velocitybloom.WithSizer(velocitybloom.FixedSizer{M: 64, K: 2}),
		velocitybloom.WithHashFamily(hashes),
	}

	testFileName := filepath.Join(t.TempDir(), "filtered.sst")
	sstable, err := SerializeToSSTable([]*Entry{
		newEntry("a", []byte("1"), CommandPut),
		newEntry("b", []byte("2"), CommandPut),
	}, testFileName, filterOpts...)
	require.NoError(t, err)
	defer sstable.Close()

	assert.False(t, sstable.MayContain("absent"))
	assert.True(t, sstable.MayContain("a"))

	// a filtered miss never touches the file.
	require.NoError(t, sstable.file.Close())
	tree := &LSMTree{}
	lvl := &level{sstables: []*SSTable{sstable}}
	entry, err := tree.searchLevel(lvl, "absent")
	assert.NoError(t, err)
	assert.Nil(t, entry)
	assert.Equal(t, uint64(1), tree.filterSkips.Load())

	_, err = tree.searchLevel(lvl, "a")
	assert.Error(t, err)
	assert.Equal(t, uint64(1), tree.tableReads.Load())
}

func TestSerializeToSSTableRejectsEmpty(t *testing.T) {
	_, err := SerializeToSSTable(nil, filepath.Join(t.TempDir(), "empty.sst"))
	assert.ErrorIs(t, err, errEmptyTable)
}

func TestOpenSSTableRejectsCorruptFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "corrupt.sst")
	require.NoError(t, os.WriteFile(name, []byte{0xff, 0xff}, 0o644))

	_, err := OpenSSTable(name)
	assert.ErrorIs(t, err, ErrCorruptTable)
}

func TestOpenSSTableRejectsOversizedIndex(t *testing.T) {
	name := filepath.Join(t.TempDir(), "oversized.sst")
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1<<62)
	require.NoError(t, os.WriteFile(name, buf[:], 0o644))

	_, err := OpenSSTable(name)
	assert.ErrorIs(t, err, ErrCorruptTable)
}

func TestSSTableRejectsOversizedEntry(t *testing.T) {
	sstable := openTestTable(t, false)

	// overwrite the size prefix of the first entry.
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1<<62)
	f, err := os.OpenFile(sstable.Name(), os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteAt(buf[:], int64(sstable.dataOffset))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = sstable.lookup("key1")
	assert.ErrorIs(t, err, ErrCorruptTable)

	it := sstable.iteratorAt(InitialOffset)
	assert.Nil(t, it.Next())
	assert.ErrorIs(t, it.Err(), ErrCorruptTable)
}

func TestWriteToSSTableLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "table.sst")
	sstable, err := SerializeToSSTable([]*Entry{newEntry("k", []byte("v"), CommandPut)}, name)
	require.NoError(t, err)
	defer sstable.Close()

	_, err = os.Stat(name + tmpFileSuffix)
	assert.True(t, os.IsNotExist(err))
}
