package lsm

import (
	"fmt"
	"path/filepath"
	"strings"
)

// processAndReturnEntry returns the value of entry, or ErrKeyNotFound if the
// entry is a tombstone.
func processAndReturnEntry(entry *Entry) ([]byte, error) {
	if entry.Command == CommandDelete {
		return nil, ErrKeyNotFound
	}
	return entry.Value, nil
}

// sstableFileName returns the file name of the SSTable with the given level
// and sequence number.
func sstableFileName(level int, seq uint64) string {
	return fmt.Sprintf("%s%d_%020d%s", SSTableFilePrefix, level, seq, SSTableFileSuffix)
}

// parseSSTableFileName extracts the level and sequence number from an SSTable
// file name. ok is false for any other file.
func parseSSTableFileName(name string) (level int, seq uint64, ok bool) {
	name = filepath.Base(name)
	if !isSSTableFile(name) {
		return 0, 0, false
	}
	trimmed := strings.TrimSuffix(strings.TrimPrefix(name, SSTableFilePrefix), SSTableFileSuffix)
	if _, err := fmt.Sscanf(trimmed, "%d_%d", &level, &seq); err != nil {
		return 0, 0, false
	}
	if level < 0 || level >= MaxLevels {
		return 0, 0, false
	}
	return level, seq, true
}

// Checks if the given filename is a complete SSTable file.
func isSSTableFile(filename string) bool {
	return strings.HasPrefix(filename, SSTableFilePrefix) &&
		strings.HasSuffix(filename, SSTableFileSuffix)
}
