package lsm

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protowire"
)

// Command is the operation recorded by an Entry.
type Command int32

const (
	CommandPut    Command = 0
	CommandDelete Command = 1

	// commandCheckpoint marks a WAL checkpoint. Its timestamp is the newest
	// timestamp that has been flushed to an SSTable.
	commandCheckpoint Command = 2
)

// Entry is a single versioned key operation stored in memtables and
// SSTables. A delete is stored as a tombstone entry with CommandDelete.
type Entry struct {
	Key       string
	Value     []byte
	Command   Command
	Timestamp int64
}

// IndexEntry maps a key to the offset of its entry in the data section of an
// SSTable.
type IndexEntry struct {
	Key    string
	Offset int64
}

// Field numbers of the protobuf wire encoding.
const (
	entryKeyField       protowire.Number = 1
	entryValueField     protowire.Number = 2
	entryCommandField   protowire.Number = 3
	entryTimestampField protowire.Number = 4

	indexEntryField       protowire.Number = 1
	indexEntryKeyField    protowire.Number = 1
	indexEntryOffsetField protowire.Number = 2
)

var (
	// ErrCorruptTable is returned when an SSTable file cannot be decoded.
	ErrCorruptTable = errors.New("lsm: corrupt sstable")

	// EncodeAll and DecodeAll are safe for concurrent use.
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// marshalEntry encodes an entry in protobuf wire format. Values are zstd
// compressed.
func marshalEntry(e *Entry) []byte {
	var b []byte
	b = protowire.AppendTag(b, entryKeyField, protowire.BytesType)
	b = protowire.AppendString(b, e.Key)
	if len(e.Value) > 0 {
		b = protowire.AppendTag(b, entryValueField, protowire.BytesType)
		b = protowire.AppendBytes(b, zstdEncoder.EncodeAll(e.Value, nil))
	}
	b = protowire.AppendTag(b, entryCommandField, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Command))
	b = protowire.AppendTag(b, entryTimestampField, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Timestamp))
	return b
}

// unmarshalEntry decodes an entry produced by marshalEntry.
func unmarshalEntry(b []byte) (*Entry, error) {
	e := &Entry{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrCorruptTable, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == entryKeyField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrCorruptTable, protowire.ParseError(n))
			}
			e.Key = v
			b = b[n:]
		case num == entryValueField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrCorruptTable, protowire.ParseError(n))
			}
			value, err := zstdDecoder.DecodeAll(v, nil)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorruptTable, err)
			}
			e.Value = value
			b = b[n:]
		case num == entryCommandField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrCorruptTable, protowire.ParseError(n))
			}
			e.Command = Command(v)
			b = b[n:]
		case num == entryTimestampField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrCorruptTable, protowire.ParseError(n))
			}
			e.Timestamp = int64(v)
			b = b[n:]
		default:
			// skip unknown fields.
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrCorruptTable, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return e, nil
}

// marshalIndex encodes the SSTable index as a repeated embedded message.
func marshalIndex(index []IndexEntry) []byte {
	var b []byte
	for _, ie := range index {
		var inner []byte
		inner = protowire.AppendTag(inner, indexEntryKeyField, protowire.BytesType)
		inner = protowire.AppendString(inner, ie.Key)
		inner = protowire.AppendTag(inner, indexEntryOffsetField, protowire.VarintType)
		inner = protowire.AppendVarint(inner, uint64(ie.Offset))

		b = protowire.AppendTag(b, indexEntryField, protowire.BytesType)
		b = protowire.AppendBytes(b, inner)
	}
	return b
}

// unmarshalIndex decodes an index produced by marshalIndex.
func unmarshalIndex(b []byte) ([]IndexEntry, error) {
	var index []IndexEntry
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrCorruptTable, protowire.ParseError(n))
		}
		b = b[n:]
		if num != indexEntryField || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrCorruptTable, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		inner, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrCorruptTable, protowire.ParseError(n))
		}
		b = b[n:]

		ie, err := unmarshalIndexEntry(inner)
		if err != nil {
			return nil, err
		}
		index = append(index, ie)
	}
	return index, nil
}

func unmarshalIndexEntry(b []byte) (IndexEntry, error) {
	var ie IndexEntry
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return ie, fmt.Errorf("%w: %v", ErrCorruptTable, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == indexEntryKeyField && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return ie, fmt.Errorf("%w: %v", ErrCorruptTable, protowire.ParseError(n))
			}
			ie.Key = v
			b = b[n:]
		case num == indexEntryOffsetField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return ie, fmt.Errorf("%w: %v", ErrCorruptTable, protowire.ParseError(n))
			}
			ie.Offset = int64(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return ie, fmt.Errorf("%w: %v", ErrCorruptTable, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return ie, nil
}
