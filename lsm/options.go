package lsm

import (
	"github.com/danish45007/velocitybloom"
	"github.com/mirkobrombin/go-foundation/pkg/options"
)

// Option defines a functional configuration for the LSMTree.
type Option = options.Option[LSMTree]

// WithMaxMemtableSize sets the size in bytes above which the memtable is
// flushed to an SSTable.
func WithMaxMemtableSize(size int64) Option {
	return func(l *LSMTree) {
		l.maxMemtableSize = size
	}
}

// WithCompactionTrigger sets the number of SSTables in a level that
// triggers its compaction into the next level.
func WithCompactionTrigger(tables int) Option {
	return func(l *LSMTree) {
		if tables < 2 {
			tables = 2
		}
		l.compactionTrigger = tables
	}
}

// WithFilterOptions sets the options used to build the Bloom filter of every
// SSTable, such as the target false positive rate or the hash family.
func WithFilterOptions(opts ...velocitybloom.Option) Option {
	return func(l *LSMTree) {
		l.filterOpts = opts
	}
}
