package lsm

const (
	InitialOffset            = 0          // Initial offset for the data entries.
	SSTableFilePrefix        = "sstable_" // Prefix for SSTable files.
	SSTableFileSuffix        = ".sst"     // Suffix for SSTable files.
	tmpFileSuffix            = ".tmp"     // Suffix for SSTable files being written.
	WALDirectorySuffix       = "_wal"     // Suffix for WAL directory.
	WALMaxFileSize           = 128000     // 128 KB
	WALMaxSegments           = 1000       // Maximum number of WAL segments.
	MaxLevels                = 6          // Maximum number of levels in the LSM tree.
	DefaultMaxMemtableSize   = 4 << 20    // 4 MB
	DefaultCompactionTrigger = 4          // Number of SSTables in a level that triggers compaction.
)
