package lsm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	wal "github.com/danish45007/GoLogMatrix"
	"github.com/danish45007/velocitybloom"
	"github.com/mirkobrombin/go-foundation/pkg/options"
)

var (
	ErrClosed      = errors.New("lsm: tree is closed")
	ErrKeyNotFound = errors.New("lsm: key not found")
)

// level represents a level in the LSM tree.
type level struct {
	sstablesLock sync.RWMutex // Lock to protect the sstables.
	sstables     []*SSTable   // List of SSTables in the level, oldest first.
}

// KVPair struct represents a key-value pair for upstream applications.
type KVPair struct {
	Key   string
	Value []byte
}

// Stats reports how SSTable lookups were served.
type Stats struct {
	FilterSkips uint64         // SSTable lookups answered by the Bloom filter alone.
	TableReads  uint64         // SSTable lookups that went to the index and file.
	Tables      [MaxLevels]int // Number of SSTables per level.
	FilterBits  uint64         // Total size of the SSTable Bloom filters in bits.
}

// LSMTree is a log-structured merge tree whose SSTables each carry a Bloom
// filter over their keys.
//
// Writes are appended to a write-ahead log and then applied to an in-memory
// memtable which is flushed to a level 0 SSTable in the background once it
// grows past the configured size. Every flush records a checkpoint in the
// log, and Open replays the writes logged after the last checkpoint. Levels
// holding too many SSTables are merged into the next level in the
// background.
type LSMTree struct {
	memLock           sync.RWMutex           // Lock to protect the memtable.
	memtable          *Memtable              // Current mutable memtable.
	closed            bool                   // Set once Close has been called.
	wal               *wal.WAL               // Write-ahead log for the LSM tree.
	flushErr          error                  // First flush failure, owned by the flushing goroutine.
	maxMemtableSize   int64                  // Maximum size of the memtable in bytes before flushing to ssTable.
	compactionTrigger int                    // Number of SSTables in a level that triggers compaction.
	filterOpts        []velocitybloom.Option // Options for the Bloom filter of each SSTable.
	directory         string                 // Directory to store the SSTable files.
	levels            []*level               // List of levels in the LSM tree.
	currentSSTSeq     atomic.Uint64          // Next sequence number for the SSTable.
	compactionChan    chan int               // Channel for triggering compaction at a level.
	flushingLock      sync.RWMutex           // Lock to protect the flushing queue.
	flushingQueue     []*Memtable            // Queue of memtables to be flushed to SSTable. Used to serve reads while flushing.
	flushingChan      chan *Memtable         // Channel for triggering flushing of memtables to SSTables.
	wg                sync.WaitGroup         // WaitGroup for the background goroutines.
	filterSkips       atomic.Uint64          // SSTable lookups skipped by the Bloom filter.
	tableReads        atomic.Uint64          // SSTable lookups that read the table.
}

// Open opens an LSMTree stored in directory, creating the directory if it
// does not exist. SSTables found in the directory are loaded and their Bloom
// filters rebuilt from their indexes. The write-ahead log lives next to the
// directory, in directory+WALDirectorySuffix, and writes it holds that
// never reached an SSTable are replayed into the memtable.
func Open(directory string, opts ...Option) (*LSMTree, error) {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, err
	}
	walLog, err := wal.OpenWAL(directory+WALDirectorySuffix, true, WALMaxFileSize, WALMaxSegments)
	if err != nil {
		return nil, fmt.Errorf("lsm: opening wal: %w", err)
	}

	levels := make([]*level, MaxLevels)
	for i := range levels {
		levels[i] = &level{}
	}
	lsm := &LSMTree{
		memtable:          NewMemtable(),
		maxMemtableSize:   DefaultMaxMemtableSize,
		compactionTrigger: DefaultCompactionTrigger,
		directory:         directory,
		wal:               walLog,
		levels:            levels,
		compactionChan:    make(chan int, 100),
		flushingChan:      make(chan *Memtable, 100),
	}
	options.Apply(lsm, opts...)

	if err := lsm.loadSSTables(); err != nil {
		lsm.closeTables()
		walLog.Close()
		return nil, err
	}

	lsm.wg.Add(2)
	go lsm.backgroundCompaction()
	go lsm.backgroundMemtableFlushing()

	if err := lsm.recoverFromWAL(); err != nil {
		lsm.Close()
		return nil, err
	}

	// tables left over from a previous run may already need compaction.
	lsm.compactionChan <- 0
	return lsm, nil
}

// Close flushes the memtable, waits for background flushing and compaction
// to finish and closes the WAL and all SSTables. It reports any flush that
// failed while the tree was open; the writes of such a flush remain in the
// WAL and are replayed by the next Open.
func (l *LSMTree) Close() error {
	l.memLock.Lock()
	if l.closed {
		l.memLock.Unlock()
		return ErrClosed
	}
	l.closed = true
	if l.memtable.Len() > 0 {
		l.scheduleFlush()
	}
	l.memLock.Unlock()

	// the flushing goroutine closes the compaction channel once it drains.
	close(l.flushingChan)
	l.wg.Wait()

	var walErr error
	if err := l.wal.Close(); err != nil {
		walErr = fmt.Errorf("lsm: closing wal: %w", err)
	}
	return errors.Join(l.flushErr, walErr, l.closeTables())
}

// Put inserts a key-value pair into the LSM tree.
func (l *LSMTree) Put(key string, value []byte) error {
	return l.write(key, value, CommandPut)
}

// Delete removes a key from the LSM tree by writing a tombstone.
func (l *LSMTree) Delete(key string) error {
	return l.write(key, nil, CommandDelete)
}

// write logs a new entry to the WAL and applies it to the memtable. The
// entry is stamped under memLock so that timestamps follow the order of the
// log and of the memtables.
func (l *LSMTree) write(key string, value []byte, command Command) error {
	l.memLock.Lock()
	defer l.memLock.Unlock()
	if l.closed {
		return ErrClosed
	}

	entry := newEntry(key, value, command)
	if err := l.wal.WriteEntity(marshalEntry(entry)); err != nil {
		return fmt.Errorf("lsm: writing wal: %w", err)
	}
	l.apply(entry)
	return nil
}

// apply adds an entry to the memtable and schedules a flush once the
// memtable is full. It must be called with memLock held.
func (l *LSMTree) apply(entry *Entry) {
	l.memtable.apply(entry)
	if l.memtable.SizeInBytes() > l.maxMemtableSize {
		l.scheduleFlush()
	}
}

// recoverFromWAL replays the WAL entries newer than the last checkpoint into
// the memtable. Replayed entries are not logged again.
func (l *LSMTree) recoverFromWAL() error {
	records, err := l.wal.ReadAll(false)
	if err != nil {
		return fmt.Errorf("lsm: reading wal: %w", err)
	}

	var (
		entries        []*Entry
		flushedThrough int64
	)
	for _, record := range records {
		data := record.GetData()
		if len(data) == 0 {
			continue
		}
		entry, err := unmarshalEntry(data)
		if err != nil {
			return fmt.Errorf("lsm: decoding wal entry: %w", err)
		}
		if entry.Command == commandCheckpoint {
			flushedThrough = max(flushedThrough, entry.Timestamp)
			continue
		}
		entries = append(entries, entry)
	}

	l.memLock.Lock()
	defer l.memLock.Unlock()
	replayed := 0
	for _, entry := range entries {
		if entry.Timestamp <= flushedThrough {
			continue
		}
		observeTimestamp(entry.Timestamp)
		l.apply(entry)
		replayed++
	}
	if replayed > 0 {
		log.Infof("Recovered %d entries from the wal", replayed)
	}
	return nil
}

// Get retrieves the value for a given key from the LSM tree. It returns
// ErrKeyNotFound if the key was never written or has been deleted.
// It searches the memtable first, then the memtables being flushed and
// finally the SSTables from the newest to the oldest, skipping every SSTable
// whose Bloom filter rules the key out.
func (l *LSMTree) Get(key string) ([]byte, error) {
	l.memLock.RLock()
	if l.closed {
		l.memLock.RUnlock()
		return nil, ErrClosed
	}
	if entry := l.memtable.Get(key); entry != nil {
		l.memLock.RUnlock()
		return processAndReturnEntry(entry)
	}
	l.memLock.RUnlock()

	// search in reverse order to look for the most recent memtable.
	l.flushingLock.RLock()
	for i := len(l.flushingQueue) - 1; i >= 0; i-- {
		if entry := l.flushingQueue[i].Get(key); entry != nil {
			l.flushingLock.RUnlock()
			return processAndReturnEntry(entry)
		}
	}
	l.flushingLock.RUnlock()

	for _, level := range l.levels {
		entry, err := l.searchLevel(level, key)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			return processAndReturnEntry(entry)
		}
	}
	return nil, ErrKeyNotFound
}

// searchLevel looks key up in the SSTables of a level, newest first.
func (l *LSMTree) searchLevel(level *level, key string) (*Entry, error) {
	level.sstablesLock.RLock()
	defer level.sstablesLock.RUnlock()

	for i := len(level.sstables) - 1; i >= 0; i-- {
		sst := level.sstables[i]
		if !sst.MayContain(key) {
			l.filterSkips.Add(1)
			continue
		}
		l.tableReads.Add(1)
		entry, err := sst.lookup(key)
		if err != nil {
			return nil, fmt.Errorf("lsm: reading %s: %w", sst.Name(), err)
		}
		if entry != nil {
			return entry, nil
		}
	}
	return nil, nil
}

// RangeScan returns all key-value pairs in the LSM tree within the given key
// range [startKey, endKey] in sorted order.
func (l *LSMTree) RangeScan(startKey string, endKey string) ([]KVPair, error) {
	var ranges [][]*Entry

	// acquire all the locks together to ensure a consistent view of the tree.
	l.memLock.RLock()
	defer l.memLock.RUnlock()
	if l.closed {
		return nil, ErrClosed
	}
	for _, level := range l.levels {
		level.sstablesLock.RLock()
		defer level.sstablesLock.RUnlock()
	}
	l.flushingLock.RLock()
	defer l.flushingLock.RUnlock()

	if entries := l.memtable.RangeScan(startKey, endKey); len(entries) > 0 {
		ranges = append(ranges, entries)
	}
	for i := len(l.flushingQueue) - 1; i >= 0; i-- {
		if entries := l.flushingQueue[i].RangeScan(startKey, endKey); len(entries) > 0 {
			ranges = append(ranges, entries)
		}
	}
	for _, level := range l.levels {
		for i := len(level.sstables) - 1; i >= 0; i-- {
			entries, err := level.sstables[i].RangeScan(startKey, endKey)
			if err != nil {
				return nil, err
			}
			if len(entries) > 0 {
				ranges = append(ranges, entries)
			}
		}
	}
	return mergeRanges(ranges), nil
}

// Stats returns lookup counters and the current shape of the tree.
func (l *LSMTree) Stats() Stats {
	stats := Stats{
		FilterSkips: l.filterSkips.Load(),
		TableReads:  l.tableReads.Load(),
	}
	for i, level := range l.levels {
		level.sstablesLock.RLock()
		stats.Tables[i] = len(level.sstables)
		for _, sst := range level.sstables {
			stats.FilterBits += sst.Filter().Bits()
		}
		level.sstablesLock.RUnlock()
	}
	return stats
}

// scheduleFlush queues the current memtable for flushing and starts a new
// one. It must be called with memLock held.
func (l *LSMTree) scheduleFlush() {
	l.flushingLock.Lock()
	l.flushingQueue = append(l.flushingQueue, l.memtable)
	l.flushingLock.Unlock()

	l.flushingChan <- l.memtable
	l.memtable = NewMemtable()
}

// backgroundMemtableFlushing writes queued memtables to level 0 SSTables
// until the flushing channel is closed.
func (l *LSMTree) backgroundMemtableFlushing() {
	defer l.wg.Done()
	defer close(l.compactionChan)

	for memtable := range l.flushingChan {
		if err := l.flushMemtable(memtable); err != nil {
			// the memtable stays in the flushing queue and keeps serving reads.
			log.Errorf("Failed to flush memtable: %v", err)
			if l.flushErr == nil {
				l.flushErr = fmt.Errorf("lsm: flushing memtable: %w", err)
			}
		}
	}
}

// flushMemtable writes a memtable to a new level 0 SSTable, checkpoints the
// WAL and removes the memtable from the flushing queue. Once a flush has
// failed no further checkpoints are written, so the WAL keeps the writes of
// the failed memtable.
func (l *LSMTree) flushMemtable(memtable *Memtable) error {
	entries := memtable.GenerateEntries()
	if len(entries) == 0 {
		l.dequeueFlushed(memtable)
		return nil
	}
	sst, err := SerializeToSSTable(entries, l.newTablePath(0), l.filterOpts...)
	if err != nil {
		return err
	}
	log.Debugf("Flushed %d entries to %s", len(entries), sst.Name())

	// publish the table before dropping the memtable so reads never miss it.
	level0 := l.levels[0]
	level0.sstablesLock.Lock()
	level0.sstables = append(level0.sstables, sst)
	count := len(level0.sstables)
	level0.sstablesLock.Unlock()

	if l.flushErr == nil {
		checkpoint := marshalEntry(&Entry{Command: commandCheckpoint, Timestamp: memtable.lastTimestamp})
		if err := l.wal.CreateCheckPoint(checkpoint); err != nil {
			// the WAL still holds the entries, so a later Open replays them.
			log.Warnf("Failed to checkpoint wal: %v", err)
		}
	}
	l.dequeueFlushed(memtable)

	if count >= l.compactionTrigger {
		select {
		case l.compactionChan <- 0:
		default:
		}
	}
	return nil
}

// dequeueFlushed removes a memtable from the flushing queue.
func (l *LSMTree) dequeueFlushed(memtable *Memtable) {
	l.flushingLock.Lock()
	defer l.flushingLock.Unlock()
	for i, m := range l.flushingQueue {
		if m == memtable {
			l.flushingQueue = append(l.flushingQueue[:i], l.flushingQueue[i+1:]...)
			return
		}
	}
}

// backgroundCompaction compacts levels as requested until the compaction
// channel is closed.
func (l *LSMTree) backgroundCompaction() {
	defer l.wg.Done()

	for start := range l.compactionChan {
		for lvl := start; lvl < MaxLevels; lvl++ {
			if l.tableCount(lvl) < l.compactionTrigger {
				continue
			}
			if err := l.compactLevel(lvl); err != nil {
				log.Errorf("Failed to compact level %d: %v", lvl, err)
				break
			}
		}
	}
}

func (l *LSMTree) tableCount(lvl int) int {
	l.levels[lvl].sstablesLock.RLock()
	defer l.levels[lvl].sstablesLock.RUnlock()
	return len(l.levels[lvl].sstables)
}

// compactLevel merges every SSTable of a level into a single SSTable in the
// next level. Tables of the last level are merged in place, and only that
// merge drops tombstones since it sees every older version of their keys.
func (l *LSMTree) compactLevel(lvl int) error {
	source := l.levels[lvl]

	// only this goroutine removes tables, so the snapshot stays valid while
	// flushes append newer tables behind it.
	source.sstablesLock.RLock()
	snapshot := append([]*SSTable(nil), source.sstables...)
	source.sstablesLock.RUnlock()

	target := lvl + 1
	if target == MaxLevels {
		target = lvl
	}

	iterators := make([]*SSTableIterator, 0, len(snapshot))
	for _, sst := range snapshot {
		it := sst.Front()
		if it == nil {
			return fmt.Errorf("lsm: no readable entries in %s", sst.Name())
		}
		iterators = append(iterators, it)
	}
	entries, err := mergeIterators(iterators, target == lvl)
	if err != nil {
		return err
	}

	var merged *SSTable
	if len(entries) > 0 {
		merged, err = SerializeToSSTable(entries, l.newTablePath(target), l.filterOpts...)
		if err != nil {
			return err
		}
	}

	source.sstablesLock.Lock()
	if target == lvl {
		rest := source.sstables[len(snapshot):]
		source.sstables = make([]*SSTable, 0, len(rest)+1)
		if merged != nil {
			source.sstables = append(source.sstables, merged)
		}
		source.sstables = append(source.sstables, rest...)
	} else {
		dest := l.levels[target]
		dest.sstablesLock.Lock()
		if merged != nil {
			dest.sstables = append(dest.sstables, merged)
		}
		dest.sstablesLock.Unlock()
		source.sstables = append([]*SSTable(nil), source.sstables[len(snapshot):]...)
	}
	source.sstablesLock.Unlock()

	log.Infof("Compacted %d sstables of level %d into level %d (%d entries)",
		len(snapshot), lvl, target, len(entries))

	for _, sst := range snapshot {
		name := sst.Name()
		if err := sst.Close(); err != nil {
			log.Warnf("Failed to close %s: %v", name, err)
		}
		if err := os.Remove(name); err != nil {
			log.Warnf("Failed to remove %s: %v", name, err)
		}
	}
	return nil
}

// newTablePath returns the path for a new SSTable in the given level.
func (l *LSMTree) newTablePath(lvl int) string {
	seq := l.currentSSTSeq.Add(1) - 1
	return filepath.Join(l.directory, sstableFileName(lvl, seq))
}

// loadSSTables opens every SSTable in the directory and restores the
// sequence counter. Leftover temporary files are removed.
func (l *LSMTree) loadSSTables() error {
	dirEntries, err := os.ReadDir(l.directory)
	if err != nil {
		return err
	}

	type found struct {
		level int
		seq   uint64
		path  string
	}
	var tables []found
	var nextSeq uint64
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		path := filepath.Join(l.directory, de.Name())
		if strings.HasSuffix(de.Name(), tmpFileSuffix) {
			log.Warnf("Removing incomplete sstable %s", path)
			os.Remove(path)
			continue
		}
		lvl, seq, ok := parseSSTableFileName(de.Name())
		if !ok {
			continue
		}
		tables = append(tables, found{level: lvl, seq: seq, path: path})
		if seq >= nextSeq {
			nextSeq = seq + 1
		}
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].seq < tables[j].seq })

	for _, t := range tables {
		sst, err := OpenSSTable(t.path, l.filterOpts...)
		if err != nil {
			return fmt.Errorf("lsm: opening %s: %w", t.path, err)
		}
		l.levels[t.level].sstables = append(l.levels[t.level].sstables, sst)
	}
	l.currentSSTSeq.Store(nextSeq)

	if len(tables) > 0 {
		log.Infof("Loaded %d sstables from %s", len(tables), l.directory)
	}
	return nil
}

// closeTables closes every SSTable and returns the first error.
func (l *LSMTree) closeTables() error {
	var firstErr error
	for _, level := range l.levels {
		level.sstablesLock.Lock()
		for _, sst := range level.sstables {
			if err := sst.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		level.sstables = nil
		level.sstablesLock.Unlock()
	}
	return firstErr
}
