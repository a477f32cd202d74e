package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"lsmkv/pkg/clock"
	"lsmkv/pkg/compaction"
	"lsmkv/pkg/config"
	"lsmkv/pkg/dberrors"
	"lsmkv/pkg/listener"
	"lsmkv/pkg/memtable"
	"lsmkv/pkg/metrics"
	"lsmkv/pkg/sstable"
)

const (
	metricFlushes     = "lsmkv_flushes_total"
	metricCompactions = "lsmkv_compactions_total"
	metricSSTables    = "lsmkv_sstables"
	metricMemtable    = "lsmkv_memtable_keys"
)

type iClock interface {
	Val() uint64
	Next() uint64
	Set(t uint64)
	AtLeast(t uint64)
}

// Store is the LSM engine: a memtable in front of a catalog of SSTables.
//
// mu guards the memtable together with the catalog, so a reader sees either
// the state before a flush or after it, never a memtable that is already
// empty while its SSTable is not yet in the catalog.
type Store struct {
	cfg     config.EngineConfig
	seqN    iClock
	metrics metrics.Collector

	mu      sync.RWMutex
	mt      *memtable.Memtable
	catalog Catalog
	closed  bool

	compactCh chan struct{}
	compactor listener.Job

	flushes     atomic.Uint64
	compactions atomic.Uint64
}

// Stats is a point-in-time view of the store.
type Stats struct {
	MemtableSize        int      `json:"memtable_size"`
	MemtableMaxSize     int      `json:"memtable_max_size"`
	SSTableCount        int      `json:"sst_count"`
	SSTables            []string `json:"sst_files"`
	NextSeq             uint64   `json:"next_sst_seq"`
	CompactionThreshold int      `json:"compaction_threshold"`
	Flushes             uint64   `json:"flushes"`
	Compactions         uint64   `json:"compactions"`
}

// New opens the store in cfg.DataDir, creating the directory if needed, and
// rebuilds the catalog from the SSTables found there. A compaction check runs
// once after recovery, so a directory left at or above the threshold is
// compacted on startup.
func New(cfg config.EngineConfig, opts ...Option) (*Store, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("%w: empty data dir", dberrors.ErrInvalidArgument)
	}
	if cfg.MemtableMaxSize <= 0 {
		cfg.MemtableMaxSize = 1
	}
	if cfg.CompactionThreshold < 0 {
		cfg.CompactionThreshold = 0
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	s := &Store{
		cfg:     cfg,
		seqN:    clock.NewAtomic(0),
		metrics: metrics.Nop{},
		mt:      memtable.New(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.recover(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	err := s.compactLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if s.cfg.BackgroundCompaction {
		s.compactCh = make(chan struct{}, 1)
		s.compactor = listener.New("compaction", s.compactCh, func(struct{}) error {
			return s.Compact()
		})
		s.compactor.Start(context.Background())
	}

	return s, nil
}

// recover loads the catalog from disk. Tables spelled with leading zeros are
// renamed to their canonical name so every later access can derive the path
// from the sequence number.
func (s *Store) recover() error {
	catalog, next, err := Scan(s.cfg.DataDir)
	if err != nil {
		return err
	}

	for i, t := range catalog {
		canonical := sstable.Path(s.cfg.DataDir, t.Seq)
		if t.Path == canonical {
			continue
		}
		if err := os.Rename(t.Path, canonical); err != nil {
			return fmt.Errorf("failed to rename sstable %s: %w", t.Path, err)
		}
		catalog[i].Path = canonical
	}

	s.catalog = catalog
	s.seqN.Set(next)
	s.metrics.SetGauge(metricSSTables, nil, float64(len(catalog)))

	slog.Info("store recovered",
		"data_dir", s.cfg.DataDir,
		"sstables", len(catalog),
		"next_seq", next,
	)

	return nil
}

// Put stores value under key. The memtable is flushed as soon as it holds
// MemtableMaxSize distinct keys, so with a bound of 2 the second new key
// triggers the flush.
func (s *Store) Put(key, value string) error {
	if err := validate(key, value); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return dberrors.ErrClosed
	}

	s.mt.Put(key, value)
	s.metrics.SetGauge(metricMemtable, nil, float64(s.mt.Len()))

	if s.mt.Len() >= s.cfg.MemtableMaxSize {
		return s.flushLocked()
	}

	return nil
}

// Get returns the newest value of key: the memtable first, then SSTables from
// the highest sequence number down.
func (s *Store) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", false, dberrors.ErrClosed
	}

	if v, ok := s.mt.Get(key); ok {
		return v, true, nil
	}

	for i := len(s.catalog) - 1; i >= 0; i-- {
		v, ok, err := sstable.Lookup(s.catalog[i].Path, key)
		if err != nil {
			return "", false, fmt.Errorf("failed to Get from sstable %d: %w", s.catalog[i].Seq, err)
		}
		if ok {
			return v, true, nil
		}
	}

	return "", false, nil
}

// Flush writes the memtable to a new SSTable. An empty memtable is a no-op.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return dberrors.ErrClosed
	}

	return s.flushLocked()
}

// flushLocked keeps the memtable intact and the catalog unchanged when the
// SSTable cannot be written.
func (s *Store) flushLocked() error {
	if s.mt.Len() == 0 {
		return nil
	}

	entries := s.mt.Sorted()
	seq := s.seqN.Val()
	path := sstable.Path(s.cfg.DataDir, seq)

	if err := sstable.Write(path, entries); err != nil {
		discardPartial(path)
		return fmt.Errorf("failed to flush memtable: %w", err)
	}

	s.catalog = append(s.catalog, TableRef{Seq: seq, Path: path})
	s.seqN.Next()
	s.mt.Reset()

	s.flushes.Add(1)
	s.metrics.IncCounter(metricFlushes, nil, 1)
	s.metrics.SetGauge(metricSSTables, nil, float64(len(s.catalog)))
	s.metrics.SetGauge(metricMemtable, nil, 0)

	slog.Debug("memtable flushed", "seq", seq, "path", path, "keys", len(entries))

	if s.compactCh != nil {
		select {
		case s.compactCh <- struct{}{}:
		default:
			// a check is already pending
		}
		return nil
	}

	return s.compactLocked()
}

// Compact runs the compaction check: when the number of live SSTables has
// reached the threshold, all of them are merged into one.
func (s *Store) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return dberrors.ErrClosed
	}

	return s.compactLocked()
}

func (s *Store) compactLocked() error {
	threshold := s.cfg.CompactionThreshold
	if threshold == 0 || len(s.catalog) < threshold {
		return nil
	}

	newSeq, ok, err := compaction.Compact(s.cfg.DataDir, s.catalog.Seqs())
	if err != nil {
		return fmt.Errorf("failed to compact sstables: %w", err)
	}
	if !ok {
		return nil
	}

	s.catalog = Catalog{{Seq: newSeq, Path: sstable.Path(s.cfg.DataDir, newSeq)}}
	// the merged table takes max(input)+1, which the last flush may already
	// have handed out as the next sequence
	s.seqN.AtLeast(newSeq + 1)

	s.compactions.Add(1)
	s.metrics.IncCounter(metricCompactions, nil, 1)
	s.metrics.SetGauge(metricSSTables, nil, 1)

	return nil
}

// Keys returns every live key with its newest value, ordered by key.
func (s *Store) Keys() ([]sstable.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, dberrors.ErrClosed
	}

	merged := make(map[string]string)
	for _, t := range s.catalog {
		data, err := sstable.Read(t.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read sstable %d: %w", t.Seq, err)
		}
		for k, v := range data {
			merged[k] = v
		}
	}
	s.mt.Range(func(key, value string) bool {
		merged[key] = value
		return true
	})

	return sstable.Sorted(merged), nil
}

// Stats reports the memtable fill, the live SSTables and the flush and
// compaction counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		MemtableSize:        s.mt.Len(),
		MemtableMaxSize:     s.cfg.MemtableMaxSize,
		SSTableCount:        len(s.catalog),
		SSTables:            s.catalog.Paths(),
		NextSeq:             s.seqN.Val(),
		CompactionThreshold: s.cfg.CompactionThreshold,
		Flushes:             s.flushes.Load(),
		Compactions:         s.compactions.Load(),
	}
}

// Close stops background compaction and flushes the pending memtable. If the
// flush fails the store stays open so the caller can retry. Closing twice is
// a no-op.
func (s *Store) Close() error {
	if s.compactor != nil {
		s.compactor.Stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	background := s.compactCh != nil
	s.compactCh = nil

	pending := s.mt.Len() > 0
	if err := s.flushLocked(); err != nil {
		return err
	}
	s.closed = true

	// a check queued for the stopped worker may have been dropped
	if background && !pending {
		return s.compactLocked()
	}

	return nil
}

// validate rejects what a "key\tvalue\n" record cannot carry. The empty key
// is allowed. A trailing \r in the value would be read back as a CRLF line
// ending.
func validate(key, value string) error {
	switch {
	case strings.ContainsAny(key, "\t\n"):
		return fmt.Errorf("%w: key contains tab or newline", dberrors.ErrInvalidArgument)
	case strings.Contains(value, "\n"):
		return fmt.Errorf("%w: value contains newline", dberrors.ErrInvalidArgument)
	case strings.HasSuffix(value, "\r"):
		return fmt.Errorf("%w: value ends with carriage return", dberrors.ErrInvalidArgument)
	}
	return nil
}

// discardPartial removes what a failed flush left behind so that a restart
// does not pick it up.
func discardPartial(path string) {
	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	if err := sstable.Remove(path); err != nil {
		slog.Warn("failed to remove partial sstable", "path", path, "error", err)
	}
}
