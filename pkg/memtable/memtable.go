package memtable

import (
	"sync/atomic"

	"lsmkv/pkg/sstable"
)

// Memtable is the ordered in-memory write buffer. A later Put of the same key
// overwrites the earlier value in place. It has no size limit of its own; the
// store decides when to flush it.
type Memtable struct {
	underlying atomic.Pointer[sortedSet]
}

func New() *Memtable {
	var mt Memtable
	mt.underlying.Store(newSortedSet())
	return &mt
}

func (mt *Memtable) Put(key, value string) {
	mt.underlying.Load().Store(key, value)
}

func (mt *Memtable) Get(key string) (string, bool) {
	return mt.underlying.Load().Load(key)
}

// Len returns the number of distinct keys.
func (mt *Memtable) Len() int {
	return mt.underlying.Load().Len()
}

// Range calls fn for each entry in ascending key order until fn returns false.
func (mt *Memtable) Range(fn func(key, value string) bool) {
	mt.underlying.Load().Range(fn)
}

// Sorted returns a snapshot of all entries ordered by key. The memtable is
// left untouched, so a flush that fails afterwards loses nothing.
func (mt *Memtable) Sorted() []sstable.Entry {
	return sorted(mt.underlying.Load())
}

// Reset discards every entry.
func (mt *Memtable) Reset() {
	mt.underlying.Store(newSortedSet())
}

// Drain swaps in an empty table and returns the previous contents ordered
// by key. A flush that may fail uses Sorted and then Reset instead, so the
// data stays in place until the table is written.
func (mt *Memtable) Drain() []sstable.Entry {
	return sorted(mt.underlying.Swap(newSortedSet()))
}
