package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"lsmkv/pkg/sstable"
)

// TableRef locates one live SSTable.
type TableRef struct {
	Seq  uint64
	Path string
}

// Catalog lists live SSTables ordered by ascending sequence number.
type Catalog []TableRef

// Seqs returns the sequence numbers of the catalog in order.
func (c Catalog) Seqs() []uint64 {
	seqs := make([]uint64, len(c))
	for i, t := range c {
		seqs[i] = t.Seq
	}
	return seqs
}

// Paths returns the file paths of the catalog in order.
func (c Catalog) Paths() []string {
	paths := make([]string, len(c))
	for i, t := range c {
		paths[i] = t.Path
	}
	return paths
}

// Scan rebuilds the catalog from the SSTable files in dir and returns the
// next sequence number to assign: one past the highest found, or 0.
// Entries that do not follow the sst_<N>.txt naming are ignored.
func Scan(dir string) (Catalog, uint64, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read data dir %s: %w", dir, err)
	}

	bySeq := make(map[uint64]string)
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		seq, ok := sstable.ParseFileName(name)
		if !ok {
			continue
		}

		// sst_7.txt and sst_007.txt share a sequence number; the canonical
		// spelling wins
		if prev, dup := bySeq[seq]; dup {
			kept, ignored := prev, name
			if name == sstable.FileName(seq) {
				kept, ignored = name, prev
			}
			slog.Warn("duplicate sstable sequence", "seq", seq, "kept", kept, "ignored", ignored)
			bySeq[seq] = kept
			continue
		}
		bySeq[seq] = name
	}

	catalog := make(Catalog, 0, len(bySeq))
	for seq, name := range bySeq {
		catalog = append(catalog, TableRef{Seq: seq, Path: filepath.Join(dir, name)})
	}
	sort.Slice(catalog, func(i, j int) bool { return catalog[i].Seq < catalog[j].Seq })

	var next uint64
	if len(catalog) > 0 {
		next = catalog[len(catalog)-1].Seq + 1
	}

	return catalog, next, nil
}
