// Package compaction merges a set of SSTables into a single table.
//
// Compaction here is full, not leveled: every candidate table is merged into
// exactly one output whose sequence number is one greater than the newest
// merged input. Entries of a newer table win over entries of an older one.
package compaction

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"lsmkv/pkg/sstable"
)

// Compact merges the tables with the given sequence numbers found in dataDir.
// It reports false when there is nothing to do: no candidate file exists or
// the merged result is empty. Inputs are removed only after the output has
// been written; a failed removal is logged and does not fail the compaction.
func Compact(dataDir string, seqs []uint64) (uint64, bool, error) {
	if len(seqs) == 0 {
		return 0, false, nil
	}

	ordered := append([]uint64(nil), seqs...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	merged := make(map[string]string)
	existing := make([]uint64, 0, len(ordered))

	for _, seq := range ordered {
		path := sstable.Path(dataDir, seq)
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, false, fmt.Errorf("failed to stat sstable %d: %w", seq, err)
		}

		entries, err := sstable.Read(path)
		if err != nil {
			return 0, false, fmt.Errorf("failed to merge sstable %d: %w", seq, err)
		}
		existing = append(existing, seq)

		// later sequences override earlier ones
		for k, v := range entries {
			merged[k] = v
		}
	}

	if len(existing) == 0 || len(merged) == 0 {
		slog.Debug("compaction skipped", "candidates", len(seqs), "existing", len(existing))
		return 0, false, nil
	}

	newSeq := existing[len(existing)-1] + 1
	newPath := sstable.Path(dataDir, newSeq)
	if err := sstable.Write(newPath, sstable.Sorted(merged)); err != nil {
		return 0, false, fmt.Errorf("failed to write compacted sstable: %w", err)
	}

	// the output already shadows every input, so a leftover input is only
	// wasted space
	for _, seq := range existing {
		if err := sstable.Remove(sstable.Path(dataDir, seq)); err != nil {
			slog.Warn("failed to remove compacted input", "seq", seq, "error", err)
		}
	}

	slog.Info("compaction finished",
		"inputs", len(existing),
		"keys", len(merged),
		"seq", newSeq,
		"path", newPath,
	)

	return newSeq, true, nil
}
