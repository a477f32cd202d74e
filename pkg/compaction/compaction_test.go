package compaction

import (
	"os"
	"path/filepath"
	"testing"

	"lsmkv/pkg/sstable"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTable(t *testing.T, dir string, seq uint64, entries ...sstable.Entry) {
	t.Helper()
	require.NoError(t, sstable.Write(sstable.Path(dir, seq), entries))
}

func listTables(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "sst_*.txt"))
	require.NoError(t, err)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, filepath.Base(m))
	}
	return names
}

func TestCompact_NewestWins(t *testing.T) {
	dir := t.TempDir()
	writeTable(t, dir, 0, sstable.Entry{Key: "shared", Value: "v0"}, sstable.Entry{Key: "x", Value: "old"})
	writeTable(t, dir, 1, sstable.Entry{Key: "shared", Value: "v1"}, sstable.Entry{Key: "y", Value: "1"})

	seq, ok, err := Compact(dir, []uint64{1, 0})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(2), seq)

	assert.Equal(t, []string{"sst_2.txt"}, listTables(t, dir))

	raw, err := os.ReadFile(sstable.Path(dir, 2))
	require.NoError(t, err)
	assert.Equal(t, "shared\tv1\nx\told\ny\t1\n", string(raw))
}

func TestCompact_SkipsMissingInputs(t *testing.T) {
	dir := t.TempDir()
	writeTable(t, dir, 3, sstable.Entry{Key: "a", Value: "3"})
	writeTable(t, dir, 5, sstable.Entry{Key: "a", Value: "5"})

	// 4 and 9 were never written; the new seq follows the newest merged input
	seq, ok, err := Compact(dir, []uint64{3, 4, 5, 9})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(6), seq)

	data, err := sstable.Read(sstable.Path(dir, 6))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "5"}, data)
	assert.Equal(t, []string{"sst_6.txt"}, listTables(t, dir))
}

func TestCompact_Noop(t *testing.T) {
	t.Run("no candidates", func(t *testing.T) {
		_, ok, err := Compact(t.TempDir(), nil)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("no existing files", func(t *testing.T) {
		dir := t.TempDir()
		_, ok, err := Compact(dir, []uint64{0, 1})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, listTables(t, dir))
	})

	t.Run("empty merge", func(t *testing.T) {
		dir := t.TempDir()
		writeTable(t, dir, 0)
		require.NoError(t, os.WriteFile(sstable.Path(dir, 1), []byte("garbage\n"), 0644))

		_, ok, err := Compact(dir, []uint64{0, 1})
		require.NoError(t, err)
		assert.False(t, ok)
		// inputs stay untouched on a no-op
		assert.Equal(t, []string{"sst_0.txt", "sst_1.txt"}, listTables(t, dir))
	})
}

func TestCompact_WriteFailureKeepsInputs(t *testing.T) {
	dir := t.TempDir()
	writeTable(t, dir, 0, sstable.Entry{Key: "a", Value: "1"})
	writeTable(t, dir, 1, sstable.Entry{Key: "b", Value: "2"})
	// a directory in place of the output file makes the write fail
	require.NoError(t, os.Mkdir(sstable.Path(dir, 2), 0755))

	_, ok, err := Compact(dir, []uint64{0, 1})
	require.Error(t, err)
	assert.False(t, ok)

	for _, seq := range []uint64{0, 1} {
		_, err := os.Stat(sstable.Path(dir, seq))
		assert.NoError(t, err)
	}
}
