package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("k\tv\n"), 0644))
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"sst_10.txt", "sst_2.txt", "sst_0.txt", "notes.md", "sst_x.txt", "sst_-3.txt", "L0_1.sst"} {
		touch(t, dir, name)
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sst_99.txt"), 0755))

	catalog, next, err := Scan(dir)
	require.NoError(t, err)

	assert.Equal(t, []uint64{0, 2, 10}, catalog.Seqs())
	assert.Equal(t, []string{
		filepath.Join(dir, "sst_0.txt"),
		filepath.Join(dir, "sst_2.txt"),
		filepath.Join(dir, "sst_10.txt"),
	}, catalog.Paths())
	assert.Equal(t, uint64(11), next)

	// scanning is repeatable and has no side effects
	again, nextAgain, err := Scan(dir)
	require.NoError(t, err)
	assert.Equal(t, catalog, again)
	assert.Equal(t, next, nextAgain)
}

func TestScan_Empty(t *testing.T) {
	catalog, next, err := Scan(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, catalog)
	assert.Equal(t, uint64(0), next)
}

func TestScan_DuplicateSequence(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "sst_007.txt")
	touch(t, dir, "sst_7.txt")

	catalog, next, err := Scan(dir)
	require.NoError(t, err)
	require.Len(t, catalog, 1)
	assert.Equal(t, filepath.Join(dir, "sst_7.txt"), catalog[0].Path)
	assert.Equal(t, uint64(8), next)
}

func TestScan_MissingDir(t *testing.T) {
	_, _, err := Scan(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
