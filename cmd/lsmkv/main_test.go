package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	lsmhttp "lsmkv/internal/http"
	"lsmkv/pkg/config"
	"lsmkv/pkg/metrics"
	"lsmkv/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestPutGetCommands(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "missing.yaml")
	dataDir := filepath.Join(dir, "data")

	out := execute(t, "--config", cfgPath, "--data-dir", dataDir, "put", "name", "lsm")
	assert.Contains(t, out, "Stored key=name, value=lsm")

	out = execute(t, "--config", cfgPath, "--data-dir", dataDir, "get", "name")
	assert.Equal(t, "lsm\n", out)

	out = execute(t, "--config", cfgPath, "--data-dir", dataDir, "get", "nope")
	assert.Contains(t, out, "does not exist")

	out = execute(t, "--config", cfgPath, "--data-dir", dataDir, "stats")
	assert.Contains(t, out, `"sst_count"`)
}

func TestCompactCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	dataDir := filepath.Join(dir, "data")

	// every put closes the store and leaves one table behind
	for _, k := range []string{"a", "b", "c"} {
		execute(t, "--config", cfgPath, "--data-dir", dataDir, "put", k, "v")
	}

	out := execute(t, "--config", cfgPath, "--data-dir", dataDir, "compact")
	assert.Contains(t, out, "SSTables:")

	out = execute(t, "--config", cfgPath, "--data-dir", dataDir, "get", "b")
	assert.Equal(t, "v\n", out)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel("WARN").String())
	assert.Equal(t, "ERROR", parseLevel("error").String())
	assert.Equal(t, "INFO", parseLevel("bogus").String())
}

func TestBenchAgainstServer(t *testing.T) {
	engine := config.Default().Engine
	engine.DataDir = t.TempDir()
	db, err := store.New(engine)
	require.NoError(t, err)
	defer db.Close()

	serverCfg := config.Default().Server
	serverCfg.Port = 0
	srv := lsmhttp.NewServer(db, serverCfg, metrics.NewRegistry())
	require.NoError(t, srv.Start())
	defer srv.Stop()

	out := execute(t, "bench", "--url", srv.URL, "--ops", "40", "--concurrency", "4")
	assert.Contains(t, out, "=== PUT ===")
	assert.Contains(t, out, "=== GET ===")
	assert.Contains(t, out, "(errors: 0)")
}

func TestSummarize(t *testing.T) {
	res := summarize("PUT", 3, 0, time.Second, []time.Duration{
		3 * time.Millisecond, time.Millisecond, 2 * time.Millisecond,
	})
	assert.Equal(t, time.Millisecond, res.MinLatency)
	assert.Equal(t, 3*time.Millisecond, res.MaxLatency)
	assert.Equal(t, 2*time.Millisecond, res.AvgLatency)
	assert.InDelta(t, 3.0, res.OpsPerSec, 0.001)

	empty := summarize("GET", 5, 5, time.Second, nil)
	assert.Zero(t, empty.AvgLatency)
	assert.True(t, strings.HasPrefix(empty.Operation, "GET"))
}
