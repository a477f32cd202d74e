package store

import (
	"fmt"
	"math/rand"
	"testing"

	"lsmkv/pkg/config"
)

func newBenchStore(b *testing.B) (*Store, func()) {
	cfg := config.Default().Engine
	cfg.DataDir = b.TempDir()
	cfg.MemtableMaxSize = 1000
	cfg.CompactionThreshold = 8

	store, err := New(cfg)
	if err != nil {
		b.Fatalf("failed to create store: %v", err)
	}

	cleanup := func() {
		if err := store.Close(); err != nil {
			b.Fatalf("failed to close store: %v", err)
		}
	}

	return store, cleanup
}

func BenchmarkStoreWrite(b *testing.B) {
	store, cleanup := newBenchStore(b)
	defer cleanup()

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if err := store.Put(fmt.Sprintf("key-%d", i), "value-"+fmt.Sprint(i)); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}
}

func BenchmarkStoreRead(b *testing.B) {
	store, cleanup := newBenchStore(b)
	defer cleanup()

	const preloaded = 10_000
	for i := 0; i < preloaded; i++ {
		if err := store.Put(fmt.Sprintf("key-%d", i), "value-"+fmt.Sprint(i)); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}

	b.ReportAllocs()
	b.ResetTimer()

	rng := rand.New(rand.NewSource(42))

	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("key-%d", rng.Intn(preloaded))
		if _, found, err := store.Get(key); err != nil || !found {
			b.Fatalf("Get failed: %v (found=%v)", err, found)
		}
	}
}
