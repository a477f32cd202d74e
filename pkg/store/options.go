package store

import "lsmkv/pkg/metrics"

type Option func(*Store)

// WithMetrics reports flush and compaction activity to c.
func WithMetrics(c metrics.Collector) Option {
	return func(s *Store) {
		s.metrics = c
	}
}

// WithBackgroundCompaction moves compaction checks off the flushing
// goroutine onto a dedicated worker.
func WithBackgroundCompaction() Option {
	return func(s *Store) {
		s.cfg.BackgroundCompaction = true
	}
}
