package clock

import "sync/atomic"

// AtomicClock hands out sequence numbers. Val is the next number to be
// assigned.
type AtomicClock struct {
	atomic.Uint64
}

func NewAtomic(init uint64) *AtomicClock {
	var ac AtomicClock
	ac.Set(init)
	return &ac
}

func (ac *AtomicClock) Val() uint64 {
	return ac.Load()
}

// Next advances the clock and returns the new value.
func (ac *AtomicClock) Next() uint64 {
	return ac.Add(1)
}

func (ac *AtomicClock) Set(t uint64) {
	ac.Store(t)
}

// AtLeast raises the clock to t if it is behind.
func (ac *AtomicClock) AtLeast(t uint64) {
	for {
		cur := ac.Load()
		if cur >= t || ac.CompareAndSwap(cur, t) {
			return
		}
	}
}
