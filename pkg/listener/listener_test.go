package listener

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestListener_HandlesInput(t *testing.T) {
	in := make(chan int)
	var sum atomic.Int64
	stopped := false

	l := New("sum", in, func(v int) error {
		sum.Add(int64(v))
		return nil
	}, func() { stopped = true })

	l.Start(context.Background())
	for i := 1; i <= 4; i++ {
		in <- i
	}
	l.Stop()

	assert.Equal(t, int64(10), sum.Load())
	assert.True(t, stopped)
}

func TestListener_ErrorDoesNotStop(t *testing.T) {
	in := make(chan int)
	var calls atomic.Int32

	l := New("flaky", in, func(v int) error {
		calls.Add(1)
		if v == 1 {
			return errors.New("boom")
		}
		return nil
	})

	l.Start(context.Background())
	in <- 1
	in <- 2
	assert.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 10*time.Millisecond)
	l.Stop()
}

func TestListener_ClosedChannel(t *testing.T) {
	in := make(chan int)
	l := New("closed", in, func(int) error { return nil })

	l.Start(context.Background())
	close(in)
	l.Stop()
}
