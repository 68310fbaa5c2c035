package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolProcessesAllItems(t *testing.T) {
	var count atomic.Int64
	pool := NewPool[int](4, 64, func(_ context.Context, _ int) error {
		count.Add(1)
		return nil
	})

	require.NoError(t, pool.Start(context.Background()))
	for i := 0; i < 50; i++ {
		require.NoError(t, pool.Submit(i))
	}
	require.NoError(t, pool.Stop(time.Second))

	assert.Equal(t, int64(50), count.Load())

	submitted, processed, failed, dropped := pool.Stats()
	assert.Equal(t, int64(50), submitted)
	assert.Equal(t, int64(50), processed)
	assert.Equal(t, int64(0), failed)
	assert.Equal(t, int64(0), dropped)
}

func TestPoolCountsFailures(t *testing.T) {
	pool := NewPool[int](2, 16, func(_ context.Context, n int) error {
		if n%2 == 0 {
			return errors.New("even numbers fail")
		}
		return nil
	})

	require.NoError(t, pool.Start(context.Background()))
	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(i))
	}
	require.NoError(t, pool.Stop(time.Second))

	_, processed, failed, _ := pool.Stats()
	assert.Equal(t, int64(5), processed)
	assert.Equal(t, int64(5), failed)
}

func TestPoolDropsWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	pool := NewPool[int](1, 1, func(_ context.Context, _ int) error {
		<-block
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	// First item occupies the worker, second fills the queue.
	require.NoError(t, pool.Submit(1))
	// The worker may not have picked up item 1 yet; keep submitting until
	// the queue rejects.
	var sawFull bool
	for i := 0; i < 10; i++ {
		if err := pool.Submit(i); errors.Is(err, ErrQueueFull) {
			sawFull = true
			break
		}
	}
	assert.True(t, sawFull)

	close(block)
	require.NoError(t, pool.Stop(time.Second))
}

func TestSubmitAfterStop(t *testing.T) {
	pool := NewPool[int](1, 4, func(_ context.Context, _ int) error { return nil })
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Stop(time.Second))

	err := pool.Submit(1)
	assert.True(t, errors.Is(err, ErrStopped))
}

func TestSubmitRacingStop(t *testing.T) {
	// Submitters hammering the queue while Stop closes it must either
	// enqueue or get ErrStopped/ErrQueueFull, never panic on the closed
	// channel.
	pool := NewPool[int](2, 8, func(_ context.Context, _ int) error { return nil })
	require.NoError(t, pool.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; ; i++ {
			if err := pool.Submit(i); errors.Is(err, ErrStopped) {
				return
			}
		}
	}()

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, pool.Stop(time.Second))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("submitter never observed stop")
	}
}

func TestNilProcessorPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewPool[int](1, 1, nil)
	})
}
