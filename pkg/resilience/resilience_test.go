package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsAllJobs(t *testing.T) {
	pool := NewWorkerPool(4, 8)

	var count atomic.Int64
	for i := 0; i < 100; i++ {
		require.NoError(t, pool.Submit(context.Background(), func() {
			count.Add(1)
		}))
	}
	pool.Close()
	pool.Wait()

	assert.Equal(t, int64(100), count.Load())
}

func TestWorkerPoolSubmitAfterClose(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	pool.Close()
	pool.Wait()

	err := pool.Submit(context.Background(), func() {})
	assert.ErrorIs(t, err, ErrWorkerPoolClosed)

	// Close is idempotent.
	pool.Close()
}

func TestWorkerPoolSubmitHonorsContext(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	defer func() {
		pool.Close()
		pool.Wait()
	}()

	block := make(chan struct{})
	// Occupy the single worker and fill the queue.
	require.NoError(t, pool.Submit(context.Background(), func() { <-block }))
	require.NoError(t, pool.Submit(context.Background(), func() {}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.Submit(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(block)
}

func TestWorkerPoolConcurrentSubmitAndClose(t *testing.T) {
	pool := NewWorkerPool(4, 4)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if err := pool.Submit(context.Background(), func() {}); err != nil {
					assert.ErrorIs(t, err, ErrWorkerPoolClosed)
					return
				}
			}
		}()
	}

	time.Sleep(5 * time.Millisecond)
	pool.Close()
	wg.Wait()
	pool.Wait()
}

var errRemoteDown = errors.New("remote down")

func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 3,
		OpenTimeout:      time.Hour,
	})
	ctx := context.Background()
	fail := func(context.Context) error { return errRemoteDown }

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, cb.Execute(ctx, fail), errRemoteDown)
	}
	assert.Equal(t, CircuitOpen, cb.State())

	// While open the call is rejected without reaching the dependency.
	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	var openErr *CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "test", openErr.Name)
	assert.Greater(t, openErr.RetryAfter, time.Duration(0))
}

func TestCircuitBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		OpenTimeout:      10 * time.Millisecond,
	})
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, func(context.Context) error { return errRemoteDown }))
	assert.Equal(t, CircuitOpen, cb.State())

	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	require.NoError(t, cb.Execute(ctx, func(context.Context) error { return nil }))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerReopensOnFailedProbe(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		OpenTimeout:      10 * time.Millisecond,
	})
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, func(context.Context) error { return errRemoteDown }))
	time.Sleep(15 * time.Millisecond)

	require.ErrorIs(t, cb.Execute(ctx, func(context.Context) error { return errRemoteDown }), errRemoteDown)
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreakerIgnoresContextCancellation(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = cb.Execute(ctx, func(context.Context) error { return context.Canceled })
	}
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerAdmitsOneProbe(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		OpenTimeout:      time.Millisecond,
	})
	ctx := context.Background()

	require.Error(t, cb.Execute(ctx, func(context.Context) error { return errRemoteDown }))
	time.Sleep(5 * time.Millisecond)

	probeStarted := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = cb.Execute(ctx, func(context.Context) error {
			close(probeStarted)
			<-release
			return nil
		})
	}()

	<-probeStarted
	// A second call during the in-flight probe is turned away.
	err := cb.Execute(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	close(release)
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()

	var active, maxActive atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("same-key")
			defer unlock()

			cur := active.Add(1)
			if cur > maxActive.Load() {
				maxActive.Store(cur)
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), maxActive.Load())
}

func TestKeyedMutexNeverBlocksDistinctKeys(t *testing.T) {
	km := NewKeyedMutex()

	// One key held for the duration, like a long streamed download.
	unlockA := km.Lock("file-a")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			unlock := km.Lock(fmt.Sprintf("file-%d", i))
			unlock()
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("distinct keys blocked behind a held lock")
	}
	unlockA()
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	km := NewKeyedMutex()

	unlockA := km.Lock("file-a")
	unlockB := km.Lock("file-b")
	unlockA()
	unlockB()

	km.mu.Lock()
	defer km.mu.Unlock()
	assert.Empty(t, km.entries)
}
