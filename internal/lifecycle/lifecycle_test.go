package lifecycle_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/tasksync/internal/lifecycle"
)

func TestWithTaskLifecycleLockSerializesSameTask(t *testing.T) {
	registry, err := lifecycle.NewRegistry(lifecycle.RegistryConfig{})
	require.NoError(t, err)

	ctx := context.Background()

	var mu sync.Mutex
	var order []int
	var running int
	var maxRunning int

	var wg sync.WaitGroup
	started := make(chan struct{})
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-started
			err := registry.WithTaskLifecycleLock(ctx, "ws-001", func(ctx context.Context) error {
				mu.Lock()
				running++
				if running > maxRunning {
					maxRunning = running
				}
				order = append(order, i)
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				running--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	close(started)
	wg.Wait()

	assert.Equal(t, 1, maxRunning, "work for the same task must never overlap")
	assert.Len(t, order, 10)
}

func TestWithTaskLifecycleLockDifferentTasksDontBlock(t *testing.T) {
	registry, err := lifecycle.NewRegistry(lifecycle.RegistryConfig{})
	require.NoError(t, err)

	ctx := context.Background()

	// First task holds its lock until we release it.
	firstRunning := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = registry.WithTaskLifecycleLock(ctx, "ws-001", func(ctx context.Context) error {
			close(firstRunning)
			<-release
			return nil
		})
	}()
	<-firstRunning

	// A different task must run immediately.
	done := make(chan struct{})
	go func() {
		_ = registry.WithTaskLifecycleLock(ctx, "ws-002", func(ctx context.Context) error {
			close(done)
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("work for a different task was blocked")
	}

	close(release)
}

func TestWithTaskLifecycleLockQueuedCancellation(t *testing.T) {
	registry, err := lifecycle.NewRegistry(lifecycle.RegistryConfig{})
	require.NoError(t, err)

	firstRunning := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = registry.WithTaskLifecycleLock(context.Background(), "ws-001", func(ctx context.Context) error {
			close(firstRunning)
			<-release
			return nil
		})
	}()
	<-firstRunning

	// Second call is queued, cancel it while waiting.
	cancelCtx, cancel := context.WithCancel(context.Background())
	secondErr := make(chan error, 1)
	go func() {
		secondErr <- registry.WithTaskLifecycleLock(cancelCtx, "ws-001", func(ctx context.Context) error {
			t.Error("cancelled queued work must not run")
			return nil
		})
	}()
	cancel()

	select {
	case err := <-secondErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled queued call did not return")
	}

	// Third call queued behind the cancelled one must still run once the
	// first finishes.
	thirdDone := make(chan struct{})
	go func() {
		_ = registry.WithTaskLifecycleLock(context.Background(), "ws-001", func(ctx context.Context) error {
			close(thirdDone)
			return nil
		})
	}()

	close(release)

	select {
	case <-thirdDone:
	case <-time.After(2 * time.Second):
		t.Fatal("queue did not drain past a cancelled call")
	}
}

func TestWithDirectTaskLifecycle(t *testing.T) {
	registry, err := lifecycle.NewRegistry(lifecycle.RegistryConfig{})
	require.NoError(t, err)

	ctx := context.Background()

	assert.False(t, registry.IsDirectTaskLifecycleActive("ws-001"))

	err = registry.WithDirectTaskLifecycle(ctx, "ws-001", func(ctx context.Context) error {
		assert.True(t, registry.IsDirectTaskLifecycleActive("ws-001"))
		assert.False(t, registry.IsDirectTaskLifecycleActive("ws-002"))
		return nil
	})
	require.NoError(t, err)

	assert.False(t, registry.IsDirectTaskLifecycleActive("ws-001"))
}

func TestWithTaskLifecycleLockPropagatesWorkError(t *testing.T) {
	registry, err := lifecycle.NewRegistry(lifecycle.RegistryConfig{})
	require.NoError(t, err)

	expErr := assert.AnError
	err = registry.WithTaskLifecycleLock(context.Background(), "ws-001", func(ctx context.Context) error {
		return expErr
	})
	assert.ErrorIs(t, err, expErr)
}
