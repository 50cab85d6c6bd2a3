package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/slok/tasksync/internal/log"
)

// RegistryConfig is the configuration for the lifecycle registry.
type RegistryConfig struct {
	Logger log.Logger
}

func (c *RegistryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "lifecycle.Registry"})
	return nil
}

// Registry serializes task lifecycle work per task id and tracks which tasks
// are currently direct-owned by a foreground caller.
//
// It is instance scoped: create one per running sync engine and pass it to
// collaborators explicitly, so parallel engine instances (e.g. under test)
// never share lock state.
type Registry struct {
	mu     sync.Mutex
	chains map[string]*chain
	direct map[string]int
	logger log.Logger
}

// chain is the per-key FIFO of lifecycle work. tail is the done channel of
// the last queued call, refs counts queued plus running calls so the entry
// can be removed once the chain drains.
type chain struct {
	tail chan struct{}
	refs int
}

// NewRegistry creates a new lifecycle registry.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Registry{
		chains: map[string]*chain{},
		direct: map[string]int{},
		logger: cfg.Logger,
	}, nil
}

// WithTaskLifecycleLock serializes the work against all other lifecycle work
// for the same task id, in arrival order. Calls for different task ids never
// block each other.
//
// When the context is cancelled while queued, the call returns the context
// error without running work, the queue slot is released once its predecessor
// finishes so successors keep their ordering.
func (r *Registry) WithTaskLifecycleLock(ctx context.Context, taskID string, work func(ctx context.Context) error) error {
	prev, done := r.enqueue(taskID)

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			// Keep the chain intact: release our slot only after the
			// predecessor finishes.
			go func() {
				<-prev
				close(done)
				r.release(taskID)
			}()
			return ctx.Err()
		}
	}

	defer func() {
		close(done)
		r.release(taskID)
	}()

	return work(ctx)
}

// WithDirectTaskLifecycle runs the work under the task lifecycle lock and
// additionally marks the task as direct-owned for the duration of the work,
// so background reconciliation can detect and skip redundant syncs for it.
func (r *Registry) WithDirectTaskLifecycle(ctx context.Context, taskID string, work func(ctx context.Context) error) error {
	return r.WithTaskLifecycleLock(ctx, taskID, func(ctx context.Context) error {
		r.markDirect(taskID)
		defer r.unmarkDirect(taskID)

		return work(ctx)
	})
}

// IsDirectTaskLifecycleActive returns true while a foreground caller is
// direct-owning the task's thread lifecycle.
func (r *Registry) IsDirectTaskLifecycleActive(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.direct[taskID] > 0
}

func (r *Registry) enqueue(taskID string) (prev chan struct{}, done chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	done = make(chan struct{})
	c, ok := r.chains[taskID]
	if !ok {
		c = &chain{}
		r.chains[taskID] = c
	}
	prev = c.tail
	c.tail = done
	c.refs++

	return prev, done
}

func (r *Registry) release(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.chains[taskID]
	if !ok {
		return
	}
	c.refs--
	if c.refs <= 0 {
		delete(r.chains, taskID)
	}
}

func (r *Registry) markDirect(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.direct[taskID]++
}

func (r *Registry) unmarkDirect(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.direct[taskID]--
	if r.direct[taskID] <= 0 {
		delete(r.direct, taskID)
	}
}
