package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slok/tasksync/internal/log"
	"github.com/slok/tasksync/internal/model"
)

// RetrySchedulerConfig is the configuration for the retry scheduler.
type RetrySchedulerConfig struct {
	// Enabled turns retry scheduling on. When disabled Observe is a no-op.
	Enabled bool
	// FailureDelay is the wait before retrying after an ordinary run failure.
	FailureDelay time.Duration
	// DeferredDelay is the wait before retrying after a run that completed
	// partially because the platform rate limited it.
	DeferredDelay time.Duration
	Syncer        Syncer
	Logger        log.Logger
}

func (c *RetrySchedulerConfig) defaults() error {
	if c.Syncer == nil {
		return fmt.Errorf("syncer is required")
	}
	if c.FailureDelay <= 0 {
		c.FailureDelay = 30 * time.Second
	}
	if c.DeferredDelay <= 0 {
		c.DeferredDelay = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.SyncRetry"})
	return nil
}

// RetryScheduler layers retry scheduling on top of the coordinator. A new
// failure reschedules the single pending timer instead of stacking a second
// one, a clean successful run cancels it.
type RetryScheduler struct {
	enabled       bool
	failureDelay  time.Duration
	deferredDelay time.Duration
	syncer        Syncer

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool

	logger log.Logger
}

// NewRetryScheduler creates a new retry scheduler.
func NewRetryScheduler(cfg RetrySchedulerConfig) (*RetryScheduler, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &RetryScheduler{
		enabled:       cfg.Enabled,
		failureDelay:  cfg.FailureDelay,
		deferredDelay: cfg.DeferredDelay,
		syncer:        cfg.Syncer,
		logger:        cfg.Logger,
	}, nil
}

// Observe inspects a finished run and schedules, reschedules or cancels the
// retry accordingly. Coalesced results are ignored, the in-flight run will
// report its own outcome.
func (r *RetryScheduler) Observe(result *model.SyncResult, err error) {
	if !r.enabled {
		return
	}
	if result != nil && result.Coalesced {
		return
	}

	switch {
	case err != nil:
		r.schedule(r.failureDelay, fmt.Sprintf("run failed: %s", err))
	case result != nil && result.ClosesDeferred > 0:
		r.schedule(r.deferredDelay, fmt.Sprintf("%d closes deferred", result.ClosesDeferred))
	default:
		r.cancel()
	}
}

// Stop cancels any pending retry and rejects future scheduling.
func (r *RetryScheduler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *RetryScheduler) schedule(delay time.Duration, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}

	r.logger.Infof("Scheduling sync retry in %s (%s)", delay, reason)

	r.timer = time.AfterFunc(delay, func() {
		result, err := r.syncer.Sync(context.Background())
		if err != nil {
			r.logger.Errorf("Retried sync failed: %s", err)
		}
		r.Observe(result, err)
	})
}

func (r *RetryScheduler) cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
		r.logger.Debugf("Cancelled pending sync retry after successful run")
	}
}
