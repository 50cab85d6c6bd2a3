package sync

import (
	"context"
	"fmt"

	"github.com/slok/tasksync/internal/log"
	"github.com/slok/tasksync/internal/model"
	"github.com/slok/tasksync/internal/store"
)

// Syncer is what the store trigger and the retry scheduler need from the
// coordinator.
type Syncer interface {
	Sync(ctx context.Context) (*model.SyncResult, error)
}

// EventSource is the subset of the task store the trigger subscribes to.
type EventSource interface {
	Subscribe(kind store.EventKind, h store.Handler) func()
}

// DirectOwnership reports whether a foreground caller is already managing a
// task's thread lifecycle.
type DirectOwnership interface {
	IsDirectTaskLifecycleActive(taskID string) bool
}

// StoreTriggerConfig is the configuration for the store trigger.
type StoreTriggerConfig struct {
	Store     EventSource
	Lifecycle DirectOwnership
	Syncer    Syncer
	Logger    log.Logger
}

func (c *StoreTriggerConfig) defaults() error {
	if c.Store == nil {
		return fmt.Errorf("store is required")
	}
	if c.Lifecycle == nil {
		return fmt.Errorf("lifecycle registry is required")
	}
	if c.Syncer == nil {
		return fmt.Errorf("syncer is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.SyncStoreTrigger"})
	return nil
}

// StoreTrigger bridges task store mutation events to coordinator sync runs.
//
// It subscribes to updated, closed and labeled events only. Creation is
// deliberately not subscribed: direct task-creation flows create and link
// their own thread inline and call the coordinator separately when needed.
type StoreTrigger struct {
	store       EventSource
	lifecycle   DirectOwnership
	syncer      Syncer
	unsubscribe []func()
	logger      log.Logger
}

// NewStoreTrigger creates the trigger and subscribes it to the store.
func NewStoreTrigger(cfg StoreTriggerConfig) (*StoreTrigger, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	t := &StoreTrigger{
		store:     cfg.Store,
		lifecycle: cfg.Lifecycle,
		syncer:    cfg.Syncer,
		logger:    cfg.Logger,
	}

	for _, kind := range []store.EventKind{store.EventUpdated, store.EventClosed, store.EventLabeled} {
		t.unsubscribe = append(t.unsubscribe, cfg.Store.Subscribe(kind, t.handle))
	}

	return t, nil
}

func (t *StoreTrigger) handle(e store.Event) {
	// The foreground caller already owns this task's thread state end to end,
	// a background sync for the same mutation would be redundant.
	if t.lifecycle.IsDirectTaskLifecycleActive(e.Task.ID) {
		t.logger.Debugf("Skipping sync trigger for task %s (%s): direct lifecycle active", e.Task.ID, e.Kind)
		return
	}

	if _, err := t.syncer.Sync(context.Background()); err != nil {
		t.logger.Errorf("Triggered sync failed (task %s, %s): %s", e.Task.ID, e.Kind, err)
	}
}

// Stop unsubscribes all handlers. It does not cancel a sync already in flight.
func (t *StoreTrigger) Stop() {
	for _, u := range t.unsubscribe {
		u()
	}
	t.unsubscribe = nil
}
