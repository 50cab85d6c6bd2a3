package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slok/tasksync/internal/log"
	"github.com/slok/tasksync/internal/model"
	"github.com/slok/tasksync/internal/storage"
)

// StoreConfig is the configuration for the task store.
type StoreConfig struct {
	// WorkspacePrefix is the id prefix of tasks created by this store (e.g. `ws`).
	WorkspacePrefix string
	Journal         storage.Journal
	Logger          log.Logger
}

func (c *StoreConfig) defaults() error {
	if c.WorkspacePrefix == "" {
		return fmt.Errorf("workspace prefix is required")
	}
	if c.Journal == nil {
		return fmt.Errorf("journal is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "store.Store"})
	return nil
}

// Store is the authoritative in-memory task record store. Every write is
// appended to the journal before being committed to memory, a persist failure
// propagates to the caller and leaves the in-memory state untouched.
//
// Mutations emit typed events (created/updated/labeled/closed). Events are
// delivered synchronously after the store lock is released, so handlers can
// safely call back into the store.
type Store struct {
	prefix  string
	tasks   map[string]model.Task
	order   []string
	nextSeq int

	journal storage.Journal
	bus     *eventBus
	mu      sync.RWMutex
	logger  log.Logger
}

// NewStore creates a new task store. Call Load before first use when
// durability across restarts is required.
func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Store{
		prefix:  cfg.WorkspacePrefix,
		tasks:   map[string]model.Task{},
		nextSeq: 1,
		journal: cfg.Journal,
		bus:     newEventBus(),
		logger:  cfg.Logger,
	}, nil
}

// Load replays the journal into memory and positions the id sequence after
// the highest sequence already assigned in this workspace.
func (s *Store) Load(ctx context.Context) error {
	tasks, err := s.journal.Replay(ctx)
	if err != nil {
		return fmt.Errorf("could not replay journal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = make(map[string]model.Task, len(tasks))
	s.order = make([]string, 0, len(tasks))
	s.nextSeq = 1
	for _, t := range tasks {
		s.tasks[t.ID] = t
		s.order = append(s.order, t.ID)

		if seq, ok := s.sequenceOf(t.ID); ok && seq >= s.nextSeq {
			s.nextSeq = seq + 1
		}
	}

	s.logger.Infof("Loaded %d tasks from journal", len(tasks))

	return nil
}

// NewTask are the caller supplied fields of a task creation.
type NewTask struct {
	Title       string
	Description string
	Priority    int
	Owner       string
	Labels      []string
}

// Create creates a new task, assigning the next id in the workspace sequence,
// and emits a created event.
func (s *Store) Create(ctx context.Context, fields NewTask) (*model.Task, error) {
	s.mu.Lock()

	now := time.Now().UTC()
	task := model.Task{
		ID:          model.TaskID(s.prefix, s.nextSeq),
		Title:       fields.Title,
		Description: fields.Description,
		Status:      model.TaskStatusOpen,
		Priority:    fields.Priority,
		Owner:       fields.Owner,
		Labels:      model.NormalizeLabels(fields.Labels),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := task.Validate(); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("invalid task: %w", err)
	}

	if err := s.journal.Append(ctx, task); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("could not persist task: %w", err)
	}

	s.nextSeq++
	s.tasks[task.ID] = task
	s.order = append(s.order, task.ID)
	s.mu.Unlock()

	s.logger.Debugf("Created task %s", task.ID)
	s.bus.publish(Event{Kind: EventCreated, Task: task})

	return &task, nil
}

// Update applies a patch to a task and emits an updated event carrying the
// next and previous states. The task id is immutable, patches cannot touch it.
func (s *Store) Update(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error) {
	s.mu.Lock()

	prev, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}

	next := prev
	if patch.Title != nil {
		next.Title = *patch.Title
	}
	if patch.Description != nil {
		next.Description = *patch.Description
	}
	if patch.Status != nil {
		next.Status = *patch.Status
	}
	if patch.Priority != nil {
		next.Priority = *patch.Priority
	}
	if patch.Owner != nil {
		next.Owner = *patch.Owner
	}
	if patch.ExternalRef != nil {
		next.ExternalRef = *patch.ExternalRef
	}
	next.UpdatedAt = time.Now().UTC()
	if next.Status == model.TaskStatusClosed && next.ClosedAt == nil {
		closedAt := next.UpdatedAt
		next.ClosedAt = &closedAt
	}

	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("invalid task: %w", err)
	}

	if err := s.journal.Append(ctx, next); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("could not persist task: %w", err)
	}

	s.tasks[id] = next
	s.mu.Unlock()

	s.logger.Debugf("Updated task %s", id)
	s.bus.publish(Event{Kind: EventUpdated, Task: next, Prev: &prev})

	return &next, nil
}

// AddLabel adds a label to a task. Adding an already present label is a no-op
// and emits nothing.
func (s *Store) AddLabel(ctx context.Context, id, label string) (*model.Task, error) {
	return s.mutateLabels(ctx, id, func(labels []string) []string {
		return append(labels, label)
	})
}

// RemoveLabel removes a label from a task. Removing a missing label is a
// no-op and emits nothing.
func (s *Store) RemoveLabel(ctx context.Context, id, label string) (*model.Task, error) {
	return s.mutateLabels(ctx, id, func(labels []string) []string {
		result := make([]string, 0, len(labels))
		for _, l := range labels {
			if l != label {
				result = append(result, l)
			}
		}
		return result
	})
}

func (s *Store) mutateLabels(ctx context.Context, id string, mutate func([]string) []string) (*model.Task, error) {
	s.mu.Lock()

	prev, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}

	nextLabels := model.NormalizeLabels(mutate(prev.Labels))
	if labelsEqual(prev.Labels, nextLabels) {
		s.mu.Unlock()
		taskCopy := prev
		return &taskCopy, nil
	}

	next := prev
	next.Labels = nextLabels
	next.UpdatedAt = time.Now().UTC()

	if err := s.journal.Append(ctx, next); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("could not persist task: %w", err)
	}

	s.tasks[id] = next
	s.mu.Unlock()

	s.logger.Debugf("Relabeled task %s: %v", id, nextLabels)
	s.bus.publish(Event{Kind: EventLabeled, Task: next, Prev: &prev})

	return &next, nil
}

// Close closes a task, stamping its closed timestamp, and emits a closed
// event. Closing an already closed task is a no-op and emits nothing.
func (s *Store) Close(ctx context.Context, id, reason string) (*model.Task, error) {
	s.mu.Lock()

	prev, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}
	if prev.Status == model.TaskStatusClosed {
		s.mu.Unlock()
		taskCopy := prev
		return &taskCopy, nil
	}

	next := prev
	next.Status = model.TaskStatusClosed
	next.UpdatedAt = time.Now().UTC()
	closedAt := next.UpdatedAt
	next.ClosedAt = &closedAt

	if err := s.journal.Append(ctx, next); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("could not persist task: %w", err)
	}

	s.tasks[id] = next
	s.mu.Unlock()

	s.logger.Debugf("Closed task %s (reason: %s)", id, reason)
	s.bus.publish(Event{Kind: EventClosed, Task: next, Reason: reason})

	return &next, nil
}

// Get retrieves a task by id.
func (s *Store) Get(ctx context.Context, id string) (*model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}

	taskCopy := task
	return &taskCopy, nil
}

// List returns the tasks matching the filter, in creation order.
func (s *Store) List(ctx context.Context, filter model.TaskFilter) ([]model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]model.Task, 0, len(s.order))
	for _, id := range s.order {
		t := s.tasks[id]
		if filter.Matches(t) {
			tasks = append(tasks, t)
		}
	}

	return tasks, nil
}

// Size returns the number of tasks in the store.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// Subscribe registers a handler for a task mutation event kind and returns
// its unsubscribe function.
func (s *Store) Subscribe(kind EventKind, h Handler) func() {
	return s.bus.subscribe(kind, h)
}

// sequenceOf parses the sequence number of a task id belonging to this
// workspace. Ids with other prefixes don't advance the sequence.
func (s *Store) sequenceOf(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, s.prefix+"-")
	if !ok {
		return 0, false
	}
	seq, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return seq, true
}

func labelsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
