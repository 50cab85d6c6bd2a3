package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/slok/tasksync/internal/log"
	"github.com/slok/tasksync/internal/model"
)

// JournalConfig is the configuration for the memory journal.
type JournalConfig struct {
	Logger log.Logger
}

func (c *JournalConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Journal is an in-memory implementation of storage.Journal. It keeps the
// entries in append order so replay behaves like the file journal.
type Journal struct {
	entries []model.Task
	mu      sync.Mutex
	logger  log.Logger
}

// NewJournal creates a new memory journal.
func NewJournal(cfg JournalConfig) (*Journal, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Journal{logger: cfg.Logger}, nil
}

// Append stores a single task entry.
func (j *Journal) Append(ctx context.Context, t model.Task) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries = append(j.entries, t)
	j.logger.Debugf("Appended journal entry for task %s", t.ID)

	return nil
}

// Replay returns the tasks resulting from the stored entries, last write per
// task id wins.
func (j *Journal) Replay(ctx context.Context) ([]model.Task, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	latest := map[string]model.Task{}
	order := []string{}
	for _, e := range j.entries {
		if _, ok := latest[e.ID]; !ok {
			order = append(order, e.ID)
		}
		latest[e.ID] = e
	}

	tasks := make([]model.Task, 0, len(order))
	for _, id := range order {
		tasks = append(tasks, latest[id])
	}

	return tasks, nil
}
