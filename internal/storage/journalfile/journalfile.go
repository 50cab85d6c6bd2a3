package journalfile

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/slok/tasksync/internal/log"
	"github.com/slok/tasksync/internal/model"
)

// JournalConfig is the configuration for the file journal.
type JournalConfig struct {
	Path   string
	Logger log.Logger
}

func (c *JournalConfig) defaults() error {
	if c.Path == "" {
		return fmt.Errorf("journal path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.JournalFile"})
	return nil
}

// Journal is an append-only file implementation of storage.Journal. Entries
// are JSON encoded, one per line.
type Journal struct {
	path   string
	mu     sync.Mutex
	logger log.Logger
}

// NewJournal creates a new file journal.
func NewJournal(cfg JournalConfig) (*Journal, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create journal directory: %w", err)
	}

	return &Journal{
		path:   cfg.Path,
		logger: cfg.Logger,
	}, nil
}

// Append writes a single task entry at the end of the journal.
func (j *Journal) Append(ctx context.Context, t model.Task) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(newEntry(t))
	if err != nil {
		return fmt.Errorf("could not encode task: %w", err)
	}

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("could not open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("could not append to journal: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("could not sync journal: %w", err)
	}

	return nil
}

// Replay reads the whole journal and returns the resulting tasks, keeping the
// last written entry per task id. A missing journal file is valid and returns
// zero tasks.
func (j *Journal) Replay(ctx context.Context) ([]model.Task, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not open journal: %w", err)
	}
	defer f.Close()

	latest := map[string]model.Task{}
	order := []string{}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var e entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("could not decode journal line %d: %w", line, err)
		}

		if _, ok := latest[e.ID]; !ok {
			order = append(order, e.ID)
		}
		latest[e.ID] = e.toModel()
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("could not read journal: %w", err)
	}

	tasks := make([]model.Task, 0, len(order))
	for _, id := range order {
		tasks = append(tasks, latest[id])
	}

	j.logger.Debugf("Replayed %d journal entries into %d tasks", line, len(tasks))

	return tasks, nil
}

// entry is the JSON wire format of a single journal record.
type entry struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	Priority    int        `json:"priority,omitempty"`
	Owner       string     `json:"owner,omitempty"`
	Labels      []string   `json:"labels,omitempty"`
	ExternalRef string     `json:"external_ref,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

func newEntry(t model.Task) entry {
	return entry{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    t.Priority,
		Owner:       t.Owner,
		Labels:      t.Labels,
		ExternalRef: t.ExternalRef,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		ClosedAt:    t.ClosedAt,
	}
}

func (e entry) toModel() model.Task {
	return model.Task{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Status:      model.TaskStatus(e.Status),
		Priority:    e.Priority,
		Owner:       e.Owner,
		Labels:      model.NormalizeLabels(e.Labels),
		ExternalRef: e.ExternalRef,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
		ClosedAt:    e.ClosedAt,
	}
}
