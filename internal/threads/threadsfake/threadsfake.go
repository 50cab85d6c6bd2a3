package threadsfake

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/tasksync/internal/log"
	"github.com/slok/tasksync/internal/model"
	"github.com/slok/tasksync/internal/threads"
)

// PlatformConfig is the configuration for the fake platform.
type PlatformConfig struct {
	Logger log.Logger
}

func (c *PlatformConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "threads.Fake"})
	return nil
}

type thread struct {
	id       string
	name     string
	taskID   string
	tags     []string
	starter  string
	archived bool
}

// Platform is an in-memory implementation of threads.Platform. It simulates
// the remote collaboration platform without network calls, useful for local
// runs and tests.
type Platform struct {
	threads map[string]*thread
	mu      sync.RWMutex
	logger  log.Logger
}

// NewPlatform creates a new fake platform.
func NewPlatform(cfg PlatformConfig) (*Platform, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Platform{
		threads: map[string]*thread{},
		logger:  cfg.Logger,
	}, nil
}

// ResolveForum resolves any forum reference, the fake has a single implicit forum.
func (p *Platform) ResolveForum(ctx context.Context, workspaceRef, forumID string) (*threads.Forum, error) {
	return &threads.Forum{WorkspaceRef: workspaceRef, ID: forumID}, nil
}

// FindExistingThreadForTask returns the thread already created for the task,
// or an empty string.
func (p *Platform) FindExistingThreadForTask(ctx context.Context, forum threads.Forum, taskID string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, t := range p.threads {
		if t.taskID == taskID {
			return t.id, nil
		}
	}
	return "", nil
}

// CreateThread creates a new active thread for the task.
func (p *Platform) CreateThread(ctx context.Context, forum threads.Forum, task model.Task, tagMap map[string]string, mentionRef string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	p.threads[id] = &thread{
		id:      id,
		name:    model.ThreadNameForTask(task),
		taskID:  task.ID,
		tags:    mapLabels(task, tagMap),
		starter: task.Description,
	}

	p.logger.Infof("Created fake thread %s for task %s", id, task.ID)

	return id, nil
}

// EnsureUnarchived unarchives the thread if needed.
func (p *Platform) EnsureUnarchived(ctx context.Context, threadID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.threads[threadID]
	if !ok {
		return fmt.Errorf("thread %s: %w", threadID, model.ErrNotFound)
	}
	t.archived = false
	return nil
}

// UpdateThreadName converges the thread name to the task's.
func (p *Platform) UpdateThreadName(ctx context.Context, threadID string, task model.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.threads[threadID]
	if !ok {
		return fmt.Errorf("thread %s: %w", threadID, model.ErrNotFound)
	}
	t.name = model.ThreadNameForTask(task)
	return nil
}

// UpdateThreadTags converges the thread tags to the task's labels.
func (p *Platform) UpdateThreadTags(ctx context.Context, threadID string, task model.Task, tagMap map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.threads[threadID]
	if !ok {
		return fmt.Errorf("thread %s: %w", threadID, model.ErrNotFound)
	}
	t.tags = mapLabels(task, tagMap)
	return nil
}

// UpdateStarterMessage converges the thread starter message to the task description.
func (p *Platform) UpdateStarterMessage(ctx context.Context, threadID string, task model.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.threads[threadID]
	if !ok {
		return fmt.Errorf("thread %s: %w", threadID, model.ErrNotFound)
	}
	t.starter = task.Description
	return nil
}

// CloseThread archives the thread with its final tags.
func (p *Platform) CloseThread(ctx context.Context, threadID string, task model.Task, tagMap map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.threads[threadID]
	if !ok {
		return fmt.Errorf("thread %s: %w", threadID, model.ErrNotFound)
	}
	t.tags = mapLabels(task, tagMap)
	t.archived = true

	p.logger.Infof("Closed fake thread %s for task %s", threadID, task.ID)

	return nil
}

// ListActiveThreads returns snapshots of non-archived threads.
func (p *Platform) ListActiveThreads(ctx context.Context) ([]model.ThreadSnapshot, error) {
	return p.list(false), nil
}

// ListArchivedThreads returns snapshots of archived threads.
func (p *Platform) ListArchivedThreads(ctx context.Context) ([]model.ThreadSnapshot, error) {
	return p.list(true), nil
}

func (p *Platform) list(archived bool) []model.ThreadSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var snapshots []model.ThreadSnapshot
	for _, t := range p.threads {
		if t.archived != archived {
			continue
		}
		snapshots = append(snapshots, model.ThreadSnapshot{
			ID:       t.id,
			Name:     t.name,
			Archived: t.archived,
		})
	}
	return snapshots
}

func mapLabels(task model.Task, tagMap map[string]string) []string {
	var tags []string
	for _, l := range task.Labels {
		if tag, ok := tagMap[l]; ok {
			tags = append(tags, tag)
		}
	}
	return tags
}
