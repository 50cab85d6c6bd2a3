// Package sync implements the coordinator that drives the phased sync
// pipeline against the remote thread platform.
package sync

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/tasksync/internal/lifecycle"
	"github.com/slok/tasksync/internal/log"
	"github.com/slok/tasksync/internal/model"
	"github.com/slok/tasksync/internal/plan"
	"github.com/slok/tasksync/internal/tagmap"
	"github.com/slok/tasksync/internal/threads"
)

// TaskSource is the subset of the task store the coordinator needs.
type TaskSource interface {
	Get(ctx context.Context, id string) (*model.Task, error)
	List(ctx context.Context, filter model.TaskFilter) ([]model.Task, error)
	Update(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error)
}

// runState is the concurrency guard state machine: Idle -> Running ->
// {Idle | RunningAgain}. RunningAgain is entered only through the pending
// flag and always returns to Idle after the follow-up run.
type runState int

const (
	stateIdle runState = iota
	stateRunning
	stateRunningAgain
)

// ServiceConfig is the configuration for the sync coordinator.
type ServiceConfig struct {
	Store     TaskSource
	Platform  threads.Platform
	TagMap    *tagmap.Loader
	Lifecycle *lifecycle.Registry

	// WorkspaceRef and ForumID locate the remote forum holding task threads.
	WorkspaceRef string
	ForumID      string
	// MentionRef, when set, is mentioned on newly created threads.
	MentionRef string

	// OperationDelay paces remote calls to respect external rate limits.
	OperationDelay time.Duration
	// ArchivedReconcileLimit caps how many archived threads a single run
	// considers, bounding per-run cost.
	ArchivedReconcileLimit int

	Logger log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Store == nil {
		return fmt.Errorf("store is required")
	}
	if c.Platform == nil {
		return fmt.Errorf("platform is required")
	}
	if c.TagMap == nil {
		return fmt.Errorf("tag map is required")
	}
	if c.Lifecycle == nil {
		return fmt.Errorf("lifecycle registry is required")
	}
	if c.WorkspaceRef == "" {
		return fmt.Errorf("workspace ref is required")
	}
	if c.ForumID == "" {
		return fmt.Errorf("forum id is required")
	}
	if c.ArchivedReconcileLimit <= 0 {
		c.ArchivedReconcileLimit = 50
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Sync"})
	return nil
}

// Service is the sync coordinator. Sync is not reentrant: a call arriving
// while a run is in flight sets a single pending flag instead of starting a
// second run, collapsing any burst of concurrent triggers into at most one
// follow-up run.
type Service struct {
	store     TaskSource
	platform  threads.Platform
	tagMap    *tagmap.Loader
	lifecycle *lifecycle.Registry

	workspaceRef string
	forumID      string
	mentionRef   string

	opDelay       time.Duration
	archivedLimit int

	stateMu sync.Mutex
	state   runState

	logger log.Logger
}

// NewService creates a new sync coordinator.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		store:         cfg.Store,
		platform:      cfg.Platform,
		tagMap:        cfg.TagMap,
		lifecycle:     cfg.Lifecycle,
		workspaceRef:  cfg.WorkspaceRef,
		forumID:       cfg.ForumID,
		mentionRef:    cfg.MentionRef,
		opDelay:       cfg.OperationDelay,
		archivedLimit: cfg.ArchivedReconcileLimit,
		logger:        cfg.Logger,
	}, nil
}

// Sync runs a full sync of tasks against their remote threads and returns the
// run summary.
//
// When another run is already in flight the call doesn't start a second one:
// it flags a single pending follow-up and returns a coalesced result. The
// follow-up runs once the in-flight run finishes, fire-and-forget, with its
// failures only logged.
func (s *Service) Sync(ctx context.Context) (*model.SyncResult, error) {
	s.stateMu.Lock()
	switch s.state {
	case stateRunning:
		s.state = stateRunningAgain
		s.stateMu.Unlock()
		s.logger.Debugf("Sync already in flight, coalescing trigger into a pending follow-up run")
		return &model.SyncResult{Coalesced: true}, nil
	case stateRunningAgain:
		s.stateMu.Unlock()
		s.logger.Debugf("Sync already in flight with a pending follow-up, dropping trigger")
		return &model.SyncResult{Coalesced: true}, nil
	}
	s.state = stateRunning
	s.stateMu.Unlock()

	result, err := s.run(ctx)

	s.stateMu.Lock()
	pending := s.state == stateRunningAgain
	s.state = stateIdle
	s.stateMu.Unlock()

	if pending {
		go func() {
			if _, followErr := s.Sync(context.Background()); followErr != nil {
				s.logger.Errorf("Follow-up sync run failed: %s", followErr)
			}
		}()
	}

	return result, err
}

// run executes one sync run end to end.
func (s *Service) run(ctx context.Context) (*model.SyncResult, error) {
	runID := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	logger := s.logger.WithValues(log.Kv{"run-id": runID})

	result := &model.SyncResult{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
	}
	defer func() {
		result.Duration = time.Since(result.StartedAt)
	}()

	// Reload the tag map, never fail the run for it: a broken or unreadable
	// file just keeps the previously cached map.
	if err := s.tagMap.Reload(ctx); err != nil {
		logger.Warningf("Could not reload tag map, using cached one: %s", err)
		result.Warnings = append(result.Warnings, fmt.Sprintf("tag map reload failed: %s", err))
	}
	// One immutable snapshot for the whole run, the backing file may change
	// mid-run.
	tags := s.tagMap.Snapshot()

	forum, err := s.platform.ResolveForum(ctx, s.workspaceRef, s.forumID)
	if err != nil {
		return result, fmt.Errorf("could not resolve forum %s: %w", s.forumID, err)
	}

	tasks, err := s.store.List(ctx, model.TaskFilter{})
	if err != nil {
		return result, fmt.Errorf("could not list tasks: %w", err)
	}

	snapshot := plan.Ingest(tasks)
	buckets := plan.Normalize(snapshot)
	ops := plan.Diff(buckets)
	phasePlans := plan.BuildPhasePlans(ops)

	logger.Debugf("Planned %d operations over %d tasks", len(ops), len(snapshot.Tasks))

	// Phases run strictly in order: later phases assume earlier ones already
	// converged this run.
	for _, phasePlan := range phasePlans {
		s.executePhase(ctx, logger, *forum, phasePlan, tags, result)
	}

	if err := s.reconcile(ctx, logger, tags, result); err != nil {
		return result, fmt.Errorf("could not reconcile threads: %w", err)
	}

	logger.Infof("Sync run finished: %d created, %d archived, %d reconciled, %d orphans, %d warnings",
		result.ThreadsCreated, result.ThreadsArchived, result.ThreadsReconciled,
		result.OrphanThreadsFound, len(result.Warnings))

	return result, nil
}

// executePhase applies every operation of a phase. A single task's failure
// never blocks its phase siblings, it is recorded as a warning and the same
// operation is naturally retried on the next run.
func (s *Service) executePhase(ctx context.Context, logger log.Logger, forum threads.Forum, phasePlan model.PhasePlan, tags map[string]string, result *model.SyncResult) {
	for _, taskID := range phasePlan.TaskIDs {
		err := s.lifecycle.WithTaskLifecycleLock(ctx, taskID, func(ctx context.Context) error {
			return s.executeOperation(ctx, forum, phasePlan.Phase, taskID, tags, result)
		})
		if err != nil {
			logger.Warningf("Task %s failed on %s: %s", taskID, phasePlan.Phase, err)
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: task %s: %s", phasePlan.Phase, taskID, err))
		}

		s.pace(ctx)
	}
}

func (s *Service) executeOperation(ctx context.Context, forum threads.Forum, phase model.SyncPhase, taskID string, tags map[string]string, result *model.SyncResult) error {
	// Always work on the freshest record, earlier phases of this run may have
	// linked a thread already.
	task, err := s.store.Get(ctx, taskID)
	if err != nil {
		return fmt.Errorf("could not get task: %w", err)
	}

	switch phase {
	case model.SyncPhaseMissingRef:
		return s.syncMissingRef(ctx, forum, *task, tags, result)
	case model.SyncPhaseBlockedLabels:
		return s.syncBlockedLabels(ctx, *task, tags, result)
	case model.SyncPhaseActiveThreads:
		return s.syncActiveThread(ctx, *task, tags, result)
	case model.SyncPhaseClosedThreads:
		return s.syncClosedThread(ctx, *task, tags, result)
	}

	return fmt.Errorf("unknown phase %s: %w", phase, model.ErrNotValid)
}

// syncMissingRef links the task to its thread, creating it if needed. The
// operation is idempotent: re-running it for a task that already got a thread
// discovers the existing one instead of duplicating it.
func (s *Service) syncMissingRef(ctx context.Context, forum threads.Forum, task model.Task, tags map[string]string, result *model.SyncResult) error {
	if task.ExternalRef != "" {
		return nil
	}

	threadID, err := s.platform.FindExistingThreadForTask(ctx, forum, task.ID)
	if err != nil {
		return fmt.Errorf("could not look up existing thread: %w", err)
	}

	if threadID == "" {
		threadID, err = s.platform.CreateThread(ctx, forum, task, tags, s.mentionRef)
		if err != nil {
			return fmt.Errorf("could not create thread: %w", err)
		}
		result.ThreadsCreated++
	}

	if _, err := s.store.Update(ctx, task.ID, model.TaskPatch{ExternalRef: &threadID}); err != nil {
		return fmt.Errorf("could not link thread %s: %w", threadID, err)
	}

	return nil
}

// syncBlockedLabels refreshes the thread tags of a task carrying a
// waiting-/blocked- label so the blocked state is visible remotely.
func (s *Service) syncBlockedLabels(ctx context.Context, task model.Task, tags map[string]string, result *model.SyncResult) error {
	if task.ExternalRef == "" {
		return nil
	}

	if err := s.platform.UpdateThreadTags(ctx, task.ExternalRef, task, tags); err != nil {
		return fmt.Errorf("could not update thread tags: %w", err)
	}
	result.TagsUpdated++

	return nil
}

// syncActiveThread converges an active thread with its task: unarchived,
// right name, right tags, right starter message.
func (s *Service) syncActiveThread(ctx context.Context, task model.Task, tags map[string]string, result *model.SyncResult) error {
	if task.ExternalRef == "" || task.Status == model.TaskStatusClosed {
		return nil
	}

	if err := s.platform.EnsureUnarchived(ctx, task.ExternalRef); err != nil {
		return fmt.Errorf("could not unarchive thread: %w", err)
	}

	if err := s.platform.UpdateThreadName(ctx, task.ExternalRef, task); err != nil {
		return fmt.Errorf("could not update thread name: %w", err)
	}
	result.ThreadNamesUpdated++

	if err := s.platform.UpdateThreadTags(ctx, task.ExternalRef, task, tags); err != nil {
		return fmt.Errorf("could not update thread tags: %w", err)
	}
	result.TagsUpdated++

	if err := s.platform.UpdateStarterMessage(ctx, task.ExternalRef, task); err != nil {
		return fmt.Errorf("could not update starter message: %w", err)
	}
	result.StarterMessagesUpdated++

	return nil
}

// syncClosedThread closes the thread of a closed task. Rate limited closes
// are counted as deferred and naturally retried on the next run.
func (s *Service) syncClosedThread(ctx context.Context, task model.Task, tags map[string]string, result *model.SyncResult) error {
	if task.ExternalRef == "" {
		return nil
	}

	err := s.platform.CloseThread(ctx, task.ExternalRef, task, tags)
	if err != nil {
		if errors.Is(err, model.ErrDeferred) {
			result.ClosesDeferred++
			return nil
		}
		return fmt.Errorf("could not close thread: %w", err)
	}
	result.ThreadsArchived++

	return nil
}

// reconcile fetches the live thread listings and applies the phase 5 plan. A
// listing failure short-circuits reconciliation for this run, everything the
// run already applied stands.
func (s *Service) reconcile(ctx context.Context, logger log.Logger, tags map[string]string, result *model.SyncResult) error {
	active, err := s.platform.ListActiveThreads(ctx)
	if err != nil {
		return fmt.Errorf("could not list active threads: %w", err)
	}

	archived, err := s.platform.ListArchivedThreads(ctx)
	if err != nil {
		return fmt.Errorf("could not list archived threads: %w", err)
	}
	if len(archived) > s.archivedLimit {
		logger.Debugf("Capping archived threads considered this run: %d of %d", s.archivedLimit, len(archived))
		archived = archived[:s.archivedLimit]
	}

	merged := model.MergeThreadSnapshots(archived, active)

	// Refetch so threads linked earlier this run aren't seen as orphans.
	tasks, err := s.store.List(ctx, model.TaskFilter{})
	if err != nil {
		return fmt.Errorf("could not list tasks: %w", err)
	}

	ops := plan.Reconcile(
		merged,
		plan.TasksByShortID(tasks),
		model.ShortIDFromThreadName,
		func(t model.Task) string { return t.ExternalRef },
	)

	for _, op := range ops {
		if err := s.executeReconcileOperation(ctx, logger, op, tags, result); err != nil {
			logger.Warningf("Reconcile of thread %s failed: %s", op.Thread.ID, err)
			result.Warnings = append(result.Warnings, fmt.Sprintf("reconcile: thread %s: %s", op.Thread.ID, err))
		}
	}

	return nil
}

func (s *Service) executeReconcileOperation(ctx context.Context, logger log.Logger, op model.ReconcileOperation, tags map[string]string, result *model.SyncResult) error {
	switch op.Action {
	case model.ReconcileActionOrphan:
		result.OrphanThreadsFound++
		logger.Warningf("Orphan thread %s (%q): short id %s has no matching task", op.Thread.ID, op.Thread.Name, op.ShortID)
		return nil

	case model.ReconcileActionCollision:
		warning := fmt.Sprintf("short id %s of thread %s matches %d tasks, skipping", op.ShortID, op.Thread.ID, op.CollisionCount)
		logger.Warningf("%s", warning)
		result.Warnings = append(result.Warnings, warning)
		return nil

	case model.ReconcileActionSkipExternalRefMismatch:
		// Never re-link a task to a different thread, its own ref wins.
		logger.Debugf("Skipping thread %s: task %s is linked to thread %s", op.Thread.ID, op.Task.ID, op.ExistingThreadID)
		return nil

	case model.ReconcileActionArchiveActiveClosed:
		err := s.lifecycle.WithTaskLifecycleLock(ctx, op.Task.ID, func(ctx context.Context) error {
			return s.platform.CloseThread(ctx, op.Thread.ID, *op.Task, tags)
		})
		if err != nil {
			if errors.Is(err, model.ErrDeferred) {
				result.ClosesDeferred++
				return nil
			}
			return fmt.Errorf("could not archive thread: %w", err)
		}
		result.ThreadsArchived++
		s.pace(ctx)
		return nil

	case model.ReconcileActionReconcileArchivedClosed:
		err := s.lifecycle.WithTaskLifecycleLock(ctx, op.Task.ID, func(ctx context.Context) error {
			return s.platform.UpdateThreadTags(ctx, op.Thread.ID, *op.Task, tags)
		})
		if err != nil {
			return fmt.Errorf("could not reconcile archived thread: %w", err)
		}
		result.ThreadsReconciled++
		s.pace(ctx)
		return nil
	}

	return fmt.Errorf("unknown reconcile action %q: %w", op.Action, model.ErrNotValid)
}

// pace waits the configured inter-operation delay to respect remote rate limits.
func (s *Service) pace(ctx context.Context) {
	if s.opDelay <= 0 {
		return
	}

	t := time.NewTimer(s.opDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
