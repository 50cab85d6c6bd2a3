// Package plan implements the phased diff/reconcile pipeline of a sync run.
// Everything here is pure: no I/O, fully deterministic given its inputs.
package plan

import (
	"regexp"

	"github.com/slok/tasksync/internal/model"
)

var blockedLabelRegexp = regexp.MustCompile(`^(waiting|blocked)-`)

// Snapshot is the task list a sync run works on.
type Snapshot struct {
	Tasks []model.Task
}

// Ingest takes the current store contents and returns the run snapshot. It
// copies the list shape only, the records themselves are shared so later
// stages read through to the same data.
func Ingest(tasks []model.Task) Snapshot {
	copied := make([]model.Task, len(tasks))
	copy(copied, tasks)
	return Snapshot{Tasks: copied}
}

// Buckets is the classification of the snapshot into phase inputs. A task may
// land in both TasksMissingRef and NeedsBlockedTasks at the same time.
type Buckets struct {
	// TasksMissingRef holds non-closed tasks without a thread that want one.
	TasksMissingRef []model.Task
	// NeedsBlockedTasks holds open tasks with a waiting-/blocked- label.
	NeedsBlockedTasks []model.Task
	// TasksWithRef holds non-closed tasks with a linked thread.
	TasksWithRef []model.Task
	// ClosedTasks holds closed tasks that still have a linked thread.
	ClosedTasks []model.Task
}

// Normalize classifies the snapshot tasks into buckets, preserving snapshot
// order inside each bucket.
func Normalize(s Snapshot) Buckets {
	var b Buckets
	for _, t := range s.Tasks {
		closed := t.Status == model.TaskStatusClosed

		if t.ExternalRef == "" && !closed && !t.HasLabel(model.NoThreadLabel) {
			b.TasksMissingRef = append(b.TasksMissingRef, t)
		}
		if t.Status == model.TaskStatusOpen && hasBlockedLabel(t) {
			b.NeedsBlockedTasks = append(b.NeedsBlockedTasks, t)
		}
		if t.ExternalRef != "" && !closed {
			b.TasksWithRef = append(b.TasksWithRef, t)
		}
		if closed && t.ExternalRef != "" {
			b.ClosedTasks = append(b.ClosedTasks, t)
		}
	}
	return b
}

func hasBlockedLabel(t model.Task) bool {
	for _, l := range t.Labels {
		if blockedLabelRegexp.MatchString(l) {
			return true
		}
	}
	return false
}

// Diff walks the buckets in phase order and emits one operation per
// (phase, task) pair, skipping any operation key already seen. Order within a
// phase is the bucket order, first seen wins.
func Diff(b Buckets) []model.SyncOperation {
	buckets := []struct {
		phase model.SyncPhase
		tasks []model.Task
	}{
		{model.SyncPhaseMissingRef, b.TasksMissingRef},
		{model.SyncPhaseBlockedLabels, b.NeedsBlockedTasks},
		{model.SyncPhaseActiveThreads, b.TasksWithRef},
		{model.SyncPhaseClosedThreads, b.ClosedTasks},
	}

	seen := map[string]struct{}{}
	var ops []model.SyncOperation
	for _, bucket := range buckets {
		for _, t := range bucket.tasks {
			op := model.SyncOperation{Phase: bucket.phase, TaskID: t.ID}
			if _, ok := seen[op.Key()]; ok {
				continue
			}
			seen[op.Key()] = struct{}{}
			ops = append(ops, op)
		}
	}
	return ops
}

// BuildPhasePlans turns the operation list into the ordered dispatch contract
// that phase execution consumes: always exactly four phase entries, each with
// its ordered task id list (possibly empty).
func BuildPhasePlans(ops []model.SyncOperation) []model.PhasePlan {
	plans := make([]model.PhasePlan, 0, len(model.SyncPhases))
	for _, phase := range model.SyncPhases {
		p := model.PhasePlan{Phase: phase, TaskIDs: []string{}}
		for _, op := range ops {
			if op.Phase == phase {
				p.TaskIDs = append(p.TaskIDs, op.TaskID)
			}
		}
		plans = append(plans, p)
	}
	return plans
}

// TasksByShortID indexes tasks by their short id. Tasks from different
// workspace prefixes can share a short id, which reconciliation reports as a
// collision.
func TasksByShortID(tasks []model.Task) map[string][]model.Task {
	byShortID := map[string][]model.Task{}
	for _, t := range tasks {
		shortID := t.ShortID()
		if shortID == "" {
			continue
		}
		byShortID[shortID] = append(byShortID[shortID], t)
	}
	return byShortID
}

// Reconcile builds the phase 5 operation list from the live thread listing.
//
// Thread-id matching (a task's own external ref) always takes precedence over
// name-derived matching: a task linked to a different thread is never
// re-linked here, the thread is reported as skip_external_ref_mismatch
// instead. Name parsing is strictly a fallback heuristic for threads without
// a referencing task.
func Reconcile(
	threads []model.ThreadSnapshot,
	tasksByShortID map[string][]model.Task,
	shortIDFromName func(name string) string,
	threadIDForTask func(t model.Task) string,
) []model.ReconcileOperation {
	var ops []model.ReconcileOperation

	for _, thread := range threads {
		shortID := shortIDFromName(thread.Name)
		if shortID == "" {
			continue
		}

		matches := tasksByShortID[shortID]
		switch {
		case len(matches) == 0:
			ops = append(ops, model.ReconcileOperation{
				Action:  model.ReconcileActionOrphan,
				Thread:  thread,
				ShortID: shortID,
			})
			continue
		case len(matches) > 1:
			ops = append(ops, model.ReconcileOperation{
				Action:         model.ReconcileActionCollision,
				Thread:         thread,
				ShortID:        shortID,
				CollisionCount: len(matches),
			})
			continue
		}

		task := matches[0]
		if ref := threadIDForTask(task); ref != "" && ref != thread.ID {
			ops = append(ops, model.ReconcileOperation{
				Action:           model.ReconcileActionSkipExternalRefMismatch,
				Thread:           thread,
				ShortID:          shortID,
				Task:             &task,
				ExistingThreadID: ref,
			})
			continue
		}

		switch {
		case task.Status == model.TaskStatusClosed && !thread.Archived:
			ops = append(ops, model.ReconcileOperation{
				Action:  model.ReconcileActionArchiveActiveClosed,
				Thread:  thread,
				ShortID: shortID,
				Task:    &task,
			})
		case task.Status == model.TaskStatusClosed && thread.Archived:
			ops = append(ops, model.ReconcileOperation{
				Action:  model.ReconcileActionReconcileArchivedClosed,
				Thread:  thread,
				ShortID: shortID,
				Task:    &task,
			})
		}
	}

	return ops
}
