package model

import (
	"fmt"
	"time"
)

// SyncPhase identifies one of the ordered stages of a sync run. Phases execute
// strictly in order within a run, later phases assume earlier ones already
// converged.
type SyncPhase int

const (
	// SyncPhaseMissingRef creates and links threads for tasks without one.
	SyncPhaseMissingRef SyncPhase = iota + 1
	// SyncPhaseBlockedLabels refreshes tags for tasks with waiting-/blocked- labels.
	SyncPhaseBlockedLabels
	// SyncPhaseActiveThreads converges name/tags/starter message of linked threads.
	SyncPhaseActiveThreads
	// SyncPhaseClosedThreads closes threads of closed tasks.
	SyncPhaseClosedThreads
)

// SyncPhases lists the plan phases in execution order.
var SyncPhases = []SyncPhase{
	SyncPhaseMissingRef,
	SyncPhaseBlockedLabels,
	SyncPhaseActiveThreads,
	SyncPhaseClosedThreads,
}

func (p SyncPhase) String() string {
	return fmt.Sprintf("phase%d", int(p))
}

// SyncOperation is a single unit of phased sync work for one task. Operations
// are created fresh on every run and discarded once applied.
type SyncOperation struct {
	Phase  SyncPhase
	TaskID string
}

// Key returns the deduplication key of the operation. A task may legitimately
// appear in two different phases of the same plan, but never twice in the same
// phase.
func (o SyncOperation) Key() string {
	return fmt.Sprintf("task-sync:%s:%s", o.Phase, o.TaskID)
}

// PhasePlan is the ordered task dispatch list for a single phase.
type PhasePlan struct {
	Phase   SyncPhase
	TaskIDs []string
}

// ReconcileAction identifies what the reconciliation stage decided for a thread.
type ReconcileAction string

const (
	// ReconcileActionOrphan means the thread names a short id with no matching task.
	ReconcileActionOrphan ReconcileAction = "orphan"
	// ReconcileActionCollision means more than one task shares the thread short id.
	ReconcileActionCollision ReconcileAction = "collision"
	// ReconcileActionSkipExternalRefMismatch means the single matching task is
	// already linked to a different thread, so this one must not be touched.
	ReconcileActionSkipExternalRefMismatch ReconcileAction = "skip_external_ref_mismatch"
	// ReconcileActionArchiveActiveClosed means the task is closed but its thread
	// is still active and must be archived.
	ReconcileActionArchiveActiveClosed ReconcileAction = "archive_active_closed"
	// ReconcileActionReconcileArchivedClosed means the task is closed and the
	// thread archived, but its metadata/tags may have drifted.
	ReconcileActionReconcileArchivedClosed ReconcileAction = "reconcile_archived_closed"
)

// ReconcileOperation is a single unit of reconciliation work for one thread.
type ReconcileOperation struct {
	Action           ReconcileAction
	Thread           ThreadSnapshot
	ShortID          string
	Task             *Task
	CollisionCount   int
	ExistingThreadID string
}

// SyncResult summarizes what a sync run did.
type SyncResult struct {
	RunID string
	// Coalesced is true when the call didn't run because another run was in
	// flight; the pending follow-up run will pick the work up.
	Coalesced bool

	ThreadsCreated         int
	ThreadNamesUpdated     int
	StarterMessagesUpdated int
	TagsUpdated            int
	ThreadsArchived        int
	ThreadsReconciled      int
	OrphanThreadsFound     int
	ClosesDeferred         int
	Warnings               []string

	StartedAt time.Time
	Duration  time.Duration
}
