package storage

import (
	"context"

	"github.com/slok/tasksync/internal/model"
)

// Journal is the interface for task persistence. Implementations store one
// entry per logical write, replaying the journal reconstructs the current
// state (last write per task id wins). An empty journal is valid and means
// zero tasks.
type Journal interface {
	Append(ctx context.Context, t model.Task) error
	Replay(ctx context.Context) ([]model.Task, error)
}
