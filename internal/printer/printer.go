package printer

import "github.com/slok/tasksync/internal/model"

// Printer knows how to print task and sync information in different formats.
type Printer interface {
	PrintTaskList(tasks []model.Task) error
	PrintTask(task model.Task) error
	PrintSyncResult(result model.SyncResult) error
	PrintMessage(msg string) error
}
