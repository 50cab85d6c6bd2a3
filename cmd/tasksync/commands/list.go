package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/tasksync/internal/model"
	"github.com/slok/tasksync/internal/printer"
)

type ListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	statusFilter string
	labelFilter  string
	format       string
}

// NewListCommand returns the list command.
func NewListCommand(rootCmd *RootCommand, app *kingpin.Application) *ListCommand {
	c := &ListCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("list", "List all tasks.")
	c.Cmd.Flag("status", "Filter by status (open, in_progress, blocked, closed).").StringVar(&c.statusFilter)
	c.Cmd.Flag("label", "Filter by label.").StringVar(&c.labelFilter)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c ListCommand) Name() string { return c.Cmd.FullCommand() }

func (c ListCommand) Run(ctx context.Context) error {
	// Parse status filter if provided.
	var statusFilter *model.TaskStatus
	if c.statusFilter != "" {
		status := model.TaskStatus(strings.ToLower(c.statusFilter))
		// Validate status value.
		switch status {
		case model.TaskStatusOpen, model.TaskStatusInProgress, model.TaskStatusBlocked, model.TaskStatusClosed:
			statusFilter = &status
		default:
			return fmt.Errorf("invalid status filter: %s (must be: open, in_progress, blocked, closed)", c.statusFilter)
		}
	}

	s, err := newStore(ctx, c.rootCmd)
	if err != nil {
		return err
	}

	tasks, err := s.List(ctx, model.TaskFilter{
		Status: statusFilter,
		Label:  c.labelFilter,
	})
	if err != nil {
		return fmt.Errorf("could not list tasks: %w", err)
	}

	// Print output.
	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default: // table
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	if err := p.PrintTaskList(tasks); err != nil {
		return fmt.Errorf("could not print list: %w", err)
	}

	return nil
}
