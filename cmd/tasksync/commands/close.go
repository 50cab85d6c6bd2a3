package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

type CloseCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskID string
	reason string
}

// NewCloseCommand returns the close command.
func NewCloseCommand(rootCmd *RootCommand, app *kingpin.Application) *CloseCommand {
	c := &CloseCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("close", "Close a task.")
	c.Cmd.Arg("id", "Task id.").Required().StringVar(&c.taskID)
	c.Cmd.Flag("reason", "Reason for closing the task.").StringVar(&c.reason)

	return c
}

func (c CloseCommand) Name() string { return c.Cmd.FullCommand() }

func (c CloseCommand) Run(ctx context.Context) error {
	s, err := newStore(ctx, c.rootCmd)
	if err != nil {
		return err
	}

	task, err := s.Close(ctx, c.taskID, c.reason)
	if err != nil {
		return fmt.Errorf("could not close task: %w", err)
	}

	fmt.Fprintf(c.rootCmd.Stdout, "Task %s closed\n", task.ID)

	return nil
}
