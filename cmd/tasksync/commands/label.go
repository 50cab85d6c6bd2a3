package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

type LabelCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskID string
	add    []string
	remove []string
}

// NewLabelCommand returns the label command.
func NewLabelCommand(rootCmd *RootCommand, app *kingpin.Application) *LabelCommand {
	c := &LabelCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("label", "Add or remove task labels.")
	c.Cmd.Arg("id", "Task id.").Required().StringVar(&c.taskID)
	c.Cmd.Flag("add", "Label to add (repeatable).").StringsVar(&c.add)
	c.Cmd.Flag("remove", "Label to remove (repeatable).").StringsVar(&c.remove)

	return c
}

func (c LabelCommand) Name() string { return c.Cmd.FullCommand() }

func (c LabelCommand) Run(ctx context.Context) error {
	if len(c.add) == 0 && len(c.remove) == 0 {
		return fmt.Errorf("at least one --add or --remove is required")
	}

	s, err := newStore(ctx, c.rootCmd)
	if err != nil {
		return err
	}

	for _, label := range c.add {
		if _, err := s.AddLabel(ctx, c.taskID, label); err != nil {
			return fmt.Errorf("could not add label %q: %w", label, err)
		}
	}
	for _, label := range c.remove {
		if _, err := s.RemoveLabel(ctx, c.taskID, label); err != nil {
			return fmt.Errorf("could not remove label %q: %w", label, err)
		}
	}

	task, err := s.Get(ctx, c.taskID)
	if err != nil {
		return fmt.Errorf("could not get task: %w", err)
	}

	fmt.Fprintf(c.rootCmd.Stdout, "Task %s labels: %v\n", task.ID, task.Labels)

	return nil
}
