package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/tasksync/internal/model"
	"github.com/slok/tasksync/internal/store"
)

type CreateCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	title       string
	description string
	priority    int
	owner       string
	labels      []string
	noThread    bool
}

// NewCreateCommand returns the create command.
func NewCreateCommand(rootCmd *RootCommand, app *kingpin.Application) *CreateCommand {
	c := &CreateCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("create", "Create a new task.")

	c.Cmd.Flag("title", "Title for the task.").Short('t').Required().StringVar(&c.title)
	c.Cmd.Flag("description", "Description for the task.").Short('d').StringVar(&c.description)
	c.Cmd.Flag("priority", "Priority for the task (higher is more urgent).").IntVar(&c.priority)
	c.Cmd.Flag("owner", "Owner of the task.").StringVar(&c.owner)
	c.Cmd.Flag("label", "Label for the task (repeatable).").Short('l').StringsVar(&c.labels)
	c.Cmd.Flag("no-thread", "Never create a remote thread for this task.").BoolVar(&c.noThread)

	return c
}

func (c CreateCommand) Name() string { return c.Cmd.FullCommand() }

func (c CreateCommand) Run(ctx context.Context) error {
	s, err := newStore(ctx, c.rootCmd)
	if err != nil {
		return err
	}

	labels := c.labels
	if c.noThread {
		labels = append(labels, model.NoThreadLabel)
	}

	task, err := s.Create(ctx, store.NewTask{
		Title:       c.title,
		Description: c.description,
		Priority:    c.priority,
		Owner:       c.owner,
		Labels:      labels,
	})
	if err != nil {
		return fmt.Errorf("could not create task: %w", err)
	}

	fmt.Fprintf(c.rootCmd.Stdout, "Task created successfully!\n")
	fmt.Fprintf(c.rootCmd.Stdout, "  ID:     %s\n", task.ID)
	fmt.Fprintf(c.rootCmd.Stdout, "  Title:  %s\n", task.Title)
	fmt.Fprintf(c.rootCmd.Stdout, "  Status: %s\n", task.Status)

	return nil
}
