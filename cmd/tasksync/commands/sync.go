package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/tasksync/internal/printer"
)

type SyncCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	syncFlags syncFlags
	format    string
}

// NewSyncCommand returns the sync command.
func NewSyncCommand(rootCmd *RootCommand, app *kingpin.Application) *SyncCommand {
	c := &SyncCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("sync", "Run a one-shot sync of tasks against their remote threads.")
	c.syncFlags.register(c.Cmd)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c SyncCommand) Name() string { return c.Cmd.FullCommand() }

func (c SyncCommand) Run(ctx context.Context) error {
	s, err := newStore(ctx, c.rootCmd)
	if err != nil {
		return err
	}

	engine, err := newSyncEngine(s, c.syncFlags, c.rootCmd)
	if err != nil {
		return err
	}

	result, err := engine.service.Sync(ctx)
	if err != nil {
		return fmt.Errorf("could not sync: %w", err)
	}

	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default: // table
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	if err := p.PrintSyncResult(*result); err != nil {
		return fmt.Errorf("could not print sync result: %w", err)
	}

	return nil
}
