package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"

	appsync "github.com/slok/tasksync/internal/app/sync"
)

type DaemonCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	syncFlags syncFlags

	interval           time.Duration
	retry              bool
	retryFailureDelay  time.Duration
	retryDeferredDelay time.Duration
}

// NewDaemonCommand returns the daemon command.
func NewDaemonCommand(rootCmd *RootCommand, app *kingpin.Application) *DaemonCommand {
	c := &DaemonCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("daemon", "Run the sync engine continuously, reacting to store mutations.")
	c.syncFlags.register(c.Cmd)
	c.Cmd.Flag("interval", "Periodic full sync interval.").Default("5m").DurationVar(&c.interval)
	c.Cmd.Flag("retry", "Retry failed or rate limited runs automatically.").Default("true").BoolVar(&c.retry)
	c.Cmd.Flag("retry-failure-delay", "Wait before retrying a failed run.").Default("30s").DurationVar(&c.retryFailureDelay)
	c.Cmd.Flag("retry-deferred-delay", "Wait before retrying a rate limited run.").Default("5m").DurationVar(&c.retryDeferredDelay)

	return c
}

func (c DaemonCommand) Name() string { return c.Cmd.FullCommand() }

func (c DaemonCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	s, err := newStore(ctx, c.rootCmd)
	if err != nil {
		return err
	}

	engine, err := newSyncEngine(s, c.syncFlags, c.rootCmd)
	if err != nil {
		return err
	}

	retry, err := appsync.NewRetryScheduler(appsync.RetrySchedulerConfig{
		Enabled:       c.retry,
		FailureDelay:  c.retryFailureDelay,
		DeferredDelay: c.retryDeferredDelay,
		Syncer:        engine.service,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("could not create retry scheduler: %w", err)
	}

	trigger, err := appsync.NewStoreTrigger(appsync.StoreTriggerConfig{
		Store:     engine.store,
		Lifecycle: engine.lifecycle,
		Syncer:    engine.service,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("could not create store trigger: %w", err)
	}

	var g run.Group

	// Periodic full sync.
	{
		ctx, cancel := context.WithCancel(ctx)

		g.Add(
			func() error {
				ticker := time.NewTicker(c.interval)
				defer ticker.Stop()

				// Initial sync on startup.
				result, err := engine.service.Sync(ctx)
				if err != nil {
					logger.Errorf("Sync failed: %s", err)
				}
				retry.Observe(result, err)

				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
						result, err := engine.service.Sync(ctx)
						if err != nil {
							logger.Errorf("Sync failed: %s", err)
						}
						retry.Observe(result, err)
					}
				}
			},
			func(_ error) {
				cancel()
			},
		)
	}

	// Store trigger and retry scheduler lifecycle.
	{
		ctx, cancel := context.WithCancel(ctx)

		g.Add(
			func() error {
				<-ctx.Done()
				return nil
			},
			func(_ error) {
				trigger.Stop()
				retry.Stop()
				cancel()
			},
		)
	}

	logger.Infof("Sync daemon starting: interval=%s forum=%s", c.interval, c.syncFlags.forumID)
	return g.Run()
}
