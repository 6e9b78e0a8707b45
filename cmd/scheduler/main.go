package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/segyhp/installment-engine/internal/app"
	"github.com/segyhp/installment-engine/internal/config"
	"github.com/segyhp/installment-engine/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "scheduler",
		Short:         "Background jobs for the installment engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the overdue sweep and payment reminders on their cron schedules",
			RunE:  withApp(runScheduler),
		},
		&cobra.Command{
			Use:   "sweep",
			Short: "Mark late pending installments overdue once and exit",
			RunE: withApp(func(ctx context.Context, a *app.App) error {
				_, err := a.Sweeper().Run(ctx)
				return err
			}),
		},
		&cobra.Command{
			Use:   "remind",
			Short: "Send reminders for installments falling due soon and exit",
			RunE: withApp(func(ctx context.Context, a *app.App) error {
				_, err := a.Reminder().Run(ctx)
				return err
			}),
		},
	)
	return root
}

// withApp loads configuration and dependencies and cancels ctx on SIGINT/SIGTERM
func withApp(fn func(ctx context.Context, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		lg, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		defer func() { _ = lg.Sync() }()
		zap.ReplaceGlobals(lg)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg, lg)
		if err != nil {
			return err
		}
		defer a.Close()

		return fn(ctx, a)
	}
}

func runScheduler(ctx context.Context, a *app.App) error {
	lg := a.Logger
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(a.Config.Location()),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{lg})),
	)

	sweeper := a.Sweeper()
	reminder := a.Reminder()

	if _, err := c.AddFunc(a.Config.Scheduler.SweepCron, func() {
		if _, err := sweeper.Run(ctx); err != nil {
			lg.Error("overdue sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule overdue sweep: %w", err)
	}

	if _, err := c.AddFunc(a.Config.Scheduler.ReminderCron, func() {
		if _, err := reminder.Run(ctx); err != nil {
			lg.Error("payment reminders failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule payment reminders: %w", err)
	}

	c.Start()
	lg.Info("scheduler started",
		zap.String("sweep_cron", a.Config.Scheduler.SweepCron),
		zap.String("reminder_cron", a.Config.Scheduler.ReminderCron),
		zap.String("timezone", a.Config.Scheduler.Timezone),
	)

	<-ctx.Done()
	lg.Info("shutting down scheduler")

	// wait for running jobs before closing their dependencies
	<-c.Stop().Done()
	lg.Info("scheduler stopped")
	return nil
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	lg *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.lg.Sugar().Infow(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.lg.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
