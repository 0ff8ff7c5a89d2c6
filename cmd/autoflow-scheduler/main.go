package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/autoflow/pkg/cmd"
	"github.com/dukex/autoflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:                  "autoflow-scheduler",
		EnableShellCompletion: true,
		Usage:                 "Evaluate cron triggers and poll mailboxes on a fixed interval",
		Flags: append([]cli.Flag{
			&cli.DurationFlag{
				Name:    "cron-interval",
				Usage:   "Interval between cron evaluations, 0 disables them",
				Value:   defaultCronInterval,
				Sources: cli.EnvVars("CRON_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "mailbox-interval",
				Usage:   "Interval between mailbox polls, 0 disables them",
				Value:   defaultMailboxInterval,
				Sources: cli.EnvVars("MAILBOX_INTERVAL"),
			},
		}, cmd.CommonFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			config := cmd.ConfigFromCommand("autoflow-scheduler", command)
			log.Setup(config.LogLevel, config.LogFormat)

			logger := log.WithModule("scheduler")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			stack, err := cmd.NewStack(ctx, config, logger)
			if err != nil {
				return err
			}

			defer stack.Close(context.WithoutCancel(ctx))

			scheduler := NewScheduler(
				stack.Cron,
				stack.Mailbox,
				command.Duration("cron-interval"),
				command.Duration("mailbox-interval"),
				logger,
			)

			logger.InfoContext(ctx, "Scheduler started")

			err = scheduler.Run(ctx)

			logger.InfoContext(ctx, "Shutting down scheduler...")

			return err
		},
	}

	err := app.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
