// Package main provides the Autoflow worker, which runs jobs read from the queue.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/autoflow/pkg/cmd"
	"github.com/dukex/autoflow/pkg/log"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:                  "autoflow-worker",
		EnableShellCompletion: true,
		Usage:                 "Consume queued jobs and execute workflows",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
		}, cmd.CommonFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			config := cmd.ConfigFromCommand("autoflow-worker", command)
			log.Setup(config.LogLevel, config.LogFormat)

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("worker").With("workerId", workerID)

			logger.InfoContext(ctx, "Initializing Autoflow Worker")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			stack, err := cmd.NewStack(ctx, config, logger)
			if err != nil {
				return err
			}

			defer stack.Close(context.WithoutCancel(ctx))

			consumer, err := stack.Consumer()
			if err != nil {
				return err
			}

			go func() {
				<-consumer.Running()
				logger.InfoContext(ctx, "Worker started successfully")
			}()

			if err := consumer.Run(ctx); err != nil {
				logger.ErrorContext(ctx, "Worker stopped", "error", err)

				return err
			}

			logger.InfoContext(ctx, "Shutting down worker...")

			return nil
		},
	}

	err := app.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
