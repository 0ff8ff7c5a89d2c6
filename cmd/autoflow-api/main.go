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

const defaultPort = 9091

func main() {
	app := &cli.Command{
		Name:                  "autoflow-api",
		Usage:                 "Serve triggers, queue delivery and workflow management",
		EnableShellCompletion: true,
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		}, cmd.CommonFlags()...),
		Action: run,
	}

	err := app.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	config := cmd.ConfigFromCommand("autoflow-api", command)
	log.Setup(config.LogLevel, config.LogFormat)

	logger := log.WithModule("api")

	logger.InfoContext(ctx, "Initializing Autoflow API")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack, err := cmd.NewStack(ctx, config, logger)
	if err != nil {
		return err
	}

	defer stack.Close(context.WithoutCancel(ctx))

	// The in-process queue has no other reader, so the API consumes it too.
	if config.QueueProvider == cmd.QueueProviderGoChannel {
		consumer, err := stack.Consumer()
		if err != nil {
			return err
		}

		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.ErrorContext(ctx, "Embedded consumer stopped", "error", err)
			}
		}()
	}

	api := NewAPI(logger, stack)

	err = api.Start(ctx, command.Int("port"))
	if err != nil {
		logger.ErrorContext(ctx, "Failed to start API", "error", err)

		return err
	}

	return nil
}
