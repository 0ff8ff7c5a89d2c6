package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/autoflow/pkg/dispatch"
	"github.com/dukex/autoflow/pkg/mailbox"
	"github.com/dukex/autoflow/pkg/otelhelper"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/dukex/autoflow/pkg/registry"
	"github.com/dukex/autoflow/pkg/runner"
	"github.com/dukex/autoflow/pkg/schedule"
	"github.com/dukex/autoflow/pkg/services"
	cli "github.com/urfave/cli/v3"
)

// Config is the environment shared by every binary.
type Config struct {
	ServiceName    string
	LogLevel       string
	LogFormat      string
	DatabaseURL    string
	RedisURL       string
	QueueProvider  string
	KafkaBrokers   string
	TracingEnabled bool
	StepTimeout    time.Duration
	Mailer         MailerConfig
}

// CommonFlags are the flags every binary accepts. Each reads an environment variable.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json, pretty)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (postgres://... or file://<dir>)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for execution locks and dispatch deduplication",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "queue-provider",
			Usage:   "Job queue (kafka, gochannel, empty to run jobs inline)",
			Sources: cli.EnvVars("QUEUE_PROVIDER"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.BoolFlag{
			Name:    "tracing-enabled",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
		&cli.DurationFlag{
			Name:    "step-timeout",
			Usage:   "Default timeout of one step attempt",
			Value:   runner.DefaultStepTimeout,
			Sources: cli.EnvVars("STEP_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    "mail-provider",
			Usage:   "Outbound mail provider (smtp, resend, empty to discard)",
			Sources: cli.EnvVars("MAIL_PROVIDER"),
		},
		&cli.StringFlag{
			Name:    "mail-from",
			Usage:   "Sender address of outbound mail",
			Sources: cli.EnvVars("MAIL_FROM"),
		},
		&cli.StringFlag{
			Name:    "smtp-host",
			Sources: cli.EnvVars("SMTP_HOST"),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Sources: cli.EnvVars("SMTP_PORT"),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Sources: cli.EnvVars("SMTP_USERNAME"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Sources: cli.EnvVars("SMTP_PASSWORD"),
		},
		&cli.StringFlag{
			Name:    "resend-api-key",
			Sources: cli.EnvVars("RESEND_API_KEY"),
		},
	}
}

// ConfigFromCommand reads CommonFlags.
func ConfigFromCommand(serviceName string, command *cli.Command) Config {
	return Config{
		ServiceName:    serviceName,
		LogLevel:       command.String("log-level"),
		LogFormat:      command.String("log-format"),
		DatabaseURL:    command.String("database-url"),
		RedisURL:       command.String("redis-url"),
		QueueProvider:  command.String("queue-provider"),
		KafkaBrokers:   command.String("kafka-brokers"),
		TracingEnabled: command.Bool("tracing-enabled"),
		StepTimeout:    command.Duration("step-timeout"),
		Mailer: MailerConfig{
			Provider:     command.String("mail-provider"),
			From:         command.String("mail-from"),
			SMTPHost:     command.String("smtp-host"),
			SMTPPort:     command.Int("smtp-port"),
			SMTPUsername: command.String("smtp-username"),
			SMTPPassword: command.String("smtp-password"),
			ResendAPIKey: command.String("resend-api-key"),
		},
	}
}

// Stack holds the wired components of one process.
type Stack struct {
	Persistence  persistence.Persistence
	Coordination *Coordination
	Transport    *Transport
	Registry     *registry.Registry
	Runner       *runner.Runner
	Dispatcher   dispatch.Dispatcher
	Launcher     *services.Launcher
	Workflows    *services.Workflow
	Triggers     *services.Trigger
	Cron         *schedule.Evaluator
	Mailbox      *mailbox.Poller
	Dialer       *mailbox.IMAPDialer

	shutdownTracer otelhelper.ShutdownFunc
	logger         *slog.Logger
}

// NewStack connects every backend named in config and wires the services on top. On error
// everything opened so far is closed.
func NewStack(ctx context.Context, config Config, logger *slog.Logger) (*Stack, error) {
	stack := &Stack{logger: logger}

	if err := stack.wire(ctx, config); err != nil {
		stack.Close(ctx)

		return nil, err
	}

	return stack, nil
}

func (s *Stack) wire(ctx context.Context, config Config) error {
	var err error

	logger := s.logger

	s.Persistence, err = NewPersistence(ctx, logger, config.DatabaseURL)
	if err != nil {
		return err
	}

	s.Coordination, err = NewCoordination(ctx, config.RedisURL, logger)
	if err != nil {
		return err
	}

	s.Transport, err = NewTransport(config.QueueProvider, config.KafkaBrokers, config.ServiceName, logger)
	if err != nil {
		return err
	}

	mailer, err := NewMailer(config.Mailer, logger)
	if err != nil {
		return err
	}

	tracer, shutdown, err := NewTracer(ctx, config.TracingEnabled, config.ServiceName)
	if err != nil {
		return err
	}

	s.shutdownTracer = shutdown
	s.Registry = NewRegistry(logger, s.Persistence, mailer)
	s.Runner = runner.New(
		s.Coordination.Locks,
		s.Persistence,
		s.Registry,
		logger,
		runner.WithMailer(mailer),
		runner.WithTracer(tracer),
		runner.WithDefaultTimeout(config.StepTimeout),
	)
	s.Dispatcher = NewDispatcher(s.Transport, s.Runner, s.Coordination.Dedup, logger)
	s.Launcher = services.NewLauncher(s.Persistence.ExecutionRepository(), s.Dispatcher, logger)
	s.Workflows = services.NewWorkflow(s.Persistence)
	s.Triggers = services.NewTrigger(s.Persistence.WorkflowRepository(), s.Launcher)
	s.Cron = schedule.NewEvaluator(s.Persistence, s.Launcher, logger)
	s.Dialer = mailbox.NewIMAPDialer()
	s.Mailbox = mailbox.NewPoller(s.Persistence.WorkflowRepository(), s.Launcher, s.Dialer, logger)

	return nil
}

// Consumer builds a queue consumer feeding the runner. It fails without a queue.
func (s *Stack) Consumer() (*dispatch.Consumer, error) {
	if s.Transport == nil {
		return nil, fmt.Errorf("a queue provider is required to consume jobs")
	}

	return dispatch.NewConsumer(s.Transport.Subscriber, s.Runner, s.logger)
}

// Close waits for inline runs, then releases every backend, logging failures.
func (s *Stack) Close(ctx context.Context) {
	var errs []error

	// Inline runs still write to persistence.
	if inline, ok := s.Dispatcher.(*dispatch.Inline); ok {
		inline.Wait()
	}

	if s.Transport != nil {
		errs = append(errs, s.Transport.Close())
	}

	if s.Coordination != nil {
		errs = append(errs, s.Coordination.Close())
	}

	if s.Persistence != nil {
		errs = append(errs, s.Persistence.Close(ctx))
	}

	if s.shutdownTracer != nil {
		errs = append(errs, s.shutdownTracer(ctx))
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.ErrorContext(ctx, "Failed to close resources", "error", err)
	}
}
