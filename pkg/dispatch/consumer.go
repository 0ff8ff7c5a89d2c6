package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

const consumerHandlerName = "autoflow-job-runner"

// Consumer reads jobs from Topic and runs them. Handler errors are retried three times with
// backoff; after that the message is nacked for the transport to redeliver.
type Consumer struct {
	router *message.Router
	logger *slog.Logger
}

func NewConsumer(subscriber message.Subscriber, handler Handler, logger *slog.Logger) (*Consumer, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 30 * time.Second}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	router.AddMiddleware(
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			Multiplier:      2,
			Logger:          wmLogger,
		}.Middleware,
	)

	c := &Consumer{router: router, logger: logger.With("module", "dispatch")}

	router.AddNoPublisherHandler(consumerHandlerName, Topic, subscriber, func(msg *message.Message) error {
		job, err := Decode(msg.Payload)
		if err != nil {
			// Malformed jobs are acked; redelivery cannot fix them.
			c.logger.Error("Dropping invalid job", "message_uuid", msg.UUID, "error", err)

			return nil
		}

		return handler.Run(msg.Context(), job)
	})

	return c, nil
}

// Run blocks until ctx is cancelled or the router stops.
func (c *Consumer) Run(ctx context.Context) error {
	return c.router.Run(ctx)
}

// Running is closed once the router subscribed to Topic.
func (c *Consumer) Running() chan struct{} {
	return c.router.Running()
}

func (c *Consumer) Close() error {
	return c.router.Close()
}
