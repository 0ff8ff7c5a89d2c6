package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/autoflow/pkg/channels/gochannel"
	"github.com/dukex/autoflow/pkg/channels/kafka"
	"github.com/dukex/autoflow/pkg/dispatch"
)

// Queue providers accepted by QUEUE_PROVIDER. An empty provider runs jobs inline.
const (
	QueueProviderInline    = ""
	QueueProviderGoChannel = "gochannel"
	QueueProviderKafka     = "kafka"
)

var ErrUnsupportedQueue = errors.New("unsupported queue provider")

// Transport is the job transport of one process. A nil Transport means inline dispatch.
type Transport struct {
	Provider   string
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// NewTransport connects the queue named by provider. serviceName becomes the Kafka
// consumer group.
func NewTransport(provider, brokers, serviceName string, logger *slog.Logger) (*Transport, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case QueueProviderInline:
		return nil, nil
	case QueueProviderGoChannel:
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-process queue: %w", err)
		}

		return &Transport{Provider: provider, Publisher: pub, Subscriber: sub}, nil
	case QueueProviderKafka:
		pub, sub, err := kafka.CreateChannel(wmLogger, kafka.ParseBrokers(brokers), serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return &Transport{Provider: provider, Publisher: pub, Subscriber: sub}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedQueue, provider)
	}
}

// Close closes the publisher and the subscriber. The in-process channel is shared and
// closed once.
func (t *Transport) Close() error {
	if t == nil {
		return nil
	}

	err := t.Publisher.Close()

	if t.Provider != QueueProviderGoChannel {
		err = errors.Join(err, t.Subscriber.Close())
	}

	return err
}

// NewDispatcher publishes on transport, or runs jobs inline through handler when the
// transport is nil. dedup may be nil.
//
//nolint:ireturn // returns the dispatcher interface
func NewDispatcher(
	transport *Transport,
	handler dispatch.Handler,
	dedup dispatch.Deduplicator,
	logger *slog.Logger,
) dispatch.Dispatcher {
	if transport == nil {
		return dispatch.NewInline(handler, logger)
	}

	var opts []dispatch.QueueOption
	if dedup != nil {
		opts = append(opts, dispatch.WithDeduplicator(dedup))
	}

	return dispatch.NewQueue(transport.Publisher, logger, opts...)
}
