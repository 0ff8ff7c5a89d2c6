package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/autoflow/pkg/models"
)

const (
	defaultPublishAttempts = 3
	defaultPublishBackoff  = 200 * time.Millisecond
)

// Queue publishes jobs on Topic.
type Queue struct {
	publisher message.Publisher
	dedup     Deduplicator
	logger    *slog.Logger
	attempts  int
	backoff   time.Duration
	now       func() time.Time
}

type QueueOption func(*Queue)

// WithDeduplicator drops jobs whose dedup key was already claimed.
func WithDeduplicator(d Deduplicator) QueueOption {
	return func(q *Queue) { q.dedup = d }
}

// WithPublishRetry sets the publish attempts and the linear backoff between them.
func WithPublishRetry(attempts int, backoff time.Duration) QueueOption {
	return func(q *Queue) {
		if attempts > 0 {
			q.attempts = attempts
		}

		q.backoff = backoff
	}
}

func NewQueue(publisher message.Publisher, logger *slog.Logger, opts ...QueueOption) *Queue {
	q := &Queue{
		publisher: publisher,
		logger:    logger.With("module", "dispatch"),
		attempts:  defaultPublishAttempts,
		backoff:   defaultPublishBackoff,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

func (q *Queue) Enqueue(ctx context.Context, job models.Job) error {
	if err := Validate(job); err != nil {
		return err
	}

	key := DedupKey(job, q.now())

	if q.dedup != nil {
		fresh, err := q.dedup.Claim(ctx, key)
		if err != nil {
			q.logger.WarnContext(ctx, "Dedup check failed, publishing anyway", "dedup_key", key, "error", err)
		} else if !fresh {
			q.logger.DebugContext(ctx, "Duplicate job dropped", "dedup_key", key)

			return nil
		}
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	err = q.publish(ctx, key, payload)
	if err != nil && q.dedup != nil {
		if forgetErr := q.dedup.Forget(ctx, key); forgetErr != nil {
			q.logger.WarnContext(ctx, "Failed to forget dedup key", "dedup_key", key, "error", forgetErr)
		}
	}

	return err
}

func (q *Queue) publish(ctx context.Context, key string, payload []byte) error {
	var err error

	for attempt := 1; attempt <= q.attempts; attempt++ {
		msg := message.NewMessage(key, payload)
		msg.Metadata.Set(DedupKeyMetadata, key)
		msg.SetContext(ctx)

		if err = q.publisher.Publish(Topic, msg); err == nil {
			return nil
		}

		q.logger.WarnContext(ctx, "Publish failed", "dedup_key", key, "attempt", attempt, "error", err)

		if attempt == q.attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * q.backoff):
		}
	}

	return fmt.Errorf("failed to publish job after %d attempts: %w", q.attempts, err)
}
