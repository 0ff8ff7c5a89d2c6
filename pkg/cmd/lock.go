package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/autoflow/pkg/dispatch"
	"github.com/dukex/autoflow/pkg/lock"
	"github.com/redis/go-redis/v9"
)

// Coordination is the lock store and the dispatch deduplicator of one process.
type Coordination struct {
	Locks lock.Store
	Dedup dispatch.Deduplicator

	client *redis.Client
}

// NewCoordination uses Redis when redisURL is set. Without it locks are process-local and
// jobs are not deduplicated.
func NewCoordination(ctx context.Context, redisURL string, logger *slog.Logger) (*Coordination, error) {
	if redisURL == "" {
		logger.WarnContext(ctx, "REDIS_URL not set, using in-memory execution locks")

		return &Coordination{Locks: lock.NewMemory()}, nil
	}

	client, err := lock.Connect(ctx, redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize lock store: %w", err)
	}

	return &Coordination{
		Locks:  lock.NewRedis(client),
		Dedup:  dispatch.NewRedisDeduplicator(client, dispatch.DefaultDedupTTL),
		client: client,
	}, nil
}

func (c *Coordination) Close() error {
	if c.client == nil {
		return nil
	}

	return c.client.Close()
}
