package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupTTL = time.Hour

// DedupCache remembers recently handled webhook event IDs so redelivered
// events are skipped instead of replayed.
type DedupCache interface {
	// MarkSeen records the event ID and reports whether this is the first
	// sighting within the dedup window.
	MarkSeen(ctx context.Context, eventID string) (bool, error)
}

type dedupCache struct {
	client *redis.Client
}

// NewDedupCache creates a new webhook dedup cache.
func NewDedupCache(client *redis.Client) DedupCache {
	return &dedupCache{
		client: client,
	}
}

func (c *dedupCache) MarkSeen(ctx context.Context, eventID string) (bool, error) {
	return c.client.SetNX(ctx, "webhook:evt:"+eventID, 1, dedupTTL).Result()
}
