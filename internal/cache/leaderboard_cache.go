package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const leaderboardKey = "nesugoshi:lb"

// LeaderboardCache mirrors completed total scores into a Redis ZSET. The
// ranked read path stays on MongoDB; the cache only answers "what rank did
// this session land at" for the completion push message.
type LeaderboardCache interface {
	SetScore(ctx context.Context, gameID string, totalScore int) error
	// Rank returns the 1-indexed rank for a game ID, or -1 when absent.
	Rank(ctx context.Context, gameID string) (int64, error)
}

type leaderboardCache struct {
	client *redis.Client
}

// NewLeaderboardCache creates a new leaderboard cache.
func NewLeaderboardCache(client *redis.Client) LeaderboardCache {
	return &leaderboardCache{
		client: client,
	}
}

func (c *leaderboardCache) SetScore(ctx context.Context, gameID string, totalScore int) error {
	return c.client.ZAdd(ctx, leaderboardKey, redis.Z{
		Score:  float64(totalScore),
		Member: gameID,
	}).Err()
}

func (c *leaderboardCache) Rank(ctx context.Context, gameID string) (int64, error) {
	rank, err := c.client.ZRevRank(ctx, leaderboardKey, gameID).Result()
	if err == redis.Nil {
		return -1, nil
	}
	if err != nil {
		return -1, err
	}
	return rank + 1, nil // 1-indexed
}
