package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	vacancyPrefix = "processed_vacancy:"
	// Vacancies change rarely; a week keeps re-evaluation cheap without
	// pinning stale state forever.
	vacancyTTL = 7 * 24 * time.Hour

	oauthStatePrefix = "oauth_state:"
	oauthStateTTL    = 10 * time.Minute
)

// Client wraps the shared Redis connection used by the vacancy cache and the
// OAuth state store.
type Client struct {
	rdb *redis.Client
}

// NewClient parses a redis:// URL and verifies the connection.
func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// FilterNew returns the subset of ids not currently cached.
func (c *Client) FilterNew(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := c.rdb.Pipeline()
	checks := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		checks[i] = pipe.Exists(ctx, vacancyPrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to check cached vacancies: %w", err)
	}

	var fresh []string
	for i, cmd := range checks {
		if cmd.Val() == 0 {
			fresh = append(fresh, ids[i])
		}
	}
	return fresh, nil
}

// AddMany marks each id with a fresh TTL.
func (c *Client) AddMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pipe := c.rdb.Pipeline()
	for _, id := range ids {
		pipe.Set(ctx, vacancyPrefix+id, "1", vacancyTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache vacancies: %w", err)
	}
	return nil
}

// SetOAuthState stores an OAuth state token with TTL.
func (c *Client) SetOAuthState(ctx context.Context, state, clientHost string) error {
	return c.rdb.Set(ctx, oauthStatePrefix+state, clientHost, oauthStateTTL).Err()
}

// TakeOAuthState returns whether the state existed and removes it, so each
// state is redeemable once.
func (c *Client) TakeOAuthState(ctx context.Context, state string) (bool, error) {
	n, err := c.rdb.Del(ctx, oauthStatePrefix+state).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
