package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"pos-service/internal/models"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

const (
	summaryKey    = "pos:summaries"
	generationKey = "pos:summaries:gen"
)

var errStaleSummary = errors.New("summary generation moved")

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newClient(rdb), nil
}

func newClient(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Acquire takes a distributed lock owned by a random token. The returned
// release only deletes the key while it still holds that token.
func (c *Client) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	lockKey := fmt.Sprintf("lock:%s", key)
	token := uuid.New().String()

	ok, err := c.rdb.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock failed: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		if err := c.releaseScript.Run(ctx, c.rdb, []string{lockKey}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("release lock script failed: %w", err)
		}
		return nil
	}
	return release, true, nil
}

// Get reads a cached sales summary. Summaries live as fields of one hash so
// that Invalidate can drop them with a single DEL.
func (c *Client) Get(ctx context.Context, key string) (*models.SalesSummary, bool, error) {
	val, err := c.rdb.HGet(ctx, summaryKey, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var summary models.SalesSummary
	if err := json.Unmarshal([]byte(val), &summary); err != nil {
		return nil, false, err
	}
	return &summary, true, nil
}

// Generation reads the invalidation counter; a missing key is generation 0
func (c *Client) Generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, generationKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

// Set stores a summary computed at generation; ttl applies to the whole hash.
// The write is skipped, reporting false, once an Invalidate has moved the
// counter past generation.
func (c *Client) Set(ctx context.Context, key string, value *models.SalesSummary, ttl time.Duration, generation int64) (bool, error) {
	if value == nil {
		return true, nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return false, err
	}

	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		gen, err := tx.Get(ctx, generationKey).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if gen != generation {
			return errStaleSummary
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, summaryKey, key, payload)
			pipe.Expire(ctx, summaryKey, ttl)
			return nil
		})
		return err
	}, generationKey)

	if errors.Is(err, errStaleSummary) || errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Invalidate drops every cached summary and moves the generation on
func (c *Client) Invalidate(ctx context.Context) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey)
		pipe.Del(ctx, summaryKey)
		return nil
	})
	return err
}
