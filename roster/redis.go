package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultLockTTL     = 5 * time.Second
	defaultWaitTimeout = 2 * time.Second
)

// Lua guard so only the lock owner deletes the lock.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// RedisOptions configures a RedisCache.
type RedisOptions struct {
	// Prefix is prepended to every key as "<prefix>:roster:<revision>".
	Prefix string
	// TTL is the lifetime of a cached roster.
	TTL time.Duration
	// LockTTL bounds how long a crashed filler can block others.
	LockTTL time.Duration
	// WaitTimeout bounds how long a caller waits for another filler before
	// fetching on its own.
	WaitTimeout time.Duration
	// OwnsClient makes Close close the client.
	OwnsClient bool
}

// RedisCache stores rosters as JSON lists in Redis. A SETNX lock lets one
// caller compute a missing roster while the others wait for it.
type RedisCache struct {
	client *redis.Client
	opts   RedisOptions
}

// NewRedis creates a RedisCache on client.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	cache := roster.NewRedis(client, roster.RedisOptions{Prefix: "hashchat", TTL: time.Minute})
func NewRedis(client *redis.Client, opts RedisOptions) *RedisCache {
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = defaultWaitTimeout
	}

	return &RedisCache{client: client, opts: opts}
}

// Names implements Cache.
func (c *RedisCache) Names(ctx context.Context, revision string, fetch FetchFunc) ([]string, error) {
	key := c.key(revision)

	names, found, err := c.get(ctx, key)
	if err != nil || found {
		return names, err
	}

	lockKey := key + ":lock"
	lockValue := strconv.FormatInt(time.Now().UnixNano(), 10)

	acquired, err := c.client.SetNX(ctx, lockKey, lockValue, c.opts.LockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire roster lock: %w", err)
	}

	if !acquired {
		names, found, err := c.waitForFill(ctx, key, lockKey)
		if err != nil || found {
			return names, err
		}
		// The filler gave up; compute without caching.
		return fetch(ctx)
	}

	defer unlockScript.Run(context.Background(), c.client, []string{lockKey}, lockValue)

	names, err = fetch(ctx)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(names)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal roster: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.opts.TTL).Err(); err != nil {
		return nil, fmt.Errorf("failed to cache roster: %w", err)
	}

	return names, nil
}

// get returns the cached roster under key, if any.
func (c *RedisCache) get(ctx context.Context, key string) ([]string, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get error: %w", err)
	}

	var names []string
	if err := json.Unmarshal(val, &names); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached roster: %w", err)
	}

	return names, true, nil
}

// waitForFill polls with exponential backoff until the roster appears, the
// lock disappears or the wait times out.
func (c *RedisCache) waitForFill(ctx context.Context, key, lockKey string) ([]string, bool, error) {
	backoff := 5 * time.Millisecond
	maxBackoff := 100 * time.Millisecond
	deadline := time.Now().Add(c.opts.WaitTimeout)

	for {
		names, found, err := c.get(ctx, key)
		if err != nil || found {
			return names, found, err
		}

		exists, err := c.client.Exists(ctx, lockKey).Result()
		if err != nil {
			return nil, false, fmt.Errorf("failed to check roster lock: %w", err)
		}
		if exists == 0 {
			return c.get(ctx, key)
		}

		if time.Now().After(deadline) {
			return nil, false, nil
		}

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, maxBackoff)
	}
}

func (c *RedisCache) key(revision string) string {
	return c.opts.Prefix + ":roster:" + revision
}

// Close implements Cache.
func (c *RedisCache) Close() error {
	if c.opts.OwnsClient {
		return c.client.Close()
	}

	return nil
}
