// Package roster caches the sorted list of registered nicknames served by the
// "active" request. Entries are keyed by the registry revision they were
// computed for, so a changed or restarted registry never reads a stale list
// and no explicit invalidation is needed.
package roster

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/cyberinferno/hashchat/config"
)

// FetchFunc computes the sorted nickname list on a cache miss.
type FetchFunc func(ctx context.Context) ([]string, error)

// Cache returns the nickname list for a registry revision.
type Cache interface {
	// Names returns the cached list for revision, calling fetch on a miss
	// and storing its result.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - revision: Registry revision the list belongs to
	//   - fetch: Function computing the list when it is not cached
	//
	// Returns:
	//   - The sorted nicknames; the slice is shared and must not be modified
	//   - An error if the backend or fetch fails
	Names(ctx context.Context, revision string, fetch FetchFunc) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// New builds the cache selected by cfg.Backend. namespace separates the keys
// of independent registries sharing one Redis database.
//
// Parameters:
//   - cfg: Roster configuration
//   - namespace: Key namespace for this registry
//
// Returns:
//   - The Cache, or an error for an unknown backend
func New(cfg config.RosterConfig, namespace string) (Cache, error) {
	switch cfg.Backend {
	case config.RosterNone, "":
		return None(), nil
	case config.RosterMemory:
		return NewMemory(cfg.TTL), nil
	case config.RosterRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedis(client, RedisOptions{
			Prefix:     cfg.KeyPrefix + ":" + namespace,
			TTL:        cfg.TTL,
			OwnsClient: true,
		}), nil
	default:
		return nil, fmt.Errorf("unknown roster backend %q", cfg.Backend)
	}
}

type noCache struct{}

// None returns a Cache that always calls fetch.
func None() Cache {
	return noCache{}
}

func (noCache) Names(ctx context.Context, _ string, fetch FetchFunc) ([]string, error) {
	return fetch(ctx)
}

func (noCache) Close() error {
	return nil
}
