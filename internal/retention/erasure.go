package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"custodian/internal/platform/redis"
	"custodian/pkg/domain"
)

// erasureTTL bounds how long an unresolved erasure request stays open. A
// request older than this has either been fulfilled by a sweep or needs
// manual follow-up; either way the flag no longer gates deletions.
const erasureTTL = 90 * 24 * time.Hour

// ErasureRegistry tracks open right-to-erasure requests per owner. An open
// request tells the compliance gate that deletion is not only allowed but
// demanded.
type ErasureRegistry interface {
	Open(ctx context.Context, ownerID domain.OwnerID) error
	HasOpenRequest(ctx context.Context, ownerID domain.OwnerID) (bool, error)
	Resolve(ctx context.Context, ownerID domain.OwnerID) error
}

// InMemoryErasureRegistry is a map-backed registry for tests and local
// development.
type InMemoryErasureRegistry struct {
	mu   sync.RWMutex
	open map[domain.OwnerID]struct{}
}

func NewInMemoryErasureRegistry() *InMemoryErasureRegistry {
	return &InMemoryErasureRegistry{open: make(map[domain.OwnerID]struct{})}
}

func (r *InMemoryErasureRegistry) Open(_ context.Context, ownerID domain.OwnerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open[ownerID] = struct{}{}
	return nil
}

func (r *InMemoryErasureRegistry) HasOpenRequest(_ context.Context, ownerID domain.OwnerID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.open[ownerID]
	return ok, nil
}

func (r *InMemoryErasureRegistry) Resolve(_ context.Context, ownerID domain.OwnerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.open, ownerID)
	return nil
}

// RedisErasureRegistry stores open requests as redis keys with a TTL, so the
// flag is shared across processes and cannot outlive its usefulness.
type RedisErasureRegistry struct {
	client *redis.Client
}

func NewRedisErasureRegistry(client *redis.Client) *RedisErasureRegistry {
	return &RedisErasureRegistry{client: client}
}

func erasureKey(ownerID domain.OwnerID) string {
	return "erasure:" + ownerID.String()
}

func (r *RedisErasureRegistry) Open(ctx context.Context, ownerID domain.OwnerID) error {
	if err := r.client.Set(ctx, erasureKey(ownerID), time.Now().UTC().Format(time.RFC3339), erasureTTL).Err(); err != nil {
		return fmt.Errorf("open erasure request: %w", err)
	}
	return nil
}

func (r *RedisErasureRegistry) HasOpenRequest(ctx context.Context, ownerID domain.OwnerID) (bool, error) {
	err := r.client.Get(ctx, erasureKey(ownerID)).Err()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check erasure request: %w", err)
	}
	return true, nil
}

func (r *RedisErasureRegistry) Resolve(ctx context.Context, ownerID domain.OwnerID) error {
	if err := r.client.Del(ctx, erasureKey(ownerID)).Err(); err != nil {
		return fmt.Errorf("resolve erasure request: %w", err)
	}
	return nil
}
