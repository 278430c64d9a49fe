// Package dedup suppresses real-time events that arrive more than once
// (reconnect replays, poll overlap) within a time window.
package dedup

import (
	"context"
	"sync"
	"time"

	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/redis"
)

const (
	DefaultTTL      = 5 * time.Minute
	DefaultCapacity = 50
)

// Window answers whether an event id was already seen on a stream, marking
// it as seen when it was not.
type Window interface {
	Seen(ctx context.Context, stream, id string) (bool, error)
	Forget(ctx context.Context, stream, id string) error
}

type memoryKey struct {
	stream string
	id     string
}

// Memory keeps, per stream, the most recent ids seen within the TTL.
type Memory struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	now      func() time.Time
	seen     map[memoryKey]time.Time
	order    map[string][]string
}

func NewMemory(ttl time.Duration, capacity int) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
		seen:     make(map[memoryKey]time.Time),
		order:    make(map[string][]string),
	}
}

func (m *Memory) Seen(_ context.Context, stream, id string) (bool, error) {
	if id == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.prune(stream, now)

	key := memoryKey{stream: stream, id: id}
	if at, ok := m.seen[key]; ok && now.Sub(at) < m.ttl {
		return true, nil
	}

	m.seen[key] = now
	ids := append(m.order[stream], id)
	for len(ids) > m.capacity {
		delete(m.seen, memoryKey{stream: stream, id: ids[0]})
		ids = ids[1:]
	}
	m.order[stream] = ids
	return false, nil
}

func (m *Memory) Forget(_ context.Context, stream, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, memoryKey{stream: stream, id: id})
	ids := m.order[stream]
	for i, candidate := range ids {
		if candidate == id {
			m.order[stream] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// prune drops ids older than the TTL; ids are ordered by first sighting.
func (m *Memory) prune(stream string, now time.Time) {
	ids := m.order[stream]
	drop := 0
	for _, id := range ids {
		key := memoryKey{stream: stream, id: id}
		if now.Sub(m.seen[key]) < m.ttl {
			break
		}
		delete(m.seen, key)
		drop++
	}
	if drop > 0 {
		m.order[stream] = ids[drop:]
	}
}

// Redis shares the window between client processes of the same user via
// SETNX with a TTL. Keys follow `ajs:dedup:<stream>:<id>`.
type Redis struct {
	store redis.DedupStore
	ttl   time.Duration
}

func NewRedis(store redis.DedupStore, ttl time.Duration) (*Redis, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dedup store is required")
	}
	if ttl < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ttl must be non-negative")
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Redis{store: store, ttl: ttl}, nil
}

func (r *Redis) Seen(ctx context.Context, stream, id string) (bool, error) {
	key, err := r.key(stream, id)
	if err != nil {
		return false, err
	}
	set, err := r.store.SetNX(ctx, key, "1", r.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

func (r *Redis) Forget(ctx context.Context, stream, id string) error {
	key, err := r.key(stream, id)
	if err != nil {
		return err
	}
	return r.store.Del(ctx, key)
}

func (r *Redis) key(stream, id string) (string, error) {
	if stream == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "stream name is required")
	}
	if id == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	return r.store.DedupKey(stream, id), nil
}
