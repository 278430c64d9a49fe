// Package state holds the small key-value surface the client persists across
// runs: session tokens and feed cursors.
package state

import (
	"context"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
)

// Store is implemented by the memory store, pkg/redis.Client and
// pkg/db.StateStore. Get reports a missing key as pkgerrors.CodeNotFound.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// IsNotFound reports whether err means the key is absent.
func IsNotFound(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeNotFound)
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// Memory is a process-local Store.
type Memory struct {
	mu   sync.Mutex
	data map[string]memoryEntry
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]memoryEntry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.data[key]
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "key not found")
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		delete(m.data, key)
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "key not found")
	}
	return entry.value, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.data[key] = entry
	return nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

// Prefixed namespaces every key of the wrapped store.
type Prefixed struct {
	inner  Store
	prefix string
}

func WithPrefix(inner Store, prefix string) *Prefixed {
	return &Prefixed{inner: inner, prefix: strings.TrimRight(prefix, ":")}
}

func (p *Prefixed) key(k string) string {
	if p.prefix == "" {
		return k
	}
	return p.prefix + ":" + k
}

func (p *Prefixed) Get(ctx context.Context, key string) (string, error) {
	return p.inner.Get(ctx, p.key(key))
}

func (p *Prefixed) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return p.inner.Set(ctx, p.key(key), value, ttl)
}

func (p *Prefixed) Del(ctx context.Context, keys ...string) error {
	scoped := make([]string, len(keys))
	for i, k := range keys {
		scoped[i] = p.key(k)
	}
	return p.inner.Del(ctx, scoped...)
}
