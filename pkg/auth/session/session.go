// Package session holds the client's authenticated session explicitly
// instead of in process-wide variables.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/ajshoes-client/pkg/auth"
	"github.com/angelmondragon/ajshoes-client/pkg/state"
)

const (
	accessKey  = "access_token"
	refreshKey = "refresh_token"
)

var ErrNoSession = errors.New("no active session")

// Tokens is the access/refresh pair issued by the backend.
type Tokens struct {
	Access  string
	Refresh string
}

// TokenStore persists the pair between runs.
type TokenStore interface {
	Load(ctx context.Context) (Tokens, error)
	Save(ctx context.Context, tokens Tokens) error
	Clear(ctx context.Context) error
}

// Session owns the current tokens. Reads never mutate; writes go through
// Set, UpdateAccess and Clear so persistence and listeners stay in sync.
type Session struct {
	mu      sync.RWMutex
	tokens  Tokens
	store   TokenStore
	onClear []func()
}

func New(store TokenStore) *Session {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Session{store: store}
}

// Load restores a persisted session. A missing session is not an error.
func (s *Session) Load(ctx context.Context) error {
	tokens, err := s.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return nil
		}
		return err
	}
	s.mu.Lock()
	s.tokens = tokens
	s.mu.Unlock()
	return nil
}

// Set installs a fresh pair after login.
func (s *Session) Set(ctx context.Context, tokens Tokens) error {
	s.mu.Lock()
	s.tokens = tokens
	s.mu.Unlock()
	return s.store.Save(ctx, tokens)
}

// UpdateAccess swaps in a refreshed access token, keeping the refresh token.
func (s *Session) UpdateAccess(ctx context.Context, access string) error {
	s.mu.Lock()
	s.tokens.Access = access
	tokens := s.tokens
	s.mu.Unlock()
	return s.store.Save(ctx, tokens)
}

// Clear drops the session and notifies OnClear listeners once.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	hadSession := s.tokens != (Tokens{})
	s.tokens = Tokens{}
	listeners := append([]func(){}, s.onClear...)
	s.mu.Unlock()

	err := s.store.Clear(ctx)
	if hadSession {
		for _, fn := range listeners {
			fn()
		}
	}
	return err
}

// OnClear registers fn to run after the session is cleared.
func (s *Session) OnClear(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.onClear = append(s.onClear, fn)
	s.mu.Unlock()
}

func (s *Session) Access() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.Access
}

func (s *Session) Refresh() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.Refresh
}

func (s *Session) Authenticated() bool {
	return s.Access() != ""
}

// NeedsRefresh reports whether the access token expires within skew. Tokens
// that cannot be inspected are left to the 401 path.
func (s *Session) NeedsRefresh(now time.Time, skew time.Duration) bool {
	access := s.Access()
	if access == "" || s.Refresh() == "" {
		return false
	}
	info, err := auth.InspectAccessToken(access)
	if err != nil {
		return false
	}
	return info.ExpiresWithin(now, skew)
}

// UserID returns the user id carried by the access token, or 0.
func (s *Session) UserID() int64 {
	info, err := auth.InspectAccessToken(s.Access())
	if err != nil {
		return 0
	}
	return info.UserID
}

// MemoryStore keeps tokens for the life of the process.
type MemoryStore struct {
	mu     sync.Mutex
	tokens Tokens
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(context.Context) (Tokens, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == (Tokens{}) {
		return Tokens{}, ErrNoSession
	}
	return m.tokens, nil
}

func (m *MemoryStore) Save(_ context.Context, tokens Tokens) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = tokens
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = Tokens{}
	return nil
}

// KVStore persists tokens in a state.Store (redis or the local database).
type KVStore struct {
	kv state.Store
}

func NewKVStore(kv state.Store) *KVStore {
	return &KVStore{kv: kv}
}

func (k *KVStore) Load(ctx context.Context) (Tokens, error) {
	access, err := k.kv.Get(ctx, accessKey)
	if err != nil {
		if state.IsNotFound(err) {
			return Tokens{}, ErrNoSession
		}
		return Tokens{}, err
	}
	refresh, err := k.kv.Get(ctx, refreshKey)
	if err != nil && !state.IsNotFound(err) {
		return Tokens{}, err
	}
	if strings.TrimSpace(access) == "" {
		return Tokens{}, ErrNoSession
	}
	return Tokens{Access: access, Refresh: refresh}, nil
}

func (k *KVStore) Save(ctx context.Context, tokens Tokens) error {
	if err := k.kv.Set(ctx, accessKey, tokens.Access, 0); err != nil {
		return err
	}
	return k.kv.Set(ctx, refreshKey, tokens.Refresh, 0)
}

func (k *KVStore) Clear(ctx context.Context) error {
	return k.kv.Del(ctx, accessKey, refreshKey)
}
