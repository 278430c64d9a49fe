// Package optimistic keeps a local copy of one server collection and applies
// mutations to it before the server confirms them, reconciling with the
// server response or rolling back on failure.
package optimistic

import (
	"context"
	"sync"
	"time"

	"github.com/angelmondragon/ajshoes-client/pkg/enums"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/logger"
	"github.com/angelmondragon/ajshoes-client/pkg/metrics"
)

// Entry is one element of the collection.
type Entry[T any] struct {
	ID    ID
	Value T
}

// Params groups dependencies for a Store.
type Params[T any] struct {
	// Collection names the store in logs and metrics ("cart", "favorites").
	Collection string
	// IDOf extracts the server id from a server-confirmed value.
	IDOf    func(T) int64
	Logger  *logger.Logger
	Metrics *metrics.MutationMetrics
}

// Store is safe for concurrent use. Change listeners run after the store's
// lock is released, in the goroutine that made the change.
type Store[T any] struct {
	mu         sync.Mutex
	entries    []Entry[T]
	generation uint64
	applied    uint64 // reload results applied so far
	lastTemp   int64  // pending ids count down from -1
	inflight   map[string]struct{}
	listeners  []func([]Entry[T])

	collection string
	idOf       func(T) int64
	logg       *logger.Logger
	metrics    *metrics.MutationMetrics
	now        func() time.Time
}

func NewStore[T any](params Params[T]) (*Store[T], error) {
	if params.IDOf == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "id extractor is required")
	}
	if params.Collection == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "collection name is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Store[T]{
		inflight:   make(map[string]struct{}),
		collection: params.Collection,
		idOf:       params.IDOf,
		logg:       logg,
		metrics:    params.Metrics,
		now:        time.Now,
	}, nil
}

// OnChange registers fn to receive a snapshot after every change.
func (s *Store[T]) OnChange(fn func([]Entry[T])) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Acquire takes the in-flight guard for key. It fails with CodeInFlight while
// another mutation holds it.
func (s *Store[T]) Acquire(key string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return nil, pkgerrors.New(pkgerrors.CodeInFlight, "a previous request is still in progress")
	}
	s.inflight[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.inflight, key)
			s.mu.Unlock()
		})
	}, nil
}

// Reload fetches the whole collection and replaces local state. Only the
// most recently started reload is applied, and a reload started before a
// mutation settled is discarded. Entries still pending stay at the head.
// onApply, if set, runs under the store lock when the result is applied.
func (s *Store[T]) Reload(ctx context.Context, fetch func(context.Context) ([]T, error), onApply func([]Entry[T])) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	values, err := fetch(ctx)
	if err != nil {
		s.logg.Warn(s.logCtx(ctx, "reload"), "reload failed: "+err.Error())
		return err
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logg.Debug(s.logCtx(ctx, "reload"), "stale reload dropped")
		return nil
	}
	next := make([]Entry[T], 0, len(values)+1)
	for _, e := range s.entries {
		if e.ID.IsPending() {
			next = append(next, e)
		}
	}
	for _, v := range values {
		next = append(next, Entry[T]{ID: Confirmed(s.idOf(v)), Value: v})
	}
	s.entries = next
	s.applied++
	if onApply != nil {
		onApply(s.snapshotLocked())
	}
	snap, listeners := s.snapshotLocked(), s.listeners
	s.mu.Unlock()

	notify(listeners, snap)
	return nil
}

// ApplyLocalAdd shows value immediately under a pending id and confirms it
// with commit's result. On failure the pending entry is removed, leaving the
// collection as it was before the call. guardKey, when set, rejects a second
// add for the same key while this one is in flight.
func (s *Store[T]) ApplyLocalAdd(ctx context.Context, guardKey string, value T, commit func(context.Context) (T, error)) (T, error) {
	var zero T
	if guardKey != "" {
		release, err := s.Acquire(guardKey)
		if err != nil {
			return zero, err
		}
		defer release()
	}

	started := s.now()
	s.mu.Lock()
	s.lastTemp--
	tmp := Pending(s.lastTemp)
	s.entries = append([]Entry[T]{{ID: tmp, Value: value}}, s.entries...)
	snap, listeners := s.snapshotLocked(), s.listeners
	s.mu.Unlock()
	notify(listeners, snap)

	confirmed, err := commit(ctx)

	s.mu.Lock()
	idx := s.indexLocked(tmp)
	if err != nil {
		if idx >= 0 {
			s.entries = append(s.entries[:idx:idx], s.entries[idx+1:]...)
		}
		snap, listeners = s.snapshotLocked(), s.listeners
		s.mu.Unlock()
		notify(listeners, snap)
		s.observe(ctx, "add", enums.MutationOutcomeRolledBack, started, err)
		return zero, err
	}

	serverID := Confirmed(s.idOf(confirmed))
	next := make([]Entry[T], 0, len(s.entries)+1)
	placed := false
	for i, e := range s.entries {
		switch {
		case i == idx:
			next = append(next, Entry[T]{ID: serverID, Value: confirmed})
			placed = true
		case e.ID == serverID:
			// the server merged the add into an existing entry
		default:
			next = append(next, e)
		}
	}
	if !placed {
		next = append([]Entry[T]{{ID: serverID, Value: confirmed}}, next...)
	}
	s.entries = next
	s.generation++
	snap, listeners = s.snapshotLocked(), s.listeners
	s.mu.Unlock()
	notify(listeners, snap)

	s.observe(ctx, "add", enums.MutationOutcomeConfirmed, started, nil)
	return confirmed, nil
}

// ApplyLocalRemove removes id immediately and re-inserts it at its original
// position if commit fails.
func (s *Store[T]) ApplyLocalRemove(ctx context.Context, id ID, commit func(context.Context) error) error {
	if id.IsPending() {
		return pkgerrors.New(pkgerrors.CodeInFlight, "item is still being saved")
	}
	release, err := s.Acquire(id.String())
	if err != nil {
		return err
	}
	defer release()

	started := s.now()
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
	}
	removed := s.entries[idx]
	s.entries = append(s.entries[:idx:idx], s.entries[idx+1:]...)
	snap, listeners := s.snapshotLocked(), s.listeners
	s.mu.Unlock()
	notify(listeners, snap)

	if err := commit(ctx); err != nil {
		s.mu.Lock()
		if s.indexLocked(id) < 0 {
			pos := idx
			if pos > len(s.entries) {
				pos = len(s.entries)
			}
			s.entries = append(s.entries[:pos:pos], append([]Entry[T]{removed}, s.entries[pos:]...)...)
		}
		snap, listeners = s.snapshotLocked(), s.listeners
		s.mu.Unlock()
		notify(listeners, snap)
		s.observe(ctx, "remove", enums.MutationOutcomeRolledBack, started, err)
		return err
	}

	s.mu.Lock()
	s.generation++
	s.mu.Unlock()
	s.observe(ctx, "remove", enums.MutationOutcomeConfirmed, started, nil)
	return nil
}

// ApplyLocalUpdate applies patch locally, then replaces the entry with the
// server's value. On failure it calls reload; if no reload result is applied
// the entry's prior value is restored. The commit error is returned either
// way.
func (s *Store[T]) ApplyLocalUpdate(ctx context.Context, id ID, patch func(T) T, commit func(context.Context) (T, error), reload func(context.Context) error) (T, error) {
	var zero T
	if id.IsPending() {
		return zero, pkgerrors.New(pkgerrors.CodeInFlight, "item is still being saved")
	}
	release, err := s.Acquire(id.String())
	if err != nil {
		return zero, err
	}
	defer release()

	started := s.now()
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return zero, pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
	}
	prior := s.entries[idx].Value
	s.entries[idx].Value = patch(prior)
	snap, listeners := s.snapshotLocked(), s.listeners
	s.mu.Unlock()
	notify(listeners, snap)

	confirmed, err := commit(ctx)
	if err != nil {
		s.mu.Lock()
		applied := s.applied
		s.mu.Unlock()
		if reload != nil {
			if reloadErr := reload(ctx); reloadErr != nil {
				s.logg.Error(s.logCtx(ctx, "update"), "reload after failed update", reloadErr)
			}
		}

		outcome := enums.MutationOutcomeReloaded
		s.mu.Lock()
		if s.applied == applied {
			if idx = s.indexLocked(id); idx >= 0 {
				s.entries[idx].Value = prior
			}
			outcome = enums.MutationOutcomeRolledBack
			snap, listeners = s.snapshotLocked(), s.listeners
			s.mu.Unlock()
			notify(listeners, snap)
		} else {
			s.mu.Unlock()
		}
		s.observe(ctx, "update", outcome, started, err)
		return zero, err
	}

	s.mu.Lock()
	if idx = s.indexLocked(id); idx >= 0 {
		s.entries[idx].Value = confirmed
	}
	s.generation++
	snap, listeners = s.snapshotLocked(), s.listeners
	s.mu.Unlock()
	notify(listeners, snap)

	s.observe(ctx, "update", enums.MutationOutcomeConfirmed, started, nil)
	return confirmed, nil
}

// Snapshot returns a copy of the current entries.
func (s *Store[T]) Snapshot() []Entry[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Values returns the current values in order.
func (s *Store[T]) Values() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Value
	}
	return out
}

func (s *Store[T]) Get(id ID) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexLocked(id); idx >= 0 {
		return s.entries[idx].Value, true
	}
	var zero T
	return zero, false
}

// Find returns the first entry matching pred.
func (s *Store[T]) Find(pred func(Entry[T]) bool) (Entry[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if pred(e) {
			return e, true
		}
	}
	return Entry[T]{}, false
}

func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store[T]) indexLocked(id ID) int {
	for i, e := range s.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store[T]) snapshotLocked() []Entry[T] {
	out := make([]Entry[T], len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Store[T]) logCtx(ctx context.Context, op string) context.Context {
	return s.logg.WithFields(ctx, map[string]any{"collection": s.collection, "op": op})
}

func (s *Store[T]) observe(ctx context.Context, op string, outcome enums.MutationOutcome, started time.Time, err error) {
	s.metrics.Observe(s.collection, op, string(outcome), s.now().Sub(started))
	logCtx := s.logg.WithField(s.logCtx(ctx, op), "outcome", string(outcome))
	if err != nil {
		s.logg.Warn(logCtx, "mutation failed: "+err.Error())
		return
	}
	s.logg.Debug(logCtx, "mutation confirmed")
}

func notify[T any](listeners []func([]Entry[T]), snap []Entry[T]) {
	for _, fn := range listeners {
		fn(snap)
	}
}
