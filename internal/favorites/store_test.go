package favorites

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/ajshoes-client/internal/optimistic"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAPI struct {
	list            []shopapi.Favorite
	addFn           func(productID int64) (shopapi.Favorite, error)
	byProductErr    error
	byIDErr         error
	byProductCalls  int
	byIDCalls       []int64
	seenDuringWrite []bool
	store           *Store
}

func (s *stubAPI) Favorites(context.Context) ([]shopapi.Favorite, error) {
	return s.list, nil
}

func (s *stubAPI) AddFavorite(_ context.Context, productID int64) (shopapi.Favorite, error) {
	s.seenDuringWrite = append(s.seenDuringWrite, s.store.IsFavorite(productID))
	return s.addFn(productID)
}

func (s *stubAPI) DeleteFavoriteByProduct(_ context.Context, productID int64) error {
	s.byProductCalls++
	s.seenDuringWrite = append(s.seenDuringWrite, s.store.IsFavorite(productID))
	return s.byProductErr
}

func (s *stubAPI) DeleteFavorite(_ context.Context, favoriteID int64) error {
	s.byIDCalls = append(s.byIDCalls, favoriteID)
	return s.byIDErr
}

func newTestStore(t *testing.T, api *stubAPI) *Store {
	t.Helper()
	s, err := NewStore(ServiceParams{API: api})
	require.NoError(t, err)
	api.store = s
	require.NoError(t, s.Reload(context.Background()))
	return s
}

func TestToggleOnIsImmediateAndConfirmed(t *testing.T) {
	api := &stubAPI{addFn: func(productID int64) (shopapi.Favorite, error) {
		return shopapi.Favorite{ID: 31, ProductID: productID}, nil
	}}
	s := newTestStore(t, api)

	on, err := s.Toggle(context.Background(), 10)
	require.NoError(t, err)
	assert.True(t, on)
	assert.Equal(t, []bool{true}, api.seenDuringWrite, "favorite should show before the server answers")

	entries := s.items.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, optimistic.Confirmed(31), entries[0].ID)
}

func TestToggleOnFailureReverts(t *testing.T) {
	api := &stubAPI{addFn: func(int64) (shopapi.Favorite, error) {
		return shopapi.Favorite{}, pkgerrors.New(pkgerrors.CodeTransport, "network unavailable")
	}}
	s := newTestStore(t, api)

	on, err := s.Toggle(context.Background(), 10)
	require.Error(t, err)
	assert.False(t, on)
	assert.False(t, s.IsFavorite(10))
	assert.Empty(t, s.List())
}

func TestToggleOffFallsBackToFavoriteID(t *testing.T) {
	api := &stubAPI{
		list:         []shopapi.Favorite{{ID: 31, ProductID: 10}},
		byProductErr: pkgerrors.New(pkgerrors.CodeNotFound, "Not found."),
	}
	s := newTestStore(t, api)

	on, err := s.Toggle(context.Background(), 10)
	require.NoError(t, err)
	assert.False(t, on)
	assert.Equal(t, []int64{31}, api.byIDCalls)
	assert.False(t, s.IsFavorite(10))
}

func TestToggleOffBothFailRollsBack(t *testing.T) {
	api := &stubAPI{
		list:         []shopapi.Favorite{{ID: 31, ProductID: 10}, {ID: 32, ProductID: 11}},
		byProductErr: pkgerrors.New(pkgerrors.CodeDependency, "upstream"),
		byIDErr:      errors.New("still down"),
	}
	s := newTestStore(t, api)

	on, err := s.Toggle(context.Background(), 10)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.True(t, on)
	assert.Equal(t, []bool{false}, api.seenDuringWrite, "removal should be visible while in flight")
	assert.Equal(t, []int64{10, 11}, s.List(), "rollback should restore the original order")
}

func TestToggleRejectsInvalidProduct(t *testing.T) {
	s := newTestStore(t, &stubAPI{})
	_, err := s.Toggle(context.Background(), 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
