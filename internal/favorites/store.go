// Package favorites tracks the user's favorited products with optimistic
// toggling.
package favorites

import (
	"context"
	"strconv"

	"github.com/angelmondragon/ajshoes-client/internal/optimistic"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/logger"
	"github.com/angelmondragon/ajshoes-client/pkg/metrics"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
	"go.uber.org/multierr"
)

// API is the slice of the REST client favorites need.
type API interface {
	Favorites(ctx context.Context) ([]shopapi.Favorite, error)
	AddFavorite(ctx context.Context, productID int64) (shopapi.Favorite, error)
	DeleteFavoriteByProduct(ctx context.Context, productID int64) error
	DeleteFavorite(ctx context.Context, favoriteID int64) error
}

type ServiceParams struct {
	API     API
	Logger  *logger.Logger
	Metrics *metrics.MutationMetrics
}

type Store struct {
	api   API
	items *optimistic.Store[shopapi.Favorite]
	logg  *logger.Logger
}

func NewStore(params ServiceParams) (*Store, error) {
	if params.API == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "favorites api is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	items, err := optimistic.NewStore(optimistic.Params[shopapi.Favorite]{
		Collection: "favorites",
		IDOf:       func(f shopapi.Favorite) int64 { return f.ID },
		Logger:     logg,
		Metrics:    params.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Store{api: params.API, items: items, logg: logg}, nil
}

func (s *Store) Reload(ctx context.Context) error {
	return s.items.Reload(ctx, s.api.Favorites, nil)
}

func (s *Store) OnChange(fn func([]optimistic.Entry[shopapi.Favorite])) {
	s.items.OnChange(fn)
}

// IsFavorite counts pending adds as favorited.
func (s *Store) IsFavorite(productID int64) bool {
	_, ok := s.find(productID)
	return ok
}

// List returns favorited product ids, newest first.
func (s *Store) List() []int64 {
	values := s.items.Values()
	out := make([]int64, 0, len(values))
	for _, f := range values {
		out = append(out, f.ProductID)
	}
	return out
}

// Toggle flips the favorite state of productID and reports the new state.
// The change is visible immediately; on failure it is reverted before
// Toggle returns.
func (s *Store) Toggle(ctx context.Context, productID int64) (bool, error) {
	if productID <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	release, err := s.items.Acquire("product:" + strconv.FormatInt(productID, 10))
	if err != nil {
		return s.IsFavorite(productID), err
	}
	defer release()

	if entry, ok := s.find(productID); ok {
		if err := s.remove(ctx, entry); err != nil {
			return true, err
		}
		return false, nil
	}

	_, err = s.items.ApplyLocalAdd(ctx, "", shopapi.Favorite{ProductID: productID}, func(ctx context.Context) (shopapi.Favorite, error) {
		return s.api.AddFavorite(ctx, productID)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// remove deletes by product id first and falls back to the favorite id.
func (s *Store) remove(ctx context.Context, entry optimistic.Entry[shopapi.Favorite]) error {
	return s.items.ApplyLocalRemove(ctx, entry.ID, func(ctx context.Context) error {
		byProduct := s.api.DeleteFavoriteByProduct(ctx, entry.Value.ProductID)
		if byProduct == nil {
			return nil
		}
		favID, _ := entry.ID.Server()
		s.logg.Debug(s.logg.WithField(ctx, "product_id", entry.Value.ProductID), "delete by product failed, retrying by favorite id")
		byID := s.api.DeleteFavorite(ctx, favID)
		if byID == nil {
			return nil
		}
		if typed := pkgerrors.As(byProduct); typed != nil {
			return pkgerrors.Wrap(typed.Code(), multierr.Combine(byProduct, byID), typed.Message())
		}
		return multierr.Combine(byProduct, byID)
	})
}

func (s *Store) find(productID int64) (optimistic.Entry[shopapi.Favorite], bool) {
	return s.items.Find(func(e optimistic.Entry[shopapi.Favorite]) bool {
		return e.Value.ProductID == productID
	})
}
