package controllers

import (
	"net/http"

	"github.com/angelmondragon/ajshoes-client/api/responses"
	"github.com/angelmondragon/ajshoes-client/api/validators"
	"github.com/angelmondragon/ajshoes-client/internal/twin"
	"github.com/angelmondragon/ajshoes-client/pkg/logger"
)

type addFavoritePayload struct {
	Product int64 `json:"product" validate:"required,gt=0"`
}

func FavoriteList(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, b.Favorites(id.UserID))
	}
}

func FavoriteAdd(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, ok := identity(w, r, logg)
		if !ok {
			return
		}
		var body addFavoritePayload
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		fav, err := b.AddFavorite(id.UserID, body.Product)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, fav)
	}
}

// FavoriteDelete removes by ?product= on the collection route, or by id on
// the item route.
func FavoriteDelete(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, ok := identity(w, r, logg)
		if !ok {
			return
		}

		var err error
		if favoriteID, perr := validators.PathID(r, "favoriteID"); perr == nil {
			err = b.DeleteFavorite(id.UserID, favoriteID)
		} else {
			productID, qerr := validators.QueryID(r, "product")
			switch {
			case qerr != nil:
				err = qerr
			case productID == 0:
				err = perr
			default:
				err = b.DeleteFavoriteByProduct(id.UserID, productID)
			}
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
