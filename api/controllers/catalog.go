package controllers

import (
	"net/http"

	"github.com/angelmondragon/ajshoes-client/api/responses"
	"github.com/angelmondragon/ajshoes-client/api/validators"
	"github.com/angelmondragon/ajshoes-client/internal/twin"
	"github.com/angelmondragon/ajshoes-client/pkg/logger"
)

func ProductDetail(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := validators.PathID(r, "productID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		p, err := b.Product(id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, p)
	}
}

func ProductList(b *twin.Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, b.Products())
	}
}
