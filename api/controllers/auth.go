package controllers

import (
	"net/http"

	"github.com/angelmondragon/ajshoes-client/api/middleware"
	"github.com/angelmondragon/ajshoes-client/api/responses"
	"github.com/angelmondragon/ajshoes-client/api/validators"
	"github.com/angelmondragon/ajshoes-client/internal/twin"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/logger"
)

type loginPayload struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshPayload struct {
	Refresh string `json:"refresh" validate:"required"`
}

// AuthLogin issues an access/refresh pair.
func AuthLogin(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var body loginPayload
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		pair, err := b.Login(ctx, body.Username, body.Password)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, pair)
	}
}

func AuthRefresh(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var body refreshPayload
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		access, err := b.Refresh(body.Refresh)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"access": access})
	}
}

func AccountMe(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r, logg)
		if !ok {
			return
		}
		u, err := b.Me(id.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, u)
	}
}

// identity reads the caller or writes 401.
func identity(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (twin.Identity, bool) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "Authentication credentials were not provided."))
	}
	return id, ok
}
