package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/validate"
)

// DecodeJSONBody decodes and validates a JSON request body.
func DecodeJSONBody(r *http.Request, dest any) error {
	return validate.DecodeJSONBody(r, dest)
}

// PathID parses a positive integer route parameter.
func PathID(r *http.Request, key string) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "Not found.").WithDetails(map[string]any{"field": key})
	}
	return id, nil
}

// QueryID parses an optional positive integer query parameter; absent
// parameters return 0.
func QueryID(r *http.Request, key string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, key+" must be a positive integer").WithDetails(map[string]any{"field": key})
	}
	return id, nil
}

// QueryFlag reports whether key is "true" (the only truthy spelling the
// storefront accepts).
func QueryFlag(r *http.Request, key string) bool {
	return r.URL.Query().Get(key) == "true"
}
