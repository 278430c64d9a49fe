package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
)

func withParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestPathID(t *testing.T) {
	r := withParam(httptest.NewRequest(http.MethodGet, "/x", nil), "id", "42")
	id, err := PathID(r, "id")
	if err != nil || id != 42 {
		t.Fatalf("expected 42, got %d (%v)", id, err)
	}

	r = withParam(httptest.NewRequest(http.MethodGet, "/x", nil), "id", "-3")
	if _, err := PathID(r, "id"); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("negative ids should be not found, got %v", err)
	}
}

func TestQueryIDAndFlag(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x?product=9&unread=true", nil)
	id, err := QueryID(r, "product")
	if err != nil || id != 9 {
		t.Fatalf("expected 9, got %d (%v)", id, err)
	}
	if !QueryFlag(r, "unread") {
		t.Fatalf("expected unread flag")
	}

	r = httptest.NewRequest(http.MethodGet, "/x?product=abc&unread=1", nil)
	if _, err := QueryID(r, "product"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if QueryFlag(r, "unread") {
		t.Fatalf("only \"true\" is truthy")
	}
	if id, err := QueryID(r, "missing"); id != 0 || err != nil {
		t.Fatalf("absent parameter should be zero")
	}
}
