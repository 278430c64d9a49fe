package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/ajshoes-client/internal/twin"
	"github.com/angelmondragon/ajshoes-client/pkg/enums"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/google/uuid"
)

type stubVerifier struct {
	id  twin.Identity
	err error
}

func (s stubVerifier) Authenticate(string) (twin.Identity, error) {
	return s.id, s.err
}

func TestAuthRejectsMissingToken(t *testing.T) {
	h := Auth(stubVerifier{}, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders/cart/", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthSeedsIdentity(t *testing.T) {
	want := twin.Identity{UserID: 7, Role: enums.UserRoleCustomer}
	var got twin.Identity
	h := Auth(stubVerifier{id: want}, nil)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/accounts/me/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestAuthPropagatesVerifierError(t *testing.T) {
	h := Auth(stubVerifier{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "Token is invalid or expired")}, nil)(http.NotFoundHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer expired")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized || !strings.Contains(w.Body.String(), "invalid or expired") {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}
}

func TestRequestIDKeepsClientUUID(t *testing.T) {
	h := RequestID(nil)(http.NotFoundHandler())
	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, id)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Header().Get(requestIDHeader) != id {
		t.Fatalf("expected echoed id")
	}

	req.Header.Set(requestIDHeader, "not-a-uuid")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got == "not-a-uuid" || got == "" {
		t.Fatalf("expected a fresh id, got %q", got)
	}
}

func TestRecovererReturns500(t *testing.T) {
	h := Recoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "boom") {
		t.Fatalf("panic value must not leak: %s", w.Body.String())
	}
}

func TestLoginRateLimitPerUsername(t *testing.T) {
	h := LoginRateLimit(LoginRateLimitPolicy{Window: time.Minute, UsernameLimit: 2}, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/token/", strings.NewReader(`{"username":"`+user+`","password":"x"}`))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}
	for i := 0; i < 2; i++ {
		if code := send("Demo"); code != http.StatusOK {
			t.Fatalf("attempt %d should pass, got %d", i+1, code)
		}
	}
	if code := send("demo"); code != http.StatusTooManyRequests {
		t.Fatalf("third attempt should be throttled, got %d", code)
	}
	if code := send("other"); code != http.StatusOK {
		t.Fatalf("other usernames are unaffected, got %d", code)
	}
}

func TestWindowCounterResets(t *testing.T) {
	c := newWindowCounter()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	c.incr("k", time.Second)
	if n := c.incr("k", time.Second); n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
	now = now.Add(time.Second)
	if n := c.incr("k", time.Second); n != 1 {
		t.Fatalf("expected reset to 1, got %d", n)
	}
}
