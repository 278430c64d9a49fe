package shopapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/angelmondragon/ajshoes-client/pkg/auth/session"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/logger"
	"github.com/angelmondragon/ajshoes-client/pkg/validate"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	defaultRefreshSkew          = 30 * time.Second
	responseBodyReadLimit int64 = 4 << 20
	errorBodyReadLimit    int64 = 64 << 10

	refreshPath = "/api/auth/refresh/"
)

var errBaseURLRequired = errors.New("api base url is required")

// Client talks to the storefront REST API on behalf of one session.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	session     *session.Session
	logg        *logger.Logger
	refreshSkew time.Duration
	now         func() time.Time

	refreshGroup singleflight.Group
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout bounds every request; zero leaves requests bounded by ctx only.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d, Transport: c.httpClient.Transport}
		}
	}
}

func WithLogger(logg *logger.Logger) Option {
	return func(c *Client) {
		if logg != nil {
			c.logg = logg
		}
	}
}

// WithRefreshSkew sets how close to expiry the access token is refreshed
// before a request.
func WithRefreshSkew(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.refreshSkew = d
		}
	}
}

// NewClient builds an API client bound to sess.
func NewClient(baseURL string, sess *session.Session, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	if sess == nil {
		sess = session.New(nil)
	}

	client := &Client{
		httpClient:  &http.Client{},
		baseURL:     trimSlash(trimmed),
		session:     sess,
		logg:        logger.Nop(),
		refreshSkew: defaultRefreshSkew,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Session exposes the session the client authenticates with.
func (c *Client) Session() *session.Session {
	return c.session
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type request struct {
	method string
	path   string
	query  url.Values
	// body is JSON-encoded unless raw is set.
	body        any
	raw         []byte
	contentType string
	anonymous   bool
	// validated bodies are checked with validate.Struct before sending.
	validated bool
}

// do performs req and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, req request, out any) error {
	payload, contentType, err := c.encodeBody(req)
	if err != nil {
		return err
	}

	if !req.anonymous && c.session.NeedsRefresh(c.now(), c.refreshSkew) {
		if err := c.refresh(ctx); err != nil && pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
			return err
		}
	}

	token := c.session.Access()
	resp, err := c.send(ctx, req, payload, contentType, token)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized && !req.anonymous && c.session.Refresh() != "" {
		_ = resp.Body.Close()
		// Another caller may already have refreshed while this request was in flight.
		if c.session.Access() == token {
			if err := c.refresh(ctx); err != nil {
				return err
			}
		}
		resp, err = c.send(ctx, req, payload, contentType, c.session.Access())
		if err != nil {
			return err
		}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return c.errorFromResponse(resp, req.path)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, responseBodyReadLimit)).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+req.path+" response")
	}
	return nil
}

func (c *Client) encodeBody(req request) ([]byte, string, error) {
	if req.raw != nil {
		return req.raw, req.contentType, nil
	}
	if req.body == nil {
		return nil, "", nil
	}
	if req.validated {
		if err := validate.Struct(req.body); err != nil {
			return nil, "", err
		}
	}
	payload, err := json.Marshal(req.body)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal "+req.path+" request")
	}
	return payload, "application/json", nil
}

func (c *Client) send(ctx context.Context, req request, payload []byte, contentType, token string) (*http.Response, error) {
	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build "+req.path+" request")
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-Id", requestID)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if token != "" && !req.anonymous {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	logCtx := c.logg.WithFields(ctx, map[string]any{
		"request_id": requestID,
		"method":     req.method,
		"path":       req.path,
	})

	started := c.now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logg.Warn(logCtx, "api request failed: "+err.Error())
		if ctx.Err() != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeTransport, ctx.Err(), "request cancelled")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransport, err, "network unavailable")
	}
	c.logg.Debug(c.logg.WithFields(logCtx, map[string]any{
		"status":      resp.StatusCode,
		"duration_ms": c.now().Sub(started).Milliseconds(),
	}), "api request")
	return resp, nil
}

// refresh exchanges the refresh token for a new access token. Concurrent
// callers share one in-flight refresh.
func (c *Client) refresh(ctx context.Context) error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		refreshToken := c.session.Refresh()
		if refreshToken == "" {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "not logged in")
		}

		var out struct {
			Access string `json:"access"`
		}
		err := c.do(ctx, request{
			method:    http.MethodPost,
			path:      refreshPath,
			body:      map[string]string{"refresh": refreshToken},
			anonymous: true,
		}, &out)
		if err == nil && out.Access == "" {
			err = pkgerrors.New(pkgerrors.CodeUnauthorized, "refresh returned no access token")
		}
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeTransport) || pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
				return nil, err
			}
			c.logg.Warn(ctx, "token refresh rejected, clearing session")
			if clearErr := c.session.Clear(ctx); clearErr != nil {
				c.logg.Error(ctx, "clear session", clearErr)
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "session expired, please log in again")
		}
		return nil, c.session.UpdateAccess(ctx, out.Access)
	})
	return err
}

func (c *Client) errorFromResponse(resp *http.Response, path string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
	detail := extractDetail(raw)

	code := pkgerrors.FromHTTPStatus(resp.StatusCode)
	if code == pkgerrors.CodeValidation && strings.Contains(strings.ToLower(detail), "insufficient stock") {
		code = pkgerrors.CodeStockChanged
	}

	message := detail
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return pkgerrors.New(code, message).WithDetails(pkgerrors.HTTPDetails{
		Status: resp.StatusCode,
		Detail: detail,
		Path:   path,
	})
}

// extractDetail pulls a human-readable message out of the error shapes the
// backend emits: {"detail": ...}, {"error": ...}, field maps, or a list.
func extractDetail(raw []byte) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}

	var list []string
	if json.Unmarshal(raw, &list) == nil {
		return strings.Join(list, "; ")
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	for _, key := range []string{"detail", "error", "message", "non_field_errors"} {
		if v, ok := body[key]; ok {
			if s := messageFrom(v); s != "" {
				return s
			}
		}
	}

	fields := make([]string, 0, len(body))
	for key, v := range body {
		if s := messageFrom(v); s != "" {
			fields = append(fields, key+": "+s)
		}
	}
	sort.Strings(fields)
	return strings.Join(fields, "; ")
}

func messageFrom(v json.RawMessage) string {
	var s string
	if json.Unmarshal(v, &s) == nil {
		return s
	}
	var list []string
	if json.Unmarshal(v, &list) == nil {
		return strings.Join(list, "; ")
	}
	return ""
}

// list decodes either a bare JSON array or a paginated {"results": [...]}.
type list[T any] []T

func (l *list[T]) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var page struct {
			Results []T `json:"results"`
		}
		if err := json.Unmarshal(trimmed, &page); err != nil {
			return err
		}
		*l = page.Results
		return nil
	}
	var items []T
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return err
	}
	*l = items
	return nil
}
