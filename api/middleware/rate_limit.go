package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/ajshoes-client/api/responses"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/logger"
)

// LoginRateLimitPolicy bounds login attempts per client IP and per username
// inside a fixed window.
type LoginRateLimitPolicy struct {
	Window        time.Duration
	IPLimit       int
	UsernameLimit int
}

func (p LoginRateLimitPolicy) enabled() bool {
	return p.Window > 0 && (p.IPLimit > 0 || p.UsernameLimit > 0)
}

type windowCounter struct {
	mu     sync.Mutex
	counts map[string]int
	resets map[string]time.Time
	now    func() time.Time
}

func newWindowCounter() *windowCounter {
	return &windowCounter{counts: make(map[string]int), resets: make(map[string]time.Time), now: time.Now}
}

func (c *windowCounter) incr(key string, window time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if reset, ok := c.resets[key]; !ok || !now.Before(reset) {
		c.counts[key] = 0
		c.resets[key] = now.Add(window)
	}
	c.counts[key]++
	return c.counts[key]
}

// LoginRateLimit throttles the token endpoint.
func LoginRateLimit(policy LoginRateLimitPolicy, logg *logger.Logger) func(http.Handler) http.Handler {
	counter := newWindowCounter()
	return func(next http.Handler) http.Handler {
		if !policy.enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if policy.IPLimit > 0 {
				ip := clientIP(r)
				if n := counter.incr("ip:"+ip, policy.Window); n > policy.IPLimit {
					respondRateLimited(w, r, logg, "ip", n, policy.IPLimit)
					return
				}
			}

			if policy.UsernameLimit > 0 {
				body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
				if username := extractUsername(body); username != "" {
					if n := counter.incr("user:"+username, policy.Window); n > policy.UsernameLimit {
						respondRateLimited(w, r, logg, "username", n, policy.UsernameLimit)
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func respondRateLimited(w http.ResponseWriter, r *http.Request, logg *logger.Logger, scope string, count, limit int) {
	ctx := r.Context()
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"scope":    scope,
			"attempts": count,
			"limit":    limit,
		}), "login.rate_limit.blocked")
	}
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit,
		fmt.Sprintf("Request was throttled (%s).", scope)))
}

func clientIP(r *http.Request) string {
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func extractUsername(payload []byte) string {
	var body struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(body.Username))
}
