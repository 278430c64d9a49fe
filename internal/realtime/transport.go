package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
)

// Conn is one open real-time connection. ReadMessage blocks until a frame
// arrives or the connection fails.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close(code int, reason string) error
}

// Dialer opens a connection to url authenticated with token.
type Dialer interface {
	Dial(ctx context.Context, url, token string) (Conn, error)
}

// HandshakeError is a failed dial. Status is the HTTP status of the upgrade
// response, or 0 when none was received.
type HandshakeError struct {
	Status int
	Err    error
}

func (e *HandshakeError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("websocket handshake failed with status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("websocket handshake failed: %v", e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// IsAuthRejection reports whether err means the server refused the
// credentials: an upgrade answered 401/403, or a close frame with 1008 or an
// application code in 4000-4999.
func IsAuthRejection(err error) bool {
	var hs *HandshakeError
	if errors.As(err, &hs) && (hs.Status == http.StatusUnauthorized || hs.Status == http.StatusForbidden) {
		return true
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code == websocket.ClosePolicyViolation || (ce.Code >= 4000 && ce.Code <= 4999)
	}
	return false
}

// WSDialer dials with gorilla/websocket. The bearer token goes in the token
// query parameter, which is what the backend's channel middleware reads, and
// in the Authorization header.
type WSDialer struct {
	dialer *websocket.Dialer
}

func NewWSDialer(handshakeTimeout time.Duration) *WSDialer {
	return &WSDialer{dialer: &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}}
}

func (d *WSDialer) Dial(ctx context.Context, rawURL, token string) (Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &HandshakeError{Err: err}
	}
	header := http.Header{}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
		header.Set("Authorization", "Bearer "+token)
	}
	c, resp, err := d.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
			_ = resp.Body.Close()
		}
		return nil, &HandshakeError{Status: status, Err: err}
	}
	return &wsConn{conn: c}, nil
}

type wsConn struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		writeErr := c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		if errors.Is(writeErr, websocket.ErrCloseSent) {
			writeErr = nil
		}
		c.closeErr = multierr.Combine(writeErr, c.conn.Close())
	})
	return c.closeErr
}
