package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/angelmondragon/ajshoes-client/pkg/config"
	"github.com/angelmondragon/ajshoes-client/pkg/enums"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/gorilla/websocket"
)

type fakeConn struct {
	frames    chan []byte
	fail      chan error
	closed    chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	written   [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 8), fail: make(chan error, 1), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.frames:
		return data, nil
	case err := <-c.fail:
		return nil, err
	case <-c.closed:
		return nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, data)
	return nil
}

func (c *fakeConn) Close(int, string) error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// fakeDialer pops scripted results; once the script is exhausted it keeps
// returning the last entry.
type fakeDialer struct {
	mu     sync.Mutex
	script []dialResult
	calls  int
	tokens []string
}

type dialResult struct {
	conn *fakeConn
	err  error
}

func (d *fakeDialer) Dial(_ context.Context, _ string, token string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.tokens = append(d.tokens, token)
	r := d.script[0]
	if len(d.script) > 1 {
		d.script = d.script[1:]
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.conn, nil
}

func (d *fakeDialer) setScript(rs ...dialResult) {
	d.mu.Lock()
	d.script = rs
	d.mu.Unlock()
}

func (d *fakeDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type event struct {
	ID int `json:"id"`
}

func decodeEvent(b []byte) ([]event, error) {
	var e event
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, err
	}
	return []event{e}, nil
}

func fastConfig() config.RealtimeConfig {
	return config.RealtimeConfig{
		HandshakeTimeout: time.Second,
		BaseDelay:        time.Millisecond,
		MaxDelay:         4 * time.Millisecond,
		MaxAttempts:      5,
		PollInterval:     20 * time.Millisecond,
	}
}

type recorder struct {
	states chan StateChange
	events chan event
}

func newManager(t *testing.T, dialer Dialer, url string, poll func(context.Context) ([]event, error), cfg config.RealtimeConfig) (*Manager[event], *recorder) {
	t.Helper()
	m, err := NewManager(Params[event]{
		Stream: "test",
		URL:    func() string { return url },
		Token:  func() string { return "tok" },
		Dialer: dialer,
		Decode: decodeEvent,
		Poll:   poll,
		Config: cfg,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	rec := &recorder{states: make(chan StateChange, 64), events: make(chan event, 64)}
	m.OnState(func(c StateChange) { rec.states <- c })
	m.OnEvent(func(e event) { rec.events <- e })
	t.Cleanup(func() { _ = m.Close() })
	return m, rec
}

func waitState(t *testing.T, rec *recorder, want enums.ConnectionState) StateChange {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case c := <-rec.states:
			if c.State == want {
				return c
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func waitEvent(t *testing.T, rec *recorder) event {
	t.Helper()
	select {
	case e := <-rec.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return event{}
}

func TestBackoffMonotonicAndCapped(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 30 * time.Second}
	want := []time.Duration{1, 2, 4, 8, 16, 30, 30}
	prev := time.Duration(0)
	for i, w := range want {
		got := b.Delay(i)
		if got != w*time.Second {
			t.Fatalf("attempt %d: expected %v got %v", i, w*time.Second, got)
		}
		if got < prev {
			t.Fatalf("delay decreased at attempt %d", i)
		}
		prev = got
	}
	if got := b.Delay(200); got != 30*time.Second {
		t.Fatalf("large attempts must stay capped, got %v", got)
	}
}

func TestZeroConfigUsesDefaultBackoff(t *testing.T) {
	m, err := NewManager(Params[event]{Stream: "test", Decode: decodeEvent})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	want := []time.Duration{1, 2, 4, 8, 16, 30, 30}
	for i, w := range want {
		if got := m.backoff.Delay(i); got != w*time.Second {
			t.Fatalf("attempt %d: expected %v got %v", i, w*time.Second, got)
		}
	}
	if m.cfg.HandshakeTimeout != 10*time.Second || m.cfg.MaxAttempts != 5 || m.cfg.PollInterval != 30*time.Second {
		t.Fatalf("unexpected defaults: %+v", m.cfg)
	}
}

func TestHandshakeFailuresFallBackToPolling(t *testing.T) {
	dialer := &fakeDialer{script: []dialResult{{err: &HandshakeError{Err: errors.New("refused")}}}}
	var polls atomic.Int32
	poll := func(context.Context) ([]event, error) {
		n := polls.Add(1)
		return []event{{ID: int(n)}}, nil
	}
	m, rec := newManager(t, dialer, "ws://x/ws/chat/1/", poll, fastConfig())
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	change := waitState(t, rec, enums.ConnectionStateFallbackPolling)
	if change.Err == nil {
		t.Fatalf("fallback should carry the last error")
	}
	if got := dialer.Calls(); got != 5 {
		t.Fatalf("expected 5 handshake attempts, got %d", got)
	}
	waitEvent(t, rec)
	waitEvent(t, rec)
	if !m.Status().Polling {
		t.Fatalf("status should report polling")
	}
}

func TestOpenResetsAttemptCounter(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{script: []dialResult{
		{err: errors.New("refused")},
		{err: errors.New("refused")},
		{conn: conn},
	}}
	m, rec := newManager(t, dialer, "ws://x/", nil, fastConfig())
	_ = m.Start(context.Background())

	var attempts []int
	for {
		c := <-rec.states
		if c.State == enums.ConnectionStateClosed {
			attempts = append(attempts, c.Attempt)
		}
		if c.State == enums.ConnectionStateOpen {
			if c.Attempt != 0 {
				t.Fatalf("attempt should reset on open, got %d", c.Attempt)
			}
			break
		}
	}
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Fatalf("unexpected attempt sequence %v", attempts)
	}

	conn.frames <- []byte(`{"id":7}`)
	if e := waitEvent(t, rec); e.ID != 7 {
		t.Fatalf("expected event 7, got %+v", e)
	}
	if dialer.tokens[0] != "tok" {
		t.Fatalf("token should be passed to the dialer")
	}
}

func TestDropReconnects(t *testing.T) {
	first, second := newFakeConn(), newFakeConn()
	dialer := &fakeDialer{script: []dialResult{{conn: first}, {conn: second}}}
	m, rec := newManager(t, dialer, "ws://x/", nil, fastConfig())
	_ = m.Start(context.Background())
	waitState(t, rec, enums.ConnectionStateOpen)

	first.fail <- &websocket.CloseError{Code: websocket.CloseAbnormalClosure}
	waitState(t, rec, enums.ConnectionStateClosed)
	waitState(t, rec, enums.ConnectionStateOpen)

	second.frames <- []byte(`{"id":2}`)
	if e := waitEvent(t, rec); e.ID != 2 {
		t.Fatalf("expected frame from the new connection, got %+v", e)
	}
}

func TestAuthRejectionSkipsBackoff(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{script: []dialResult{{conn: conn}}}
	m, rec := newManager(t, dialer, "ws://x/", func(context.Context) ([]event, error) { return nil, nil }, fastConfig())
	_ = m.Start(context.Background())
	waitState(t, rec, enums.ConnectionStateOpen)

	conn.fail <- &websocket.CloseError{Code: 4001, Text: "unauthorized"}
	waitState(t, rec, enums.ConnectionStateFallbackPolling)
	time.Sleep(30 * time.Millisecond)
	if got := dialer.Calls(); got != 1 {
		t.Fatalf("auth rejection must not redial, got %d dials", got)
	}
}

func TestEmptyURLPollsImmediately(t *testing.T) {
	dialer := &fakeDialer{script: []dialResult{{err: errors.New("unused")}}}
	polled := make(chan struct{}, 8)
	m, rec := newManager(t, dialer, "", func(context.Context) ([]event, error) {
		polled <- struct{}{}
		return nil, nil
	}, fastConfig())
	_ = m.Start(context.Background())

	c := waitState(t, rec, enums.ConnectionStateFallbackPolling)
	if !errors.Is(c.Err, ErrNotConfigured) {
		t.Fatalf("expected not configured reason, got %v", c.Err)
	}
	select {
	case <-polled:
	case <-time.After(time.Second):
		t.Fatalf("expected an immediate catch-up poll")
	}
	if dialer.Calls() != 0 {
		t.Fatalf("no dial expected without a url")
	}
}

func TestResumeFromPollingStopsPolling(t *testing.T) {
	dialer := &fakeDialer{script: []dialResult{{err: &HandshakeError{Status: http.StatusForbidden, Err: errors.New("forbidden")}}}}
	var polls atomic.Int32
	m, rec := newManager(t, dialer, "ws://x/", func(context.Context) ([]event, error) {
		polls.Add(1)
		return nil, nil
	}, fastConfig())
	_ = m.Start(context.Background())
	waitState(t, rec, enums.ConnectionStateFallbackPolling)

	dialer.setScript(dialResult{conn: newFakeConn()})
	m.Resume()
	waitState(t, rec, enums.ConnectionStateOpen)
	if m.Status().Polling {
		t.Fatalf("polling should stop once open")
	}
	settled := polls.Load()
	time.Sleep(60 * time.Millisecond)
	if polls.Load() != settled {
		t.Fatalf("poll ran after the connection opened")
	}
}

func TestCloseIsTerminalAndSilent(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{script: []dialResult{{conn: conn}}}
	m, rec := newManager(t, dialer, "ws://x/", nil, fastConfig())
	_ = m.Start(context.Background())
	waitState(t, rec, enums.ConnectionStateOpen)

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	select {
	case <-conn.closed:
	default:
		t.Fatalf("connection should be closed on teardown")
	}
	if m.Status().State != enums.ConnectionStateClosed {
		t.Fatalf("expected closed state")
	}
	for len(rec.states) > 0 {
		<-rec.states
	}
	time.Sleep(20 * time.Millisecond)
	if len(rec.states) != 0 || len(rec.events) != 0 {
		t.Fatalf("no callbacks may fire after Close")
	}
	if dialer.Calls() != 1 {
		t.Fatalf("no reconnect after clean close")
	}
	if err := m.Start(context.Background()); err == nil {
		t.Fatalf("a closed manager cannot be restarted")
	}
}

func TestSendRequiresOpenConnection(t *testing.T) {
	dialer := &fakeDialer{script: []dialResult{{err: errors.New("refused")}}}
	m, _ := newManager(t, dialer, "ws://x/", nil, fastConfig())
	err := m.Send(context.Background(), []byte(`{}`))
	if !pkgerrors.IsCode(err, pkgerrors.CodeTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestUndecodableFrameIsDropped(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{script: []dialResult{{conn: conn}}}
	m, rec := newManager(t, dialer, "ws://x/", nil, fastConfig())
	_ = m.Start(context.Background())
	waitState(t, rec, enums.ConnectionStateOpen)

	conn.frames <- []byte(`not json`)
	conn.frames <- []byte(`{"id":3}`)
	if e := waitEvent(t, rec); e.ID != 3 {
		t.Fatalf("expected the valid frame after a bad one, got %+v", e)
	}
	if err := m.Send(context.Background(), []byte(`{"message":"hi"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestWSDialerPassesToken(t *testing.T) {
	upgrader := websocket.Upgrader{}
	seen := make(chan [2]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- [2]string{r.URL.Query().Get("token"), r.Header.Get("Authorization")}
		if r.URL.Query().Get("token") != "abc" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		_ = c.WriteMessage(websocket.TextMessage, []byte(`{"id":1}`))
		_, _, _ = c.ReadMessage()
	}))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/notifications/"

	d := NewWSDialer(time.Second)
	conn, err := d.Dial(context.Background(), wsURL, "abc")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	got := <-seen
	if got[0] != "abc" || got[1] != "Bearer abc" {
		t.Fatalf("token not passed: %v", got)
	}
	data, err := conn.ReadMessage()
	if err != nil || string(data) != `{"id":1}` {
		t.Fatalf("unexpected frame %q %v", data, err)
	}
	_ = conn.Close(websocket.CloseNormalClosure, "")

	_, err = d.Dial(context.Background(), wsURL, "wrong")
	<-seen
	if !IsAuthRejection(err) {
		t.Fatalf("401 handshake should be an auth rejection, got %v", err)
	}
}

func TestBoundedLogEvictsOldest(t *testing.T) {
	l := NewBoundedLog[int](3)
	if n := l.Append(1, 2, 3); n != 0 {
		t.Fatalf("no eviction expected, got %d", n)
	}
	if n := l.Append(4); n != 1 {
		t.Fatalf("expected one eviction, got %d", n)
	}
	got := l.Items()
	if len(got) != 3 || got[0] != 2 || got[2] != 4 {
		t.Fatalf("unexpected items %v", got)
	}
	l.Replace([]int{9, 8, 7, 6, 5})
	if got := l.Items(); len(got) != 3 || got[0] != 7 {
		t.Fatalf("replace should keep the newest entries, got %v", got)
	}
}
