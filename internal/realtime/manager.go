// Package realtime maintains one logical subscription to a server event
// stream over a websocket, reconnecting with backoff and falling back to
// periodic polling when the real-time path is unavailable.
package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/angelmondragon/ajshoes-client/pkg/config"
	"github.com/angelmondragon/ajshoes-client/pkg/enums"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/logger"
	"github.com/angelmondragon/ajshoes-client/pkg/metrics"
	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
)

// ErrNotConfigured is the fallback reason when no websocket URL is set.
var ErrNotConfigured = errors.New("real-time endpoint not configured")

// StateChange is delivered to state subscribers on every transition.
type StateChange struct {
	Stream  string
	State   enums.ConnectionState
	Attempt int
	Err     error
}

// Status is a point-in-time view of the manager.
type Status struct {
	State     enums.ConnectionState
	Attempt   int
	LastError error
	Polling   bool
}

// Params configures a Manager. URL returning "" means real-time is not
// configured and the manager polls from the start.
type Params[E any] struct {
	Stream  string
	URL     func() string
	Token   func() string
	Dialer  Dialer
	Decode  func([]byte) ([]E, error)
	Poll    func(ctx context.Context) ([]E, error)
	Config  config.RealtimeConfig
	Logger  *logger.Logger
	Metrics *metrics.RealtimeMetrics
}

type command int

const (
	cmdResume command = iota
	cmdReconnect
)

type inbound struct {
	gen  uint64
	data []byte
	err  error
}

// Manager runs a single loop goroutine. Subscribers are invoked from that
// goroutine one at a time and never after Close returns. Close must not be
// called from inside a subscriber.
type Manager[E any] struct {
	stream  string
	url     func() string
	token   func() string
	dialer  Dialer
	decode  func([]byte) ([]E, error)
	poll    func(ctx context.Context) ([]E, error)
	cfg     config.RealtimeConfig
	backoff Backoff
	logg    *logger.Logger
	metrics *metrics.RealtimeMetrics

	commands chan command
	inbound  chan inbound

	mu       sync.Mutex
	status   Status
	conn     Conn
	onEvent  []func(E)
	onState  []func(StateChange)
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}
	closeErr error
	closed   bool

	// loop goroutine only
	attempt    int
	connGen    uint64
	retryTimer *time.Timer
	pollTicker *time.Ticker
	retryTick  *time.Ticker
}

func NewManager[E any](params Params[E]) (*Manager[E], error) {
	if params.Stream == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stream name is required")
	}
	if params.Decode == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "frame decoder is required")
	}
	if params.URL == nil {
		params.URL = func() string { return "" }
	}
	if params.Token == nil {
		params.Token = func() string { return "" }
	}
	cfg := params.Config
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if params.Dialer == nil {
		params.Dialer = NewWSDialer(cfg.HandshakeTimeout)
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Manager[E]{
		stream:   params.Stream,
		url:      params.URL,
		token:    params.Token,
		dialer:   params.Dialer,
		decode:   params.Decode,
		poll:     params.Poll,
		cfg:      cfg,
		backoff:  Backoff{Base: cfg.BaseDelay, Max: cfg.MaxDelay},
		logg:     logg,
		metrics:  params.Metrics,
		commands: make(chan command, 4),
		inbound:  make(chan inbound, 16),
		status:   Status{State: enums.ConnectionStateClosed},
		done:     make(chan struct{}),
	}, nil
}

// OnEvent registers a subscriber for decoded events. Register before Start.
func (m *Manager[E]) OnEvent(fn func(E)) {
	m.mu.Lock()
	m.onEvent = append(m.onEvent, fn)
	m.mu.Unlock()
}

// OnState registers a subscriber for state transitions.
func (m *Manager[E]) OnState(fn func(StateChange)) {
	m.mu.Lock()
	m.onState = append(m.onState, fn)
	m.mu.Unlock()
}

// Start launches the loop. The loop stops when ctx is cancelled or Close is
// called.
func (m *Manager[E]) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.closed {
		return pkgerrors.New(pkgerrors.CodeConflict, "manager already started")
	}
	m.started = true
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	go m.run(m.logg.WithStream(loopCtx, m.stream))
	return nil
}

// Resume retries the real-time path with a fresh attempt budget unless it is
// already open. Call it when the UI becomes visible again.
func (m *Manager[E]) Resume() { m.signal(cmdResume) }

// Reconnect is the manual variant of Resume.
func (m *Manager[E]) Reconnect() { m.signal(cmdReconnect) }

func (m *Manager[E]) signal(c command) {
	select {
	case m.commands <- c:
	default:
	}
}

func (m *Manager[E]) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Send writes a frame on the open connection.
func (m *Manager[E]) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeTransport, err, "send cancelled")
	}
	m.mu.Lock()
	conn := m.conn
	open := m.status.State == enums.ConnectionStateOpen
	m.mu.Unlock()
	if !open || conn == nil {
		return pkgerrors.New(pkgerrors.CodeTransport, "real-time connection is not open")
	}
	if err := conn.WriteMessage(frame); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeTransport, err, "send failed")
	}
	return nil
}

// Close tears the manager down: closes the connection cleanly, stops timers
// and waits for the loop to exit. It is safe to call more than once.
func (m *Manager[E]) Close() error {
	m.mu.Lock()
	if m.closed {
		err := m.closeErr
		m.mu.Unlock()
		return err
	}
	m.closed = true
	started, cancel := m.started, m.cancel
	m.mu.Unlock()

	if started {
		cancel()
		<-m.done
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.State = enums.ConnectionStateClosed
	m.status.Polling = false
	return m.closeErr
}

func (m *Manager[E]) run(ctx context.Context) {
	defer close(m.done)
	defer m.teardown(ctx)

	m.connect(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-m.inbound:
			if in.gen != m.connGen {
				continue
			}
			if in.err != nil {
				m.dropped(ctx, in.err)
				continue
			}
			m.deliverFrame(ctx, in.data)
		case <-timerC(m.retryTimer):
			m.retryTimer = nil
			m.connect(ctx)
		case <-tickerC(m.pollTicker):
			m.runPoll(ctx)
		case <-tickerC(m.retryTick):
			if m.current() == enums.ConnectionStateFallbackPolling && m.retryTimer == nil {
				m.attempt = 0
				m.connect(ctx)
			}
		case <-m.commands:
			if m.current() != enums.ConnectionStateOpen && m.current() != enums.ConnectionStateConnecting {
				m.stopRetry()
				m.attempt = 0
				m.connect(ctx)
			}
		}
	}
}

func (m *Manager[E]) connect(ctx context.Context) {
	target := m.url()
	if target == "" {
		m.enterPolling(ctx, ErrNotConfigured)
		return
	}
	if m.attempt > 0 {
		m.metrics.IncReconnect(m.stream)
	}
	m.setState(ctx, enums.ConnectionStateConnecting, nil)

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
	conn, err := m.dialer.Dial(dialCtx, target, m.token())
	cancel()
	if ctx.Err() != nil {
		if conn != nil {
			_ = conn.Close(websocket.CloseNormalClosure, "")
		}
		return
	}
	if err != nil {
		m.failed(ctx, err)
		return
	}
	m.opened(ctx, conn)
}

func (m *Manager[E]) opened(ctx context.Context, conn Conn) {
	m.connGen++
	gen := m.connGen
	m.attempt = 0
	m.stopPolling()
	m.stopRetry()

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
	m.setState(ctx, enums.ConnectionStateOpen, nil)
	m.logg.Info(ctx, "real-time connection open")

	go func() {
		for {
			data, err := conn.ReadMessage()
			select {
			case m.inbound <- inbound{gen: gen, data: data, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
}

// dropped handles an unexpected end of an open connection.
func (m *Manager[E]) dropped(ctx context.Context, err error) {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.CloseNormalClosure, "")
	}
	m.connGen++
	m.logg.Warn(ctx, "real-time connection dropped: "+err.Error())
	m.failed(ctx, err)
}

func (m *Manager[E]) failed(ctx context.Context, err error) {
	if IsAuthRejection(err) {
		m.logg.Warn(ctx, "real-time connection rejected, polling instead")
		m.enterPolling(ctx, err)
		return
	}
	m.attempt++
	if m.attempt >= m.cfg.MaxAttempts {
		m.enterPolling(ctx, err)
		return
	}
	if m.pollTicker != nil {
		m.setState(ctx, enums.ConnectionStateFallbackPolling, err)
	} else {
		m.setState(ctx, enums.ConnectionStateClosed, err)
	}
	m.retryTimer = time.NewTimer(m.backoff.Delay(m.attempt - 1))
}

func (m *Manager[E]) enterPolling(ctx context.Context, reason error) {
	m.stopRetry()
	m.setState(ctx, enums.ConnectionStateFallbackPolling, reason)
	if m.pollTicker != nil {
		return
	}
	m.pollTicker = time.NewTicker(m.cfg.PollInterval)
	if m.cfg.RetryInterval > 0 && m.url() != "" && !IsAuthRejection(reason) {
		m.retryTick = time.NewTicker(m.cfg.RetryInterval)
	}
	m.mu.Lock()
	m.status.Polling = true
	m.mu.Unlock()
	m.runPoll(ctx)
}

func (m *Manager[E]) runPoll(ctx context.Context) {
	if m.poll == nil || ctx.Err() != nil {
		return
	}
	events, err := m.poll(ctx)
	m.metrics.IncPoll(m.stream, err == nil)
	if err != nil {
		if ctx.Err() == nil {
			m.logg.Warn(ctx, "poll failed: "+err.Error())
		}
		return
	}
	m.deliver(ctx, events)
}

func (m *Manager[E]) deliverFrame(ctx context.Context, data []byte) {
	events, err := m.decode(data)
	if err != nil {
		m.metrics.IncDropped(m.stream, "decode")
		m.logg.Warn(ctx, "dropping undecodable frame: "+err.Error())
		return
	}
	m.deliver(ctx, events)
}

func (m *Manager[E]) deliver(ctx context.Context, events []E) {
	if len(events) == 0 {
		return
	}
	m.mu.Lock()
	subs := append([]func(E){}, m.onEvent...)
	m.mu.Unlock()
	for _, e := range events {
		for _, fn := range subs {
			if ctx.Err() != nil {
				return
			}
			fn(e)
		}
	}
}

func (m *Manager[E]) setState(ctx context.Context, state enums.ConnectionState, err error) {
	m.mu.Lock()
	m.status.State = state
	m.status.Attempt = m.attempt
	if err != nil {
		m.status.LastError = err
	}
	change := StateChange{Stream: m.stream, State: state, Attempt: m.attempt, Err: err}
	subs := append([]func(StateChange){}, m.onState...)
	m.mu.Unlock()

	m.metrics.ObserveTransition(m.stream, string(state))
	for _, fn := range subs {
		if ctx.Err() != nil {
			return
		}
		fn(change)
	}
}

func (m *Manager[E]) current() enums.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.State
}

func (m *Manager[E]) stopPolling() {
	if m.pollTicker != nil {
		m.pollTicker.Stop()
		m.pollTicker = nil
	}
	if m.retryTick != nil {
		m.retryTick.Stop()
		m.retryTick = nil
	}
	m.mu.Lock()
	m.status.Polling = false
	m.mu.Unlock()
}

func (m *Manager[E]) stopRetry() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

func (m *Manager[E]) teardown(ctx context.Context) {
	m.stopRetry()
	m.stopPolling()

	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	var errs error
	if conn != nil {
		errs = multierr.Append(errs, conn.Close(websocket.CloseNormalClosure, "client closing"))
	}
	m.metrics.ObserveTransition(m.stream, string(enums.ConnectionStateClosed))
	m.logg.Debug(context.WithoutCancel(ctx), "real-time manager stopped")

	m.mu.Lock()
	m.closeErr = errs
	m.status.State = enums.ConnectionStateClosed
	m.mu.Unlock()
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func tickerC(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}
