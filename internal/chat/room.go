// Package chat connects the customer to their support chat room.
package chat

import (
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/angelmondragon/ajshoes-client/internal/realtime"
	"github.com/angelmondragon/ajshoes-client/pkg/config"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/logger"
	"github.com/angelmondragon/ajshoes-client/pkg/metrics"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
)

const (
	Stream = "chat"
	// MaxMessageLength matches the server's limit, counted in characters.
	MaxMessageLength = 2000
)

type API interface {
	MyChatRoom(ctx context.Context) (shopapi.MyRoom, error)
	ChatMessages(ctx context.Context, roomID int64) ([]shopapi.ChatMessage, error)
	SendChatImage(ctx context.Context, roomID int64, caption, filename string, image io.Reader) (shopapi.ChatMessage, error)
}

// Event is one inbound chat frame: a message or a server error code such as
// rate_limited or empty_message.
type Event struct {
	Message *shopapi.ChatMessage
	Error   string
}

type ServiceParams struct {
	API API
	// RoomID zero means the customer's own room, resolved on Connect.
	RoomID  int64
	Dialer  realtime.Dialer
	Token   func() string
	Config  config.RealtimeConfig
	Logger  *logger.Logger
	Metrics *metrics.RealtimeMetrics
}

type Room struct {
	api     API
	history *realtime.BoundedLog[shopapi.ChatMessage]
	mgr     *realtime.Manager[Event]
	logg    *logger.Logger

	recordMu sync.Mutex
	mu       sync.Mutex
	roomID   int64
	lastID   int64
	lastErr  string
	onMsg    []func(shopapi.ChatMessage)
	onErr    []func(string)
}

func NewRoom(params ServiceParams) (*Room, error) {
	if params.API == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "chat api is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	historyCap := params.Config.ChatHistoryCap
	if historyCap <= 0 {
		historyCap = 200
	}
	r := &Room{
		api:     params.API,
		history: realtime.NewBoundedLog[shopapi.ChatMessage](historyCap),
		logg:    logg,
		roomID:  params.RoomID,
	}
	cfg := params.Config
	mgr, err := realtime.NewManager(realtime.Params[Event]{
		Stream: Stream,
		URL: func() string {
			return cfg.WSURL("/ws/chat/" + strconv.FormatInt(r.RoomID(), 10) + "/")
		},
		Token:   params.Token,
		Dialer:  params.Dialer,
		Decode:  decodeFrame,
		Poll:    r.poll,
		Config:  cfg,
		Logger:  logg,
		Metrics: params.Metrics,
	})
	if err != nil {
		return nil, err
	}
	mgr.OnEvent(r.handle)
	r.mgr = mgr
	return r, nil
}

func decodeFrame(data []byte) ([]Event, error) {
	var frame struct {
		Type    string          `json:"type"`
		Code    string          `json:"code"`
		Error   string          `json:"error"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, err
	}
	switch {
	case frame.Type == "error":
		code := frame.Code
		if code == "" {
			code = frame.Error
		}
		return []Event{{Error: code}}, nil
	case frame.Error != "":
		return []Event{{Error: frame.Error}}, nil
	case len(frame.Message) > 0 && frame.Message[0] == '{':
		var msg shopapi.ChatMessage
		if err := json.Unmarshal(frame.Message, &msg); err != nil {
			return nil, err
		}
		return []Event{{Message: &msg}}, nil
	}
	return nil, nil
}

func (r *Room) RoomID() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roomID
}

// Connect resolves the room when needed, loads history and starts the
// real-time manager.
func (r *Room) Connect(ctx context.Context) error {
	if r.RoomID() == 0 {
		if _, err := r.MyRoom(ctx); err != nil {
			return err
		}
	} else if err := r.LoadHistory(ctx); err != nil {
		return err
	}
	ctx = r.logg.WithField(ctx, "room_id", r.RoomID())
	return r.mgr.Start(ctx)
}

// MyRoom resolves the customer's own room and seeds history with its recent
// messages.
func (r *Room) MyRoom(ctx context.Context) (shopapi.MyRoom, error) {
	room, err := r.api.MyChatRoom(ctx)
	if err != nil {
		return shopapi.MyRoom{}, err
	}
	r.mu.Lock()
	r.roomID = room.Room.ID
	r.mu.Unlock()
	r.replaceHistory(room.Messages)
	return room, nil
}

// LoadHistory replaces the local history with the server's.
func (r *Room) LoadHistory(ctx context.Context) error {
	id := r.RoomID()
	if id == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "room id is required")
	}
	msgs, err := r.api.ChatMessages(ctx, id)
	if err != nil {
		return err
	}
	r.replaceHistory(msgs)
	return nil
}

func (r *Room) replaceHistory(msgs []shopapi.ChatMessage) {
	r.history.Replace(msgs)
	r.mu.Lock()
	for _, m := range msgs {
		if m.ID > r.lastID {
			r.lastID = m.ID
		}
	}
	r.mu.Unlock()
}

// Messages returns history oldest first.
func (r *Room) Messages() []shopapi.ChatMessage {
	return r.history.Items()
}

// LastError is the most recent server error code, or "".
func (r *Room) LastError() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

func (r *Room) OnMessage(fn func(shopapi.ChatMessage)) {
	r.mu.Lock()
	r.onMsg = append(r.onMsg, fn)
	r.mu.Unlock()
}

func (r *Room) OnError(fn func(code string)) {
	r.mu.Lock()
	r.onErr = append(r.onErr, fn)
	r.mu.Unlock()
}

func (r *Room) OnState(fn func(realtime.StateChange)) { r.mgr.OnState(fn) }
func (r *Room) Status() realtime.Status               { return r.mgr.Status() }
func (r *Room) Resume()                               { r.mgr.Resume() }
func (r *Room) Close() error                          { return r.mgr.Close() }

// SendText sends over the open connection. The text is trimmed and must be
// non-empty and at most MaxMessageLength characters.
func (r *Room) SendText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "message is empty")
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return pkgerrors.New(pkgerrors.CodeValidation, "message is too long").
			WithDetails(map[string]any{"max": MaxMessageLength})
	}
	frame, err := json.Marshal(map[string]string{"message": text})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode chat frame")
	}
	return r.mgr.Send(ctx, frame)
}

// SendImage uploads an image over REST. The server broadcasts the stored
// message to the room, so it is recorded once either way.
func (r *Room) SendImage(ctx context.Context, filename string, image io.Reader) (shopapi.ChatMessage, error) {
	id := r.RoomID()
	if id == 0 {
		return shopapi.ChatMessage{}, pkgerrors.New(pkgerrors.CodeValidation, "room id is required")
	}
	msg, err := r.api.SendChatImage(ctx, id, "", filename, image)
	if err != nil {
		return shopapi.ChatMessage{}, err
	}
	r.record(msg)
	return msg, nil
}

func (r *Room) handle(e Event) {
	if e.Error != "" {
		r.mu.Lock()
		r.lastErr = e.Error
		subs := append([]func(string){}, r.onErr...)
		r.mu.Unlock()
		for _, fn := range subs {
			fn(e.Error)
		}
		return
	}
	if e.Message != nil {
		r.record(*e.Message)
	}
}

// record appends msg unless a message with the same id is already held or
// msg is older than everything held, which means it was evicted earlier.
func (r *Room) record(msg shopapi.ChatMessage) {
	r.recordMu.Lock()
	defer r.recordMu.Unlock()
	if msg.ID != 0 {
		held := r.history.Items()
		for _, h := range held {
			if h.ID == msg.ID {
				return
			}
		}
		r.mu.Lock()
		last := r.lastID
		r.mu.Unlock()
		if msg.ID <= last && (len(held) == 0 || msg.ID < held[0].ID) {
			return
		}
	}
	r.history.Append(msg)
	r.mu.Lock()
	if msg.ID > r.lastID {
		r.lastID = msg.ID
	}
	subs := append([]func(shopapi.ChatMessage){}, r.onMsg...)
	r.mu.Unlock()
	for _, fn := range subs {
		fn(msg)
	}
}

func (r *Room) poll(ctx context.Context) ([]Event, error) {
	id := r.RoomID()
	if id == 0 {
		return nil, nil
	}
	msgs, err := r.api.ChatMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	after := r.lastID
	r.mu.Unlock()
	var out []Event
	for i := range msgs {
		if msgs[i].ID > after {
			m := msgs[i]
			out = append(out, Event{Message: &m})
		}
	}
	return out, nil
}
