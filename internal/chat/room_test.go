package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/ajshoes-client/internal/realtime"
	"github.com/angelmondragon/ajshoes-client/pkg/config"
	"github.com/angelmondragon/ajshoes-client/pkg/enums"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAPI struct {
	mu       sync.Mutex
	room     shopapi.MyRoom
	messages []shopapi.ChatMessage
	sent     shopapi.ChatMessage
}

func (s *stubAPI) MyChatRoom(context.Context) (shopapi.MyRoom, error) {
	return s.room, nil
}

func (s *stubAPI) ChatMessages(context.Context, int64) ([]shopapi.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]shopapi.ChatMessage(nil), s.messages...), nil
}

func (s *stubAPI) SendChatImage(context.Context, int64, string, string, io.Reader) (shopapi.ChatMessage, error) {
	return s.sent, nil
}

type fakeConn struct {
	frames  chan []byte
	closed  chan struct{}
	once    sync.Once
	mu      sync.Mutex
	written []string
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 8), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case b := <-c.frames:
		return b, nil
	case <-c.closed:
		return nil, errors.New("closed")
	}
}

func (c *fakeConn) WriteMessage(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, string(b))
	return nil
}

func (c *fakeConn) Close(int, string) error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type fakeDialer struct {
	conn *fakeConn
	urls chan string
}

func (d fakeDialer) Dial(_ context.Context, url, _ string) (realtime.Conn, error) {
	d.urls <- url
	return d.conn, nil
}

func testConfig(ws string) config.RealtimeConfig {
	return config.RealtimeConfig{
		WSBaseURL:        ws,
		HandshakeTimeout: time.Second,
		MaxAttempts:      5,
		PollInterval:     10 * time.Millisecond,
		ChatHistoryCap:   3,
	}
}

func msg(id int64, text string) shopapi.ChatMessage {
	return shopapi.ChatMessage{ID: id, Message: text, SenderID: 1, SenderRole: enums.UserRoleCustomer}
}

func TestConnectResolvesRoomAndReceivesFrames(t *testing.T) {
	api := &stubAPI{room: shopapi.MyRoom{Room: shopapi.ChatRoom{ID: 42}, Messages: []shopapi.ChatMessage{msg(1, "hi")}}}
	conn := newFakeConn()
	dialer := fakeDialer{conn: conn, urls: make(chan string, 1)}
	r, err := NewRoom(ServiceParams{API: api, Dialer: dialer, Config: testConfig("ws://shop.test")})
	require.NoError(t, err)
	got := make(chan shopapi.ChatMessage, 4)
	errs := make(chan string, 4)
	r.OnMessage(func(m shopapi.ChatMessage) { got <- m })
	r.OnError(func(code string) { errs <- code })

	require.NoError(t, r.Connect(context.Background()))
	defer r.Close()
	assert.Equal(t, "ws://shop.test/ws/chat/42/", <-dialer.urls)
	assert.Equal(t, int64(42), r.RoomID())

	conn.frames <- []byte(`{"message":{"id":2,"message":"hello","sender":9,"sender_role":"subadmin","is_admin":true}}`)
	conn.frames <- []byte(`{"message":{"id":2,"message":"hello","sender":9}}`)
	conn.frames <- []byte(`{"type":"error","code":"rate_limited"}`)

	select {
	case m := <-got:
		assert.Equal(t, int64(2), m.ID)
		assert.True(t, m.IsAdmin)
	case <-time.After(2 * time.Second):
		t.Fatal("message frame not delivered")
	}
	select {
	case code := <-errs:
		assert.Equal(t, "rate_limited", code)
	case <-time.After(2 * time.Second):
		t.Fatal("error frame not delivered")
	}
	assert.Equal(t, "rate_limited", r.LastError())
	assert.Len(t, r.Messages(), 2, "duplicate id must be recorded once")
}

func TestSendTextValidation(t *testing.T) {
	conn := newFakeConn()
	dialer := fakeDialer{conn: conn, urls: make(chan string, 1)}
	r, err := NewRoom(ServiceParams{API: &stubAPI{}, RoomID: 7, Dialer: dialer, Config: testConfig("ws://shop.test")})
	require.NoError(t, err)

	err = r.SendText(context.Background(), "hello")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeTransport), "sending before open must fail, got %v", err)

	require.NoError(t, r.Connect(context.Background()))
	defer r.Close()
	<-dialer.urls
	require.Eventually(t, func() bool { return r.Status().State == enums.ConnectionStateOpen }, 2*time.Second, 5*time.Millisecond)

	assert.True(t, pkgerrors.IsCode(r.SendText(context.Background(), "   "), pkgerrors.CodeValidation))
	assert.True(t, pkgerrors.IsCode(r.SendText(context.Background(), strings.Repeat("ก", MaxMessageLength+1)), pkgerrors.CodeValidation))
	require.NoError(t, r.SendText(context.Background(), strings.Repeat("ก", MaxMessageLength)))
	require.NoError(t, r.SendText(context.Background(), "  hi  "))

	conn.mu.Lock()
	defer conn.mu.Unlock()
	require.Len(t, conn.written, 2)
	assert.Equal(t, `{"message":"hi"}`, conn.written[1])
}

func TestPollFallbackDeliversNewerMessages(t *testing.T) {
	api := &stubAPI{messages: []shopapi.ChatMessage{msg(1, "a"), msg(2, "b")}}
	r, err := NewRoom(ServiceParams{API: api, RoomID: 5, Config: testConfig("")})
	require.NoError(t, err)
	require.NoError(t, r.Connect(context.Background()))
	defer r.Close()

	api.mu.Lock()
	api.messages = append(api.messages, msg(3, "c"), msg(4, "d"))
	api.mu.Unlock()

	require.Eventually(t, func() bool { return len(r.Messages()) == 3 }, 2*time.Second, 5*time.Millisecond)
	msgs := r.Messages()
	assert.Equal(t, []int64{2, 3, 4}, []int64{msgs[0].ID, msgs[1].ID, msgs[2].ID}, "history is capped at 3, oldest evicted")
	assert.Equal(t, enums.ConnectionStateFallbackPolling, r.Status().State)
}

func TestSendImageRecordsOnce(t *testing.T) {
	image := "https://cdn.test/chat_1.png"
	api := &stubAPI{sent: shopapi.ChatMessage{ID: 10, Image: &image}}
	r, err := NewRoom(ServiceParams{API: api, RoomID: 5, Config: testConfig("")})
	require.NoError(t, err)

	m, err := r.SendImage(context.Background(), "slip.png", strings.NewReader("png"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), m.ID)
	r.handle(Event{Message: &m})
	assert.Len(t, r.Messages(), 1)
}

func TestEvictedMessageIsNotRecordedAgain(t *testing.T) {
	r, err := NewRoom(ServiceParams{API: &stubAPI{}, RoomID: 5, Config: testConfig("")})
	require.NoError(t, err)
	delivered := 0
	r.OnMessage(func(shopapi.ChatMessage) { delivered++ })

	for id := int64(1); id <= 4; id++ {
		m := msg(id, "m")
		r.handle(Event{Message: &m})
	}
	late := msg(1, "m")
	r.handle(Event{Message: &late})

	msgs := r.Messages()
	assert.Equal(t, []int64{2, 3, 4}, []int64{msgs[0].ID, msgs[1].ID, msgs[2].ID})
	assert.Equal(t, 4, delivered, "late redelivery of an evicted message must be dropped")
}

func TestDecodeFrameShapes(t *testing.T) {
	events, err := decodeFrame([]byte(`{"error":"message_too_long"}`))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "message_too_long", events[0].Error)

	events, err = decodeFrame([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = decodeFrame([]byte(`{`))
	assert.Error(t, err)
}
