package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/ajshoes-client/internal/realtime"
	"github.com/angelmondragon/ajshoes-client/pkg/config"
	"github.com/angelmondragon/ajshoes-client/pkg/dedup"
	"github.com/angelmondragon/ajshoes-client/pkg/enums"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
	"github.com/angelmondragon/ajshoes-client/pkg/state"
)

type stubAPI struct {
	mu        sync.Mutex
	unread    []shopapi.Notification
	all       []shopapi.Notification
	marked    []int64
	markedAll bool
	polls     int
}

func (s *stubAPI) Notifications(_ context.Context, unreadOnly bool) ([]shopapi.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if unreadOnly {
		s.polls++
		return append([]shopapi.Notification(nil), s.unread...), nil
	}
	return append([]shopapi.Notification(nil), s.all...), nil
}

func (s *stubAPI) MarkNotificationsRead(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, ids...)
	return nil
}

func (s *stubAPI) MarkAllNotificationsRead(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markedAll = true
	return nil
}

func (s *stubAPI) setUnread(list ...shopapi.Notification) {
	s.mu.Lock()
	s.unread = list
	s.mu.Unlock()
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func note(id int64, minutes int) shopapi.Notification {
	return shopapi.Notification{ID: id, Kind: enums.NotificationKindOrder, Title: "Order", Message: "updated", CreatedAt: base.Add(time.Duration(minutes) * time.Minute)}
}

func pollingConfig() config.RealtimeConfig {
	return config.RealtimeConfig{
		PollInterval:        10 * time.Millisecond,
		MaxAttempts:         5,
		HandshakeTimeout:    time.Second,
		DedupTTL:            5 * time.Minute,
		DedupCapacity:       50,
		NotificationListCap: 3,
	}
}

func TestIngestDeduplicatesWithinWindow(t *testing.T) {
	f, err := NewFeed(ServiceParams{API: &stubAPI{}, Config: pollingConfig()})
	if err != nil {
		t.Fatalf("NewFeed: %v", err)
	}
	ctx := context.Background()
	if !f.Ingest(ctx, note(9, 1)) {
		t.Fatalf("first delivery should count")
	}
	if f.Ingest(ctx, note(9, 1)) {
		t.Fatalf("second delivery within the window should be suppressed")
	}
	if got := f.UnreadCount(); got != 1 {
		t.Fatalf("expected unread 1, got %d", got)
	}
	f.Ingest(ctx, shopapi.Notification{Title: "no id"})
	f.Ingest(ctx, shopapi.Notification{Title: "no id"})
	if got := f.UnreadCount(); got != 3 {
		t.Fatalf("events without an id are always counted, got %d", got)
	}
}

func TestRecentListIsCappedNewestFirst(t *testing.T) {
	f, _ := NewFeed(ServiceParams{API: &stubAPI{}, Config: pollingConfig()})
	for i := int64(1); i <= 5; i++ {
		f.Ingest(context.Background(), note(i, int(i)))
	}
	recent := f.Recent()
	if len(recent) != 3 || recent[0].ID != 5 || recent[2].ID != 3 {
		t.Fatalf("unexpected recent list %+v", recent)
	}
}

func TestPollingCountsOnlyNewRowsAndAdvancesCursor(t *testing.T) {
	api := &stubAPI{unread: []shopapi.Notification{note(1, 1), note(2, 2)}}
	cursor := state.NewMemory()
	f, err := NewFeed(ServiceParams{API: api, Cursor: cursor, Config: pollingConfig()})
	if err != nil {
		t.Fatalf("NewFeed: %v", err)
	}
	got := make(chan shopapi.Notification, 8)
	f.Subscribe(func(n shopapi.Notification) { got <- n })
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.Close()

	if f.UnreadCount() != 2 {
		t.Fatalf("expected initial unread 2, got %d", f.UnreadCount())
	}

	api.setUnread(note(3, 3), note(2, 2), note(1, 1))
	select {
	case n := <-got:
		if n.ID != 3 {
			t.Fatalf("expected notification 3, got %d", n.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("poll never delivered the new notification")
	}
	time.Sleep(40 * time.Millisecond)
	if f.UnreadCount() != 3 {
		t.Fatalf("seeded rows must not be counted twice, unread=%d", f.UnreadCount())
	}
	raw, err := cursor.Get(context.Background(), CursorKey)
	if err != nil {
		t.Fatalf("cursor not saved: %v", err)
	}
	if raw != base.Add(3*time.Minute).Format(time.RFC3339Nano) {
		t.Fatalf("cursor should hold the newest created_at, got %s", raw)
	}
	if f.Status().State != enums.ConnectionStateFallbackPolling {
		t.Fatalf("expected fallback polling without a websocket url")
	}
}

func TestOpenAndMarkRead(t *testing.T) {
	api := &stubAPI{
		unread: []shopapi.Notification{note(1, 1), note(2, 2)},
		all:    []shopapi.Notification{note(2, 2), note(1, 1)},
	}
	f, _ := NewFeed(ServiceParams{API: api, Config: pollingConfig()})
	ctx := context.Background()
	if err := f.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.Close()

	if err := f.MarkRead(ctx, 1); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if f.UnreadCount() != 1 {
		t.Fatalf("expected unread 1 after mark read, got %d", f.UnreadCount())
	}
	if err := f.MarkRead(ctx, 1); err != nil || f.UnreadCount() != 1 {
		t.Fatalf("marking twice must not decrement twice")
	}

	list, err := f.Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(list) != 2 || !list[0].IsRead || f.UnreadCount() != 0 || !api.markedAll {
		t.Fatalf("open should mark everything read, got %+v unread=%d", list, f.UnreadCount())
	}
}

type fakeConn struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case b := <-c.frames:
		return b, nil
	case <-c.closed:
		return nil, errors.New("closed")
	}
}

func (c *fakeConn) WriteMessage([]byte) error { return nil }

func (c *fakeConn) Close(int, string) error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type fakeDialer struct{ conn *fakeConn }

func (d fakeDialer) Dial(context.Context, string, string) (realtime.Conn, error) {
	return d.conn, nil
}

func TestLiveAndPolledDuplicateCountedOnce(t *testing.T) {
	cfg := pollingConfig()
	cfg.WSBaseURL = "ws://shop.test"
	conn := &fakeConn{frames: make(chan []byte, 4), closed: make(chan struct{})}
	api := &stubAPI{}
	window := dedup.NewMemory(time.Minute, 50)
	f, err := NewFeed(ServiceParams{API: api, Dedup: window, Dialer: fakeDialer{conn: conn}, Config: cfg})
	if err != nil {
		t.Fatalf("NewFeed: %v", err)
	}
	delivered := make(chan int64, 4)
	f.Subscribe(func(n shopapi.Notification) { delivered <- n.ID })
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.Close()

	conn.frames <- []byte(`{"notification_id":9,"kind":"order","title":"Order shipped","message":"on its way","created_at":"2026-03-01T12:05:00Z"}`)
	select {
	case id := <-delivered:
		if id != 9 {
			t.Fatalf("expected id 9, got %d", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("live frame not delivered")
	}

	if f.Ingest(context.Background(), note(9, 5)) {
		t.Fatalf("the polled copy of a live event must be suppressed")
	}
	if f.UnreadCount() != 1 {
		t.Fatalf("expected unread 1, got %d", f.UnreadCount())
	}
}
