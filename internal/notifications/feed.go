// Package notifications keeps the unread counter and recent list for the
// user's notification stream, fed live over websocket or by polling.
package notifications

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/angelmondragon/ajshoes-client/internal/realtime"
	"github.com/angelmondragon/ajshoes-client/pkg/config"
	"github.com/angelmondragon/ajshoes-client/pkg/dedup"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/logger"
	"github.com/angelmondragon/ajshoes-client/pkg/metrics"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
	"github.com/angelmondragon/ajshoes-client/pkg/state"
)

const (
	Stream = "notifications"
	// WSPath is the notification socket path under the websocket base URL.
	WSPath = "/ws/notifications/"
	// CursorKey holds the created_at of the newest polled notification.
	CursorKey = "last_notification_check"
)

type API interface {
	Notifications(ctx context.Context, unreadOnly bool) ([]shopapi.Notification, error)
	MarkNotificationsRead(ctx context.Context, ids []int64) error
	MarkAllNotificationsRead(ctx context.Context) error
}

type ServiceParams struct {
	API     API
	Dedup   dedup.Window
	Cursor  state.Store
	Dialer  realtime.Dialer
	Token   func() string
	Config  config.RealtimeConfig
	Logger  *logger.Logger
	Metrics *metrics.RealtimeMetrics
}

// Feed is safe for concurrent use.
type Feed struct {
	api     API
	dedup   dedup.Window
	cursor  state.Store
	mgr     *realtime.Manager[shopapi.Notification]
	logg    *logger.Logger
	metrics *metrics.RealtimeMetrics
	listCap int

	mu     sync.Mutex
	ctx    context.Context
	unread int
	recent []shopapi.Notification // newest first
	subs   []func(shopapi.Notification)
}

func NewFeed(params ServiceParams) (*Feed, error) {
	if params.API == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notifications api is required")
	}
	if params.Dedup == nil {
		params.Dedup = dedup.NewMemory(params.Config.DedupTTL, params.Config.DedupCapacity)
	}
	if params.Cursor == nil {
		params.Cursor = state.NewMemory()
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	listCap := params.Config.NotificationListCap
	if listCap <= 0 {
		listCap = 30
	}
	f := &Feed{
		api:     params.API,
		dedup:   params.Dedup,
		cursor:  params.Cursor,
		logg:    logg,
		metrics: params.Metrics,
		listCap: listCap,
		ctx:     context.Background(),
	}
	wsURL := params.Config.WSURL(WSPath)
	mgr, err := realtime.NewManager(realtime.Params[shopapi.Notification]{
		Stream:  Stream,
		URL:     func() string { return wsURL },
		Token:   params.Token,
		Dialer:  params.Dialer,
		Decode:  decodeFrame,
		Poll:    f.poll,
		Config:  params.Config,
		Logger:  logg,
		Metrics: params.Metrics,
	})
	if err != nil {
		return nil, err
	}
	mgr.OnEvent(f.handle)
	f.mgr = mgr
	return f, nil
}

// decodeFrame accepts the bare notification payload the backend pushes.
// Frames with neither id nor content are ignored.
func decodeFrame(data []byte) ([]shopapi.Notification, error) {
	var n shopapi.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	if n.ID == 0 && n.Title == "" && n.Message == "" {
		return nil, nil
	}
	return []shopapi.Notification{n}, nil
}

// Start loads the initial unread list, seeds the dedup window with it and
// starts the real-time manager.
func (f *Feed) Start(ctx context.Context) error {
	ctx = f.logg.WithStream(ctx, Stream)
	unread, err := f.api.Notifications(ctx, true)
	if err != nil {
		return err
	}
	for _, n := range unread {
		if n.ID == 0 {
			continue
		}
		if _, err := f.dedup.Seen(ctx, Stream, strconv.FormatInt(n.ID, 10)); err != nil {
			f.logg.Warn(ctx, "seeding dedup window: "+err.Error())
		}
	}

	f.mu.Lock()
	f.ctx = ctx
	f.unread = len(unread)
	f.recent = capList(unread, f.listCap)
	f.mu.Unlock()

	return f.mgr.Start(ctx)
}

func (f *Feed) Subscribe(fn func(shopapi.Notification)) {
	f.mu.Lock()
	f.subs = append(f.subs, fn)
	f.mu.Unlock()
}

// OnState forwards connection state changes.
func (f *Feed) OnState(fn func(realtime.StateChange)) {
	f.mgr.OnState(fn)
}

func (f *Feed) UnreadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread
}

// Recent returns up to the list cap notifications, newest first.
func (f *Feed) Recent() []shopapi.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]shopapi.Notification(nil), f.recent...)
}

func (f *Feed) Status() realtime.Status { return f.mgr.Status() }
func (f *Feed) Resume()                 { f.mgr.Resume() }
func (f *Feed) Reconnect()              { f.mgr.Reconnect() }
func (f *Feed) Close() error            { return f.mgr.Close() }

// Open is the "bell opened" action: fetch everything, mark all read and
// reset the counter.
func (f *Feed) Open(ctx context.Context) ([]shopapi.Notification, error) {
	all, err := f.api.Notifications(ctx, false)
	if err != nil {
		return nil, err
	}
	if err := f.api.MarkAllNotificationsRead(ctx); err != nil {
		return nil, err
	}
	for i := range all {
		all[i].IsRead = true
	}
	f.mu.Lock()
	f.unread = 0
	f.recent = capList(all, f.listCap)
	out := append([]shopapi.Notification(nil), f.recent...)
	f.mu.Unlock()
	return out, nil
}

// MarkRead marks one notification read on the server and locally.
func (f *Feed) MarkRead(ctx context.Context, id int64) error {
	if id <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id is required")
	}
	if err := f.api.MarkNotificationsRead(ctx, []int64{id}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.recent {
		if f.recent[i].ID == id && !f.recent[i].IsRead {
			f.recent[i].IsRead = true
			if f.unread > 0 {
				f.unread--
			}
		}
	}
	return nil
}

// Ingest runs one notification through the dedup window and counters. The
// real-time manager calls it for every live or polled event.
func (f *Feed) Ingest(ctx context.Context, n shopapi.Notification) bool {
	if n.ID != 0 {
		dup, err := f.dedup.Seen(ctx, Stream, strconv.FormatInt(n.ID, 10))
		if err != nil {
			f.logg.Warn(ctx, "dedup lookup failed: "+err.Error())
		}
		if dup {
			f.metrics.IncDuplicate(Stream)
			return false
		}
	}

	f.mu.Lock()
	if !n.IsRead {
		f.unread++
	}
	f.recent = capList(append([]shopapi.Notification{n}, f.recent...), f.listCap)
	subs := append([]func(shopapi.Notification){}, f.subs...)
	f.mu.Unlock()

	for _, fn := range subs {
		fn(n)
	}
	return true
}

func (f *Feed) handle(n shopapi.Notification) {
	f.mu.Lock()
	ctx := f.ctx
	f.mu.Unlock()
	f.Ingest(ctx, n)
}

// poll fetches unread notifications created after the stored cursor and
// advances the cursor only when something new arrived.
func (f *Feed) poll(ctx context.Context) ([]shopapi.Notification, error) {
	since := f.loadCursor(ctx)
	rows, err := f.api.Notifications(ctx, true)
	if err != nil {
		return nil, err
	}
	var fresh []shopapi.Notification
	newest := since
	for _, n := range rows {
		if !n.CreatedAt.After(since) {
			continue
		}
		fresh = append(fresh, n)
		if n.CreatedAt.After(newest) {
			newest = n.CreatedAt
		}
	}
	if len(fresh) > 0 {
		if err := f.cursor.Set(ctx, CursorKey, newest.UTC().Format(time.RFC3339Nano), 0); err != nil {
			f.logg.Warn(ctx, "saving notification cursor: "+err.Error())
		}
	}
	// oldest first so the newest ends up at the head of the list
	for i, j := 0, len(fresh)-1; i < j; i, j = i+1, j-1 {
		fresh[i], fresh[j] = fresh[j], fresh[i]
	}
	return fresh, nil
}

func (f *Feed) loadCursor(ctx context.Context) time.Time {
	raw, err := f.cursor.Get(ctx, CursorKey)
	if err != nil {
		if !state.IsNotFound(err) {
			f.logg.Warn(ctx, "loading notification cursor: "+err.Error())
		}
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func capList(list []shopapi.Notification, limit int) []shopapi.Notification {
	if len(list) > limit {
		list = list[:limit]
	}
	return append([]shopapi.Notification(nil), list...)
}
