package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/ajshoes-client/internal/cart"
	"github.com/angelmondragon/ajshoes-client/internal/chat"
	"github.com/angelmondragon/ajshoes-client/internal/favorites"
	"github.com/angelmondragon/ajshoes-client/internal/notifications"
	"github.com/angelmondragon/ajshoes-client/internal/realtime"
	"github.com/angelmondragon/ajshoes-client/internal/twin"
	"github.com/angelmondragon/ajshoes-client/pkg/auth"
	"github.com/angelmondragon/ajshoes-client/pkg/auth/session"
	"github.com/angelmondragon/ajshoes-client/pkg/config"
	"github.com/angelmondragon/ajshoes-client/pkg/enums"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/logger"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
)

type harness struct {
	srv     *httptest.Server
	backend *twin.Backend
	fx      twin.Fixtures
	client  *shopapi.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	b, err := twin.NewBackend(twin.Params{Tokens: auth.TokenConfig{Secret: "router-test-secret", Issuer: "router-test"}})
	require.NoError(t, err)
	fx, err := twin.Seed(b)
	require.NoError(t, err)

	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	srv := httptest.NewServer(NewRouter(cfg, logger.Nop(), b))
	t.Cleanup(srv.Close)

	client, err := shopapi.NewClient(srv.URL, session.New(session.NewMemoryStore()))
	require.NoError(t, err)
	_, err = client.Login(context.Background(), twin.DemoUsername, twin.DemoPassword)
	require.NoError(t, err)

	return &harness{srv: srv, backend: b, fx: fx, client: client}
}

func (h *harness) realtimeConfig() config.RealtimeConfig {
	return config.RealtimeConfig{
		WSBaseURL:           "ws" + strings.TrimPrefix(h.srv.URL, "http"),
		HandshakeTimeout:    time.Second,
		BaseDelay:           5 * time.Millisecond,
		MaxDelay:            20 * time.Millisecond,
		MaxAttempts:         3,
		PollInterval:        50 * time.Millisecond,
		DedupTTL:            time.Minute,
		DedupCapacity:       50,
		ChatHistoryCap:      50,
		NotificationListCap: 30,
	}
}

func (h *harness) product(name string) shopapi.Product {
	for _, p := range h.fx.Products {
		if p.Name == name {
			return p
		}
	}
	panic("no fixture product " + name)
}

func findVariant(t *testing.T, p shopapi.Product, color, size string) shopapi.Variant {
	t.Helper()
	for _, v := range p.Variants {
		if v.Color == color && v.SizeEU == size {
			return v
		}
	}
	t.Fatalf("variant %s/%s not found on %s", color, size, p.Name)
	return shopapi.Variant{}
}

func newCart(t *testing.T, h *harness) *cart.Store {
	t.Helper()
	store, err := cart.NewStore(cart.ServiceParams{API: h.client})
	require.NoError(t, err)
	require.NoError(t, store.Reload(context.Background()))
	return store
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	resp, err := http.Get(h.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "test", resp.Header.Get("X-AJShoes-Env"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	h := newHarness(t)
	resp, err := http.Get(h.srv.URL + "/api/orders/cart/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Authentication credentials were not provided.", body["detail"])
}

func TestLoginRejectsBadPassword(t *testing.T) {
	h := newHarness(t)
	client, err := shopapi.NewClient(h.srv.URL, session.New(session.NewMemoryStore()))
	require.NoError(t, err)
	_, err = client.Login(context.Background(), twin.DemoUsername, "wrong")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
	assert.False(t, client.Session().Authenticated())
}

func TestProductDetailIsPublic(t *testing.T) {
	h := newHarness(t)
	anon, err := shopapi.NewClient(h.srv.URL, session.New(session.NewMemoryStore()))
	require.NoError(t, err)

	want := h.product("Court Classic")
	got, err := anon.Product(context.Background(), want.ID)
	require.NoError(t, err)
	assert.Equal(t, "Court Classic", got.Name)
	assert.Len(t, got.Variants, 2)

	_, err = anon.Product(context.Background(), 9999)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCartAddHonoursStockLimit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	store := newCart(t, h)
	p := h.product("Air Runner")
	white41 := findVariant(t, p, "White", "41")

	_, err := store.Add(ctx, p, white41, 6)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only 5 left")
	assert.Empty(t, store.Items())

	line, err := store.Add(ctx, p, white41, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, line.Quantity)
	assert.NotZero(t, line.ID)
}

func TestCartReservedUnitsReduceAvailability(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	store := newCart(t, h)
	p := h.product("Air Runner")
	white41 := findVariant(t, p, "White", "41")

	_, err := store.Add(ctx, p, white41, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, store.Reserved(white41.ID))

	_, err = store.Add(ctx, p, white41, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only 2 left")
	assert.Len(t, store.Items(), 1)
}

func TestCartStaleStockReloads(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	store := newCart(t, h)
	p := h.product("Air Runner")
	black42 := findVariant(t, p, "Black", "42")

	require.NoError(t, h.backend.SetStock(black42.ID, 1))

	_, err := store.Add(ctx, p, black42, 2)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStockChanged))
	assert.Empty(t, store.Items())
}

func TestCouponsAreServerTrustedAndReplaced(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	store := newCart(t, h)
	runner := h.product("Air Runner")
	court := h.product("Court Classic")

	_, err := store.Add(ctx, runner, findVariant(t, runner, "White", "41"), 1)
	require.NoError(t, err)

	// 300 is below SAVE10's minimum spend.
	summary, err := store.MutateCoupons(ctx, []string{"SAVE10"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.True(t, summary.DiscountAmount.IsZero())

	_, err = store.Add(ctx, court, findVariant(t, court, "Red", "40"), 1)
	require.NoError(t, err)

	summary, err = store.MutateCoupons(ctx, []string{"SAVE10"})
	require.NoError(t, err)
	assert.True(t, summary.DiscountAmount.Equal(decimal.NewFromInt(110)), "discount %s", summary.DiscountAmount)
	assert.Equal(t, []string{"SAVE10"}, summary.AppliedCodes())

	summary, err = store.MutateCoupons(ctx, []string{"FREESHIP"})
	require.NoError(t, err)
	assert.True(t, summary.DiscountAmount.IsZero())
	assert.Equal(t, []string{"FREESHIP"}, summary.AppliedCodes())

	totals := store.Totals()
	assert.True(t, totals.FreeShipping)
	assert.True(t, totals.Total.Equal(decimal.NewFromInt(1100)), "total %s", totals.Total)
}

func TestRemoveRollsBackWhenServerRejects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	store := newCart(t, h)
	p := h.product("Air Runner")
	line, err := store.Add(ctx, p, findVariant(t, p, "White", "42"), 1)
	require.NoError(t, err)

	h.backend.FailNext(twin.OpCartDelete, http.StatusNotFound, "No matching object found.")

	err = store.Remove(ctx, line.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	require.Len(t, store.Items(), 1)
	assert.Equal(t, line.ID, store.Items()[0].ID)
	assert.True(t, store.IsSelected(line.ID))
}

func TestCheckoutThenCancelRestoresCart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	store := newCart(t, h)
	court := h.product("Court Classic")
	_, err := store.Add(ctx, court, findVariant(t, court, "Red", "40"), 1)
	require.NoError(t, err)

	result, err := store.Checkout(ctx, 0, "Kerry Express")
	require.NoError(t, err)
	require.NotNil(t, result.Order)
	assert.True(t, result.RequiresPayment)
	assert.Equal(t, enums.OrderStatusPendingPayment, result.Order.Status)
	assert.True(t, result.Order.Total.Equal(decimal.NewFromInt(850)), "total %s", result.Order.Total)
	assert.Empty(t, store.Items())

	require.NoError(t, store.CancelOrder(ctx, result.Order.ID))
	require.Len(t, store.Items(), 1)
	assert.Equal(t, 1, store.Items()[0].Quantity)

	err = store.CancelOrder(ctx, result.Order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestUploadPaymentSlip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	store := newCart(t, h)
	court := h.product("Court Classic")
	_, err := store.Add(ctx, court, findVariant(t, court, "Red", "44"), 1)
	require.NoError(t, err)
	result, err := store.Checkout(ctx, 0, "Kerry Express")
	require.NoError(t, err)

	require.NoError(t, h.client.UploadPaymentSlip(ctx, result.Order.ID, "slip.jpg", bytes.NewReader([]byte("fake-slip"))))

	err = h.client.CancelOrder(ctx, result.Order.ID)
	assert.Error(t, err, "paid orders cannot be cancelled")
}

func TestOrderHistoryListsUnpaidOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	store := newCart(t, h)
	court := h.product("Court Classic")
	_, err := store.Add(ctx, court, findVariant(t, court, "Red", "40"), 1)
	require.NoError(t, err)
	result, err := store.Checkout(ctx, 0, "")
	require.NoError(t, err)

	orders, err := h.client.Orders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, result.Order.ID, orders[0].ID)
	assert.Equal(t, enums.OrderStatusPendingPayment, orders[0].Status)
	require.Len(t, orders[0].Items, 1)
	assert.Equal(t, findVariant(t, court, "Red", "40").ID, orders[0].Items[0].VariantID)

	require.NoError(t, store.CancelOrder(ctx, result.Order.ID))
	orders, err = h.client.Orders(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCouponCenterClaim(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	anon, err := shopapi.NewClient(h.srv.URL, session.New(session.NewMemoryStore()))
	require.NoError(t, err)
	public, err := anon.CouponCenter(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, public)

	center, err := h.client.CouponCenter(ctx)
	require.NoError(t, err)
	var welcome shopapi.CenterCoupon
	for _, c := range center {
		if c.Code == "WELCOME15" {
			welcome = c
		}
	}
	require.NotZero(t, welcome.ID)
	assert.False(t, welcome.Claimed)

	require.NoError(t, h.client.ClaimCoupon(ctx, welcome.ID))
	err = h.client.ClaimCoupon(ctx, welcome.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "second claim: %v", err)
	assert.Contains(t, pkgerrors.UserMessage(err), "already claimed")

	err = anon.ClaimCoupon(ctx, welcome.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized), "anonymous claim: %v", err)

	mine, err := h.client.MyCoupons(ctx)
	require.NoError(t, err)
	var codes []string
	for _, c := range mine.Percent {
		codes = append(codes, c.Code)
	}
	assert.Contains(t, codes, "WELCOME15")
}

func TestFavoriteToggleRevertsOnFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	store, err := favorites.NewStore(favorites.ServiceParams{API: h.client})
	require.NoError(t, err)
	require.NoError(t, store.Reload(ctx))
	p := h.product("Air Runner")

	h.backend.FailNext(twin.OpFavoriteAdd, http.StatusInternalServerError, "boom")
	on, err := store.Toggle(ctx, p.ID)
	require.Error(t, err)
	assert.False(t, on)
	assert.False(t, store.IsFavorite(p.ID))

	on, err = store.Toggle(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, store.IsFavorite(p.ID))

	on, err = store.Toggle(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, on)

	remote, err := h.client.Favorites(ctx)
	require.NoError(t, err)
	assert.Empty(t, remote)
}

func newFeed(t *testing.T, h *harness) *notifications.Feed {
	t.Helper()
	feed, err := notifications.NewFeed(notifications.ServiceParams{
		API:    h.client,
		Dialer: realtime.NewWSDialer(time.Second),
		Token:  h.client.Session().Access,
		Config: h.realtimeConfig(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = feed.Close() })
	return feed
}

func TestNotificationFeedDedupsLivePushes(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := newFeed(t, h)
	require.NoError(t, feed.Start(ctx))
	waitFor(t, "notification socket", func() bool {
		return feed.Status().State == enums.ConnectionStateOpen &&
			h.backend.Hub().Subscribers(twin.NotificationsTopic(h.fx.Customer.ID)) == 1
	})
	base := feed.UnreadCount()

	n := h.backend.PushNotification(h.fx.Customer.ID, enums.NotificationKindSystem, "Hello", "Welcome back", nil)
	waitFor(t, "first push", func() bool { return feed.UnreadCount() == base+1 })

	frame, err := json.Marshal(map[string]any{
		"id": n.ID, "kind": n.Kind, "title": n.Title, "message": n.Message,
		"created_at": n.CreatedAt,
	})
	require.NoError(t, err)
	h.backend.Hub().Publish(twin.NotificationsTopic(h.fx.Customer.ID), frame)

	h.backend.PushNotification(h.fx.Customer.ID, enums.NotificationKindSystem, "Second", "Another", nil)
	waitFor(t, "second push", func() bool { return feed.UnreadCount() == base+2 })
	assert.Equal(t, "Second", feed.Recent()[0].Title)

	list, err := feed.Open(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, list)
	assert.Zero(t, feed.UnreadCount())

	unread, err := h.client.Notifications(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestNotificationFeedFallsBackToPolling(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.backend.RejectRealtime(100)
	feed := newFeed(t, h)

	var mu sync.Mutex
	var states []enums.ConnectionState
	feed.OnState(func(c realtime.StateChange) {
		mu.Lock()
		states = append(states, c.State)
		mu.Unlock()
	})
	require.NoError(t, feed.Start(ctx))
	waitFor(t, "fallback polling", func() bool {
		return feed.Status().State == enums.ConnectionStateFallbackPolling
	})

	base := feed.UnreadCount()
	h.backend.PushNotification(h.fx.Customer.ID, enums.NotificationKindOrder, "Shipped", "Your order shipped", nil)
	waitFor(t, "polled notification", func() bool { return feed.UnreadCount() == base+1 })

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, states, enums.ConnectionStateConnecting)
}

func TestChatRoomRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	room, err := chat.NewRoom(chat.ServiceParams{
		API:    h.client,
		Dialer: realtime.NewWSDialer(time.Second),
		Token:  h.client.Session().Access,
		Config: h.realtimeConfig(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = room.Close() })

	errs := make(chan string, 4)
	room.OnError(func(code string) { errs <- code })

	require.NoError(t, room.Connect(ctx))
	require.NotZero(t, room.RoomID())
	waitFor(t, "chat socket", func() bool {
		return room.Status().State == enums.ConnectionStateOpen &&
			h.backend.Hub().Subscribers(twin.ChatTopic(room.RoomID())) == 1
	})

	require.NoError(t, room.SendText(ctx, "  where is my order?  "))
	waitFor(t, "echoed message", func() bool { return len(room.Messages()) == 1 })
	assert.Equal(t, "where is my order?", room.Messages()[0].Message)

	require.NoError(t, room.SendText(ctx, "where is my order?"))
	select {
	case code := <-errs:
		assert.Equal(t, twin.ChatDuplicate, code)
	case <-time.After(3 * time.Second):
		t.Fatal("expected duplicate_message error frame")
	}
	assert.Len(t, room.Messages(), 1)

	history, err := h.client.ChatMessages(ctx, room.RoomID())
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestChatSocketRejectsForeignRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room, err := h.client.MyChatRoom(ctx)
	require.NoError(t, err)

	_, err = h.backend.AddUser("other", "other@ajshoes.test", "other-pass-123", enums.UserRoleCustomer)
	require.NoError(t, err)
	other, err := shopapi.NewClient(h.srv.URL, session.New(session.NewMemoryStore()))
	require.NoError(t, err)
	_, err = other.Login(ctx, "other", "other-pass-123")
	require.NoError(t, err)

	dialer := realtime.NewWSDialer(time.Second)
	wsBase := h.realtimeConfig()
	conn, err := dialer.Dial(ctx, wsBase.WSURL("/ws/chat/"+strconv.FormatInt(room.Room.ID, 10)+"/"), other.Session().Access())
	require.NoError(t, err)
	defer conn.Close(1000, "")

	_, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, realtime.IsAuthRejection(err), "got %v", err)
}

func TestFrontendLogSink(t *testing.T) {
	h := newHarness(t)
	err := h.client.ReportFrontendLog(context.Background(), shopapi.FrontendLog{
		Level:   "error",
		Message: "render failed",
		Path:    "/cart",
	})
	require.NoError(t, err)
	logs := h.backend.FrontendLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "render failed", logs[0].Message)
}
