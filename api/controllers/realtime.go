package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/ajshoes-client/api/middleware"
	"github.com/angelmondragon/ajshoes-client/api/validators"
	"github.com/angelmondragon/ajshoes-client/internal/twin"
	"github.com/angelmondragon/ajshoes-client/pkg/logger"
	"github.com/gorilla/websocket"
)

const wsWriteWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type wsErrorFrame struct {
	Type   string `json:"type"`
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

type wsChatInbound struct {
	Message string `json:"message"`
}

// socket serializes writes on one upgraded connection.
type socket struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *socket) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *socket) sendError(code string) {
	data, _ := json.Marshal(wsErrorFrame{Type: "error", Code: code})
	_ = s.write(data)
}

func (s *socket) closeWith(code int, reason string) {
	s.mu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
	s.mu.Unlock()
	_ = s.conn.Close()
}

func socketToken(r *http.Request) string {
	if tok := strings.TrimSpace(r.URL.Query().Get("token")); tok != "" {
		return tok
	}
	return middleware.BearerToken(r)
}

// upgrade refuses the handshake while a realtime rejection is queued, then
// upgrades and authenticates. Authentication failures close with 4001 after
// the upgrade, the way the channel layer does.
func upgrade(b *twin.Backend, logg *logger.Logger, w http.ResponseWriter, r *http.Request) (*socket, twin.Identity, bool) {
	if b.TakeRealtimeRejection() {
		http.Error(w, "realtime unavailable", http.StatusServiceUnavailable)
		return nil, twin.Identity{}, false
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logg.Warn(r.Context(), "websocket upgrade failed: "+err.Error())
		return nil, twin.Identity{}, false
	}
	s := &socket{conn: conn}
	id, err := b.Authenticate(socketToken(r))
	if err != nil {
		s.sendError("unauthenticated")
		s.closeWith(twin.CloseUnauthenticated, "unauthenticated")
		return nil, twin.Identity{}, false
	}
	return s, id, true
}

// NotificationSocket streams notification pushes for the authenticated user.
func NotificationSocket(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, id, ok := upgrade(b, logg, w, r)
		if !ok {
			return
		}
		ctx := logg.WithStream(r.Context(), "notifications")
		sub := b.Hub().Subscribe(twin.NotificationsTopic(id.UserID))
		defer b.Hub().Unsubscribe(sub)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := s.conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
		pump(ctx, logg, s, sub, done)
	}
}

// ChatSocket joins a chat room. Inbound {"message": "..."} frames are checked
// against the per-socket limits before they are stored and broadcast.
func ChatSocket(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, err := validators.PathID(r, "roomID")
		if err != nil {
			http.NotFound(w, r)
			return
		}
		s, id, ok := upgrade(b, logg, w, r)
		if !ok {
			return
		}
		switch b.CanJoinRoom(id, roomID) {
		case twin.CloseRoomNotFound:
			s.closeWith(twin.CloseRoomNotFound, "room_not_found")
			return
		case twin.CloseForbidden:
			s.closeWith(twin.CloseForbidden, "forbidden")
			return
		}
		ctx := logg.WithStream(r.Context(), twin.ChatTopic(roomID))
		sub := b.Hub().Subscribe(twin.ChatTopic(roomID))
		defer b.Hub().Unsubscribe(sub)

		done := make(chan struct{})
		go func() {
			defer close(done)
			var guard twin.ChatGuard
			for {
				_, data, err := s.conn.ReadMessage()
				if err != nil {
					return
				}
				var in wsChatInbound
				if err := json.Unmarshal(data, &in); err != nil {
					s.sendError(twin.ChatEmptyMessage)
					continue
				}
				now := time.Now()
				if code := guard.Check(in.Message, now); code != "" {
					s.sendError(code)
					continue
				}
				if _, err := b.PostMessage(id, roomID, in.Message, ""); err != nil {
					logg.Error(ctx, "chat message rejected", err)
					s.sendError(twin.ChatServerError)
					continue
				}
				guard.Accepted(in.Message, now)
			}
		}()
		pump(ctx, logg, s, sub, done)
	}
}

// pump forwards hub frames until the peer goes away, the hub kicks the
// subscriber, or the request ends. A kick drops the TCP connection without a
// close frame.
func pump(ctx context.Context, logg *logger.Logger, s *socket, sub *twin.Subscription, done <-chan struct{}) {
	for {
		select {
		case frame := <-sub.Frames():
			if err := s.write(frame); err != nil {
				logg.Debug(ctx, "websocket write failed: "+err.Error())
				_ = s.conn.Close()
				return
			}
		case <-sub.Kicked():
			_ = s.conn.Close()
			return
		case <-done:
			s.closeWith(websocket.CloseNormalClosure, "")
			return
		case <-ctx.Done():
			s.closeWith(websocket.CloseGoingAway, "")
			return
		}
	}
}
