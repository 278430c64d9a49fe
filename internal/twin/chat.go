package twin

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/angelmondragon/ajshoes-client/pkg/enums"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
	"github.com/google/uuid"
)

const (
	OpChatMessages = "chat.messages"

	MaxChatMessage = 2000
	MaxChatImage   = 5 << 20
	roomHistory    = 50
)

// Error codes sent on the chat socket as {"type":"error","code":...}.
const (
	ChatRateLimited    = "rate_limited"
	ChatEmptyMessage   = "empty_message"
	ChatMessageTooLong = "message_too_long"
	ChatDuplicate      = "duplicate_message"
	ChatServerError    = "server_error"
)

// Close codes for rejected chat sockets.
const (
	CloseUnauthenticated = 4001
	CloseForbidden       = 4003
	CloseRoomNotFound    = 4004
)

// MyRoom returns the customer's room, creating it on first use, with its
// most recent messages oldest first.
func (b *Backend) MyRoom(id Identity) (shopapi.MyRoom, error) {
	if id.IsAdmin() {
		return shopapi.MyRoom{}, badRequest("Admins cannot have personal chat rooms")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var r *room
	for _, candidate := range b.rooms {
		if candidate.CustomerID == id.UserID {
			r = candidate
			break
		}
	}
	if r == nil {
		r = &room{ChatRoom: shopapi.ChatRoom{ID: b.nextID(), CustomerID: id.UserID}}
		if u, ok := b.users[id.UserID]; ok {
			r.CustomerName = u.Username
		}
		b.rooms[r.ID] = r
	}
	msgs := r.messages
	if len(msgs) > roomHistory {
		msgs = msgs[len(msgs)-roomHistory:]
	}
	return shopapi.MyRoom{Room: r.ChatRoom, Messages: append([]shopapi.ChatMessage{}, msgs...)}, nil
}

// roomFor must be called with mu held.
func (b *Backend) roomFor(id Identity, roomID int64) (*room, error) {
	r, ok := b.rooms[roomID]
	if !ok {
		return nil, notFound()
	}
	if !id.IsAdmin() && r.CustomerID != id.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "Permission denied")
	}
	return r, nil
}

// CanJoinRoom returns the websocket close code for a join attempt, or 0.
func (b *Backend) CanJoinRoom(id Identity, roomID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.roomFor(id, roomID)
	switch {
	case err == nil:
		return 0
	case pkgerrors.IsCode(err, pkgerrors.CodeForbidden):
		return CloseForbidden
	default:
		return CloseRoomNotFound
	}
}

func (b *Backend) ChatMessages(id Identity, roomID int64) ([]shopapi.ChatMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFault(OpChatMessages); err != nil {
		return nil, err
	}
	r, err := b.roomFor(id, roomID)
	if err != nil {
		return nil, err
	}
	return append([]shopapi.ChatMessage{}, r.messages...), nil
}

// PostMessage stores a message and broadcasts it to the room. Text is
// trimmed; image is the stored image URL or "".
func (b *Backend) PostMessage(id Identity, roomID int64, text, image string) (shopapi.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) > MaxChatMessage {
		return shopapi.ChatMessage{}, badRequest("Message too long")
	}
	if text == "" && image == "" {
		return shopapi.ChatMessage{}, badRequest("Message cannot be empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	r, err := b.roomFor(id, roomID)
	if err != nil {
		return shopapi.ChatMessage{}, err
	}
	msg := shopapi.ChatMessage{
		ID:        b.nextID(),
		Message:   text,
		Timestamp: b.now().UTC(),
		SenderID:  id.UserID,
		IsAdmin:   id.IsAdmin(),
	}
	if image != "" {
		msg.Image = &image
	}
	if u, ok := b.users[id.UserID]; ok {
		msg.SenderName = u.Username
		msg.SenderRole = u.Role
	}
	r.messages = append(r.messages, msg)

	if frame, err := json.Marshal(map[string]shopapi.ChatMessage{"message": msg}); err == nil {
		b.hub.Publish(ChatTopic(roomID), frame)
	}
	if !msg.IsAdmin {
		return msg, nil
	}
	b.pushNotificationLocked(r.CustomerID, enums.NotificationKindChat, "New message",
		truncate(text, 80), map[string]any{"room_id": roomID})
	return msg, nil
}

// StoreChatImage validates an upload and returns the URL it is served at.
func StoreChatImage(filename, contentType string, size int64) (string, error) {
	if size > MaxChatImage {
		return "", badRequest("Image too large (max 5MB)")
	}
	switch strings.ToLower(contentType) {
	case "image/jpeg", "image/png", "image/webp":
	default:
		return "", badRequest("Unsupported image type")
	}
	if filename == "" {
		filename = "image"
	}
	return fmt.Sprintf("/media/chat/%s-%s", uuid.NewString(), filename), nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// ChatGuard applies the per-socket limits: five messages per second and no
// identical text within two seconds.
type ChatGuard struct {
	recent   []time.Time
	lastText string
	lastAt   time.Time
}

const (
	chatRateCount  = 5
	chatRateWindow = time.Second
	chatDupWindow  = 2 * time.Second
)

// Check returns an error code for text sent at now, or "" when accepted.
func (g *ChatGuard) Check(text string, now time.Time) string {
	g.recent = append(g.recent, now)
	if len(g.recent) > chatRateCount {
		g.recent = g.recent[len(g.recent)-chatRateCount:]
	}
	if len(g.recent) == chatRateCount && now.Sub(g.recent[0]) < chatRateWindow {
		return ChatRateLimited
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxChatMessage {
		return ChatMessageTooLong
	}
	if text == g.lastText && now.Sub(g.lastAt) < chatDupWindow {
		return ChatDuplicate
	}
	return ""
}

// Accepted records a message that was stored.
func (g *ChatGuard) Accepted(text string, now time.Time) {
	g.lastText = strings.TrimSpace(text)
	g.lastAt = now
}
