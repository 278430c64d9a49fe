package twin

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/angelmondragon/ajshoes-client/pkg/enums"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
)

const OpNotificationsList = "notifications.list"

// Notifications lists newest first.
func (b *Backend) Notifications(userID int64, unreadOnly bool) ([]shopapi.Notification, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFault(OpNotificationsList); err != nil {
		return nil, err
	}
	out := make([]shopapi.Notification, 0, len(b.notifications[userID]))
	for _, n := range b.notifications[userID] {
		if unreadOnly && n.IsRead {
			continue
		}
		out = append(out, *n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (b *Backend) MarkNotificationsRead(userID int64, ids []int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for _, n := range b.notifications[userID] {
		if want[n.ID] {
			n.IsRead = true
		}
	}
}

func (b *Backend) MarkAllNotificationsRead(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, n := range b.notifications[userID] {
		n.IsRead = true
	}
}

// PushNotification stores a notification and sends it to the user's live
// sockets.
func (b *Backend) PushNotification(userID int64, kind enums.NotificationKind, title, message string, data map[string]any) shopapi.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pushNotificationLocked(userID, kind, title, message, data)
}

type notificationFrame struct {
	ID        int64                  `json:"id"`
	Kind      enums.NotificationKind `json:"kind"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]any         `json:"data"`
	CreatedAt string                 `json:"created_at"`
}

// pushNotificationLocked must be called with mu held.
func (b *Backend) pushNotificationLocked(userID int64, kind enums.NotificationKind, title, message string, data map[string]any) shopapi.Notification {
	if data == nil {
		data = map[string]any{}
	}
	n := &shopapi.Notification{
		ID:        b.nextID(),
		Kind:      kind,
		Title:     title,
		Message:   message,
		Data:      data,
		CreatedAt: b.now().UTC(),
	}
	b.notifications[userID] = append(b.notifications[userID], n)

	frame, err := json.Marshal(notificationFrame{
		ID:        n.ID,
		Kind:      n.Kind,
		Title:     n.Title,
		Message:   n.Message,
		Data:      n.Data,
		CreatedAt: n.CreatedAt.Format(time.RFC3339Nano),
	})
	if err == nil {
		b.hub.Publish(NotificationsTopic(userID), frame)
	}
	return *n
}
