package controllers

import (
	"net/http"

	"github.com/angelmondragon/ajshoes-client/api/responses"
	"github.com/angelmondragon/ajshoes-client/api/validators"
	"github.com/angelmondragon/ajshoes-client/internal/twin"
	"github.com/angelmondragon/ajshoes-client/pkg/logger"
)

type markReadPayload struct {
	IDs []int64 `json:"ids"`
}

// NotificationList honours ?unread=true.
func NotificationList(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r, logg)
		if !ok {
			return
		}
		list, err := b.Notifications(id.UserID, validators.QueryFlag(r, "unread"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func NotificationMarkRead(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r, logg)
		if !ok {
			return
		}
		var body markReadPayload
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		b.MarkNotificationsRead(id.UserID, body.IDs)
		responses.WriteSuccess(w, responses.OK{OK: true})
	}
}

func NotificationMarkAllRead(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r, logg)
		if !ok {
			return
		}
		b.MarkAllNotificationsRead(id.UserID)
		responses.WriteSuccess(w, responses.OK{OK: true})
	}
}
