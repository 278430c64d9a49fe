package controllers

import (
	"bytes"
	"io"
	"net/http"

	"github.com/angelmondragon/ajshoes-client/api/responses"
	"github.com/angelmondragon/ajshoes-client/api/validators"
	"github.com/angelmondragon/ajshoes-client/internal/twin"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/logger"
)

func ChatMyRoom(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r, logg)
		if !ok {
			return
		}
		room, err := b.MyRoom(id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, room)
	}
}

func ChatRoomMessages(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, ok := identity(w, r, logg)
		if !ok {
			return
		}
		roomID, err := validators.PathID(r, "roomID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		msgs, err := b.ChatMessages(id, roomID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, msgs)
	}
}

// ChatSend posts a message with an optional image through REST. The stored
// message is broadcast to the room's sockets.
func ChatSend(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, ok := identity(w, r, logg)
		if !ok {
			return
		}
		roomID, err := validators.PathID(r, "roomID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := r.ParseMultipartForm(twin.MaxChatImage + 1<<20); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "Message cannot be empty"))
			return
		}

		var imageURL string
		if file, header, ferr := r.FormFile("image"); ferr == nil {
			defer func() { _ = file.Close() }()
			var buf bytes.Buffer
			size, _ := io.Copy(&buf, io.LimitReader(file, twin.MaxChatImage+1))
			contentType := http.DetectContentType(buf.Bytes())
			imageURL, err = twin.StoreChatImage(header.Filename, contentType, size)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		msg, err := b.PostMessage(id, roomID, r.FormValue("message"), imageURL)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, msg)
	}
}
