package controllers

import (
	"io"
	"net/http"

	"github.com/angelmondragon/ajshoes-client/api/responses"
	"github.com/angelmondragon/ajshoes-client/api/validators"
	"github.com/angelmondragon/ajshoes-client/internal/twin"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/logger"
)

const maxUploadBytes = 10 << 20

func OrderHistory(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, b.Orders(id.UserID))
	}
}

func OrderDetail(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, ok := identity(w, r, logg)
		if !ok {
			return
		}
		orderID, err := validators.PathID(r, "orderID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		o, err := b.Order(id.UserID, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, o)
	}
}

// OrderUploadPayment accepts the transfer slip as multipart field payment_slip.
func OrderUploadPayment(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, ok := identity(w, r, logg)
		if !ok {
			return
		}
		orderID, err := validators.PathID(r, "orderID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Payment slip is required"))
			return
		}
		file, header, err := r.FormFile("payment_slip")
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Payment slip is required"))
			return
		}
		defer func() { _ = file.Close() }()
		size, _ := io.Copy(io.Discard, file)

		if err := b.UploadPaymentSlip(id.UserID, orderID, header.Filename, size); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"detail": "Payment slip uploaded successfully. Awaiting admin verification."})
	}
}

func OrderCancel(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, ok := identity(w, r, logg)
		if !ok {
			return
		}
		orderID, err := validators.PathID(r, "orderID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := b.CancelOrder(id.UserID, orderID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"detail": "Order cancelled successfully. Items restored to cart."})
	}
}
