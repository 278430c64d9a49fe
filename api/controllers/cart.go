package controllers

import (
	"net/http"

	"github.com/angelmondragon/ajshoes-client/api/middleware"
	"github.com/angelmondragon/ajshoes-client/api/responses"
	"github.com/angelmondragon/ajshoes-client/api/validators"
	"github.com/angelmondragon/ajshoes-client/internal/twin"
	"github.com/angelmondragon/ajshoes-client/pkg/logger"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
)

type addCartItemPayload struct {
	Product  int64 `json:"product" validate:"required,gt=0"`
	Variant  int64 `json:"variant" validate:"required,gt=0"`
	Quantity int   `json:"quantity"`
}

type updateCartItemPayload struct {
	Quantity int `json:"quantity"`
}

type applyCouponsPayload struct {
	CouponCodes []string `json:"coupon_codes"`
}

func CartDetail(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, b.Cart(id.UserID))
	}
}

// CartAdd merges quantity into the line for the variant, creating it if needed.
func CartAdd(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, ok := identity(w, r, logg)
		if !ok {
			return
		}
		var body addCartItemPayload
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		item, err := b.AddCartItem(id.UserID, body.Product, body.Variant, body.Quantity)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, item)
	}
}

func CartUpdate(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, ok := identity(w, r, logg)
		if !ok {
			return
		}
		lineID, err := validators.PathID(r, "lineID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var body updateCartItemPayload
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		item, err := b.UpdateCartItem(id.UserID, lineID, body.Quantity)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

func CartDelete(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, ok := identity(w, r, logg)
		if !ok {
			return
		}
		lineID, err := validators.PathID(r, "lineID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := b.DeleteCartItem(id.UserID, lineID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

func CartApplyCoupons(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, ok := identity(w, r, logg)
		if !ok {
			return
		}
		var body applyCouponsPayload
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		res, err := b.ApplyCoupons(id.UserID, body.CouponCodes)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, res)
	}
}

func CartCheckout(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, ok := identity(w, r, logg)
		if !ok {
			return
		}
		var body shopapi.CheckoutRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		res, err := b.Checkout(id.UserID, body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, res)
	}
}

func AddressList(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, b.Addresses(id.UserID))
	}
}

func CouponsMine(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identity(w, r, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, b.MyCoupons(id.UserID))
	}
}

// CouponCenter is public; a signed-in caller also gets claimed flags.
func CouponCenter(b *twin.Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var userID int64
		if id, ok := middleware.IdentityFromContext(r.Context()); ok {
			userID = id.UserID
		}
		responses.WriteSuccess(w, b.CouponCenter(userID))
	}
}

func CouponClaim(b *twin.Backend, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, ok := identity(w, r, logg)
		if !ok {
			return
		}
		couponID, err := validators.PathID(r, "couponID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := b.ClaimCoupon(id.UserID, couponID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"detail": "Coupon claimed."})
	}
}
