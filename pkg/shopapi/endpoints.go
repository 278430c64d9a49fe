package shopapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/angelmondragon/ajshoes-client/pkg/auth/session"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
)

const DefaultCarrier = "Kerry"

// Login exchanges credentials for a token pair and installs it on the session.
func (c *Client) Login(ctx context.Context, username, password string) (TokenPair, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return TokenPair{}, pkgerrors.New(pkgerrors.CodeValidation, "username and password are required")
	}
	var pair TokenPair
	err := c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/api/auth/token/",
		body:      map[string]string{"username": username, "password": password},
		anonymous: true,
	}, &pair)
	if err != nil {
		return TokenPair{}, err
	}
	if err := c.session.Set(ctx, sessionTokens(pair)); err != nil {
		return pair, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist session")
	}
	return pair, nil
}

func sessionTokens(p TokenPair) session.Tokens {
	return session.Tokens{Access: p.Access, Refresh: p.Refresh}
}

// Logout clears the local session. The backend keeps no server-side session
// for access tokens.
func (c *Client) Logout(ctx context.Context) error {
	return c.session.Clear(ctx)
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var u User
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/accounts/me/"}, &u)
	return u, err
}

func (c *Client) Product(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := c.do(ctx, request{
		method:    http.MethodGet,
		path:      fmt.Sprintf("/api/catalog/products/%d/", id),
		anonymous: !c.session.Authenticated(),
	}, &p)
	return p, err
}

// Cart fetches the whole cart.
func (c *Client) Cart(ctx context.Context) (Cart, error) {
	var cart Cart
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/orders/cart/"}, &cart)
	return cart, err
}

type addCartItemRequest struct {
	Product  int64 `json:"product" validate:"required,gt=0"`
	Variant  int64 `json:"variant" validate:"required,gt=0"`
	Quantity int   `json:"quantity" validate:"min=1"`
}

// AddCartItem adds quantity of a variant. The server merges with an existing
// line for the same variant and returns the resulting line.
func (c *Client) AddCartItem(ctx context.Context, productID, variantID int64, quantity int) (CartItem, error) {
	var item CartItem
	err := c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/api/orders/cart/",
		body:      addCartItemRequest{Product: productID, Variant: variantID, Quantity: quantity},
		validated: true,
	}, &item)
	return item, err
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"min=1"`
}

func (c *Client) UpdateCartItem(ctx context.Context, lineID int64, quantity int) (CartItem, error) {
	var item CartItem
	err := c.do(ctx, request{
		method:    http.MethodPatch,
		path:      fmt.Sprintf("/api/orders/cart/%d/", lineID),
		body:      updateCartItemRequest{Quantity: quantity},
		validated: true,
	}, &item)
	return item, err
}

func (c *Client) DeleteCartItem(ctx context.Context, lineID int64) error {
	return c.do(ctx, request{
		method: http.MethodDelete,
		path:   fmt.Sprintf("/api/orders/cart/%d/", lineID),
	}, nil)
}

type applyCouponsRequest struct {
	CouponCodes []string `json:"coupon_codes"`
}

// ApplyCoupons replaces the cart's coupon set with codes. An empty slice
// clears every coupon.
func (c *Client) ApplyCoupons(ctx context.Context, codes []string) (CouponResult, error) {
	if codes == nil {
		codes = []string{}
	}
	var res CouponResult
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/orders/cart/apply-coupon/",
		body:   applyCouponsRequest{CouponCodes: codes},
	}, &res)
	return res, err
}

func (c *Client) Checkout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	if req.Carrier == "" {
		req.Carrier = DefaultCarrier
	}
	var res CheckoutResult
	err := c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/api/orders/cart/checkout/",
		body:      req,
		validated: true,
	}, &res)
	return res, err
}

// UploadPaymentSlip attaches a transfer slip to an order awaiting payment.
func (c *Client) UploadPaymentSlip(ctx context.Context, orderID int64, filename string, slip io.Reader) error {
	payload, contentType, err := multipartBody(nil, "payment_slip", filename, slip)
	if err != nil {
		return err
	}
	return c.do(ctx, request{
		method:      http.MethodPost,
		path:        fmt.Sprintf("/api/orders/orders/%d/upload-payment/", orderID),
		raw:         payload,
		contentType: contentType,
	}, nil)
}

// CancelOrder cancels an unpaid order; the backend restores its lines to the cart.
func (c *Client) CancelOrder(ctx context.Context, orderID int64) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   fmt.Sprintf("/api/orders/orders/%d/cancel/", orderID),
	}, nil)
}

// Orders lists the caller's order history, newest first.
func (c *Client) Orders(ctx context.Context) ([]Order, error) {
	var out []Order
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/orders/history/"}, &out)
	return out, err
}

func (c *Client) Addresses(ctx context.Context) ([]Address, error) {
	var out list[Address]
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/orders/addresses/"}, &out)
	return out, err
}

func (c *Client) MyCoupons(ctx context.Context) (MyCoupons, error) {
	var out MyCoupons
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/coupons/mine/"}, &out)
	return out, err
}

// CouponCenter lists the coupons currently offered for claiming.
func (c *Client) CouponCenter(ctx context.Context) ([]CenterCoupon, error) {
	var out []CenterCoupon
	err := c.do(ctx, request{
		method:    http.MethodGet,
		path:      "/api/coupons/center/",
		anonymous: !c.session.Authenticated(),
	}, &out)
	return out, err
}

// ClaimCoupon adds a coupon to the caller's wallet. A coupon can be claimed
// once per user.
func (c *Client) ClaimCoupon(ctx context.Context, couponID int64) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   fmt.Sprintf("/api/coupons/%d/claim/", couponID),
	}, nil)
}

func (c *Client) Favorites(ctx context.Context) ([]Favorite, error) {
	var out list[Favorite]
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/orders/favorites/"}, &out)
	return out, err
}

func (c *Client) AddFavorite(ctx context.Context, productID int64) (Favorite, error) {
	var fav Favorite
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/orders/favorites/",
		body:   map[string]int64{"product": productID},
	}, &fav)
	return fav, err
}

func (c *Client) DeleteFavoriteByProduct(ctx context.Context, productID int64) error {
	return c.do(ctx, request{
		method: http.MethodDelete,
		path:   "/api/orders/favorites/",
		query:  url.Values{"product": {strconv.FormatInt(productID, 10)}},
	}, nil)
}

func (c *Client) DeleteFavorite(ctx context.Context, favoriteID int64) error {
	return c.do(ctx, request{
		method: http.MethodDelete,
		path:   fmt.Sprintf("/api/orders/favorites/%d/", favoriteID),
	}, nil)
}

// Notifications lists notifications, optionally only unread ones.
func (c *Client) Notifications(ctx context.Context, unreadOnly bool) ([]Notification, error) {
	req := request{method: http.MethodGet, path: "/api/notifications/"}
	if unreadOnly {
		req.query = url.Values{"unread": {"true"}}
	}
	var out list[Notification]
	err := c.do(ctx, req, &out)
	return out, err
}

func (c *Client) MarkNotificationsRead(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/notifications/mark-read/",
		body:   map[string][]int64{"ids": ids},
	}, nil)
}

func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, request{method: http.MethodPost, path: "/api/notifications/mark-all-read/"}, nil)
}

// MyChatRoom returns the customer's room, creating it server-side if needed.
func (c *Client) MyChatRoom(ctx context.Context) (MyRoom, error) {
	var out MyRoom
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/chat/my-room/"}, &out)
	return out, err
}

func (c *Client) ChatMessages(ctx context.Context, roomID int64) ([]ChatMessage, error) {
	var out list[ChatMessage]
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   fmt.Sprintf("/api/chat/rooms/%d/messages/", roomID),
	}, &out)
	return out, err
}

// SendChatImage posts an image (with optional caption) through REST; the
// backend broadcasts the stored message to the room's socket.
func (c *Client) SendChatImage(ctx context.Context, roomID int64, caption, filename string, image io.Reader) (ChatMessage, error) {
	var fields map[string]string
	if caption = strings.TrimSpace(caption); caption != "" {
		fields = map[string]string{"message": caption}
	}
	payload, contentType, err := multipartBody(fields, "image", filename, image)
	if err != nil {
		return ChatMessage{}, err
	}
	var msg ChatMessage
	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        fmt.Sprintf("/api/chat/rooms/%d/send/", roomID),
		raw:         payload,
		contentType: contentType,
	}, &msg)
	return msg, err
}

// ReportFrontendLog posts one entry to the backend log sink. It works with or
// without a session.
func (c *Client) ReportFrontendLog(ctx context.Context, entry FrontendLog) error {
	return c.do(ctx, request{
		method:    http.MethodPost,
		path:      FrontendLogPath,
		body:      entry,
		validated: true,
		anonymous: !c.session.Authenticated(),
	}, nil)
}

// FrontendLogPath is excluded from reporting so a failing sink cannot loop.
const FrontendLogPath = "/api/logs/frontend/"

func multipartBody(fields map[string]string, fileField, filename string, file io.Reader) ([]byte, string, error) {
	if file == nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, fileField+" is required")
	}
	if filename == "" {
		filename = fileField
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write multipart field")
		}
	}
	part, err := w.CreateFormFile(fileField, filename)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create multipart file")
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read "+fileField)
	}
	if err := w.Close(); err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "close multipart body")
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
