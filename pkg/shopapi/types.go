package shopapi

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/angelmondragon/ajshoes-client/pkg/enums"
	"github.com/shopspring/decimal"
)

// TokenPair is returned by the login endpoint.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type User struct {
	ID       int64          `json:"id"`
	Username string         `json:"username"`
	Email    string         `json:"email"`
	Role     enums.UserRole `json:"role"`
}

// ProductImage accepts the three shapes the backend emits for an image URL.
type ProductImage struct {
	ID        int64  `json:"id,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	File      string `json:"file,omitempty"`
	URLSource string `json:"url_source,omitempty"`
	IsCover   bool   `json:"is_cover"`
	Color     string `json:"color,omitempty"`
}

func (i ProductImage) URL() string {
	switch {
	case i.ImageURL != "":
		return i.ImageURL
	case i.File != "":
		return i.File
	}
	return i.URLSource
}

// Variant is one color/size combination. Stock is server-authoritative.
type Variant struct {
	ID     int64  `json:"id"`
	Color  string `json:"color"`
	SizeEU string `json:"size_eu"`
	SizeUS string `json:"size_us,omitempty"`
	SizeCM string `json:"size_cm"`
	Stock  int    `json:"stock"`
}

// Size returns the size label in unit, falling back to EU when the backend
// did not send that system.
func (v Variant) Size(unit enums.SizeUnit) string {
	switch unit {
	case enums.SizeUnitUS:
		if v.SizeUS != "" {
			return v.SizeUS
		}
	case enums.SizeUnitCM:
		if v.SizeCM != "" {
			return v.SizeCM
		}
	}
	return v.SizeEU
}

type Product struct {
	ID          int64           `json:"id"`
	Brand       json.RawMessage `json:"brand,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	BasePrice   decimal.Decimal `json:"base_price"`
	SalePercent int             `json:"sale_percent"`
	SalePrice   decimal.Decimal `json:"sale_price"`
	Images      []ProductImage  `json:"images"`
	Variants    []Variant       `json:"variants"`
}

// CoverImage returns the cover image URL, or the first image, or "".
func CoverImage(images []ProductImage) string {
	for _, img := range images {
		if img.IsCover {
			return img.URL()
		}
	}
	if len(images) > 0 {
		return images[0].URL()
	}
	return ""
}

func (p Product) CoverImage() string {
	return CoverImage(p.Images)
}

// ProductBrief is the product summary nested in cart lines.
type ProductBrief struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name_en"`
	BasePrice   decimal.Decimal `json:"base_price"`
	SalePrice   decimal.Decimal `json:"sale_price"`
	SalePercent int             `json:"sale_percent"`
	Images      []ProductImage  `json:"images"`
}

// CartItem is one cart line. Quantity is always >= 1 on the server.
type CartItem struct {
	ID        int64        `json:"id"`
	ProductID int64        `json:"product"`
	VariantID int64        `json:"variant"`
	Quantity  int          `json:"quantity"`
	Product   ProductBrief `json:"product_detail"`
	Variant   Variant      `json:"variant_detail"`
}

// LineTotal is sale price times quantity.
func (c CartItem) LineTotal() decimal.Decimal {
	return c.Product.SalePrice.Mul(decimal.NewFromInt(int64(c.Quantity)))
}

type AppliedCoupon struct {
	Code         string             `json:"code"`
	DiscountType enums.DiscountType `json:"discount_type"`
	PercentOff   int                `json:"percent_off"`
}

// Cart is the whole cart payload. Discount fields are computed by the server
// and only ever mirrored by the client.
type Cart struct {
	ID              int64               `json:"id"`
	Items           []CartItem          `json:"items"`
	DiscountAmount  decimal.Decimal     `json:"discount_amount"`
	DiscountPercent int                 `json:"discount_percent"`
	FreeShipping    bool                `json:"free_shipping"`
	ShippingFee     decimal.NullDecimal `json:"shipping_fee"`
	AppliedCoupons  []AppliedCoupon     `json:"applied_coupons"`
}

// CouponResult is the apply-coupon response.
type CouponResult struct {
	AppliedCoupons  []AppliedCoupon     `json:"applied_coupons"`
	DiscountPercent int                 `json:"discount_percent"`
	DiscountAmount  decimal.Decimal     `json:"discount_amount"`
	FreeShipping    bool                `json:"free_shipping"`
	ShippingFee     decimal.NullDecimal `json:"shipping_fee"`
	Subtotal        decimal.Decimal     `json:"subtotal"`
	Total           decimal.Decimal     `json:"total"`
}

// Coupon is a coupon the user has claimed.
type Coupon struct {
	ID           int64              `json:"id"`
	Code         string             `json:"code"`
	DiscountType enums.DiscountType `json:"discount_type"`
	PercentOff   int                `json:"percent_off"`
	MinSpend     decimal.Decimal    `json:"min_spend"`
	MaxUses      int                `json:"max_uses,omitempty"`
	ValidTo      *time.Time         `json:"valid_to,omitempty"`
	Used         bool               `json:"used,omitempty"`
}

// CenterCoupon is a coupon offered in the coupon center. Remaining is nil when
// the coupon has no claim limit; Claimed is only set for a signed-in caller.
type CenterCoupon struct {
	Coupon
	Remaining *int `json:"remaining"`
	Claimed   bool `json:"claimed"`
}

// MyCoupons groups claimed coupons by discount type.
type MyCoupons struct {
	Percent      []Coupon `json:"percent"`
	FreeShipping []Coupon `json:"free_shipping"`
}

type Favorite struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product"`
	CreatedAt time.Time `json:"created_at"`
}

type Address struct {
	ID         int64  `json:"id"`
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	Province   string `json:"province"`
	PostalCode string `json:"postal_code"`
	IsDefault  bool   `json:"is_default"`
}

// DefaultAddress picks the default address, else the first one.
func DefaultAddress(addresses []Address) (Address, bool) {
	for _, a := range addresses {
		if a.IsDefault {
			return a, true
		}
	}
	if len(addresses) > 0 {
		return addresses[0], true
	}
	return Address{}, false
}

type Order struct {
	ID              int64             `json:"id"`
	Status          enums.OrderStatus `json:"status"`
	ShippingCarrier string            `json:"shipping_carrier,omitempty"`
	ShippingCost    decimal.Decimal   `json:"shipping_cost"`
	Total           decimal.Decimal   `json:"total"`
	PaymentDeadline *time.Time        `json:"payment_deadline,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	Items           []OrderItem       `json:"items,omitempty"`
}

type OrderItem struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product"`
	VariantID int64           `json:"variant"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

type PaymentConfig struct {
	BankName      string `json:"bank_name"`
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	QRCodeURL     string `json:"qr_code_image,omitempty"`
}

type CheckoutRequest struct {
	AddressID   int64   `json:"address_id" validate:"required,gt=0"`
	Carrier     string  `json:"carrier" validate:"required"`
	CartItemIDs []int64 `json:"cart_item_ids" validate:"required,min=1,unique,dive,gt=0"`
}

type CheckoutResult struct {
	Order           *Order         `json:"order"`
	PaymentConfig   *PaymentConfig `json:"payment_config"`
	RequiresPayment bool           `json:"requires_payment"`
}

// Notification is one in-app notification. Live frames sometimes carry the
// id as notification_id; UnmarshalJSON accepts both.
type Notification struct {
	ID        int64                  `json:"id"`
	Kind      enums.NotificationKind `json:"kind"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]any         `json:"data,omitempty"`
	IsRead    bool                   `json:"is_read"`
	CreatedAt time.Time              `json:"created_at"`
}

func (n *Notification) UnmarshalJSON(b []byte) error {
	type plain Notification
	aux := struct {
		*plain
		NotificationID int64 `json:"notification_id"`
	}{plain: (*plain)(n)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if n.ID == 0 {
		n.ID = aux.NotificationID
	}
	return nil
}

type ChatMessage struct {
	ID         int64          `json:"id"`
	Message    string         `json:"message"`
	Image      *string        `json:"image"`
	Timestamp  time.Time      `json:"timestamp"`
	SenderID   int64          `json:"sender"`
	SenderName string         `json:"sender_name"`
	SenderRole enums.UserRole `json:"sender_role"`
	IsAdmin    bool           `json:"is_admin"`
}

type ChatRoom struct {
	ID           int64  `json:"id"`
	CustomerID   int64  `json:"customer"`
	CustomerName string `json:"customer_name,omitempty"`
	UnreadCount  int    `json:"unread_count"`
}

// MyRoom is the customer's room with its most recent messages.
type MyRoom struct {
	Room     ChatRoom      `json:"room"`
	Messages []ChatMessage `json:"messages"`
}

// FrontendLog is one entry for the backend's client log sink.
type FrontendLog struct {
	Level   string         `json:"level" validate:"required,oneof=debug info warn error"`
	Message string         `json:"message" validate:"required"`
	Stack   string         `json:"stack,omitempty"`
	Path    string         `json:"path,omitempty"`
	TS      time.Time      `json:"ts"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func trimSlash(s string) string {
	return strings.TrimRight(s, "/")
}
