// Package twin is an in-memory stand-in for the storefront backend. It keeps
// the backend's observable rules (cart merge, stock checks, coupon math,
// order lifecycle, notification and chat fan-out) so the client can be
// exercised end to end without the real service.
package twin

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/ajshoes-client/pkg/auth"
	"github.com/angelmondragon/ajshoes-client/pkg/enums"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/logger"
	"github.com/angelmondragon/ajshoes-client/pkg/security"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
	"github.com/shopspring/decimal"
)

// ShippingFee is the flat fee charged unless a free-shipping coupon applies.
var ShippingFee = decimal.NewFromInt(50)

const paymentWindow = 24 * time.Hour

type Params struct {
	Tokens auth.TokenConfig
	Logger *logger.Logger
	Now    func() time.Time
}

type user struct {
	shopapi.User
	passwordHash string
}

type cartLine struct {
	id        int64
	productID int64
	variantID int64
	quantity  int
}

type cart struct {
	id      int64
	lines   []*cartLine
	coupons []string
}

type coupon struct {
	shopapi.Coupon
	claimedBy map[int64]bool
	usedBy    map[int64]bool
	uses      int
}

type orderLine struct {
	productID int64
	variantID int64
	price     decimal.Decimal
	quantity  int
}

type order struct {
	shopapi.Order
	userID int64
	lines  []orderLine
	slip   string
}

type room struct {
	shopapi.ChatRoom
	messages []shopapi.ChatMessage
}

type fault struct {
	status int
	detail string
}

// Backend is safe for concurrent use. Every exported operation takes the
// acting user id already authenticated by the HTTP layer.
type Backend struct {
	tokens auth.TokenConfig
	logg   *logger.Logger
	now    func() time.Time
	hub    *Hub

	mu            sync.Mutex
	seq           int64
	users         map[int64]*user
	usernames     map[string]int64
	products      map[int64]*shopapi.Product
	carts         map[int64]*cart
	coupons       map[string]*coupon
	addresses     map[int64][]shopapi.Address
	orders        map[int64]*order
	favorites     map[int64][]shopapi.Favorite
	notifications map[int64][]*shopapi.Notification
	rooms         map[int64]*room
	logs          []shopapi.FrontendLog
	payment       *shopapi.PaymentConfig
	faults        map[string][]fault
	rejectWS      int
}

func NewBackend(params Params) (*Backend, error) {
	if params.Tokens.Secret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "jwt secret is required")
	}
	if params.Tokens.AccessTTL <= 0 {
		params.Tokens.AccessTTL = 15 * time.Minute
	}
	if params.Tokens.RefreshTTL <= 0 {
		params.Tokens.RefreshTTL = 7 * 24 * time.Hour
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Backend{
		tokens:        params.Tokens,
		logg:          logg,
		now:           now,
		hub:           NewHub(),
		users:         make(map[int64]*user),
		usernames:     make(map[string]int64),
		products:      make(map[int64]*shopapi.Product),
		carts:         make(map[int64]*cart),
		coupons:       make(map[string]*coupon),
		addresses:     make(map[int64][]shopapi.Address),
		orders:        make(map[int64]*order),
		favorites:     make(map[int64][]shopapi.Favorite),
		notifications: make(map[int64][]*shopapi.Notification),
		rooms:         make(map[int64]*room),
		faults:        make(map[string][]fault),
	}, nil
}

func (b *Backend) Hub() *Hub {
	return b.hub
}

func (b *Backend) nextID() int64 {
	b.seq++
	return b.seq
}

// AddUser registers an account with an argon2id password hash.
func (b *Backend) AddUser(username, email, password string, role enums.UserRole) (shopapi.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return shopapi.User{}, pkgerrors.New(pkgerrors.CodeValidation, "username and password are required")
	}
	if role == "" {
		role = enums.UserRoleCustomer
	}
	if !role.IsValid() {
		return shopapi.User{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid role %q", role))
	}
	hash, err := security.HashPassword(password, security.DefaultParams)
	if err != nil {
		return shopapi.User{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, taken := b.usernames[strings.ToLower(username)]; taken {
		return shopapi.User{}, pkgerrors.New(pkgerrors.CodeConflict, "A user with that username already exists.")
	}
	u := &user{
		User:         shopapi.User{ID: b.nextID(), Username: username, Email: email, Role: role},
		passwordHash: hash,
	}
	b.users[u.ID] = u
	b.usernames[strings.ToLower(username)] = u.ID
	return u.User, nil
}

// AddProduct stores p, assigning ids to the product and any variant without one.
func (b *Backend) AddProduct(p shopapi.Product) shopapi.Product {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.ID == 0 {
		p.ID = b.nextID()
	}
	p.Variants = append([]shopapi.Variant(nil), p.Variants...)
	for i := range p.Variants {
		if p.Variants[i].ID == 0 {
			p.Variants[i].ID = b.nextID()
		}
	}
	if p.SalePrice.IsZero() {
		p.SalePrice = salePrice(p.BasePrice, p.SalePercent)
	}
	stored := p
	b.products[p.ID] = &stored
	return p
}

func salePrice(base decimal.Decimal, percent int) decimal.Decimal {
	if percent <= 0 {
		return base
	}
	return base.Mul(decimal.NewFromInt(int64(100 - percent))).Div(decimal.NewFromInt(100)).Round(2)
}

// AddCoupon registers a coupon and marks it claimed by the given users.
func (b *Backend) AddCoupon(c shopapi.Coupon, claimedBy ...int64) shopapi.Coupon {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.ID == 0 {
		c.ID = b.nextID()
	}
	stored := &coupon{Coupon: c, claimedBy: make(map[int64]bool), usedBy: make(map[int64]bool)}
	for _, id := range claimedBy {
		stored.claimedBy[id] = true
	}
	b.coupons[strings.ToUpper(c.Code)] = stored
	return c
}

func (b *Backend) AddAddress(userID int64, a shopapi.Address) shopapi.Address {
	b.mu.Lock()
	defer b.mu.Unlock()
	a.ID = b.nextID()
	b.addresses[userID] = append(b.addresses[userID], a)
	return a
}

func (b *Backend) SetPaymentConfig(cfg shopapi.PaymentConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payment = &cfg
}

// SetStock overrides a variant's stock, simulating a purchase elsewhere.
func (b *Backend) SetStock(variantID int64, stock int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, v := b.findVariant(variantID)
	if v == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
	}
	v.Stock = stock
	return nil
}

// FailNext makes the next call of op fail with status and detail. Calls
// queue up: FailNext twice fails the next two calls.
func (b *Backend) FailNext(op string, status int, detail string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults[op] = append(b.faults[op], fault{status: status, detail: detail})
}

// takeFault must be called with mu held.
func (b *Backend) takeFault(op string) error {
	queue := b.faults[op]
	if len(queue) == 0 {
		return nil
	}
	f := queue[0]
	b.faults[op] = queue[1:]
	code := pkgerrors.FromHTTPStatus(f.status)
	return pkgerrors.New(code, f.detail).WithDetails(pkgerrors.HTTPDetails{Status: f.status, Detail: f.detail})
}

// RejectRealtime makes the next n websocket handshakes fail with 503.
func (b *Backend) RejectRealtime(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejectWS = n
}

// TakeRealtimeRejection reports whether this handshake should be refused.
func (b *Backend) TakeRealtimeRejection() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rejectWS <= 0 {
		return false
	}
	b.rejectWS--
	return true
}

// DropRealtime closes every live socket without notice.
func (b *Backend) DropRealtime() {
	b.hub.KickAll()
}

func (b *Backend) RecordFrontendLog(entry shopapi.FrontendLog) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if entry.TS.IsZero() {
		entry.TS = b.now().UTC()
	}
	b.logs = append(b.logs, entry)
}

func (b *Backend) FrontendLogs() []shopapi.FrontendLog {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]shopapi.FrontendLog(nil), b.logs...)
}

func (b *Backend) Product(id int64) (shopapi.Product, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.products[id]
	if !ok {
		return shopapi.Product{}, notFound()
	}
	out := *p
	out.Variants = append([]shopapi.Variant(nil), p.Variants...)
	return out, nil
}

func (b *Backend) Products() []shopapi.Product {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]shopapi.Product, 0, len(b.products))
	for _, p := range b.products {
		cp := *p
		cp.Variants = append([]shopapi.Variant(nil), p.Variants...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// findVariant must be called with mu held.
func (b *Backend) findVariant(variantID int64) (*shopapi.Product, *shopapi.Variant) {
	for _, p := range b.products {
		for i := range p.Variants {
			if p.Variants[i].ID == variantID {
				return p, &p.Variants[i]
			}
		}
	}
	return nil, nil
}

func notFound() error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "No matching object found.").
		WithDetails(pkgerrors.HTTPDetails{Status: http.StatusNotFound})
}

func badRequest(detail string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, detail)
}
