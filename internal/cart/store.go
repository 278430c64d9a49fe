// Package cart keeps the customer's cart in sync with the server: optimistic
// line mutations, server-owned coupon state, UI selection flags and checkout.
package cart

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/angelmondragon/ajshoes-client/internal/optimistic"
	"github.com/angelmondragon/ajshoes-client/internal/stock"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/logger"
	"github.com/angelmondragon/ajshoes-client/pkg/metrics"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
)

// API is the slice of the REST client the cart needs.
type API interface {
	Cart(ctx context.Context) (shopapi.Cart, error)
	AddCartItem(ctx context.Context, productID, variantID int64, quantity int) (shopapi.CartItem, error)
	UpdateCartItem(ctx context.Context, lineID int64, quantity int) (shopapi.CartItem, error)
	DeleteCartItem(ctx context.Context, lineID int64) error
	ApplyCoupons(ctx context.Context, codes []string) (shopapi.CouponResult, error)
	MyCoupons(ctx context.Context) (shopapi.MyCoupons, error)
	Addresses(ctx context.Context) ([]shopapi.Address, error)
	Checkout(ctx context.Context, req shopapi.CheckoutRequest) (shopapi.CheckoutResult, error)
	CancelOrder(ctx context.Context, orderID int64) error
}

// ServiceParams groups dependencies for the cart store.
type ServiceParams struct {
	API     API
	Logger  *logger.Logger
	Metrics *metrics.MutationMetrics
}

const (
	guardCoupons  = "coupons"
	guardCheckout = "checkout"
)

// Store is safe for concurrent use. Its own lock is never held while calling
// into the item store.
type Store struct {
	api   API
	items *optimistic.Store[shopapi.CartItem]
	logg  *logger.Logger

	mu         sync.Mutex
	summary    Summary
	unselected map[int64]struct{}
}

func NewStore(params ServiceParams) (*Store, error) {
	if params.API == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart api is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	items, err := optimistic.NewStore(optimistic.Params[shopapi.CartItem]{
		Collection: "cart",
		IDOf:       func(c shopapi.CartItem) int64 { return c.ID },
		Logger:     logg,
		Metrics:    params.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Store{
		api:        params.API,
		items:      items,
		logg:       logg,
		unselected: make(map[int64]struct{}),
	}, nil
}

// Reload replaces lines and discount fields with the server cart. Selection
// flags of lines that still exist are kept; new lines start selected.
func (s *Store) Reload(ctx context.Context) error {
	var fetched shopapi.Cart
	fetch := func(ctx context.Context) ([]shopapi.CartItem, error) {
		cart, err := s.api.Cart(ctx)
		if err != nil {
			return nil, err
		}
		fetched = cart
		return cart.Items, nil
	}
	return s.items.Reload(ctx, fetch, func(entries []optimistic.Entry[shopapi.CartItem]) {
		live := make(map[int64]struct{}, len(entries))
		for _, e := range entries {
			if id, ok := e.ID.Server(); ok {
				live[id] = struct{}{}
			}
		}
		s.mu.Lock()
		for id := range s.unselected {
			if _, ok := live[id]; !ok {
				delete(s.unselected, id)
			}
		}
		s.summary = summaryFromCart(fetched)
		s.mu.Unlock()
	})
}

// Items returns the current lines, pending adds first.
func (s *Store) Items() []shopapi.CartItem {
	return s.items.Values()
}

// Entries exposes lines with their optimistic ids.
func (s *Store) Entries() []optimistic.Entry[shopapi.CartItem] {
	return s.items.Snapshot()
}

func (s *Store) OnChange(fn func([]optimistic.Entry[shopapi.CartItem])) {
	s.items.OnChange(fn)
}

// Reserved reports how many units of variantID the cart already holds.
func (s *Store) Reserved(variantID int64) int {
	return stock.InCart(s.items.Values(), variantID)
}

// Add checks the requested quantity against stock minus what the cart
// already holds, then adds the line optimistically. A server-side stock
// rejection reloads the cart and returns CodeStockChanged.
func (s *Store) Add(ctx context.Context, product shopapi.Product, variant shopapi.Variant, quantity int) (shopapi.CartItem, error) {
	available := stock.Available(variant.Stock, s.Reserved(variant.ID))
	if _, err := stock.Clamp(quantity, available); err != nil {
		return shopapi.CartItem{}, err
	}

	pending := shopapi.CartItem{
		ProductID: product.ID,
		VariantID: variant.ID,
		Quantity:  quantity,
		Product: shopapi.ProductBrief{
			ID:          product.ID,
			Name:        product.Name,
			BasePrice:   product.BasePrice,
			SalePrice:   product.SalePrice,
			SalePercent: product.SalePercent,
			Images:      product.Images,
		},
		Variant: variant,
	}
	guard := "variant:" + strconv.FormatInt(variant.ID, 10)
	line, err := s.items.ApplyLocalAdd(ctx, guard, pending, func(ctx context.Context) (shopapi.CartItem, error) {
		return s.api.AddCartItem(ctx, product.ID, variant.ID, quantity)
	})
	if err != nil {
		return shopapi.CartItem{}, s.stockChanged(ctx, err)
	}
	return line, nil
}

// UpdateQuantity sets a line's quantity. Stock held by other lines of the
// same variant counts against the limit. A failed update reloads the cart.
func (s *Store) UpdateQuantity(ctx context.Context, lineID int64, quantity int) (shopapi.CartItem, error) {
	id := optimistic.Confirmed(lineID)
	current, ok := s.items.Get(id)
	if !ok {
		return shopapi.CartItem{}, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	others := s.Reserved(current.VariantID) - current.Quantity
	if _, err := stock.Clamp(quantity, stock.Available(current.Variant.Stock, others)); err != nil {
		return shopapi.CartItem{}, err
	}

	line, err := s.items.ApplyLocalUpdate(ctx, id,
		func(c shopapi.CartItem) shopapi.CartItem {
			c.Quantity = quantity
			return c
		},
		func(ctx context.Context) (shopapi.CartItem, error) {
			return s.api.UpdateCartItem(ctx, lineID, quantity)
		},
		s.Reload,
	)
	if err != nil {
		return shopapi.CartItem{}, stockChangedError(err)
	}
	return line, nil
}

// Remove deletes a line. If the server rejects the delete the line reappears
// with its selection flag intact and the error is returned.
func (s *Store) Remove(ctx context.Context, lineID int64) error {
	err := s.items.ApplyLocalRemove(ctx, optimistic.Confirmed(lineID), func(ctx context.Context) error {
		return s.api.DeleteCartItem(ctx, lineID)
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.unselected, lineID)
	s.mu.Unlock()
	return nil
}

// CancelOrder cancels an unpaid order. The server puts its items back in the
// cart, so the cart is reloaded afterwards.
func (s *Store) CancelOrder(ctx context.Context, orderID int64) error {
	if err := s.api.CancelOrder(ctx, orderID); err != nil {
		return err
	}
	return s.Reload(ctx)
}

func (s *Store) stockChanged(ctx context.Context, err error) error {
	if !pkgerrors.IsCode(err, pkgerrors.CodeStockChanged) {
		return err
	}
	if reloadErr := s.Reload(ctx); reloadErr != nil {
		s.logg.Error(ctx, "reload after stock change", reloadErr)
	}
	return stockChangedError(err)
}

func stockChangedError(err error) error {
	if !pkgerrors.IsCode(err, pkgerrors.CodeStockChanged) {
		return err
	}
	msg := pkgerrors.UserMessage(err)
	if !strings.HasPrefix(strings.ToLower(msg), "stock changed") {
		msg = "stock changed: " + msg
	}
	return pkgerrors.Wrap(pkgerrors.CodeStockChanged, err, msg)
}
