package twin

import (
	"fmt"
	"strings"

	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
	"github.com/shopspring/decimal"
)

const (
	OpCartAdd      = "cart.add"
	OpCartUpdate   = "cart.update"
	OpCartDelete   = "cart.delete"
	OpApplyCoupons = "cart.coupons"
	OpCheckout     = "cart.checkout"
	OpClaimCoupon  = "coupons.claim"
)

// cartFor must be called with mu held.
func (b *Backend) cartFor(userID int64) *cart {
	c, ok := b.carts[userID]
	if !ok {
		c = &cart{id: b.nextID()}
		b.carts[userID] = c
	}
	return c
}

// Cart returns the user's cart with coupons evaluated against every line.
func (b *Backend) Cart(userID int64) shopapi.Cart {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.cartFor(userID)
	out := shopapi.Cart{ID: c.id, Items: make([]shopapi.CartItem, 0, len(c.lines))}
	subtotal := decimal.Zero
	for _, line := range c.lines {
		item := b.renderLine(line)
		subtotal = subtotal.Add(item.LineTotal())
		out.Items = append(out.Items, item)
	}
	eval := evaluateCoupons(subtotal, b.usableCoupons(userID, c.coupons))
	out.AppliedCoupons = eval.applied
	out.DiscountAmount = eval.discount
	out.DiscountPercent = eval.percent
	out.FreeShipping = eval.freeShipping
	out.ShippingFee = decimal.NewNullDecimal(eval.shipping())
	return out
}

// renderLine must be called with mu held.
func (b *Backend) renderLine(line *cartLine) shopapi.CartItem {
	item := shopapi.CartItem{
		ID:        line.id,
		ProductID: line.productID,
		VariantID: line.variantID,
		Quantity:  line.quantity,
	}
	if p, ok := b.products[line.productID]; ok {
		item.Product = shopapi.ProductBrief{
			ID:          p.ID,
			Name:        p.Name,
			BasePrice:   p.BasePrice,
			SalePrice:   p.SalePrice,
			SalePercent: p.SalePercent,
			Images:      p.Images,
		}
		for _, v := range p.Variants {
			if v.ID == line.variantID {
				item.Variant = v
			}
		}
	}
	return item
}

func insufficientStock(p *shopapi.Product, variantID int64) error {
	return pkgerrors.New(pkgerrors.CodeStockChanged,
		fmt.Sprintf("Insufficient stock for %s (variant %d).", p.Name, variantID))
}

// AddCartItem merges into an existing line for the same variant.
func (b *Backend) AddCartItem(userID, productID, variantID int64, quantity int) (shopapi.CartItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFault(OpCartAdd); err != nil {
		return shopapi.CartItem{}, err
	}
	if quantity < 1 {
		return shopapi.CartItem{}, badRequest("quantity: Ensure this value is greater than or equal to 1.")
	}
	p, v := b.findVariant(variantID)
	if v == nil || p.ID != productID {
		return shopapi.CartItem{}, badRequest("variant: Variant does not belong to product.")
	}

	c := b.cartFor(userID)
	var line *cartLine
	for _, existing := range c.lines {
		if existing.variantID == variantID {
			line = existing
			break
		}
	}
	total := quantity
	if line != nil {
		total += line.quantity
	}
	if total > v.Stock {
		return shopapi.CartItem{}, insufficientStock(p, variantID)
	}
	if line == nil {
		line = &cartLine{id: b.nextID(), productID: productID, variantID: variantID}
		c.lines = append(c.lines, line)
	}
	line.quantity = total
	return b.renderLine(line), nil
}

// UpdateCartItem sets a line's quantity; values below 1 are raised to 1.
func (b *Backend) UpdateCartItem(userID, lineID int64, quantity int) (shopapi.CartItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFault(OpCartUpdate); err != nil {
		return shopapi.CartItem{}, err
	}
	c := b.cartFor(userID)
	for _, line := range c.lines {
		if line.id != lineID {
			continue
		}
		if quantity < 1 {
			quantity = 1
		}
		p, v := b.findVariant(line.variantID)
		if v != nil && quantity > v.Stock {
			return shopapi.CartItem{}, insufficientStock(p, line.variantID)
		}
		line.quantity = quantity
		return b.renderLine(line), nil
	}
	return shopapi.CartItem{}, notFound()
}

func (b *Backend) DeleteCartItem(userID, lineID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFault(OpCartDelete); err != nil {
		return err
	}
	c := b.cartFor(userID)
	for i, line := range c.lines {
		if line.id == lineID {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return nil
		}
	}
	return notFound()
}

// ApplyCoupons replaces the cart's coupon set. Codes the user has not
// claimed, has used, or that expired are ignored.
func (b *Backend) ApplyCoupons(userID int64, codes []string) (shopapi.CouponResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFault(OpApplyCoupons); err != nil {
		return shopapi.CouponResult{}, err
	}
	c := b.cartFor(userID)

	seen := make(map[string]bool, len(codes))
	kept := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		if len(b.usableCoupons(userID, []string{code})) == 1 {
			kept = append(kept, code)
		}
	}
	c.coupons = kept

	subtotal := decimal.Zero
	for _, line := range c.lines {
		subtotal = subtotal.Add(b.renderLine(line).LineTotal())
	}
	eval := evaluateCoupons(subtotal, b.usableCoupons(userID, kept))
	total := subtotal.Sub(eval.discount).Add(eval.shipping())
	if total.IsNegative() {
		total = decimal.Zero
	}
	return shopapi.CouponResult{
		AppliedCoupons:  eval.applied,
		DiscountPercent: eval.percent,
		DiscountAmount:  eval.discount,
		FreeShipping:    eval.freeShipping,
		ShippingFee:     decimal.NewNullDecimal(eval.shipping()),
		Subtotal:        subtotal,
		Total:           total,
	}, nil
}

func (b *Backend) Addresses(userID int64) []shopapi.Address {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]shopapi.Address(nil), b.addresses[userID]...)
}
