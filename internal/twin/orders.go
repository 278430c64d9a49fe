package twin

import (
	"fmt"
	"sort"
	"strings"

	"github.com/angelmondragon/ajshoes-client/pkg/enums"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
	"github.com/shopspring/decimal"
)

// Checkout turns the chosen cart lines into an order awaiting payment. Stock
// is checked but not reserved; the lines leave the cart.
func (b *Backend) Checkout(userID int64, req shopapi.CheckoutRequest) (shopapi.CheckoutResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFault(OpCheckout); err != nil {
		return shopapi.CheckoutResult{}, err
	}
	if req.AddressID == 0 {
		return shopapi.CheckoutResult{}, badRequest("address_id is required")
	}
	if !b.ownsAddress(userID, req.AddressID) {
		return shopapi.CheckoutResult{}, notFound()
	}

	c := b.cartFor(userID)
	wanted := make(map[int64]bool, len(req.CartItemIDs))
	for _, id := range req.CartItemIDs {
		wanted[id] = true
	}
	var picked, rest []*cartLine
	for _, line := range c.lines {
		if len(wanted) == 0 || wanted[line.id] {
			picked = append(picked, line)
		} else {
			rest = append(rest, line)
		}
	}
	if len(picked) == 0 {
		return shopapi.CheckoutResult{}, badRequest("No items selected.")
	}

	subtotal := decimal.Zero
	lines := make([]orderLine, 0, len(picked))
	for _, line := range picked {
		p, v := b.findVariant(line.variantID)
		if v == nil || v.Stock < line.quantity {
			if p == nil {
				p = &shopapi.Product{Name: fmt.Sprintf("product %d", line.productID)}
			}
			return shopapi.CheckoutResult{}, insufficientStock(p, line.variantID)
		}
		subtotal = subtotal.Add(p.SalePrice.Mul(decimal.NewFromInt(int64(line.quantity))))
		lines = append(lines, orderLine{productID: p.ID, variantID: v.ID, price: p.SalePrice, quantity: line.quantity})
	}

	usable := b.usableCoupons(userID, c.coupons)
	eval := evaluateCoupons(subtotal, usable)
	total := subtotal.Sub(eval.discount).Add(eval.shipping())
	if total.IsNegative() {
		total = decimal.Zero
	}

	carrier := strings.TrimSpace(req.Carrier)
	if carrier == "" {
		carrier = shopapi.DefaultCarrier
	}
	now := b.now().UTC()
	deadline := now.Add(paymentWindow)
	o := &order{
		Order: shopapi.Order{
			ID:              b.nextID(),
			Status:          enums.OrderStatusPendingPayment,
			ShippingCarrier: carrier,
			ShippingCost:    eval.shipping(),
			Total:           total.Round(2),
			PaymentDeadline: &deadline,
			CreatedAt:       now,
		},
		userID: userID,
		lines:  lines,
	}
	b.orders[o.ID] = o
	c.lines = rest

	for _, applied := range eval.applied {
		if cp, ok := b.coupons[strings.ToUpper(applied.Code)]; ok {
			cp.usedBy[userID] = true
			cp.uses++
		}
	}
	c.coupons = nil

	b.pushNotificationLocked(userID, enums.NotificationKindOrder, "Order placed",
		fmt.Sprintf("Order #%d is awaiting payment.", o.ID), map[string]any{"order_id": o.ID})

	placed := o.Order
	res := shopapi.CheckoutResult{Order: &placed, RequiresPayment: true}
	if b.payment != nil {
		cfg := *b.payment
		res.PaymentConfig = &cfg
	}
	return res, nil
}

// ownsAddress must be called with mu held.
func (b *Backend) ownsAddress(userID, addressID int64) bool {
	for _, a := range b.addresses[userID] {
		if a.ID == addressID {
			return true
		}
	}
	return false
}

func (b *Backend) Order(userID, orderID int64) (shopapi.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok || o.userID != userID {
		return shopapi.Order{}, notFound()
	}
	return o.Order, nil
}

// Orders returns the user's order history newest first with its lines.
// Cancelled orders are left out; orders awaiting payment are listed so they
// can be paid or cancelled.
func (b *Backend) Orders(userID int64) []shopapi.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]shopapi.Order, 0)
	for _, o := range b.orders {
		if o.userID != userID || o.Status == enums.OrderStatusCancelled {
			continue
		}
		placed := o.Order
		placed.Items = make([]shopapi.OrderItem, 0, len(o.lines))
		for i, ol := range o.lines {
			placed.Items = append(placed.Items, shopapi.OrderItem{
				ID:        int64(i + 1),
				ProductID: ol.productID,
				VariantID: ol.variantID,
				Price:     ol.price,
				Quantity:  ol.quantity,
			})
		}
		out = append(out, placed)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// UploadPaymentSlip moves an order awaiting payment to pending review.
func (b *Backend) UploadPaymentSlip(userID, orderID int64, filename string, size int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok || o.userID != userID {
		return notFound()
	}
	if o.Status != enums.OrderStatusPendingPayment {
		return badRequest("Order is not awaiting payment")
	}
	if o.PaymentDeadline != nil && b.now().After(*o.PaymentDeadline) {
		return badRequest("Payment deadline has expired")
	}
	if size <= 0 {
		return badRequest("Payment slip is required")
	}
	o.slip = filename
	o.Status = enums.OrderStatusPending
	return nil
}

// CancelOrder cancels an order awaiting payment and merges its lines back
// into the cart.
func (b *Backend) CancelOrder(userID, orderID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok || o.userID != userID {
		return notFound()
	}
	if o.Status != enums.OrderStatusPendingPayment {
		return badRequest("Order cannot be cancelled")
	}

	c := b.cartFor(userID)
	for _, ol := range o.lines {
		merged := false
		for _, line := range c.lines {
			if line.variantID == ol.variantID {
				line.quantity += ol.quantity
				merged = true
				break
			}
		}
		if !merged {
			c.lines = append(c.lines, &cartLine{
				id:        b.nextID(),
				productID: ol.productID,
				variantID: ol.variantID,
				quantity:  ol.quantity,
			})
		}
	}
	o.Status = enums.OrderStatusCancelled
	return nil
}
