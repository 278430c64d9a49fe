package cart

import (
	"context"

	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
	"github.com/shopspring/decimal"
)

// Only confirmed lines are selectable. A line is selected unless it has been
// explicitly deselected.

func (s *Store) confirmedIDs() []int64 {
	entries := s.items.Snapshot()
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		if id, ok := e.ID.Server(); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Toggle flips one line's selection and reports the new value.
func (s *Store) Toggle(lineID int64) (bool, error) {
	found := false
	for _, id := range s.confirmedIDs() {
		if id == lineID {
			found = true
			break
		}
	}
	if !found {
		return false, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, off := s.unselected[lineID]; off {
		delete(s.unselected, lineID)
		return true, nil
	}
	s.unselected[lineID] = struct{}{}
	return false, nil
}

// SetAll sets every line's selection flag to selected.
func (s *Store) SetAll(selected bool) {
	ids := s.confirmedIDs()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unselected = make(map[int64]struct{}, len(ids))
	if selected {
		return
	}
	for _, id := range ids {
		s.unselected[id] = struct{}{}
	}
}

// ToggleAll selects everything unless everything is already selected.
func (s *Store) ToggleAll() {
	s.SetAll(!s.AllSelected())
}

// Selected returns the selected line ids in display order.
func (s *Store) Selected() []int64 {
	ids := s.confirmedIDs()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, off := s.unselected[id]; !off {
			out = append(out, id)
		}
	}
	return out
}

func (s *Store) IsSelected(lineID int64) bool {
	for _, id := range s.Selected() {
		if id == lineID {
			return true
		}
	}
	return false
}

// SelectionCount is the "x/y selected" pair.
func (s *Store) SelectionCount() (selected, total int) {
	return len(s.Selected()), len(s.confirmedIDs())
}

func (s *Store) AllSelected() bool {
	selected, total := s.SelectionCount()
	return total > 0 && selected == total
}

func (s *Store) Indeterminate() bool {
	selected, total := s.SelectionCount()
	return selected > 0 && selected < total
}

// Totals is a display estimate over the selected lines. The discount is the
// server's figure; checkout totals come from the server.
type Totals struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	Discount     decimal.Decimal `json:"discount"`
	Shipping     decimal.Decimal `json:"shipping"`
	Total        decimal.Decimal `json:"total"`
	FreeShipping bool            `json:"free_shipping"`
	Selected     int             `json:"selected"`
	Lines        int             `json:"lines"`
}

func (s *Store) Totals() Totals {
	entries := s.items.Snapshot()
	selected := s.Selected()
	summary := s.Summary()

	pick := make(map[int64]struct{}, len(selected))
	for _, id := range selected {
		pick[id] = struct{}{}
	}
	t := Totals{Subtotal: decimal.Zero, Discount: decimal.Zero, Shipping: decimal.Zero, Selected: len(selected)}
	for _, e := range entries {
		id, ok := e.ID.Server()
		if !ok {
			continue
		}
		t.Lines++
		if _, in := pick[id]; in {
			t.Subtotal = t.Subtotal.Add(e.Value.LineTotal())
		}
	}
	t.FreeShipping = summary.freeShipping()
	if t.Selected > 0 {
		t.Discount = summary.DiscountAmount
		if !t.FreeShipping {
			t.Shipping = summary.shippingFee()
		}
	}
	t.Total = t.Subtotal.Sub(t.Discount).Add(t.Shipping)
	if t.Total.IsNegative() {
		t.Total = decimal.Zero
	}
	return t
}

// Checkout orders the selected lines. A zero addressID picks the default
// address. The cart is reloaded afterwards whatever the outcome.
func (s *Store) Checkout(ctx context.Context, addressID int64, carrier string) (shopapi.CheckoutResult, error) {
	release, err := s.items.Acquire(guardCheckout)
	if err != nil {
		return shopapi.CheckoutResult{}, err
	}
	defer release()

	selected := s.Selected()
	if len(selected) == 0 {
		return shopapi.CheckoutResult{}, pkgerrors.New(pkgerrors.CodeValidation, "select at least one item to check out")
	}
	if addressID == 0 {
		addresses, err := s.api.Addresses(ctx)
		if err != nil {
			return shopapi.CheckoutResult{}, err
		}
		addr, ok := shopapi.DefaultAddress(addresses)
		if !ok {
			return shopapi.CheckoutResult{}, pkgerrors.New(pkgerrors.CodeValidation, "add a shipping address before checking out")
		}
		addressID = addr.ID
	}

	result, err := s.api.Checkout(ctx, shopapi.CheckoutRequest{
		AddressID:   addressID,
		Carrier:     carrier,
		CartItemIDs: selected,
	})
	if reloadErr := s.Reload(ctx); reloadErr != nil {
		s.logg.Error(ctx, "reload after checkout", reloadErr)
	}
	if err != nil {
		return shopapi.CheckoutResult{}, stockChangedError(err)
	}
	return result, nil
}
