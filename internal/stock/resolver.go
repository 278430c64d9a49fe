// Package stock computes how many units of a variant can still be added to
// the cart and tracks a product's color/size/quantity selection.
package stock

import (
	"fmt"

	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
)

// Available is max(0, stock - inCart).
func Available(stock, inCart int) int {
	if n := stock - inCart; n > 0 {
		return n
	}
	return 0
}

// InCart sums quantities across every cart line for variantID.
func InCart(lines []shopapi.CartItem, variantID int64) int {
	total := 0
	for _, l := range lines {
		if l.VariantID == variantID {
			total += l.Quantity
		}
	}
	return total
}

// Clamp validates requested against available. On rejection accepted is the
// nearest allowed quantity: available, or 1 when nothing is left.
func Clamp(requested, available int) (int, error) {
	switch {
	case requested < 1:
		return 1, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	case available <= 0:
		return 1, pkgerrors.New(pkgerrors.CodeValidation, "out of stock").
			WithDetails(map[string]any{"available": 0})
	case requested > available:
		return available, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("only %d left", available)).
			WithDetails(map[string]any{"available": available, "requested": requested})
	}
	return requested, nil
}
