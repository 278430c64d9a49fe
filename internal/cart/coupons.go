package cart

import (
	"context"
	"strings"

	"github.com/angelmondragon/ajshoes-client/pkg/enums"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
	"github.com/shopspring/decimal"
)

// DefaultShippingFee applies when the server omits shipping_fee.
var DefaultShippingFee = decimal.NewFromInt(50)

// Summary mirrors the server's discount fields. It is never computed locally.
type Summary struct {
	DiscountAmount  decimal.Decimal
	DiscountPercent int
	FreeShipping    bool
	ShippingFee     decimal.NullDecimal
	AppliedCoupons  []shopapi.AppliedCoupon
}

// AppliedCodes lists the codes the server reports as active.
func (s Summary) AppliedCodes() []string {
	out := make([]string, 0, len(s.AppliedCoupons))
	for _, c := range s.AppliedCoupons {
		out = append(out, c.Code)
	}
	return out
}

func (s Summary) freeShipping() bool {
	if s.FreeShipping {
		return true
	}
	for _, c := range s.AppliedCoupons {
		if c.DiscountType == enums.DiscountTypeFreeShipping {
			return true
		}
	}
	return s.ShippingFee.Valid && s.ShippingFee.Decimal.IsZero()
}

func (s Summary) shippingFee() decimal.Decimal {
	if s.ShippingFee.Valid {
		return s.ShippingFee.Decimal
	}
	return DefaultShippingFee
}

func summaryFromCart(c shopapi.Cart) Summary {
	return Summary{
		DiscountAmount:  c.DiscountAmount,
		DiscountPercent: c.DiscountPercent,
		FreeShipping:    c.FreeShipping,
		ShippingFee:     c.ShippingFee,
		AppliedCoupons:  append([]shopapi.AppliedCoupon(nil), c.AppliedCoupons...),
	}
}

func summaryFromCoupons(r shopapi.CouponResult) Summary {
	return Summary{
		DiscountAmount:  r.DiscountAmount,
		DiscountPercent: r.DiscountPercent,
		FreeShipping:    r.FreeShipping,
		ShippingFee:     r.ShippingFee,
		AppliedCoupons:  append([]shopapi.AppliedCoupon(nil), r.AppliedCoupons...),
	}
}

func (s *Store) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.summary
	out.AppliedCoupons = append([]shopapi.AppliedCoupon(nil), s.summary.AppliedCoupons...)
	return out
}

// MutateCoupons sends the entire desired code set and replaces the local
// discount fields with exactly what the server returns. A failed request
// reloads the cart. Requesting codes of which the server applies none is
// reported as CodeValidation after the state has been updated.
func (s *Store) MutateCoupons(ctx context.Context, codes []string) (Summary, error) {
	release, err := s.items.Acquire(guardCoupons)
	if err != nil {
		return Summary{}, err
	}
	defer release()

	codes = normalizeCodes(codes)
	result, err := s.api.ApplyCoupons(ctx, codes)
	if err != nil {
		if reloadErr := s.Reload(ctx); reloadErr != nil {
			s.logg.Error(ctx, "reload after coupon failure", reloadErr)
		}
		return s.Summary(), err
	}

	next := summaryFromCoupons(result)
	s.mu.Lock()
	s.summary = next
	s.mu.Unlock()

	if len(codes) > 0 && len(next.AppliedCoupons) == 0 {
		return next, pkgerrors.New(pkgerrors.CodeValidation, "coupon not applicable").
			WithDetails(map[string]any{"requested": codes})
	}
	return next, nil
}

// PickCoupons applies at most one percent code and one free-shipping code.
// Empty strings leave that slot unused.
func (s *Store) PickCoupons(ctx context.Context, percent, freeShipping string) (Summary, error) {
	var codes []string
	if percent = strings.TrimSpace(percent); percent != "" {
		codes = append(codes, percent)
	}
	if freeShipping = strings.TrimSpace(freeShipping); freeShipping != "" {
		codes = append(codes, freeShipping)
	}
	return s.MutateCoupons(ctx, codes)
}

// RemoveCoupon re-sends the applied set without code.
func (s *Store) RemoveCoupon(ctx context.Context, code string) (Summary, error) {
	code = strings.TrimSpace(code)
	var keep []string
	for _, c := range s.Summary().AppliedCodes() {
		if !strings.EqualFold(c, code) {
			keep = append(keep, c)
		}
	}
	return s.MutateCoupons(ctx, keep)
}

func (s *Store) ClearCoupons(ctx context.Context) (Summary, error) {
	return s.MutateCoupons(ctx, nil)
}

// LoadCoupons returns the user's claimed coupons grouped by type.
func (s *Store) LoadCoupons(ctx context.Context) (shopapi.MyCoupons, error) {
	return s.api.MyCoupons(ctx)
}

func normalizeCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		key := strings.ToUpper(c)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
