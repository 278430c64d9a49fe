package twin

import (
	"sort"
	"strings"
	"time"

	"github.com/angelmondragon/ajshoes-client/pkg/enums"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
	"github.com/shopspring/decimal"
)

type couponEval struct {
	applied      []shopapi.AppliedCoupon
	percent      int
	discount     decimal.Decimal
	freeShipping bool
}

func (e couponEval) shipping() decimal.Decimal {
	if e.freeShipping {
		return decimal.Zero
	}
	return ShippingFee
}

// evaluateCoupons applies at most the best percent coupon (when its minimum
// spend is met) and one free-shipping coupon. The discount is rounded half up
// to a whole amount.
func evaluateCoupons(subtotal decimal.Decimal, candidates []*coupon) couponEval {
	eval := couponEval{applied: []shopapi.AppliedCoupon{}, discount: decimal.Zero}
	var best, free *coupon
	for _, c := range candidates {
		switch c.DiscountType {
		case enums.DiscountTypePercent:
			if best == nil || c.PercentOff > best.PercentOff {
				best = c
			}
		case enums.DiscountTypeFreeShipping:
			free = c
		}
	}

	if best != nil && subtotal.GreaterThanOrEqual(best.MinSpend) {
		eval.percent = best.PercentOff
		eval.discount = subtotal.Mul(decimal.NewFromInt(int64(best.PercentOff))).
			Div(decimal.NewFromInt(100)).Round(0)
		eval.applied = append(eval.applied, shopapi.AppliedCoupon{
			Code:         best.Code,
			DiscountType: enums.DiscountTypePercent,
			PercentOff:   best.PercentOff,
		})
	}
	if free != nil {
		eval.freeShipping = true
		eval.applied = append(eval.applied, shopapi.AppliedCoupon{
			Code:         free.Code,
			DiscountType: enums.DiscountTypeFreeShipping,
		})
	}
	return eval
}

// usableCoupons must be called with mu held.
func (b *Backend) usableCoupons(userID int64, codes []string) []*coupon {
	now := b.now()
	out := make([]*coupon, 0, len(codes))
	for _, code := range codes {
		c, ok := b.coupons[strings.ToUpper(code)]
		if !ok || !c.claimedBy[userID] || c.usedBy[userID] {
			continue
		}
		if c.ValidTo != nil && c.ValidTo.Before(now) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// MyCoupons lists claimed, unused, unexpired coupons grouped by type with
// the largest percent first.
func (b *Backend) MyCoupons(userID int64) shopapi.MyCoupons {
	b.mu.Lock()
	defer b.mu.Unlock()
	codes := make([]string, 0, len(b.coupons))
	for code := range b.coupons {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	out := shopapi.MyCoupons{Percent: []shopapi.Coupon{}, FreeShipping: []shopapi.Coupon{}}
	for _, c := range b.usableCoupons(userID, codes) {
		switch c.DiscountType {
		case enums.DiscountTypePercent:
			out.Percent = append(out.Percent, c.Coupon)
		case enums.DiscountTypeFreeShipping:
			out.FreeShipping = append(out.FreeShipping, c.Coupon)
		}
	}
	sort.SliceStable(out.Percent, func(i, j int) bool {
		return out.Percent[i].PercentOff > out.Percent[j].PercentOff
	})
	return out
}

// offered reports whether c can still be claimed: unexpired and, when
// limited, not fully claimed.
func (c *coupon) offered(now time.Time) bool {
	if c.ValidTo != nil && c.ValidTo.Before(now) {
		return false
	}
	return c.MaxUses == 0 || len(c.claimedBy) < c.MaxUses
}

// CouponCenter lists offered coupons, percent coupons first by size. userID
// 0 is an anonymous caller and never sees a claimed flag.
func (b *Backend) CouponCenter(userID int64) []shopapi.CenterCoupon {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	out := make([]shopapi.CenterCoupon, 0, len(b.coupons))
	for _, c := range b.coupons {
		if !c.offered(now) {
			continue
		}
		row := shopapi.CenterCoupon{Coupon: c.Coupon, Claimed: userID != 0 && c.claimedBy[userID]}
		if c.MaxUses > 0 {
			remaining := c.MaxUses - len(c.claimedBy)
			row.Remaining = &remaining
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		a, z := out[i], out[j]
		if a.DiscountType != z.DiscountType {
			return a.DiscountType == enums.DiscountTypePercent
		}
		if a.PercentOff != z.PercentOff {
			return a.PercentOff > z.PercentOff
		}
		return a.Code < z.Code
	})
	return out
}

// ClaimCoupon puts an offered coupon in the user's wallet.
func (b *Backend) ClaimCoupon(userID, couponID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFault(OpClaimCoupon); err != nil {
		return err
	}
	var target *coupon
	for _, c := range b.coupons {
		if c.ID == couponID {
			target = c
			break
		}
	}
	if target == nil {
		return notFound()
	}
	if target.claimedBy[userID] {
		return badRequest("You already claimed this coupon.")
	}
	if !target.offered(b.now()) {
		return badRequest("Coupon expired or unavailable.")
	}
	target.claimedBy[userID] = true
	return nil
}
