package stock

import (
	"strings"
	"testing"

	"github.com/angelmondragon/ajshoes-client/pkg/enums"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
)

func TestAvailableNeverNegative(t *testing.T) {
	for stock := 0; stock <= 8; stock++ {
		for inCart := 0; inCart <= 8; inCart++ {
			got := Available(stock, inCart)
			want := stock - inCart
			if want < 0 {
				want = 0
			}
			if got != want {
				t.Fatalf("Available(%d,%d)=%d want %d", stock, inCart, got, want)
			}
			for requested := 1; requested <= 10; requested++ {
				accepted, err := Clamp(requested, got)
				if requested > got && err == nil {
					t.Fatalf("requested %d over available %d should be rejected", requested, got)
				}
				if got > 0 && accepted > got {
					t.Fatalf("accepted %d exceeds available %d", accepted, got)
				}
			}
		}
	}
}

func TestClampCitesExactAllowance(t *testing.T) {
	accepted, err := Clamp(5, 5)
	if err != nil || accepted != 5 {
		t.Fatalf("expected 5 accepted, got %d %v", accepted, err)
	}

	accepted, err = Clamp(6, 5)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(pkgerrors.UserMessage(err), "5") {
		t.Fatalf("message should cite the limit, got %q", pkgerrors.UserMessage(err))
	}
	if accepted != 5 {
		t.Fatalf("expected clamp to 5, got %d", accepted)
	}

	if accepted, err = Clamp(1, 0); err == nil || accepted != 1 {
		t.Fatalf("expected rejection with accepted 1 when sold out, got %d %v", accepted, err)
	}
	if _, err = Clamp(0, 3); err == nil {
		t.Fatalf("zero quantity should be rejected")
	}
}

func TestInCartSumsAllLines(t *testing.T) {
	lines := []shopapi.CartItem{
		{ID: 1, VariantID: 102, Quantity: 2},
		{ID: 2, VariantID: 103, Quantity: 4},
		{ID: 3, VariantID: 102, Quantity: 1},
	}
	if got := InCart(lines, 102); got != 3 {
		t.Fatalf("expected 3 reserved, got %d", got)
	}
	if got := Available(5, InCart(lines, 102)); got != 2 {
		t.Fatalf("expected 2 available, got %d", got)
	}
	if _, err := Clamp(3, 2); err == nil {
		t.Fatalf("adding 3 more to V102 should be rejected")
	}
}

func sneaker() shopapi.Product {
	return shopapi.Product{
		ID:   10,
		Name: "Runner",
		Variants: []shopapi.Variant{
			{ID: 101, Color: "black", SizeEU: "42", SizeUS: "8.5", SizeCM: "26.5", Stock: 0},
			{ID: 102, Color: "black", SizeEU: "41", SizeUS: "8", SizeCM: "26", Stock: 5},
			{ID: 103, Color: "white", SizeEU: "41", SizeUS: "8", SizeCM: "26", Stock: 0},
			{ID: 104, Color: "white", SizeEU: "42", SizeUS: "8.5", SizeCM: "26.5", Stock: 0},
		},
	}
}

func TestSelectorDisablesSoldOutOptions(t *testing.T) {
	s := NewSelector(sneaker(), nil)

	colors := s.Colors()
	if len(colors) != 2 || !colors[0].Enabled || colors[1].Enabled {
		t.Fatalf("expected black enabled and white shown disabled, got %+v", colors)
	}
	if err := s.SelectColor("white"); err == nil {
		t.Fatalf("selecting a sold-out color should fail")
	}
	if err := s.SelectColor("black"); err != nil {
		t.Fatalf("SelectColor: %v", err)
	}
	sizes := s.Sizes()
	if len(sizes) != 2 || sizes[0].Value != "41" || !sizes[0].Enabled || sizes[1].Enabled {
		t.Fatalf("unexpected sizes %+v", sizes)
	}
	if err := s.SelectSize("42"); err == nil {
		t.Fatalf("selecting a sold-out size should fail")
	}
}

func TestSelectorQuantityFlow(t *testing.T) {
	reserved := map[int64]int{102: 3}
	s := NewSelector(sneaker(), func(id int64) int { return reserved[id] })

	if s.CanAdd() {
		t.Fatalf("incomplete selection must not allow add")
	}
	if err := s.SetQuantity(2); err == nil {
		t.Fatalf("quantity without a variant should be rejected")
	}
	_ = s.SelectColor("black")
	_ = s.SelectSize("41")
	if v, ok := s.Variant(); !ok || v.ID != 102 {
		t.Fatalf("expected variant 102, got %+v %v", v, ok)
	}
	if got := s.Available(); got != 2 {
		t.Fatalf("expected 2 available, got %d", got)
	}
	if err := s.SetQuantity(3); err == nil || s.Quantity() != 2 {
		t.Fatalf("expected clamp to 2 with error, got %d %v", s.Quantity(), err)
	}
	if err := s.SetQuantity(2); err != nil {
		t.Fatalf("SetQuantity(2): %v", err)
	}

	if err := s.SetUnit(enums.SizeUnitUS); err != nil {
		t.Fatalf("SetUnit: %v", err)
	}
	if s.Size() != "" || s.Quantity() != 1 {
		t.Fatalf("unit change should clear size and reset quantity")
	}
	if err := s.SelectSize("8"); err != nil {
		t.Fatalf("SelectSize in US: %v", err)
	}
	if v, _ := s.Variant(); v.ID != 102 {
		t.Fatalf("US size should resolve the same variant, got %d", v.ID)
	}

	reserved[102] = 5
	if s.CanAdd() {
		t.Fatalf("fully reserved variant must not allow add")
	}
}
