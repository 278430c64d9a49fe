package stock

import (
	"sort"
	"strconv"

	"github.com/angelmondragon/ajshoes-client/pkg/enums"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
)

// Option is a color or size choice. Disabled options are still listed so the
// caller can show them as unavailable.
type Option struct {
	Value   string
	Enabled bool
}

// ReservedFunc reports how many units of a variant are already in the cart.
type ReservedFunc func(variantID int64) int

// Selector holds the color/size/quantity choice for one product.
type Selector struct {
	variants []shopapi.Variant
	reserved ReservedFunc

	unit     enums.SizeUnit
	color    string
	size     string
	quantity int
}

func NewSelector(product shopapi.Product, reserved ReservedFunc) *Selector {
	if reserved == nil {
		reserved = func(int64) int { return 0 }
	}
	return &Selector{
		variants: product.Variants,
		reserved: reserved,
		unit:     enums.SizeUnitEU,
		quantity: 1,
	}
}

func (s *Selector) Unit() enums.SizeUnit { return s.unit }
func (s *Selector) Color() string        { return s.color }
func (s *Selector) Size() string         { return s.size }
func (s *Selector) Quantity() int        { return s.quantity }

// Colors lists colors in first-seen order. A color is enabled when any of its
// variants has stock.
func (s *Selector) Colors() []Option {
	var out []Option
	index := map[string]int{}
	for _, v := range s.variants {
		i, ok := index[v.Color]
		if !ok {
			index[v.Color] = len(out)
			out = append(out, Option{Value: v.Color})
			i = len(out) - 1
		}
		if v.Stock > 0 {
			out[i].Enabled = true
		}
	}
	return out
}

// Sizes lists the chosen color's sizes in the current unit, ascending. With
// no color chosen it lists every size across colors.
func (s *Selector) Sizes() []Option {
	var out []Option
	index := map[string]int{}
	for _, v := range s.variants {
		if s.color != "" && v.Color != s.color {
			continue
		}
		label := v.Size(s.unit)
		i, ok := index[label]
		if !ok {
			index[label] = len(out)
			out = append(out, Option{Value: label})
			i = len(out) - 1
		}
		if v.Stock > 0 {
			out[i].Enabled = true
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return sizeLess(out[a].Value, out[b].Value) })
	return out
}

// SelectColor clears the size and resets quantity to 1.
func (s *Selector) SelectColor(color string) error {
	if !optionEnabled(s.Colors(), color) {
		return pkgerrors.New(pkgerrors.CodeValidation, "color "+strconv.Quote(color)+" is unavailable")
	}
	s.color = color
	s.size = ""
	s.quantity = 1
	return nil
}

// SelectSize requires a color first and resets quantity to 1.
func (s *Selector) SelectSize(size string) error {
	if s.color == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "choose a color first")
	}
	if !optionEnabled(s.Sizes(), size) {
		return pkgerrors.New(pkgerrors.CodeValidation, "size "+strconv.Quote(size)+" is unavailable")
	}
	s.size = size
	s.quantity = 1
	return nil
}

// SetUnit switches the sizing system. Size labels differ per unit, so the
// chosen size is cleared.
func (s *Selector) SetUnit(unit enums.SizeUnit) error {
	if !unit.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown size unit "+strconv.Quote(string(unit)))
	}
	if unit != s.unit {
		s.unit = unit
		s.size = ""
		s.quantity = 1
	}
	return nil
}

// Variant resolves the selection to exactly one variant.
func (s *Selector) Variant() (shopapi.Variant, bool) {
	if s.color == "" || s.size == "" {
		return shopapi.Variant{}, false
	}
	var (
		found shopapi.Variant
		n     int
	)
	for _, v := range s.variants {
		if v.Color == s.color && v.Size(s.unit) == s.size {
			found = v
			n++
		}
	}
	return found, n == 1
}

// Available is the quantity that can still be added for the resolved variant.
func (s *Selector) Available() int {
	v, ok := s.Variant()
	if !ok {
		return 0
	}
	return Available(v.Stock, s.reserved(v.ID))
}

func (s *Selector) CanAdd() bool {
	return s.Available() > 0
}

// SetQuantity clamps q to what is available. The returned error carries the
// user-facing allowance message; the stored quantity is the clamped value.
func (s *Selector) SetQuantity(q int) error {
	if _, ok := s.Variant(); !ok {
		s.quantity = 1
		return pkgerrors.New(pkgerrors.CodeValidation, "choose a color and size")
	}
	accepted, err := Clamp(q, s.Available())
	s.quantity = accepted
	return err
}

func optionEnabled(opts []Option, value string) bool {
	for _, o := range opts {
		if o.Value == value {
			return o.Enabled
		}
	}
	return false
}

func sizeLess(a, b string) bool {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		return fa < fb
	}
	return a < b
}
