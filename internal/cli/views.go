package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/ajshoes-client/internal/cart"
	"github.com/angelmondragon/ajshoes-client/internal/stock"
	"github.com/angelmondragon/ajshoes-client/pkg/enums"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
)

// Views carry money as fixed two-decimal strings so every format prints the
// same figure.
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func variantLabel(v shopapi.Variant, unit enums.SizeUnit) string {
	return fmt.Sprintf("%s %s %s", v.Color, strings.ToUpper(string(unit)), v.Size(unit))
}

type userView struct {
	ID       int64  `json:"id" yaml:"id"`
	Username string `json:"username" yaml:"username"`
	Email    string `json:"email" yaml:"email"`
	Role     string `json:"role" yaml:"role"`
}

func newUserView(u shopapi.User) userView {
	return userView{ID: u.ID, Username: u.Username, Email: u.Email, Role: string(u.Role)}
}

func (v userView) renderText(w io.Writer) {
	fmt.Fprintf(w, "%s (#%d) <%s> role=%s\n", v.Username, v.ID, v.Email, v.Role)
}

type messageView struct {
	Message string `json:"message" yaml:"message"`
}

func (v messageView) renderText(w io.Writer) {
	fmt.Fprintln(w, v.Message)
}

type optionView struct {
	Value     string `json:"value" yaml:"value"`
	Available bool   `json:"available" yaml:"available"`
}

func newOptionViews(opts []stock.Option) []optionView {
	out := make([]optionView, 0, len(opts))
	for _, o := range opts {
		out = append(out, optionView{Value: o.Value, Available: o.Enabled})
	}
	return out
}

type variantView struct {
	ID        int64  `json:"id" yaml:"id"`
	Color     string `json:"color" yaml:"color"`
	Size      string `json:"size" yaml:"size"`
	Stock     int    `json:"stock" yaml:"stock"`
	Available int    `json:"available" yaml:"available"`
}

type productView struct {
	ID          int64         `json:"id" yaml:"id"`
	Name        string        `json:"name" yaml:"name"`
	Price       string        `json:"price" yaml:"price"`
	BasePrice   string        `json:"base_price" yaml:"base_price"`
	SalePercent int           `json:"sale_percent" yaml:"sale_percent"`
	Cover       string        `json:"cover,omitempty" yaml:"cover,omitempty"`
	Favorite    bool          `json:"favorite" yaml:"favorite"`
	Unit        string        `json:"unit" yaml:"unit"`
	Colors      []optionView  `json:"colors" yaml:"colors"`
	Sizes       []optionView  `json:"sizes" yaml:"sizes"`
	Variants    []variantView `json:"variants" yaml:"variants"`
}

func newProductView(p shopapi.Product, sel *stock.Selector, reserved stock.ReservedFunc, favorite bool) productView {
	view := productView{
		ID:          p.ID,
		Name:        p.Name,
		Price:       money(p.SalePrice),
		BasePrice:   money(p.BasePrice),
		SalePercent: p.SalePercent,
		Cover:       p.CoverImage(),
		Favorite:    favorite,
		Unit:        string(sel.Unit()),
		Colors:      newOptionViews(sel.Colors()),
		Sizes:       newOptionViews(sel.Sizes()),
		Variants:    make([]variantView, 0, len(p.Variants)),
	}
	for _, v := range p.Variants {
		view.Variants = append(view.Variants, variantView{
			ID:        v.ID,
			Color:     v.Color,
			Size:      v.Size(sel.Unit()),
			Stock:     v.Stock,
			Available: stock.Available(v.Stock, reserved(v.ID)),
		})
	}
	return view
}

func optionList(opts []optionView) string {
	parts := make([]string, 0, len(opts))
	for _, o := range opts {
		if o.Available {
			parts = append(parts, o.Value)
		} else {
			parts = append(parts, "("+o.Value+")")
		}
	}
	return strings.Join(parts, ", ")
}

func (v productView) renderText(w io.Writer) {
	fav := ""
	if v.Favorite {
		fav = " *"
	}
	fmt.Fprintf(w, "%s (#%d)%s\n", v.Name, v.ID, fav)
	if v.SalePercent > 0 {
		fmt.Fprintf(w, "price: %s (was %s, -%d%%)\n", v.Price, v.BasePrice, v.SalePercent)
	} else {
		fmt.Fprintf(w, "price: %s\n", v.Price)
	}
	if v.Cover != "" {
		fmt.Fprintf(w, "cover: %s\n", v.Cover)
	}
	fmt.Fprintf(w, "colors: %s\n", optionList(v.Colors))
	fmt.Fprintf(w, "sizes (%s): %s\n", strings.ToUpper(v.Unit), optionList(v.Sizes))
	fmt.Fprintln(w, "variants:")
	for _, vv := range v.Variants {
		if vv.Available == 0 {
			fmt.Fprintf(w, "  #%d %s %s: out of stock\n", vv.ID, vv.Color, vv.Size)
			continue
		}
		fmt.Fprintf(w, "  #%d %s %s: %d available\n", vv.ID, vv.Color, vv.Size, vv.Available)
	}
}

type cartLineView struct {
	ID        int64  `json:"id" yaml:"id"`
	Product   string `json:"product" yaml:"product"`
	Variant   string `json:"variant" yaml:"variant"`
	Quantity  int    `json:"quantity" yaml:"quantity"`
	UnitPrice string `json:"unit_price" yaml:"unit_price"`
	LineTotal string `json:"line_total" yaml:"line_total"`
	Selected  bool   `json:"selected" yaml:"selected"`
}

type totalsView struct {
	Subtotal     string `json:"subtotal" yaml:"subtotal"`
	Discount     string `json:"discount" yaml:"discount"`
	Shipping     string `json:"shipping" yaml:"shipping"`
	Total        string `json:"total" yaml:"total"`
	FreeShipping bool   `json:"free_shipping" yaml:"free_shipping"`
}

type cartView struct {
	Lines    []cartLineView `json:"lines" yaml:"lines"`
	Selected int            `json:"selected" yaml:"selected"`
	Coupons  []string       `json:"coupons" yaml:"coupons"`
	Totals   totalsView     `json:"totals" yaml:"totals"`
}

func newCartView(s *cart.Store) cartView {
	totals := s.Totals()
	view := cartView{
		Lines:    make([]cartLineView, 0, totals.Lines),
		Selected: totals.Selected,
		Coupons:  s.Summary().AppliedCodes(),
		Totals: totalsView{
			Subtotal:     money(totals.Subtotal),
			Discount:     money(totals.Discount),
			Shipping:     money(totals.Shipping),
			Total:        money(totals.Total),
			FreeShipping: totals.FreeShipping,
		},
	}
	for _, item := range s.Items() {
		view.Lines = append(view.Lines, cartLineView{
			ID:        item.ID,
			Product:   item.Product.Name,
			Variant:   variantLabel(item.Variant, enums.SizeUnitEU),
			Quantity:  item.Quantity,
			UnitPrice: money(item.Product.SalePrice),
			LineTotal: money(item.LineTotal()),
			Selected:  s.IsSelected(item.ID),
		})
	}
	return view
}

func (v cartView) renderText(w io.Writer) {
	if len(v.Lines) == 0 {
		fmt.Fprintln(w, "cart is empty")
		return
	}
	fmt.Fprintf(w, "cart: %d line(s), %d/%d selected\n", len(v.Lines), v.Selected, len(v.Lines))
	for _, l := range v.Lines {
		mark := " "
		if l.Selected {
			mark = "x"
		}
		fmt.Fprintf(w, "  [%s] #%d %s %s x%d @ %s = %s\n", mark, l.ID, l.Product, l.Variant, l.Quantity, l.UnitPrice, l.LineTotal)
	}
	coupons := "none"
	if len(v.Coupons) > 0 {
		coupons = strings.Join(v.Coupons, ", ")
	}
	fmt.Fprintf(w, "coupons: %s\n", coupons)
	fmt.Fprintf(w, "subtotal: %s\n", v.Totals.Subtotal)
	fmt.Fprintf(w, "discount: %s\n", v.Totals.Discount)
	if v.Totals.FreeShipping {
		fmt.Fprintln(w, "shipping: free")
	} else {
		fmt.Fprintf(w, "shipping: %s\n", v.Totals.Shipping)
	}
	fmt.Fprintf(w, "total: %s\n", v.Totals.Total)
}

type orderView struct {
	ID              int64           `json:"id" yaml:"id"`
	Status          string          `json:"status" yaml:"status"`
	Carrier         string          `json:"carrier" yaml:"carrier"`
	Shipping        string          `json:"shipping" yaml:"shipping"`
	Total           string          `json:"total" yaml:"total"`
	RequiresPayment bool            `json:"requires_payment" yaml:"requires_payment"`
	PaymentDeadline string          `json:"payment_deadline,omitempty" yaml:"payment_deadline,omitempty"`
	BankName        string          `json:"bank_name,omitempty" yaml:"bank_name,omitempty"`
	AccountNumber   string          `json:"account_number,omitempty" yaml:"account_number,omitempty"`
	Items           []orderItemView `json:"items,omitempty" yaml:"items,omitempty"`
}

func newOrderView(r shopapi.CheckoutResult) orderView {
	view := orderView{RequiresPayment: r.RequiresPayment}
	if o := r.Order; o != nil {
		view.ID = o.ID
		view.Status = string(o.Status)
		view.Carrier = o.ShippingCarrier
		view.Shipping = money(o.ShippingCost)
		view.Total = money(o.Total)
		if o.PaymentDeadline != nil {
			view.PaymentDeadline = o.PaymentDeadline.UTC().Format("2006-01-02 15:04 MST")
		}
	}
	if pc := r.PaymentConfig; pc != nil {
		view.BankName = pc.BankName
		view.AccountNumber = pc.AccountNumber
	}
	return view
}

func (v orderView) renderText(w io.Writer) {
	fmt.Fprintf(w, "order #%d %s via %s: total %s (shipping %s)\n", v.ID, v.Status, v.Carrier, v.Total, v.Shipping)
	if v.RequiresPayment {
		fmt.Fprintf(w, "pay to %s %s before %s\n", v.BankName, v.AccountNumber, v.PaymentDeadline)
	}
	for _, item := range v.Items {
		fmt.Fprintf(w, "  product #%d variant #%d x%d @ %s\n", item.Product, item.Variant, item.Quantity, item.Price)
	}
}

type orderItemView struct {
	Product  int64  `json:"product" yaml:"product"`
	Variant  int64  `json:"variant" yaml:"variant"`
	Quantity int    `json:"quantity" yaml:"quantity"`
	Price    string `json:"price" yaml:"price"`
}

type ordersView struct {
	Orders []orderView `json:"orders" yaml:"orders"`
}

func newOrdersView(orders []shopapi.Order) ordersView {
	view := ordersView{Orders: make([]orderView, 0, len(orders))}
	for i := range orders {
		o := orders[i]
		ov := newOrderView(shopapi.CheckoutResult{Order: &o})
		for _, item := range o.Items {
			ov.Items = append(ov.Items, orderItemView{
				Product:  item.ProductID,
				Variant:  item.VariantID,
				Quantity: item.Quantity,
				Price:    money(item.Price),
			})
		}
		view.Orders = append(view.Orders, ov)
	}
	return view
}

func (v ordersView) renderText(w io.Writer) {
	if len(v.Orders) == 0 {
		fmt.Fprintln(w, "no orders")
		return
	}
	for _, o := range v.Orders {
		o.renderText(w)
	}
}

type centerCouponView struct {
	ID         int64  `json:"id" yaml:"id"`
	Code       string `json:"code" yaml:"code"`
	Type       string `json:"discount_type" yaml:"discount_type"`
	PercentOff int    `json:"percent_off,omitempty" yaml:"percent_off,omitempty"`
	MinSpend   string `json:"min_spend" yaml:"min_spend"`
	Remaining  *int   `json:"remaining,omitempty" yaml:"remaining,omitempty"`
	Claimed    bool   `json:"claimed" yaml:"claimed"`
}

type couponCenterView struct {
	Coupons []centerCouponView `json:"coupons" yaml:"coupons"`
}

func newCouponCenterView(center []shopapi.CenterCoupon) couponCenterView {
	view := couponCenterView{Coupons: make([]centerCouponView, 0, len(center))}
	for _, c := range center {
		view.Coupons = append(view.Coupons, centerCouponView{
			ID:         c.ID,
			Code:       c.Code,
			Type:       string(c.DiscountType),
			PercentOff: c.PercentOff,
			MinSpend:   money(c.MinSpend),
			Remaining:  c.Remaining,
			Claimed:    c.Claimed,
		})
	}
	return view
}

func (v couponCenterView) renderText(w io.Writer) {
	if len(v.Coupons) == 0 {
		fmt.Fprintln(w, "no coupons on offer")
		return
	}
	for _, c := range v.Coupons {
		offer := "free shipping"
		if c.Type == string(enums.DiscountTypePercent) {
			offer = fmt.Sprintf("%d%% off", c.PercentOff)
		}
		line := fmt.Sprintf("#%d %s: %s (min %s)", c.ID, c.Code, offer, c.MinSpend)
		if c.Remaining != nil {
			line += fmt.Sprintf(", %d left", *c.Remaining)
		}
		if c.Claimed {
			line += " [claimed]"
		}
		fmt.Fprintln(w, line)
	}
}

type favoritesView struct {
	Products []int64 `json:"products" yaml:"products"`
}

func (v favoritesView) renderText(w io.Writer) {
	if len(v.Products) == 0 {
		fmt.Fprintln(w, "no favorites")
		return
	}
	for _, id := range v.Products {
		fmt.Fprintf(w, "#%d\n", id)
	}
}

type notificationView struct {
	ID      int64  `json:"id" yaml:"id"`
	Kind    string `json:"kind" yaml:"kind"`
	Title   string `json:"title" yaml:"title"`
	Message string `json:"message" yaml:"message"`
	Unread  int    `json:"unread" yaml:"unread"`
}

func (v notificationView) renderText(w io.Writer) {
	fmt.Fprintf(w, "[notification #%d %s] %s: %s (unread %d)\n", v.ID, v.Kind, v.Title, v.Message, v.Unread)
}

type chatView struct {
	ID     int64  `json:"id" yaml:"id"`
	Sender string `json:"sender" yaml:"sender"`
	Text   string `json:"text" yaml:"text"`
	Image  string `json:"image,omitempty" yaml:"image,omitempty"`
}

func newChatView(m shopapi.ChatMessage) chatView {
	view := chatView{ID: m.ID, Sender: m.SenderName, Text: m.Message}
	if m.Image != nil {
		view.Image = *m.Image
	}
	return view
}

func (v chatView) renderText(w io.Writer) {
	if v.Image != "" {
		fmt.Fprintf(w, "[chat #%d] %s: %s <%s>\n", v.ID, v.Sender, v.Text, v.Image)
		return
	}
	fmt.Fprintf(w, "[chat #%d] %s: %s\n", v.ID, v.Sender, v.Text)
}

type stateView struct {
	Stream  string `json:"stream" yaml:"stream"`
	State   string `json:"state" yaml:"state"`
	Attempt int    `json:"attempt" yaml:"attempt"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

func (v stateView) renderText(w io.Writer) {
	if v.Error != "" {
		fmt.Fprintf(w, "[%s] %s (attempt %d): %s\n", v.Stream, v.State, v.Attempt, v.Error)
		return
	}
	fmt.Fprintf(w, "[%s] %s\n", v.Stream, v.State)
}
