package twin

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/ajshoes-client/pkg/enums"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
	"github.com/shopspring/decimal"
)

// Demo credentials created by Seed.
const (
	DemoUsername  = "demo"
	DemoPassword  = "demo-pass-123"
	AdminUsername = "admin"
	AdminPassword = "admin-pass-123"
)

// Fixtures names what Seed created.
type Fixtures struct {
	Customer shopapi.User
	Admin    shopapi.User
	Products []shopapi.Product
	Address  shopapi.Address
}

// Seed loads a small catalog, a customer and an admin, coupons the customer
// has claimed plus one left to claim, and a default address.
func Seed(b *Backend) (Fixtures, error) {
	var fx Fixtures
	var err error
	if fx.Customer, err = b.AddUser(DemoUsername, "demo@ajshoes.test", DemoPassword, enums.UserRoleCustomer); err != nil {
		return fx, err
	}
	if fx.Admin, err = b.AddUser(AdminUsername, "admin@ajshoes.test", AdminPassword, enums.UserRoleSuperAdmin); err != nil {
		return fx, err
	}

	brand, _ := json.Marshal(map[string]any{"id": 1, "name": "AJ"})
	fx.Products = append(fx.Products,
		b.AddProduct(shopapi.Product{
			Brand:       brand,
			Name:        "Air Runner",
			Description: "Everyday running shoe.",
			BasePrice:   decimal.NewFromInt(300),
			Images: []shopapi.ProductImage{
				{ImageURL: "/media/products/air-runner-side.jpg"},
				{ImageURL: "/media/products/air-runner.jpg", IsCover: true},
			},
			Variants: []shopapi.Variant{
				{Color: "Black", SizeEU: "42", SizeUS: "8.5", SizeCM: "26.5", Stock: 3},
				{Color: "Black", SizeEU: "43", SizeUS: "9.5", SizeCM: "27.5", Stock: 0},
				{Color: "White", SizeEU: "41", SizeUS: "8", SizeCM: "26", Stock: 5},
				{Color: "White", SizeEU: "42", SizeUS: "8.5", SizeCM: "26.5", Stock: 2},
			},
		}),
		b.AddProduct(shopapi.Product{
			Brand:       brand,
			Name:        "Court Classic",
			Description: "Low-top leather sneaker.",
			BasePrice:   decimal.NewFromInt(1000),
			SalePercent: 20,
			Images:      []shopapi.ProductImage{{File: "/media/products/court-classic.jpg"}},
			Variants: []shopapi.Variant{
				{Color: "Red", SizeEU: "40", SizeCM: "25.5", Stock: 4},
				{Color: "Red", SizeEU: "44", SizeCM: "28", Stock: 1},
			},
		}),
	)

	validTo := b.now().Add(30 * 24 * time.Hour)
	b.AddCoupon(shopapi.Coupon{Code: "SAVE10", DiscountType: enums.DiscountTypePercent, PercentOff: 10, MinSpend: decimal.NewFromInt(500), ValidTo: &validTo}, fx.Customer.ID)
	b.AddCoupon(shopapi.Coupon{Code: "SAVE25", DiscountType: enums.DiscountTypePercent, PercentOff: 25, MinSpend: decimal.NewFromInt(3000), ValidTo: &validTo}, fx.Customer.ID)
	b.AddCoupon(shopapi.Coupon{Code: "FREESHIP", DiscountType: enums.DiscountTypeFreeShipping, MinSpend: decimal.Zero}, fx.Customer.ID)
	b.AddCoupon(shopapi.Coupon{Code: "WELCOME15", DiscountType: enums.DiscountTypePercent, PercentOff: 15, MinSpend: decimal.NewFromInt(1000), MaxUses: 100, ValidTo: &validTo})

	fx.Address = b.AddAddress(fx.Customer.ID, shopapi.Address{
		FullName:   "Demo Customer",
		Phone:      "0800000000",
		Address:    "1 Sukhumvit Rd",
		Province:   "Bangkok",
		PostalCode: "10110",
		IsDefault:  true,
	})
	b.SetPaymentConfig(shopapi.PaymentConfig{
		BankName:      "Kasikorn",
		AccountName:   "AJ Shoes Co.",
		AccountNumber: "123-4-56789-0",
	})
	return fx, nil
}
