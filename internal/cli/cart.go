package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/ajshoes-client/internal/bootstrap"
	"github.com/angelmondragon/ajshoes-client/internal/cart"
	"github.com/angelmondragon/ajshoes-client/internal/stock"
	"github.com/angelmondragon/ajshoes-client/pkg/enums"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
)

func NewCartCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Inspect and change the cart",
	}
	cmd.AddCommand(newCartShowCommand(root))
	cmd.AddCommand(newCartAddCommand(root))
	cmd.AddCommand(newCartQtyCommand(root))
	cmd.AddCommand(newCartRemoveCommand(root))
	cmd.AddCommand(newCartCouponsCommand(root))
	cmd.AddCommand(newCartCheckoutCommand(root))
	cmd.AddCommand(newCartCancelCommand(root))
	cmd.AddCommand(newCartPayCommand(root))
	return cmd
}

// withCart opens the app and a freshly loaded cart store.
func (o *RootOptions) withCart(cmd *cobra.Command, name string, fn func(ctx context.Context, app *bootstrap.App, store *cart.Store, out *OutputFormatter) error) error {
	return o.withApp(cmd, name, func(ctx context.Context, app *bootstrap.App, out *OutputFormatter) error {
		store, err := app.Cart()
		if err != nil {
			return err
		}
		if err := store.Reload(ctx); err != nil {
			return err
		}
		return fn(ctx, app, store, out)
	})
}

func newCartShowCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show cart lines, coupons and totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withCart(cmd, "cart.show", func(ctx context.Context, app *bootstrap.App, store *cart.Store, out *OutputFormatter) error {
				return out.Success(newCartView(store))
			})
		},
	}
}

type cartAddOptions struct {
	color    string
	size     string
	unit     string
	quantity int
}

func newCartAddCommand(root *RootOptions) *cobra.Command {
	opts := &cartAddOptions{}
	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a color/size variant of a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, err := parseID("product", args[0])
			if err != nil {
				return err
			}
			unit, err := enums.ParseSizeUnit(opts.unit)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
			}
			return root.withCart(cmd, "cart.add", func(ctx context.Context, app *bootstrap.App, store *cart.Store, out *OutputFormatter) error {
				product, err := app.Client.Product(ctx, productID)
				if err != nil {
					return err
				}
				sel := stock.NewSelector(product, store.Reserved)
				if err := sel.SetUnit(unit); err != nil {
					return err
				}
				if err := sel.SelectColor(opts.color); err != nil {
					return err
				}
				if err := sel.SelectSize(opts.size); err != nil {
					return err
				}
				if err := sel.SetQuantity(opts.quantity); err != nil {
					return err
				}
				variant, _ := sel.Variant()
				if _, err := store.Add(ctx, product, variant, sel.Quantity()); err != nil {
					return err
				}
				if err := store.Reload(ctx); err != nil {
					return err
				}
				return out.Success(newCartView(store))
			})
		},
	}
	cmd.Flags().StringVar(&opts.color, "color", "", "variant color")
	cmd.Flags().StringVar(&opts.size, "size", "", "variant size in --unit")
	cmd.Flags().StringVar(&opts.unit, "unit", "eu", "size system (eu|us|cm)")
	cmd.Flags().IntVarP(&opts.quantity, "qty", "q", 1, "quantity")
	_ = cmd.MarkFlagRequired("color")
	_ = cmd.MarkFlagRequired("size")
	return cmd
}

func newCartQtyCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "qty <line-id> <quantity>",
		Short: "Set the quantity of a cart line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lineID, err := parseID("cart line", args[0])
			if err != nil {
				return err
			}
			quantity, err := parseID("quantity", args[1])
			if err != nil {
				return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
			}
			return root.withCart(cmd, "cart.qty", func(ctx context.Context, app *bootstrap.App, store *cart.Store, out *OutputFormatter) error {
				if _, err := store.UpdateQuantity(ctx, lineID, int(quantity)); err != nil {
					return err
				}
				if err := store.Reload(ctx); err != nil {
					return err
				}
				return out.Success(newCartView(store))
			})
		},
	}
}

func newCartRemoveCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <line-id>",
		Aliases: []string{"remove"},
		Short:   "Remove a cart line",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lineID, err := parseID("cart line", args[0])
			if err != nil {
				return err
			}
			return root.withCart(cmd, "cart.rm", func(ctx context.Context, app *bootstrap.App, store *cart.Store, out *OutputFormatter) error {
				if err := store.Remove(ctx, lineID); err != nil {
					return err
				}
				if err := store.Reload(ctx); err != nil {
					return err
				}
				return out.Success(newCartView(store))
			})
		},
	}
}

func newCartCouponsCommand(root *RootOptions) *cobra.Command {
	var clearAll bool
	cmd := &cobra.Command{
		Use:   "coupons [code...]",
		Short: "Replace the applied coupon set",
		Long:  "Sends the full set of codes; the server decides which apply. With --clear every coupon is removed.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !clearAll && len(args) == 0 {
				return NewExitError(ExitCommandError, "pass coupon codes or --clear")
			}
			return root.withCart(cmd, "cart.coupons", func(ctx context.Context, app *bootstrap.App, store *cart.Store, out *OutputFormatter) error {
				var err error
				if clearAll {
					_, err = store.ClearCoupons(ctx)
				} else {
					_, err = store.MutateCoupons(ctx, args)
				}
				if err != nil {
					return err
				}
				return out.Success(newCartView(store))
			})
		},
	}
	cmd.Flags().BoolVar(&clearAll, "clear", false, "remove every applied coupon")
	cmd.AddCommand(newCouponCenterCommand(root))
	cmd.AddCommand(newCouponClaimCommand(root))
	return cmd
}

func newCouponCenterCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "center",
		Short: "List coupons on offer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withApp(cmd, "cart.coupons.center", func(ctx context.Context, app *bootstrap.App, out *OutputFormatter) error {
				center, err := app.Client.CouponCenter(ctx)
				if err != nil {
					return err
				}
				return out.Success(newCouponCenterView(center))
			})
		},
	}
}

func newCouponClaimCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "claim <coupon-id|code>",
		Short: "Claim a coupon from the center into your wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withApp(cmd, "cart.coupons.claim", func(ctx context.Context, app *bootstrap.App, out *OutputFormatter) error {
				if !app.Session.Authenticated() {
					return pkgerrors.New(pkgerrors.CodeUnauthorized, "not logged in")
				}
				center, err := app.Client.CouponCenter(ctx)
				if err != nil {
					return err
				}
				target, err := findCenterCoupon(center, args[0])
				if err != nil {
					return err
				}
				if err := app.Client.ClaimCoupon(ctx, target.ID); err != nil {
					return err
				}
				return out.Success(messageView{Message: fmt.Sprintf("coupon %s claimed", target.Code)})
			})
		},
	}
}

// findCenterCoupon matches ref against coupon ids first, then codes.
func findCenterCoupon(center []shopapi.CenterCoupon, ref string) (shopapi.CenterCoupon, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		for _, c := range center {
			if c.ID == id {
				return c, nil
			}
		}
	}
	for _, c := range center {
		if strings.EqualFold(c.Code, ref) {
			return c, nil
		}
	}
	return shopapi.CenterCoupon{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("coupon %q is not on offer", ref))
}

type checkoutOptions struct {
	address int64
	carrier string
	only    []string
}

func newCartCheckoutCommand(root *RootOptions) *cobra.Command {
	opts := &checkoutOptions{}
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Order the selected cart lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withCart(cmd, "cart.checkout", func(ctx context.Context, app *bootstrap.App, store *cart.Store, out *OutputFormatter) error {
				if len(opts.only) > 0 {
					store.SetAll(false)
					for _, raw := range opts.only {
						id, err := parseID("cart line", raw)
						if err != nil {
							return err
						}
						if _, err := store.Toggle(id); err != nil {
							return err
						}
					}
				}
				result, err := store.Checkout(ctx, opts.address, opts.carrier)
				if err != nil {
					return err
				}
				return out.Success(newOrderView(result))
			})
		},
	}
	cmd.Flags().Int64Var(&opts.address, "address", 0, "shipping address id (default address when 0)")
	cmd.Flags().StringVar(&opts.carrier, "carrier", shopapi.DefaultCarrier, "shipping carrier")
	cmd.Flags().StringSliceVar(&opts.only, "only", nil, "check out only these line ids")
	return cmd
}

func newCartCancelCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <order-id>",
		Short: "Cancel an unpaid order and restore its items to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID, err := parseID("order", args[0])
			if err != nil {
				return err
			}
			return root.withCart(cmd, "cart.cancel", func(ctx context.Context, app *bootstrap.App, store *cart.Store, out *OutputFormatter) error {
				if err := store.CancelOrder(ctx, orderID); err != nil {
					return err
				}
				return out.Success(newCartView(store))
			})
		},
	}
}

func newCartPayCommand(root *RootOptions) *cobra.Command {
	var slip string
	cmd := &cobra.Command{
		Use:   "pay <order-id>",
		Short: "Upload a bank-transfer payment slip for an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID, err := parseID("order", args[0])
			if err != nil {
				return err
			}
			f, err := os.Open(slip)
			if err != nil {
				return WrapExitError(ExitCommandError, "open payment slip", err)
			}
			defer f.Close()
			return root.withApp(cmd, "cart.pay", func(ctx context.Context, app *bootstrap.App, out *OutputFormatter) error {
				if err := app.Client.UploadPaymentSlip(ctx, orderID, filepath.Base(slip), f); err != nil {
					return err
				}
				return out.Success(messageView{Message: "payment slip uploaded, awaiting verification"})
			})
		},
	}
	cmd.Flags().StringVar(&slip, "slip", "", "path to the payment slip image")
	_ = cmd.MarkFlagRequired("slip")
	return cmd
}
