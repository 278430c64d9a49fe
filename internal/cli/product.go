package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/ajshoes-client/internal/bootstrap"
	"github.com/angelmondragon/ajshoes-client/internal/stock"
	"github.com/angelmondragon/ajshoes-client/pkg/enums"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
)

func NewProductCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Browse products",
	}
	cmd.AddCommand(newProductShowCommand(root))
	return cmd
}

type productShowOptions struct {
	unit  string
	color string
}

func newProductShowCommand(root *RootOptions) *cobra.Command {
	opts := &productShowOptions{}
	cmd := &cobra.Command{
		Use:   "show <product-id>",
		Short: "Show a product with per-variant availability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("product", args[0])
			if err != nil {
				return err
			}
			unit, err := enums.ParseSizeUnit(opts.unit)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
			}
			return root.withApp(cmd, "product.show", func(ctx context.Context, app *bootstrap.App, out *OutputFormatter) error {
				product, err := app.Client.Product(ctx, id)
				if err != nil {
					return err
				}

				reserved := func(int64) int { return 0 }
				favorite := false
				if app.Session.Authenticated() {
					store, err := app.Cart()
					if err != nil {
						return err
					}
					if err := store.Reload(ctx); err != nil {
						return err
					}
					reserved = store.Reserved

					favs, err := app.Favorites()
					if err != nil {
						return err
					}
					if err := favs.Reload(ctx); err != nil {
						return err
					}
					favorite = favs.IsFavorite(product.ID)
				}

				sel := stock.NewSelector(product, reserved)
				if err := sel.SetUnit(unit); err != nil {
					return err
				}
				if opts.color != "" {
					if err := sel.SelectColor(opts.color); err != nil {
						return err
					}
				}
				return out.Success(newProductView(product, sel, reserved, favorite))
			})
		},
	}
	cmd.Flags().StringVar(&opts.unit, "unit", "eu", "size system (eu|us|cm)")
	cmd.Flags().StringVar(&opts.color, "color", "", "only list sizes for this color")
	return cmd
}
