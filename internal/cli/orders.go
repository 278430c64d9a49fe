package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/ajshoes-client/internal/bootstrap"
)

func NewOrdersCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Order history",
	}
	cmd.AddCommand(newOrdersListCommand(root))
	return cmd
}

func newOrdersListCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List orders, newest first",
		Long:    "Lists placed orders with their lines. Orders awaiting payment can be paid with `cart pay` or cancelled with `cart cancel`.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withApp(cmd, "orders.ls", func(ctx context.Context, app *bootstrap.App, out *OutputFormatter) error {
				orders, err := app.Client.Orders(ctx)
				if err != nil {
					return err
				}
				return out.Success(newOrdersView(orders))
			})
		},
	}
}
