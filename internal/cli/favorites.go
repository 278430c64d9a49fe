package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/ajshoes-client/internal/bootstrap"
	"github.com/angelmondragon/ajshoes-client/internal/favorites"
)

func NewFavoritesCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "favorites",
		Aliases: []string{"fav"},
		Short:   "List and toggle favorite products",
	}
	cmd.AddCommand(newFavoritesListCommand(root))
	cmd.AddCommand(newFavoritesToggleCommand(root))
	return cmd
}

func (o *RootOptions) withFavorites(cmd *cobra.Command, name string, fn func(ctx context.Context, store *favorites.Store, out *OutputFormatter) error) error {
	return o.withApp(cmd, name, func(ctx context.Context, app *bootstrap.App, out *OutputFormatter) error {
		store, err := app.Favorites()
		if err != nil {
			return err
		}
		if err := store.Reload(ctx); err != nil {
			return err
		}
		return fn(ctx, store, out)
	})
}

func newFavoritesListCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List favorite product ids",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withFavorites(cmd, "favorites.ls", func(ctx context.Context, store *favorites.Store, out *OutputFormatter) error {
				return out.Success(favoritesView{Products: store.List()})
			})
		},
	}
}

func newFavoritesToggleCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <product-id>",
		Short: "Add or remove a product from favorites",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, err := parseID("product", args[0])
			if err != nil {
				return err
			}
			return root.withFavorites(cmd, "favorites.toggle", func(ctx context.Context, store *favorites.Store, out *OutputFormatter) error {
				on, err := store.Toggle(ctx, productID)
				if err != nil {
					return err
				}
				msg := fmt.Sprintf("product #%d removed from favorites", productID)
				if on {
					msg = fmt.Sprintf("product #%d added to favorites", productID)
				}
				return out.Success(messageView{Message: msg})
			})
		},
	}
}
