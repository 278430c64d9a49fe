package cli

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/ajshoes-client/internal/bootstrap"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
)

type loginOptions struct {
	username string
	password string
}

func NewLoginCommand(root *RootOptions) *cobra.Command {
	opts := &loginOptions{}
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session for this profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.password == "" {
				// Read from stdin so the password stays out of shell history.
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return pkgerrors.New(pkgerrors.CodeValidation, "password is required")
				}
				opts.password = strings.TrimRight(line, "\r\n")
			}
			return root.withApp(cmd, "login", func(ctx context.Context, app *bootstrap.App, out *OutputFormatter) error {
				if _, err := app.Client.Login(ctx, opts.username, opts.password); err != nil {
					return err
				}
				me, err := app.Client.Me(ctx)
				if err != nil {
					return err
				}
				return out.Success(newUserView(me))
			})
		},
	}
	cmd.Flags().StringVarP(&opts.username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&opts.password, "password", "p", "", "account password (read from stdin when empty)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func NewLogoutCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session for this profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withApp(cmd, "logout", func(ctx context.Context, app *bootstrap.App, out *OutputFormatter) error {
				if err := app.Client.Logout(ctx); err != nil {
					return err
				}
				return out.Success(messageView{Message: "logged out"})
			})
		},
	}
}

func NewWhoamiCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withApp(cmd, "whoami", func(ctx context.Context, app *bootstrap.App, out *OutputFormatter) error {
				if !app.Session.Authenticated() {
					return pkgerrors.New(pkgerrors.CodeUnauthorized, "not logged in")
				}
				me, err := app.Client.Me(ctx)
				if err != nil {
					return err
				}
				return out.Success(newUserView(me))
			})
		},
	}
}

func parseID(kind, raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid %s id %q", kind, raw))
	}
	return id, nil
}
