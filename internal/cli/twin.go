package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/ajshoes-client/api/routes"
	"github.com/angelmondragon/ajshoes-client/internal/reporting"
	"github.com/angelmondragon/ajshoes-client/internal/twin"
	"github.com/angelmondragon/ajshoes-client/pkg/auth"
)

func NewTwinCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "twin",
		Short: "Local storefront backend for development and tests",
	}
	cmd.AddCommand(newTwinServeCommand(root))
	return cmd
}

type twinServeOptions struct {
	addr   string
	noSeed bool
}

func newTwinServeCommand(root *RootOptions) *cobra.Command {
	opts := &twinServeOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST and websocket API from an in-memory backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logg, err := root.config()
			if err != nil {
				return err
			}
			if opts.addr == "" {
				opts.addr = cfg.Twin.Addr
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			return reporting.NewBoundary(nil, logg).Run(ctx, "twin.serve", func(ctx context.Context) error {
				backend, err := twin.NewBackend(twin.Params{
					Tokens: auth.TokenConfig{
						Secret:    cfg.Twin.JWTSecret,
						Issuer:    cfg.Twin.Issuer,
						AccessTTL: cfg.Twin.AccessTTL,
					},
					Logger: logg,
				})
				if err != nil {
					return WrapExitError(ExitCommandError, "twin backend", err)
				}
				if !opts.noSeed {
					fx, err := twin.Seed(backend)
					if err != nil {
						return WrapExitError(ExitCommandError, "seed twin", err)
					}
					logg.Info(logg.WithFields(ctx, map[string]any{
						"customer": fx.Customer.Username,
						"products": len(fx.Products),
					}), "twin seeded")
				}

				listener, err := net.Listen("tcp", opts.addr)
				if err != nil {
					return WrapExitError(ExitCommandError, "listen", err)
				}
				srv := &http.Server{
					Handler:           routes.NewRouter(cfg, logg, backend),
					ReadHeaderTimeout: 5 * time.Second,
				}

				out := root.formatter(cmd)
				if err := out.Success(messageView{Message: "twin listening on http://" + listener.Addr().String()}); err != nil {
					return err
				}

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), statusShutdownTimeout)
					defer cancel()
					logg.Info(ctx, "twin shutting down")
					return srv.Shutdown(shutdownCtx)
				})
				return g.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (default AJSHOES_TWIN_ADDR)")
	cmd.Flags().BoolVar(&opts.noSeed, "no-seed", false, "start with an empty catalog")
	return cmd
}
