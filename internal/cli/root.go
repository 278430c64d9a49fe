// Package cli is the ajshoes command line: a thin cobra shell over the
// headless storefront client.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/ajshoes-client/internal/bootstrap"
	"github.com/angelmondragon/ajshoes-client/pkg/config"
	"github.com/angelmondragon/ajshoes-client/pkg/logger"
)

// Loader produces the configuration and logger a command runs with.
type Loader func() (*config.Config, *logger.Logger, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "text" | "json" | "yaml"
	Profile string

	load Loader
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command; load is called once per command
// that needs the client.
func NewRootCommand(load Loader) *cobra.Command {
	opts := &RootOptions{load: load}

	cmd := &cobra.Command{
		Use:           "ajshoes",
		Short:         "AJ Shoes storefront client",
		Long:          "Headless client for the AJ Shoes storefront: session, cart, coupons, checkout, favorites and live notifications.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVar(&opts.Profile, "profile", "", "state profile (overrides AJSHOES_PROFILE)")

	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))
	cmd.AddCommand(NewWhoamiCommand(opts))
	cmd.AddCommand(NewProductCommand(opts))
	cmd.AddCommand(NewCartCommand(opts))
	cmd.AddCommand(NewOrdersCommand(opts))
	cmd.AddCommand(NewFavoritesCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewTwinCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func (o *RootOptions) config() (*config.Config, *logger.Logger, error) {
	if o.load == nil {
		return nil, nil, NewExitError(ExitCommandError, "no configuration loader")
	}
	cfg, logg, err := o.load()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "load config", err)
	}
	if o.Profile != "" {
		cfg.State.Profile = o.Profile
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return cfg, logg, nil
}

// withApp opens the client, runs fn inside its error boundary and closes the
// client afterwards.
func (o *RootOptions) withApp(cmd *cobra.Command, name string, fn func(ctx context.Context, app *bootstrap.App, out *OutputFormatter) error) error {
	cfg, logg, err := o.config()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := bootstrap.New(ctx, cfg, logg)
	if err != nil {
		return WrapExitError(ExitCommandError, "start client", err)
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil {
			logg.Error(ctx, "closing client", closeErr)
		}
	}()

	out := o.formatter(cmd)
	out.VerboseLog("profile %s, api %s", cfg.State.Profile, cfg.API.BaseURL)
	return app.Boundary.Run(ctx, name, func(ctx context.Context) error {
		return fn(ctx, app, out)
	})
}

// Execute runs cmd and renders any failure in the requested output format.
// It returns the process exit code.
func Execute(ctx context.Context, cmd *cobra.Command) int {
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	format, _ := cmd.PersistentFlags().GetString("format")
	if !isValidFormat(format) {
		format = "text"
	}
	out := &OutputFormatter{Format: format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr()}
	return out.Failure(err)
}
