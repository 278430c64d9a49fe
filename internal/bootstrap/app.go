// Package bootstrap turns a config.Config into the wired client: state
// backend, session, REST client, metrics, dedup window and reporter.
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/ajshoes-client/internal/cart"
	"github.com/angelmondragon/ajshoes-client/internal/chat"
	"github.com/angelmondragon/ajshoes-client/internal/favorites"
	"github.com/angelmondragon/ajshoes-client/internal/notifications"
	"github.com/angelmondragon/ajshoes-client/internal/realtime"
	"github.com/angelmondragon/ajshoes-client/internal/reporting"
	"github.com/angelmondragon/ajshoes-client/pkg/auth/session"
	"github.com/angelmondragon/ajshoes-client/pkg/config"
	"github.com/angelmondragon/ajshoes-client/pkg/db"
	"github.com/angelmondragon/ajshoes-client/pkg/dedup"
	"github.com/angelmondragon/ajshoes-client/pkg/logger"
	"github.com/angelmondragon/ajshoes-client/pkg/metrics"
	"github.com/angelmondragon/ajshoes-client/pkg/redis"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
	"github.com/angelmondragon/ajshoes-client/pkg/state"
)

// App owns every long-lived client dependency. Close releases them.
type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	State    state.Store
	Session  *session.Session
	Client   *shopapi.Client
	Registry *prometheus.Registry
	Realtime *metrics.RealtimeMetrics
	Mutation *metrics.MutationMetrics
	Dedup    dedup.Window
	Reporter *reporting.Reporter
	Boundary *reporting.Boundary

	closers []func() error
}

// New wires the client from cfg. Partial failures release whatever was
// already opened.
func New(ctx context.Context, cfg *config.Config, logg *logger.Logger) (_ *App, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	app := &App{Config: cfg, Logger: logg}
	defer func() {
		if err != nil {
			err = multierr.Append(err, app.Close())
		}
	}()

	kv, redisClient, err := app.openState(ctx)
	if err != nil {
		return nil, err
	}
	app.State = kv

	app.Session = session.New(session.NewKVStore(kv))
	if err := app.Session.Load(ctx); err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	opts := []shopapi.Option{
		shopapi.WithLogger(logg),
		shopapi.WithRefreshSkew(cfg.API.RefreshSkew),
	}
	if cfg.API.RequestTimeout > 0 {
		opts = append(opts, shopapi.WithTimeout(cfg.API.RequestTimeout))
	}
	app.Client, err = shopapi.NewClient(cfg.API.BaseURL, app.Session, opts...)
	if err != nil {
		return nil, err
	}

	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(collectors.NewGoCollector())
	app.Realtime = metrics.NewRealtimeMetrics(app.Registry)
	app.Mutation = metrics.NewMutationMetrics(app.Registry)

	if redisClient != nil {
		app.Dedup, err = dedup.NewRedis(redisClient, cfg.Realtime.DedupTTL)
		if err != nil {
			return nil, err
		}
	} else {
		app.Dedup = dedup.NewMemory(cfg.Realtime.DedupTTL, cfg.Realtime.DedupCapacity)
	}

	app.Reporter, err = reporting.NewReporter(reporting.ServiceParams{
		Sink:     app.Client,
		Logger:   logg,
		Window:   cfg.Reporting.DedupWindow,
		Disabled: !cfg.Reporting.Enabled,
	})
	if err != nil {
		return nil, err
	}
	app.Boundary = reporting.NewBoundary(app.Reporter, logg)
	app.closers = append(app.closers, func() error {
		app.Reporter.Flush(context.Background())
		return nil
	})
	return app, nil
}

// openState picks the persistence backend. Keys are namespaced by profile.
func (a *App) openState(ctx context.Context) (state.Store, *redis.Client, error) {
	cfg := a.Config
	profile := cfg.State.Profile
	switch strings.ToLower(cfg.State.Backend) {
	case config.StateBackendMemory:
		return state.WithPrefix(state.NewMemory(), profile), nil, nil
	case config.StateBackendRedis:
		client, err := redis.New(ctx, cfg.Redis, a.Logger)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return state.WithPrefix(client, client.StateKey(profile)), client, nil
	default:
		client, err := db.New(ctx, cfg.State, a.Logger)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap state database: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		store := db.NewStateStore(client)
		if n, err := store.PurgeExpired(ctx); err != nil {
			a.Logger.Warn(ctx, "purging expired state: "+err.Error())
		} else if n > 0 {
			a.Logger.Debug(a.Logger.WithField(ctx, "purged", n), "expired state entries removed")
		}
		return state.WithPrefix(store, profile), nil, nil
	}
}

// Close runs closers in reverse order and aggregates their errors.
func (a *App) Close() error {
	var errs error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, a.closers[i]())
	}
	a.closers = nil
	return errs
}

func (a *App) Cart() (*cart.Store, error) {
	return cart.NewStore(cart.ServiceParams{API: a.Client, Logger: a.Logger, Metrics: a.Mutation})
}

func (a *App) Favorites() (*favorites.Store, error) {
	return favorites.NewStore(favorites.ServiceParams{API: a.Client, Logger: a.Logger, Metrics: a.Mutation})
}

func (a *App) Notifications() (*notifications.Feed, error) {
	return notifications.NewFeed(notifications.ServiceParams{
		API:     a.Client,
		Dedup:   a.Dedup,
		Cursor:  a.State,
		Dialer:  realtime.NewWSDialer(a.Config.Realtime.HandshakeTimeout),
		Token:   a.Session.Access,
		Config:  a.Config.Realtime,
		Logger:  a.Logger,
		Metrics: a.Realtime,
	})
}

// Chat opens roomID, or the customer's own room when roomID is zero.
func (a *App) Chat(roomID int64) (*chat.Room, error) {
	return chat.NewRoom(chat.ServiceParams{
		API:     a.Client,
		RoomID:  roomID,
		Dialer:  realtime.NewWSDialer(a.Config.Realtime.HandshakeTimeout),
		Token:   a.Session.Access,
		Config:  a.Config.Realtime,
		Logger:  a.Logger,
		Metrics: a.Realtime,
	})
}
