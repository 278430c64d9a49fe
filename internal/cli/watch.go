package cli

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/ajshoes-client/api/controllers"
	"github.com/angelmondragon/ajshoes-client/api/middleware"
	"github.com/angelmondragon/ajshoes-client/api/responses"
	"github.com/angelmondragon/ajshoes-client/internal/bootstrap"
	"github.com/angelmondragon/ajshoes-client/internal/chat"
	"github.com/angelmondragon/ajshoes-client/internal/notifications"
	"github.com/angelmondragon/ajshoes-client/internal/realtime"
	pkgerrors "github.com/angelmondragon/ajshoes-client/pkg/errors"
	"github.com/angelmondragon/ajshoes-client/pkg/shopapi"
)

const statusShutdownTimeout = 5 * time.Second

type watchOptions struct {
	chat       bool
	room       int64
	statusAddr string
	duration   time.Duration
}

func NewWatchCommand(root *RootOptions) *cobra.Command {
	opts := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream notifications, and optionally a chat room, until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addrSet := cmd.Flags().Changed("status-addr")
			return root.withApp(cmd, "watch", func(ctx context.Context, app *bootstrap.App, out *OutputFormatter) error {
				if !addrSet {
					opts.statusAddr = app.Config.Metrics.Addr
				}
				return runWatch(ctx, app, out, opts)
			})
		},
	}
	cmd.Flags().BoolVar(&opts.chat, "chat", false, "also join your support chat room")
	cmd.Flags().Int64Var(&opts.room, "room", 0, "join this chat room id instead of your own")
	cmd.Flags().StringVar(&opts.statusAddr, "status-addr", "", "listen address for /healthz, /status and /metrics (empty disables; default AJSHOES_METRICS_ADDR)")
	cmd.Flags().DurationVar(&opts.duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	return cmd
}

// watcher serialises output from the feed and room callbacks.
type watcher struct {
	mu  sync.Mutex
	out *OutputFormatter
	app *bootstrap.App
}

func (w *watcher) emit(ctx context.Context, v any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.out.Event(v); err != nil {
		w.app.Logger.Warn(ctx, "writing event: "+err.Error())
	}
}

func (w *watcher) onState(ctx context.Context) func(realtime.StateChange) {
	return func(c realtime.StateChange) {
		view := stateView{Stream: c.Stream, State: string(c.State), Attempt: c.Attempt}
		if c.Err != nil {
			view.Error = c.Err.Error()
		}
		w.emit(ctx, view)
	}
}

func runWatch(ctx context.Context, app *bootstrap.App, out *OutputFormatter, opts *watchOptions) error {
	if !app.Session.Authenticated() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "not logged in")
	}
	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}
	w := &watcher{out: out, app: app}

	feed, err := app.Notifications()
	if err != nil {
		return err
	}
	defer closeStream(ctx, app, "notifications", feed.Close)
	feed.OnState(w.onState(ctx))
	feed.Subscribe(func(n shopapi.Notification) {
		w.emit(ctx, notificationView{ID: n.ID, Kind: string(n.Kind), Title: n.Title, Message: n.Message, Unread: feed.UnreadCount()})
	})
	if err := feed.Start(ctx); err != nil {
		return err
	}
	for _, n := range feed.Recent() {
		w.emit(ctx, notificationView{ID: n.ID, Kind: string(n.Kind), Title: n.Title, Message: n.Message, Unread: feed.UnreadCount()})
	}

	var room *chat.Room
	if opts.chat || opts.room > 0 {
		room, err = app.Chat(opts.room)
		if err != nil {
			return err
		}
		defer closeStream(ctx, app, "chat", room.Close)
		room.OnState(w.onState(ctx))
		room.OnMessage(func(m shopapi.ChatMessage) { w.emit(ctx, newChatView(m)) })
		room.OnError(func(code string) { w.emit(ctx, messageView{Message: "chat error: " + code}) })
		if err := room.Connect(ctx); err != nil {
			return err
		}
		for _, m := range room.Messages() {
			w.emit(ctx, newChatView(m))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if opts.statusAddr != "" {
		srv := &http.Server{
			Addr:              opts.statusAddr,
			Handler:           statusRouter(app, feed, room),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			app.Logger.Info(app.Logger.WithField(gctx, "addr", opts.statusAddr), "status server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return WrapExitError(ExitCommandError, "status server", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), statusShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	return g.Wait()
}

func closeStream(ctx context.Context, app *bootstrap.App, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		app.Logger.Error(app.Logger.WithStream(ctx, name), "closing stream", err)
	}
}

type streamStatus struct {
	State   string `json:"state"`
	Attempt int    `json:"attempt"`
	Polling bool   `json:"polling"`
	Error   string `json:"error,omitempty"`
}

func newStreamStatus(s realtime.Status) streamStatus {
	st := streamStatus{State: string(s.State), Attempt: s.Attempt, Polling: s.Polling}
	if s.LastError != nil {
		st.Error = s.LastError.Error()
	}
	return st
}

func statusRouter(app *bootstrap.App, feed *notifications.Feed, room *chat.Room) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer(app.Logger))
	r.Get("/healthz", controllers.HealthLive(app.Config.App.Env))
	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		body := map[string]any{
			"notifications": newStreamStatus(feed.Status()),
			"unread":        feed.UnreadCount(),
		}
		if room != nil {
			body["chat"] = newStreamStatus(room.Status())
		}
		responses.WriteSuccess(w, body)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{}))
	return r
}
