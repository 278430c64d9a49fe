package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/ajshoes-client/api/controllers"
	"github.com/angelmondragon/ajshoes-client/api/middleware"
	"github.com/angelmondragon/ajshoes-client/internal/twin"
	"github.com/angelmondragon/ajshoes-client/pkg/config"
	"github.com/angelmondragon/ajshoes-client/pkg/logger"
)

// NewRouter mounts the storefront surface served by the twin backend: the
// REST routes the client SDK calls and the two websocket channels.
func NewRouter(cfg *config.Config, logg *logger.Logger, b *twin.Backend) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Twin.CORSOrigins...),
	)

	loginPolicy := middleware.LoginRateLimitPolicy{
		Window:        cfg.Twin.LoginWindow,
		IPLimit:       cfg.Twin.LoginIPLimit,
		UsernameLimit: cfg.Twin.LoginUsernameLimit,
	}

	r.Get("/healthz", controllers.HealthLive(cfg.App.Env))

	r.Route("/ws", func(r chi.Router) {
		r.Get("/notifications/", controllers.NotificationSocket(b, logg))
		r.Get("/chat/{roomID}/", controllers.ChatSocket(b, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.LoginRateLimit(loginPolicy, logg)).Post("/token/", controllers.AuthLogin(b, logg))
			r.Post("/refresh/", controllers.AuthRefresh(b, logg))
		})

		r.Post("/logs/frontend/", controllers.FrontendLogSink(b, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(b))
			r.Get("/catalog/products/", controllers.ProductList(b))
			r.Get("/catalog/products/{productID}/", controllers.ProductDetail(b, logg))
			r.Get("/coupons/center/", controllers.CouponCenter(b))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(b, logg))

			r.Get("/accounts/me/", controllers.AccountMe(b, logg))
			r.Get("/coupons/mine/", controllers.CouponsMine(b, logg))
			r.Post("/coupons/{couponID}/claim/", controllers.CouponClaim(b, logg))

			r.Route("/orders", func(r chi.Router) {
				r.Route("/cart", func(r chi.Router) {
					r.Get("/", controllers.CartDetail(b, logg))
					r.Post("/", controllers.CartAdd(b, logg))
					r.Post("/apply-coupon/", controllers.CartApplyCoupons(b, logg))
					r.Post("/checkout/", controllers.CartCheckout(b, logg))
					r.Patch("/{lineID}/", controllers.CartUpdate(b, logg))
					r.Delete("/{lineID}/", controllers.CartDelete(b, logg))
				})
				r.Get("/addresses/", controllers.AddressList(b, logg))
				r.Get("/history/", controllers.OrderHistory(b, logg))
				r.Route("/orders/{orderID}", func(r chi.Router) {
					r.Get("/", controllers.OrderDetail(b, logg))
					r.Post("/upload-payment/", controllers.OrderUploadPayment(b, logg))
					r.Post("/cancel/", controllers.OrderCancel(b, logg))
				})
				r.Route("/favorites", func(r chi.Router) {
					r.Get("/", controllers.FavoriteList(b, logg))
					r.Post("/", controllers.FavoriteAdd(b, logg))
					r.Delete("/", controllers.FavoriteDelete(b, logg))
					r.Delete("/{favoriteID}/", controllers.FavoriteDelete(b, logg))
				})
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.NotificationList(b, logg))
				r.Post("/mark-read/", controllers.NotificationMarkRead(b, logg))
				r.Post("/mark-all-read/", controllers.NotificationMarkAllRead(b, logg))
			})

			r.Route("/chat", func(r chi.Router) {
				r.Get("/my-room/", controllers.ChatMyRoom(b, logg))
				r.Get("/rooms/{roomID}/messages/", controllers.ChatRoomMessages(b, logg))
				r.Post("/rooms/{roomID}/send/", controllers.ChatSend(b, logg))
			})
		})
	})

	return r
}
