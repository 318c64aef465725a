package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/pawpass-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/pawpass-backend/api/controllers/cart"
	vouchercontrollers "github.com/angelmondragon/pawpass-backend/api/controllers/vouchers"
	webhookcontrollers "github.com/angelmondragon/pawpass-backend/api/controllers/webhooks"
	"github.com/angelmondragon/pawpass-backend/api/middleware"
	"github.com/angelmondragon/pawpass-backend/pkg/config"
	"github.com/angelmondragon/pawpass-backend/pkg/logger"
)

// Dependencies carries everything the HTTP surface calls into.
type Dependencies struct {
	Health   map[string]controllers.Pinger
	Metrics  http.Handler
	Services controllers.ServiceLister
	Cart     cartcontrollers.Service
	Checkout controllers.CheckoutService
	Orders   controllers.OrderReader
	Vouchers vouchercontrollers.Service

	StripeWebhook      webhookcontrollers.StripeWebhookService
	StripeClient       webhookcontrollers.StripeSigner
	StripeWebhookGuard webhookcontrollers.WebhookGuard
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.PublicBaseURL()),
	)

	cartSession := middleware.CartSession(cfg.Cart.CookieName, cfg.Cart.TTL, cfg.App.IsProd(), logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Health))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
		r.Get("/services", controllers.PublicServices(deps.Services, logg))
	})

	r.Post("/webhooks/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhook, deps.StripeClient, deps.StripeWebhookGuard, logg))

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))
		r.Use(cartSession)
		r.Get("/", cartcontrollers.CartFetch(deps.Cart, logg))
		r.Post("/items", cartcontrollers.CartAddItem(deps.Cart, logg))
		r.Delete("/items/{serviceId}", cartcontrollers.CartRemoveItem(deps.Cart, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Get("/ping", controllers.PrivatePing())

		r.With(cartSession).Post("/checkout", controllers.CheckoutCreate(deps.Checkout, logg))
		r.Get("/checkout/success", controllers.CheckoutSuccess(deps.Checkout, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.OrdersList(deps.Orders, logg))
			r.Get("/{orderId}", controllers.OrderInvoice(deps.Orders, logg))
		})
		r.Route("/vouchers", func(r chi.Router) {
			r.Get("/", vouchercontrollers.Wallet(deps.Vouchers, logg))
			r.Get("/{code}", vouchercontrollers.Detail(deps.Vouchers, logg))
		})
	})

	r.Route("/voucher/{code}", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Get("/qr", vouchercontrollers.QR(deps.Vouchers, logg))
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireStaff(logg))
			r.Get("/redeem", vouchercontrollers.RedeemConfirm(deps.Vouchers, logg))
			r.Post("/redeem", vouchercontrollers.Redeem(deps.Vouchers, logg))
		})
	})

	return r
}
