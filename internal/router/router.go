package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/laundrix/api/internal/auth"
	"github.com/laundrix/api/internal/config"
	"github.com/laundrix/api/internal/handler"
	mw "github.com/laundrix/api/internal/middleware"
	"github.com/laundrix/api/internal/ws"
)

// Services are the business services the routes call.
type Services struct {
	Orders    handler.OrderServicer
	Payments  handler.PaymentServicer
	Reconcile handler.Reconciler
	Wallets   handler.WalletServicer
	Customers handler.CustomerStore
}

// New creates a Chi router with all application routes wired up.
// Applies authentication and role-based middleware as needed.
func New(cfg *config.Config, svc Services, hub *ws.Hub, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(mw.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	orderHandler := handler.NewOrderHandler(svc.Orders)
	paymentHandler := handler.NewPaymentHandler(svc.Payments, svc.Reconcile, cfg.Tap.WebhookSecret)
	walletHandler := handler.NewWalletHandler(svc.Wallets)

	// Gateway callback (authenticated by its signature)
	paymentHandler.RegisterWebhookRoutes(r)

	// Tracking feed (handles auth internally via query param)
	if hub != nil {
		r.Get("/ws/orders", func(w http.ResponseWriter, r *http.Request) {
			ws.ServeWS(hub, cfg.JWTSecret, w, r)
		})
	}

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		r.Route("/orders", func(r chi.Router) {
			orderHandler.RegisterRoutes(r)
			paymentHandler.RegisterOrderRoutes(r)

			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(auth.RoleAdmin))
				paymentHandler.RegisterOrderAdminRoutes(r)
			})
		})

		// Customer's own wallet
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(auth.RoleCustomer))
			r.Route("/wallet", walletHandler.RegisterCustomerRoutes)
		})

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(auth.RoleAdmin))
			r.Route("/issues", orderHandler.RegisterIssueRoutes)
			r.Route("/payments", paymentHandler.RegisterAdminRoutes)
			r.Route("/wallets", walletHandler.RegisterAdminRoutes)
			if svc.Customers != nil {
				r.Route("/customers", handler.NewCustomerHandler(svc.Customers).RegisterRoutes)
			}
		})
	})

	logger.Info("router initialized")
	return r
}
