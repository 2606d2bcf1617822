package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vasiliy-maslov/marketplace-checkout/internal/metrics"
)

type RouterConfig struct {
	ServiceName       string
	ServiceRoleSecret string
	RequestTimeout    time.Duration

	Checkout      *CheckoutHandler
	Webhooks      *WebhookHandler
	Orders        *OrderHandler
	Notifications *NotificationHandler
}

func NewRouter(cfg RouterConfig) *chi.Mux {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(metrics.Middleware(cfg.ServiceName))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondWithText(w, http.StatusOK, "OK")
	})
	router.Handle("/metrics", promhttp.Handler())

	auth := ServiceRoleAuth(cfg.ServiceRoleSecret)
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
		if cfg.Checkout != nil {
			cfg.Checkout.RegisterRoutes(r, auth)
		}
		if cfg.Webhooks != nil {
			cfg.Webhooks.RegisterRoutes(r, auth)
		}
		if cfg.Orders != nil {
			cfg.Orders.RegisterRoutes(r, auth)
		}
		if cfg.Notifications != nil {
			cfg.Notifications.RegisterRoutes(r, auth)
		}
	})

	return router
}
