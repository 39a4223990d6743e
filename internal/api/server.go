// Package api exposes orders, carts and notification operations over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"storefront-workers/internal/cart"
	"storefront-workers/internal/common/logger"
	"storefront-workers/internal/models"
	"storefront-workers/internal/notification"
	"storefront-workers/internal/orders"
	"storefront-workers/internal/scheduler"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type OrderService interface {
	Get(ctx context.Context, actor *models.Principal, orderNumber string) (*models.Order, error)
	Create(ctx context.Context, customer *models.Principal, in orders.CreateOrderInput) (*models.Order, error)
	Cancel(ctx context.Context, actor *models.Principal, orderNumber string) (*models.Order, error)
	Update(ctx context.Context, actor *models.Principal, orderNumber string, in orders.UpdateOrderInput) (*models.Order, error)
	SetStock(ctx context.Context, actor *models.Principal, productID int64, quantity int) error
	List(ctx context.Context, actor *models.Principal, f models.OrderFilter) ([]models.Order, error)
	Analytics(ctx context.Context, actor *models.Principal, from, to *time.Time) (*models.OrderAnalytics, error)
}

type CartStore interface {
	Get(ctx context.Context, session string) (*cart.Cart, error)
	Add(ctx context.Context, session string, productID int64, qty int) error
	Update(ctx context.Context, session string, productID int64, qty int) error
	Remove(ctx context.Context, session string, productID int64) error
	Clear(ctx context.Context, session string) error
	Checkout(ctx context.Context, session string, customer *models.Principal, creator cart.OrderCreator, in cart.CheckoutInput) (*models.Order, error)
}

type Dispatcher interface {
	Send(ctx context.Context, recipient *models.Principal, notificationType models.NotificationType, vars map[string]interface{}, channel *models.Channel) notification.DispatchResult
}

type RetryRunner interface {
	RetryFailedNotifications(ctx context.Context) (scheduler.RetryStats, error)
}

// NotificationLedger serves notification history, stats and delivery reports.
type NotificationLedger interface {
	ListForRecipient(ctx context.Context, recipientID int64, limit int) ([]models.Notification, error)
	MarkDelivered(ctx context.Context, externalID string, deliveredAt time.Time) (bool, error)
	Stats(ctx context.Context, recipientID int64, from, to *time.Time) (*models.NotificationStats, error)
}

// PreferenceStore persists the per-account channel opt-ins. Nil leaves a
// flag unchanged.
type PreferenceStore interface {
	UpdatePreferences(ctx context.Context, id int64, sms, email *bool) (*models.Principal, error)
}

type WelcomeNotifier interface {
	NotifyWelcome(ctx context.Context, customer *models.Principal)
}

type TemplateWriter interface {
	List(ctx context.Context) ([]models.NotificationTemplate, error)
	Upsert(ctx context.Context, t *models.NotificationTemplate) error
}

type TemplateCache interface {
	Invalidate(ctx context.Context, notificationType models.NotificationType, channel models.Channel) error
}

type PrincipalLookup interface {
	GetByID(ctx context.Context, id int64) (*models.Principal, error)
}

type TokenVerifier interface {
	Verify(token string) (int64, error)
}

// Deps are the services behind the routes. ReadyChecks run on /ready.
type Deps struct {
	Orders      OrderService
	Carts       CartStore
	Dispatcher  Dispatcher
	Retry       RetryRunner
	Ledger      NotificationLedger
	Templates   TemplateWriter
	Cache       TemplateCache
	Principals  PrincipalLookup
	Preferences PreferenceStore
	Welcome     WelcomeNotifier
	Tokens      TokenVerifier
	ReadyChecks map[string]func(ctx context.Context) error
}

type Server struct {
	deps   Deps
	logger logger.Logger
	now    func() time.Time
}

func NewServer(deps Deps, log logger.Logger) *Server {
	return &Server{deps: deps, logger: log.Named("api"), now: time.Now}
}

// Router builds the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(instrument)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", s.listOrders)
			r.Post("/", s.createOrder)
			r.With(s.requireStaff).Get("/analytics", s.orderAnalytics)
			r.Get("/{number}", s.getOrder)
			r.Post("/{number}/cancel", s.cancelOrder)
			r.With(s.requireStaff).Patch("/{number}", s.updateOrder)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", s.getCart)
			r.Post("/", s.addToCart)
			r.Put("/", s.updateCart)
			r.Delete("/", s.clearCart)
			r.Delete("/{productID}", s.removeFromCart)
			r.Post("/checkout", s.checkout)
		})

		r.With(s.requireStaff).Put("/products/{productID}/stock", s.setStock)

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.listNotifications)
			r.Get("/preferences", s.getPreferences)
			r.Put("/preferences", s.updatePreferences)
			r.Group(func(r chi.Router) {
				r.Use(s.requireStaff)
				r.Get("/stats", s.notificationStats)
				r.Post("/welcome/{customerID}", s.resendWelcome)
				r.Post("/send", s.sendNotification)
				r.Post("/retry", s.retryNotifications)
				r.Post("/delivery", s.deliveryReport)
			})
		})

		r.Route("/templates", func(r chi.Router) {
			r.Use(s.requireStaff)
			r.Get("/", s.listTemplates)
			r.Put("/", s.putTemplate)
		})
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   s.now().Format(time.RFC3339),
	})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := make(map[string]string, len(s.deps.ReadyChecks))
	for name, check := range s.deps.ReadyChecks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status, code = "not ready", http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": checks,
		"time":   s.now().Format(time.RFC3339),
	})
}
