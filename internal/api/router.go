// Package api exposes the checkout service over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/safar/go-sql-checkout/internal/checkout"
	"github.com/safar/go-sql-checkout/internal/metrics"
	"github.com/safar/go-sql-checkout/internal/models"
	"github.com/safar/go-sql-checkout/internal/pricing"
	"github.com/safar/go-sql-checkout/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CheckoutService is implemented by *checkout.Service.
type CheckoutService interface {
	GetCart(ctx context.Context, actor checkout.Actor) (*checkout.Cart, error)
	AddItem(ctx context.Context, actor checkout.Actor, variantID int64, quantity int) (*checkout.Cart, error)
	UpdateItem(ctx context.Context, actor checkout.Actor, itemID int64, quantity int) (*checkout.Cart, error)
	RemoveItem(ctx context.Context, actor checkout.Actor, itemID int64) (*checkout.Cart, error)
	ClearCart(ctx context.Context, actor checkout.Actor) (*checkout.Cart, error)
	ApplyCoupon(ctx context.Context, actor checkout.Actor, code string) (*checkout.Cart, error)
	RemoveCoupon(ctx context.Context, actor checkout.Actor) (*checkout.Cart, error)
	RecoverCart(ctx context.Context, reference string) (*checkout.Cart, error)
	PlaceOrder(ctx context.Context, actor checkout.Actor) (*checkout.Cart, error)
	ListOrders(ctx context.Context, actor checkout.Actor, cursor string, limit int) (*store.CursorPage[models.Order], error)
	ListVariants(ctx context.Context, page, pageSize int) (*store.OffsetPage[models.Variant], error)

	UpdateAddress(ctx context.Context, actor checkout.Actor, addr models.Address) (*checkout.Cart, error)
	TaxQuote(ctx context.Context, actor checkout.Actor, req checkout.TaxQuoteRequest) (*checkout.TaxQuote, error)
	Countries(ctx context.Context) ([]models.Country, error)
	States(ctx context.Context, countryID int64) ([]models.State, error)
	Cities(ctx context.Context, stateID int64) ([]models.City, error)

	WholesaleQuote(ctx context.Context, actor checkout.Actor, amount decimal.Decimal) (*checkout.WholesaleQuote, error)
	WholesaleTiers() pricing.WholesaleConfig
	WholesaleStatus(ctx context.Context, actor checkout.Actor) (*checkout.WholesaleStatus, error)
	RequestWholesale(ctx context.Context, actor checkout.Actor, app checkout.WholesaleApplication) (*models.WholesaleRequest, error)
	WholesaleRequests(ctx context.Context, actor checkout.Actor) ([]models.WholesaleRequest, error)
	WholesaleRequest(ctx context.Context, actor checkout.Actor, id int64) (*models.WholesaleRequest, error)
}

type Server struct {
	svc            CheckoutService
	log            *zap.Logger
	jwtSecret      []byte
	metrics        *metrics.HTTPMetrics
	metricsHandler http.Handler
	healthCheck    func(ctx context.Context) error
	timeout        time.Duration
}

type Option func(*Server)

// WithJWTSecret enables bearer token identity. Without it every request is
// anonymous.
func WithJWTSecret(secret string) Option {
	return func(s *Server) {
		if secret != "" {
			s.jwtSecret = []byte(secret)
		}
	}
}

// WithMetrics records request latency and serves handler on /metrics.
func WithMetrics(m *metrics.HTTPMetrics, handler http.Handler) Option {
	return func(s *Server) {
		s.metrics = m
		s.metricsHandler = handler
	}
}

func WithHealthCheck(check func(ctx context.Context) error) Option {
	return func(s *Server) {
		s.healthCheck = check
	}
}

func NewServer(svc CheckoutService, log *zap.Logger, opts ...Option) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		svc:     svc,
		log:     log.Named("http"),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the chi router with shared middleware.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(s.recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/healthz", s.healthz)
	if s.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(s.authenticate)

		api.Route("/cart", func(cr chi.Router) {
			cr.Get("/cart/", s.getCart)
			cr.Post("/cart/add-item/", s.addItem)
			cr.Put("/cart/update-item/{itemID}/", s.updateItem)
			cr.Delete("/cart/remove-item/{itemID}/", s.removeItem)
			cr.Post("/cart/clear/", s.clearCart)
			cr.Post("/coupons/apply/", s.applyCoupon)
			cr.Post("/coupons/remove/", s.removeCoupon)
			cr.Get("/recover/{reference}/", s.recoverCart)
			cr.Post("/checkout/", s.placeOrder)
			cr.Get("/orders/", s.listOrders)
		})

		api.Get("/variants/", s.listVariants)

		api.Route("/tax", func(tr chi.Router) {
			tr.Post("/calculate/", s.calculateTax)
			tr.Post("/update-address/", s.updateAddress)
			tr.Get("/countries/", s.listCountries)
			tr.Get("/states/{countryID}/", s.listStates)
			tr.Get("/cities/{stateID}/", s.listCities)
		})

		api.Route("/wholesale", func(wr chi.Router) {
			wr.Post("/discount/calculate/", s.calculateWholesale)
			wr.Get("/tiers/", s.wholesaleTiers)
			wr.Get("/status/", s.wholesaleStatus)
			wr.Post("/request/", s.createWholesaleRequest)
			wr.Get("/requests/", s.listWholesaleRequests)
			wr.Get("/requests/{requestID}/", s.getWholesaleRequest)
		})
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.healthCheck != nil {
		if err := s.healthCheck(r.Context()); err != nil {
			s.log.Warn("health check failed", zap.Error(err))
			respondJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "status": "unavailable"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ok"})
}
