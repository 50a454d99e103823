package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/safar/go-sql-checkout/internal/checkout"
	"github.com/safar/go-sql-checkout/internal/database"
	"github.com/safar/go-sql-checkout/internal/metrics"
	"github.com/safar/go-sql-checkout/internal/models"
	"github.com/safar/go-sql-checkout/internal/pricing"
	"github.com/safar/go-sql-checkout/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

// stubService answers only the calls a test configures; anything else
// panics and surfaces as a 500.
type stubService struct {
	CheckoutService

	getCart        func(checkout.Actor) (*checkout.Cart, error)
	addItem        func(checkout.Actor, int64, int) (*checkout.Cart, error)
	applyCoupon    func(checkout.Actor, string) (*checkout.Cart, error)
	updateAddress  func(checkout.Actor, models.Address) (*checkout.Cart, error)
	taxQuote       func(checkout.Actor, checkout.TaxQuoteRequest) (*checkout.TaxQuote, error)
	wholesaleQuote func(checkout.Actor, decimal.Decimal) (*checkout.WholesaleQuote, error)
	listOrders     func(checkout.Actor, string, int) (*store.CursorPage[models.Order], error)
	countries      []models.Country

	wholesaleStatus   func(checkout.Actor) (*checkout.WholesaleStatus, error)
	requestWholesale  func(checkout.Actor, checkout.WholesaleApplication) (*models.WholesaleRequest, error)
	wholesaleRequests func(checkout.Actor) ([]models.WholesaleRequest, error)
	wholesaleRequest  func(checkout.Actor, int64) (*models.WholesaleRequest, error)
}

func (s *stubService) GetCart(_ context.Context, a checkout.Actor) (*checkout.Cart, error) {
	return s.getCart(a)
}

func (s *stubService) AddItem(_ context.Context, a checkout.Actor, variantID int64, qty int) (*checkout.Cart, error) {
	return s.addItem(a, variantID, qty)
}

func (s *stubService) ApplyCoupon(_ context.Context, a checkout.Actor, code string) (*checkout.Cart, error) {
	return s.applyCoupon(a, code)
}

func (s *stubService) UpdateAddress(_ context.Context, a checkout.Actor, addr models.Address) (*checkout.Cart, error) {
	return s.updateAddress(a, addr)
}

func (s *stubService) TaxQuote(_ context.Context, a checkout.Actor, req checkout.TaxQuoteRequest) (*checkout.TaxQuote, error) {
	return s.taxQuote(a, req)
}

func (s *stubService) WholesaleQuote(_ context.Context, a checkout.Actor, amount decimal.Decimal) (*checkout.WholesaleQuote, error) {
	return s.wholesaleQuote(a, amount)
}

func (s *stubService) WholesaleTiers() pricing.WholesaleConfig {
	return pricing.DefaultWholesaleConfig()
}

func (s *stubService) ListOrders(_ context.Context, a checkout.Actor, cursor string, limit int) (*store.CursorPage[models.Order], error) {
	return s.listOrders(a, cursor, limit)
}

func (s *stubService) Countries(context.Context) ([]models.Country, error) {
	return s.countries, nil
}

func sampleCart() *checkout.Cart {
	order := &models.Order{
		ID:              42,
		ReferenceNumber: "ORD-ABC",
		Status:          models.OrderStatusNotFinalized,
		Items: []models.OrderItem{
			{ID: 1, VariantID: 10, SKU: "SKU-1", Title: "Mug", Quantity: 2, UnitPrice: decimal.RequireFromString("25.00")},
			{ID: 2, VariantID: 11, SKU: "SKU-2", Title: "Plate", Quantity: 1, UnitPrice: decimal.RequireFromString("50.00")},
		},
		TaxAmount:         decimal.RequireFromString("8.75"),
		TotalShippingCost: decimal.Zero,
		WholesaleDiscount: decimal.Zero,
	}
	return &checkout.Cart{
		Order:               order,
		Totals:              pricing.OrderTotals(order),
		WholesalePercentage: decimal.Zero,
		TaxRate:             decimal.RequireFromString("0.0875"),
	}
}

func newTestServer(svc CheckoutService, opts ...Option) http.Handler {
	opts = append([]Option{WithJWTSecret(testSecret)}, opts...)
	return NewServer(svc, nil, opts...).Routes()
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func signToken(t *testing.T, subject string, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestGetCartRendersTotals(t *testing.T) {
	var got checkout.Actor
	svc := &stubService{getCart: func(a checkout.Actor) (*checkout.Cart, error) {
		got = a
		return sampleCart(), nil
	}}

	rec, body := do(t, newTestServer(svc), http.MethodGet, "/api/cart/cart/", "", map[string]string{orderIDHeader: "42"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(42), got.OrderID)
	assert.Zero(t, got.UserID)
	assert.Equal(t, "42", rec.Header().Get(orderIDHeader))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "100.00", body["subtotal"])
	assert.Equal(t, "8.75", body["tax_amount"])
	assert.Equal(t, "8.75%", body["tax_rate"])
	assert.Equal(t, "108.75", body["grand_total"])
	assert.Equal(t, "0.00", body["shipping_cost"])
	assert.Equal(t, float64(3), body["item_count"])

	items := body["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "50.00", items[0].(map[string]any)["line_total"])
}

func TestBearerTokenIdentifiesUser(t *testing.T) {
	var got checkout.Actor
	svc := &stubService{getCart: func(a checkout.Actor) (*checkout.Cart, error) {
		got = a
		return sampleCart(), nil
	}}
	token := signToken(t, "7", time.Now().Add(time.Hour))

	rec, _ := do(t, newTestServer(svc), http.MethodGet, "/api/cart/cart/", "", map[string]string{
		"Authorization": "Bearer " + token,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(7), got.UserID)
}

func TestRejectsBadTokens(t *testing.T) {
	svc := &stubService{}
	h := newTestServer(svc)

	cases := map[string]string{
		"expired":    "Bearer " + signToken(t, "7", time.Now().Add(-time.Hour)),
		"non-bearer": "Basic abc",
		"garbage":    "Bearer not-a-jwt",
		"bad-sub":    "Bearer " + signToken(t, "alice", time.Now().Add(time.Hour)),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			rec, body := do(t, h, http.MethodGet, "/api/cart/cart/", "", map[string]string{"Authorization": header})
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, false, body["success"])
		})
	}
}

func TestAddItemDefaultsQuantity(t *testing.T) {
	var qty int
	svc := &stubService{addItem: func(_ checkout.Actor, variantID int64, q int) (*checkout.Cart, error) {
		qty = q
		return sampleCart(), nil
	}}

	rec, _ := do(t, newTestServer(svc), http.MethodPost, "/api/cart/cart/add-item/", `{"variant_id": 10}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, qty)
}

func TestAddItemValidation(t *testing.T) {
	svc := &stubService{addItem: func(checkout.Actor, int64, int) (*checkout.Cart, error) {
		return nil, database.ErrInsufficientStock
	}}
	h := newTestServer(svc)

	rec, body := do(t, h, http.MethodPost, "/api/cart/cart/add-item/", `{"variant_id":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", body["error"])

	rec, _ = do(t, h, http.MethodPost, "/api/cart/cart/add-item/", `{"quantity": 2}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, h, http.MethodPost, "/api/cart/cart/add-item/", `{"variant_id": 10, "quantity": 99}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Insufficient stock", body["error"])
}

func TestApplyCouponErrors(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{pricing.ErrCouponWithWholesale, "Coupons cannot be used with wholesale discounts."},
		{pricing.ErrCouponInvalid, "Coupon code is invalid."},
		{pricing.ErrCouponLoginRequired, "Please login to apply for this coupon."},
		{pricing.ErrCouponConsumed, "This coupon has been consumed before."},
		{pricing.ErrCouponEmptyCart, "Cart is empty. Add items to cart before applying coupon."},
		{&pricing.MinimumAmountError{Minimum: decimal.RequireFromString("50")}, "The minimum order amount should be $50.00 for this coupon."},
	}
	for _, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			svc := &stubService{applyCoupon: func(checkout.Actor, string) (*checkout.Cart, error) {
				return nil, tc.err
			}}
			rec, body := do(t, newTestServer(svc), http.MethodPost, "/api/cart/coupons/apply/", `{"code":"SAVE10"}`, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.want, body["error"])
		})
	}
}

func TestApplyCouponReturnsDiscount(t *testing.T) {
	var code string
	svc := &stubService{applyCoupon: func(_ checkout.Actor, c string) (*checkout.Cart, error) {
		code = c
		cart := sampleCart()
		cart.Order.Coupon = &models.Coupon{
			Code:         "SAVE10",
			Discount:     decimal.NewFromInt(10),
			DiscountType: models.DiscountTypePercentage,
		}
		cart.Totals = pricing.OrderTotals(cart.Order)
		return cart, nil
	}}

	rec, body := do(t, newTestServer(svc), http.MethodPost, "/api/cart/coupons/apply/", `{"code":"  SAVE10 "}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "SAVE10", code)
	assert.Equal(t, "10.00", body["coupon_discount_amount"])
	assert.Equal(t, "98.75", body["grand_total"])
	assert.Equal(t, "SAVE10", body["coupon"].(map[string]any)["code"])
}

func TestCalculateTax(t *testing.T) {
	var got checkout.TaxQuoteRequest
	svc := &stubService{taxQuote: func(_ checkout.Actor, req checkout.TaxQuoteRequest) (*checkout.TaxQuote, error) {
		got = req
		sub := *req.Subtotal
		res := pricing.CalculateTax(sub, &models.TaxRate{Rate: decimal.RequireFromString("0.0875"), TaxType: models.TaxTypeSales}, false)
		return &checkout.TaxQuote{
			TaxResult:  res,
			Subtotal:   sub,
			GrandTotal: sub.Add(res.TaxAmount),
			Location:   "Los Angeles, California, USA",
		}, nil
	}}

	rec, body := do(t, newTestServer(svc), http.MethodPost, "/api/tax/calculate/",
		`{"country":"USA","state":"California","city":"Los Angeles","subtotal":"100.00"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "California", got.Location.State)
	assert.Equal(t, "8.75", body["tax_amount"])
	assert.Equal(t, "8.75%", body["tax_rate"])
	assert.Equal(t, "0.0875", body["tax_rate_decimal"])
	assert.Equal(t, "108.75", body["grand_total"])
	assert.Equal(t, "sales", body["tax_type"])
	assert.NotContains(t, body, "message")
}

func TestCalculateTaxNoRate(t *testing.T) {
	svc := &stubService{taxQuote: func(_ checkout.Actor, req checkout.TaxQuoteRequest) (*checkout.TaxQuote, error) {
		assert.Nil(t, req.Subtotal)
		sub := decimal.RequireFromString("40")
		return &checkout.TaxQuote{TaxResult: pricing.CalculateTax(sub, nil, false), Subtotal: sub, GrandTotal: sub}, nil
	}}

	rec, body := do(t, newTestServer(svc), http.MethodPost, "/api/tax/calculate/", `{"country":"Atlantis","state":"Deep"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0.00", body["tax_amount"])
	assert.Equal(t, "40.00", body["grand_total"])
	assert.Equal(t, "No tax rate found for this location", body["message"])
}

func TestUpdateAddressErrors(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{checkout.ErrLocationRequired, "Country and state are required"},
		{checkout.ErrCartEmpty, "Cart is empty. Please add items to cart first."},
	}
	for _, tc := range cases {
		svc := &stubService{updateAddress: func(checkout.Actor, models.Address) (*checkout.Cart, error) {
			return nil, tc.err
		}}
		rec, body := do(t, newTestServer(svc), http.MethodPost, "/api/tax/update-address/", `{"country":"USA"}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, tc.want, body["error"])
	}
}

func TestUpdateAddressPassesFields(t *testing.T) {
	var got models.Address
	svc := &stubService{updateAddress: func(_ checkout.Actor, addr models.Address) (*checkout.Cart, error) {
		got = addr
		return sampleCart(), nil
	}}

	rec, body := do(t, newTestServer(svc), http.MethodPost, "/api/tax/update-address/",
		`{"country":"USA","state":"California","city":"Los Angeles","address_line_1":"1 Main St","zip_code":"90001"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1 Main St", got.Line1)
	assert.Equal(t, "90001", got.ZipCode)
	assert.Equal(t, float64(42), body["order_id"])
	assert.Equal(t, "0%", body["wholesale_discount_percentage"])
}

func TestWholesaleCalculate(t *testing.T) {
	cfg := pricing.DefaultWholesaleConfig()
	svc := &stubService{wholesaleQuote: func(a checkout.Actor, amount decimal.Decimal) (*checkout.WholesaleQuote, error) {
		if a.UserID == 0 {
			return nil, checkout.ErrAuthRequired
		}
		return &checkout.WholesaleQuote{
			WholesaleDiscount: pricing.CalculateWholesaleDiscount(cfg, amount, true),
			Tiers:             cfg.Tiers,
			Next:              cfg.NextThreshold(amount),
		}, nil
	}}
	h := newTestServer(svc)

	rec, body := do(t, h, http.MethodPost, "/api/wholesale/discount/calculate/", `{"amount": 600}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Authentication required", body["error"])

	auth := map[string]string{"Authorization": "Bearer " + signToken(t, "3", time.Now().Add(time.Hour))}
	rec, body = do(t, h, http.MethodPost, "/api/wholesale/discount/calculate/", `{"amount": 600}`, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["is_wholesale"])
	assert.Equal(t, "60.00", body["discount_amount"])
	assert.Equal(t, "10%", body["discount_percentage"])
	assert.Len(t, body["discount_tiers"], 4)
	next := body["next_threshold"].(map[string]any)
	assert.Equal(t, "1000.00", next["threshold"])
	assert.Equal(t, "400.00", next["amount_needed"])

	rec, _ = do(t, h, http.MethodPost, "/api/wholesale/discount/calculate/", `{"amount": -1}`, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWholesaleTiers(t *testing.T) {
	rec, body := do(t, newTestServer(&stubService{}), http.MethodGet, "/api/wholesale/tiers/", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	tiers := body["tiers"].([]any)
	require.Len(t, tiers, 4)
	assert.Equal(t, "2500.00", tiers[3].(map[string]any)["threshold"])
	assert.Equal(t, "25%", tiers[3].(map[string]any)["percentage"])
}

func TestListOrdersRejectsBadCursor(t *testing.T) {
	called := false
	svc := &stubService{listOrders: func(checkout.Actor, string, int) (*store.CursorPage[models.Order], error) {
		called = true
		return &store.CursorPage[models.Order]{Items: []models.Order{}}, nil
	}}

	rec, body := do(t, newTestServer(svc), http.MethodGet, "/api/cart/orders/?cursor=@@@@", "", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid cursor", body["error"])
	assert.False(t, called)
}

func TestEmptyLocationListIsNotAnError(t *testing.T) {
	rec, body := do(t, newTestServer(&stubService{}), http.MethodGet, "/api/tax/countries/", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "No countries found", body["message"])
	assert.Empty(t, body["countries"])
}

func TestUnexpectedErrorsAreHidden(t *testing.T) {
	svc := &stubService{getCart: func(checkout.Actor) (*checkout.Cart, error) {
		return nil, errors.New("pq: connection refused")
	}}

	rec, body := do(t, newTestServer(svc), http.MethodGet, "/api/cart/cart/", "", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", body["error"])
}

func TestPanicsBecome500(t *testing.T) {
	// RemoveCoupon is not stubbed, so the embedded nil interface panics.
	rec, body := do(t, newTestServer(&stubService{}), http.MethodPost, "/api/cart/coupons/remove/", "", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", body["error"])
}

func TestNotFoundIsJSON(t *testing.T) {
	rec, body := do(t, newTestServer(&stubService{}), http.MethodGet, "/nope", "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestHealthzAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	healthy := true
	h := newTestServer(&stubService{},
		WithMetrics(metrics.NewHTTPMetrics(reg), promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		WithHealthCheck(func(context.Context) error {
			if !healthy {
				return errors.New("db down")
			}
			return nil
		}),
	)

	rec, body := do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	healthy = false
	rec, _ = do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mrec := httptest.NewRecorder()
	h.ServeHTTP(mrec, req)
	assert.Equal(t, http.StatusOK, mrec.Code)
	assert.Contains(t, mrec.Body.String(), "checkout_http_request_duration_seconds")
}
