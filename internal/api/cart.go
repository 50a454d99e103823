package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/safar/go-sql-checkout/internal/checkout"
	"github.com/safar/go-sql-checkout/internal/models"
	"github.com/safar/go-sql-checkout/internal/pricing"
	"github.com/safar/go-sql-checkout/internal/store"
)

type cartItemPayload struct {
	ID        int64  `json:"id"`
	VariantID int64  `json:"variant_id"`
	SKU       string `json:"sku"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type couponPayload struct {
	Code         string `json:"code"`
	Title        string `json:"title"`
	Discount     string `json:"discount"`
	DiscountType string `json:"discount_type"`
}

type cartPayload struct {
	Success                     bool              `json:"success"`
	OrderID                     int64             `json:"order_id"`
	ReferenceNumber             string            `json:"reference_number"`
	Status                      string            `json:"status"`
	Items                       []cartItemPayload `json:"items"`
	ItemCount                   int               `json:"item_count"`
	Subtotal                    string            `json:"subtotal"`
	WholesaleDiscount           string            `json:"wholesale_discount"`
	WholesaleDiscountPercentage string            `json:"wholesale_discount_percentage"`
	Coupon                      *couponPayload    `json:"coupon"`
	CouponDiscount              string            `json:"coupon_discount"`
	DiscountedSubtotal          string            `json:"discounted_subtotal"`
	ShippingCost                string            `json:"shipping_cost"`
	TaxAmount                   string            `json:"tax_amount"`
	TaxRate                     string            `json:"tax_rate"`
	IsExempt                    bool              `json:"is_exempt"`
	GrandTotal                  string            `json:"grand_total"`
	ShippingAddress             *models.Address   `json:"shipping_address,omitempty"`
	OrderedDate                 *time.Time        `json:"ordered_date,omitempty"`
	Message                     string            `json:"message,omitempty"`
}

func buildCartPayload(cart *checkout.Cart) cartPayload {
	o, t := cart.Order, cart.Totals
	p := cartPayload{
		Success:                     true,
		OrderID:                     o.ID,
		ReferenceNumber:             o.ReferenceNumber,
		Status:                      o.Status,
		Items:                       make([]cartItemPayload, 0, len(o.Items)),
		Subtotal:                    t.Subtotal.StringFixed(2),
		WholesaleDiscount:           t.WholesaleDiscount.StringFixed(2),
		WholesaleDiscountPercentage: pricing.FormatPercent(cart.WholesalePercentage),
		CouponDiscount:              t.CouponDiscount.StringFixed(2),
		DiscountedSubtotal:          t.DiscountedSubtotal.StringFixed(2),
		ShippingCost:                t.ShippingCost.StringFixed(2),
		TaxAmount:                   t.TaxAmount.StringFixed(2),
		TaxRate:                     pricing.TaxResult{Rate: cart.TaxRate}.RatePercentage(),
		IsExempt:                    o.IsTaxExempt,
		GrandTotal:                  t.GrandTotal.StringFixed(2),
		ShippingAddress:             o.ShippingAddress,
		OrderedDate:                 o.OrderedDate,
	}
	for _, it := range o.Items {
		p.Items = append(p.Items, cartItemPayload{
			ID:        it.ID,
			VariantID: it.VariantID,
			SKU:       it.SKU,
			Title:     it.Title,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.StringFixed(2),
			LineTotal: it.LineTotal().StringFixed(2),
		})
		p.ItemCount += it.Quantity
	}
	if c := o.Coupon; c != nil {
		p.Coupon = &couponPayload{
			Code:         c.Code,
			Title:        c.Title,
			Discount:     c.Discount.StringFixed(2),
			DiscountType: c.DiscountType,
		}
	}
	return p
}

// respondCart writes the cart and echoes its id so anonymous clients can
// keep addressing it.
func respondCart(w http.ResponseWriter, status int, payload any, cart *checkout.Cart) {
	w.Header().Set(orderIDHeader, strconv.FormatInt(cart.Order.ID, 10))
	respondJSON(w, status, payload)
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	cart, err := s.svc.GetCart(r.Context(), actorFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondCart(w, http.StatusOK, buildCartPayload(cart), cart)
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VariantID int64 `json:"variant_id"`
		Quantity  *int  `json:"quantity"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.VariantID <= 0 {
		respondError(w, http.StatusBadRequest, "variant_id is required")
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	cart, err := s.svc.AddItem(r.Context(), actorFrom(r), req.VariantID, qty)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondCart(w, http.StatusOK, buildCartPayload(cart), cart)
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(r, "itemID")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid item ID")
		return
	}
	var req struct {
		Quantity *int `json:"quantity"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		respondError(w, http.StatusBadRequest, "quantity is required")
		return
	}

	cart, err := s.svc.UpdateItem(r.Context(), actorFrom(r), itemID, *req.Quantity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondCart(w, http.StatusOK, buildCartPayload(cart), cart)
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(r, "itemID")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid item ID")
		return
	}
	cart, err := s.svc.RemoveItem(r.Context(), actorFrom(r), itemID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondCart(w, http.StatusOK, buildCartPayload(cart), cart)
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	cart, err := s.svc.ClearCart(r.Context(), actorFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p := buildCartPayload(cart)
	p.Message = "Cart cleared"
	respondCart(w, http.StatusOK, p, cart)
}

func (s *Server) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		respondError(w, http.StatusBadRequest, "Coupon code is required")
		return
	}

	cart, err := s.svc.ApplyCoupon(r.Context(), actorFrom(r), code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	payload := struct {
		cartPayload
		CouponDiscountAmount string `json:"coupon_discount_amount"`
	}{
		cartPayload:          buildCartPayload(cart),
		CouponDiscountAmount: cart.Totals.CouponDiscount.StringFixed(2),
	}
	payload.Message = "Coupon applied successfully"
	respondCart(w, http.StatusOK, payload, cart)
}

func (s *Server) removeCoupon(w http.ResponseWriter, r *http.Request) {
	cart, err := s.svc.RemoveCoupon(r.Context(), actorFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p := buildCartPayload(cart)
	p.Message = "Coupon removed"
	respondCart(w, http.StatusOK, p, cart)
}

func (s *Server) recoverCart(w http.ResponseWriter, r *http.Request) {
	reference := strings.TrimSpace(chi.URLParam(r, "reference"))
	if reference == "" {
		respondError(w, http.StatusBadRequest, "Invalid reference number")
		return
	}
	cart, err := s.svc.RecoverCart(r.Context(), reference)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondCart(w, http.StatusOK, buildCartPayload(cart), cart)
}

func (s *Server) placeOrder(w http.ResponseWriter, r *http.Request) {
	cart, err := s.svc.PlaceOrder(r.Context(), actorFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p := buildCartPayload(cart)
	p.Message = "Order placed"
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("cursor")
	if _, _, err := store.ParseOrderCursor(cursor); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid cursor")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	limit = store.ClampPageSize(limit)

	page, err := s.svc.ListOrders(r.Context(), actorFrom(r), cursor, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"orders":      page.Items,
		"next_cursor": page.NextCursor,
		"has_more":    page.HasMore,
	})
}

func (s *Server) listVariants(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	pageSize = store.ClampPageSize(pageSize)

	result, err := s.svc.ListVariants(r.Context(), page, pageSize)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"variants":    result.Items,
		"total":       result.Total,
		"page":        result.Page,
		"page_size":   result.PageSize,
		"total_pages": result.TotalPages,
	})
}
