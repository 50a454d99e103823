package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/safar/go-sql-checkout/internal/checkout"
	"github.com/safar/go-sql-checkout/internal/database"
	"github.com/safar/go-sql-checkout/internal/pricing"
	"github.com/safar/go-sql-checkout/internal/store"
	"go.uber.org/zap"
)

const maxBodySize = 64 * 1024

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"success": false, "error": message})
}

// decodeJSON reads a JSON body into dst, answering 400 itself on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

var couponMessages = []struct {
	err error
	msg string
}{
	{pricing.ErrCouponWithWholesale, "Coupons cannot be used with wholesale discounts."},
	{pricing.ErrCouponInvalid, "Coupon code is invalid."},
	{pricing.ErrCouponLoginRequired, "Please login to apply for this coupon."},
	{pricing.ErrCouponConsumed, "This coupon has been consumed before."},
	{pricing.ErrCouponEmptyCart, "Cart is empty. Add items to cart before applying coupon."},
}

// writeError maps domain errors to status codes. Anything unknown is logged
// and reported as a generic 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var minErr *pricing.MinimumAmountError
	if errors.As(err, &minErr) {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("The minimum order amount should be $%s for this coupon.", minErr.Minimum.StringFixed(2)))
		return
	}
	for _, cm := range couponMessages {
		if errors.Is(err, cm.err) {
			respondError(w, http.StatusBadRequest, cm.msg)
			return
		}
	}

	switch {
	case errors.Is(err, checkout.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, "Quantity must be greater than zero")
	case errors.Is(err, checkout.ErrCartEmpty):
		respondError(w, http.StatusBadRequest, "Cart is empty. Please add items to cart first.")
	case errors.Is(err, checkout.ErrLocationRequired):
		respondError(w, http.StatusBadRequest, "Country and state are required")
	case errors.Is(err, checkout.ErrAddressRequired):
		respondError(w, http.StatusBadRequest, "Shipping address is required")
	case errors.Is(err, checkout.ErrAuthRequired):
		respondError(w, http.StatusUnauthorized, "Authentication required")
	case errors.Is(err, checkout.ErrInvalidWholesaleRequest):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, checkout.ErrAlreadyWholesale):
		respondError(w, http.StatusConflict, "You already have an approved wholesale account.")
	case errors.Is(err, database.ErrWholesaleRequestOpen):
		respondError(w, http.StatusConflict, "You already have a pending wholesale request.")
	case errors.Is(err, database.ErrWholesaleRequestNotFound):
		respondError(w, http.StatusNotFound, "Wholesale request not found")
	case errors.Is(err, database.ErrInsufficientStock):
		respondError(w, http.StatusBadRequest, "Insufficient stock")
	case errors.Is(err, database.ErrLockTimeout):
		respondError(w, http.StatusConflict, "Item is being updated, please retry")
	case errors.Is(err, database.ErrOptimisticLockFailed):
		respondError(w, http.StatusConflict, "Cart changed while saving, please retry")
	case errors.Is(err, database.ErrVariantNotFound):
		respondError(w, http.StatusNotFound, "Variant not found")
	case errors.Is(err, database.ErrOrderItemNotFound):
		respondError(w, http.StatusNotFound, "Cart item not found")
	case errors.Is(err, store.ErrInvalidCursor):
		respondError(w, http.StatusBadRequest, "Invalid cursor")
	case errors.Is(err, database.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "Cart not found")
	default:
		s.log.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
