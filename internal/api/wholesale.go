package api

import (
	"net/http"
	"time"

	"github.com/safar/go-sql-checkout/internal/checkout"
	"github.com/safar/go-sql-checkout/internal/models"
	"github.com/safar/go-sql-checkout/internal/pricing"
	"github.com/shopspring/decimal"
)

type tierPayload struct {
	Threshold  string `json:"threshold"`
	Percentage string `json:"percentage"`
}

func tierPayloads(tiers []pricing.WholesaleTier) []tierPayload {
	out := make([]tierPayload, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, tierPayload{
			Threshold:  t.Threshold.StringFixed(2),
			Percentage: pricing.FormatPercent(t.Percentage),
		})
	}
	return out
}

type nextThresholdPayload struct {
	Threshold    string `json:"threshold,omitempty"`
	Percentage   string `json:"percentage,omitempty"`
	AmountNeeded string `json:"amount_needed"`
	Description  string `json:"description"`
	Maximum      bool   `json:"maximum"`
}

func (s *Server) calculateWholesale(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount *decimal.Decimal `json:"amount"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Amount == nil || req.Amount.IsNegative() {
		respondError(w, http.StatusBadRequest, "A non-negative amount is required")
		return
	}

	quote, err := s.svc.WholesaleQuote(r.Context(), actorFrom(r), *req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	next := nextThresholdPayload{
		AmountNeeded: quote.Next.AmountNeeded.StringFixed(2),
		Description:  quote.Next.Description,
		Maximum:      quote.Next.Maximum,
	}
	if !quote.Next.Maximum {
		next.Threshold = quote.Next.Threshold.StringFixed(2)
		next.Percentage = pricing.FormatPercent(quote.Next.Percentage)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":             true,
		"is_wholesale":        quote.IsWholesale,
		"amount":              req.Amount.StringFixed(2),
		"discount_amount":     quote.Amount.StringFixed(2),
		"discount_percentage": pricing.FormatPercent(quote.Percentage),
		"discount_tiers":      tierPayloads(quote.Tiers),
		"next_threshold":      next,
	})
}

func (s *Server) wholesaleTiers(w http.ResponseWriter, r *http.Request) {
	cfg := s.svc.WholesaleTiers()
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"name":    cfg.Name,
		"tiers":   tierPayloads(cfg.Tiers),
	})
}

var statusDisplay = map[string]string{
	models.WholesaleRequestPending:  "Pending",
	models.WholesaleRequestApproved: "Approved",
	models.WholesaleRequestRejected: "Rejected",
}

type wholesaleRequestPayload struct {
	ID                    int64      `json:"id"`
	BusinessName          string     `json:"business_name"`
	BusinessType          string     `json:"business_type"`
	BusinessTypeDisplay   string     `json:"business_type_display"`
	TaxID                 string     `json:"tax_id"`
	Website               string     `json:"website"`
	ExpectedMonthlyVolume string     `json:"expected_monthly_volume"`
	Reason                string     `json:"reason"`
	Status                string     `json:"status"`
	StatusDisplay         string     `json:"status_display"`
	ReviewedAt            *time.Time `json:"reviewed_at"`
	AdminNotes            string     `json:"admin_notes"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func newWholesaleRequestPayload(req models.WholesaleRequest) wholesaleRequestPayload {
	return wholesaleRequestPayload{
		ID:                    req.ID,
		BusinessName:          req.BusinessName,
		BusinessType:          req.BusinessType,
		BusinessTypeDisplay:   models.BusinessTypes[req.BusinessType],
		TaxID:                 req.TaxID,
		Website:               req.Website,
		ExpectedMonthlyVolume: req.ExpectedMonthlyVolume,
		Reason:                req.Reason,
		Status:                req.Status,
		StatusDisplay:         statusDisplay[req.Status],
		ReviewedAt:            req.ReviewedAt,
		AdminNotes:            req.AdminNotes,
		CreatedAt:             req.CreatedAt,
		UpdatedAt:             req.UpdatedAt,
	}
}

func wholesaleRequestPayloads(reqs []models.WholesaleRequest) []wholesaleRequestPayload {
	out := make([]wholesaleRequestPayload, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, newWholesaleRequestPayload(req))
	}
	return out
}

func (s *Server) wholesaleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.svc.WholesaleStatus(r.Context(), actorFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := map[string]any{
		"success":              true,
		"is_wholesale":         status.IsWholesale,
		"has_pending_request":  status.HasPendingRequest,
		"has_approved_request": status.HasApprovedRequest,
		"recent_requests":      wholesaleRequestPayloads(status.RecentRequests),
		"discount_tiers":       nil,
	}
	if status.IsWholesale {
		resp["discount_tiers"] = tierPayloads(status.DiscountTiers)
	}
	respondJSON(w, http.StatusOK, resp)
}

type wholesaleApplicationRequest struct {
	BusinessName          string `json:"business_name"`
	BusinessType          string `json:"business_type"`
	TaxID                 string `json:"tax_id"`
	Website               string `json:"website"`
	ExpectedMonthlyVolume string `json:"expected_monthly_volume"`
	Reason                string `json:"reason"`
}

func (s *Server) createWholesaleRequest(w http.ResponseWriter, r *http.Request) {
	var req wholesaleApplicationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := s.svc.RequestWholesale(r.Context(), actorFrom(r), checkout.WholesaleApplication{
		BusinessName:          req.BusinessName,
		BusinessType:          req.BusinessType,
		TaxID:                 req.TaxID,
		Website:               req.Website,
		ExpectedMonthlyVolume: req.ExpectedMonthlyVolume,
		Reason:                req.Reason,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"request": newWholesaleRequestPayload(*created),
	})
}

func (s *Server) listWholesaleRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.svc.WholesaleRequests(r.Context(), actorFrom(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"requests": wholesaleRequestPayloads(reqs),
	})
}

func (s *Server) getWholesaleRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "requestID")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid request id")
		return
	}
	req, err := s.svc.WholesaleRequest(r.Context(), actorFrom(r), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"request": newWholesaleRequestPayload(*req),
	})
}
