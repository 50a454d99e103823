package api

import (
	"net/http"

	"github.com/safar/go-sql-checkout/internal/checkout"
	"github.com/safar/go-sql-checkout/internal/models"
	"github.com/safar/go-sql-checkout/internal/pricing"
	"github.com/shopspring/decimal"
)

type taxRequest struct {
	Country  string           `json:"country"`
	State    string           `json:"state"`
	City     string           `json:"city"`
	Subtotal *decimal.Decimal `json:"subtotal"`
}

func (s *Server) calculateTax(w http.ResponseWriter, r *http.Request) {
	var req taxRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	quote, err := s.svc.TaxQuote(r.Context(), actorFrom(r), checkout.TaxQuoteRequest{
		Location: pricing.Location{Country: req.Country, State: req.State, City: req.City},
		Subtotal: req.Subtotal,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := map[string]any{
		"success":          true,
		"tax_amount":       quote.TaxAmount.StringFixed(2),
		"tax_rate":         quote.RatePercentage(),
		"tax_rate_decimal": quote.Rate.String(),
		"is_exempt":        quote.IsExempt,
		"subtotal":         quote.Subtotal.StringFixed(2),
		"grand_total":      quote.GrandTotal.StringFixed(2),
		"location":         quote.Location,
		"tax_type":         quote.TaxType,
	}
	if !quote.Found {
		resp["message"] = "No tax rate found for this location"
	}
	respondJSON(w, http.StatusOK, resp)
}

type addressRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Line1     string `json:"address_line_1"`
	Line2     string `json:"address_line_2"`
	Country   string `json:"country"`
	State     string `json:"state"`
	City      string `json:"city"`
	ZipCode   string `json:"zip_code"`
}

func (s *Server) updateAddress(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cart, err := s.svc.UpdateAddress(r.Context(), actorFrom(r), models.Address{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Line1:     req.Line1,
		Line2:     req.Line2,
		Country:   req.Country,
		State:     req.State,
		City:      req.City,
		ZipCode:   req.ZipCode,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	p := buildCartPayload(cart)
	p.Message = "Address updated"
	respondCart(w, http.StatusOK, p, cart)
}

func (s *Server) listCountries(w http.ResponseWriter, r *http.Request) {
	countries, err := s.svc.Countries(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondLocations(w, "countries", countries, len(countries), "No countries found")
}

func (s *Server) listStates(w http.ResponseWriter, r *http.Request) {
	countryID, ok := pathID(r, "countryID")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid country ID")
		return
	}
	states, err := s.svc.States(r.Context(), countryID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondLocations(w, "states", states, len(states), "No states found for this country")
}

func (s *Server) listCities(w http.ResponseWriter, r *http.Request) {
	stateID, ok := pathID(r, "stateID")
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid state ID")
		return
	}
	cities, err := s.svc.Cities(r.Context(), stateID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondLocations(w, "cities", cities, len(cities), "No cities found for this state")
}

// respondLocations always answers 200; an empty list carries a message
// instead of an error.
func respondLocations(w http.ResponseWriter, key string, list any, n int, emptyMsg string) {
	resp := map[string]any{"success": true, key: list}
	if n == 0 {
		resp[key] = []struct{}{}
		resp["message"] = emptyMsg
	}
	respondJSON(w, http.StatusOK, resp)
}
