package checkout

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/safar/go-sql-checkout/internal/database"
	"github.com/safar/go-sql-checkout/internal/models"
	"github.com/safar/go-sql-checkout/internal/pricing"
	"github.com/safar/go-sql-checkout/internal/store"
	"github.com/shopspring/decimal"
)

// UpdateAddress stores the shipping address on the cart and reprices it.
// Only country and state are required.
func (s *Service) UpdateAddress(ctx context.Context, actor Actor, addr models.Address) (*Cart, error) {
	addr.Country = strings.TrimSpace(addr.Country)
	addr.State = strings.TrimSpace(addr.State)
	addr.City = strings.TrimSpace(addr.City)
	if addr.Country == "" || addr.State == "" {
		return nil, ErrLocationRequired
	}

	return s.mutateRecorded(ctx, actor, false, true, func(tx *sql.Tx, user *models.User, order *models.Order) error {
		items, err := store.ListOrderItems(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrCartEmpty
		}

		addr.ID = 0
		if order.ShippingAddressID != nil {
			addr.ID = *order.ShippingAddressID
		}
		if user != nil {
			uid := user.ID
			addr.UserID = &uid
		}
		if err := store.SaveAddress(ctx, tx, &addr); err != nil {
			return err
		}
		order.ShippingAddressID = &addr.ID
		return store.SaveOrderPricing(ctx, tx, order)
	})
}

type TaxQuoteRequest struct {
	Location pricing.Location
	// Subtotal overrides the cart's discounted subtotal when set.
	Subtotal *decimal.Decimal
}

type TaxQuote struct {
	pricing.TaxResult
	Subtotal   decimal.Decimal
	GrandTotal decimal.Decimal
	Location   string
}

// TaxQuote prices tax for a location without touching the cart.
func (s *Service) TaxQuote(ctx context.Context, actor Actor, req TaxQuoteRequest) (*TaxQuote, error) {
	loc := pricing.Location{
		Country: strings.TrimSpace(req.Location.Country),
		State:   strings.TrimSpace(req.Location.State),
		City:    strings.TrimSpace(req.Location.City),
	}
	if loc.Country == "" || loc.State == "" {
		return nil, ErrLocationRequired
	}

	var quote *TaxQuote
	err := s.readOnly(ctx, func(tx *sql.Tx) error {
		user, err := s.lookupUser(ctx, tx, actor.UserID)
		if err != nil {
			return err
		}

		subtotal := decimal.Zero
		if req.Subtotal != nil {
			subtotal = *req.Subtotal
		} else {
			if subtotal, err = s.cartTaxable(ctx, tx, actor); err != nil {
				return err
			}
		}
		if subtotal.IsNegative() {
			subtotal = decimal.Zero
		}

		res, err := s.tax(ctx, tx, user, loc, subtotal)
		if err != nil {
			return err
		}
		quote = &TaxQuote{
			TaxResult:  res,
			Subtotal:   subtotal,
			GrandTotal: subtotal.Add(res.TaxAmount),
			Location:   loc.String(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quote, nil
}

// cartTaxable returns the discounted subtotal of the caller's cart, or zero
// when there is none. It reads without locking.
func (s *Service) cartTaxable(ctx context.Context, q database.Querier, actor Actor) (decimal.Decimal, error) {
	order, err := s.peekCart(ctx, q, actor)
	if errors.Is(err, database.ErrOrderNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	if err := s.loadDetails(ctx, q, order); err != nil {
		return decimal.Zero, err
	}
	return pricing.OrderTotals(order).DiscountedSubtotal, nil
}

func (s *Service) peekCart(ctx context.Context, q database.Querier, actor Actor) (*models.Order, error) {
	if actor.OrderID > 0 {
		order, err := store.GetOrder(ctx, q, actor.OrderID)
		switch {
		case err == nil:
			owned := order.UserID == nil || *order.UserID == actor.UserID
			if !order.Ordered && owned {
				return order, nil
			}
		case !errors.Is(err, database.ErrOrderNotFound):
			return nil, err
		}
	}
	if actor.UserID != 0 {
		return store.FindOpenCartForUser(ctx, q, actor.UserID)
	}
	return nil, database.ErrOrderNotFound
}

type WholesaleQuote struct {
	pricing.WholesaleDiscount
	Tiers []pricing.WholesaleTier
	Next  pricing.NextThreshold
}

// WholesaleQuote previews the wholesale discount for amount. Only
// authenticated users may ask; non-wholesale users get a zero discount.
func (s *Service) WholesaleQuote(ctx context.Context, actor Actor, amount decimal.Decimal) (*WholesaleQuote, error) {
	if actor.UserID == 0 {
		return nil, ErrAuthRequired
	}
	var user *models.User
	err := s.readOnly(ctx, func(tx *sql.Tx) error {
		var err error
		user, err = s.lookupUser(ctx, tx, actor.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}

	cfg := s.wholesale.Get()
	return &WholesaleQuote{
		WholesaleDiscount: pricing.CalculateWholesaleDiscount(cfg, amount, user.IsWholesale),
		Tiers:             cfg.Tiers,
		Next:              cfg.NextThreshold(amount),
	}, nil
}

func (s *Service) WholesaleTiers() pricing.WholesaleConfig {
	return s.wholesale.Get()
}

func (s *Service) Countries(ctx context.Context) ([]models.Country, error) {
	var out []models.Country
	err := s.readOnly(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = store.ListCountries(ctx, tx)
		return err
	})
	return out, err
}

func (s *Service) States(ctx context.Context, countryID int64) ([]models.State, error) {
	var out []models.State
	err := s.readOnly(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = store.ListStates(ctx, tx, countryID)
		return err
	})
	return out, err
}

func (s *Service) Cities(ctx context.Context, stateID int64) ([]models.City, error) {
	var out []models.City
	err := s.readOnly(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = store.ListCities(ctx, tx, stateID)
		return err
	})
	return out, err
}
