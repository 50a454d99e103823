// Package checkout runs cart mutations and pricing against the database.
// Every mutation locks the cart row, applies the change and reprices the
// order in the same transaction.
package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/safar/go-sql-checkout/internal/database"
	"github.com/safar/go-sql-checkout/internal/models"
	"github.com/safar/go-sql-checkout/internal/pricing"
	"github.com/safar/go-sql-checkout/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrCartEmpty        = errors.New("cart is empty")
	ErrLocationRequired = errors.New("country and state are required")
	ErrAddressRequired  = errors.New("shipping address is required")
	ErrAuthRequired     = errors.New("authentication required")
)

// WholesaleSource supplies the tier table in force.
type WholesaleSource interface {
	Get() pricing.WholesaleConfig
}

// Actor identifies who is calling and which cart they claim. Both fields are
// zero for a first-time anonymous visitor.
type Actor struct {
	UserID  int64
	OrderID int64
}

type Cart struct {
	Order               *models.Order
	Totals              pricing.Totals
	WholesalePercentage decimal.Decimal
	TaxRate             decimal.Decimal
}

type Service struct {
	db        *sql.DB
	log       *zap.Logger
	wholesale WholesaleSource
	warehouse pricing.Warehouse
	now       func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(db *sql.DB, wholesale WholesaleSource, warehouse pricing.Warehouse, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		db:        db,
		log:       log.Named("checkout"),
		wholesale: wholesale,
		warehouse: warehouse,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type mutation func(tx *sql.Tx, user *models.User, order *models.Order) error

// mutate runs fn on the caller's locked cart and returns the repriced cart.
func (s *Service) mutate(ctx context.Context, actor Actor, create bool, fn mutation) (*Cart, error) {
	return s.mutateRecorded(ctx, actor, create, false, fn)
}

// mutateRecorded is mutate that also writes a tax calculation audit row
// when record is set.
func (s *Service) mutateRecorded(ctx context.Context, actor Actor, create, record bool, fn mutation) (*Cart, error) {
	var cart *Cart
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		user, err := s.lookupUser(ctx, tx, actor.UserID)
		if err != nil {
			return err
		}
		order, err := s.resolveCart(ctx, tx, actor, create)
		if err != nil {
			return err
		}
		if fn != nil {
			if err := fn(tx, user, order); err != nil {
				return err
			}
		}
		cart, err = s.reprice(ctx, tx, user, order.ID, record)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *Service) GetCart(ctx context.Context, actor Actor) (*Cart, error) {
	return s.mutate(ctx, actor, true, nil)
}

func (s *Service) lookupUser(ctx context.Context, q database.Querier, userID int64) (*models.User, error) {
	if userID == 0 {
		return nil, nil
	}
	user, err := store.GetUser(ctx, q, userID)
	if errors.Is(err, database.ErrUserNotFound) {
		return nil, ErrAuthRequired
	}
	return user, err
}

// resolveCart locks the cart named by actor.OrderID when the caller may use
// it, otherwise the user's latest open cart, otherwise a new one.
func (s *Service) resolveCart(ctx context.Context, tx *sql.Tx, actor Actor, create bool) (*models.Order, error) {
	if actor.OrderID > 0 {
		order, err := store.LockOpenOrder(ctx, tx, actor.OrderID)
		switch {
		case err == nil:
			if order.UserID == nil {
				if actor.UserID != 0 {
					if err := store.AttachUser(ctx, tx, order, actor.UserID); err != nil {
						return nil, err
					}
				}
				return order, nil
			}
			if *order.UserID == actor.UserID {
				return order, nil
			}
		case !errors.Is(err, database.ErrOrderNotFound):
			return nil, err
		}
	}

	if actor.UserID != 0 {
		found, err := store.FindOpenCartForUser(ctx, tx, actor.UserID)
		switch {
		case err == nil:
			return store.LockOpenOrder(ctx, tx, found.ID)
		case !errors.Is(err, database.ErrOrderNotFound):
			return nil, err
		}
	}

	if !create {
		return nil, ErrCartEmpty
	}

	var userID *int64
	if actor.UserID != 0 {
		uid := actor.UserID
		userID = &uid
	}
	return store.CreateCart(ctx, tx, userID, s.now())
}

func (s *Service) loadDetails(ctx context.Context, q database.Querier, order *models.Order) error {
	items, err := store.ListOrderItems(ctx, q, order.ID)
	if err != nil {
		return err
	}
	order.Items = items

	order.Coupon = nil
	if order.CouponID != nil {
		c, err := store.GetCoupon(ctx, q, *order.CouponID)
		if err != nil && !errors.Is(err, database.ErrCouponNotFound) {
			return err
		}
		order.Coupon = c
	}

	order.ShippingAddress = nil
	if order.ShippingAddressID != nil {
		a, err := store.GetAddress(ctx, q, *order.ShippingAddressID)
		if err != nil && !errors.Is(err, database.ErrAddressNotFound) {
			return err
		}
		order.ShippingAddress = a
	}
	return nil
}

// reprice recomputes wholesale, coupon, shipping and tax for the order and
// persists them. Wholesale and coupon never coexist: a positive wholesale
// discount drops the coupon.
func (s *Service) reprice(ctx context.Context, tx *sql.Tx, user *models.User, orderID int64, record bool) (*Cart, error) {
	order, err := store.GetOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.loadDetails(ctx, tx, order); err != nil {
		return nil, err
	}

	subtotal := pricing.Subtotal(order.Items)
	cart := &Cart{Order: order, WholesalePercentage: decimal.Zero, TaxRate: decimal.Zero}

	if len(order.Items) == 0 {
		order.Coupon, order.CouponID = nil, nil
		order.TotalShippingCost = decimal.Zero
		order.TaxAmount = decimal.Zero
		order.IsTaxExempt = false
		order.WholesaleDiscount = decimal.Zero
		if err := store.ClearCartPricing(ctx, tx, order.ID); err != nil {
			return nil, err
		}
		cart.Totals = pricing.OrderTotals(order)
		return cart, nil
	}

	isWholesale := user != nil && user.IsWholesale
	wd := pricing.CalculateWholesaleDiscount(s.wholesale.Get(), subtotal, isWholesale)
	order.WholesaleDiscount = wd.Amount
	cart.WholesalePercentage = wd.Percentage

	if order.Coupon != nil {
		err := s.checkCoupon(ctx, tx, user, order, order.Coupon, subtotal)
		if err != nil && !pricing.IsCouponError(err) {
			return nil, err
		}
		if err != nil {
			s.log.Debug("dropping coupon", zap.Int64("order_id", order.ID), zap.String("code", order.Coupon.Code), zap.Error(err))
			order.Coupon, order.CouponID = nil, nil
		}
	} else {
		order.CouponID = nil
	}

	discount, _ := pricing.AppliedDiscount(subtotal, order.WholesaleDiscount, order.Coupon)
	taxable := subtotal.Sub(discount)

	order.TotalShippingCost = decimal.Zero
	order.TaxAmount = decimal.Zero
	order.IsTaxExempt = false

	if addr := order.ShippingAddress; addr != nil {
		loc := pricing.Location{Country: addr.Country, State: addr.State, City: addr.City}

		shipping, err := s.shippingCost(ctx, tx, loc, order.Items)
		if err != nil {
			return nil, err
		}
		order.TotalShippingCost = shipping

		tax, err := s.tax(ctx, tx, user, loc, taxable)
		if err != nil {
			return nil, err
		}
		order.TaxAmount = tax.TaxAmount
		order.IsTaxExempt = tax.IsExempt
		cart.TaxRate = tax.Rate

		if record {
			err := store.RecordTaxCalculation(ctx, tx, store.TaxCalculationRecord{
				OrderID:       order.ID,
				TaxableAmount: taxable,
				TaxRate:       tax.Rate,
				TaxAmount:     tax.TaxAmount,
				IsExempt:      tax.IsExempt,
				Location:      loc.String(),
			})
			if err != nil {
				return nil, err
			}
		}
	}

	if err := store.SaveOrderPricing(ctx, tx, order); err != nil {
		return nil, err
	}
	cart.Totals = pricing.OrderTotals(order)
	return cart, nil
}

func (s *Service) checkCoupon(ctx context.Context, q database.Querier, user *models.User, order *models.Order, c *models.Coupon, subtotal decimal.Decimal) error {
	check := pricing.CouponCheck{
		ItemCount:         len(order.Items),
		Subtotal:          subtotal,
		WholesaleDiscount: order.WholesaleDiscount,
	}
	if user != nil {
		check.UserID = user.ID
		if c != nil && c.SingleUsePerUser {
			consumed, err := store.CouponConsumedByUser(ctx, q, user.ID, c.ID)
			if err != nil {
				return err
			}
			check.ConsumedBefore = consumed
		}
	}
	return pricing.ValidateCoupon(c, check)
}

func (s *Service) shippingCost(ctx context.Context, q database.Querier, dest pricing.Location, items []models.OrderItem) (decimal.Decimal, error) {
	if !s.warehouse.Configured() {
		return decimal.Zero, nil
	}
	kind := pricing.ClassifyShipment(s.warehouse, dest)
	rules, err := store.ListShippingCosts(ctx, q, string(kind))
	if err != nil {
		return decimal.Zero, err
	}
	return pricing.ShippingCost(rules, pricing.ShippableItems(items)), nil
}

func (s *Service) tax(ctx context.Context, q database.Querier, user *models.User, loc pricing.Location, taxable decimal.Decimal) (pricing.TaxResult, error) {
	today := s.now()
	rates, err := store.ListTaxRatesForCountry(ctx, q, loc.Country)
	if err != nil {
		return pricing.TaxResult{}, err
	}
	rate := pricing.ResolveTaxRate(rates, loc, today)

	exempt := false
	if user != nil {
		exempt, err = store.UserHasValidTaxExemption(ctx, q, user.ID, today)
		if err != nil {
			return pricing.TaxResult{}, err
		}
	}
	return pricing.CalculateTax(taxable, rate, exempt), nil
}

func (s *Service) readOnly(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := database.WithTransaction(ctx, s.db, database.ReadOnlyTxOptions(), fn); err != nil {
		return fmt.Errorf("read: %w", err)
	}
	return nil
}
