package checkout

import (
	"context"
	"database/sql"
	"errors"

	"github.com/safar/go-sql-checkout/internal/database"
	"github.com/safar/go-sql-checkout/internal/models"
	"github.com/safar/go-sql-checkout/internal/pricing"
	"github.com/safar/go-sql-checkout/internal/store"
	"go.uber.org/zap"
)

// AddItem puts quantity units of the variant in the cart, merging with an
// existing line, and restarts the abandonment clock.
func (s *Service) AddItem(ctx context.Context, actor Actor, variantID int64, quantity int) (*Cart, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	return s.mutate(ctx, actor, true, func(tx *sql.Tx, _ *models.User, order *models.Order) error {
		variant, err := store.GetVariant(ctx, tx, variantID)
		if err != nil {
			return err
		}
		total, err := store.AddOrderItem(ctx, tx, order.ID, variant.ID, quantity)
		if err != nil {
			return err
		}
		if total > variant.StockQuantity {
			return database.ErrInsufficientStock
		}
		return store.TouchCart(ctx, tx, order.ID, s.now())
	})
}

// UpdateItem sets the line quantity; zero or less removes the line.
func (s *Service) UpdateItem(ctx context.Context, actor Actor, itemID int64, quantity int) (*Cart, error) {
	return s.mutate(ctx, actor, false, func(tx *sql.Tx, _ *models.User, order *models.Order) error {
		item, err := store.GetOrderItem(ctx, tx, order.ID, itemID)
		if err != nil {
			return err
		}
		if quantity <= 0 {
			if err := store.DeleteOrderItem(ctx, tx, order.ID, item.ID); err != nil {
				return err
			}
			return store.TouchCart(ctx, tx, order.ID, s.now())
		}
		variant, err := store.GetVariant(ctx, tx, item.VariantID)
		if err != nil {
			return err
		}
		if quantity > variant.StockQuantity {
			return database.ErrInsufficientStock
		}
		if err := store.SetOrderItemQuantity(ctx, tx, order.ID, item.ID, quantity); err != nil {
			return err
		}
		return store.TouchCart(ctx, tx, order.ID, s.now())
	})
}

func (s *Service) RemoveItem(ctx context.Context, actor Actor, itemID int64) (*Cart, error) {
	return s.mutate(ctx, actor, false, func(tx *sql.Tx, _ *models.User, order *models.Order) error {
		if err := store.DeleteOrderItem(ctx, tx, order.ID, itemID); err != nil {
			return err
		}
		return store.TouchCart(ctx, tx, order.ID, s.now())
	})
}

// ClearCart empties the cart. Repricing an empty cart drops the coupon,
// shipping, tax, exemption and wholesale discount.
func (s *Service) ClearCart(ctx context.Context, actor Actor) (*Cart, error) {
	return s.mutate(ctx, actor, false, func(tx *sql.Tx, _ *models.User, order *models.Order) error {
		if err := store.DeleteOrderItems(ctx, tx, order.ID); err != nil {
			return err
		}
		return store.TouchCart(ctx, tx, order.ID, s.now())
	})
}

// ApplyCoupon attaches the coupon with the given code after running the
// coupon rules against the current cart.
func (s *Service) ApplyCoupon(ctx context.Context, actor Actor, code string) (*Cart, error) {
	return s.mutate(ctx, actor, true, func(tx *sql.Tx, user *models.User, order *models.Order) error {
		if err := s.loadDetails(ctx, tx, order); err != nil {
			return err
		}
		subtotal := pricing.Subtotal(order.Items)
		isWholesale := user != nil && user.IsWholesale
		order.WholesaleDiscount = pricing.CalculateWholesaleDiscount(s.wholesale.Get(), subtotal, isWholesale).Amount

		c, err := store.GetCouponByCode(ctx, tx, code)
		if err != nil && !errors.Is(err, database.ErrCouponNotFound) {
			return err
		}
		if err := s.checkCoupon(ctx, tx, user, order, c, subtotal); err != nil {
			return err
		}

		order.CouponID = &c.ID
		return store.SaveOrderPricing(ctx, tx, order)
	})
}

func (s *Service) RemoveCoupon(ctx context.Context, actor Actor) (*Cart, error) {
	return s.mutate(ctx, actor, false, func(tx *sql.Tx, _ *models.User, order *models.Order) error {
		order.CouponID = nil
		return store.SaveOrderPricing(ctx, tx, order)
	})
}

// RecoverCart serves the link sent in abandoned-cart emails. Opening it
// restarts the clock of a cart that has already been emailed about.
func (s *Service) RecoverCart(ctx context.Context, reference string) (*Cart, error) {
	var cart *Cart
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		found, err := store.GetOpenOrderByReference(ctx, tx, reference)
		if err != nil {
			return err
		}
		order, err := store.LockOpenOrder(ctx, tx, found.ID)
		if err != nil {
			return err
		}
		if order.AbandonedEmailCount > 0 {
			if err := store.MarkRecoveryClicked(ctx, tx, order.ID, s.now()); err != nil {
				return err
			}
		}

		var user *models.User
		if order.UserID != nil {
			if user, err = store.GetUser(ctx, tx, *order.UserID); err != nil {
				return err
			}
		}
		cart, err = s.reprice(ctx, tx, user, order.ID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// PlaceOrder reprices the cart one final time, takes the stock and marks the
// order as ordered.
func (s *Service) PlaceOrder(ctx context.Context, actor Actor) (*Cart, error) {
	var cart *Cart
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		user, err := s.lookupUser(ctx, tx, actor.UserID)
		if err != nil {
			return err
		}
		order, err := s.resolveCart(ctx, tx, actor, false)
		if err != nil {
			return err
		}
		if order.ShippingAddressID == nil {
			return ErrAddressRequired
		}

		cart, err = s.reprice(ctx, tx, user, order.ID, true)
		if err != nil {
			return err
		}
		if len(cart.Order.Items) == 0 {
			return ErrCartEmpty
		}

		for _, item := range cart.Order.Items {
			if _, err := store.ReserveStockNoWait(ctx, tx, item.VariantID, item.Quantity); err != nil {
				return err
			}
			if err := store.DecrementStock(ctx, tx, item.VariantID, item.Quantity); err != nil {
				return err
			}
		}

		now := s.now()
		if err := store.FinalizeOrder(ctx, tx, order.ID, now); err != nil {
			return err
		}
		cart.Order.Ordered = true
		cart.Order.Status = models.OrderStatusOrdered
		cart.Order.OrderedDate = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("order placed",
		zap.Int64("order_id", cart.Order.ID),
		zap.String("reference", cart.Order.ReferenceNumber),
		zap.String("grand_total", cart.Totals.GrandTotal.StringFixed(2)))
	return cart, nil
}

func (s *Service) ListOrders(ctx context.Context, actor Actor, cursor string, limit int) (*store.CursorPage[models.Order], error) {
	if actor.UserID == 0 {
		return nil, ErrAuthRequired
	}
	var page *store.CursorPage[models.Order]
	err := s.readOnly(ctx, func(tx *sql.Tx) error {
		var err error
		page, err = store.ListOrdersCursor(ctx, tx, actor.UserID, cursor, limit)
		return err
	})
	return page, err
}

func (s *Service) ListVariants(ctx context.Context, page, pageSize int) (*store.OffsetPage[models.Variant], error) {
	var result *store.OffsetPage[models.Variant]
	err := s.readOnly(ctx, func(tx *sql.Tx) error {
		var err error
		result, err = store.ListVariants(ctx, tx, page, pageSize)
		return err
	})
	return result, err
}
