package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/safar/go-sql-checkout/internal/database"
	"github.com/safar/go-sql-checkout/internal/models"
	"github.com/safar/go-sql-checkout/internal/pricing"
	"github.com/safar/go-sql-checkout/internal/store"
	"go.uber.org/zap"
)

const recentWholesaleRequests = 5

var (
	ErrInvalidWholesaleRequest = errors.New("invalid wholesale request")
	ErrAlreadyWholesale        = errors.New("user already has wholesale access")
)

// WholesaleApplication is what a customer submits to ask for wholesale
// pricing.
type WholesaleApplication struct {
	BusinessName          string
	BusinessType          string
	TaxID                 string
	Website               string
	ExpectedMonthlyVolume string
	Reason                string
}

func (a *WholesaleApplication) normalize() error {
	a.BusinessName = strings.TrimSpace(a.BusinessName)
	a.BusinessType = strings.ToLower(strings.TrimSpace(a.BusinessType))
	a.TaxID = strings.TrimSpace(a.TaxID)
	a.Website = strings.TrimSpace(a.Website)
	a.ExpectedMonthlyVolume = strings.TrimSpace(a.ExpectedMonthlyVolume)
	a.Reason = strings.TrimSpace(a.Reason)

	switch {
	case a.BusinessName == "":
		return fmt.Errorf("%w: business_name is required", ErrInvalidWholesaleRequest)
	case len(a.BusinessName) > 200:
		return fmt.Errorf("%w: business_name is longer than 200 characters", ErrInvalidWholesaleRequest)
	case models.BusinessTypes[a.BusinessType] == "":
		return fmt.Errorf("%w: unknown business_type %q", ErrInvalidWholesaleRequest, a.BusinessType)
	case len(a.TaxID) > 50:
		return fmt.Errorf("%w: tax_id is longer than 50 characters", ErrInvalidWholesaleRequest)
	case a.ExpectedMonthlyVolume == "":
		return fmt.Errorf("%w: expected_monthly_volume is required", ErrInvalidWholesaleRequest)
	case a.Reason == "":
		return fmt.Errorf("%w: reason is required", ErrInvalidWholesaleRequest)
	}
	if a.Website != "" {
		u, err := url.Parse(a.Website)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: website must be an http or https URL", ErrInvalidWholesaleRequest)
		}
	}
	return nil
}

// RequestWholesale files a pending wholesale request for the caller. Users
// that are already wholesale, or hold an approved request, get
// ErrAlreadyWholesale; a second pending request gets
// database.ErrWholesaleRequestOpen.
func (s *Service) RequestWholesale(ctx context.Context, actor Actor, app WholesaleApplication) (*models.WholesaleRequest, error) {
	if actor.UserID == 0 {
		return nil, ErrAuthRequired
	}
	if err := app.normalize(); err != nil {
		return nil, err
	}

	var created *models.WholesaleRequest
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		user, err := s.lookupUser(ctx, tx, actor.UserID)
		if err != nil {
			return err
		}
		if user.IsWholesale {
			return ErrAlreadyWholesale
		}

		open, err := store.OpenWholesaleRequest(ctx, tx, user.ID)
		switch {
		case errors.Is(err, database.ErrWholesaleRequestNotFound):
		case err != nil:
			return err
		case open.Status == models.WholesaleRequestApproved:
			return ErrAlreadyWholesale
		default:
			return database.ErrWholesaleRequestOpen
		}

		req := &models.WholesaleRequest{
			UserID:                user.ID,
			BusinessName:          app.BusinessName,
			BusinessType:          app.BusinessType,
			TaxID:                 app.TaxID,
			Website:               app.Website,
			ExpectedMonthlyVolume: app.ExpectedMonthlyVolume,
			Reason:                app.Reason,
		}
		if err := store.CreateWholesaleRequest(ctx, tx, req); err != nil {
			return err
		}
		created = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("wholesale request filed",
		zap.Int64("request_id", created.ID),
		zap.Int64("user_id", created.UserID),
		zap.String("business_type", created.BusinessType))
	return created, nil
}

type WholesaleStatus struct {
	IsWholesale        bool
	HasPendingRequest  bool
	HasApprovedRequest bool
	RecentRequests     []models.WholesaleRequest
	// DiscountTiers is set only for wholesale users.
	DiscountTiers []pricing.WholesaleTier
}

func (s *Service) WholesaleStatus(ctx context.Context, actor Actor) (*WholesaleStatus, error) {
	if actor.UserID == 0 {
		return nil, ErrAuthRequired
	}
	status := &WholesaleStatus{}
	err := s.readOnly(ctx, func(tx *sql.Tx) error {
		user, err := s.lookupUser(ctx, tx, actor.UserID)
		if err != nil {
			return err
		}
		status.IsWholesale = user.IsWholesale

		open, err := store.OpenWholesaleRequest(ctx, tx, user.ID)
		switch {
		case errors.Is(err, database.ErrWholesaleRequestNotFound):
		case err != nil:
			return err
		default:
			status.HasPendingRequest = open.Status == models.WholesaleRequestPending
			status.HasApprovedRequest = open.Status == models.WholesaleRequestApproved
		}

		status.RecentRequests, err = store.ListWholesaleRequests(ctx, tx, user.ID, recentWholesaleRequests)
		return err
	})
	if err != nil {
		return nil, err
	}
	if status.IsWholesale {
		status.DiscountTiers = s.wholesale.Get().Tiers
	}
	return status, nil
}

func (s *Service) WholesaleRequests(ctx context.Context, actor Actor) ([]models.WholesaleRequest, error) {
	if actor.UserID == 0 {
		return nil, ErrAuthRequired
	}
	var out []models.WholesaleRequest
	err := s.readOnly(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = store.ListWholesaleRequests(ctx, tx, actor.UserID, 0)
		return err
	})
	return out, err
}

// WholesaleRequest returns one of the caller's requests. Another user's
// request is indistinguishable from a missing one.
func (s *Service) WholesaleRequest(ctx context.Context, actor Actor, id int64) (*models.WholesaleRequest, error) {
	if actor.UserID == 0 {
		return nil, ErrAuthRequired
	}
	var out *models.WholesaleRequest
	err := s.readOnly(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = store.GetWholesaleRequest(ctx, tx, actor.UserID, id)
		return err
	})
	return out, err
}
