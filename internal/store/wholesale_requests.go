package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-sql-checkout/internal/database"
	"github.com/safar/go-sql-checkout/internal/models"
)

const wholesaleRequestColumns = `id, user_id, business_name, business_type, tax_id, website,
	expected_monthly_volume, reason, status, reviewed_at, admin_notes, created_at, updated_at`

func scanWholesaleRequest(row interface{ Scan(...any) error }) (*models.WholesaleRequest, error) {
	var (
		r        models.WholesaleRequest
		reviewed sql.NullTime
	)
	err := row.Scan(&r.ID, &r.UserID, &r.BusinessName, &r.BusinessType, &r.TaxID, &r.Website,
		&r.ExpectedMonthlyVolume, &r.Reason, &r.Status, &reviewed, &r.AdminNotes, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.ReviewedAt = timePtr(reviewed)
	return &r, nil
}

// CreateWholesaleRequest inserts req as pending and fills in the generated
// fields. A second open request for the same user fails with
// ErrWholesaleRequestOpen.
func CreateWholesaleRequest(ctx context.Context, q database.Querier, req *models.WholesaleRequest) error {
	row := q.QueryRowContext(ctx,
		`INSERT INTO wholesale_requests
		    (user_id, business_name, business_type, tax_id, website, expected_monthly_volume, reason, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		 RETURNING `+wholesaleRequestColumns,
		req.UserID, req.BusinessName, req.BusinessType, req.TaxID, req.Website,
		req.ExpectedMonthlyVolume, req.Reason)
	created, err := scanWholesaleRequest(row)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return database.ErrWholesaleRequestOpen
		}
		return fmt.Errorf("create wholesale request: %w", err)
	}
	*req = *created
	return nil
}

// OpenWholesaleRequest returns the user's pending or approved request, or
// ErrWholesaleRequestNotFound when there is none.
func OpenWholesaleRequest(ctx context.Context, q database.Querier, userID int64) (*models.WholesaleRequest, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+wholesaleRequestColumns+`
		 FROM wholesale_requests
		 WHERE user_id = $1 AND status IN ('pending', 'approved')
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`, userID)
	r, err := scanWholesaleRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrWholesaleRequestNotFound
		}
		return nil, fmt.Errorf("get open wholesale request: %w", err)
	}
	return r, nil
}

// ListWholesaleRequests returns the user's requests newest first. A limit
// below one returns all of them.
func ListWholesaleRequests(ctx context.Context, q database.Querier, userID int64, limit int) ([]models.WholesaleRequest, error) {
	query := `SELECT ` + wholesaleRequestColumns + `
		FROM wholesale_requests
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list wholesale requests: %w", err)
	}
	defer rows.Close()

	out := []models.WholesaleRequest{}
	for rows.Next() {
		r, err := scanWholesaleRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wholesale request: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// GetWholesaleRequest loads one request owned by userID. Requests of other
// users are reported as not found.
func GetWholesaleRequest(ctx context.Context, q database.Querier, userID, id int64) (*models.WholesaleRequest, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+wholesaleRequestColumns+`
		 FROM wholesale_requests
		 WHERE id = $1 AND user_id = $2`, id, userID)
	r, err := scanWholesaleRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrWholesaleRequestNotFound
		}
		return nil, fmt.Errorf("get wholesale request: %w", err)
	}
	return r, nil
}
