package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/safar/go-sql-checkout/internal/database"
	"github.com/safar/go-sql-checkout/internal/models"
)

func CreateUser(ctx context.Context, q database.Querier, email, firstName string, wholesale bool) (*models.User, error) {
	user := &models.User{}

	query := `
		INSERT INTO users (email, first_name, is_wholesale, created_at, updated_at, version)
		VALUES ($1, $2, $3, NOW(), NOW(), 1)
		RETURNING id, email, first_name, is_wholesale, created_at, updated_at, version`

	err := q.QueryRowContext(ctx, query, email, firstName, wholesale).Scan(
		&user.ID,
		&user.Email,
		&user.FirstName,
		&user.IsWholesale,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

func GetUser(ctx context.Context, q database.Querier, id int64) (*models.User, error) {
	user := &models.User{}

	query := `
		SELECT id, email, first_name, is_wholesale, created_at, updated_at, version
		FROM users
		WHERE id = $1`

	err := q.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.FirstName,
		&user.IsWholesale,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

// GetTaxExemption returns nil without error when the user has no exemption row.
func GetTaxExemption(ctx context.Context, q database.Querier, userID int64) (*models.TaxExemption, error) {
	var (
		ex        models.TaxExemption
		effective sql.NullTime
		expiry    sql.NullTime
	)
	err := q.QueryRowContext(ctx,
		`SELECT user_id, is_exempt, exemption_type, certificate_number, effective_date, expiry_date
		 FROM tax_exemptions
		 WHERE user_id = $1`,
		userID).Scan(&ex.UserID, &ex.IsExempt, &ex.ExemptionType, &ex.CertificateNumber, &effective, &expiry)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tax exemption: %w", err)
	}
	ex.EffectiveDate = timePtr(effective)
	ex.ExpiryDate = timePtr(expiry)
	return &ex, nil
}

func UpsertTaxExemption(ctx context.Context, q database.Querier, ex models.TaxExemption) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO tax_exemptions (user_id, is_exempt, exemption_type, certificate_number, effective_date, expiry_date)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id) DO UPDATE
		 SET is_exempt = EXCLUDED.is_exempt,
		     exemption_type = EXCLUDED.exemption_type,
		     certificate_number = EXCLUDED.certificate_number,
		     effective_date = EXCLUDED.effective_date,
		     expiry_date = EXCLUDED.expiry_date`,
		ex.UserID, ex.IsExempt, ex.ExemptionType, ex.CertificateNumber,
		nullTime(ex.EffectiveDate), nullTime(ex.ExpiryDate))
	if err != nil {
		return fmt.Errorf("upsert tax exemption: %w", err)
	}
	return nil
}

// UserHasValidTaxExemption is a convenience over GetTaxExemption.
func UserHasValidTaxExemption(ctx context.Context, q database.Querier, userID int64, today time.Time) (bool, error) {
	ex, err := GetTaxExemption(ctx, q, userID)
	if err != nil {
		return false, err
	}
	return ex.Valid(today), nil
}
