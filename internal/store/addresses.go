package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-sql-checkout/internal/database"
	"github.com/safar/go-sql-checkout/internal/models"
)

const addressColumns = `
	id, user_id, first_name, last_name, email, phone, address_line_1, address_line_2,
	country, state, city, zip_code`

func scanAddress(row rowScanner) (*models.Address, error) {
	var (
		a      models.Address
		userID sql.NullInt64
	)
	err := row.Scan(
		&a.ID,
		&userID,
		&a.FirstName,
		&a.LastName,
		&a.Email,
		&a.Phone,
		&a.Line1,
		&a.Line2,
		&a.Country,
		&a.State,
		&a.City,
		&a.ZipCode,
	)
	if err != nil {
		return nil, err
	}
	a.UserID = int64Ptr(userID)
	return &a, nil
}

func GetAddress(ctx context.Context, q database.Querier, id int64) (*models.Address, error) {
	a, err := scanAddress(q.QueryRowContext(ctx, `SELECT `+addressColumns+` FROM addresses WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrAddressNotFound
		}
		return nil, fmt.Errorf("get address: %w", err)
	}
	return a, nil
}

// SaveAddress inserts a when its ID is zero and updates it otherwise.
func SaveAddress(ctx context.Context, q database.Querier, a *models.Address) error {
	if a.ID == 0 {
		err := q.QueryRowContext(ctx,
			`INSERT INTO addresses (user_id, first_name, last_name, email, phone, address_line_1, address_line_2,
			                        country, state, city, zip_code, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
			 RETURNING id`,
			nullInt64(a.UserID), a.FirstName, a.LastName, a.Email, a.Phone, a.Line1, a.Line2,
			a.Country, a.State, a.City, a.ZipCode).Scan(&a.ID)
		if err != nil {
			return fmt.Errorf("create address: %w", err)
		}
		return nil
	}

	result, err := q.ExecContext(ctx,
		`UPDATE addresses
		 SET user_id = COALESCE(user_id, $1), first_name = $2, last_name = $3, email = $4, phone = $5,
		     address_line_1 = $6, address_line_2 = $7, country = $8, state = $9, city = $10,
		     zip_code = $11, updated_at = NOW()
		 WHERE id = $12`,
		nullInt64(a.UserID), a.FirstName, a.LastName, a.Email, a.Phone, a.Line1, a.Line2,
		a.Country, a.State, a.City, a.ZipCode, a.ID)
	if err != nil {
		return fmt.Errorf("update address: %w", err)
	}
	return expectOneRow(result, database.ErrAddressNotFound)
}
