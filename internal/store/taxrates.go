package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/safar/go-sql-checkout/internal/database"
	"github.com/safar/go-sql-checkout/internal/models"
	"github.com/shopspring/decimal"
)

func CreateCountry(ctx context.Context, q database.Querier, name, code string) (*models.Country, error) {
	c := &models.Country{Name: name, Code: code}
	err := q.QueryRowContext(ctx,
		`INSERT INTO countries (name, code) VALUES ($1, $2) RETURNING id`,
		name, code).Scan(&c.ID)
	if err != nil {
		return nil, fmt.Errorf("create country: %w", err)
	}
	return c, nil
}

func CreateState(ctx context.Context, q database.Querier, countryID int64, name, code string) (*models.State, error) {
	s := &models.State{CountryID: countryID, Name: name, Code: code}
	err := q.QueryRowContext(ctx,
		`INSERT INTO states (country_id, name, code) VALUES ($1, $2, $3) RETURNING id`,
		countryID, name, code).Scan(&s.ID)
	if err != nil {
		return nil, fmt.Errorf("create state: %w", err)
	}
	return s, nil
}

func CreateCity(ctx context.Context, q database.Querier, stateID int64, name string) (*models.City, error) {
	c := &models.City{StateID: stateID, Name: name}
	err := q.QueryRowContext(ctx,
		`INSERT INTO cities (state_id, name) VALUES ($1, $2) RETURNING id`,
		stateID, name).Scan(&c.ID)
	if err != nil {
		return nil, fmt.Errorf("create city: %w", err)
	}
	return c, nil
}

// EnsureCountry returns the country named name, creating it when missing.
func EnsureCountry(ctx context.Context, q database.Querier, name, code string) (*models.Country, error) {
	c := &models.Country{Name: name}
	err := q.QueryRowContext(ctx,
		`INSERT INTO countries (name, code) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET code = COALESCE(NULLIF(countries.code, ''), EXCLUDED.code)
		 RETURNING id, code`,
		name, code).Scan(&c.ID, &c.Code)
	if err != nil {
		return nil, fmt.Errorf("ensure country: %w", err)
	}
	return c, nil
}

func EnsureState(ctx context.Context, q database.Querier, countryID int64, name, code string) (*models.State, error) {
	s := &models.State{CountryID: countryID, Name: name}
	err := q.QueryRowContext(ctx,
		`INSERT INTO states (country_id, name, code) VALUES ($1, $2, $3)
		 ON CONFLICT (country_id, name) DO UPDATE SET code = COALESCE(NULLIF(states.code, ''), EXCLUDED.code)
		 RETURNING id, code`,
		countryID, name, code).Scan(&s.ID, &s.Code)
	if err != nil {
		return nil, fmt.Errorf("ensure state: %w", err)
	}
	return s, nil
}

func EnsureCity(ctx context.Context, q database.Querier, stateID int64, name string) (*models.City, error) {
	c := &models.City{StateID: stateID, Name: name}
	err := q.QueryRowContext(ctx,
		`INSERT INTO cities (state_id, name) VALUES ($1, $2)
		 ON CONFLICT (state_id, name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		stateID, name).Scan(&c.ID)
	if err != nil {
		return nil, fmt.Errorf("ensure city: %w", err)
	}
	return c, nil
}

// EnsureTaxRate sets the rate for exactly the country, state and city in p,
// reactivating an existing row before inserting a new one. It reports
// whether a row was created.
func EnsureTaxRate(ctx context.Context, q database.Querier, p CreateTaxRateParams) (bool, error) {
	if p.TaxType == "" {
		p.TaxType = models.TaxTypeSales
	}
	res, err := q.ExecContext(ctx,
		`UPDATE tax_rates
		 SET rate = $4, tax_type = $5, is_active = TRUE, expiry_date = NULL
		 WHERE country_id = $1
		   AND state_id IS NOT DISTINCT FROM $2
		   AND city_id IS NOT DISTINCT FROM $3`,
		p.CountryID, nullInt64(p.StateID), nullInt64(p.CityID), p.Rate, p.TaxType)
	if err != nil {
		return false, fmt.Errorf("update tax rate: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return false, nil
	}
	p.IsActive = true
	if _, err := CreateTaxRate(ctx, q, p); err != nil {
		return false, err
	}
	return true, nil
}

func ListCountries(ctx context.Context, q database.Querier) ([]models.Country, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name, code FROM countries ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}
	defer rows.Close()

	countries := []models.Country{}
	for rows.Next() {
		var c models.Country
		if err := rows.Scan(&c.ID, &c.Name, &c.Code); err != nil {
			return nil, fmt.Errorf("scan country: %w", err)
		}
		countries = append(countries, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return countries, nil
}

func ListStates(ctx context.Context, q database.Querier, countryID int64) ([]models.State, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, country_id, name, code FROM states WHERE country_id = $1 ORDER BY name`, countryID)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	defer rows.Close()

	states := []models.State{}
	for rows.Next() {
		var s models.State
		if err := rows.Scan(&s.ID, &s.CountryID, &s.Name, &s.Code); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		states = append(states, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return states, nil
}

func ListCities(ctx context.Context, q database.Querier, stateID int64) ([]models.City, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, state_id, name FROM cities WHERE state_id = $1 ORDER BY name`, stateID)
	if err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	defer rows.Close()

	cities := []models.City{}
	for rows.Next() {
		var c models.City
		if err := rows.Scan(&c.ID, &c.StateID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan city: %w", err)
		}
		cities = append(cities, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return cities, nil
}

type CreateTaxRateParams struct {
	CountryID     int64
	StateID       *int64
	CityID        *int64
	Rate          decimal.Decimal
	TaxType       string
	EffectiveDate time.Time
	ExpiryDate    *time.Time
	IsActive      bool
}

func CreateTaxRate(ctx context.Context, q database.Querier, p CreateTaxRateParams) (int64, error) {
	if p.TaxType == "" {
		p.TaxType = models.TaxTypeSales
	}
	var id int64
	err := q.QueryRowContext(ctx,
		`INSERT INTO tax_rates (country_id, state_id, city_id, rate, tax_type, effective_date, expiry_date, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		 RETURNING id`,
		p.CountryID, nullInt64(p.StateID), nullInt64(p.CityID), p.Rate, p.TaxType,
		models.DateOf(p.EffectiveDate), nullTime(p.ExpiryDate), p.IsActive).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create tax rate: %w", err)
	}
	return id, nil
}

// ListTaxRatesForCountry returns the active rates recorded for a country,
// matched case-insensitively by name, with location names filled in.
func ListTaxRatesForCountry(ctx context.Context, q database.Querier, country string) ([]models.TaxRate, error) {
	query := `
		SELECT tr.id, tr.country_id, tr.state_id, tr.city_id,
		       c.name, COALESCE(s.name, ''), COALESCE(ci.name, ''),
		       tr.rate, tr.tax_type, tr.effective_date, tr.expiry_date, tr.is_active
		FROM tax_rates tr
		JOIN countries c ON c.id = tr.country_id
		LEFT JOIN states s ON s.id = tr.state_id
		LEFT JOIN cities ci ON ci.id = tr.city_id
		WHERE LOWER(c.name) = LOWER($1)
		  AND tr.is_active = TRUE
		ORDER BY tr.effective_date DESC, tr.id DESC`

	rows, err := q.QueryContext(ctx, query, country)
	if err != nil {
		return nil, fmt.Errorf("list tax rates: %w", err)
	}
	defer rows.Close()

	rates := []models.TaxRate{}
	for rows.Next() {
		var (
			r       models.TaxRate
			stateID sql.NullInt64
			cityID  sql.NullInt64
			expiry  sql.NullTime
		)
		err := rows.Scan(&r.ID, &r.CountryID, &stateID, &cityID,
			&r.Country, &r.State, &r.City,
			&r.Rate, &r.TaxType, &r.EffectiveDate, &expiry, &r.IsActive)
		if err != nil {
			return nil, fmt.Errorf("scan tax rate: %w", err)
		}
		r.StateID = int64Ptr(stateID)
		r.CityID = int64Ptr(cityID)
		r.ExpiryDate = timePtr(expiry)
		rates = append(rates, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return rates, nil
}

type TaxCalculationRecord struct {
	OrderID       int64
	TaxableAmount decimal.Decimal
	TaxRate       decimal.Decimal
	TaxAmount     decimal.Decimal
	IsExempt      bool
	Location      string
}

func RecordTaxCalculation(ctx context.Context, q database.Querier, rec TaxCalculationRecord) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO tax_calculations (order_id, taxable_amount, tax_rate, tax_amount, is_exempt, location, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		rec.OrderID, rec.TaxableAmount, rec.TaxRate, rec.TaxAmount, rec.IsExempt, rec.Location)
	if err != nil {
		return fmt.Errorf("record tax calculation: %w", err)
	}
	return nil
}

func CountTaxCalculations(ctx context.Context, q database.Querier, orderID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM tax_calculations WHERE order_id = $1`, orderID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tax calculations: %w", err)
	}
	return n, nil
}
