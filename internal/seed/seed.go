// Package seed loads the reference data a fresh install needs to quote
// tax and accept test coupons. Running it again updates rates in place.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/safar/go-sql-checkout/internal/database"
	"github.com/safar/go-sql-checkout/internal/models"
	"github.com/safar/go-sql-checkout/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	Country     = "United States"
	CountryCode = "US"
)

type cityRate struct {
	Name string
	Rate string
}

type stateRates struct {
	Name   string
	Code   string
	Rate   string
	Cities []cityRate
}

// DefaultTaxRates are combined sales tax rates for the states the shop
// ships to most.
var DefaultTaxRates = []stateRates{
	{"California", "CA", "0.0875", []cityRate{
		{"Los Angeles", "0.0900"}, {"San Francisco", "0.0850"}, {"San Diego", "0.0800"},
		{"Sacramento", "0.0825"}, {"San Jose", "0.0925"},
	}},
	{"New York", "NY", "0.0800", []cityRate{
		{"New York City", "0.0888"}, {"Buffalo", "0.0825"}, {"Rochester", "0.0800"},
		{"Albany", "0.0800"}, {"Syracuse", "0.0800"},
	}},
	{"Texas", "TX", "0.0625", []cityRate{
		{"Houston", "0.0825"}, {"Dallas", "0.0825"}, {"Austin", "0.0825"},
		{"San Antonio", "0.0825"}, {"Fort Worth", "0.0825"},
	}},
	{"Florida", "FL", "0.0600", []cityRate{
		{"Miami", "0.0700"}, {"Tampa", "0.0700"}, {"Orlando", "0.0650"},
		{"Jacksonville", "0.0700"}, {"Fort Lauderdale", "0.0700"},
	}},
	{"Illinois", "IL", "0.0625", []cityRate{
		{"Chicago", "0.1025"}, {"Aurora", "0.0825"}, {"Naperville", "0.0825"},
		{"Joliet", "0.0825"}, {"Rockford", "0.0825"},
	}},
	{"Arizona", "AZ", "0.0560", []cityRate{
		{"Phoenix", "0.0860"}, {"Tucson", "0.0860"}, {"Mesa", "0.0860"},
		{"Chandler", "0.0860"}, {"Scottsdale", "0.0860"},
	}},
}

// TestCoupons are percentage coupons without a minimum order.
var TestCoupons = []models.Coupon{
	{Title: "5% Discount Coupon", Code: "SAVE5", Discount: decimal.NewFromInt(5)},
	{Title: "10% Discount Coupon", Code: "SAVE10", Discount: decimal.NewFromInt(10)},
	{Title: "15% Discount Coupon", Code: "SAVE15", Discount: decimal.NewFromInt(15)},
	{Title: "20% Discount Coupon", Code: "SAVE20", Discount: decimal.NewFromInt(20)},
	{Title: "25% Discount Coupon", Code: "SAVE25", Discount: decimal.NewFromInt(25)},
}

type Result struct {
	States       int
	Cities       int
	RatesCreated int
	RatesUpdated int
	Coupons      int
}

type Options struct {
	// Coupons also loads TestCoupons. Production installs leave it off.
	Coupons bool
	Now     time.Time
}

// Run applies the seed data in one transaction.
func Run(ctx context.Context, db *sql.DB, log *zap.Logger, opts Options) (Result, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	var res Result
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		res = Result{}
		if err := seedTaxRates(ctx, tx, opts.Now, &res); err != nil {
			return err
		}
		if opts.Coupons {
			for _, c := range TestCoupons {
				c.DiscountType = models.DiscountTypePercentage
				if _, err := store.EnsureCoupon(ctx, tx, c); err != nil {
					return err
				}
				res.Coupons++
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("seed: %w", err)
	}

	log.Info("seed data applied",
		zap.Int("states", res.States),
		zap.Int("cities", res.Cities),
		zap.Int("rates_created", res.RatesCreated),
		zap.Int("rates_updated", res.RatesUpdated),
		zap.Int("coupons", res.Coupons))
	return res, nil
}

func seedTaxRates(ctx context.Context, tx *sql.Tx, now time.Time, res *Result) error {
	country, err := store.EnsureCountry(ctx, tx, Country, CountryCode)
	if err != nil {
		return err
	}

	ensure := func(stateID, cityID *int64, rate string) error {
		created, err := store.EnsureTaxRate(ctx, tx, store.CreateTaxRateParams{
			CountryID:     country.ID,
			StateID:       stateID,
			CityID:        cityID,
			Rate:          decimal.RequireFromString(rate),
			EffectiveDate: now,
		})
		if err != nil {
			return err
		}
		if created {
			res.RatesCreated++
		} else {
			res.RatesUpdated++
		}
		return nil
	}

	for _, sr := range DefaultTaxRates {
		state, err := store.EnsureState(ctx, tx, country.ID, sr.Name, sr.Code)
		if err != nil {
			return err
		}
		res.States++
		if err := ensure(&state.ID, nil, sr.Rate); err != nil {
			return fmt.Errorf("%s: %w", sr.Name, err)
		}

		for _, cr := range sr.Cities {
			city, err := store.EnsureCity(ctx, tx, state.ID, cr.Name)
			if err != nil {
				return err
			}
			res.Cities++
			if err := ensure(&state.ID, &city.ID, cr.Rate); err != nil {
				return fmt.Errorf("%s, %s: %w", cr.Name, sr.Name, err)
			}
		}
	}
	return nil
}
