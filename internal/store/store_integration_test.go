package store_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/safar/go-sql-checkout/internal/database"
	"github.com/safar/go-sql-checkout/internal/database/dbtest"
	"github.com/safar/go-sql-checkout/internal/models"
	"github.com/safar/go-sql-checkout/internal/pricing"
	"github.com/safar/go-sql-checkout/internal/store"
	"github.com/shopspring/decimal"
)

func createVariant(t *testing.T, db *sql.DB, sku string, price string, stock int) *models.Variant {
	t.Helper()
	v, err := store.CreateVariant(context.Background(), db, store.CreateVariantParams{
		SKU:   sku,
		Title: "Variant " + sku,
		Price: decimal.RequireFromString(price),
		Stock: stock,
	})
	if err != nil {
		t.Fatalf("Create variant %s: %v", sku, err)
	}
	return v
}

func createCartWithItem(t *testing.T, db *sql.DB, userID *int64, started time.Time, variantID int64) *models.Order {
	t.Helper()
	ctx := context.Background()
	order, err := store.CreateCart(ctx, db, userID, started)
	if err != nil {
		t.Fatalf("Create cart: %v", err)
	}
	if variantID != 0 {
		if _, err := store.AddOrderItem(ctx, db, order.ID, variantID, 1); err != nil {
			t.Fatalf("Add item: %v", err)
		}
	}
	return order
}

func TestFindAbandonedCarts(t *testing.T) {
	db, cleanup := dbtest.Setup(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now()

	user, err := store.CreateUser(ctx, db, "shopper@example.com", "Sam", false)
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}
	variant := createVariant(t, db, "AB-001", "20.00", 10)

	abandoned := createCartWithItem(t, db, &user.ID, now.Add(-2*time.Hour), variant.ID)
	createCartWithItem(t, db, &user.ID, now.Add(-10*time.Minute), variant.ID) // too recent
	createCartWithItem(t, db, &user.ID, now.Add(-2*time.Hour), 0)            // empty
	createCartWithItem(t, db, nil, now.Add(-2*time.Hour), variant.ID)        // anonymous

	carts, err := store.FindAbandonedCarts(ctx, db, 0, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Find abandoned carts: %v", err)
	}
	if len(carts) != 1 {
		t.Fatalf("Expected 1 abandoned cart, got %d", len(carts))
	}
	got := carts[0]
	if got.OrderID != abandoned.ID {
		t.Errorf("Expected order %d, got %d", abandoned.ID, got.OrderID)
	}
	if got.Email != "shopper@example.com" || got.FirstName != "Sam" {
		t.Errorf("Unexpected recipient %q %q", got.Email, got.FirstName)
	}
	if got.ReferenceNumber != abandoned.ReferenceNumber {
		t.Errorf("Expected reference %s, got %s", abandoned.ReferenceNumber, got.ReferenceNumber)
	}

	carts, err = store.FindAbandonedCarts(ctx, db, 1, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Find abandoned carts: %v", err)
	}
	if len(carts) != 0 {
		t.Errorf("Expected no carts at email count 1, got %d", len(carts))
	}
}

func TestMarkReminderSentIsConditional(t *testing.T) {
	db, cleanup := dbtest.Setup(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now()

	user, err := store.CreateUser(ctx, db, "reminder@example.com", "Rae", false)
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}
	variant := createVariant(t, db, "RM-001", "10.00", 10)
	order := createCartWithItem(t, db, &user.ID, now.Add(-2*time.Hour), variant.ID)

	ok, err := store.MarkReminderSent(ctx, db, order.ID, 0, now.Add(-time.Hour), now)
	if err != nil {
		t.Fatalf("Mark reminder sent: %v", err)
	}
	if !ok {
		t.Fatal("Expected first mark to advance the count")
	}

	ok, err = store.MarkReminderSent(ctx, db, order.ID, 0, now.Add(-time.Hour), now)
	if err != nil {
		t.Fatalf("Mark reminder sent again: %v", err)
	}
	if ok {
		t.Error("Second mark from the same count must be a no-op")
	}

	after, err := store.GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if after.AbandonedEmailCount != 1 || !after.AbandonedEmailSent || after.AbandonedEmailSentAt == nil {
		t.Errorf("Unexpected reminder state: count=%d sent=%t at=%v",
			after.AbandonedEmailCount, after.AbandonedEmailSent, after.AbandonedEmailSentAt)
	}

	if err := store.TouchCart(ctx, db, order.ID, now); err != nil {
		t.Fatalf("Touch cart: %v", err)
	}
	after, err = store.GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if after.AbandonedEmailCount != 0 || after.AbandonedEmailSent || after.AbandonedEmailSentAt != nil {
		t.Errorf("Touch should reset reminder state, got count=%d sent=%t", after.AbandonedEmailCount, after.AbandonedEmailSent)
	}

	// The cart was touched after the run picked it up: count 0 matches
	// again but the clock restarted, so it must not advance.
	ok, err = store.MarkReminderSent(ctx, db, order.ID, 0, now.Add(-time.Hour), now)
	if err != nil {
		t.Fatalf("Mark reminder sent after touch: %v", err)
	}
	if ok {
		t.Error("A touched cart must not advance")
	}
}

func TestEnsureCouponReactivates(t *testing.T) {
	db, cleanup := dbtest.Setup(t)
	defer cleanup()

	ctx := context.Background()

	_, err := store.CreateCoupon(ctx, db, models.Coupon{
		Title:              "Old comeback",
		Code:               "COMEBACK10",
		Discount:           decimal.NewFromInt(15),
		DiscountType:       models.DiscountTypePercentage,
		MinimumOrderAmount: decimal.Zero,
		Active:             false,
	})
	if err != nil {
		t.Fatalf("Create coupon: %v", err)
	}

	c, err := store.EnsureCoupon(ctx, db, models.Coupon{
		Title:              "Abandoned Cart Recovery Discount",
		Code:               "COMEBACK10",
		Discount:           decimal.NewFromInt(10),
		DiscountType:       models.DiscountTypePercentage,
		MinimumOrderAmount: decimal.Zero,
	})
	if err != nil {
		t.Fatalf("Ensure coupon: %v", err)
	}
	if !c.Active {
		t.Error("Ensured coupon should be active")
	}
	if !c.Discount.Equal(decimal.NewFromInt(15)) {
		t.Errorf("Existing discount should be kept, got %s", c.Discount)
	}

	fresh, err := store.EnsureCoupon(ctx, db, models.Coupon{
		Title:              "Fresh",
		Code:               "FRESH5",
		Discount:           decimal.NewFromInt(5),
		DiscountType:       models.DiscountTypeFixedAmount,
		MinimumOrderAmount: decimal.Zero,
	})
	if err != nil {
		t.Fatalf("Ensure new coupon: %v", err)
	}
	if fresh.ID == 0 || !fresh.Active {
		t.Errorf("Expected a new active coupon, got %+v", fresh)
	}

	if _, err := store.GetCouponByCode(ctx, db, "NOPE"); !errors.Is(err, database.ErrCouponNotFound) {
		t.Errorf("Expected ErrCouponNotFound, got %v", err)
	}
}

func TestTaxRatesResolveByLocation(t *testing.T) {
	db, cleanup := dbtest.Setup(t)
	defer cleanup()

	ctx := context.Background()
	today := time.Now()

	usa, err := store.CreateCountry(ctx, db, "USA", "US")
	if err != nil {
		t.Fatalf("Create country: %v", err)
	}
	ca, err := store.CreateState(ctx, db, usa.ID, "California", "CA")
	if err != nil {
		t.Fatalf("Create state: %v", err)
	}
	la, err := store.CreateCity(ctx, db, ca.ID, "Los Angeles")
	if err != nil {
		t.Fatalf("Create city: %v", err)
	}

	rates := []store.CreateTaxRateParams{
		{CountryID: usa.ID, Rate: decimal.RequireFromString("0.05"), EffectiveDate: today.AddDate(-1, 0, 0), IsActive: true},
		{CountryID: usa.ID, StateID: &ca.ID, Rate: decimal.RequireFromString("0.0875"), EffectiveDate: today.AddDate(-1, 0, 0), IsActive: true},
		{CountryID: usa.ID, StateID: &ca.ID, CityID: &la.ID, Rate: decimal.RequireFromString("0.09"), EffectiveDate: today.AddDate(0, -1, 0), IsActive: true},
		{CountryID: usa.ID, StateID: &ca.ID, CityID: &la.ID, Rate: decimal.RequireFromString("0.5"), EffectiveDate: today.AddDate(0, -1, 0), IsActive: false},
	}
	for _, p := range rates {
		if _, err := store.CreateTaxRate(ctx, db, p); err != nil {
			t.Fatalf("Create tax rate: %v", err)
		}
	}

	loaded, err := store.ListTaxRatesForCountry(ctx, db, "usa")
	if err != nil {
		t.Fatalf("List tax rates: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("Expected 3 active rates, got %d", len(loaded))
	}

	subtotal := decimal.RequireFromString("100.00")
	cases := []struct {
		loc  pricing.Location
		want string
	}{
		{pricing.Location{Country: "USA", State: "california", City: "los angeles"}, "9.00"},
		{pricing.Location{Country: "USA", State: "California", City: "San Diego"}, "8.75"},
		{pricing.Location{Country: "USA", State: "Texas"}, "5.00"},
	}
	for _, tc := range cases {
		rate := pricing.ResolveTaxRate(loaded, tc.loc, today)
		got := pricing.CalculateTax(subtotal, rate, false).TaxAmount.StringFixed(2)
		if got != tc.want {
			t.Errorf("%s: expected tax %s, got %s", tc.loc, tc.want, got)
		}
	}

	countries, err := store.ListCountries(ctx, db)
	if err != nil {
		t.Fatalf("List countries: %v", err)
	}
	if len(countries) != 1 || countries[0].Code != "US" {
		t.Errorf("Unexpected countries %+v", countries)
	}
	cities, err := store.ListCities(ctx, db, ca.ID)
	if err != nil {
		t.Fatalf("List cities: %v", err)
	}
	if len(cities) != 1 || cities[0].Name != "Los Angeles" {
		t.Errorf("Unexpected cities %+v", cities)
	}
}

func TestTaxExemptionRoundTrip(t *testing.T) {
	db, cleanup := dbtest.Setup(t)
	defer cleanup()

	ctx := context.Background()
	today := time.Now()

	user, err := store.CreateUser(ctx, db, "exempt@example.com", "Eve", false)
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}

	ok, err := store.UserHasValidTaxExemption(ctx, db, user.ID, today)
	if err != nil {
		t.Fatalf("Check exemption: %v", err)
	}
	if ok {
		t.Error("User without exemption row should not be exempt")
	}

	expired := today.AddDate(0, 0, -1)
	err = store.UpsertTaxExemption(ctx, db, models.TaxExemption{
		UserID:            user.ID,
		IsExempt:          true,
		ExemptionType:     "nonprofit",
		CertificateNumber: "NP-1",
		ExpiryDate:        &expired,
	})
	if err != nil {
		t.Fatalf("Upsert exemption: %v", err)
	}
	if ok, _ := store.UserHasValidTaxExemption(ctx, db, user.ID, today); ok {
		t.Error("Expired exemption should not apply")
	}

	future := today.AddDate(1, 0, 0)
	err = store.UpsertTaxExemption(ctx, db, models.TaxExemption{
		UserID:     user.ID,
		IsExempt:   true,
		ExpiryDate: &future,
	})
	if err != nil {
		t.Fatalf("Upsert exemption: %v", err)
	}
	ex, err := store.GetTaxExemption(ctx, db, user.ID)
	if err != nil {
		t.Fatalf("Get exemption: %v", err)
	}
	if !ex.Valid(today) {
		t.Errorf("Renewed exemption should be valid, got %+v", ex)
	}
}

func TestShippingCostsSeeded(t *testing.T) {
	db, cleanup := dbtest.Setup(t)
	defer cleanup()

	ctx := context.Background()

	local, err := store.ListShippingCosts(ctx, db, string(pricing.ShipmentLocal))
	if err != nil {
		t.Fatalf("List shipping costs: %v", err)
	}
	if len(local) != 8 {
		t.Fatalf("Expected 8 seeded local bands, got %d", len(local))
	}

	// 600 cm3 and 5 units of weight: volume band 501-1000 (12) beats weight band 0-10 (5).
	items := []pricing.ShippableItem{{Volume: 600, Weight: 5, Quantity: 2}}
	if got := pricing.ShippingCost(local, items).StringFixed(2); got != "24.00" {
		t.Errorf("Expected local shipping 24.00, got %s", got)
	}

	intl, err := store.ListShippingCosts(ctx, db, string(pricing.ShipmentInternational))
	if err != nil {
		t.Fatalf("List shipping costs: %v", err)
	}
	// Beyond the highest band the top band applies: 75.
	items = []pricing.ShippableItem{{Volume: 9000, Weight: 1, Quantity: 1}}
	if got := pricing.ShippingCost(intl, items).StringFixed(2); got != "75.00" {
		t.Errorf("Expected international shipping 75.00, got %s", got)
	}

	if err := store.DeleteShippingCosts(ctx, db, string(pricing.ShipmentOtherCity)); err != nil {
		t.Fatalf("Delete shipping costs: %v", err)
	}
	if _, err := store.CreateShippingCost(ctx, db, models.ShippingCost{
		Parameter:    models.ShippingParameterWeight,
		ValueStart:   0,
		ValueEnd:     1000,
		ShipmentType: string(pricing.ShipmentOtherCity),
		Charges:      decimal.RequireFromString("3.50"),
	}); err != nil {
		t.Fatalf("Create shipping cost: %v", err)
	}
	oc, err := store.ListShippingCosts(ctx, db, string(pricing.ShipmentOtherCity))
	if err != nil {
		t.Fatalf("List shipping costs: %v", err)
	}
	if len(oc) != 1 {
		t.Errorf("Expected the single replacement band, got %d", len(oc))
	}
}

func TestListOrdersCursor(t *testing.T) {
	db, cleanup := dbtest.Setup(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	user, err := store.CreateUser(ctx, db, "orders@example.com", "Ola", false)
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}

	for i := 0; i < 5; i++ {
		order, err := store.CreateCart(ctx, db, &user.ID, base)
		if err != nil {
			t.Fatalf("Create cart: %v", err)
		}
		err = database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
			return store.FinalizeOrder(ctx, tx, order.ID, base.Add(time.Duration(i)*time.Minute))
		})
		if err != nil {
			t.Fatalf("Finalize order: %v", err)
		}
	}
	// An open cart never shows up in order history.
	if _, err := store.CreateCart(ctx, db, &user.ID, base); err != nil {
		t.Fatalf("Create cart: %v", err)
	}

	seen := map[int64]bool{}
	cursor := ""
	pages := 0
	for {
		page, err := store.ListOrdersCursor(ctx, db, user.ID, cursor, 2)
		if err != nil {
			t.Fatalf("List orders: %v", err)
		}
		pages++
		for _, o := range page.Items {
			if seen[o.ID] {
				t.Fatalf("Order %d returned twice", o.ID)
			}
			seen[o.ID] = true
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	if len(seen) != 5 {
		t.Errorf("Expected 5 orders, got %d", len(seen))
	}
	if pages != 3 {
		t.Errorf("Expected 3 pages, got %d", pages)
	}
}

func TestSaveOrderPricingRejectsStaleVersion(t *testing.T) {
	db, cleanup := dbtest.Setup(t)
	defer cleanup()

	ctx := context.Background()
	order, err := store.CreateCart(ctx, db, nil, time.Now())
	if err != nil {
		t.Fatalf("Create cart: %v", err)
	}
	stale := *order

	order.TaxAmount = decimal.RequireFromString("1.50")
	if err := store.SaveOrderPricing(ctx, db, order); err != nil {
		t.Fatalf("Save pricing: %v", err)
	}
	if order.Version != stale.Version+1 {
		t.Errorf("Expected version %d, got %d", stale.Version+1, order.Version)
	}

	stale.TaxAmount = decimal.RequireFromString("9.99")
	if err := store.SaveOrderPricing(ctx, db, &stale); !errors.Is(err, database.ErrOptimisticLockFailed) {
		t.Fatalf("Expected ErrOptimisticLockFailed, got %v", err)
	}

	saved, err := store.GetOrder(ctx, db, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if !saved.TaxAmount.Equal(decimal.RequireFromString("1.50")) {
		t.Errorf("Stale write must not land, got tax %s", saved.TaxAmount)
	}

	missing := models.Order{ID: order.ID + 1000, Version: 1}
	if err := store.SaveOrderPricing(ctx, db, &missing); !errors.Is(err, database.ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound, got %v", err)
	}
}

func TestWholesaleRequestOneOpenPerUser(t *testing.T) {
	db, cleanup := dbtest.Setup(t)
	defer cleanup()

	ctx := context.Background()
	user, err := store.CreateUser(ctx, db, "buyer@example.com", "Bo", false)
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}

	newRequest := func() *models.WholesaleRequest {
		return &models.WholesaleRequest{
			UserID: user.ID, BusinessName: "Corner Shop", BusinessType: "retailer",
			ExpectedMonthlyVolume: "50 cases", Reason: "Restocking",
		}
	}

	first := newRequest()
	if err := store.CreateWholesaleRequest(ctx, db, first); err != nil {
		t.Fatalf("Create request: %v", err)
	}
	if first.ID == 0 || first.Status != models.WholesaleRequestPending {
		t.Errorf("Expected a pending request with an id, got %+v", first)
	}

	// The partial unique index rejects a second open request even when the
	// caller skipped the OpenWholesaleRequest check.
	if err := store.CreateWholesaleRequest(ctx, db, newRequest()); !errors.Is(err, database.ErrWholesaleRequestOpen) {
		t.Errorf("Expected ErrWholesaleRequestOpen, got %v", err)
	}

	open, err := store.OpenWholesaleRequest(ctx, db, user.ID)
	if err != nil {
		t.Fatalf("Open request: %v", err)
	}
	if open.ID != first.ID {
		t.Errorf("Expected open request %d, got %d", first.ID, open.ID)
	}

	if _, err := db.ExecContext(ctx, `UPDATE wholesale_requests SET status = 'rejected' WHERE id = $1`, first.ID); err != nil {
		t.Fatalf("Reject request: %v", err)
	}
	if _, err := store.OpenWholesaleRequest(ctx, db, user.ID); !errors.Is(err, database.ErrWholesaleRequestNotFound) {
		t.Errorf("Expected no open request after rejection, got %v", err)
	}
	if err := store.CreateWholesaleRequest(ctx, db, newRequest()); err != nil {
		t.Fatalf("Re-apply after rejection: %v", err)
	}

	all, err := store.ListWholesaleRequests(ctx, db, user.ID, 0)
	if err != nil {
		t.Fatalf("List requests: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected 2 requests, got %d", len(all))
	}
	recent, err := store.ListWholesaleRequests(ctx, db, user.ID, 1)
	if err != nil {
		t.Fatalf("List recent: %v", err)
	}
	if len(recent) != 1 || recent[0].Status != models.WholesaleRequestPending {
		t.Errorf("Expected the newest pending request first, got %+v", recent)
	}

	if _, err := store.GetWholesaleRequest(ctx, db, user.ID+1, first.ID); !errors.Is(err, database.ErrWholesaleRequestNotFound) {
		t.Errorf("Expected another user's request to be hidden, got %v", err)
	}
}
