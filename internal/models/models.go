package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	IsWholesale bool      `json:"is_wholesale"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Version     int       `json:"version"`
}

type TaxExemption struct {
	UserID            int64      `json:"user_id"`
	IsExempt          bool       `json:"is_exempt"`
	ExemptionType     string     `json:"exemption_type,omitempty"`
	CertificateNumber string     `json:"certificate_number,omitempty"`
	EffectiveDate     *time.Time `json:"effective_date,omitempty"`
	ExpiryDate        *time.Time `json:"expiry_date,omitempty"`
}

// Valid reports whether the exemption applies on the given day.
func (e *TaxExemption) Valid(today time.Time) bool {
	if e == nil || !e.IsExempt {
		return false
	}
	day := DateOf(today)
	if e.EffectiveDate != nil && DateOf(*e.EffectiveDate).After(day) {
		return false
	}
	if e.ExpiryDate != nil && DateOf(*e.ExpiryDate).Before(day) {
		return false
	}
	return true
}

type Variant struct {
	ID            int64           `json:"id"`
	SKU           string          `json:"sku"`
	Title         string          `json:"title"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	Volume        int             `json:"volume"`
	Weight        int             `json:"weight"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Version       int             `json:"version"`
}

type Address struct {
	ID        int64  `json:"id"`
	UserID    *int64 `json:"user_id,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Line1     string `json:"address_line_1"`
	Line2     string `json:"address_line_2"`
	Country   string `json:"country"`
	State     string `json:"state"`
	City      string `json:"city"`
	ZipCode   string `json:"zip_code"`
}

type Order struct {
	ID                    int64           `json:"id"`
	UserID                *int64          `json:"user_id,omitempty"`
	ReferenceNumber       string          `json:"reference_number"`
	Status                string          `json:"status"`
	Ordered               bool            `json:"ordered"`
	StartDate             time.Time       `json:"start_date"`
	LastUpdated           time.Time       `json:"last_updated"`
	OrderedDate           *time.Time      `json:"ordered_date,omitempty"`
	ShippingAddressID     *int64          `json:"shipping_address_id,omitempty"`
	CouponID              *int64          `json:"coupon_id,omitempty"`
	TotalShippingCost     decimal.Decimal `json:"total_shipping_cost"`
	TaxAmount             decimal.Decimal `json:"tax_amount"`
	WholesaleDiscount     decimal.Decimal `json:"wholesale_discount"`
	IsTaxExempt           bool            `json:"is_tax_exempt"`
	AbandonedEmailCount   int             `json:"abandoned_email_count"`
	AbandonedEmailSent    bool            `json:"abandoned_email_sent"`
	AbandonedEmailSentAt  *time.Time      `json:"abandoned_email_sent_at,omitempty"`
	RecoveryLinkClickedAt *time.Time      `json:"recovery_link_clicked_at,omitempty"`
	Version               int             `json:"version"`

	Items           []OrderItem `json:"items,omitempty"`
	Coupon          *Coupon     `json:"coupon,omitempty"`
	ShippingAddress *Address    `json:"shipping_address,omitempty"`
}

type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	VariantID int64           `json:"variant_id"`
	SKU       string          `json:"sku"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Volume    int             `json:"volume"`
	Weight    int             `json:"weight"`
	CreatedAt time.Time       `json:"created_at"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Country struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

type State struct {
	ID        int64  `json:"id"`
	CountryID int64  `json:"country_id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
}

type City struct {
	ID      int64  `json:"id"`
	StateID int64  `json:"state_id"`
	Name    string `json:"name"`
}

// TaxRate holds location names alongside ids so resolution can run without joins.
type TaxRate struct {
	ID            int64           `json:"id"`
	CountryID     int64           `json:"country_id"`
	StateID       *int64          `json:"state_id,omitempty"`
	CityID        *int64          `json:"city_id,omitempty"`
	Country       string          `json:"country"`
	State         string          `json:"state,omitempty"`
	City          string          `json:"city,omitempty"`
	Rate          decimal.Decimal `json:"rate"`
	TaxType       string          `json:"tax_type"`
	EffectiveDate time.Time       `json:"effective_date"`
	ExpiryDate    *time.Time      `json:"expiry_date,omitempty"`
	IsActive      bool            `json:"is_active"`
}

type Coupon struct {
	ID                 int64           `json:"id"`
	Title              string          `json:"title"`
	Code               string          `json:"code"`
	Discount           decimal.Decimal `json:"discount"`
	DiscountType       string          `json:"discount_type"`
	MinimumOrderAmount decimal.Decimal `json:"minimum_order_amount"`
	SingleUsePerUser   bool            `json:"single_use_per_user"`
	CreatedForUserID   *int64          `json:"created_for_user_id,omitempty"`
	Active             bool            `json:"active"`
}

type ShippingCost struct {
	ID           int64           `json:"id"`
	Parameter    string          `json:"parameter"`
	ValueStart   int             `json:"value_start"`
	ValueEnd     int             `json:"value_end"`
	ShipmentType string          `json:"shipment_type"`
	Charges      decimal.Decimal `json:"charges"`
}

type WholesaleRequest struct {
	ID                    int64      `json:"id"`
	UserID                int64      `json:"user_id"`
	BusinessName          string     `json:"business_name"`
	BusinessType          string     `json:"business_type"`
	TaxID                 string     `json:"tax_id"`
	Website               string     `json:"website"`
	ExpectedMonthlyVolume string     `json:"expected_monthly_volume"`
	Reason                string     `json:"reason"`
	Status                string     `json:"status"`
	ReviewedAt            *time.Time `json:"reviewed_at,omitempty"`
	AdminNotes            string     `json:"admin_notes"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

const (
	OrderStatusNotFinalized = "not_finalized"
	OrderStatusOrdered      = "ordered"
	OrderStatusShipped      = "shipped"
	OrderStatusDelivered    = "delivered"
	OrderStatusCanceled     = "canceled"
)

const (
	DiscountTypeFixedAmount = "fixed_amount"
	DiscountTypePercentage  = "percentage"
)

const (
	ShippingParameterVolume = "volume"
	ShippingParameterWeight = "weight"
)

const (
	TaxTypeSales = "sales"
	TaxTypeVAT   = "vat"
	TaxTypeGST   = "gst"
)

const (
	WholesaleRequestPending  = "pending"
	WholesaleRequestApproved = "approved"
	WholesaleRequestRejected = "rejected"
)

// BusinessTypes maps each accepted business type to its display name.
var BusinessTypes = map[string]string{
	"retailer":    "Retailer",
	"distributor": "Distributor",
	"reseller":    "Reseller",
	"contractor":  "Contractor",
	"nonprofit":   "Non-Profit Organization",
	"other":       "Other",
}

// DateOf truncates t to midnight UTC of its calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
