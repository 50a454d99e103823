package notifier

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/safar/go-sql-checkout/internal/models"
	"github.com/safar/go-sql-checkout/internal/pricing"
	"github.com/safar/go-sql-checkout/internal/store"
)

//go:embed templates/*
var templateFS embed.FS

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html"))
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt"))
)

type reminderLine struct {
	Title    string
	SKU      string
	Quantity int
	Price    string
	Total    string
}

type reminderData struct {
	FirstName      string
	Items          []reminderLine
	CartCount      int
	Total          string
	RecoveryURL    string
	DiscountCode   string
	ReminderNumber int
}

// RecoveryURL is the frontend page that restores a cart by reference.
func RecoveryURL(frontendURL, reference string) string {
	return strings.TrimRight(frontendURL, "/") + "/cart/recover/" + reference
}

func renderReminder(r Reminder, cart store.AbandonedCart, items []models.OrderItem, frontendURL string) (Message, error) {
	data := reminderData{
		FirstName:      cart.FirstName,
		CartCount:      len(items),
		Total:          pricing.Subtotal(items).StringFixed(2),
		RecoveryURL:    RecoveryURL(frontendURL, cart.ReferenceNumber),
		DiscountCode:   r.DiscountCode,
		ReminderNumber: r.EmailCount + 1,
	}
	if data.FirstName == "" {
		data.FirstName = "Customer"
	}
	for _, it := range items {
		data.Items = append(data.Items, reminderLine{
			Title:    it.Title,
			SKU:      it.SKU,
			Quantity: it.Quantity,
			Price:    it.UnitPrice.StringFixed(2),
			Total:    it.LineTotal().StringFixed(2),
		})
	}

	var text, html bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&text, "abandoned_cart.txt", data); err != nil {
		return Message{}, fmt.Errorf("render text reminder: %w", err)
	}
	if err := htmlTemplates.ExecuteTemplate(&html, "abandoned_cart.html", data); err != nil {
		return Message{}, fmt.Errorf("render html reminder: %w", err)
	}

	return Message{
		To:      cart.Email,
		Subject: r.Subject,
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
