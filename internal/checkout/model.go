package checkout

import (
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/order"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/payment"
)

type Address struct {
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2"`
	City       string `json:"city" validate:"required"`
	Province   string `json:"province"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required"`
}

// String renders the address on one line for the order snapshot.
func (a Address) String() string {
	parts := make([]string, 0, 6)
	for _, p := range []string{a.Line1, a.Line2, a.City, a.Province, a.PostalCode, a.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

type BillingAddress struct {
	FullName string `json:"full_name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone"`
	Address
}

type Profile struct {
	ID            uuid.UUID `json:"id"`
	FullName      string    `json:"full_name" validate:"required"`
	Email         string    `json:"email" validate:"required,email"`
	TermsAccepted bool      `json:"terms_accepted"`
}

// Consent holds the per-order checkboxes shown when the profile has not
// accepted the terms yet.
type Consent struct {
	Terms      bool `json:"terms"`
	Privacy    bool `json:"privacy"`
	Processing bool `json:"processing"`
}

func (c Consent) All() bool {
	return c.Terms && c.Privacy && c.Processing
}

type CartItem struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	StoreID     uuid.UUID       `json:"store_id"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
}

func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type ReturnURLs struct {
	Success string `json:"success_url"`
	Cancel  string `json:"cancel_url"`
	Failure string `json:"failure_url"`
}

// Request is one checkout attempt. It is never persisted.
type Request struct {
	Buyer    Profile
	Items    []CartItem
	Shipping Address
	Billing  BillingAddress
	Consent  Consent
	// DeliverySelections maps store id to the chosen delivery option id.
	DeliverySelections map[uuid.UUID]uuid.UUID
	PaymentMethod      order.PaymentMethod
	ReturnURLs         ReturnURLs
}

type ActionKind string

const (
	ActionRedirect  ActionKind = "redirect"
	ActionForm      ActionKind = "form"
	ActionEmailSent ActionKind = "email_sent"
)

// PaymentAction tells the caller what to do next.
type PaymentAction struct {
	Kind         ActionKind              `json:"kind"`
	RedirectURL  string                  `json:"redirect_url,omitempty"`
	SessionID    string                  `json:"session_id,omitempty"`
	Form         *payment.FormSubmission `json:"form,omitempty"`
	EmailsQueued int                     `json:"emails_queued,omitempty"`
}

type Result struct {
	CheckoutID uuid.UUID       `json:"checkout_id"`
	Orders     []order.Order   `json:"orders"`
	Amount     decimal.Decimal `json:"amount"`
	Action     *PaymentAction  `json:"action,omitempty"`
}

func itemName(orders []order.Order) string {
	names := make([]string, 0, len(orders))
	for _, o := range orders {
		names = append(names, o.StoreName)
	}
	name := fmt.Sprintf("Order from %s", strings.Join(names, ", "))
	if len(name) > 100 {
		name = name[:97] + "..."
	}
	return name
}
