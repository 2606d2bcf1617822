package payment

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/config"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/order"
)

var ErrMalformedNotification = errors.New("payment: malformed gateway notification")

type FormRequest struct {
	CorrelationID uuid.UUID
	BuyerID       uuid.UUID
	OrderIDs      []uuid.UUID
	Amount        decimal.Decimal
	ItemName      string
	BuyerName     string
	BuyerEmail    string
	ReturnURL     string
	CancelURL     string
	NotifyURL     string
}

// FormSubmission is what the browser posts to the gateway.
type FormSubmission struct {
	Action string  `json:"action"`
	Method string  `json:"method"`
	Fields []Field `json:"fields"`
}

// FormNotification is a verified, vocabulary-mapped inbound notification.
type FormNotification struct {
	CorrelationID    uuid.UUID
	BuyerID          uuid.UUID
	Status           order.PaymentStatus
	RawStatus        string
	AmountGross      decimal.Decimal
	GatewayPaymentID string
}

type FormGateway struct {
	cfg    config.FormGatewayConfig
	signer *Signer
}

func NewFormGateway(cfg config.FormGatewayConfig) (*FormGateway, error) {
	signer, err := NewSigner(cfg.Passphrase, cfg.SignatureAlgorithm)
	if err != nil {
		return nil, err
	}
	return &FormGateway{cfg: cfg, signer: signer}, nil
}

// BuildForm returns the signed field set. merchant_key is submitted but kept
// out of the signed string, as are empty values.
func (g *FormGateway) BuildForm(req FormRequest) (*FormSubmission, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("payment: form amount must be positive, got %s", req.Amount)
	}

	orderIDs := make([]string, 0, len(req.OrderIDs))
	for _, id := range req.OrderIDs {
		orderIDs = append(orderIDs, id.String())
	}
	firstName := req.BuyerName
	if i := strings.IndexByte(firstName, ' '); i > 0 {
		firstName = firstName[:i]
	}

	fields := []Field{
		{Name: "merchant_id", Value: g.cfg.MerchantID},
		{Name: "merchant_key", Value: g.cfg.MerchantKey},
		{Name: "return_url", Value: req.ReturnURL},
		{Name: "cancel_url", Value: req.CancelURL},
		{Name: "notify_url", Value: req.NotifyURL},
		{Name: "name_first", Value: firstName},
		{Name: "email_address", Value: req.BuyerEmail},
		{Name: "m_payment_id", Value: req.CorrelationID.String()},
		{Name: "amount", Value: req.Amount.StringFixed(2)},
		{Name: "item_name", Value: req.ItemName},
		{Name: "custom_str1", Value: req.CorrelationID.String()},
		{Name: "custom_str2", Value: req.BuyerID.String()},
		{Name: "custom_str3", Value: strings.Join(orderIDs, ",")},
	}

	submitted := make([]Field, 0, len(fields)+1)
	signed := make([]Field, 0, len(fields))
	for _, f := range fields {
		if f.Value == "" {
			continue
		}
		submitted = append(submitted, f)
		if f.Name != "merchant_key" {
			signed = append(signed, f)
		}
	}

	signature, err := g.signer.Sign(signed)
	if err != nil {
		return nil, err
	}
	submitted = append(submitted, Field{Name: signatureField, Value: signature})

	return &FormSubmission{Action: g.cfg.ProcessURL, Method: "POST", Fields: submitted}, nil
}

// ParseNotification verifies the signature before reading any field.
func (g *FormGateway) ParseNotification(values url.Values) (*FormNotification, error) {
	if err := g.signer.Verify(values); err != nil {
		return nil, err
	}
	if mid := values.Get("merchant_id"); mid != "" && mid != g.cfg.MerchantID {
		return nil, fmt.Errorf("%w: merchant id %q", ErrInvalidSignature, mid)
	}

	correlationID, err := uuid.FromString(values.Get("custom_str1"))
	if err != nil {
		return nil, fmt.Errorf("%w: custom_str1: %v", ErrMalformedNotification, err)
	}
	status, ok := MapFormStatus(values.Get("payment_status"))
	if !ok {
		return nil, fmt.Errorf("%w: unknown payment_status %q", ErrMalformedNotification, values.Get("payment_status"))
	}

	n := &FormNotification{
		CorrelationID:    correlationID,
		Status:           status,
		RawStatus:        values.Get("payment_status"),
		GatewayPaymentID: values.Get("pf_payment_id"),
	}
	if buyer := values.Get("custom_str2"); buyer != "" {
		if n.BuyerID, err = uuid.FromString(buyer); err != nil {
			return nil, fmt.Errorf("%w: custom_str2: %v", ErrMalformedNotification, err)
		}
	}
	if gross := values.Get("amount_gross"); gross != "" {
		if n.AmountGross, err = decimal.NewFromString(gross); err != nil {
			return nil, fmt.Errorf("%w: amount_gross: %v", ErrMalformedNotification, err)
		}
	} else if status == order.PaymentCompleted {
		return nil, fmt.Errorf("%w: completed notification without amount_gross", ErrMalformedNotification)
	}
	return n, nil
}
