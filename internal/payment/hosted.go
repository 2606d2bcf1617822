package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/config"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/order"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/resilience"
)

var (
	// ErrGatewayRejected is a 4xx answer: retrying the same request will not help.
	ErrGatewayRejected = errors.New("payment: gateway rejected request")
	// ErrGatewayFailure covers transport errors, 5xx and throttling.
	ErrGatewayFailure = errors.New("payment: gateway failure")
)

type SessionRequest struct {
	CorrelationID uuid.UUID
	Amount        decimal.Decimal
	SuccessURL    string
	CancelURL     string
	FailureURL    string
	Metadata      map[string]string
}

type Session struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirectUrl"`
}

type createCheckoutBody struct {
	Amount     int64             `json:"amount"`
	Currency   string            `json:"currency"`
	SuccessURL string            `json:"successUrl,omitempty"`
	CancelURL  string            `json:"cancelUrl,omitempty"`
	FailureURL string            `json:"failureUrl,omitempty"`
	Metadata   map[string]string `json:"metadata"`
}

type gatewayErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"errorCode"`
}

// HostedGateway talks to the hosted checkout API. Retries happen inside the
// breaker so one logical call counts once.
type HostedGateway struct {
	client   *resty.Client
	breaker  *resilience.CircuitBreaker
	currency string
}

func NewHostedGateway(cfg config.HostedGatewayConfig) *HostedGateway {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.SecretKey).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= http.StatusInternalServerError || r.StatusCode() == http.StatusTooManyRequests
		})

	opts := resilience.DefaultOptions()
	opts.IsSuccessful = func(err error) bool { return err == nil || errors.Is(err, ErrGatewayRejected) }

	return &HostedGateway{
		client:   client,
		breaker:  resilience.NewCircuitBreaker("hosted-gateway", "checkout-service", opts),
		currency: cfg.Currency,
	}
}

// CreateSession opens a hosted checkout. The correlation id doubles as the
// idempotency key so a retried create cannot open a second session.
func (g *HostedGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive, got %s", ErrGatewayRejected, req.Amount)
	}

	metadata := map[string]string{"correlationId": req.CorrelationID.String()}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	body := createCheckoutBody{
		Amount:     req.Amount.Shift(2).Round(0).IntPart(),
		Currency:   g.currency,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
		FailureURL: req.FailureURL,
		Metadata:   metadata,
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		var session Session
		var apiErr gatewayErrorBody
		resp, err := g.client.R().
			SetContext(ctx).
			SetHeader("Idempotency-Key", req.CorrelationID.String()).
			SetBody(body).
			SetResult(&session).
			SetError(&apiErr).
			Post("/api/checkouts")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGatewayFailure, err)
		}
		if resp.IsError() {
			log.Warn().
				Int("status", resp.StatusCode()).
				Str("error_code", apiErr.Code).
				Str("correlation_id", req.CorrelationID.String()).
				Msg("payment: hosted gateway returned error")
			if resp.StatusCode() >= http.StatusInternalServerError || resp.StatusCode() == http.StatusTooManyRequests {
				return nil, fmt.Errorf("%w: status %d", ErrGatewayFailure, resp.StatusCode())
			}
			return nil, fmt.Errorf("%w: status %d", ErrGatewayRejected, resp.StatusCode())
		}
		if session.ID == "" || session.RedirectURL == "" {
			return nil, fmt.Errorf("%w: incomplete session response", ErrGatewayFailure)
		}
		return &session, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*Session), nil
}

// HostedEvent is the server-to-server payment event.
type HostedEvent struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Payload HostedEventPayload `json:"payload"`
}

type HostedEventPayload struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Metadata struct {
		CorrelationID string `json:"correlationId"`
		CheckoutID    string `json:"checkoutId"`
	} `json:"metadata"`
}

// HostedNotification is the event after mapping into internal vocabulary.
type HostedNotification struct {
	CorrelationID    uuid.UUID
	Status           order.PaymentStatus
	RawStatus        string
	Amount           decimal.Decimal
	GatewayPaymentID string
}

func ParseHostedEvent(raw []byte) (*HostedNotification, error) {
	var ev HostedEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	return ev.Normalize()
}

// Normalize reads the status from payload.status, falling back to the event
// type suffix ("payment.succeeded").
func (ev HostedEvent) Normalize() (*HostedNotification, error) {
	rawStatus := ev.Payload.Status
	if rawStatus == "" {
		if i := strings.LastIndexByte(ev.Type, '.'); i >= 0 {
			rawStatus = ev.Type[i+1:]
		}
	}
	status, ok := MapHostedStatus(rawStatus)
	if !ok {
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformedNotification, rawStatus)
	}

	rawID := ev.Payload.Metadata.CorrelationID
	if rawID == "" {
		rawID = ev.Payload.Metadata.CheckoutID
	}
	correlationID, err := uuid.FromString(rawID)
	if err != nil {
		return nil, fmt.Errorf("%w: correlation id: %v", ErrMalformedNotification, err)
	}

	return &HostedNotification{
		CorrelationID:    correlationID,
		Status:           status,
		RawStatus:        rawStatus,
		Amount:           decimal.New(ev.Payload.Amount, -2),
		GatewayPaymentID: ev.Payload.ID,
	}, nil
}
