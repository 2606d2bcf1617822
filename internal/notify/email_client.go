package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/resilience"
)

var ErrProviderRejected = errors.New("notify: email provider rejected message")

// EmailClient posts messages to the email provider. No retries: each
// notification gets at most one attempt.
type EmailClient struct {
	client   *resty.Client
	breaker  *resilience.CircuitBreaker
	endpoint string
}

func NewEmailClient(providerURL, apiKey string, timeout time.Duration) *EmailClient {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}

	opts := resilience.DefaultOptions()
	opts.IsSuccessful = func(err error) bool { return err == nil || errors.Is(err, ErrProviderRejected) }

	return &EmailClient{
		client:   client,
		breaker:  resilience.NewCircuitBreaker("email-provider", "checkout-service", opts),
		endpoint: providerURL,
	}
}

func (c *EmailClient) Send(ctx context.Context, msg Message) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.client.R().SetContext(ctx).SetBody(msg).Post(c.endpoint)
		if err != nil {
			return nil, fmt.Errorf("notify: email provider request failed: %w", err)
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return nil, fmt.Errorf("notify: email provider status %d", resp.StatusCode())
		}
		if resp.IsError() {
			return nil, fmt.Errorf("%w: status %d", ErrProviderRejected, resp.StatusCode())
		}
		return nil, nil
	})
	return err
}

// LogSender only logs; used when no provider is configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	log.Info().Str("type", string(msg.Type)).Str("to", msg.To).Interface("data", msg.Data).Msg("notify: email provider not configured, logging message")
	return nil
}
