package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/metrics"
)

type EventType string

const (
	EventOrderConfirmation  EventType = "order_confirmation"
	EventSellerNotification EventType = "order_seller_notification"
	EventPaymentFailed      EventType = "payment_failed"
	EventWelcome            EventType = "welcome"
	EventPasswordReset      EventType = "password_reset"
)

func (e EventType) Valid() bool {
	switch e {
	case EventOrderConfirmation, EventSellerNotification, EventPaymentFailed, EventWelcome, EventPasswordReset:
		return true
	}
	return false
}

type Message struct {
	Type EventType      `json:"type"`
	To   string         `json:"to"`
	Data map[string]any `json:"data"`
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Result is the per-recipient outcome of one send.
type Result struct {
	Type EventType
	To   string
	Err  error
}

var ErrNoRecipient = errors.New("notify: message has no recipient")

// Dispatcher sends each message once, concurrently per recipient. A failed
// send is logged and never reported back into the triggering operation.
type Dispatcher struct {
	sender  Sender
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(sender Sender, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{sender: sender, timeout: timeout}
}

// Notify returns immediately. Sends run detached from ctx cancellation so a
// finished HTTP request does not abort them.
func (d *Dispatcher) Notify(ctx context.Context, msgs ...Message) {
	if len(msgs) == 0 {
		return
	}
	detached := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.NotifyAndWait(detached, msgs...)
	}()
}

// NotifyAndWait sends all messages concurrently and reports each outcome.
func (d *Dispatcher) NotifyAndWait(ctx context.Context, msgs ...Message) []Result {
	results := make([]Result, len(msgs))
	var wg sync.WaitGroup
	for i, msg := range msgs {
		results[i] = Result{Type: msg.Type, To: msg.To}
		if msg.To == "" {
			results[i].Err = ErrNoRecipient
			metrics.NotificationsTotal.WithLabelValues(string(msg.Type), "skipped").Inc()
			log.Warn().Str("type", string(msg.Type)).Msg("notify: skipping message without recipient")
			continue
		}

		wg.Add(1)
		go func(i int, msg Message) {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()

			err := d.sender.Send(sendCtx, msg)
			results[i].Err = err
			if err != nil {
				metrics.NotificationsTotal.WithLabelValues(string(msg.Type), "failed").Inc()
				log.Error().Err(err).Str("type", string(msg.Type)).Str("to", msg.To).Msg("notify: send failed")
				return
			}
			metrics.NotificationsTotal.WithLabelValues(string(msg.Type), "sent").Inc()
			log.Info().Str("type", string(msg.Type)).Str("to", msg.To).Msg("notify: sent")
		}(i, msg)
	}
	wg.Wait()
	return results
}

// Wait blocks until every detached Notify has finished. Used on shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Sent counts successful results.
func Sent(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Err == nil {
			n++
		}
	}
	return n
}
