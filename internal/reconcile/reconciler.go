package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/marketplace-checkout/internal/metrics"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/notify"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/order"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/payment"
)

var (
	ErrSignatureMismatch  = errors.New("reconcile: webhook signature mismatch")
	ErrMalformedWebhook   = errors.New("reconcile: malformed webhook")
	ErrUnknownCorrelation = errors.New("reconcile: no orders for correlation id")
	ErrAmountMismatch     = errors.New("reconcile: paid amount does not match order totals")
)

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomePending   Outcome = "pending"
	OutcomeUnknown   Outcome = "unknown_correlation"
)

// Report describes what one webhook did.
type Report struct {
	Outcome       Outcome
	CorrelationID uuid.UUID
	Status        order.PaymentStatus
	Transitioned  []uuid.UUID
	Duplicates    int
	// LateCompletions lists orders the gateway reported paid after they had
	// already failed. Those need a manual refund or reinstatement.
	LateCompletions []uuid.UUID
}

type FormParser interface {
	ParseNotification(values url.Values) (*payment.FormNotification, error)
}

type Notifier interface {
	Notify(ctx context.Context, msgs ...notify.Message)
}

// Reconciler applies gateway payment outcomes to orders. Every write is a
// compare-and-swap on payment status, so redelivered or racing events settle
// each order exactly once.
type Reconciler struct {
	orders    order.Repository
	form      FormParser
	notifier  Notifier
	templates notify.Templates
	now       func() time.Time
}

func NewReconciler(orders order.Repository, form FormParser, notifier Notifier, templates notify.Templates) *Reconciler {
	return &Reconciler{
		orders:    orders,
		form:      form,
		notifier:  notifier,
		templates: templates,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// HandleFormWebhook verifies and applies a form gateway notification.
// Nothing is read from the store before the signature checks out.
func (r *Reconciler) HandleFormWebhook(ctx context.Context, values url.Values) (*Report, error) {
	if r.form == nil {
		return nil, fmt.Errorf("%w: form gateway disabled", ErrMalformedWebhook)
	}
	n, err := r.form.ParseNotification(values)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			metrics.WebhooksTotal.WithLabelValues(payment.GatewayFormRedirect, "signature_mismatch").Inc()
			metrics.OperationalAlerts.WithLabelValues("signature_mismatch").Inc()
			log.Error().Err(err).Bool("alert", true).Str("gateway", payment.GatewayFormRedirect).
				Str("correlation_id", values.Get("custom_str1")).Msg("reconciler: rejected webhook with invalid signature")
			return nil, ErrSignatureMismatch
		}
		metrics.WebhooksTotal.WithLabelValues(payment.GatewayFormRedirect, "malformed").Inc()
		log.Warn().Err(err).Str("gateway", payment.GatewayFormRedirect).Msg("reconciler: malformed webhook")
		return nil, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}

	return r.apply(ctx, payment.GatewayFormRedirect, n.CorrelationID, n.Status, n.RawStatus, n.AmountGross, n.Status == order.PaymentCompleted)
}

// HandleHostedEvent applies a hosted gateway event. Authenticity is
// established by the caller (service-role credentials), not here.
func (r *Reconciler) HandleHostedEvent(ctx context.Context, n *payment.HostedNotification) (*Report, error) {
	return r.apply(ctx, payment.GatewayHosted, n.CorrelationID, n.Status, n.RawStatus, n.Amount, n.Status == order.PaymentCompleted)
}

// completedAfterFailure reports whether a success that lost the
// compare-and-swap landed on an order already marked failed, typically by
// the timeout sweep, and raises an operator alert when it did.
func (r *Reconciler) completedAfterFailure(ctx context.Context, logger zerolog.Logger, orderID uuid.UUID) bool {
	current, err := r.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		logger.Error().Err(err).Stringer("order_id", orderID).Msg("reconciler: failed to re-read order after lost update")
		return false
	}
	if current.PaymentStatus != order.PaymentFailed {
		return false
	}
	metrics.OperationalAlerts.WithLabelValues("late_completion").Inc()
	logger.Error().Bool("alert", true).Stringer("order_id", orderID).Str("failure_reason", current.FailureReason).
		Msg("reconciler: gateway reported payment for an order that already failed")
	return true
}

func (r *Reconciler) apply(ctx context.Context, gateway string, correlationID uuid.UUID, status order.PaymentStatus, rawStatus string, amount decimal.Decimal, checkAmount bool) (*Report, error) {
	logger := log.With().Str("gateway", gateway).Stringer("correlation_id", correlationID).Str("payment_status", status.String()).Logger()
	report := &Report{CorrelationID: correlationID, Status: status}

	if !status.IsTerminal() {
		metrics.WebhooksTotal.WithLabelValues(gateway, string(OutcomePending)).Inc()
		logger.Info().Msg("reconciler: non-terminal status, nothing to apply")
		report.Outcome = OutcomePending
		return report, nil
	}

	orders, err := r.orders.GetOrdersByCorrelationID(ctx, correlationID)
	if err != nil {
		return nil, fmt.Errorf("reconciler: failed to load orders: %w", err)
	}
	if len(orders) == 0 {
		metrics.WebhooksTotal.WithLabelValues(gateway, string(OutcomeUnknown)).Inc()
		metrics.OperationalAlerts.WithLabelValues("unknown_correlation").Inc()
		logger.Error().Bool("alert", true).Msg("reconciler: webhook for unknown correlation id")
		report.Outcome = OutcomeUnknown
		return report, ErrUnknownCorrelation
	}

	if checkAmount {
		expected := order.SumTotals(orders)
		if !amount.Round(2).Equal(expected.Round(2)) {
			metrics.WebhooksTotal.WithLabelValues(gateway, "amount_mismatch").Inc()
			metrics.OperationalAlerts.WithLabelValues("amount_mismatch").Inc()
			logger.Error().Bool("alert", true).Str("paid", amount.StringFixed(2)).Str("expected", expected.StringFixed(2)).
				Msg("reconciler: paid amount does not match orders")
			return nil, ErrAmountMismatch
		}
	}

	now := r.now()
	var transitioned []order.Order
	var failures []error
	for _, o := range orders {
		update := order.PaymentUpdate{Status: status}
		if status == order.PaymentCompleted {
			update.PaidAmount = decimal.NewNullDecimal(o.TotalAmount)
			update.PaidAt = &now
			update.OrderStatus = order.StatusConfirmed
		} else {
			update.FailureReason = strings.ToLower(rawStatus)
			update.OrderStatus = order.StatusCancelled
		}

		err := r.orders.UpdatePayment(ctx, o.ID, update)
		switch {
		case err == nil:
			applyLocal(&o, update)
			transitioned = append(transitioned, o)
			report.Transitioned = append(report.Transitioned, o.ID)
			metrics.PaymentTransitionsTotal.WithLabelValues(gateway, status.String()).Inc()
			logger.Info().Stringer("order_id", o.ID).Msg("reconciler: payment status applied")
		case errors.Is(err, order.ErrPaymentStatusTerminal):
			report.Duplicates++
			if status == order.PaymentCompleted && r.completedAfterFailure(ctx, logger, o.ID) {
				report.LateCompletions = append(report.LateCompletions, o.ID)
				continue
			}
			logger.Info().Stringer("order_id", o.ID).Msg("reconciler: payment already terminal, skipping")
		default:
			failures = append(failures, fmt.Errorf("order %s: %w", o.ID, err))
			logger.Error().Err(err).Stringer("order_id", o.ID).Msg("reconciler: failed to apply payment status")
		}
	}

	// Only orders this call moved get emails; duplicates never re-send.
	if len(transitioned) > 0 {
		r.notifier.Notify(ctx, r.messagesFor(status, transitioned)...)
	}

	if len(failures) > 0 {
		metrics.WebhooksTotal.WithLabelValues(gateway, "error").Inc()
		return report, fmt.Errorf("reconciler: %w", errors.Join(failures...))
	}
	if len(transitioned) > 0 {
		report.Outcome = OutcomeApplied
	} else {
		report.Outcome = OutcomeDuplicate
	}
	metrics.WebhooksTotal.WithLabelValues(gateway, string(report.Outcome)).Inc()
	return report, nil
}

func (r *Reconciler) messagesFor(status order.PaymentStatus, orders []order.Order) []notify.Message {
	if status == order.PaymentCompleted {
		return r.templates.OrderPlaced(orders)
	}
	msgs := make([]notify.Message, 0, len(orders))
	for _, o := range orders {
		msgs = append(msgs, r.templates.PaymentFailed(o))
	}
	return msgs
}

func applyLocal(o *order.Order, u order.PaymentUpdate) {
	o.PaymentStatus = u.Status
	if u.PaidAmount.Valid {
		o.PaidAmount = u.PaidAmount
	}
	if u.PaidAt != nil {
		t := *u.PaidAt
		o.PaidAt = &t
	}
	o.FailureReason = u.FailureReason
	if u.OrderStatus != "" && o.Status == order.StatusPending {
		o.Status = u.OrderStatus
	}
}
