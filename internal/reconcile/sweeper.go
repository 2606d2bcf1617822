package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/marketplace-checkout/internal/metrics"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/notify"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/order"
)

const sourceTimeout = "timeout_sweep"

// Sweeper fails gateway payments that never got a webhook within the
// timeout. It uses the same compare-and-swap as the reconciler, so a late
// genuine webhook and the sweep cannot both win.
type Sweeper struct {
	orders    order.Repository
	notifier  Notifier
	templates notify.Templates
	timeout   time.Duration
	batchSize int
	now       func() time.Time
}

func NewSweeper(orders order.Repository, notifier Notifier, templates notify.Templates, timeout time.Duration, batchSize int) *Sweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Sweeper{
		orders:    orders,
		notifier:  notifier,
		templates: templates,
		timeout:   timeout,
		batchSize: batchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SweepOnce drains stale pending orders batch by batch and returns how many
// it moved to failed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		before := s.now().Add(-s.timeout)
		stale, err := s.orders.ListStalePending(ctx, before, s.batchSize)
		if err != nil {
			return total, err
		}

		moved := s.failBatch(ctx, stale)
		total += moved
		if len(stale) < s.batchSize || moved == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
	if total > 0 {
		log.Info().Int("orders", total).Msg("reconciler: timed out pending payments")
	}
	return total, nil
}

func (s *Sweeper) failBatch(ctx context.Context, stale []order.Order) int {
	update := order.PaymentUpdate{
		Status:        order.PaymentFailed,
		FailureReason: order.FailureReasonTimeout,
		OrderStatus:   order.StatusCancelled,
	}

	var msgs []notify.Message
	for _, o := range stale {
		err := s.orders.UpdatePayment(ctx, o.ID, update)
		if errors.Is(err, order.ErrPaymentStatusTerminal) {
			log.Info().Stringer("order_id", o.ID).Msg("reconciler: payment settled before timeout sweep")
			continue
		}
		if err != nil {
			log.Error().Err(err).Stringer("order_id", o.ID).Msg("reconciler: failed to time out payment")
			continue
		}
		applyLocal(&o, update)
		metrics.PaymentTransitionsTotal.WithLabelValues(sourceTimeout, order.PaymentFailed.String()).Inc()
		msgs = append(msgs, s.templates.PaymentFailed(o))
	}

	s.notifier.Notify(ctx, msgs...)
	return len(msgs)
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Dur("timeout", s.timeout).Msg("reconciler: timeout sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reconciler: timeout sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("reconciler: timeout sweep failed")
			}
		}
	}
}
