package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/notify"
)

type recordingSender struct {
	mu      sync.Mutex
	sent    []notify.Message
	failFor map[string]error
	block   chan struct{}
}

func (s *recordingSender) Send(ctx context.Context, msg notify.Message) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failFor[msg.To]; err != nil {
		return err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) recipients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, m := range s.sent {
		out = append(out, m.To)
	}
	return out
}

func TestDispatcher_PartialFailureIsPerRecipient(t *testing.T) {
	sender := &recordingSender{failFor: map[string]error{"seller@example.com": errors.New("mailbox full")}}
	d := notify.NewDispatcher(sender, time.Second)

	results := d.NotifyAndWait(context.Background(),
		notify.Message{Type: notify.EventOrderConfirmation, To: "buyer@example.com"},
		notify.Message{Type: notify.EventSellerNotification, To: "seller@example.com"},
		notify.Message{Type: notify.EventSellerNotification, To: ""},
	)

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.EqualError(t, results[1].Err, "mailbox full")
	assert.ErrorIs(t, results[2].Err, notify.ErrNoRecipient)
	assert.Equal(t, 1, notify.Sent(results))
	assert.Equal(t, []string{"buyer@example.com"}, sender.recipients())
}

func TestDispatcher_NotifyDoesNotBlockAndSurvivesCancel(t *testing.T) {
	sender := &recordingSender{block: make(chan struct{})}
	d := notify.NewDispatcher(sender, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	d.Notify(ctx,
		notify.Message{Type: notify.EventOrderConfirmation, To: "a@example.com"},
		notify.Message{Type: notify.EventSellerNotification, To: "b@example.com"},
	)
	cancel()

	assert.Empty(t, sender.recipients(), "Notify returned before any send finished")
	close(sender.block)
	d.Wait()

	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com"}, sender.recipients())
}

func TestEventType_Valid(t *testing.T) {
	assert.True(t, notify.EventWelcome.Valid())
	assert.True(t, notify.EventPasswordReset.Valid())
	assert.False(t, notify.EventType("newsletter").Valid())
}
