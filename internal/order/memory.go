package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid"
)

// MemoryRepository keeps orders in process memory. It backs the "memory"
// store mode and the service tests.
type MemoryRepository struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*Order
	// seq keeps listing order stable for orders created in the same instant.
	seq   map[uuid.UUID]int
	next  int
	clock func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders: make(map[uuid.UUID]*Order),
		seq:    make(map[uuid.UUID]int),
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source used for timestamps.
func (r *MemoryRepository) SetClock(clock func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clock
}

func (r *MemoryRepository) CreateOrder(_ context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		o.ID = id
	}
	if _, ok := r.orders[o.ID]; ok {
		return ErrDuplicateOrder
	}
	now := r.clock()
	o.CreatedAt = now
	o.UpdatedAt = now
	r.orders[o.ID] = o.Clone()
	r.seq[o.ID] = r.next
	r.next++
	return nil
}

func (r *MemoryRepository) GetOrderByID(_ context.Context, id uuid.UUID) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (r *MemoryRepository) GetOrdersByBuyerID(_ context.Context, buyerID uuid.UUID) ([]Order, error) {
	out := r.filter(func(o *Order) bool { return o.BuyerID == buyerID })
	// newest first, like the SQL query
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *MemoryRepository) GetOrdersByCheckoutID(_ context.Context, checkoutID uuid.UUID) ([]Order, error) {
	return r.filter(func(o *Order) bool { return o.CheckoutID == checkoutID }), nil
}

func (r *MemoryRepository) GetOrdersByCorrelationID(_ context.Context, correlationID uuid.UUID) ([]Order, error) {
	return r.filter(func(o *Order) bool {
		return o.GatewayCorrelationID.Valid && o.GatewayCorrelationID.UUID == correlationID
	}), nil
}

func (r *MemoryRepository) UpdateOrderStatus(_ context.Context, orderID uuid.UUID, newStatus OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = newStatus
	o.UpdatedAt = r.clock()
	return nil
}

func (r *MemoryRepository) AttachCorrelation(_ context.Context, orderID, correlationID uuid.UUID, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if o.GatewayCorrelationID.Valid && o.GatewayCorrelationID.UUID != correlationID {
		return ErrCorrelationAlreadySet
	}
	o.GatewayCorrelationID = uuid.NullUUID{UUID: correlationID, Valid: true}
	if sessionID != "" {
		o.GatewaySessionID = sessionID
	}
	o.UpdatedAt = r.clock()
	return nil
}

func (r *MemoryRepository) UpdatePayment(_ context.Context, orderID uuid.UUID, update PaymentUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if o.PaymentStatus != PaymentPending {
		return ErrPaymentStatusTerminal
	}
	o.PaymentStatus = update.Status
	if update.PaidAmount.Valid {
		o.PaidAmount = update.PaidAmount
	}
	if update.PaidAt != nil {
		t := *update.PaidAt
		o.PaidAt = &t
	}
	o.FailureReason = update.FailureReason
	if update.OrderStatus != "" && o.Status == StatusPending {
		o.Status = update.OrderStatus
	}
	o.UpdatedAt = r.clock()
	return nil
}

func (r *MemoryRepository) ListStalePending(_ context.Context, before time.Time, limit int) ([]Order, error) {
	out := r.filter(func(o *Order) bool {
		return o.PaymentStatus == PaymentPending && o.PaymentMethod.UsesGateway() && o.UpdatedAt.Before(before)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) filter(keep func(*Order) bool) []Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*Order, 0)
	for _, o := range r.orders {
		if keep(o) {
			matched = append(matched, o)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return r.seq[matched[i].ID] < r.seq[matched[j].ID] })

	out := make([]Order, 0, len(matched))
	for _, o := range matched {
		out = append(out, *o.Clone())
	}
	return out
}
