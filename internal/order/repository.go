package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var (
	ErrOrderNotFound         = errors.New("order not found")
	ErrDuplicateOrder        = errors.New("order with this id already exists")
	ErrPaymentStatusTerminal = errors.New("payment status is already terminal")
	ErrCorrelationAlreadySet = errors.New("order already has a different gateway correlation id")
)

type Repository interface {
	CreateOrder(ctx context.Context, order *Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrdersByBuyerID(ctx context.Context, buyerID uuid.UUID) ([]Order, error)
	GetOrdersByCheckoutID(ctx context.Context, checkoutID uuid.UUID) ([]Order, error)
	GetOrdersByCorrelationID(ctx context.Context, correlationID uuid.UUID) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus OrderStatus) error
	// AttachCorrelation sets the gateway correlation id once. Re-attaching the
	// same id only records a non-empty session id, e.g. after a retried session.
	AttachCorrelation(ctx context.Context, orderID, correlationID uuid.UUID, sessionID string) error
	// UpdatePayment is a compare-and-swap: it succeeds only while the stored
	// payment status is pending and returns ErrPaymentStatusTerminal otherwise.
	UpdatePayment(ctx context.Context, orderID uuid.UUID, update PaymentUpdate) error
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]Order, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const orderColumns = `id, checkout_id, buyer_id, buyer_name, buyer_email, store_id, store_name, seller_name,
	seller_email, needs_review, item_subtotal, delivery_charge, delivery_option_name, total_amount,
	shipping_address_text, payment_method, status, payment_status, gateway_correlation_id,
	gateway_session_id, paid_amount, paid_at, failure_reason, created_at, updated_at`

func (r *postgresRepository) CreateOrder(ctx context.Context, orderInput *Order) (err error) {
	if orderInput.ID == uuid.Nil {
		genID, genErr := uuid.NewV4()
		if genErr != nil {
			return fmt.Errorf("repository: failed to generate order ID: %w", genErr)
		}
		orderInput.ID = genID
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", orderInput.ID).Msg("repository: failed to rollback transaction")
			}
		} else if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("repository: failed to commit transaction: %w", commitErr)
		}
	}()

	now := time.Now().UTC()
	orderInput.CreatedAt = now
	orderInput.UpdatedAt = now

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)`,
		orderInput.ID,
		orderInput.CheckoutID,
		orderInput.BuyerID,
		orderInput.BuyerName,
		orderInput.BuyerEmail,
		orderInput.StoreID,
		orderInput.StoreName,
		orderInput.SellerName,
		orderInput.SellerEmail,
		orderInput.NeedsReview,
		orderInput.ItemSubtotal,
		orderInput.DeliveryCharge,
		orderInput.DeliveryOptionName,
		orderInput.TotalAmount,
		orderInput.ShippingAddressText,
		string(orderInput.PaymentMethod),
		string(orderInput.Status),
		string(orderInput.PaymentStatus),
		orderInput.GatewayCorrelationID,
		orderInput.GatewaySessionID,
		orderInput.PaidAmount,
		orderInput.PaidAt,
		orderInput.FailureReason,
		orderInput.CreatedAt,
		orderInput.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	for i, item := range orderInput.Items {
		itemID, genErr := uuid.NewV4()
		if genErr != nil {
			return fmt.Errorf("repository: failed to generate order item ID: %w", genErr)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, position, product_id, product_name, unit_price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			itemID, orderInput.ID, i, item.ProductID, item.ProductName, item.UnitPrice, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item for order %s: %w", orderInput.ID, err)
		}
	}
	return nil
}

func (r *postgresRepository) GetOrderByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	orders, err := r.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", orderID, err)
	}
	if len(orders) == 0 {
		return nil, ErrOrderNotFound
	}
	return &orders[0], nil
}

func (r *postgresRepository) GetOrdersByBuyerID(ctx context.Context, buyerID uuid.UUID) ([]Order, error) {
	orders, err := r.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC`, buyerID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for buyer id %s: %w", buyerID, err)
	}
	return orders, nil
}

func (r *postgresRepository) GetOrdersByCheckoutID(ctx context.Context, checkoutID uuid.UUID) ([]Order, error) {
	orders, err := r.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE checkout_id = $1 ORDER BY created_at, id`, checkoutID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for checkout id %s: %w", checkoutID, err)
	}
	return orders, nil
}

func (r *postgresRepository) GetOrdersByCorrelationID(ctx context.Context, correlationID uuid.UUID) ([]Order, error) {
	orders, err := r.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE gateway_correlation_id = $1 ORDER BY created_at, id`, correlationID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for correlation id %s: %w", correlationID, err)
	}
	return orders, nil
}

func (r *postgresRepository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus OrderStatus) error {
	cmdTag, err := r.db.Exec(ctx, `
		UPDATE orders
		SET status = $1, updated_at = $2
		WHERE id = $3`,
		string(newStatus), time.Now().UTC(), orderID,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update order status %s: %w", orderID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *postgresRepository) AttachCorrelation(ctx context.Context, orderID, correlationID uuid.UUID, sessionID string) error {
	cmdTag, err := r.db.Exec(ctx, `
		UPDATE orders
		SET gateway_correlation_id = $1,
			gateway_session_id = COALESCE(NULLIF($2, ''), gateway_session_id),
			updated_at = $3
		WHERE id = $4 AND (gateway_correlation_id IS NULL OR gateway_correlation_id = $1)`,
		correlationID, sessionID, time.Now().UTC(), orderID,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to attach correlation to order %s: %w", orderID, err)
	}
	if cmdTag.RowsAffected() == 1 {
		return nil
	}

	var current uuid.NullUUID
	err = r.db.QueryRow(ctx, `SELECT gateway_correlation_id FROM orders WHERE id = $1`, orderID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("repository: failed to read correlation of order %s: %w", orderID, err)
	}
	return ErrCorrelationAlreadySet
}

func (r *postgresRepository) UpdatePayment(ctx context.Context, orderID uuid.UUID, update PaymentUpdate) error {
	cmdTag, err := r.db.Exec(ctx, `
		UPDATE orders
		SET payment_status = $1,
		    paid_amount = COALESCE($2, paid_amount),
		    paid_at = COALESCE($3, paid_at),
		    failure_reason = $4,
		    status = CASE WHEN $5 <> '' AND status = 'pending' THEN $5 ELSE status END,
		    updated_at = $6
		WHERE id = $7 AND payment_status = 'pending'`,
		string(update.Status),
		update.PaidAmount,
		update.PaidAt,
		update.FailureReason,
		string(update.OrderStatus),
		time.Now().UTC(),
		orderID,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update payment of order %s: %w", orderID, err)
	}
	if cmdTag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return fmt.Errorf("repository: failed to check order %s: %w", orderID, err)
	}
	if !exists {
		return ErrOrderNotFound
	}
	return ErrPaymentStatusTerminal
}

func (r *postgresRepository) ListStalePending(ctx context.Context, before time.Time, limit int) ([]Order, error) {
	orders, err := r.queryOrders(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE payment_status = 'pending'
		  AND payment_method IN ('hosted', 'form-redirect')
		  AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2`,
		before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to list stale pending orders: %w", err)
	}
	return orders, nil
}

func (r *postgresRepository) queryOrders(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ordersMap := make(map[uuid.UUID]*Order)
	var orderIDs []uuid.UUID

	for rows.Next() {
		var o Order
		var method, status, paymentStatus string
		err := rows.Scan(
			&o.ID,
			&o.CheckoutID,
			&o.BuyerID,
			&o.BuyerName,
			&o.BuyerEmail,
			&o.StoreID,
			&o.StoreName,
			&o.SellerName,
			&o.SellerEmail,
			&o.NeedsReview,
			&o.ItemSubtotal,
			&o.DeliveryCharge,
			&o.DeliveryOptionName,
			&o.TotalAmount,
			&o.ShippingAddressText,
			&method,
			&status,
			&paymentStatus,
			&o.GatewayCorrelationID,
			&o.GatewaySessionID,
			&o.PaidAmount,
			&o.PaidAt,
			&o.FailureReason,
			&o.CreatedAt,
			&o.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.PaymentMethod = PaymentMethod(method)
		o.Status = OrderStatus(status)
		o.PaymentStatus = PaymentStatus(paymentStatus)
		o.Items = make([]OrderItem, 0)
		ordersMap[o.ID] = &o
		orderIDs = append(orderIDs, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating orders: %w", err)
	}
	if len(orderIDs) == 0 {
		return []Order{}, nil
	}

	itemRows, err := r.db.Query(ctx, `
		SELECT order_id, product_id, product_name, unit_price, quantity
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position`,
		orderIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var orderID uuid.UUID
		var item OrderItem
		if err := itemRows.Scan(&orderID, &item.ProductID, &item.ProductName, &item.UnitPrice, &item.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		if o, ok := ordersMap[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating order items: %w", err)
	}

	result := make([]Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		result = append(result, *ordersMap[id])
	}
	return result, nil
}
