package order_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/config"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/db"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/order"
)

var testDB *pgxpool.Pool

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// TestMain connects to a real PostgreSQL only when DB_HOST_TEST is set, so the
// unit tests in this package still run on a bare machine.
func TestMain(m *testing.M) {
	if os.Getenv("DB_HOST_TEST") == "" {
		os.Exit(m.Run())
	}

	cfg := config.PostgresConfig{
		Host:     envOr("DB_HOST_TEST", "localhost"),
		Port:     envOr("DB_PORT_TEST", "5432"),
		User:     envOr("DB_USER_TEST", "postgres"),
		Password: envOr("DB_PASSWORD_TEST", "postgres"),
		DBName:   envOr("DB_NAME_TEST", "checkout_test"),
		SSLMode:  envOr("DB_SSLMODE_TEST", "disable"),
		MaxConns: 5,
	}

	if err := db.ApplyMigrations(cfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate test database")
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pg, err := db.New(connectCtx, cfg)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Str("db_host", cfg.Host).Msg("Failed to connect to test database")
	}
	testDB = pg.Pool

	code := m.Run()
	pg.Close()
	os.Exit(code)
}

func requireDB(t *testing.T) {
	t.Helper()
	if testDB == nil {
		t.Skip("DB_HOST_TEST not set")
	}
}

func clearTables(t *testing.T) {
	t.Helper()
	_, err := testDB.Exec(context.Background(), "TRUNCATE TABLE order_items, orders CASCADE")
	require.NoError(t, err, "Failed to clear tables")
}

func TestPostgresRepository_CreateAndGet(t *testing.T) {
	requireDB(t)
	clearTables(t)
	repo := order.NewRepository(testDB)
	ctx := context.Background()

	email := "seller@example.com"
	o := newPendingOrder(uuid.Must(uuid.NewV4()), order.MethodHosted)
	o.SellerEmail = &email
	o.Items = append(o.Items, order.OrderItem{ProductID: uuid.Must(uuid.NewV4()), ProductName: "Plate", UnitPrice: decimal.Zero, Quantity: 1})
	require.NoError(t, repo.CreateOrder(ctx, o))

	got, err := repo.GetOrderByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.CheckoutID, got.CheckoutID)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "Mug", got.Items[0].ProductName)
	assert.Equal(t, "Plate", got.Items[1].ProductName)
	assert.True(t, got.TotalAmount.Equal(decimal.NewFromInt(220)))
	require.NotNil(t, got.SellerEmail)
	assert.Equal(t, email, *got.SellerEmail)
	assert.False(t, got.GatewayCorrelationID.Valid)

	require.ErrorIs(t, repo.CreateOrder(ctx, o), order.ErrDuplicateOrder)

	_, err = repo.GetOrderByID(ctx, uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestPostgresRepository_CorrelationAndPaymentCAS(t *testing.T) {
	requireDB(t)
	clearTables(t)
	repo := order.NewRepository(testDB)
	ctx := context.Background()

	checkoutID := uuid.Must(uuid.NewV4())
	a := newPendingOrder(checkoutID, order.MethodFormRedirect)
	b := newPendingOrder(checkoutID, order.MethodFormRedirect)
	require.NoError(t, repo.CreateOrder(ctx, a))
	require.NoError(t, repo.CreateOrder(ctx, b))

	for _, id := range []uuid.UUID{a.ID, b.ID} {
		require.NoError(t, repo.AttachCorrelation(ctx, id, checkoutID, ""))
	}
	require.ErrorIs(t, repo.AttachCorrelation(ctx, a.ID, uuid.Must(uuid.NewV4()), ""), order.ErrCorrelationAlreadySet)
	require.ErrorIs(t, repo.AttachCorrelation(ctx, uuid.Must(uuid.NewV4()), checkoutID, ""), order.ErrOrderNotFound)

	require.NoError(t, repo.AttachCorrelation(ctx, a.ID, checkoutID, "ch_retry"))
	require.NoError(t, repo.AttachCorrelation(ctx, a.ID, checkoutID, ""))
	retried, err := repo.GetOrderByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "ch_retry", retried.GatewaySessionID)

	siblings, err := repo.GetOrdersByCorrelationID(ctx, checkoutID)
	require.NoError(t, err)
	require.Len(t, siblings, 2)

	paidAt := time.Now().UTC().Truncate(time.Second)
	update := order.PaymentUpdate{
		Status:      order.PaymentCompleted,
		PaidAmount:  decimal.NewNullDecimal(decimal.NewFromInt(220)),
		PaidAt:      &paidAt,
		OrderStatus: order.StatusConfirmed,
	}
	require.NoError(t, repo.UpdatePayment(ctx, a.ID, update))
	require.ErrorIs(t, repo.UpdatePayment(ctx, a.ID, order.PaymentUpdate{Status: order.PaymentFailed}), order.ErrPaymentStatusTerminal)

	got, err := repo.GetOrderByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentCompleted, got.PaymentStatus)
	assert.Equal(t, order.StatusConfirmed, got.Status)
	require.NotNil(t, got.PaidAt)

	stale, err := repo.ListStalePending(ctx, time.Now().UTC().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, b.ID, stale[0].ID)
}
