package http_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/marketplace-checkout/internal/checkout"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/notify"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/order"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/payment"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/reconcile"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

type MockCheckoutService struct {
	mock.Mock
}

func (m *MockCheckoutService) Checkout(ctx context.Context, req checkout.Request) (*checkout.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.Result), args.Error(1)
}

func (m *MockCheckoutService) RetryPayment(ctx context.Context, checkoutID uuid.UUID, urls checkout.ReturnURLs) (*checkout.Result, error) {
	args := m.Called(ctx, checkoutID, urls)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.Result), args.Error(1)
}

func (m *MockCheckoutService) StartHostedPayment(ctx context.Context, req checkout.HostedPaymentRequest) (*checkout.HostedPaymentResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.HostedPaymentResult), args.Error(1)
}

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) GetOrderByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) GetOrdersByBuyerID(ctx context.Context, buyerID uuid.UUID) ([]order.Order, error) {
	args := m.Called(ctx, buyerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderService) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus order.OrderStatus) error {
	args := m.Called(ctx, orderID, newStatus)
	return args.Error(0)
}

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) HandleFormWebhook(ctx context.Context, values url.Values) (*reconcile.Report, error) {
	args := m.Called(ctx, values)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconcile.Report), args.Error(1)
}

func (m *MockReconciler) HandleHostedEvent(ctx context.Context, n *payment.HostedNotification) (*reconcile.Report, error) {
	args := m.Called(ctx, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconcile.Report), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyAndWait(ctx context.Context, msgs ...notify.Message) []notify.Result {
	args := m.Called(ctx, msgs)
	return args.Get(0).([]notify.Result)
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func serviceRoleToken(t *testing.T) string {
	return signToken(t, testSecret, jwt.MapClaims{
		"role": "service_role",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
}
