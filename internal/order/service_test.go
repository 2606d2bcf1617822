package order_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/order"
)

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) CreateOrder(ctx context.Context, o *order.Order) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *MockOrderRepository) GetOrderByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderRepository) GetOrdersByBuyerID(ctx context.Context, buyerID uuid.UUID) ([]order.Order, error) {
	args := m.Called(ctx, buyerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderRepository) GetOrdersByCheckoutID(ctx context.Context, checkoutID uuid.UUID) ([]order.Order, error) {
	args := m.Called(ctx, checkoutID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderRepository) GetOrdersByCorrelationID(ctx context.Context, correlationID uuid.UUID) ([]order.Order, error) {
	args := m.Called(ctx, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderRepository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus order.OrderStatus) error {
	args := m.Called(ctx, orderID, newStatus)
	return args.Error(0)
}

func (m *MockOrderRepository) AttachCorrelation(ctx context.Context, orderID, correlationID uuid.UUID, sessionID string) error {
	args := m.Called(ctx, orderID, correlationID, sessionID)
	return args.Error(0)
}

func (m *MockOrderRepository) UpdatePayment(ctx context.Context, orderID uuid.UUID, update order.PaymentUpdate) error {
	args := m.Called(ctx, orderID, update)
	return args.Error(0)
}

func (m *MockOrderRepository) ListStalePending(ctx context.Context, before time.Time, limit int) ([]order.Order, error) {
	args := m.Called(ctx, before, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func TestOrderService_GetOrderByID_Success(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	orderService := order.NewService(mockRepo)

	orderID := uuid.Must(uuid.NewV4())
	expected := &order.Order{
		ID:            orderID,
		StoreName:     "Store A",
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
		CreatedAt:     time.Date(2025, 4, 16, 12, 0, 0, 0, time.UTC),
	}

	mockRepo.On("GetOrderByID", mock.Anything, orderID).Return(expected, nil).Once()

	got, err := orderService.GetOrderByID(context.Background(), orderID)
	require.NoError(t, err)
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Errorf("GetOrderByID() mismatch (-want +got):\n%s", diff)
	}
	mockRepo.AssertExpectations(t)
}

func TestOrderService_GetOrderByID_NotFound(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	orderService := order.NewService(mockRepo)

	orderID := uuid.Must(uuid.NewV4())
	mockRepo.On("GetOrderByID", mock.Anything, orderID).Return(nil, order.ErrOrderNotFound).Once()

	got, err := orderService.GetOrderByID(context.Background(), orderID)
	require.ErrorIs(t, err, order.ErrOrderNotFound)
	require.Nil(t, got)
	mockRepo.AssertExpectations(t)
}

func TestOrderService_GetOrdersByBuyerID_RepoError(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	orderService := order.NewService(mockRepo)

	buyerID := uuid.Must(uuid.NewV4())
	dbErr := errors.New("connection reset")
	mockRepo.On("GetOrdersByBuyerID", mock.Anything, buyerID).Return(nil, dbErr).Once()

	_, err := orderService.GetOrdersByBuyerID(context.Background(), buyerID)
	require.ErrorIs(t, err, dbErr)
	mockRepo.AssertExpectations(t)
}

func TestOrderService_UpdateOrderStatus(t *testing.T) {
	tests := []struct {
		name       string
		current    order.Order
		newStatus  order.OrderStatus
		wantUpdate bool
		wantErr    error
	}{
		{
			name:       "manual order confirmed while payment pending",
			current:    order.Order{Status: order.StatusPending, PaymentMethod: order.MethodManualEmail, PaymentStatus: order.PaymentPending},
			newStatus:  order.StatusConfirmed,
			wantUpdate: true,
		},
		{
			name:      "gateway order cannot be confirmed unpaid",
			current:   order.Order{Status: order.StatusPending, PaymentMethod: order.MethodHosted, PaymentStatus: order.PaymentPending},
			newStatus: order.StatusConfirmed,
			wantErr:   order.ErrPaymentNotCompleted,
		},
		{
			name:       "confirmed to processing",
			current:    order.Order{Status: order.StatusConfirmed, PaymentMethod: order.MethodHosted, PaymentStatus: order.PaymentCompleted},
			newStatus:  order.StatusProcessing,
			wantUpdate: true,
		},
		{
			name:       "shipped to delivered",
			current:    order.Order{Status: order.StatusShipped, PaymentMethod: order.MethodFormRedirect, PaymentStatus: order.PaymentCompleted},
			newStatus:  order.StatusDelivered,
			wantUpdate: true,
		},
		{
			name:       "cancel from processing",
			current:    order.Order{Status: order.StatusProcessing, PaymentMethod: order.MethodManualEmail},
			newStatus:  order.StatusCancelled,
			wantUpdate: true,
		},
		{
			name:      "skip ahead is rejected",
			current:   order.Order{Status: order.StatusPending, PaymentMethod: order.MethodManualEmail},
			newStatus: order.StatusShipped,
			wantErr:   order.ErrInvalidStatusTransition,
		},
		{
			name:      "delivered is terminal",
			current:   order.Order{Status: order.StatusDelivered, PaymentMethod: order.MethodManualEmail},
			newStatus: order.StatusCancelled,
			wantErr:   order.ErrInvalidStatusTransition,
		},
		{
			name:      "cancelled is terminal",
			current:   order.Order{Status: order.StatusCancelled, PaymentMethod: order.MethodHosted},
			newStatus: order.StatusPending,
			wantErr:   order.ErrInvalidStatusTransition,
		},
		{
			name:      "same status is a no-op",
			current:   order.Order{Status: order.StatusShipped, PaymentMethod: order.MethodHosted},
			newStatus: order.StatusShipped,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockOrderRepository)
			orderService := order.NewService(mockRepo)

			orderID := uuid.Must(uuid.NewV4())
			current := tt.current
			current.ID = orderID
			mockRepo.On("GetOrderByID", mock.Anything, orderID).Return(&current, nil).Once()
			if tt.wantUpdate {
				mockRepo.On("UpdateOrderStatus", mock.Anything, orderID, tt.newStatus).Return(nil).Once()
			}

			err := orderService.UpdateOrderStatus(context.Background(), orderID, tt.newStatus)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			mockRepo.AssertExpectations(t)
			if !tt.wantUpdate {
				mockRepo.AssertNotCalled(t, "UpdateOrderStatus", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}
