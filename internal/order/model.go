package order

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusConfirmed  OrderStatus = "confirmed"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

func (s OrderStatus) String() string {
	return string(s)
}

func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// PaymentStatus is the money lifecycle, independent of OrderStatus.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

func (s PaymentStatus) String() string {
	return string(s)
}

func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentCompleted || s == PaymentFailed
}

type PaymentMethod string

const (
	MethodHosted       PaymentMethod = "hosted"
	MethodFormRedirect PaymentMethod = "form-redirect"
	MethodManualEmail  PaymentMethod = "manual-email"
)

func (m PaymentMethod) String() string {
	return string(m)
}

// UsesGateway reports whether a webhook is expected to settle the payment.
func (m PaymentMethod) UsesGateway() bool {
	return m == MethodHosted || m == MethodFormRedirect
}

func (m PaymentMethod) Valid() bool {
	return m == MethodHosted || m == MethodFormRedirect || m == MethodManualEmail
}

const FailureReasonTimeout = "timeout"

// OrderItem is a value snapshot of a cart line taken at checkout time.
type OrderItem struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID         uuid.UUID `json:"id"`
	CheckoutID uuid.UUID `json:"checkout_id"`
	BuyerID    uuid.UUID `json:"buyer_id"`
	BuyerName  string    `json:"buyer_name"`
	BuyerEmail string    `json:"buyer_email"`
	StoreID    uuid.UUID `json:"store_id"`

	// Store and seller details are copied at creation so later profile edits
	// do not rewrite history.
	StoreName   string  `json:"store_name"`
	SellerName  string  `json:"seller_name,omitempty"`
	SellerEmail *string `json:"seller_email,omitempty"`
	NeedsReview bool    `json:"needs_review"`

	Items              []OrderItem     `json:"items"`
	ItemSubtotal       decimal.Decimal `json:"item_subtotal"`
	DeliveryCharge     decimal.Decimal `json:"delivery_charge"`
	DeliveryOptionName string          `json:"delivery_option_name,omitempty"`
	TotalAmount        decimal.Decimal `json:"total_amount"`

	ShippingAddressText string `json:"shipping_address_text,omitempty"`

	PaymentMethod        PaymentMethod       `json:"payment_method"`
	Status               OrderStatus         `json:"status"`
	PaymentStatus        PaymentStatus       `json:"payment_status"`
	GatewayCorrelationID uuid.NullUUID       `json:"gateway_correlation_id"`
	GatewaySessionID     string              `json:"gateway_session_id,omitempty"`
	PaidAmount           decimal.NullDecimal `json:"paid_amount"`
	PaidAt               *time.Time          `json:"payment_date,omitempty"`
	FailureReason        string              `json:"failure_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PaymentUpdate is applied only while the stored payment status is pending.
type PaymentUpdate struct {
	Status        PaymentStatus
	PaidAmount    decimal.NullDecimal
	PaidAt        *time.Time
	FailureReason string
	// OrderStatus, when set, replaces the business status if it is still pending.
	OrderStatus OrderStatus
}

// Clone returns a deep copy so callers cannot mutate stored snapshots.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	if o.SellerEmail != nil {
		e := *o.SellerEmail
		c.SellerEmail = &e
	}
	if o.PaidAt != nil {
		t := *o.PaidAt
		c.PaidAt = &t
	}
	return &c
}

// SumTotals adds up TotalAmount across orders.
func SumTotals(orders []Order) decimal.Decimal {
	sum := decimal.Zero
	for _, o := range orders {
		sum = sum.Add(o.TotalAmount)
	}
	return sum
}
