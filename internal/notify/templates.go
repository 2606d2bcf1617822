package notify

import (
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/order"
)

// Templates turns order snapshots into provider payloads. Prices are VAT
// inclusive; the VAT portion is shown, not added.
type Templates struct {
	VATRate       decimal.Decimal
	PublicBaseURL string
}

func (t Templates) OrderConfirmation(o order.Order) Message {
	data := t.orderData(o)
	data["buyer_name"] = o.BuyerName
	data["shipping_address"] = o.ShippingAddressText
	return Message{Type: EventOrderConfirmation, To: o.BuyerEmail, Data: data}
}

func (t Templates) SellerNotification(o order.Order) Message {
	data := t.orderData(o)
	data["seller_name"] = o.SellerName
	data["buyer_name"] = o.BuyerName
	data["shipping_address"] = o.ShippingAddressText
	to := ""
	if o.SellerEmail != nil {
		to = *o.SellerEmail
	}
	return Message{Type: EventSellerNotification, To: to, Data: data}
}

func (t Templates) PaymentFailed(o order.Order) Message {
	data := t.orderData(o)
	data["buyer_name"] = o.BuyerName
	data["reason"] = o.FailureReason
	return Message{Type: EventPaymentFailed, To: o.BuyerEmail, Data: data}
}

// OrderPlaced is the pair sent when an order becomes payable or paid.
func (t Templates) OrderPlaced(orders []order.Order) []Message {
	msgs := make([]Message, 0, 2*len(orders))
	for _, o := range orders {
		msgs = append(msgs, t.OrderConfirmation(o), t.SellerNotification(o))
	}
	return msgs
}

func (t Templates) orderData(o order.Order) map[string]any {
	items := make([]map[string]any, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, map[string]any{
			"product_name": it.ProductName,
			"quantity":     it.Quantity,
			"unit_price":   it.UnitPrice.StringFixed(2),
			"line_total":   it.LineTotal().StringFixed(2),
		})
	}

	data := map[string]any{
		"order_id":        o.ID.String(),
		"store_name":      o.StoreName,
		"items":           items,
		"item_subtotal":   o.ItemSubtotal.StringFixed(2),
		"delivery_charge": o.DeliveryCharge.StringFixed(2),
		"delivery_option": o.DeliveryOptionName,
		"total_amount":    o.TotalAmount.StringFixed(2),
		"vat_included":    VATPortion(o.TotalAmount, t.VATRate).StringFixed(2),
		"payment_method":  o.PaymentMethod.String(),
		"payment_status":  o.PaymentStatus.String(),
	}
	if t.PublicBaseURL != "" {
		data["order_url"] = t.PublicBaseURL + "/orders/" + o.ID.String()
	}
	return data
}

// VATPortion returns the tax contained in an inclusive gross amount.
func VATPortion(gross, rate decimal.Decimal) decimal.Decimal {
	if !rate.IsPositive() {
		return decimal.Zero
	}
	net := gross.Div(decimal.NewFromInt(1).Add(rate))
	return gross.Sub(net).Round(2)
}
