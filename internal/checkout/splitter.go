package checkout

import (
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/catalog"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/order"
)

// UnavailableStoreName stands in for a store that no longer exists.
const UnavailableStoreName = "Unavailable store"

// DraftOrder is one store's share of a cart before it is persisted.
type DraftOrder struct {
	StoreID            uuid.UUID
	StoreName          string
	SellerName         string
	SellerEmail        *string
	NeedsReview        bool
	Items              []order.OrderItem
	ItemSubtotal       decimal.Decimal
	DeliveryCharge     decimal.Decimal
	DeliveryOptionName string
	Total              decimal.Decimal
}

// Split groups items by store in order of first appearance. deliveries is
// keyed by store id; a store without one pays no delivery. A store missing
// from stores still gets an order, flagged for review.
func Split(items []CartItem, deliveries map[uuid.UUID]catalog.DeliveryOption, stores map[uuid.UUID]catalog.Store) []DraftOrder {
	index := make(map[uuid.UUID]int)
	drafts := make([]DraftOrder, 0)

	for _, item := range items {
		i, ok := index[item.StoreID]
		if !ok {
			i = len(drafts)
			index[item.StoreID] = i
			drafts = append(drafts, newDraft(item.StoreID, stores))
		}
		d := &drafts[i]
		line := order.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
		}
		d.Items = append(d.Items, line)
		d.ItemSubtotal = d.ItemSubtotal.Add(line.LineTotal())
	}

	for i := range drafts {
		d := &drafts[i]
		if opt, ok := deliveries[d.StoreID]; ok {
			d.DeliveryCharge = opt.Charge
			d.DeliveryOptionName = opt.Name
		}
		d.Total = d.ItemSubtotal.Add(d.DeliveryCharge)
	}
	return drafts
}

func newDraft(storeID uuid.UUID, stores map[uuid.UUID]catalog.Store) DraftOrder {
	d := DraftOrder{
		StoreID:        storeID,
		ItemSubtotal:   decimal.Zero,
		DeliveryCharge: decimal.Zero,
	}
	s, ok := stores[storeID]
	if !ok {
		d.StoreName = UnavailableStoreName
		d.NeedsReview = true
		return d
	}
	d.StoreName = s.Name
	d.SellerName = s.SellerName
	if s.SellerEmail != nil {
		email := *s.SellerEmail
		d.SellerEmail = &email
	}
	return d
}
