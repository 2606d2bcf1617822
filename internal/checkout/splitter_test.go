package checkout_test

import (
	"testing"

	"github.com/gofrs/uuid"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/catalog"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/checkout"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/order"
)

var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func TestSplit_TwoStoreExample(t *testing.T) {
	storeA, storeB := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	mug, plate := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	sellerA := "a@example.com"

	items := []checkout.CartItem{
		{ProductID: mug, ProductName: "Mug", StoreID: storeA, UnitPrice: decimal.NewFromInt(100), Quantity: 2},
		{ProductID: plate, ProductName: "Plate", StoreID: storeB, UnitPrice: decimal.NewFromInt(50), Quantity: 1},
	}
	stores := map[uuid.UUID]catalog.Store{
		storeA: {ID: storeA, Name: "Store A", SellerName: "Ayanda", SellerEmail: &sellerA},
		storeB: {ID: storeB, Name: "Store B"},
	}
	deliveries := map[uuid.UUID]catalog.DeliveryOption{
		storeA: {StoreID: storeA, Name: "Courier", Charge: decimal.NewFromInt(20)},
		storeB: {StoreID: storeB, Name: "Collect", Charge: decimal.Zero},
	}

	got := checkout.Split(items, deliveries, stores)

	want := []checkout.DraftOrder{
		{
			StoreID:            storeA,
			StoreName:          "Store A",
			SellerName:         "Ayanda",
			SellerEmail:        &sellerA,
			Items:              []order.OrderItem{{ProductID: mug, ProductName: "Mug", UnitPrice: decimal.NewFromInt(100), Quantity: 2}},
			ItemSubtotal:       decimal.NewFromInt(200),
			DeliveryCharge:     decimal.NewFromInt(20),
			DeliveryOptionName: "Courier",
			Total:              decimal.NewFromInt(220),
		},
		{
			StoreID:            storeB,
			StoreName:          "Store B",
			Items:              []order.OrderItem{{ProductID: plate, ProductName: "Plate", UnitPrice: decimal.NewFromInt(50), Quantity: 1}},
			ItemSubtotal:       decimal.NewFromInt(50),
			DeliveryCharge:     decimal.Zero,
			DeliveryOptionName: "Collect",
			Total:              decimal.NewFromInt(50),
		},
	}
	if diff := cmp.Diff(want, got, decimalEqual); diff != "" {
		t.Errorf("Split() mismatch (-want +got):\n%s", diff)
	}
}

func TestSplit_ConservesTotalsAndLines(t *testing.T) {
	stores := []uuid.UUID{uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())}
	items := make([]checkout.CartItem, 0)
	lineSum := decimal.Zero
	for i := 0; i < 9; i++ {
		item := checkout.CartItem{
			ProductID: uuid.Must(uuid.NewV4()),
			StoreID:   stores[i%3],
			UnitPrice: decimal.RequireFromString("19.99").Add(decimal.NewFromInt(int64(i))),
			Quantity:  i%4 + 1,
		}
		items = append(items, item)
		lineSum = lineSum.Add(item.LineTotal())
	}
	deliveries := map[uuid.UUID]catalog.DeliveryOption{
		stores[0]: {StoreID: stores[0], Charge: decimal.RequireFromString("35.50")},
		stores[2]: {StoreID: stores[2], Charge: decimal.RequireFromString("12.25")},
	}

	drafts := checkout.Split(items, deliveries, nil)
	require.Len(t, drafts, 3)
	assert.Equal(t, []uuid.UUID{stores[0], stores[1], stores[2]}, []uuid.UUID{drafts[0].StoreID, drafts[1].StoreID, drafts[2].StoreID}, "first-occurrence order")

	total := decimal.Zero
	seen := make(map[uuid.UUID]int)
	for _, d := range drafts {
		total = total.Add(d.Total)
		assert.True(t, d.Total.Equal(d.ItemSubtotal.Add(d.DeliveryCharge)))
		for _, it := range d.Items {
			seen[it.ProductID]++
		}
	}
	assert.True(t, total.Equal(lineSum.Add(decimal.RequireFromString("47.75"))), "got %s", total)
	assert.Len(t, seen, len(items))
	for _, n := range seen {
		assert.Equal(t, 1, n)
	}
	assert.True(t, drafts[1].DeliveryCharge.IsZero(), "no delivery selected means no charge")
}

func TestSplit_DeletedStoreGetsPlaceholder(t *testing.T) {
	gone := uuid.Must(uuid.NewV4())
	items := []checkout.CartItem{{ProductID: uuid.Must(uuid.NewV4()), StoreID: gone, UnitPrice: decimal.NewFromInt(10), Quantity: 1}}

	drafts := checkout.Split(items, nil, map[uuid.UUID]catalog.Store{})

	require.Len(t, drafts, 1)
	assert.Equal(t, checkout.UnavailableStoreName, drafts[0].StoreName)
	assert.Nil(t, drafts[0].SellerEmail)
	assert.True(t, drafts[0].NeedsReview)
	assert.True(t, drafts[0].Total.Equal(decimal.NewFromInt(10)))
}

func TestSplit_SnapshotsAreIndependentOfCart(t *testing.T) {
	store := uuid.Must(uuid.NewV4())
	items := []checkout.CartItem{{ProductID: uuid.Must(uuid.NewV4()), StoreID: store, UnitPrice: decimal.NewFromInt(10), Quantity: 1}}

	drafts := checkout.Split(items, nil, nil)
	items[0].Quantity = 50
	items[0].UnitPrice = decimal.NewFromInt(1)

	assert.Equal(t, 1, drafts[0].Items[0].Quantity)
	assert.True(t, drafts[0].Items[0].UnitPrice.Equal(decimal.NewFromInt(10)))
}
