package catalog_test

import (
	"context"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/catalog"
)

func TestMemoryDirectory_DeletedStoresAreHidden(t *testing.T) {
	dir := catalog.NewMemoryDirectory()
	live := catalog.Store{ID: uuid.Must(uuid.NewV4()), Name: "Live"}
	gone := catalog.Store{ID: uuid.Must(uuid.NewV4()), Name: "Gone"}
	dir.PutStore(live)
	dir.PutStore(gone)
	dir.DeleteStore(gone.ID)

	got, err := dir.Stores(context.Background(), []uuid.UUID{live.ID, gone.ID, uuid.Must(uuid.NewV4())})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "Live", got[live.ID].Name)
}

func TestMemoryDirectory_DeliveryOptions(t *testing.T) {
	dir := catalog.NewMemoryDirectory()
	opt := catalog.DeliveryOption{ID: uuid.Must(uuid.NewV4()), StoreID: uuid.Must(uuid.NewV4()), Name: "Courier", Charge: decimal.NewFromInt(20)}
	dir.PutDeliveryOption(opt)

	got, err := dir.DeliveryOptions(context.Background(), []uuid.UUID{opt.ID})
	require.NoError(t, err)
	require.Contains(t, got, opt.ID)
	assert.True(t, got[opt.ID].Charge.Equal(decimal.NewFromInt(20)))

	empty, err := dir.DeliveryOptions(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
