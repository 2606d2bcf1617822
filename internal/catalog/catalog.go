package catalog

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// Store is the slice of store profile data checkout needs. Deleted stores are
// never returned by a Directory.
type Store struct {
	ID          uuid.UUID  `db:"id"`
	Name        string     `db:"name"`
	SellerName  string     `db:"seller_name"`
	SellerEmail *string    `db:"seller_email"`
	DeletedAt   *time.Time `db:"deleted_at"`
}

type DeliveryOption struct {
	ID      uuid.UUID       `db:"id"`
	StoreID uuid.UUID       `db:"store_id"`
	Name    string          `db:"name"`
	Charge  decimal.Decimal `db:"charge"`
}

// Directory resolves store and delivery reference data by id. Unknown ids are
// simply absent from the returned maps.
type Directory interface {
	Stores(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Store, error)
	DeliveryOptions(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]DeliveryOption, error)
}
