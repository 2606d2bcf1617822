package catalog

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jmoiron/sqlx"
)

type sqlDirectory struct {
	db *sqlx.DB
}

func NewSQLDirectory(db *sqlx.DB) Directory {
	return &sqlDirectory{db: db}
}

func (d *sqlDirectory) Stores(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Store, error) {
	out := make(map[uuid.UUID]Store, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`
		SELECT id, name, seller_name, seller_email, deleted_at
		FROM stores
		WHERE id IN (?) AND deleted_at IS NULL`, ids)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to build stores query: %w", err)
	}

	var stores []Store
	if err := d.db.SelectContext(ctx, &stores, d.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("catalog: failed to select stores: %w", err)
	}
	for _, s := range stores {
		out[s.ID] = s
	}
	return out, nil
}

func (d *sqlDirectory) DeliveryOptions(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]DeliveryOption, error) {
	out := make(map[uuid.UUID]DeliveryOption, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`
		SELECT id, store_id, name, charge
		FROM delivery_options
		WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to build delivery options query: %w", err)
	}

	var options []DeliveryOption
	if err := d.db.SelectContext(ctx, &options, d.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("catalog: failed to select delivery options: %w", err)
	}
	for _, o := range options {
		out[o.ID] = o
	}
	return out, nil
}
