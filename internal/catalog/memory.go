package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid"
)

// MemoryDirectory is a mutable in-process Directory for the memory store mode
// and tests.
type MemoryDirectory struct {
	mu      sync.RWMutex
	stores  map[uuid.UUID]Store
	options map[uuid.UUID]DeliveryOption
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		stores:  make(map[uuid.UUID]Store),
		options: make(map[uuid.UUID]DeliveryOption),
	}
}

func (d *MemoryDirectory) PutStore(s Store) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stores[s.ID] = s
}

func (d *MemoryDirectory) PutDeliveryOption(o DeliveryOption) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.options[o.ID] = o
}

// DeleteStore soft-deletes a store the way the stores table does.
func (d *MemoryDirectory) DeleteStore(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.stores[id]; ok {
		now := time.Now().UTC()
		s.DeletedAt = &now
		d.stores[id] = s
	}
}

func (d *MemoryDirectory) Stores(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]Store, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[uuid.UUID]Store, len(ids))
	for _, id := range ids {
		if s, ok := d.stores[id]; ok && s.DeletedAt == nil {
			out[id] = s
		}
	}
	return out, nil
}

func (d *MemoryDirectory) DeliveryOptions(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]DeliveryOption, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[uuid.UUID]DeliveryOption, len(ids))
	for _, id := range ids {
		if o, ok := d.options[id]; ok {
			out[id] = o
		}
	}
	return out, nil
}
