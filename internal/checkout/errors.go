package checkout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
)

var (
	// ErrGatewayUnavailable carries only a user-safe message; the cause is logged.
	ErrGatewayUnavailable       = errors.New("payment could not be started, please retry")
	ErrPaymentMethodUnavailable = errors.New("payment method is not available")
	ErrUnknownCheckout          = errors.New("checkout not found")
	ErrNothingToPay             = errors.New("checkout has no orders awaiting payment")
	ErrAmountMismatch           = errors.New("amount does not match checkout total")
	ErrNoOrdersCreated          = errors.New("no orders could be created")
)

// ValidationError lists every blocking issue found before any order exists.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "checkout: validation failed: " + strings.Join(e.Issues, "; ")
}

type StoreFailure struct {
	StoreID   uuid.UUID `json:"store_id"`
	StoreName string    `json:"store_name"`
	Err       error     `json:"-"`
}

// PartialOrderCreationError reports the stores whose orders were not
// persisted. Orders for the other stores exist and are not rolled back.
type PartialOrderCreationError struct {
	CreatedStores []uuid.UUID
	Failed        []StoreFailure
}

func (e *PartialOrderCreationError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		ids = append(ids, f.StoreID.String())
	}
	return fmt.Sprintf("checkout: %d of %d store orders failed: %s",
		len(e.Failed), len(e.Failed)+len(e.CreatedStores), strings.Join(ids, ", "))
}

func (e *PartialOrderCreationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}
