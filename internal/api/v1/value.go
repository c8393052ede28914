package v1

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ResourceValue is the inbound wire format for one pushed sample. Third
// party providers and user data sets deliver these over HTTP or the
// message broker; the server never trusts the received_at field.
type ResourceValue struct {
	// ResourceID identifies the target resource. It must already be
	// provisioned; unknown IDs are rejected.
	ResourceID uuid.UUID `json:"resource_id"`

	// Value is the reading in the resource's native unit. Discrete
	// resources send their integer state code here.
	Value decimal.Decimal `json:"value"`

	// TakenAt is the provider-side timestamp of the reading. Together
	// with ResourceID it forms the idempotency key.
	TakenAt time.Time `json:"taken_at"`

	// ReceivedAt is stamped by the server on arrival.
	ReceivedAt time.Time `json:"received_at,omitempty"`
}

// Validate checks the required wire attributes.
func (v *ResourceValue) Validate() error {
	if v.ResourceID == uuid.Nil {
		return fmt.Errorf("resource_id is required")
	}
	if v.TakenAt.IsZero() {
		return fmt.Errorf("taken_at is required")
	}
	return nil
}
