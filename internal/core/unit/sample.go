package unit

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ValuePrecision is the decimal precision samples are rounded to on write.
const ValuePrecision = 6

// Sample is one observed or derived value of a resource.
// At most one sample may exist per (resource, time) per storage tier.
type Sample struct {
	ResourceID uuid.UUID       `json:"resource_id"`
	Time       time.Time       `json:"time"`
	Value      decimal.Decimal `json:"value"`
}

// NewSample normalizes the timestamp to UTC and rounds the value to the
// storage precision.
func NewSample(resourceID uuid.UUID, t time.Time, v decimal.Decimal) Sample {
	return Sample{
		ResourceID: resourceID,
		Time:       t.UTC(),
		Value:      v.Round(ValuePrecision),
	}
}
