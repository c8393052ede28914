package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gridpulse-lab/gridpulse/internal/core/resource"
	"github.com/gridpulse-lab/gridpulse/internal/core/unit"
)

// ErrDuplicate is returned when a sample for the same (resource, time)
// already exists in a tier. Concurrent writers treat it as "already
// written, discard", never as a fatal error.
var ErrDuplicate = errors.New("sample already exists")

// ErrResourceNotFound is returned for lookups of unknown resource IDs.
var ErrResourceNotFound = errors.New("resource not found")

// Tier selects one of the two historical stores.
type Tier string

const (
	// TierDetailed is fine-grained with bounded retention.
	TierDetailed Tier = "detailed"
	// TierLongTerm is coarse-grained with unbounded retention.
	TierLongTerm Tier = "long_term"
)

// SampleStore persists historical samples in both tiers. Uniqueness on
// (resource, time) is the sole concurrency guard for writers.
type SampleStore interface {
	// Insert writes one sample into the tier. Returns ErrDuplicate when a
	// row for (resource, time) already exists there.
	Insert(ctx context.Context, tier Tier, s unit.Sample) error

	// Range returns samples with time in [from, to), ordered ascending.
	Range(ctx context.Context, tier Tier, resourceID uuid.UUID, from, to time.Time) ([]unit.Sample, error)

	// Latest returns the newest sample in the tier at or after cutoff.
	// Returns found=false when no such sample exists. Event-driven
	// resources have no detailed tier; their latest reading lives in the
	// long-term tier.
	Latest(ctx context.Context, tier Tier, resourceID uuid.UUID, cutoff time.Time) (unit.Sample, bool, error)

	// DeleteDetailedBefore prunes detailed rows older than cutoff and
	// reports how many rows were removed.
	DeleteDetailedBefore(ctx context.Context, resourceID uuid.UUID, cutoff time.Time) (int64, error)
}

// ResourceStore persists resource configuration and bookkeeping.
type ResourceStore interface {
	Get(ctx context.Context, id uuid.UUID) (*resource.Resource, error)
	List(ctx context.Context) ([]*resource.Resource, error)
	ListByLocation(ctx context.Context, locationID uuid.UUID) ([]*resource.Resource, error)

	// UpdateWatermarks persists the collection bookkeeping timestamps.
	UpdateWatermarks(ctx context.Context, r *resource.Resource) error
}
