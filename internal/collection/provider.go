package collection

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gridpulse-lab/gridpulse/internal/core/resource"
	"github.com/gridpulse-lab/gridpulse/internal/core/unit"
)

// MeterIdentity names a meter towards its external provider.
type MeterIdentity struct {
	ResourceID uuid.UUID
	ExternalID string
}

// MeterDescriptor is one meter discovered at a provider.
type MeterDescriptor struct {
	ExternalID string
	Name       string
}

// ProviderConnection is the contract an external energy-data source
// implements. Failures are classified through coreerrors.ProviderError;
// the orchestrator retries transient ones a fixed number of times.
type ProviderConnection interface {
	// FetchCurrentValue reads the meter's current value.
	FetchCurrentValue(ctx context.Context, id MeterIdentity) (unit.Sample, error)

	// FetchHistoricalValues is optional; many providers return an empty
	// slice.
	FetchHistoricalValues(ctx context.Context, id MeterIdentity, from, to time.Time, res unit.Resolution) ([]unit.Sample, error)

	// ValidateMeter performs a best-effort live check.
	ValidateMeter(ctx context.Context, id MeterIdentity) error

	// ListMeters is optional discovery.
	ListMeters(ctx context.Context) ([]MeterDescriptor, error)
}

// ProviderRegistry dispatches resource kinds to their provider connection.
type ProviderRegistry map[resource.Kind]ProviderConnection

// For returns the provider serving a resource kind.
func (p ProviderRegistry) For(k resource.Kind) (ProviderConnection, error) {
	conn, ok := p[k]
	if !ok {
		return nil, fmt.Errorf("no provider connection for resource kind %q", k)
	}
	return conn, nil
}
