package resource

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gridpulse-lab/gridpulse/internal/core/unit"
)

// Kind is the concrete kind of a monitored resource. Kind-specific behavior
// lives in a single dispatch table (Capabilities) rather than type hierarchies.
type Kind string

const (
	KindEnergyMeter           Kind = "energy_meter"
	KindThirdPartySensor      Kind = "third_party_sensor"
	KindThirdPartyEnergyMeter Kind = "third_party_energy_meter"
	KindWeatherProbe          Kind = "weather_probe"
	KindUserDataSet           Kind = "user_data_set"
)

// CollectionMethod is how samples reach the store for a resource.
type CollectionMethod string

const (
	Pull CollectionMethod = "pull" // orchestrator polls the provider
	Push CollectionMethod = "push" // provider delivers to the inbound path
)

// ParseKind validates a wire-format resource kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := capabilities[k]; !ok {
		return "", fmt.Errorf("unknown resource kind %q", s)
	}
	return k, nil
}

// Capability describes the static behavior of a resource kind.
type Capability struct {
	// Methods a kind can support at all, regardless of provider.
	Methods []CollectionMethod
	// DefaultUnit used when provisioning without an explicit unit.
	DefaultUnit unit.Unit
}

var capabilities = map[Kind]Capability{
	KindEnergyMeter:           {Methods: []CollectionMethod{Pull}, DefaultUnit: unit.Watt},
	KindThirdPartySensor:      {Methods: []CollectionMethod{Pull, Push}, DefaultUnit: unit.Unknown},
	KindThirdPartyEnergyMeter: {Methods: []CollectionMethod{Pull, Push}, DefaultUnit: unit.Watt},
	KindWeatherProbe:          {Methods: []CollectionMethod{Pull}, DefaultUnit: unit.Celsius},
	KindUserDataSet:           {Methods: []CollectionMethod{Push}, DefaultUnit: unit.Unknown},
}

// CapabilityFor returns the static capability of a kind.
func CapabilityFor(k Kind) (Capability, bool) {
	c, ok := capabilities[k]
	return c, ok
}

// Resource represents any monitored entity producing time-stamped samples.
type Resource struct {
	ID         uuid.UUID
	LocationID uuid.UUID
	Kind       Kind
	Unit       unit.Unit

	SupportedMethods []CollectionMethod
	PreferredMethod  CollectionMethod

	// DetailedResolution is nil for push-only event-driven resources.
	DetailedResolution *unit.Resolution
	LongTermResolution unit.Resolution

	// DetailedLiveTime is the detailed-tier retention; nil means infinite.
	DetailedLiveTime *time.Duration

	// Bookkeeping timestamps, advanced by the collection orchestrator.
	LastDetailedWrite *time.Time
	LastLongTermWrite *time.Time
	MigratedThrough   *time.Time

	Deleted bool
}

// Supports reports whether m is among the resource's supported methods.
func (r *Resource) Supports(m CollectionMethod) bool {
	for _, s := range r.SupportedMethods {
		if s == m {
			return true
		}
	}
	return false
}

// SampleInterval is the duration one detailed sample stands for.
// Zero for event-driven resources with no fixed interval.
func (r *Resource) SampleInterval() time.Duration {
	if r.DetailedResolution == nil {
		return 0
	}
	return r.DetailedResolution.Duration()
}

// Validate checks the collection configuration against the kind's capability.
func (r *Resource) Validate() error {
	cap, ok := capabilities[r.Kind]
	if !ok {
		return fmt.Errorf("resource %s: unknown kind %q", r.ID, r.Kind)
	}
	if len(r.SupportedMethods) == 0 {
		return fmt.Errorf("resource %s: no collection methods", r.ID)
	}
	for _, m := range r.SupportedMethods {
		if !methodAllowed(cap.Methods, m) {
			return fmt.Errorf("resource %s: kind %s does not support method %s", r.ID, r.Kind, m)
		}
	}
	if !r.Supports(r.PreferredMethod) {
		return fmt.Errorf("resource %s: preferred method %s not in supported set", r.ID, r.PreferredMethod)
	}
	if r.PreferredMethod == Pull && r.DetailedResolution == nil {
		return fmt.Errorf("resource %s: pull collection requires a detailed time resolution", r.ID)
	}
	if r.LongTermResolution == "" {
		return fmt.Errorf("resource %s: long-term time resolution is required", r.ID)
	}
	return nil
}

func methodAllowed(allowed []CollectionMethod, m CollectionMethod) bool {
	for _, a := range allowed {
		if a == m {
			return true
		}
	}
	return false
}

// BatchDelivered reports whether samples arrive in daily provider batches
// rather than at the resource's native cadence. Half-hour meters are read
// once a day.
func (r *Resource) BatchDelivered() bool {
	return r.DetailedResolution != nil && *r.DetailedResolution == unit.HalfHour
}

// Offline is the cadence check for resources collected at their native
// interval: disconnected when no detailed sample landed within one interval
// plus the configured delay. Batch-delivered resources are judged against
// the long-term tier by the collection orchestrator, not here; a recent
// watermark says nothing about a gap earlier in the batch.
func (r *Resource) Offline(now time.Time, delay time.Duration) bool {
	if r.DetailedResolution == nil {
		// Event-driven resources have no expected cadence.
		return false
	}
	if r.LastDetailedWrite == nil {
		return true
	}
	horizon := r.DetailedResolution.Duration() + delay
	return now.Sub(*r.LastDetailedWrite) > horizon
}
