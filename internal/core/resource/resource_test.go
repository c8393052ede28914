package resource

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gridpulse-lab/gridpulse/internal/core/unit"
)

func resPtr(r unit.Resolution) *unit.Resolution { return &r }

func validMeter() *Resource {
	return &Resource{
		ID:                 uuid.New(),
		LocationID:         uuid.New(),
		Kind:               KindEnergyMeter,
		Unit:               unit.Watt,
		SupportedMethods:   []CollectionMethod{Pull},
		PreferredMethod:    Pull,
		DetailedResolution: resPtr(unit.TwentySeconds),
		LongTermResolution: unit.HalfHour,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Resource)
		wantError bool
	}{
		{name: "valid meter", mutate: func(r *Resource) {}},
		{name: "unknown kind", mutate: func(r *Resource) { r.Kind = "toaster" }, wantError: true},
		{name: "no methods", mutate: func(r *Resource) { r.SupportedMethods = nil }, wantError: true},
		{name: "preferred outside supported", mutate: func(r *Resource) { r.PreferredMethod = Push }, wantError: true},
		{name: "push not allowed for energy meter", mutate: func(r *Resource) {
			r.SupportedMethods = []CollectionMethod{Push}
			r.PreferredMethod = Push
		}, wantError: true},
		{name: "pull without detailed resolution", mutate: func(r *Resource) { r.DetailedResolution = nil }, wantError: true},
		{name: "missing long-term resolution", mutate: func(r *Resource) { r.LongTermResolution = "" }, wantError: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := validMeter()
			tc.mutate(r)
			err := r.Validate()
			if tc.wantError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidatePushOnlyEventDriven(t *testing.T) {
	r := &Resource{
		ID:                 uuid.New(),
		Kind:               KindThirdPartySensor,
		Unit:               unit.ButtonState,
		SupportedMethods:   []CollectionMethod{Push},
		PreferredMethod:    Push,
		DetailedResolution: nil, // event-driven, no fixed interval
		LongTermResolution: unit.Day,
	}
	require.NoError(t, r.Validate())
}

func TestOfflineFixedInterval(t *testing.T) {
	now := time.Date(2026, 2, 11, 12, 0, 0, 0, time.UTC)
	delay := 10 * time.Second

	r := validMeter()
	require.True(t, r.Offline(now, delay), "never written means offline")

	fresh := now.Add(-15 * time.Second)
	r.LastDetailedWrite = &fresh
	require.False(t, r.Offline(now, delay))

	stale := now.Add(-45 * time.Second)
	r.LastDetailedWrite = &stale
	require.True(t, r.Offline(now, delay))
}

func TestBatchDelivered(t *testing.T) {
	r := validMeter()
	require.False(t, r.BatchDelivered())

	r.DetailedResolution = resPtr(unit.HalfHour)
	require.True(t, r.BatchDelivered())

	r.DetailedResolution = nil
	require.False(t, r.BatchDelivered())
}

func TestOfflineEventDrivenNeverOffline(t *testing.T) {
	r := &Resource{
		Kind:               KindThirdPartySensor,
		SupportedMethods:   []CollectionMethod{Push},
		PreferredMethod:    Push,
		LongTermResolution: unit.Day,
	}
	require.False(t, r.Offline(time.Now().UTC(), time.Minute))
}
