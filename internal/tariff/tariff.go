package tariff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gridpulse-lab/gridpulse/internal/core/resource"
)

// Kind distinguishes billing tariffs from the two cash-back schedules.
type Kind string

const (
	KindBilling      Kind = "billing"
	KindCashBackTOU  Kind = "cash_back_tou"
	KindCashBackFlat Kind = "cash_back_flat"
)

var (
	// ErrNoTariff means no tariff applies at the queried instant.
	ErrNoTariff = errors.New("no applicable tariff")
	// ErrAmbiguousTariff means more than one tariff applies. Both are data
	// errors surfaced per bucket, never as a whole-query failure.
	ErrAmbiguousTariff = errors.New("ambiguous tariff match")
)

// Tariff is one time-of-use rate. Time-of-day windows are minutes since
// midnight UTC; End <= Start wraps past midnight ("until next day start").
type Tariff struct {
	ID   uuid.UUID
	Kind Kind

	// ResourceKind filters applicability; empty matches any kind.
	ResourceKind resource.Kind

	// ValidFrom/ValidTo bound the applicability date range. A zero ValidTo
	// means open-ended.
	ValidFrom time.Time
	ValidTo   time.Time

	// Weekdays is a bitmask of applicable days (bit = time.Weekday).
	// Zero means every day.
	Weekdays uint8

	// StartMinute/EndMinute bound the time-of-day window.
	// Equal values mean the whole day.
	StartMinute int
	EndMinute   int

	// UnitRate is currency per kilowatt-hour.
	UnitRate decimal.Decimal

	DailyCharge   decimal.Decimal
	MonthlyCharge decimal.Decimal
}

// Store is the read-side contract the aggregation engine joins against.
type Store interface {
	// ApplicableTariffs returns all tariffs of the given kind whose date
	// range intersects [from, to) for the resource kind.
	ApplicableTariffs(ctx context.Context, rk resource.Kind, kind Kind, from, to time.Time) ([]Tariff, error)
}

// WeekdayBit returns the mask bit for a weekday.
func WeekdayBit(d time.Weekday) uint8 { return 1 << uint(d) }

// AppliesAt reports whether the tariff covers resource kind rk at instant at.
func (t *Tariff) AppliesAt(rk resource.Kind, at time.Time) bool {
	if t.ResourceKind != "" && t.ResourceKind != rk {
		return false
	}
	at = at.UTC()
	if at.Before(t.ValidFrom) {
		return false
	}
	if !t.ValidTo.IsZero() && !at.Before(t.ValidTo) {
		return false
	}
	if t.Weekdays != 0 && t.Weekdays&WeekdayBit(at.Weekday()) == 0 {
		return false
	}
	minute := at.Hour()*60 + at.Minute()
	return t.coversMinute(minute)
}

func (t *Tariff) coversMinute(minute int) bool {
	if t.StartMinute == t.EndMinute {
		return true // whole day
	}
	if t.StartMinute < t.EndMinute {
		return minute >= t.StartMinute && minute < t.EndMinute
	}
	// Wraps past midnight.
	return minute >= t.StartMinute || minute < t.EndMinute
}

// Resolve picks exactly one tariff applicable at the instant. Zero matches
// and multiple matches are distinct data errors.
func Resolve(tariffs []Tariff, rk resource.Kind, at time.Time) (*Tariff, error) {
	var found *Tariff
	for i := range tariffs {
		if !tariffs[i].AppliesAt(rk, at) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: %s and %s at %s", ErrAmbiguousTariff, found.ID, tariffs[i].ID, at)
		}
		found = &tariffs[i]
	}
	if found == nil {
		return nil, fmt.Errorf("%w at %s", ErrNoTariff, at)
	}
	return found, nil
}

// minuteIntervals expands the time-of-day window into non-wrapping
// half-open minute intervals.
func (t *Tariff) minuteIntervals() [][2]int {
	if t.StartMinute == t.EndMinute {
		return [][2]int{{0, 24 * 60}}
	}
	if t.StartMinute < t.EndMinute {
		return [][2]int{{t.StartMinute, t.EndMinute}}
	}
	return [][2]int{{t.StartMinute, 24 * 60}, {0, t.EndMinute}}
}

func intervalsOverlap(a, b [][2]int) bool {
	for _, x := range a {
		for _, y := range b {
			if x[0] < y[1] && y[0] < x[1] {
				return true
			}
		}
	}
	return false
}

func dateRangesOverlap(a, b *Tariff) bool {
	aOpen := a.ValidTo.IsZero()
	bOpen := b.ValidTo.IsZero()
	if !aOpen && !a.ValidTo.After(b.ValidFrom) {
		return false
	}
	if !bOpen && !b.ValidTo.After(a.ValidFrom) {
		return false
	}
	return true
}

func weekdaysOverlap(a, b uint8) bool {
	if a == 0 || b == 0 {
		return true
	}
	return a&b != 0
}

// ValidateNoOverlap rejects a tariff set where two tariffs of the same kind
// could both apply to the same resource at the same instant. Run at
// configuration time; Resolve still guards at query time.
func ValidateNoOverlap(tariffs []Tariff) error {
	for i := 0; i < len(tariffs); i++ {
		for j := i + 1; j < len(tariffs); j++ {
			a, b := &tariffs[i], &tariffs[j]
			if a.Kind != b.Kind {
				continue
			}
			if a.ResourceKind != "" && b.ResourceKind != "" && a.ResourceKind != b.ResourceKind {
				continue
			}
			if !dateRangesOverlap(a, b) {
				continue
			}
			if !weekdaysOverlap(a.Weekdays, b.Weekdays) {
				continue
			}
			if !intervalsOverlap(a.minuteIntervals(), b.minuteIntervals()) {
				continue
			}
			return fmt.Errorf("tariffs %s and %s overlap (kind %s)", a.ID, b.ID, a.Kind)
		}
	}
	return nil
}
