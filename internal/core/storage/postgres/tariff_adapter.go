package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gridpulse-lab/gridpulse/internal/core/resource"
	"github.com/gridpulse-lab/gridpulse/internal/tariff"
)

// TariffAdapter implements tariff.Store for PostgreSQL. It shares the
// connection pool owned by SampleAdapter.
type TariffAdapter struct {
	db *sql.DB
}

func NewTariffAdapter(db *sql.DB) *TariffAdapter {
	return &TariffAdapter{db: db}
}

// ApplicableTariffs returns tariffs of the given kind whose validity range
// intersects [from, to) for the resource kind. Instant-level matching is
// the engine's job.
func (a *TariffAdapter) ApplicableTariffs(ctx context.Context, rk resource.Kind, kind tariff.Kind, from, to time.Time) ([]tariff.Tariff, error) {
	rows, err := a.db.QueryContext(ctx, queryApplicableTariffs, kind, rk, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query tariffs: %w", err)
	}
	defer rows.Close()

	var tariffs []tariff.Tariff
	for rows.Next() {
		t, err := scanTariffRow(rows)
		if err != nil {
			return nil, err
		}
		tariffs = append(tariffs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tariffs: %w", err)
	}
	return tariffs, nil
}

func scanTariffRow(row scanner) (tariff.Tariff, error) {
	var (
		t       tariff.Tariff
		validTo sql.NullTime
	)
	err := row.Scan(
		&t.ID,
		&t.Kind,
		&t.ResourceKind,
		&t.ValidFrom,
		&validTo,
		&t.Weekdays,
		&t.StartMinute,
		&t.EndMinute,
		&t.UnitRate,
		&t.DailyCharge,
		&t.MonthlyCharge,
	)
	if err != nil {
		return tariff.Tariff{}, fmt.Errorf("failed to scan tariff row: %w", err)
	}
	t.ValidFrom = t.ValidFrom.UTC()
	if validTo.Valid {
		t.ValidTo = validTo.Time.UTC()
	}
	return t, nil
}
