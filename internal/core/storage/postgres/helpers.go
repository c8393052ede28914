package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/gridpulse-lab/gridpulse/internal/core/resource"
	"github.com/gridpulse-lab/gridpulse/internal/core/unit"
)

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanSampleRow scans one sample row. Compatible with both sql.Row and
// sql.Rows.
func scanSampleRow(row scanner) (unit.Sample, error) {
	var s unit.Sample
	if err := row.Scan(&s.ResourceID, &s.Time, &s.Value); err != nil {
		if err == sql.ErrNoRows {
			return unit.Sample{}, err
		}
		return unit.Sample{}, fmt.Errorf("failed to scan sample row: %w", err)
	}
	s.Time = s.Time.UTC()
	return s, nil
}

// scanResourceRow scans one resource configuration row, mapping the
// nullable columns onto the pointer fields.
func scanResourceRow(row scanner) (*resource.Resource, error) {
	var (
		r                  resource.Resource
		methods            pq.StringArray
		detailedResolution sql.NullString
		liveSeconds        sql.NullInt64
		lastDetailed       sql.NullTime
		lastLongTerm       sql.NullTime
		migratedThrough    sql.NullTime
	)

	err := row.Scan(
		&r.ID,
		&r.LocationID,
		&r.Kind,
		&r.Unit,
		&methods,
		&r.PreferredMethod,
		&detailedResolution,
		&r.LongTermResolution,
		&liveSeconds,
		&lastDetailed,
		&lastLongTerm,
		&migratedThrough,
		&r.Deleted,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan resource row: %w", err)
	}

	r.SupportedMethods = make([]resource.CollectionMethod, 0, len(methods))
	for _, m := range methods {
		r.SupportedMethods = append(r.SupportedMethods, resource.CollectionMethod(m))
	}
	if detailedResolution.Valid {
		res := unit.Resolution(detailedResolution.String)
		r.DetailedResolution = &res
	}
	if liveSeconds.Valid {
		d := time.Duration(liveSeconds.Int64) * time.Second
		r.DetailedLiveTime = &d
	}
	r.LastDetailedWrite = nullableTime(lastDetailed)
	r.LastLongTermWrite = nullableTime(lastLongTerm)
	r.MigratedThrough = nullableTime(migratedThrough)
	return &r, nil
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
