package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gridpulse-lab/gridpulse/internal/cashback"
)

// ScoreAdapter implements cashback.ScoreStore for PostgreSQL. It shares
// the connection pool owned by SampleAdapter.
type ScoreAdapter struct {
	db *sql.DB
}

func NewScoreAdapter(db *sql.DB) *ScoreAdapter {
	return &ScoreAdapter{db: db}
}

// Insert writes a daily score once. Returns cashback.ErrScoreExists when
// a score for (location, day) is already stored, keeping first-write-wins
// semantics under concurrent computation.
func (a *ScoreAdapter) Insert(ctx context.Context, s cashback.Score) error {
	res, err := a.db.ExecContext(ctx, queryInsertScore,
		s.LocationID, s.Day, s.Value, s.ComputedAt)
	if err != nil {
		return fmt.Errorf("failed to insert score: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read insert result: %w", err)
	}
	if affected == 0 {
		return cashback.ErrScoreExists
	}

	slog.Debug("[Postgres] Saved score", "location_id", s.LocationID, "day", s.Day)
	return nil
}

// Upsert overwrites the stored score for (location, day).
func (a *ScoreAdapter) Upsert(ctx context.Context, s cashback.Score) error {
	if _, err := a.db.ExecContext(ctx, queryUpsertScore,
		s.LocationID, s.Day, s.Value, s.ComputedAt); err != nil {
		return fmt.Errorf("failed to upsert score: %w", err)
	}
	return nil
}

// Get fetches the stored score for a location and day, if any.
func (a *ScoreAdapter) Get(ctx context.Context, locationID uuid.UUID, day time.Time) (cashback.Score, bool, error) {
	var s cashback.Score
	err := a.db.QueryRowContext(ctx, queryGetScore, locationID, day).
		Scan(&s.LocationID, &s.Day, &s.Value, &s.ComputedAt)
	if err == sql.ErrNoRows {
		return cashback.Score{}, false, nil
	}
	if err != nil {
		return cashback.Score{}, false, fmt.Errorf("failed to scan score row: %w", err)
	}
	s.Day = s.Day.UTC()
	s.ComputedAt = s.ComputedAt.UTC()
	return s, true, nil
}
