package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gridpulse-lab/gridpulse/internal/cashback"
)

func scoreRowColumns() []string {
	return []string{"location_id", "day", "value", "computed_at"}
}

func testScore() cashback.Score {
	return cashback.Score{
		LocationID: uuid.New(),
		Day:        time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC),
		Value:      decimal.RequireFromString("1.85"),
		ComputedAt: time.Date(2026, 2, 12, 1, 0, 0, 0, time.UTC),
	}
}

func TestScoreAdapter_Insert(t *testing.T) {
	mock, db := newMockDB(t)
	defer db.Close()
	adapter := NewScoreAdapter(db)

	s := testScore()
	mock.ExpectExec(regexp.QuoteMeta(queryInsertScore)).
		WithArgs(s.LocationID, s.Day, s.Value, s.ComputedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, adapter.Insert(context.Background(), s))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreAdapter_InsertConflictMapsToErrScoreExists(t *testing.T) {
	mock, db := newMockDB(t)
	defer db.Close()
	adapter := NewScoreAdapter(db)

	s := testScore()
	mock.ExpectExec(regexp.QuoteMeta(queryInsertScore)).
		WithArgs(s.LocationID, s.Day, s.Value, s.ComputedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.ErrorIs(t, adapter.Insert(context.Background(), s), cashback.ErrScoreExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreAdapter_Upsert(t *testing.T) {
	mock, db := newMockDB(t)
	defer db.Close()
	adapter := NewScoreAdapter(db)

	s := testScore()
	mock.ExpectExec(regexp.QuoteMeta(queryUpsertScore)).
		WithArgs(s.LocationID, s.Day, s.Value, s.ComputedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, adapter.Upsert(context.Background(), s))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreAdapter_Get(t *testing.T) {
	mock, db := newMockDB(t)
	defer db.Close()
	adapter := NewScoreAdapter(db)

	s := testScore()
	mock.ExpectQuery(regexp.QuoteMeta(queryGetScore)).
		WithArgs(s.LocationID, s.Day).
		WillReturnRows(sqlmock.NewRows(scoreRowColumns()).
			AddRow(s.LocationID.String(), s.Day, "1.85", s.ComputedAt))

	got, found, err := adapter.Get(context.Background(), s.LocationID, s.Day)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, got.Value.Equal(s.Value))
	require.True(t, got.Day.Equal(s.Day))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreAdapter_GetNotFound(t *testing.T) {
	mock, db := newMockDB(t)
	defer db.Close()
	adapter := NewScoreAdapter(db)

	locationID := uuid.New()
	day := time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(queryGetScore)).
		WithArgs(locationID, day).
		WillReturnRows(sqlmock.NewRows(scoreRowColumns()))

	_, found, err := adapter.Get(context.Background(), locationID, day)
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}
