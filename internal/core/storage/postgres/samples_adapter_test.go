package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gridpulse-lab/gridpulse/internal/core/storage"
	"github.com/gridpulse-lab/gridpulse/internal/core/unit"
)

func newMockSampleAdapter(t *testing.T) (*SampleAdapter, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	for _, q := range []string{
		queryInsertDetailed, queryInsertLongTerm,
		queryRangeDetailed, queryRangeLongTerm,
		queryLatestDetailed, queryLatestLongTerm,
		queryDeleteDetailedBefore,
	} {
		mock.ExpectPrepare(regexp.QuoteMeta(q))
	}

	adapter, err := newSampleAdapter(db)
	require.NoError(t, err)
	return adapter, mock, db
}

func sampleRowColumns() []string {
	return []string{"resource_id", "taken_at", "value"}
}

func TestSampleAdapter_Insert(t *testing.T) {
	resourceID := uuid.New()
	takenAt := time.Date(2026, 2, 11, 10, 0, 0, 0, time.UTC)
	sample := unit.NewSample(resourceID, takenAt, decimal.NewFromInt(150))

	tests := []struct {
		name     string
		tier     storage.Tier
		query    string
		affected int64
		wantErr  error
	}{
		{"detailed success", storage.TierDetailed, queryInsertDetailed, 1, nil},
		{"long-term success", storage.TierLongTerm, queryInsertLongTerm, 1, nil},
		{"duplicate maps to ErrDuplicate", storage.TierDetailed, queryInsertDetailed, 0, storage.ErrDuplicate},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			adapter, mock, db := newMockSampleAdapter(t)
			defer db.Close()

			mock.ExpectExec(regexp.QuoteMeta(tc.query)).
				WithArgs(resourceID, sample.Time, sample.Value).
				WillReturnResult(sqlmock.NewResult(0, tc.affected))

			err := adapter.Insert(context.Background(), tc.tier, sample)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSampleAdapter_InsertUnknownTier(t *testing.T) {
	adapter, _, db := newMockSampleAdapter(t)
	defer db.Close()

	err := adapter.Insert(context.Background(), storage.Tier("bogus"),
		unit.NewSample(uuid.New(), time.Now().UTC(), decimal.Zero))
	require.ErrorContains(t, err, "unknown storage tier")
}

func TestSampleAdapter_Range(t *testing.T) {
	adapter, mock, db := newMockSampleAdapter(t)
	defer db.Close()

	resourceID := uuid.New()
	from := time.Date(2026, 2, 11, 10, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(queryRangeDetailed)).
		WithArgs(resourceID, from, to).
		WillReturnRows(sqlmock.NewRows(sampleRowColumns()).
			AddRow(resourceID.String(), from, "120").
			AddRow(resourceID.String(), from.Add(10*time.Second), "135.5"),
		).RowsWillBeClosed()

	samples, err := adapter.Range(context.Background(), storage.TierDetailed, resourceID, from, to)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	require.True(t, samples[0].Value.Equal(decimal.NewFromInt(120)))
	require.True(t, samples[1].Value.Equal(decimal.RequireFromString("135.5")))
	require.True(t, samples[1].Time.After(samples[0].Time))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSampleAdapter_Latest(t *testing.T) {
	resourceID := uuid.New()
	cutoff := time.Date(2026, 2, 11, 10, 55, 0, 0, time.UTC)
	at := cutoff.Add(3 * time.Minute)

	tests := []struct {
		name  string
		tier  storage.Tier
		query string
	}{
		{"detailed", storage.TierDetailed, queryLatestDetailed},
		{"long-term", storage.TierLongTerm, queryLatestLongTerm},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			adapter, mock, db := newMockSampleAdapter(t)
			defer db.Close()

			mock.ExpectQuery(regexp.QuoteMeta(tc.query)).
				WithArgs(resourceID, cutoff).
				WillReturnRows(sqlmock.NewRows(sampleRowColumns()).
					AddRow(resourceID.String(), at, "250"))

			s, found, err := adapter.Latest(context.Background(), tc.tier, resourceID, cutoff)
			require.NoError(t, err)
			require.True(t, found)
			require.True(t, s.Value.Equal(decimal.NewFromInt(250)))
			require.True(t, s.Time.Equal(at))
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSampleAdapter_LatestNoRows(t *testing.T) {
	adapter, mock, db := newMockSampleAdapter(t)
	defer db.Close()

	resourceID := uuid.New()
	cutoff := time.Date(2026, 2, 11, 10, 55, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(queryLatestDetailed)).
		WithArgs(resourceID, cutoff).
		WillReturnRows(sqlmock.NewRows(sampleRowColumns()))

	_, found, err := adapter.Latest(context.Background(), storage.TierDetailed, resourceID, cutoff)
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSampleAdapter_DeleteDetailedBefore(t *testing.T) {
	adapter, mock, db := newMockSampleAdapter(t)
	defer db.Close()

	resourceID := uuid.New()
	cutoff := time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(queryDeleteDetailedBefore)).
		WithArgs(resourceID, cutoff).
		WillReturnResult(sqlmock.NewResult(0, 360))

	deleted, err := adapter.DeleteDetailedBefore(context.Background(), resourceID, cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(360), deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}
