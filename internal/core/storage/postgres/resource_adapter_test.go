package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gridpulse-lab/gridpulse/internal/core/resource"
	"github.com/gridpulse-lab/gridpulse/internal/core/storage"
	"github.com/gridpulse-lab/gridpulse/internal/core/unit"
)

func newMockDB(t *testing.T) (sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return mock, db
}

func resourceRowColumns() []string {
	return []string{
		"id", "location_id", "kind", "unit", "supported_methods", "preferred_method",
		"detailed_resolution", "long_term_resolution", "detailed_live_seconds",
		"last_detailed_write", "last_long_term_write", "migrated_through", "deleted",
	}
}

func TestResourceAdapter_Get(t *testing.T) {
	mock, db := newMockDB(t)
	defer db.Close()
	adapter := NewResourceAdapter(db)

	id := uuid.New()
	locationID := uuid.New()
	lastWrite := time.Date(2026, 2, 11, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(queryGetResource)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(resourceRowColumns()).
			AddRow(
				id.String(),
				locationID.String(),
				"energy_meter",
				"watt",
				[]byte("{pull}"),
				"pull",
				"ten_seconds",
				"half_hour",
				int64(4*24*3600),
				lastWrite,
				nil,
				nil,
				false,
			))

	r, err := adapter.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, id, r.ID)
	require.Equal(t, resource.KindEnergyMeter, r.Kind)
	require.Equal(t, unit.Watt, r.Unit)
	require.Equal(t, []resource.CollectionMethod{resource.Pull}, r.SupportedMethods)
	require.NotNil(t, r.DetailedResolution)
	require.Equal(t, unit.TenSeconds, *r.DetailedResolution)
	require.Equal(t, unit.HalfHour, r.LongTermResolution)
	require.NotNil(t, r.DetailedLiveTime)
	require.Equal(t, 4*24*time.Hour, *r.DetailedLiveTime)
	require.NotNil(t, r.LastDetailedWrite)
	require.True(t, r.LastDetailedWrite.Equal(lastWrite))
	require.Nil(t, r.LastLongTermWrite)
	require.Nil(t, r.MigratedThrough)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceAdapter_GetNotFound(t *testing.T) {
	mock, db := newMockDB(t)
	defer db.Close()
	adapter := NewResourceAdapter(db)

	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(queryGetResource)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(resourceRowColumns()))

	_, err := adapter.Get(context.Background(), id)
	require.ErrorIs(t, err, storage.ErrResourceNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceAdapter_ListByLocation(t *testing.T) {
	mock, db := newMockDB(t)
	defer db.Close()
	adapter := NewResourceAdapter(db)

	locationID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(queryListResourcesByLocation)).
		WithArgs(locationID).
		WillReturnRows(sqlmock.NewRows(resourceRowColumns()).
			AddRow(
				uuid.New().String(), locationID.String(), "third_party_sensor", "celsius",
				[]byte("{pull,push}"), "push",
				"minute", "half_hour", nil, nil, nil, nil, false,
			).
			AddRow(
				uuid.New().String(), locationID.String(), "user_data_set", "button_state",
				[]byte("{push}"), "push",
				nil, "day", nil, nil, nil, nil, false,
			),
		).RowsWillBeClosed()

	resources, err := adapter.ListByLocation(context.Background(), locationID)
	require.NoError(t, err)
	require.Len(t, resources, 2)
	require.Equal(t, resource.KindThirdPartySensor, resources[0].Kind)
	require.Nil(t, resources[1].DetailedResolution, "event-driven resources carry no detailed resolution")
	require.Nil(t, resources[1].DetailedLiveTime)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceAdapter_UpdateWatermarks(t *testing.T) {
	mock, db := newMockDB(t)
	defer db.Close()
	adapter := NewResourceAdapter(db)

	now := time.Date(2026, 2, 11, 10, 30, 0, 0, time.UTC)
	r := &resource.Resource{ID: uuid.New(), LastDetailedWrite: &now}

	mock.ExpectExec(regexp.QuoteMeta(queryUpdateWatermarks)).
		WithArgs(r.ID, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, adapter.UpdateWatermarks(context.Background(), r))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResourceAdapter_UpdateWatermarksUnknownResource(t *testing.T) {
	mock, db := newMockDB(t)
	defer db.Close()
	adapter := NewResourceAdapter(db)

	r := &resource.Resource{ID: uuid.New()}

	mock.ExpectExec(regexp.QuoteMeta(queryUpdateWatermarks)).
		WithArgs(r.ID, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.ErrorIs(t, adapter.UpdateWatermarks(context.Background(), r), storage.ErrResourceNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
