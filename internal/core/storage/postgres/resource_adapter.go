package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/gridpulse-lab/gridpulse/internal/core/resource"
	"github.com/gridpulse-lab/gridpulse/internal/core/storage"
)

// ResourceAdapter implements storage.ResourceStore for PostgreSQL. It
// shares the connection pool owned by SampleAdapter.
type ResourceAdapter struct {
	db *sql.DB
}

func NewResourceAdapter(db *sql.DB) *ResourceAdapter {
	return &ResourceAdapter{db: db}
}

// Get fetches one resource by ID, deleted or not.
func (a *ResourceAdapter) Get(ctx context.Context, id uuid.UUID) (*resource.Resource, error) {
	r, err := scanResourceRow(a.db.QueryRowContext(ctx, queryGetResource, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrResourceNotFound
		}
		return nil, err
	}
	return r, nil
}

// List fetches all live resources.
func (a *ResourceAdapter) List(ctx context.Context) ([]*resource.Resource, error) {
	return a.queryResources(ctx, queryListResources)
}

// ListByLocation fetches all live resources at one location.
func (a *ResourceAdapter) ListByLocation(ctx context.Context, locationID uuid.UUID) ([]*resource.Resource, error) {
	return a.queryResources(ctx, queryListResourcesByLocation, locationID)
}

func (a *ResourceAdapter) queryResources(ctx context.Context, query string, args ...interface{}) ([]*resource.Resource, error) {
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}
	defer rows.Close()

	var resources []*resource.Resource
	for rows.Next() {
		r, err := scanResourceRow(rows)
		if err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resources: %w", err)
	}
	return resources, nil
}

// UpdateWatermarks persists the collection bookkeeping timestamps.
func (a *ResourceAdapter) UpdateWatermarks(ctx context.Context, r *resource.Resource) error {
	res, err := a.db.ExecContext(ctx, queryUpdateWatermarks,
		r.ID,
		toNullTime(r.LastDetailedWrite),
		toNullTime(r.LastLongTermWrite),
		toNullTime(r.MigratedThrough),
	)
	if err != nil {
		return fmt.Errorf("failed to update watermarks: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read watermark update result: %w", err)
	}
	if affected == 0 {
		return storage.ErrResourceNotFound
	}

	slog.Debug("[Postgres] Updated watermarks", "resource_id", r.ID)
	return nil
}
