package query

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	coreerrors "github.com/gridpulse-lab/gridpulse/internal/core/errors"
	"github.com/gridpulse-lab/gridpulse/internal/core/resource"
	"github.com/gridpulse-lab/gridpulse/internal/core/rules"
	"github.com/gridpulse-lab/gridpulse/internal/core/storage"
	"github.com/gridpulse-lab/gridpulse/internal/core/unit"
	"github.com/gridpulse-lab/gridpulse/internal/engine"
)

// maxExportWindow bounds CSV exports to one year of data.
const maxExportWindow = 366 * 24 * time.Hour

// Aggregator is the read side of the aggregation engine the API consumes.
type Aggregator interface {
	LiveValue(ctx context.Context, resources []*resource.Resource, target unit.Unit) (decimal.Decimal, error)
	State(ctx context.Context, resources []*resource.Resource, target unit.Unit) ([]engine.StateReading, error)
	Series(ctx context.Context, req engine.Request) ([]engine.Point, error)
	AggregateToOne(ctx context.Context, req engine.Request) (decimal.Decimal, error)
}

type Service struct {
	engine    Aggregator
	resources storage.ResourceStore
	registry  *rules.Registry
}

func NewService(eng Aggregator, resources storage.ResourceStore, registry *rules.Registry) *Service {
	if eng == nil {
		panic("query: engine must not be nil")
	}
	if resources == nil {
		panic("query: resource store must not be nil")
	}
	if registry == nil {
		panic("query: rule registry must not be nil")
	}
	return &Service{engine: eng, resources: resources, registry: registry}
}

// RegisterRoutes registers the read-side routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/live", s.LiveHandler)
	r.GET("/v1/state", s.StateHandler)
	r.GET("/v1/series", s.SeriesHandler)
	r.GET("/v1/aggregate", s.AggregateHandler)
	r.GET("/v1/export", s.ExportHandler)
}

// selectResources resolves the resource set a query targets. An explicit
// resource_id wins; otherwise all live resources at the location whose
// unit converts to the target are included. A location with resources but
// none convertible is a configuration error, not an empty result.
func (s *Service) selectResources(ctx context.Context, resourceID, locationID uuid.UUID, target unit.Unit, option rules.Option) ([]*resource.Resource, error) {
	if resourceID != uuid.Nil {
		r, err := s.resources.Get(ctx, resourceID)
		if err != nil {
			return nil, err
		}
		return []*resource.Resource{r}, nil
	}

	all, err := s.resources.ListByLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}

	var out []*resource.Resource
	for _, r := range all {
		if r.Deleted {
			continue
		}
		if _, err := s.registry.Lookup(r.Unit, target, option); err != nil {
			continue
		}
		out = append(out, r)
	}
	if len(out) == 0 && len(all) > 0 {
		return nil, fmt.Errorf("location %s: %w", locationID, coreerrors.ErrUnsupportedConversion)
	}
	return out, nil
}
