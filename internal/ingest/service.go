package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	v1 "github.com/gridpulse-lab/gridpulse/internal/api/v1"
	"github.com/gridpulse-lab/gridpulse/internal/core/resource"
	"github.com/gridpulse-lab/gridpulse/internal/core/storage"
	"github.com/gridpulse-lab/gridpulse/internal/core/unit"
)

// ErrNotPushResource rejects a pushed value for a resource that does not
// support the push collection method.
var ErrNotPushResource = errors.New("resource does not accept pushed values")

type Service struct {
	samples          storage.SampleStore
	resources        storage.ResourceStore
	maxBodySizeBytes int
	now              func() time.Time
}

func NewService(samples storage.SampleStore, resources storage.ResourceStore, maxBodySizeMB int) *Service {
	if samples == nil {
		panic("ingest: sample store must not be nil")
	}
	if resources == nil {
		panic("ingest: resource store must not be nil")
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1
	}
	return &Service{
		samples:          samples,
		resources:        resources,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes registers the inbound value routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/values", s.IngestHandler)
}

// Apply validates and persists one pushed value. Event-driven resources
// with no fixed detailed resolution write straight into the long-term
// tier; everything else lands in the detailed tier. storage.ErrDuplicate
// passes through for the caller to classify.
func (s *Service) Apply(ctx context.Context, rv *v1.ResourceValue) error {
	r, err := s.resources.Get(ctx, rv.ResourceID)
	if err != nil {
		return err
	}
	if !r.Supports(resource.Push) {
		return fmt.Errorf("resource %s: %w", r.ID, ErrNotPushResource)
	}

	tier := storage.TierDetailed
	if r.DetailedResolution == nil {
		tier = storage.TierLongTerm
	}

	sample := unit.NewSample(rv.ResourceID, rv.TakenAt, rv.Value)
	if err := s.samples.Insert(ctx, tier, sample); err != nil {
		return err
	}

	switch tier {
	case storage.TierDetailed:
		if r.LastDetailedWrite == nil || sample.Time.After(*r.LastDetailedWrite) {
			r.LastDetailedWrite = &sample.Time
		}
	case storage.TierLongTerm:
		if r.LastLongTermWrite == nil || sample.Time.After(*r.LastLongTermWrite) {
			r.LastLongTermWrite = &sample.Time
		}
	}
	return s.resources.UpdateWatermarks(ctx, r)
}
