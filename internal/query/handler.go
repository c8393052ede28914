package query

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	httperr "github.com/gridpulse-lab/gridpulse/internal/core/errors"
	"github.com/gridpulse-lab/gridpulse/internal/core/rules"
	"github.com/gridpulse-lab/gridpulse/internal/core/storage"
	"github.com/gridpulse-lab/gridpulse/internal/core/unit"
	"github.com/gridpulse-lab/gridpulse/internal/engine"
)

// queryParams is the parsed common parameter set of the read endpoints.
type queryParams struct {
	resourceID uuid.UUID
	locationID uuid.UUID
	unit       unit.Unit
	option     rules.Option
	from       time.Time
	to         time.Time
	resolution unit.Resolution
}

// parseParams binds and validates the shared query string parameters.
// needsWindow additionally requires from/to/resolution.
func parseParams(c *gin.Context, needsWindow bool) (queryParams, error) {
	var p queryParams

	if raw := c.Query("resource_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return p, fmt.Errorf("invalid resource_id: %w", err)
		}
		p.resourceID = id
	}
	if raw := c.Query("location_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return p, fmt.Errorf("invalid location_id: %w", err)
		}
		p.locationID = id
	}
	if p.resourceID == uuid.Nil && p.locationID == uuid.Nil {
		return p, fmt.Errorf("resource_id or location_id is required")
	}

	u, err := unit.Parse(c.Query("unit"))
	if err != nil {
		return p, err
	}
	p.unit = u
	p.option = rules.Option(c.Query("option"))

	if !needsWindow {
		return p, nil
	}

	p.from, err = time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		return p, fmt.Errorf("invalid from: %w", err)
	}
	p.to, err = time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		return p, fmt.Errorf("invalid to: %w", err)
	}
	if !p.to.After(p.from) {
		return p, fmt.Errorf("to must be after from")
	}

	if raw := c.Query("resolution"); raw != "" {
		p.resolution, err = unit.ParseResolution(raw)
		if err != nil {
			return p, err
		}
	}
	return p, nil
}

// LiveHandler serves the most recent converted value of a resource set.
func (s *Service) LiveHandler(c *gin.Context) {
	p, err := parseParams(c, false)
	if err != nil {
		writeBadRequest(c, err)
		return
	}

	resources, err := s.selectResources(c.Request.Context(), p.resourceID, p.locationID, p.unit, p.option)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	value, err := s.engine.LiveValue(c.Request.Context(), resources, p.unit)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unit": p.unit, "value": value})
}

// StateHandler serves the decoded discrete state of a resource set.
func (s *Service) StateHandler(c *gin.Context) {
	p, err := parseParams(c, false)
	if err != nil {
		writeBadRequest(c, err)
		return
	}

	resources, err := s.selectResources(c.Request.Context(), p.resourceID, p.locationID, p.unit, p.option)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	readings, err := s.engine.State(c.Request.Context(), resources, p.unit)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unit": p.unit, "readings": readings})
}

// SeriesHandler serves a bucketed time series.
func (s *Service) SeriesHandler(c *gin.Context) {
	p, err := parseParams(c, true)
	if err != nil {
		writeBadRequest(c, err)
		return
	}
	if p.resolution == "" {
		writeBadRequest(c, fmt.Errorf("resolution is required"))
		return
	}

	points, err := s.series(c, p)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"unit":       p.unit,
		"resolution": p.resolution,
		"points":     points,
	})
}

// AggregateHandler serves a single scalar over the whole window.
func (s *Service) AggregateHandler(c *gin.Context) {
	p, err := parseParams(c, true)
	if err != nil {
		writeBadRequest(c, err)
		return
	}

	resources, err := s.selectResources(c.Request.Context(), p.resourceID, p.locationID, p.unit, p.option)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	value, err := s.engine.AggregateToOne(c.Request.Context(), engine.Request{
		Resources: resources,
		Unit:      p.unit,
		Option:    p.option,
		From:      p.from,
		To:        p.to,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unit": p.unit, "value": value})
}

// ExportHandler streams a bucketed series as CSV. The window is capped at
// one year regardless of resolution.
func (s *Service) ExportHandler(c *gin.Context) {
	p, err := parseParams(c, true)
	if err != nil {
		writeBadRequest(c, err)
		return
	}
	if p.resolution == "" {
		writeBadRequest(c, fmt.Errorf("resolution is required"))
		return
	}
	if p.to.Sub(p.from) > maxExportWindow {
		writeDomainError(c, httperr.ErrTimeRangeTooLarge)
		return
	}

	points, err := s.series(c, p)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	filename := fmt.Sprintf("gridpulse_%s_%s.csv", p.unit, p.from.Format("2006-01-02"))
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"start", "end", "value", "no_data"})
	for _, pt := range points {
		value := pt.Value.String()
		if pt.NoData {
			value = ""
		}
		_ = w.Write([]string{
			pt.Start.Format(time.RFC3339),
			pt.End.Format(time.RFC3339),
			value,
			fmt.Sprintf("%t", pt.NoData),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		slog.Error("[Query] CSV export write failed", "error", err)
	}
}

func (s *Service) series(c *gin.Context, p queryParams) ([]engine.Point, error) {
	resources, err := s.selectResources(c.Request.Context(), p.resourceID, p.locationID, p.unit, p.option)
	if err != nil {
		return nil, err
	}
	return s.engine.Series(c.Request.Context(), engine.Request{
		Resources:  resources,
		Unit:       p.unit,
		Option:     p.option,
		From:       p.from,
		To:         p.to,
		Resolution: p.resolution,
	})
}

func writeBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
		ErrorType: httperr.HttpInvalidRequestError,
		Message:   err.Error(),
	})
}

// writeDomainError maps the domain error taxonomy onto HTTP statuses.
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, httperr.ErrDataNotAvailable):
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpNoDataError,
			Message:   "No data available for the requested window",
		})
	case errors.Is(err, httperr.ErrUnsupportedConversion):
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpUnsupportedConversion,
			Message:   err.Error(),
		})
	case errors.Is(err, httperr.ErrUnsupportedTimeResolution):
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidRequestError,
			Message:   err.Error(),
		})
	case errors.Is(err, httperr.ErrTimeRangeTooLarge):
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpRangeTooLargeError,
			Message:   err.Error(),
		})
	case errors.Is(err, storage.ErrResourceNotFound):
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidRequestError,
			Message:   "Unknown resource",
		})
	default:
		var perr *httperr.ProviderError
		if errors.As(err, &perr) {
			c.JSON(http.StatusBadGateway, httperr.ErrorResponse{
				ErrorType: httperr.HttpProviderError,
				Message:   "Upstream provider failed",
			})
			return
		}
		slog.Error("[Query] Unhandled query error", "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Internal error",
		})
	}
}
