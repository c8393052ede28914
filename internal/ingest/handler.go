package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	v1 "github.com/gridpulse-lab/gridpulse/internal/api/v1"
	httperr "github.com/gridpulse-lab/gridpulse/internal/core/errors"
	"github.com/gridpulse-lab/gridpulse/internal/core/storage"
)

const (
	msgReadBodyFailed  = "Failed to read request body"
	msgInvalidJSON     = "Invalid JSON body"
	msgPersistFailed   = "Failed to persist value"
	msgDuplicateValue  = "Value already exists"
	msgUnknownResource = "Unknown resource"
	msgNotPushResource = "Resource does not accept pushed values"
	msgBodyTooLarge    = "Request body exceeds maximum allowed size"
)

// ingestError carries the structured HTTP error shape from a helper back
// to the handler. Helpers return this instead of writing to gin.Context
// directly, keeping them decoupled from HTTP.
type ingestError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *ingestError) Error() string {
	return e.message
}

// IngestHandler handles HTTP POST requests for pushed resource values.
func (s *Service) IngestHandler(c *gin.Context) {
	rv, payloadSize, err := s.parseValue(c)
	if err != nil {
		writeError(c, err)
		return
	}

	slog.Info("Received Value",
		"resource_id", rv.ResourceID,
		"taken_at", rv.TakenAt,
		"payload_size", payloadSize)

	if err := s.persistValue(c.Request.Context(), rv); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// parseValue reads the raw request body and binds it into a ResourceValue.
// Returns the parsed value and the raw payload size for structured logging.
func (s *Service) parseValue(c *gin.Context) (*v1.ResourceValue, int, *ingestError) {
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("Failed to read request body", "error", err)
		return nil, 0, &ingestError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return nil, len(bodyBytes), &ingestError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpInvalidRequestError,
			message:    msgBodyTooLarge,
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	var rv v1.ResourceValue
	if err := c.ShouldBindJSON(&rv); err != nil {
		slog.Warn("Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return nil, len(bodyBytes), &ingestError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidRequestError,
			message:    msgInvalidJSON,
		}
	}

	if err := rv.Validate(); err != nil {
		slog.Warn("Value validation failed", "error", err)
		return nil, len(bodyBytes), &ingestError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidRequestError,
			message:    err.Error(),
		}
	}

	rv.ReceivedAt = s.now()
	return &rv, len(bodyBytes), nil
}

// persistValue applies the value and classifies domain failures.
func (s *Service) persistValue(ctx context.Context, rv *v1.ResourceValue) *ingestError {
	if err := s.Apply(ctx, rv); err != nil {
		switch {
		case errors.Is(err, storage.ErrResourceNotFound):
			slog.Warn("Value for unknown resource rejected", "resource_id", rv.ResourceID)
			return &ingestError{
				statusCode: http.StatusBadRequest,
				errorType:  httperr.HttpInvalidRequestError,
				message:    msgUnknownResource,
			}
		case errors.Is(err, ErrNotPushResource):
			slog.Warn("Value for pull-only resource rejected", "resource_id", rv.ResourceID)
			return &ingestError{
				statusCode: http.StatusBadRequest,
				errorType:  httperr.HttpInvalidRequestError,
				message:    msgNotPushResource,
			}
		case errors.Is(err, storage.ErrDuplicate):
			slog.Info("Duplicate value rejected", "resource_id", rv.ResourceID, "taken_at", rv.TakenAt)
			return &ingestError{
				statusCode: http.StatusConflict,
				errorType:  httperr.HttpConflictError,
				message:    msgDuplicateValue,
			}
		}

		slog.Error("Failed to persist value", "error", err, "resource_id", rv.ResourceID)
		return &ingestError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgPersistFailed,
		}
	}
	return nil
}

// writeError serializes an ingestError as the JSON HTTP response.
func writeError(c *gin.Context, err *ingestError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
