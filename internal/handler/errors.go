package handler

import (
	"errors"
	"net/http"

	"storybook-server/internal/models"
	"storybook-server/internal/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ErrCodeBadRequest        = "bad_request"
	ErrCodeUnauthorized      = "unauthorized"
	ErrCodeForbidden         = "forbidden"
	ErrCodeNotFound          = "not_found"
	ErrCodeSelection         = "selection_incomplete"
	ErrCodeInvalidTransition = "invalid_transition"
	ErrCodeBusy              = "busy"
	ErrCodeQuota             = "quota_exceeded"
	ErrCodeUpstream          = "upstream_failure"
	ErrCodeUnavailable       = "unavailable"
	ErrCodeInternal          = "internal_error"
)

func (h *StoryHandler) handleServiceError(c *gin.Context, err error) {
	var status int
	var resp APIError

	switch {
	case errors.Is(err, models.ErrSelectionIncomplete):
		status = http.StatusUnprocessableEntity
		resp = APIError{Code: ErrCodeSelection, Message: err.Error()}
	case errors.Is(err, models.ErrBusy):
		status = http.StatusConflict
		resp = APIError{Code: ErrCodeBusy, Message: err.Error()}
	case errors.Is(err, models.ErrInvalidTransition):
		status = http.StatusConflict
		resp = APIError{Code: ErrCodeInvalidTransition, Message: err.Error()}
	case errors.Is(err, models.ErrQuotaExceeded):
		status = http.StatusTooManyRequests
		resp = APIError{Code: ErrCodeQuota, Message: err.Error()}
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
		resp = APIError{Code: ErrCodeNotFound, Message: "Resource not found"}
	case errors.Is(err, models.ErrForbidden):
		status = http.StatusForbidden
		resp = APIError{Code: ErrCodeForbidden, Message: "Access denied"}
	case errors.Is(err, models.ErrUnauthorized):
		status = http.StatusUnauthorized
		resp = APIError{Code: ErrCodeUnauthorized, Message: "Unauthorized"}
	case errors.Is(err, models.ErrUnknownCatalogValue),
		errors.Is(err, models.ErrBadRequest),
		errors.Is(err, models.ErrEmptyChunk):
		status = http.StatusBadRequest
		resp = APIError{Code: ErrCodeBadRequest, Message: err.Error()}
	case errors.Is(err, session.ErrTooManySessions):
		status = http.StatusServiceUnavailable
		resp = APIError{Code: ErrCodeUnavailable, Message: err.Error()}
	case errors.Is(err, models.ErrGenerationFailure),
		errors.Is(err, models.ErrUploadFailure),
		errors.Is(err, models.ErrPersistenceFailure):
		status = http.StatusBadGateway
		resp = APIError{Code: ErrCodeUpstream, Message: err.Error()}
	default:
		h.logger.Error("Unhandled internal error", zap.Error(err), zap.String("path", c.Request.URL.Path))
		status = http.StatusInternalServerError
		resp = APIError{Code: ErrCodeInternal, Message: "An unexpected internal error occurred"}
	}

	c.AbortWithStatusJSON(status, resp)
}
