package httpapi

import (
	"errors"
	"net/http"

	"incident-portal/internal/assignments"
	"incident-portal/internal/auth"
	"incident-portal/internal/commanders"
	"incident-portal/internal/dashboard"
	"incident-portal/internal/lifecycle"
	"incident-portal/internal/reports"
	"incident-portal/pkg/logger"

	"github.com/gin-gonic/gin"
)

// statusFor maps domain errors to HTTP status codes. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, reports.ErrValidation):
		return http.StatusUnprocessableEntity

	case errors.Is(err, reports.ErrNotFound),
		errors.Is(err, assignments.ErrNotFound),
		errors.Is(err, commanders.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, assignments.ErrAlreadyAssigned),
		errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, assignments.ErrResolutionNotSubmitted),
		errors.Is(err, assignments.ErrCommanderUnavailable),
		errors.Is(err, commanders.ErrEmailTaken):
		return http.StatusConflict

	case errors.Is(err, assignments.ErrForbidden):
		return http.StatusForbidden

	case errors.Is(err, assignments.ErrRevisionReasonRequired),
		errors.Is(err, assignments.ErrResolutionNotesMissing),
		errors.Is(err, assignments.ErrInvalidOutcome),
		errors.Is(err, commanders.ErrInvalidRequest),
		errors.Is(err, commanders.ErrWeakPassword),
		errors.Is(err, commanders.ErrTokenInvalid),
		errors.Is(err, dashboard.ErrInvalidRequest):
		return http.StatusBadRequest

	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, commanders.ErrInvalidCredentials):
		return http.StatusUnauthorized

	case errors.Is(err, reports.ErrExhaustedRetries):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// writeError aborts the request with the mapped status. Internal errors are
// logged and never echoed to the client.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)

	var ve *reports.ValidationError
	if errors.As(err, &ve) {
		c.AbortWithStatusJSON(status, gin.H{"error": "validation failed", "fields": ve.Fields})
		return
	}

	switch status {
	case http.StatusInternalServerError:
		logger.FromGin(c).Error("request failed", "err", err.Error())
		_ = c.Error(err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
	case http.StatusUnauthorized:
		c.AbortWithStatusJSON(status, gin.H{"error": "invalid credentials"})
	case http.StatusServiceUnavailable:
		c.AbortWithStatusJSON(status, gin.H{"error": "temporarily unavailable, retry later"})
	default:
		c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
	}
}
