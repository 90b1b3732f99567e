package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dopahiyaa/api_leads/internal/errs"
	"dopahiyaa/pkg/logging"
	"dopahiyaa/pkg/middleware"
)

// StatusFor maps a core error onto an HTTP status.
func StatusFor(err error) int {
	e, ok := errs.As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindBusinessRule:
		if e.Code == errs.CodeRateLimited {
			return http.StatusTooManyRequests
		}
		return http.StatusUnprocessableEntity
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindResource:
		if e.Code == errs.CodeInsufficientCredits {
			return http.StatusPaymentRequired
		}
		return http.StatusNotFound
	case errs.KindDownstream:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, logger logging.Logger, err error) {
	status := StatusFor(err)
	e, ok := errs.As(err)
	if !ok {
		middleware.GetContextLogger(c, logger).WithError(err).Error("Unhandled error")
		c.JSON(status, gin.H{"success": false, "error": "Internal server error"})
		return
	}
	if status >= http.StatusInternalServerError {
		middleware.GetContextLogger(c, logger).WithError(err).Error("Request failed")
	}

	body := gin.H{
		"success": false,
		"error":   e.Message,
		"code":    e.Code,
	}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   msg,
		"code":    errs.CodeInvalidInput,
	})
}
