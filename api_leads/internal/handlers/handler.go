package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dopahiyaa/api_leads/internal/lifecycle"
	"dopahiyaa/pkg/auth"
	"dopahiyaa/pkg/logging"
)

// Handler serves the lead API.
type Handler struct {
	leads    LeadService
	payments PaymentProcessor
	feed     FeedServer
	logger   logging.Logger
	metrics  *HandlerMetrics
}

func NewHandler(leads LeadService, payments PaymentProcessor, feed FeedServer, logger logging.Logger, metrics *HandlerMetrics) *Handler {
	return &Handler{
		leads:    leads,
		payments: payments,
		feed:     feed,
		logger:   logger,
		metrics:  metrics,
	}
}

// actor returns the caller or aborts with 401.
func actor(c *gin.Context) (lifecycle.Actor, bool) {
	a, ok := auth.ActorFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "authentication required"})
		return lifecycle.Actor{}, false
	}
	return lifecycle.Actor{UserID: a.UserID, Role: a.Role}, true
}
