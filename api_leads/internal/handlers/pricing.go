package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dopahiyaa/api_leads/internal/lifecycle"
	"dopahiyaa/api_leads/internal/pricing"
)

func (h *Handler) Quote(c *gin.Context) {
	var in pricing.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request format")
		return
	}
	q, err := h.leads.CalculatePrice(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

type purchaseRequest struct {
	pricing.Input
	ExpectedTotalPrice *int64 `json:"expectedTotalPrice"`
	IdempotencyKey     string `json:"idempotencyKey"`
}

// PurchaseFilterPack accepts the idempotency key in the body or the
// Idempotency-Key header.
func (h *Handler) PurchaseFilterPack(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}
	key := req.IdempotencyKey
	if key == "" {
		key = c.GetHeader("Idempotency-Key")
	}

	res, err := h.leads.PurchaseFilterPack(c.Request.Context(), lifecycle.PurchaseRequest{
		DealerID:           a.UserID,
		Input:              req.Input,
		ExpectedTotalPrice: req.ExpectedTotalPrice,
		IdempotencyKey:     key,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"success":         true,
		"subscription":    res.Subscription,
		"subscriptionId":  res.SubscriptionID,
		"deductedCredits": res.DeductedCredits,
		"newBalance":      res.NewBalance,
		"quote":           res.Quote,
		"currentPrice":    res.CurrentPrice,
		"replayed":        res.Replayed,
	})
}
