package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dopahiyaa/api_leads/internal/errs"
	"dopahiyaa/api_leads/internal/payments"
	"dopahiyaa/pkg/logging"
)

const maxWebhookBody = 1 << 20

// RazorpayWebhook credits a dealer after a captured payment. Any non-2xx
// answer makes Razorpay redeliver, so only transient failures return 5xx.
func (h *Handler) RazorpayWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	body, err := c.GetRawData()
	if err != nil {
		h.metrics.IncWebhook("razorpay", "bad_request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	res, err := h.payments.Handle(c.Request.Context(), body, c.GetHeader("X-Razorpay-Signature"))
	switch {
	case errors.Is(err, payments.ErrWebhookDisabled):
		h.metrics.IncWebhook("razorpay", "disabled")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Webhook not configured"})
		return
	case errors.Is(err, payments.ErrInvalidSignature):
		h.metrics.IncWebhook("razorpay", "invalid_signature")
		h.logger.WithFields(logging.Fields{"ip": c.ClientIP()}).Warn("Razorpay webhook signature mismatch")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	case err != nil:
		if errs.KindOf(err) == errs.KindValidation {
			h.metrics.IncWebhook("razorpay", "invalid_payload")
			// Redelivering a malformed payload never helps.
			c.JSON(http.StatusOK, gin.H{"status": "ignored", "error": err.Error()})
			return
		}
		h.metrics.IncWebhook("razorpay", "error")
		respondError(c, h.logger, err)
		return
	}

	h.metrics.IncWebhook("razorpay", string(res.Outcome))
	c.JSON(http.StatusOK, gin.H{"status": res.Outcome, "result": res})
}
