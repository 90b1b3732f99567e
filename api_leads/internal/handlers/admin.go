package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (h *Handler) RefreshPricing(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	if err := h.leads.RefreshPricing(c.Request.Context(), a); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) ListReconciliations(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	out, err := h.leads.ListReconciliations(c.Request.Context(), c.Query("status"), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reconciliations": out, "count": len(out)})
}

type resolveRequest struct {
	Note string `json:"note"`
}

func (h *Handler) ResolveReconciliation(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request format")
		return
	}
	ev, err := h.leads.ResolveReconciliation(c.Request.Context(), a, c.Param("id"), req.Note)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "reconciliation": ev})
}
