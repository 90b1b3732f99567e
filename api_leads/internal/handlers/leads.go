package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dopahiyaa/api_leads/internal/models"
)

type inquiryRequest struct {
	ListingID string `json:"listingId" binding:"required"`
	Message   string `json:"message"`
}

func (h *Handler) CreateInquiry(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req inquiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "listingId is required")
		return
	}

	lead, err := h.leads.CreateInquiry(c.Request.Context(), a.UserID, req.ListingID, req.Message)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Inquiry sent successfully!",
		"lead":    lead,
	})
}

func (h *Handler) UnlockLead(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	res, err := h.leads.UnlockLead(c.Request.Context(), a.UserID, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) AdvanceLeadStatus(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required")
		return
	}

	lead, err := h.leads.AdvanceLeadStatus(c.Request.Context(), a, c.Param("id"), models.LeadStatus(req.Status))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "lead": lead})
}
