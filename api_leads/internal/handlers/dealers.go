package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dopahiyaa/api_leads/internal/lifecycle"
)

func (h *Handler) Balance(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	balance, err := h.leads.Balance(c.Request.Context(), a.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dealerId": a.UserID, "balance": balance})
}

// DealerLeads pages through the leads allocated to or unlocked by the caller.
func (h *Handler) DealerLeads(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	q := lifecycle.InboxQuery{Status: c.Query("status")}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &q.Page}, {"limit", &q.Limit}} {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequest(c, p.name+" must be a positive integer")
			return
		}
		*p.dst = n
	}
	if raw := c.Query("unlocked"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "unlocked must be true or false")
			return
		}
		q.UnlockedOnly = b
	}

	inbox, err := h.leads.ListDealerLeads(c.Request.Context(), a.UserID, q)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, inbox)
}

// Feed upgrades to a websocket streaming the caller's dealer feed.
func (h *Handler) Feed(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	if h.feed == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "realtime feed is disabled"})
		return
	}
	h.feed.Serve(c.Writer, c.Request, a.UserID)
}
