package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"dopahiyaa/api_leads/internal/ratelimit"
	"dopahiyaa/pkg/auth"
	"dopahiyaa/pkg/ctxkeys"
	"dopahiyaa/pkg/middleware"
)

type RouteConfig struct {
	JWTSecret []byte
	// Limiter guards the paid endpoints; nil disables rate limiting.
	Limiter ratelimit.Limiter
	// RequestTimeout bounds every request context except the websocket feed;
	// zero leaves requests unbounded.
	RequestTimeout time.Duration
}

// RegisterRoutes mounts the lead API on r.
func RegisterRoutes(r gin.IRouter, h *Handler, cfg RouteConfig) {
	timed := []gin.HandlerFunc{}
	if cfg.RequestTimeout > 0 {
		timed = append(timed, middleware.TimeoutMiddleware(cfg.RequestTimeout))
	}

	if h.payments != nil {
		r.POST("/webhooks/razorpay", chain(timed, h.RazorpayWebhook)...)
	}

	api := r.Group("/api/v1")
	api.Use(auth.JWTAuthMiddleware(cfg.JWTSecret))

	// The feed lives as long as the socket does.
	api.GET("/dealers/me/feed", auth.RequireRole(auth.RoleDealer), h.Feed)

	v1 := api.Group("", timed...)

	paid := []gin.HandlerFunc{auth.RequireRole(auth.RoleDealer)}
	if cfg.Limiter != nil {
		paid = append(paid, ratelimit.Middleware(cfg.Limiter, "paid", actorKey, h.logger))
	}

	v1.POST("/inquiries", auth.RequireRole(auth.RoleBuyer), h.CreateInquiry)
	v1.POST("/pricing/quote", h.Quote)

	v1.POST("/leads/:id/unlock", chain(paid, h.UnlockLead)...)
	v1.POST("/subscriptions", chain(paid, h.PurchaseFilterPack)...)
	v1.POST("/leads/:id/status", auth.RequireRole(auth.RoleDealer), h.AdvanceLeadStatus)

	dealers := v1.Group("/dealers/me", auth.RequireRole(auth.RoleDealer))
	dealers.GET("/balance", h.Balance)
	dealers.GET("/leads", h.DealerLeads)

	admin := v1.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/pricing/refresh", h.RefreshPricing)
	admin.GET("/reconciliations", h.ListReconciliations)
	admin.POST("/reconciliations/:id/resolve", h.ResolveReconciliation)
}

func chain(mw []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(mw)+1)
	return append(append(out, mw...), h)
}

func actorKey(c *gin.Context) string {
	return c.GetString(string(ctxkeys.KeyUserID))
}
