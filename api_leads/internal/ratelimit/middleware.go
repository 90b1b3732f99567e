package ratelimit

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dopahiyaa/api_leads/internal/errs"
	"dopahiyaa/pkg/logging"
)

// Middleware limits requests per key. Limiter errors let the request through.
func Middleware(l Limiter, scope string, key func(c *gin.Context) string, logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		k := scope + ":" + key(c)
		d, err := l.Allow(c.Request.Context(), k)
		if err != nil {
			logger.WithError(err).WithField("scope", scope).Warn("Rate limiter unavailable, allowing request")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			secs := int(math.Ceil(d.RetryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": errs.ErrRateLimited.Message,
				"code":  errs.CodeRateLimited,
			})
			return
		}
		c.Next()
	}
}
