package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"dopahiyaa/pkg/ctxkeys"
	"dopahiyaa/pkg/logging"
)

// GetRequestID gets the request ID from the context
func GetRequestID(c *gin.Context) string {
	return c.GetString(string(ctxkeys.KeyRequestID))
}

// GetContextLogger gets a logger with request context
func GetContextLogger(c *gin.Context, logger logging.Logger) *logrus.Entry {
	return logger.WithFields(logging.Fields{
		"request_id": GetRequestID(c),
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"user_id":    c.GetString(string(ctxkeys.KeyUserID)),
		"role":       c.GetString(string(ctxkeys.KeyRole)),
	})
}
