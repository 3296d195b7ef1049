package web

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KaramelBytes/csvbot/internal/logger"
)

// RequestLogger logs one line per request through the structured logger.
// Form values are never logged since they may carry the password.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		details := map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}
		switch {
		case c.Writer.Status() >= 500:
			if len(c.Errors) > 0 {
				details["error"] = c.Errors.String()
			}
			log.Error("http", "request failed", details)
		case c.Request.URL.Path == "/health":
			log.Debug("http", "request", details)
		default:
			log.Info("http", "request", details)
		}
	}
}
