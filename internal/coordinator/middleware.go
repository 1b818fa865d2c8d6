package coordinator

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	apiKeyHeader = "X-API-Key"
	callerKey    = "caller_agent_id"
)

// AuthMiddleware resolves the X-API-Key header to a registered agent and
// rejects the request when it does not.
func AuthMiddleware(registry *Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(apiKeyHeader)
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing X-API-Key header",
			})
			return
		}

		agentID, ok := registry.AgentForKey(provided)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "invalid api key",
			})
			return
		}

		c.Set(callerKey, agentID)
		c.Next()
	}
}

func callerID(c *gin.Context) (string, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// LoggingMiddleware logs each request against its route pattern. Server
// errors are raised to warn level, everything else stays at debug.
func LoggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"route", route,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
			"caller", c.GetString(callerKey),
		)
	}
}

// RecoveryMiddleware turns a handler panic into the coordinator's
// {"error": ...} reply and logs it.
func RecoveryMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		logger.Error("handler panicked",
			"error", recovered,
			"route", c.FullPath(),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "internal server error",
		})
	})
}
