package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const requestIDHeader = "X-Request-ID"

// RequestID propagates the caller's request id or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// Logger logs every request except those under skipPaths.
func Logger(logger *logrus.Logger, skipPaths ...string) gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: skipPaths,
		Formatter: func(param gin.LogFormatterParams) string {
			entry := logger.WithFields(logrus.Fields{
				"status_code": param.StatusCode,
				"latency":     param.Latency,
				"client_ip":   param.ClientIP,
				"method":      param.Method,
				"path":        param.Path,
				"request_id":  param.Keys["request_id"],
				"user_agent":  param.Request.UserAgent(),
				"timestamp":   param.TimeStamp.Format(time.RFC3339),
			})
			if param.ErrorMessage != "" {
				entry = entry.WithField("error", param.ErrorMessage)
			}

			switch {
			case param.StatusCode >= 500:
				entry.Error("HTTP Request")
			case param.StatusCode >= 400:
				entry.Warn("HTTP Request")
			default:
				entry.Info("HTTP Request")
			}

			return ""
		},
	})
}

func Recovery(logger *logrus.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.WithFields(logrus.Fields{
			"panic":      recovered,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"client_ip":  c.ClientIP(),
			"request_id": c.GetString("request_id"),
		}).Error("Panic recovered")

		abort(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error")
	})
}
