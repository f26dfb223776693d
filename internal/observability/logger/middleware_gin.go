package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const headerRequestID = "X-Request-Id"

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug bool
	// ErrorClassifier maps the last handler error to a type and a code,
	// e.g. ("rejected", "capacity_exceeded").
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware assigns a request id and writes one line per request once
// the handler chain has returned.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(headerRequestID, requestID)
		c.Request = c.Request.WithContext(WithRequestID(c.Request.Context(), requestID))

		c.Next()

		route := routeOf(c)
		status := c.Writer.Status()
		fields := append(pathFields(c),
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		)

		var errorType string
		if lastErr := c.Errors.Last(); lastErr != nil && cfg.ErrorClassifier != nil {
			var errorCode string
			errorType, errorCode = cfg.ErrorClassifier(lastErr.Err)
			fields = append(fields, zap.String("error_type", errorType), zap.String("error_code", errorCode))
			if cfg.Debug && status >= http.StatusInternalServerError {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		log := FromContext(c.Request.Context())
		if ce := log.Check(requestLevel(route, status, errorType), "http_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func routeOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unknown"
}

// pathFields lifts the booking identifiers out of the path so a request line
// can be joined with the audit log without parsing URLs.
func pathFields(c *gin.Context) []zap.Field {
	fields := make([]zap.Field, 0, 8)
	for _, name := range []string{"course_id", "id", "subgroup_id", "date_id"} {
		if value := strings.TrimSpace(c.Param(name)); value != "" {
			key := name
			if name == "id" {
				key = "resource_id"
			}
			fields = append(fields, zap.String(key, value))
		}
	}
	return fields
}

func requestLevel(route string, status int, errorType string) zapcore.Level {
	switch {
	case route == "/metrics" || route == "/health":
		return zap.DebugLevel
	case status >= http.StatusInternalServerError:
		return zap.ErrorLevel
	case errorType == "rejected":
		// capacity and code rejections are expected under load
		return zap.DebugLevel
	case status == http.StatusTooManyRequests:
		return zap.WarnLevel
	default:
		return zap.InfoLevel
	}
}
