package tracing

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/neuron-e/api-boukii-sub004/internal/observability/logger"
	"github.com/neuron-e/api-boukii-sub004/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// GinMiddleware opens a server span per request. The span is renamed to the
// route template after routing so reservation traffic groups per endpoint
// rather than per course id.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("boukii/http")
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		method := strings.ToUpper(c.Request.Method)

		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + method + " " + route)

		attrs := []attribute.KeyValue{
			attribute.String("http.method", method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		}
		if requestID := logger.RequestIDFromContext(ctx); requestID != "" {
			attrs = append(attrs, attribute.String("request_id", requestID))
		}
		if cid := correlation.ExtractCorrelationID(c.Request.Context()); cid != "" {
			attrs = append(attrs, attribute.String("correlation_id", cid))
		}
		if courseID := c.Param("course_id"); courseID != "" {
			attrs = append(attrs, attribute.String("booking.course_id", courseID))
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		switch {
		case status >= http.StatusInternalServerError:
			if lastErr := c.Errors.Last(); lastErr != nil {
				span.RecordError(SafeError(lastErr.Err))
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		case status == http.StatusConflict:
			// lost capacity races are part of normal operation
			span.AddEvent("booking.rejected")
		}
	}
}
