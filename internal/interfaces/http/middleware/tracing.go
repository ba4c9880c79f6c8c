// Package middleware provides HTTP middleware for the partner service.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attributes added on top of what otelgin records
const (
	attrRequestID     = attribute.Key("request_id")
	attrCallerAddress = attribute.Key("partner.caller_address")
	attrStatusCode    = attribute.Key("http.status_code")
)

// TracingConfig selects whether server spans are created
type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

// TracingWithConfig opens one server span per request, named
// "METHOD route" e.g. "GET /api/v1/partner/relationships/:id".
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if cfg.Enabled {
		return otelgin.Middleware(cfg.ServiceName)
	}
	return func(c *gin.Context) { c.Next() }
}

// recordingSpan returns the request span, or nil when nothing records it
func recordingSpan(c *gin.Context) trace.Span {
	span := trace.SpanFromContext(c.Request.Context())
	if !span.IsRecording() {
		return nil
	}
	return span
}

// TracingAttributeInjector tags the request span with the request ID and
// the authenticated wallet. It must sit after the JWT middleware.
func TracingAttributeInjector() gin.HandlerFunc {
	return func(c *gin.Context) {
		if span := recordingSpan(c); span != nil {
			var attrs []attribute.KeyValue
			if id := getRequestID(c); id != "" {
				attrs = append(attrs, attrRequestID.String(id))
			}
			if caller := GetCallerAddress(c); caller != "" {
				attrs = append(attrs, attrCallerAddress.String(caller))
			}
			span.SetAttributes(attrs...)
		}
		c.Next()
	}
}

// SpanErrorMarker sets an error status on the span of any 4xx or 5xx
// response. A rejected partner write is worth finding in the trace view.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			return
		}
		if span := recordingSpan(c); span != nil {
			span.SetStatus(codes.Error, http.StatusText(status))
			span.SetAttributes(attrStatusCode.Int(status))
		}
	}
}
