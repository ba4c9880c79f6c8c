package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/supplychain/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/metric"
)

// unmatchedRoute labels requests no route matched, so 404 scans cannot blow
// up route cardinality.
const unmatchedRoute = "unknown"

type httpMetrics struct {
	requests *telemetry.Counter
	latency  *telemetry.Histogram
	inFlight metric.Int64UpDownCounter
}

// HTTPMetrics counts requests and records latency per method and route
// pattern. In-flight requests are tracked as an up/down counter.
func HTTPMetrics(meter metric.Meter) (gin.HandlerFunc, error) {
	var (
		m   httpMetrics
		err error
	)
	if m.requests, err = telemetry.NewCounter(meter,
		"http_server_request_total", "Total number of HTTP requests", "{request}"); err != nil {
		return nil, err
	}
	if m.latency, err = telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "http_server_request_duration_seconds",
		Description: "HTTP request latency distribution in seconds",
		Unit:        "s",
		Boundaries:  telemetry.HTTPDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.inFlight, err = meter.Int64UpDownCounter("http_server_active_requests",
		metric.WithDescription("Number of currently active HTTP requests"),
		metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	return m.observe, nil
}

func (m *httpMetrics) observe(c *gin.Context) {
	ctx := c.Request.Context()
	start := time.Now()
	m.inFlight.Add(ctx, 1)
	defer m.inFlight.Add(ctx, -1)

	c.Next()

	route := c.FullPath()
	if route == "" {
		route = unmatchedRoute
	}
	method := telemetry.AttrHTTPMethod.String(c.Request.Method)
	path := telemetry.AttrHTTPRoute.String(route)

	m.latency.RecordDuration(ctx, time.Since(start), method, path)
	m.requests.Inc(ctx, method, path, telemetry.AttrHTTPStatusCode.Int(c.Writer.Status()))
}
