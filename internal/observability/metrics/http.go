package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetrics instruments inbound HTTP traffic.
type HTTPMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// NewHTTPMetrics configures the HTTP instruments.
func NewHTTPMetrics(cfg Config, provider metric.MeterProvider) (*HTTPMetrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "satgate"
	}
	meter := provider.Meter(name)

	requests, err := meter.Int64Counter("satgate_http_requests_total")
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("satgate_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &HTTPMetrics{
		requests: requests,
		duration: duration,
	}, nil
}

// Record registers one completed request.
func (m *HTTPMetrics) Record(ctx *gin.Context, endpoint string, status int, elapsed time.Duration) {
	if m == nil || ctx == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("status_code", strconv.Itoa(status)),
	)
	opt := metric.WithAttributes(attrs...)
	m.requests.Add(ctx.Request.Context(), 1, opt)
	m.duration.Record(ctx.Request.Context(), elapsed.Seconds(), opt)
}

// GinMiddleware records request counts and latency per route.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.Record(c, endpoint, c.Writer.Status(), time.Since(start))
	}
}
