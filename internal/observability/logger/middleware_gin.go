package logger

import (
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/satgate/satgate/internal/observability/obscontext"
	"github.com/satgate/satgate/pkg/correlation"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-Id"

// GinMiddleware logs every request and propagates a request id.
func GinMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := ensureRequestID(c)
		ctx := obscontext.WithRequestID(c.Request.Context(), requestID)
		ctx = correlation.ContextWithCorrelationID(ctx, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(requestIDHeader, requestID)

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + sanitizeQuery(raw)
		}

		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		entry := WithContext(c.Request.Context(), log)
		switch {
		case isNoiseEndpoint(c.Request.URL.Path):
			entry.Debug("http request", fields...)
		case status >= 500:
			entry.Error("http request", fields...)
		case status >= 400:
			entry.Warn("http request", fields...)
		default:
			entry.Info("http request", fields...)
		}
	}
}

func ensureRequestID(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
	if requestID == "" {
		requestID = correlation.NewCorrelationID()
	}
	return requestID
}

// Session tokens arrive in the query string on payment-page retries; they
// never belong in the access log.
func sanitizeQuery(raw string) string {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return raw
	}
	redacted := false
	for key := range values {
		if strings.EqualFold(key, "session_token") {
			values.Set(key, "REDACTED")
			redacted = true
		}
	}
	if !redacted {
		return raw
	}
	return values.Encode()
}

func isNoiseEndpoint(path string) bool {
	return path == "/health" || path == "/metrics"
}
