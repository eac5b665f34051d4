package middleware

import (
	"log/slog"
	"time"

	"github.com/LazarusTes/auth-portal-express/internal/metrics"
	"github.com/LazarusTes/auth-portal-express/internal/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// LoggingMiddleware traces, logs and counts every request. Unmatched paths are
// grouped under one route label to keep metric cardinality bounded.
func LoggingMiddleware(logger *slog.Logger, m *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		ctx, span := telemetry.Tracer().Start(c.Request.Context(), c.Request.Method+" "+route)
		c.Request = c.Request.WithContext(ctx)
		defer span.End()

		c.Next()

		status := c.Writer.Status()
		elapsed := time.Since(started)
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)
		if status >= 500 {
			span.SetStatus(codes.Error, "server error")
		}
		m.ObserveHTTP(c.Request.Method, route, status, elapsed)

		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		}
		logger.LogAttrs(ctx, level, "request",
			slog.String("method", c.Request.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("latency", elapsed),
			slog.String("userId", c.GetString(userIDKey)),
		)
	}
}
