package server

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"ghproxy/internal/auditlog"
	"ghproxy/internal/core"
)

// RequestIDMiddleware assigns each request an ID, honoring an inbound
// X-Request-Id header, and threads it through the context so upstream
// call logs correlate with the inbound request.
func RequestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Request().Header.Get("X-Request-Id")
			if requestID == "" {
				requestID = uuid.NewString()
			}

			ctx := core.WithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set("X-Request-Id", requestID)

			return next(c)
		}
	}
}

// AuditMiddleware records one audit entry per proxied request. Entries go
// through the buffered writer and never block the request path.
func AuditMiddleware(writer *auditlog.Writer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if writer == nil {
				return next(c)
			}

			start := time.Now()
			err := next(c)

			entry := &auditlog.Entry{
				RequestID: core.GetRequestID(c.Request().Context()),
				Timestamp: start.UTC(),
				Method:    c.Request().Method,
				Path:      c.Request().URL.Path,
				Status:    c.Response().Status,
				LatencyMS: time.Since(start).Milliseconds(),
				ClientIP:  c.RealIP(),
			}
			if err != nil {
				entry.Error = err.Error()
			}
			writer.Write(entry)

			return err
		}
	}
}
