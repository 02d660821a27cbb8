package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const requestIDHeader = "X-Request-ID"

// healthPaths are probe endpoints whose repeated successes are suppressed
// from the request log. Failures on these paths always log.
var healthPaths = map[string]struct{}{
	"/healthz": {},
	"/readyz":  {},
}

// RequestLog returns Echo middleware that logs requests with structured
// fields. It generates a request ID if none is provided and propagates it
// through the response header and echo context.
//
// Health probes fire every few seconds, so a healthy instance only logs
// the first success per probe path; the suppression resets whenever the
// probe fails, and failures themselves always log at WARN.
func RequestLog(log *slog.Logger) echo.MiddlewareFunc {
	var (
		mu          sync.Mutex
		probeLogged = map[string]bool{}
	)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			reqID := c.Request().Header.Get(requestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}

			c.Set("request_id", reqID)
			c.Response().Header().Set(requestIDHeader, reqID)

			err := next(c)

			method := c.Request().Method
			path := c.Request().URL.Path
			status := c.Response().Status
			fields := []any{
				"method", method,
				"path", path,
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", reqID,
			}

			if _, probe := healthPaths[path]; probe {
				mu.Lock()
				defer mu.Unlock()

				if status >= 400 {
					probeLogged[path] = false
					log.Warn("request", fields...)
					return err
				}
				if probeLogged[path] {
					return err
				}
				probeLogged[path] = true
			}

			log.Info("request", fields...)
			return err
		}
	}
}
