package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
)

// Recovery returns Echo middleware that recovers from panics, logs the stack
// trace, and returns a 500 Internal Server Error to the client. It sits
// inside RequestLog so the request ID is available for correlation.
func Recovery(log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					if r == http.ErrAbortHandler {
						// net/http uses this sentinel to abort a response
						// mid-write; the server handles it, we must not.
						panic(r)
					}

					fields := []any{
						"error", fmt.Sprint(r),
						"method", c.Request().Method,
						"path", c.Request().URL.Path,
						"stack", string(debug.Stack()),
					}
					if id, ok := c.Get("request_id").(string); ok {
						fields = append(fields, "request_id", id)
					}
					log.Error("panic recovered", fields...)

					err = c.JSON(http.StatusInternalServerError, map[string]string{
						"error": "internal server error",
					})
				}
			}()
			return next(c)
		}
	}
}
