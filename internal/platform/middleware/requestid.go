package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDKey is the echo context key under which the request id is stored.
const RequestIDKey = "request_id"

// RequestID attaches a request id to every request, honoring an incoming
// X-Request-ID header so ids survive proxy hops.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get("X-Request-ID")
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Set(RequestIDKey, rid)
			c.Response().Header().Set("X-Request-ID", rid)
			return next(c)
		}
	}
}

// RequestIDFrom returns the request id set by RequestID, or "" when the
// middleware did not run.
func RequestIDFrom(c echo.Context) string {
	rid, _ := c.Get(RequestIDKey).(string)
	return rid
}
