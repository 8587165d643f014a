package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// RequestLogger logs one line per request and tags the response with an
// X-Request-ID, reusing the caller's when present.
func RequestLogger(log *logrus.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			rid := c.Request().Header.Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, rid)

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := logrus.Fields{
				"request_id": rid,
				"method":     c.Request().Method,
				"route":      c.Path(),
				"status":     c.Response().Status,
				"latency_ms": time.Since(start).Milliseconds(),
				"ip":         c.RealIP(),
			}
			if p, ok := Principal(c); ok {
				fields["user_id"] = p.UserID
			}
			entry := log.WithFields(fields)
			switch {
			case c.Response().Status >= 500:
				entry.Error("request")
			case c.Response().Status >= 400:
				entry.Warn("request")
			default:
				entry.Info("request")
			}
			return nil
		}
	}
}
