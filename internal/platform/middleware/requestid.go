package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/opd/opd/internal/platform/audit"
	"github.com/opd/opd/internal/platform/ids"
)

const RequestIDHeader = "X-Request-ID"

// RequestIDKey is the echo.Context key holding the request id.
const RequestIDKey = "request_id"

const maxRequestIDLength = 128

// RequestID propagates an inbound X-Request-ID or mints a ULID, and attaches
// the caller metadata used by audit records to the request context.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			rid := req.Header.Get(RequestIDHeader)
			if rid == "" || len(rid) > maxRequestIDLength {
				rid = ids.New()
			}
			c.Set(RequestIDKey, rid)
			c.Response().Header().Set(RequestIDHeader, rid)

			ctx := audit.WithRequestMeta(req.Context(), audit.RequestMeta{
				IPAddress: c.RealIP(),
				UserAgent: req.UserAgent(),
				RequestID: rid,
			})
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

func requestID(c echo.Context) string {
	rid, _ := c.Get(RequestIDKey).(string)
	return rid
}
