package ratelimitmw

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/mind-auth/internal/logging"
	"github.com/Skotchmaster/mind-auth/internal/ratelimit"
)

const TooManyRequestsMessage = "Too many requests. Please try again later."

// Middleware rejects a client with 429 once it has used up its attempts for
// the current window.
func Middleware(l *ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := ratelimit.ClientIdentifier(c.Request())
			res := l.Check(key)
			if !res.Allowed {
				retry := ratelimit.RetryAfter(res.ResetAt, l.Now())
				c.Response().Header().Set(echo.HeaderRetryAfter, strconv.Itoa(retry))
				logging.FromContext(c.Request().Context()).Warn("rate_limited", "client", key, "retry_after", retry)
				return echo.NewHTTPError(http.StatusTooManyRequests, TooManyRequestsMessage)
			}
			return next(c)
		}
	}
}
