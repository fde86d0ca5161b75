package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	MsgInvalidCredentials = "Invalid credentials"
	MsgNotAuthenticated   = "Not authenticated"
	MsgInvalidToken       = "Invalid or expired token"
	MsgUserNotFound       = "User not found"
	MsgNotConfigured      = "Authentication service not configured"
	MsgNotFound           = "Not found"
	MsgInternal           = "Internal server error"
)

// ErrorHandler renders every error as {"error": "..."} and never exposes
// internal error text.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := MsgInternal

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok && m != "" {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	}
	// Unknown API routes and known routes hit with the wrong method both
	// answer 404.
	if code == http.StatusMethodNotAllowed && strings.HasPrefix(c.Request().URL.Path, "/api/") {
		code = http.StatusNotFound
	}
	if code == http.StatusNotFound {
		msg = MsgNotFound
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, echo.Map{"error": msg})
}
