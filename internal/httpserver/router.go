package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	loggingmw "github.com/Skotchmaster/mind-auth/internal/middleware/logging"
	ratelimitmw "github.com/Skotchmaster/mind-auth/internal/middleware/ratelimit"
	"github.com/Skotchmaster/mind-auth/internal/ratelimit"
	"github.com/Skotchmaster/mind-auth/internal/repo"
)

const readyTimeout = 2 * time.Second

var DefaultAllowOrigins = []string{"http://localhost:4200", "http://localhost:8787"}

type Deps struct {
	AuthHandler  *AuthHTTP
	Limiter      *ratelimit.Limiter
	Store        repo.UserStore
	Logger       *slog.Logger
	AllowOrigins []string
}

func Register(e *echo.Echo, d *Deps) {
	origins := d.AllowOrigins
	if len(origins) == 0 {
		origins = DefaultAllowOrigins
	}

	e.HTTPErrorHandler = ErrorHandler
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(loggingmw.RequestLogger(d.Logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderCookie},
		AllowCredentials: true,
	}))
	e.Use(middleware.BodyLimit("64K"))
	e.Use(middleware.Secure())
	e.Use(requireStore(d.Store))

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", ready(d.Store))

	limit := ratelimitmw.Middleware(d.Limiter)

	e.POST("/api/auth/register", d.AuthHandler.Register, limit)
	e.POST("/api/auth/login", d.AuthHandler.Login, limit)
	e.POST("/api/auth/logout", d.AuthHandler.LogOut)
	e.GET("/api/me", d.AuthHandler.Me)
}

func isAuthPath(p string) bool {
	return strings.HasPrefix(p, "/api/auth") || p == "/api/me"
}

// requireStore answers 503 on auth paths while no database is configured.
func requireStore(store repo.UserStore) echo.MiddlewareFunc {
	configured := repo.Configured(store)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !configured && isAuthPath(c.Request().URL.Path) {
				return echo.NewHTTPError(http.StatusServiceUnavailable, MsgNotConfigured)
			}
			return next(c)
		}
	}
}

func ready(store repo.UserStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !repo.Configured(store) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, MsgNotConfigured)
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), readyTimeout)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable").SetInternal(err)
		}
		return c.NoContent(http.StatusOK)
	}
}
