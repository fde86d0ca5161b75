package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/mind-auth/internal/cookies"
	"github.com/Skotchmaster/mind-auth/internal/logging"
	"github.com/Skotchmaster/mind-auth/internal/repo"
	"github.com/Skotchmaster/mind-auth/internal/service"
	"github.com/Skotchmaster/mind-auth/internal/tokens"
)

type AuthHTTP struct {
	Svc        *service.AuthService
	CookieName string
	CookieOpts cookies.Options
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// decodeJSON reads the body as JSON whatever its Content-Type; c.Bind would
// answer 415 for clients that post JSON as text/plain.
func decodeJSON(c echo.Context, v any) error {
	return c.Echo().JSONSerializer.Deserialize(c, v)
}

func (h *AuthHTTP) setSession(c echo.Context, token string) {
	opts := h.CookieOpts
	opts.MaxAge = cookies.MaxAge(tokens.SessionTTL)
	c.Response().Header().Add(echo.HeaderSetCookie, cookies.Build(h.CookieName, token, opts))
}

func (h *AuthHTTP) clearSession(c echo.Context) {
	c.Response().Header().Add(echo.HeaderSetCookie, cookies.Clear(h.CookieName, h.CookieOpts))
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req registerRequest
	if err := decodeJSON(c, &req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, MsgInvalidCredentials)
	}

	sess, err := h.Svc.Register(ctx, service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Role:     req.Role,
	})
	if err != nil {
		var verr *service.ValidationError
		switch {
		case errors.As(err, &verr):
			return echo.NewHTTPError(http.StatusBadRequest, verr.Message)
		case errors.Is(err, service.ErrConflict):
			return echo.NewHTTPError(http.StatusBadRequest, MsgInvalidCredentials)
		case errors.Is(err, repo.ErrNotConfigured):
			return echo.NewHTTPError(http.StatusServiceUnavailable, MsgNotConfigured).SetInternal(err)
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, MsgInvalidCredentials).SetInternal(err)
		}
	}

	h.setSession(c, sess.Token)
	return c.JSON(http.StatusOK, echo.Map{"user": sess.User.Safe()})
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req loginRequest
	if err := decodeJSON(c, &req); err != nil {
		l.Warn("login_error", "status", 401, "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, MsgInvalidCredentials)
	}

	sess, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, repo.ErrNotConfigured) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, MsgNotConfigured).SetInternal(err)
		}
		return echo.NewHTTPError(http.StatusUnauthorized, MsgInvalidCredentials).SetInternal(err)
	}

	h.setSession(c, sess.Token)
	return c.JSON(http.StatusOK, echo.Map{"user": sess.User.Safe()})
}

// LogOut only clears the cookie: sessions are stateless and an issued token
// stays valid until it expires.
func (h *AuthHTTP) LogOut(c echo.Context) error {
	logging.FromContext(c.Request().Context()).Info("successful_logout")

	h.clearSession(c)
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

func (h *AuthHTTP) Me(c echo.Context) error {
	ctx := c.Request().Context()

	token, ok := cookies.Extract(c.Request().Header.Get(echo.HeaderCookie), h.CookieName)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, MsgNotAuthenticated)
	}

	user, err := h.Svc.CurrentUser(ctx, token)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, echo.Map{"user": user.Safe()})
	case errors.Is(err, service.ErrInvalidSession):
		return echo.NewHTTPError(http.StatusUnauthorized, MsgInvalidToken)
	case errors.Is(err, service.ErrUserNotFound):
		h.clearSession(c)
		return echo.NewHTTPError(http.StatusUnauthorized, MsgUserNotFound)
	case errors.Is(err, repo.ErrNotConfigured):
		return echo.NewHTTPError(http.StatusServiceUnavailable, MsgNotConfigured).SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusUnauthorized, MsgNotAuthenticated).SetInternal(err)
	}
}
