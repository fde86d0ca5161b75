package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Skotchmaster/mind-auth/internal/cookies"
	"github.com/Skotchmaster/mind-auth/internal/logging"
	"github.com/Skotchmaster/mind-auth/internal/models"
	"github.com/Skotchmaster/mind-auth/internal/ratelimit"
	"github.com/Skotchmaster/mind-auth/internal/repo"
	"github.com/Skotchmaster/mind-auth/internal/service"
	"github.com/Skotchmaster/mind-auth/internal/tokens"
	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const cookieName = "mind_session"

type testEnv struct {
	T      *testing.T
	E      *echo.Echo
	DB     *gorm.DB
	Tokens *tokens.Codec
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}))
	t.Cleanup(func() { _ = sqlDB.Close() })

	return newTestEnvWithStore(t, &repo.GormRepo{DB: db}, db)
}

func newTestEnvWithStore(t *testing.T, store repo.UserStore, db *gorm.DB) *testEnv {
	t.Helper()

	codec := &tokens.Codec{Secret: []byte("test-jwt-secret")}
	e := echo.New()
	Register(e, &Deps{
		AuthHandler: &AuthHTTP{
			Svc:        &service.AuthService{Users: store, Tokens: codec},
			CookieName: cookieName,
			CookieOpts: cookies.DefaultOptions(),
		},
		Limiter: ratelimit.New(ratelimit.Config{Roll: func() float64 { return 1 }}),
		Store:   store,
		Logger:  logging.NewWithWriter(io.Discard, "error"),
	})

	return &testEnv{T: t, E: e, DB: db, Tokens: codec}
}

func (env *testEnv) do(method, path string, body interface{}, header http.Header) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(env.T, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	env.E.ServeHTTP(rec, req)
	return rec
}

func withCookie(value string) http.Header {
	return http.Header{echo.HeaderCookie: []string{cookieName + "=" + value}}
}

func sessionFrom(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	for _, sc := range rec.Header().Values(echo.HeaderSetCookie) {
		if v, ok := cookies.Extract(strings.SplitN(sc, ";", 2)[0], cookieName); ok {
			return v
		}
	}
	t.Fatalf("no %s cookie in response", cookieName)
	return ""
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

var registerBody = map[string]string{
	"email":     "a@b.com",
	"password":  "pass1234",
	"full_name": "A B",
	"role":      "researcher",
}

func TestRegister_Success(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/auth/register", registerBody, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	setCookie := rec.Header().Get(echo.HeaderSetCookie)
	assert.Contains(t, setCookie, "mind_session=")
	assert.Contains(t, setCookie, "Max-Age=604800")
	assert.Contains(t, setCookie, "HttpOnly")
	assert.Contains(t, setCookie, "Secure")
	assert.Contains(t, setCookie, "SameSite=Lax")

	body := decode(t, rec)
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "researcher", user["role"])
	assert.Equal(t, "a@b.com", user["email"])
	assert.Equal(t, "A B", user["full_name"])
	assert.NotEmpty(t, user["id"])
	assert.NotEmpty(t, user["created_at"])
	assert.NotContains(t, user, "password_hash")
	assert.NotContains(t, rec.Body.String(), "password")

	claims, err := env.Tokens.Verify(sessionFrom(t, rec))
	require.NoError(t, err)
	assert.Equal(t, user["id"], claims.Subject)
}

func TestRegister_DuplicateMatchesWrongPasswordLogin(t *testing.T) {
	env := newTestEnv(t)

	first := env.do(http.MethodPost, "/api/auth/register", registerBody, nil)
	require.Equal(t, http.StatusOK, first.Code)

	dup := env.do(http.MethodPost, "/api/auth/register", registerBody, nil)
	assert.Equal(t, http.StatusBadRequest, dup.Code)
	assert.Empty(t, dup.Header().Get(echo.HeaderSetCookie))

	wrong := env.do(http.MethodPost, "/api/auth/login", map[string]string{
		"email": "a@b.com", "password": "pass12345",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)

	assert.Equal(t, decode(t, wrong)["error"], decode(t, dup)["error"])
	assert.Equal(t, MsgInvalidCredentials, decode(t, dup)["error"])
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body map[string]string
		want string
	}{
		{name: "missing email", body: map[string]string{"password": "pass1234", "full_name": "A B"}, want: "Email is required"},
		{name: "bad email", body: map[string]string{"email": "a@", "password": "pass1234", "full_name": "A B"}, want: "Invalid email format"},
		{name: "weak password", body: map[string]string{"email": "a@b.com", "password": "password", "full_name": "A B"}, want: "Password must contain at least one number"},
		{name: "short name", body: map[string]string{"email": "a@b.com", "password": "pass1234", "full_name": "A"}, want: "Full name must be at least 2 characters"},
		{name: "bad role", body: map[string]string{"email": "a@b.com", "password": "pass1234", "full_name": "A B", "role": "nurse"}, want: "Invalid role. Must be clinician, researcher, or admin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/api/auth/register", tt.body, http.Header{"Cf-Connecting-Ip": []string{tt.name}})
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, decode(t, rec)["error"])
		})
	}
}

func TestRegister_DefaultRoleAndMalformedBody(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/auth/register", map[string]string{
		"email": "c@d.com", "password": "pass1234", "full_name": "C D",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "researcher", decode(t, rec)["user"].(map[string]interface{})["role"])

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader("{not json"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	bad := httptest.NewRecorder()
	env.E.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
	assert.Equal(t, MsgInvalidCredentials, decode(t, bad)["error"])
}

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/auth/register", registerBody, nil).Code)

	rec := env.do(http.MethodPost, "/api/auth/login", map[string]string{
		"email": "  A@B.com", "password": "pass1234",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@b.com", decode(t, rec)["user"].(map[string]interface{})["email"])

	me := env.do(http.MethodGet, "/api/me", nil, withCookie(sessionFrom(t, rec)))
	require.Equal(t, http.StatusOK, me.Code)
	assert.Equal(t, "a@b.com", decode(t, me)["user"].(map[string]interface{})["email"])
}

func TestLogin_AcceptsJSONWithoutJSONContentType(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/auth/register", registerBody, nil).Code)

	for _, ct := range []string{echo.MIMETextPlain, ""} {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			strings.NewReader(`{"email":"a@b.com","password":"pass1234"}`))
		if ct != "" {
			req.Header.Set(echo.HeaderContentType, ct)
		}
		rec := httptest.NewRecorder()
		env.E.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, "content type %q", ct)
		assert.NotEmpty(t, sessionFrom(t, rec))
	}
}

func TestLogin_UnknownEmailAndWrongPasswordAreIdentical(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/auth/register", registerBody, nil).Code)

	unknown := env.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "x@y.com", "password": "pass1234"}, nil)
	wrong := env.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "a@b.com", "password": "nope1234"}, nil)
	empty := env.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "a@b.com"}, nil)

	for _, rec := range []*httptest.ResponseRecorder{unknown, wrong, empty} {
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"Invalid credentials"}`, rec.Body.String())
		assert.Empty(t, rec.Header().Get(echo.HeaderSetCookie))
	}
}

func TestLogin_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	hdr := http.Header{"X-Forwarded-For": []string{"203.0.113.7, 10.0.0.1"}}
	body := map[string]string{"email": "a@b.com", "password": "nope1234"}

	for i := 0; i < 5; i++ {
		rec := env.do(http.MethodPost, "/api/auth/login", body, hdr)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
	}

	rec := env.do(http.MethodPost, "/api/auth/login", body, hdr)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many requests. Please try again later.", decode(t, rec)["error"])
	retry := rec.Header().Get(echo.HeaderRetryAfter)
	assert.NotEmpty(t, retry)
	assert.LessOrEqual(t, len(retry), 3)

	other := env.do(http.MethodPost, "/api/auth/login", body, http.Header{"X-Forwarded-For": []string{"198.51.100.1"}})
	assert.Equal(t, http.StatusUnauthorized, other.Code)
}

func TestLogout_ClearsCookie(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/auth/logout", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.Equal(t, "mind_session=; Path=/; Max-Age=0; HttpOnly; Secure; SameSite=Lax", rec.Header().Get(echo.HeaderSetCookie))
}

func TestMe(t *testing.T) {
	env := newTestEnv(t)

	reg := env.do(http.MethodPost, "/api/auth/register", registerBody, nil)
	require.Equal(t, http.StatusOK, reg.Code)
	token := sessionFrom(t, reg)

	t.Run("no cookie", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/me", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, MsgNotAuthenticated, decode(t, rec)["error"])
	})

	t.Run("wrong signature", func(t *testing.T) {
		forged, err := (&tokens.Codec{Secret: []byte("other-secret")}).Sign("someone", "a@b.com", "admin")
		require.NoError(t, err)

		rec := env.do(http.MethodGet, "/api/me", nil, withCookie(forged))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, MsgInvalidToken, decode(t, rec)["error"])
	})

	t.Run("tampered payload", func(t *testing.T) {
		parts := strings.Split(token, ".")
		tampered := parts[0] + "." + parts[1] + "x." + parts[2]

		rec := env.do(http.MethodGet, "/api/me", nil, withCookie(tampered))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired", func(t *testing.T) {
		old := &tokens.Codec{Secret: []byte("test-jwt-secret"), Now: func() time.Time {
			return time.Now().Add(-tokens.SessionTTL - time.Hour)
		}}
		expired, err := old.Sign("someone", "a@b.com", "admin")
		require.NoError(t, err)

		rec := env.do(http.MethodGet, "/api/me", nil, withCookie(expired))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, MsgInvalidToken, decode(t, rec)["error"])
	})

	t.Run("valid", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/me", nil, http.Header{
			echo.HeaderCookie: []string{"theme=dark; " + cookieName + "=" + token},
		})
		require.Equal(t, http.StatusOK, rec.Code)
		user := decode(t, rec)["user"].(map[string]interface{})
		assert.Equal(t, "a@b.com", user["email"])
		assert.NotContains(t, user, "password_hash")
		assert.Empty(t, rec.Header().Get(echo.HeaderSetCookie))
	})

	t.Run("deleted user", func(t *testing.T) {
		require.NoError(t, env.DB.Where("email = ?", "a@b.com").Delete(&models.User{}).Error)

		rec := env.do(http.MethodGet, "/api/me", nil, withCookie(token))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, MsgUserNotFound, decode(t, rec)["error"])
		assert.Contains(t, rec.Header().Get(echo.HeaderSetCookie), "mind_session=;")
		assert.Contains(t, rec.Header().Get(echo.HeaderSetCookie), "Max-Age=0")
	})
}

func TestUnknownAPIPath(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/patients", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Not found"}`, rec.Body.String())
}

func TestWrongMethodOnAPIPath(t *testing.T) {
	env := newTestEnv(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/auth/login"},
		{http.MethodDelete, "/api/me"},
	} {
		rec := env.do(tc.method, tc.path, nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s", tc.method, tc.path)
		assert.JSONEq(t, `{"error":"Not found"}`, rec.Body.String())
	}
}

func TestUnconfiguredStore(t *testing.T) {
	env := newTestEnvWithStore(t, repo.Unconfigured{Reason: "DATABASE_URL is empty"}, nil)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/auth/register"},
		{http.MethodPost, "/api/auth/login"},
		{http.MethodPost, "/api/auth/logout"},
		{http.MethodGet, "/api/me"},
		{http.MethodGet, "/api/auth/anything"},
	} {
		rec := env.do(tc.method, tc.path, registerBody, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, tc.path)
		assert.Equal(t, MsgNotConfigured, decode(t, rec)["error"], tc.path)
	}

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health/live", nil, nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/health/ready", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/other", nil, nil).Code)
}

func TestHealthReady(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health/ready", nil, nil).Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodOptions, "/api/auth/login", nil, http.Header{
		echo.HeaderOrigin:                     []string{"http://localhost:4200"},
		echo.HeaderAccessControlRequestMethod: []string{http.MethodPost},
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:4200", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "true", rec.Header().Get(echo.HeaderAccessControlAllowCredentials))

	denied := env.do(http.MethodOptions, "/api/auth/login", nil, http.Header{
		echo.HeaderOrigin:                     []string{"https://evil.example"},
		echo.HeaderAccessControlRequestMethod: []string{http.MethodPost},
	})
	assert.Empty(t, denied.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestErrorHandler_HidesInternalErrors(t *testing.T) {
	t.Parallel()

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	ErrorHandler(context.DeadlineExceeded, c)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
}
