package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Skotchmaster/mind-auth/internal/cookies"
)

type Config struct {
	Addr     string
	LogLevel string

	DBDriver    string
	DatabaseURL string

	JWTSecret []byte

	CookieName   string
	CookieDomain string
	CookieSecure bool

	AllowOrigins []string

	RateLimitMax    int
	RateLimitWindow time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	ESURL      string
	ESUser     string
	ESPassword string
	ESIndex    string
}

var ErrMissingJWTSecret = errors.New("missing required env JWT_SECRET")

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		slog.Debug("no .env file, using process environment", "error", err)
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Config{
		Addr:     EnvDefault("AUTH_ADDR", ":8787"),
		LogLevel: EnvDefault("LOG_LEVEL", "info"),

		DBDriver:    EnvDefault("DB_DRIVER", "postgres"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTSecret: []byte(os.Getenv("JWT_SECRET")),

		CookieName:   EnvDefault("SESSION_COOKIE_NAME", "mind_session"),
		CookieDomain: os.Getenv("COOKIE_DOMAIN"),
		CookieSecure: EnvBoolDefault("COOKIE_SECURE", true),

		AllowOrigins: CSV(os.Getenv("CORS_ALLOWED_ORIGINS")),

		RateLimitMax:    EnvIntDefault("RATE_LIMIT_MAX", 5),
		RateLimitWindow: EnvDurationDefault("RATE_LIMIT_WINDOW", 15*time.Minute),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   EnvDefault("KAFKA_TOPIC", "user_events"),

		ESURL:      os.Getenv("ES_URL"),
		ESUser:     os.Getenv("ES_USER"),
		ESPassword: os.Getenv("ES_PASSWORD"),
		ESIndex:    EnvDefault("ES_INDEX", "auth_events"),
	}

	if len(cfg.JWTSecret) == 0 {
		return cfg, ErrMissingJWTSecret
	}
	if err := cookies.ValidName(cfg.CookieName); err != nil {
		return cfg, fmt.Errorf("SESSION_COOKIE_NAME: %w", err)
	}
	return cfg, nil
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func EnvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
