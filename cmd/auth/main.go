package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/mind-auth/internal/config"
	"github.com/Skotchmaster/mind-auth/internal/cookies"
	"github.com/Skotchmaster/mind-auth/internal/db"
	"github.com/Skotchmaster/mind-auth/internal/es"
	"github.com/Skotchmaster/mind-auth/internal/events"
	"github.com/Skotchmaster/mind-auth/internal/httpserver"
	"github.com/Skotchmaster/mind-auth/internal/logging"
	"github.com/Skotchmaster/mind-auth/internal/mykafka"
	"github.com/Skotchmaster/mind-auth/internal/ratelimit"
	"github.com/Skotchmaster/mind-auth/internal/repo"
	"github.com/Skotchmaster/mind-auth/internal/service"
	"github.com/Skotchmaster/mind-auth/internal/tokens"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, closeStore := openStore(initCtx, cfg, logger)
	defer closeStore()

	publisher, closePublisher := openPublishers(initCtx, cfg, logger)
	defer closePublisher()

	codec := &tokens.Codec{Secret: cfg.JWTSecret}

	cookieOpts := cookies.DefaultOptions()
	cookieOpts.Secure = cfg.CookieSecure
	cookieOpts.Domain = cfg.CookieDomain

	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.MaxAttempts = cfg.RateLimitMax
	limiterCfg.Window = cfg.RateLimitWindow

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler: &httpserver.AuthHTTP{
			Svc: &service.AuthService{
				Users:  store,
				Tokens: codec,
				Events: publisher,
			},
			CookieName: cfg.CookieName,
			CookieOpts: cookieOpts,
		},
		Limiter:      ratelimit.New(limiterCfg),
		Store:        store,
		Logger:       logger,
		AllowOrigins: cfg.AllowOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		logger.Info("auth service listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
	}
	logger.Info("auth service stopped")
}

// openStore falls back to an unconfigured store when DATABASE_URL is empty so
// the process still serves health checks and answers 503 on auth routes.
func openStore(ctx context.Context, cfg config.Config, l *slog.Logger) (repo.UserStore, func()) {
	if cfg.DatabaseURL == "" {
		l.Warn("DATABASE_URL is empty, auth routes will answer 503")
		return repo.Unconfigured{Reason: "DATABASE_URL is empty"}, func() {}
	}

	gdb, err := db.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		l.Error("db init error", "driver", cfg.DBDriver, "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(gdb); err != nil {
		l.Error("db migrate error", "error", err)
		os.Exit(1)
	}

	return &repo.GormRepo{DB: gdb}, func() {
		if err := db.Close(gdb); err != nil {
			l.Warn("db close", "error", err)
		}
	}
}

func openPublishers(ctx context.Context, cfg config.Config, l *slog.Logger) (events.Publisher, func()) {
	var (
		pubs    events.Multi
		closers []func()
	)

	if len(cfg.KafkaBrokers) > 0 {
		prod, err := mykafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			l.Error("kafka producer init", "error", err)
			os.Exit(1)
		}
		pubs = append(pubs, prod)
		closers = append(closers, func() {
			if err := prod.Close(); err != nil {
				l.Warn("kafka producer close", "error", err)
			}
		})
	}

	if cfg.ESURL != "" {
		client, err := es.NewClient(ctx, es.Config{URL: cfg.ESURL, User: cfg.ESUser, Password: cfg.ESPassword}, l)
		if err != nil {
			// Audit indexing is optional; the service runs without it.
			l.Warn("elasticsearch unavailable, auth events will not be indexed", "error", err)
		} else {
			pubs = append(pubs, &es.Indexer{Client: client, Index: cfg.ESIndex})
		}
	}

	if len(pubs) == 0 {
		return events.Nop{}, func() {}
	}
	return pubs, func() {
		for _, c := range closers {
			c()
		}
	}
}
