// Package ratelimit implements a process-local fixed-window limiter for
// authentication attempts. State lives in memory only: it is lost on restart
// and is not shared between instances.
package ratelimit

import (
	"math"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"
)

// UnknownClient is the bucket shared by every request that carries no client
// address header.
const UnknownClient = "unknown"

type Config struct {
	MaxAttempts   int
	Window        time.Duration
	CleanupChance float64

	Now  func() time.Time
	Roll func() float64
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:   5,
		Window:        15 * time.Minute,
		CleanupChance: 0.1,
		Now:           time.Now,
		Roll:          rand.Float64,
	}
}

type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type entry struct {
	count   int
	resetAt time.Time
}

type Limiter struct {
	cfg Config

	mu      sync.Mutex
	entries map[string]*entry
}

func New(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.CleanupChance < 0 {
		cfg.CleanupChance = 0
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	if cfg.Roll == nil {
		cfg.Roll = def.Roll
	}

	return &Limiter{cfg: cfg, entries: make(map[string]*entry)}
}

// Check records one attempt for key and reports whether it is allowed.
func (l *Limiter) Check(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.cfg.Now()

	if l.cfg.Roll() < l.cfg.CleanupChance {
		l.sweep(now)
	}

	e, ok := l.entries[key]
	if !ok || now.After(e.resetAt) {
		e = &entry{count: 1, resetAt: now.Add(l.cfg.Window)}
		l.entries[key] = e
		return Result{Allowed: true, Remaining: l.cfg.MaxAttempts - 1, ResetAt: e.resetAt}
	}

	e.count++
	if e.count > l.cfg.MaxAttempts {
		return Result{Allowed: false, Remaining: 0, ResetAt: e.resetAt}
	}
	return Result{Allowed: true, Remaining: l.cfg.MaxAttempts - e.count, ResetAt: e.resetAt}
}

// Now exposes the limiter clock so callers compute Retry-After consistently.
func (l *Limiter) Now() time.Time {
	return l.cfg.Now()
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Limiter) sweep(now time.Time) {
	for k, e := range l.entries {
		if now.After(e.resetAt) {
			delete(l.entries, k)
		}
	}
}

// ClientIdentifier picks the rate-limit key for r: CF-Connecting-IP, then the
// first X-Forwarded-For hop, then UnknownClient.
func ClientIdentifier(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	return UnknownClient
}

// RetryAfter returns the whole seconds, rounded up, until resetAt.
func RetryAfter(resetAt, now time.Time) int {
	secs := int(math.Ceil(resetAt.Sub(now).Seconds()))
	if secs < 0 {
		return 0
	}
	return secs
}
