package cookies

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Options controls the attributes of a Set-Cookie header. A nil MaxAge
// produces a session cookie.
type Options struct {
	HTTPOnly bool
	Secure   bool
	SameSite http.SameSite
	MaxAge   *int
	Path     string
	Domain   string
}

func DefaultOptions() Options {
	return Options{
		HTTPOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	}
}

// MaxAge converts d to whole seconds for Options.MaxAge.
func MaxAge(d time.Duration) *int {
	s := int(d / time.Second)
	return &s
}

var ErrInvalidName = errors.New("invalid cookie name")

// ValidName reports whether name survives encoding as a Set-Cookie name.
// http.Cookie.String silently renders "" for names that are not tokens.
func ValidName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	if err := Cookie(name, "v", DefaultOptions()).Valid(); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidName, name, err)
	}
	return nil
}

// Build returns a Set-Cookie header value for name=value.
func Build(name, value string, opts Options) string {
	return Cookie(name, value, opts).String()
}

// Clear returns a Set-Cookie header value that tells the client to drop name
// immediately.
func Clear(name string, opts Options) string {
	opts.MaxAge = MaxAge(0)
	return Build(name, "", opts)
}

// Cookie is the http.Cookie behind Build. Name and value are URL-encoded.
func Cookie(name, value string, opts Options) *http.Cookie {
	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteLaxMode
	}

	ck := &http.Cookie{
		Name:     url.PathEscape(name),
		Value:    url.PathEscape(value),
		Path:     opts.Path,
		Domain:   opts.Domain,
		HttpOnly: opts.HTTPOnly,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	}
	if opts.MaxAge != nil {
		if *opts.MaxAge > 0 {
			ck.MaxAge = *opts.MaxAge
		} else {
			// http.Cookie renders a negative MaxAge as "Max-Age=0".
			ck.MaxAge = -1
		}
	}
	return ck
}

// Extract returns the first non-empty value for name in a raw Cookie header.
func Extract(header, name string) (string, bool) {
	if header == "" {
		return "", false
	}

	for _, pair := range strings.Split(header, ";") {
		rawName, rawValue, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		n, err := url.PathUnescape(strings.TrimSpace(rawName))
		if err != nil || n != name {
			continue
		}
		v, err := url.PathUnescape(strings.TrimSpace(rawValue))
		if err != nil || v == "" {
			continue
		}
		return v, true
	}
	return "", false
}
