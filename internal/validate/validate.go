// Package validate checks registration input. Every check returns a Result
// carrying the first problem found, worded for the end user.
package validate

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	RoleClinician  = "clinician"
	RoleResearcher = "researcher"
	RoleAdmin      = "admin"
)

const (
	maxEmailLen    = 255
	minPasswordLen = 8
	maxPasswordLen = 128
	minNameLen     = 2
	maxNameLen     = 100
)

var (
	emailRe = regexp.MustCompile("^[a-zA-Z0-9.!#$%&'*+/=?^_`{|}~-]+" +
		`@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?` +
		`(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
	digitRe  = regexp.MustCompile(`[0-9]`)
	letterRe = regexp.MustCompile(`[a-zA-Z]`)
	nameRe   = regexp.MustCompile(`^[a-zA-Z\s'-]+$`)
)

type Result struct {
	Valid bool
	Error string
}

func ok() Result { return Result{Valid: true} }

func fail(msg string) Result { return Result{Error: msg} }

func Email(email string) Result {
	trimmed := strings.TrimSpace(email)
	switch {
	case trimmed == "":
		return fail("Email is required")
	case utf8.RuneCountInString(trimmed) > maxEmailLen:
		return fail("Email is too long")
	case !emailRe.MatchString(trimmed):
		return fail("Invalid email format")
	}
	return ok()
}

// Password is checked untrimmed: surrounding spaces are part of the secret.
func Password(password string) Result {
	n := utf8.RuneCountInString(password)
	switch {
	case password == "":
		return fail("Password is required")
	case n < minPasswordLen:
		return fail("Password must be at least 8 characters")
	case n > maxPasswordLen:
		return fail("Password is too long")
	case !digitRe.MatchString(password):
		return fail("Password must contain at least one number")
	case !letterRe.MatchString(password):
		return fail("Password must contain at least one letter")
	}
	return ok()
}

func FullName(name string) Result {
	trimmed := strings.TrimSpace(name)
	n := utf8.RuneCountInString(trimmed)
	switch {
	case trimmed == "":
		return fail("Full name is required")
	case n < minNameLen:
		return fail("Full name must be at least 2 characters")
	case n > maxNameLen:
		return fail("Full name is too long")
	case !nameRe.MatchString(trimmed):
		return fail("Full name contains invalid characters")
	}
	return ok()
}

func Role(role string) Result {
	switch role {
	case "":
		return fail("Role is required")
	case RoleClinician, RoleResearcher, RoleAdmin:
		return ok()
	}
	return fail("Invalid role. Must be clinician, researcher, or admin")
}

// NormalizeEmail is the form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
