// Package address extracts a canonical email address from free-form cell text.
package address

import (
	"regexp"
	"strings"
)

const (
	minLength = 5
	maxLength = 254
)

var (
	tokenPattern     = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	bracketedPattern = regexp.MustCompile(`<\s*([^<>\s]+@[^<>\s]+)\s*>`)
	shapePattern     = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// FindAll returns every email-shaped token in raw, left to right.
func FindAll(raw string) []string {
	return tokenPattern.FindAllString(raw, -1)
}

// Valid reports whether addr has an acceptable length and shape.
func Valid(addr string) bool {
	if len(addr) < minLength || len(addr) > maxLength {
		return false
	}
	return shapePattern.MatchString(addr)
}

// Extract picks the primary address out of raw. A "Name <addr>" wrapper wins
// over the first bare match. It returns "" when nothing valid is found, along
// with the number of email-shaped tokens seen so callers can flag cells that
// held more than one address.
func Extract(raw string) (string, int) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0
	}

	matches := FindAll(raw)

	candidate := ""
	if m := bracketedPattern.FindStringSubmatch(raw); m != nil {
		inner := tokenPattern.FindString(m[1])
		if inner != "" {
			candidate = inner
		}
	}
	if candidate == "" && len(matches) > 0 {
		candidate = matches[0]
	}

	candidate = strings.TrimSpace(candidate)
	if !Valid(candidate) {
		return "", len(matches)
	}
	return candidate, len(matches)
}

// Key normalizes an address for set membership.
func Key(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
