package domain

import (
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeEmail trims and lowercases an address. Gateway list values are
// case-sensitive, so every add/remove must use the same casing.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail normalizes email and checks its shape.
func ValidateEmail(field, email string) (string, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return "", NewValidationError(field, "Missing email address")
	}
	if !emailPattern.MatchString(normalized) {
		return "", NewValidationError(field, "Invalid email address")
	}
	return normalized, nil
}
