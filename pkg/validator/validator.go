// Package validator holds the request-level input checks the HTTP handlers
// run before anything reaches the lifecycle engine.
package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9._\-]{3,64}$`)

// ValidateAccountName validates a login name: 3 to 64 characters from the
// letter, digit, dot, underscore, hyphen set.
func ValidateAccountName(name string) error {
	if name == "" {
		return errors.New("name is required")
	}
	if !nameRegex.MatchString(name) {
		return errors.New("name must be 3-64 characters of letters, digits, '.', '_' or '-'")
	}
	return nil
}

// ValidatePassword validates a password
func ValidatePassword(password string) error {
	if password == "" {
		return errors.New("password is required")
	}
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters long")
	}
	return nil
}

// ValidateCategory checks a patent classification category is in [1, 10]
func ValidateCategory(category uint64) error {
	if category < 1 || category > 10 {
		return fmt.Errorf("category must be between 1 and 10, got %d", category)
	}
	return nil
}

// ValidateDigest checks a content digest is non-zero
func ValidateDigest(field string, digest uint64) error {
	if digest == 0 {
		return fmt.Errorf("%s digest must be non-zero", field)
	}
	return nil
}

// ValidateRequired validates that a field is not empty
func ValidateRequired(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

// SanitizeString removes null bytes and trims surrounding whitespace
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}

// SanitizeAccountName normalizes a login name for lookup
func SanitizeAccountName(name string) string {
	return strings.ToLower(SanitizeString(name))
}
