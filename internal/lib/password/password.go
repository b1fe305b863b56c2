package password

import (
	"errors"
	"unicode"
)

const minLength = 8

var (
	ErrTooShort = errors.New("password must be at least 8 characters long")
	ErrTooWeak  = errors.New("password must contain upper case, lower case and a digit")
)

// Validate enforces the minimum-strength policy applied to every password the
// service stores: length plus mixed case plus a digit.
func Validate(plaintext string) error {
	if len(plaintext) < minLength {
		return ErrTooShort
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range plaintext {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if !hasUpper || !hasLower || !hasDigit {
		return ErrTooWeak
	}

	return nil
}
