package auth

import (
	"net/mail"
	"strings"
	"unicode"

	"github.com/Skotchmaster/ums/internal/apperr"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 72 // bcrypt ignores the rest
)

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail accepts a bare address only, without display name.
func ValidateEmail(email string) error {
	e := strings.TrimSpace(email)
	if e == "" || len(e) > 320 {
		return apperr.Validation("email is required")
	}
	addr, err := mail.ParseAddress(e)
	if err != nil || addr.Address != e || !strings.Contains(e[strings.LastIndex(e, "@")+1:], ".") {
		return apperr.Validation("email is invalid")
	}
	return nil
}

// ValidatePassword requires at least 8 characters with a letter and a digit.
func ValidatePassword(pw string) error {
	if len(pw) < minPasswordLen {
		return apperr.Validation("password must be at least 8 characters")
	}
	if len(pw) > maxPasswordLen {
		return apperr.Validation("password must be at most 72 bytes")
	}
	var letter, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return apperr.Validation("password must contain a letter and a digit")
	}
	return nil
}
