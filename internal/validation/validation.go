package validation

import (
	"errors"
	"regexp"
	"strings"
)

var (
	emailRegex   = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	nameRegex    = regexp.MustCompile(`^[a-zA-Z\s'-]{1,100}$`)
	companyRegex = regexp.MustCompile(`^[a-zA-Z0-9\s&.,'-]{1,200}$`)
	phoneRegex   = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
	phoneStrip   = regexp.MustCompile(`[\s()-]`)

	upperRegex   = regexp.MustCompile(`[A-Z]`)
	lowerRegex   = regexp.MustCompile(`[a-z]`)
	digitRegex   = regexp.MustCompile(`[0-9]`)
	specialRegex = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)
)

// SanitizeString strips control characters and surrounding whitespace.
func SanitizeString(input string) string {
	var b strings.Builder
	for _, r := range input {
		if r < 0x20 || r == 0x7F {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func ValidateEmail(email string) bool {
	return emailRegex.MatchString(email) && len(email) <= 254
}

// ValidatePassword enforces the registration password policy. The error
// message names the first failing rule so the client can correct it.
func ValidatePassword(password string) error {
	switch {
	case len(password) < 8:
		return errors.New("Password must be at least 8 characters")
	case len(password) > 128:
		return errors.New("Password is too long")
	case !upperRegex.MatchString(password):
		return errors.New("Password must contain an uppercase letter")
	case !lowerRegex.MatchString(password):
		return errors.New("Password must contain a lowercase letter")
	case !digitRegex.MatchString(password):
		return errors.New("Password must contain a number")
	case !specialRegex.MatchString(password):
		return errors.New("Password must contain a special character")
	}
	return nil
}

// ValidateName accepts letters, spaces, hyphens, and apostrophes.
func ValidateName(name string) bool {
	return nameRegex.MatchString(name)
}

func ValidateCompany(company string) bool {
	return companyRegex.MatchString(company)
}

// ValidatePhone checks E.164-style numbers, tolerating common
// punctuation like spaces, parentheses, and dashes.
func ValidatePhone(phone string) bool {
	return phoneRegex.MatchString(phoneStrip.ReplaceAllString(phone, ""))
}
