// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MySurvey Contributors

package auth

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/samber/oops"
)

// Input constraints.
const (
	MaxEmailLength    = 254
	MinPasswordLength = 8
	// MaxPasswordBytes is bcrypt's input limit.
	MaxPasswordBytes = 72
	MaxNameLength    = 50
)

// Registration is a validated sign-up request. Build it with NewRegistration.
type Registration struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// NewRegistration validates and normalizes sign-up input.
func NewRegistration(email, password, firstName, lastName string) (Registration, error) {
	normalized, err := ValidateEmail(email)
	if err != nil {
		return Registration{}, err
	}
	if err := ValidatePassword(password); err != nil {
		return Registration{}, err
	}
	first, err := ValidateName("firstName", firstName)
	if err != nil {
		return Registration{}, err
	}
	last, err := ValidateName("lastName", lastName)
	if err != nil {
		return Registration{}, err
	}
	return Registration{
		Email:     normalized,
		Password:  password,
		FirstName: first,
		LastName:  last,
	}, nil
}

// ValidateEmail checks an address and returns its normalized (trimmed, lower-cased) form.
func ValidateEmail(email string) (string, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return "", invalidInput("email", "email is required")
	}
	if len(email) > MaxEmailLength {
		return "", invalidInput("email", "email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return "", invalidInput("email", "please provide a valid email address")
	}
	return email, nil
}

// NormalizeEmail trims and lower-cases an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidatePassword enforces the password policy:
// at least MinPasswordLength characters, at most MaxPasswordBytes bytes, and
// at least one upper-case letter, lower-case letter, digit and special character.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return invalidInput("password", "Password must be at least %d characters long", MinPasswordLength)
	}
	if len(password) > MaxPasswordBytes {
		return invalidInput("password", "Password must be at most %d bytes long", MaxPasswordBytes)
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	if !upper || !lower || !digit || !special {
		return invalidInput("password",
			"Password must contain at least one uppercase letter, one lowercase letter, one number and one special character")
	}
	return nil
}

// ValidateName checks a person name field and returns it trimmed.
func ValidateName(field, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalidInput(field, "%s is required", field)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", invalidInput(field, "%s must be at most %d characters", field, MaxNameLength)
	}
	return name, nil
}

func invalidInput(field, format string, args ...any) error {
	return oops.Code(CodeInvalidInput).With("field", field).Errorf(format, args...)
}
