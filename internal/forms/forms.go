// Package forms validates terminal input before it is sent to the API.
package forms

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrMissingCredentials = errors.New("Email and password are required.")
	ErrInvalidEmail       = errors.New("Please enter a valid email address.")
	ErrShortPassword      = errors.New("Password must be at least 6 characters")
	ErrNoSpecialChar      = errors.New("Password must contain at least one special character.")
	ErrForbiddenChar      = errors.New("Password contains invalid characters.")
	ErrInvalidCode        = errors.New("Please enter the 6-digit code from your authenticator app")
	ErrMissingName        = errors.New("Please enter your name")
)

const minPasswordLength = 6

var (
	emailPattern     = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	specialPattern   = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)
	forbiddenPattern = regexp.MustCompile(`[\s'";\\]`)
	codePattern      = regexp.MustCompile(`^[0-9]{6}$`)
)

// ValidateSignIn checks credentials in the order the user would fix them
func ValidateSignIn(email, password string) error {
	if email == "" || password == "" {
		return ErrMissingCredentials
	}
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return ErrShortPassword
	}
	if !specialPattern.MatchString(password) {
		return ErrNoSpecialChar
	}
	if forbiddenPattern.MatchString(password) {
		return ErrForbiddenChar
	}
	return nil
}

// ValidateSignUp is ValidateSignIn plus a non-blank name
func ValidateSignUp(email, password, name string) error {
	if err := ValidateSignIn(email, password); err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		return ErrMissingName
	}
	return nil
}

// ValidateCode accepts exactly six digits
func ValidateCode(code string) error {
	if !codePattern.MatchString(code) {
		return ErrInvalidCode
	}
	return nil
}
