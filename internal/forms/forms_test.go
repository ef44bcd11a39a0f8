package forms

import (
	"testing"
)

func TestValidateSignIn(t *testing.T) {
	tests := []struct {
		email    string
		password string
		want     error
	}{
		{"", "Secret1!", ErrMissingCredentials},
		{"ana@example.com", "", ErrMissingCredentials},
		{"ana@example", "Secret1!", ErrInvalidEmail},
		{"ana @example.com", "Secret1!", ErrInvalidEmail},
		{"ana@example.com", "ab!", ErrShortPassword},
		{"ana@example.com", "Secret12", ErrNoSpecialChar},
		{"ana@example.com", "Secret 1!", ErrForbiddenChar},
		{"ana@example.com", "Secret;1!", ErrForbiddenChar},
		{"ana@example.com", `Secret\1!`, ErrForbiddenChar},
		{"ana@example.com", "Secret1!", nil},
	}
	for _, tt := range tests {
		if got := ValidateSignIn(tt.email, tt.password); got != tt.want {
			t.Errorf("ValidateSignIn(%q, %q) = %v, want %v", tt.email, tt.password, got, tt.want)
		}
	}
}

func TestValidateSignUp(t *testing.T) {
	if got := ValidateSignUp("ana@example.com", "Secret1!", "  "); got != ErrMissingName {
		t.Errorf("blank name: got %v", got)
	}
	if got := ValidateSignUp("bad", "Secret1!", "Ana"); got != ErrInvalidEmail {
		t.Errorf("bad email: got %v", got)
	}
	if got := ValidateSignUp("ana@example.com", "Secret1!", "Ana"); got != nil {
		t.Errorf("valid: got %v", got)
	}
}

func TestValidateCode(t *testing.T) {
	for _, code := range []string{"", "12345", "1234567", "12a456", " 123456"} {
		if ValidateCode(code) == nil {
			t.Errorf("ValidateCode(%q) accepted", code)
		}
	}
	if err := ValidateCode("012345"); err != nil {
		t.Errorf("ValidateCode(012345) = %v", err)
	}
}
