// Package errmsg turns raw provider and database errors into messages fit for users.
package errmsg

import (
	"errors"

	"github.com/lib/pq"
)

const (
	MsgConfirmEmail      = "Please confirm your email"
	MsgSignInFirst       = "Please sign in first"
	MsgWeakPassword      = "Password must contain: lower and upper case letters, at least 1 number, and at least 1 special character"
	MsgClearCookies      = "Please clear your cookies and sign in again"
	MsgInvalidLogin      = "Invalid login credentials. Please try again"
	MsgConfirmEmailFirst = "Please confirm your email first"
	MsgAccountExists     = "An account with that email already exists. Sign in instead?"
	MsgIdentityLinked    = "That account is already linked to another account. Try another account"
)

// Translation is a user-facing message. ClearSession asks the caller to drop the stored
// session (cookies on the server, the token file in the terminal client).
type Translation struct {
	Message      string
	ClearSession bool
}

type rule struct {
	message string
	codes   []string
	out     string
	clear   bool
}

// Rules are checked in order and the last match wins.
var rules = []rule{
	{message: "email_not_confirmed", out: MsgConfirmEmail},
	{message: "Auth session missing!", out: MsgSignInFirst},
	{codes: []string{"weak_password"}, out: MsgWeakPassword},
	{codes: []string{"user_not_found"}, out: MsgClearCookies, clear: true},
	{message: "Invalid login credentials", out: MsgInvalidLogin},
	{message: "Email not confirmed", out: MsgConfirmEmailFirst},
	{codes: []string{"P2002", "23505", "email_exists"}, out: MsgAccountExists},
	{codes: []string{"identity_already_exists"}, out: MsgIdentityLinked},
}

func (r rule) matches(message, code string) bool {
	if r.message != "" {
		return message == r.message
	}
	for _, c := range r.codes {
		if code == c {
			return true
		}
	}
	return false
}

// Translate maps a raw (message, code) pair. Unmatched input is returned unchanged.
func Translate(message, code string) Translation {
	t := Translation{Message: message}
	for _, r := range rules {
		if r.matches(message, code) {
			t.Message = r.out
			t.ClearSession = t.ClearSession || r.clear
		}
	}
	return t
}

type coder interface {
	ErrorCode() string
}

// Extract returns the message and machine-readable code carried by err.
// Provider errors expose ErrorCode, postgres errors their SQLSTATE.
func Extract(err error) (message, code string) {
	if err == nil {
		return "", ""
	}
	var c coder
	if errors.As(err, &c) {
		return messageOf(c, err), c.ErrorCode()
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Message, string(pqErr.Code)
	}
	return err.Error(), ""
}

func messageOf(c coder, err error) string {
	if e, ok := c.(error); ok {
		return e.Error()
	}
	return err.Error()
}

// TranslateErr is Translate applied to Extract(err)
func TranslateErr(err error) Translation {
	return Translate(Extract(err))
}
