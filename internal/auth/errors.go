package auth

import (
	"errors"
	"net/http"
)

// Error is a provider error carrying an HTTP status and a stable machine-readable code
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Message }

// ErrorCode returns the machine-readable code
func (e *Error) ErrorCode() string { return e.Code }

// Is matches any *Error with the same code, so wrapped copies still satisfy errors.Is
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrInvalidCredentials = &Error{http.StatusBadRequest, "invalid_credentials", "Invalid login credentials"}
	ErrEmailNotConfirmed  = &Error{http.StatusBadRequest, "email_not_confirmed", "Email not confirmed"}
	ErrWeakPassword       = &Error{http.StatusUnprocessableEntity, "weak_password",
		"Password should contain at least one character of each: lower case, upper case, digit, special character"}
	ErrEmailExists       = &Error{http.StatusUnprocessableEntity, "email_exists", "A user with this email address has already been registered"}
	ErrValidation        = &Error{http.StatusBadRequest, "validation_failed", "Unable to validate email address: invalid format"}
	ErrUserNotFound      = &Error{http.StatusNotFound, "user_not_found", "User from sub claim in JWT does not exist"}
	ErrSessionMissing    = &Error{http.StatusUnauthorized, "session_not_found", "Auth session missing!"}
	ErrBadJWT            = &Error{http.StatusUnauthorized, "bad_jwt", "invalid JWT: unable to parse or verify signature"}
	ErrInvalidRefresh    = &Error{http.StatusUnauthorized, "refresh_token_not_found", "Invalid Refresh Token: Refresh Token Not Found"}
	ErrRefreshTokenReuse = &Error{http.StatusUnauthorized, "refresh_token_already_used", "Invalid Refresh Token: Already Used"}
	ErrFactorNotFound    = &Error{http.StatusNotFound, "mfa_factor_not_found", "Factor not found"}
	ErrChallengeNotFound = &Error{http.StatusNotFound, "mfa_challenge_not_found", "Challenge not found"}
	ErrChallengeExpired  = &Error{http.StatusUnprocessableEntity, "mfa_challenge_expired", "MFA challenge has expired, verify against another challenge or create a new factor"}
	ErrVerificationFail  = &Error{http.StatusUnprocessableEntity, "mfa_verification_failed", "Invalid TOTP code entered"}
	ErrTooManyAttempts   = &Error{http.StatusTooManyRequests, "over_request_rate_limit", "Too many attempts, try again later"}
	ErrInsufficientAAL   = &Error{http.StatusForbidden, "insufficient_aal", "AAL2 required to unenroll a verified factor"}
	ErrIdentityExists    = &Error{http.StatusUnprocessableEntity, "identity_already_exists", "Identity is already linked to another user"}
	ErrProviderDisabled  = &Error{http.StatusBadRequest, "provider_disabled", "Unsupported provider: provider is not enabled"}
	ErrBadOAuthState     = &Error{http.StatusBadRequest, "bad_oauth_state", "OAuth state parameter missing or expired"}
	ErrBadOAuthCallback  = &Error{http.StatusBadRequest, "bad_oauth_callback", "OAuth callback is missing the authorization code"}
)

// AsError returns the provider error wrapped in err, if any
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
