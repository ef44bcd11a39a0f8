package middleware

import (
	"net/http"
	"time"
)

const (
	AccessTokenCookie  = "ss-access-token"
	RefreshTokenCookie = "ss-refresh-token"
)

// SetSessionCookies stores the token pair as HttpOnly cookies for the web front end
func SetSessionCookies(w http.ResponseWriter, accessToken, refreshToken string, accessTTL, refreshTTL time.Duration, secure bool) {
	http.SetCookie(w, sessionCookie(AccessTokenCookie, accessToken, int(accessTTL.Seconds()), secure))
	http.SetCookie(w, sessionCookie(RefreshTokenCookie, refreshToken, int(refreshTTL.Seconds()), secure))
}

// ClearSessionCookies deletes both session cookies
func ClearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, sessionCookie(AccessTokenCookie, "", -1, false))
	http.SetCookie(w, sessionCookie(RefreshTokenCookie, "", -1, false))
}

func sessionCookie(name, value string, maxAge int, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
