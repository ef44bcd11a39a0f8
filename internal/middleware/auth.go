package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/safespace/server/internal/auth"
	"github.com/safespace/server/internal/model"
	"github.com/safespace/server/internal/repo"
)

type contextKey string

const (
	userKey    contextKey = "user"
	claimsKey  contextKey = "claims"
	authErrKey contextKey = "auth_error"
)

// AuthMiddleware validates the bearer token (or the access-token cookie), loads the user and
// attaches user and claims to the context. Requests without a usable token pass through
// anonymously; RequireSession and RequireRole decide what anonymous callers may do.
func AuthMiddleware(jwtService *auth.JWTService, userRepo repo.UserRepo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := tokenFromRequest(r)
			if tokenString == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			claims, err := jwtService.VerifyToken(tokenString)
			if err != nil {
				next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, authErrKey, auth.ErrBadJWT)))
				return
			}

			userID, _ := claims.UserID()
			user, err := userRepo.GetByID(ctx, userID)
			if err != nil {
				authErr := auth.ErrBadJWT
				if errors.Is(err, repo.ErrNotFound) {
					authErr = auth.ErrUserNotFound
				}
				next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, authErrKey, authErr)))
				return
			}

			ctx = context.WithValue(ctx, userKey, &user)
			ctx = context.WithValue(ctx, claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return ""
		}
		return strings.TrimSpace(parts[1])
	}
	if c, err := r.Cookie(AccessTokenCookie); err == nil {
		return c.Value
	}
	return ""
}

// RequireSession rejects anonymous requests with the provider error that explains why
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetUser(r.Context()); !ok {
			WriteAuthError(w, SessionError(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole lets through signed-in users whose role is at least required
func RequireRole(required model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUser(r.Context())
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "Please sign in")
				return
			}
			if !auth.IsAuthorized(user.Role, required) {
				respondWithError(w, http.StatusUnauthorized, "You do not have access to this")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUser returns the user attached to the request context (set by AuthMiddleware)
func GetUser(ctx context.Context) (*model.AuthUser, bool) {
	u, ok := ctx.Value(userKey).(*model.AuthUser)
	return u, ok
}

// GetClaims returns the verified access token claims
func GetClaims(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*auth.Claims)
	return c, ok
}

// SessionError is why the request has no session: a bad token, a deleted user, or no token at all
func SessionError(ctx context.Context) *auth.Error {
	if e, ok := ctx.Value(authErrKey).(*auth.Error); ok {
		return e
	}
	return auth.ErrSessionMissing
}

// WriteAuthError sends a provider error with its status and code
func WriteAuthError(w http.ResponseWriter, e *auth.Error) {
	writeJSON(w, e.Status, errorBody{Status: "error", Message: e.Message, Code: e.Code})
}

type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorBody{Status: "error", Message: message})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
