package handlers

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/safespace/server/internal/auth"
	"github.com/safespace/server/internal/errmsg"
	"github.com/safespace/server/internal/middleware"
)

const (
	msgServerError   = "Server error. Please refresh or try again later"
	msgMissingFields = "Please provide all required information"
	msgWrongType     = "Please provide information of correct data type"
)

// Options are the settings shared by all handlers
type Options struct {
	AppURL        string
	DefaultRoute  string
	RefreshTTL    time.Duration
	SecureCookies bool
	Logger        *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

type statusBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// respondJSON sends v with the given status
func respondJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, statusBody{Status: "error", Message: message})
}

func respondSuccess(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusOK, statusBody{Status: "success", Message: message})
}

// respondProviderError writes provider errors with their own status and code; anything
// else is logged and becomes a 500
func respondProviderError(w http.ResponseWriter, logger *zap.Logger, err error) {
	if e, ok := auth.AsError(err); ok {
		middleware.WriteAuthError(w, e)
		return
	}
	logger.Error("auth provider error", zap.Error(err))
	respondWithError(w, http.StatusInternalServerError, msgServerError)
}

// translate maps err to a user-facing message and performs its session cleanup
func translate(w http.ResponseWriter, logger *zap.Logger, err error) string {
	message, code := errmsg.Extract(err)
	logger.Debug("translating error", zap.String("code", code), zap.String("message", truncate(message, 200)))
	t := errmsg.Translate(message, code)
	applyTranslation(w, t)
	return t.Message
}

// translateOr is translate for errors whose raw text must not reach users: unmatched
// errors yield fallback
func translateOr(w http.ResponseWriter, logger *zap.Logger, err error, fallback string) string {
	message, code := errmsg.Extract(err)
	logger.Debug("translating error", zap.String("code", code), zap.String("message", truncate(message, 200)))
	t := errmsg.Translate(message, code)
	applyTranslation(w, t)
	if t.Message == message {
		return fallback
	}
	return t.Message
}

// applyTranslation carries out the side effect a translation asks for
func applyTranslation(w http.ResponseWriter, t errmsg.Translation) {
	if t.ClearSession {
		middleware.ClearSessionCookies(w)
	}
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// getClientIP returns the client IP. chi's RealIP has already applied proxy headers.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

