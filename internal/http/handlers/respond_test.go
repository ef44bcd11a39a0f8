package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/safespace/server/internal/auth"
	"github.com/safespace/server/internal/errmsg"
	"github.com/safespace/server/internal/middleware"
)

func TestTranslate_clearsCookiesForStaleUser(t *testing.T) {
	rec := httptest.NewRecorder()
	msg := translate(rec, zap.NewNop(), fmt.Errorf("lookup: %w", auth.ErrUserNotFound))
	if msg != errmsg.MsgClearCookies {
		t.Errorf("message = %q", msg)
	}

	cleared := map[string]bool{}
	for _, c := range rec.Result().Cookies() {
		cleared[c.Name] = c.MaxAge < 0
	}
	if !cleared[middleware.AccessTokenCookie] || !cleared[middleware.RefreshTokenCookie] {
		t.Errorf("session cookies not cleared: %v", cleared)
	}
}

func TestTranslate_keepsCookiesOtherwise(t *testing.T) {
	rec := httptest.NewRecorder()
	if msg := translate(rec, zap.NewNop(), auth.ErrInvalidCredentials); msg != errmsg.MsgInvalidLogin {
		t.Errorf("message = %q", msg)
	}
	if n := len(rec.Result().Cookies()); n != 0 {
		t.Errorf("expected no cookies, got %d", n)
	}
}

func TestTranslateOr(t *testing.T) {
	rec := httptest.NewRecorder()
	if msg := translateOr(rec, zap.NewNop(), errors.New("dial tcp: refused"), msgServerError); msg != msgServerError {
		t.Errorf("unmatched error should fall back, got %q", msg)
	}
	if msg := translateOr(rec, zap.NewNop(), auth.ErrEmailExists, msgServerError); msg != errmsg.MsgAccountExists {
		t.Errorf("matched error should translate, got %q", msg)
	}
}

func TestRespondProviderError(t *testing.T) {
	rec := httptest.NewRecorder()
	respondProviderError(rec, zap.NewNop(), auth.ErrFactorNotFound)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	respondProviderError(rec, zap.NewNop(), errors.New("boom"))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
}
