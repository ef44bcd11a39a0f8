package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/safespace/server/internal/repo/memrepo"
)

func TestNew_AccountRateLimit(t *testing.T) {
	a := New(MemoryRepos(memrepo.New()), Options{JWTSecret: "secret", AccountRequestsPerWindow: 2})
	defer a.Close()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/signin", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		a.Router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests}, codes)
}

func TestNew_GoogleDisabledByDefault(t *testing.T) {
	a := New(MemoryRepos(memrepo.New()), Options{JWTSecret: "secret"})
	defer a.Close()
	assert.False(t, a.Auth.GoogleEnabled())
}
