package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/profile/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/api/profile/{id}", http.MethodGet, "418"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/profile/abc", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/api/profile/{id}", http.MethodGet, "418"))
	assert.Equal(t, before+1, after)
}

func TestHandlerServesMetrics(t *testing.T) {
	AuthEventsTotal.WithLabelValues("SIGNED_IN").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "safespace_auth_events_total")
}
