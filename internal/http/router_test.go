package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safespace/server/internal/auth"
	"github.com/safespace/server/internal/errmsg"
	"github.com/safespace/server/internal/http/handlers"
	"github.com/safespace/server/internal/middleware"
	"github.com/safespace/server/internal/model"
	"github.com/safespace/server/internal/repo"
	"github.com/safespace/server/internal/repo/memrepo"
)

const (
	testPassword = "Secret1!"
	testAppURL   = "http://app.test"
)

type testEnv struct {
	t      *testing.T
	router *chi.Mux
	store  *memrepo.Store
	svc    *auth.AuthService
}

type envOption func(*envConfig)

type envConfig struct {
	authOpts auth.Options
	profiles func(repo.ProfileRepo) repo.ProfileRepo
}

func withEmailConfirmation() envOption {
	return func(c *envConfig) { c.authOpts.RequireEmailConfirmation = true }
}

func withGoogle(tokens map[string]auth.GoogleClaims) envOption {
	return func(c *envConfig) { c.authOpts.Google = idTokenProvider(tokens) }
}

// idTokenProvider accepts the ID tokens it was built with; linking is not exercised here
type idTokenProvider map[string]auth.GoogleClaims

func (p idTokenProvider) AuthCodeURL(uuid.UUID) (string, error) {
	return "", auth.ErrProviderDisabled
}

func (p idTokenProvider) Exchange(context.Context, string, string) (uuid.UUID, auth.GoogleClaims, error) {
	return uuid.Nil, auth.GoogleClaims{}, auth.ErrBadOAuthState
}

func (p idTokenProvider) VerifyIDToken(_ context.Context, raw string) (auth.GoogleClaims, error) {
	claims, ok := p[raw]
	if !ok {
		return auth.GoogleClaims{}, auth.ErrBadJWT
	}
	return claims, nil
}

func withProfiles(wrap func(repo.ProfileRepo) repo.ProfileRepo) envOption {
	return func(c *envConfig) { c.profiles = wrap }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	cfg := envConfig{profiles: func(p repo.ProfileRepo) repo.ProfileRepo { return p }}
	for _, o := range opts {
		o(&cfg)
	}

	store := memrepo.New()
	jwtService := auth.NewJWTService("test-secret", time.Hour)
	svc := auth.NewAuthService(jwtService, auth.Repos{
		Users:      store.Users(),
		Identities: store.Identities(),
		Factors:    store.Factors(),
		Challenges: store.Challenges(),
		Refresh:    store.Refresh(),
	}, cfg.authOpts)

	hopts := handlers.Options{AppURL: testAppURL, DefaultRoute: "/", RefreshTTL: 24 * time.Hour}
	authHandler := handlers.NewAuthHandler(svc, store.Profiles(), hopts)
	t.Cleanup(authHandler.Close)

	router := NewRouter(Handlers{
		Auth:     authHandler,
		Account:  handlers.NewAccountHandler(svc, cfg.profiles(store.Profiles()), hopts),
		Profile:  handlers.NewProfileHandler(store.Profiles(), hopts),
		Location: handlers.NewLocationHandler(store.Locations(), hopts),
		Rating:   handlers.NewRatingHandler(store.Ratings(), hopts),
	}, RouterConfig{JWT: jwtService, Users: store.Users(), AllowedOrigins: []string{testAppURL}})

	return &testEnv{t: t, router: router, store: store, svc: svc}
}

func (e *testEnv) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type statusBody struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	Code        string `json:"code"`
	RedirectURL string `json:"redirectUrl"`
}

// signUp registers a user through the API and returns an access token
func (e *testEnv) signUp(email string) string {
	e.t.Helper()
	rec := e.do(nethttp.MethodPost, "/api/signup", map[string]string{"email": email, "password": testPassword, "name": "Ana"}, "")
	require.Equal(e.t, nethttp.StatusOK, rec.Code, rec.Body.String())
	return e.passwordGrant(email).AccessToken
}

func (e *testEnv) passwordGrant(email string) auth.Session {
	e.t.Helper()
	rec := e.do(nethttp.MethodPost, "/auth/v1/token?grant_type=password", map[string]string{"email": email, "password": testPassword}, "")
	require.Equal(e.t, nethttp.StatusOK, rec.Code, rec.Body.String())
	return decode[auth.Session](e.t, rec)
}

// tokenForRole creates a user with a profile directly in the store
func (e *testEnv) tokenForRole(role model.Role) string {
	e.t.Helper()
	ctx := context.Background()
	user, err := e.store.Users().Create(ctx, model.AuthUser{Email: uuid.NewString() + "@example.com", Role: role})
	require.NoError(e.t, err)
	_, err = e.store.Profiles().Create(ctx, model.Profile{ID: user.ID, Email: user.Email})
	require.NoError(e.t, err)
	token, _, err := e.svc.JWT().SignAccessToken(user, model.AAL1, []string{"password"}, uuid.New())
	require.NoError(e.t, err)
	return token
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(nethttp.MethodGet, "/health", nil, "")
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

func TestSignUpAndSignIn(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(nethttp.MethodPost, "/api/signup", map[string]string{"email": "ana@example.com", "password": testPassword, "name": "Ana"}, "")
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())
	body := decode[statusBody](t, rec)
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, "Welcome Ana. Please confirm your email", body.Message)
	assert.Equal(t, "/enable-mfa", body.RedirectURL)

	user, err := env.store.Users().GetByEmail(context.Background(), "ana@example.com")
	require.NoError(t, err)
	profile, err := env.store.Profiles().GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", *profile.Name)

	rec = env.do(nethttp.MethodPost, "/api/signin", map[string]string{"email": "ana@example.com", "password": testPassword}, "")
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "/", decode[statusBody](t, rec).RedirectURL)
	names := map[string]bool{}
	for _, c := range rec.Result().Cookies() {
		names[c.Name] = c.Value != ""
	}
	assert.True(t, names[middleware.AccessTokenCookie])
	assert.True(t, names[middleware.RefreshTokenCookie])
}

func TestSignUp_errors(t *testing.T) {
	env := newTestEnv(t)
	env.signUp("ana@example.com")

	tests := []struct {
		name    string
		body    map[string]any
		message string
	}{
		{"missing name", map[string]any{"email": "bo@example.com", "password": testPassword}, "Not all fields provided: email, password, name"},
		{"duplicate", map[string]any{"email": "ana@example.com", "password": testPassword, "name": "Ana"}, errmsg.MsgAccountExists},
		{"weak password", map[string]any{"email": "bo@example.com", "password": "password", "name": "Bo"}, errmsg.MsgWeakPassword},
		{"wrong types", map[string]any{"email": 42, "password": testPassword, "name": "Bo"}, "Please provide information of correct data type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(nethttp.MethodPost, "/api/signup", tt.body, "")
			assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
			body := decode[statusBody](t, rec)
			assert.Equal(t, "error", body.Status)
			assert.Equal(t, tt.message, body.Message)
		})
	}
}

type failingProfiles struct {
	repo.ProfileRepo
}

func (failingProfiles) Upsert(context.Context, model.Profile) (model.Profile, error) {
	return model.Profile{}, errors.New("connection reset by peer")
}

func TestSignUp_rollsBackIdentityWhenProfileFails(t *testing.T) {
	env := newTestEnv(t, withProfiles(func(p repo.ProfileRepo) repo.ProfileRepo { return failingProfiles{p} }))

	rec := env.do(nethttp.MethodPost, "/api/signup", map[string]string{"email": "ana@example.com", "password": testPassword, "name": "Ana"}, "")
	assert.Equal(t, nethttp.StatusInternalServerError, rec.Code)
	body := decode[statusBody](t, rec)
	assert.Equal(t, "error", body.Status)
	assert.NotContains(t, body.Message, "connection reset")

	_, err := env.store.Users().GetByEmail(context.Background(), "ana@example.com")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestSignIn_errors(t *testing.T) {
	env := newTestEnv(t)
	env.signUp("ana@example.com")

	rec := env.do(nethttp.MethodPost, "/api/signin", map[string]string{"email": "ana@example.com", "password": "Wrong1!x"}, "")
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	assert.Equal(t, errmsg.MsgInvalidLogin, decode[statusBody](t, rec).Message)

	rec = env.do(nethttp.MethodPost, "/api/signin", map[string]string{"email": "ana@example.com"}, "")
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please provide all required information", decode[statusBody](t, rec).Message)
}

func TestSignIn_unconfirmedEmail(t *testing.T) {
	env := newTestEnv(t, withEmailConfirmation())
	rec := env.do(nethttp.MethodPost, "/api/signup", map[string]string{"email": "ana@example.com", "password": testPassword, "name": "Ana"}, "")
	require.Equal(t, nethttp.StatusOK, rec.Code)

	rec = env.do(nethttp.MethodPost, "/api/signin", map[string]string{"email": "ana@example.com", "password": testPassword}, "")
	assert.Equal(t, nethttp.StatusAccepted, rec.Code)
	assert.Equal(t, errmsg.MsgConfirmEmailFirst, decode[statusBody](t, rec).Message)
}

func createLocation(t *testing.T, env *testEnv, token string) uuid.UUID {
	t.Helper()
	rec := env.do(nethttp.MethodPost, "/api/location", map[string]any{
		"name": "Main St", "description": "well lit", "latitude": 52.52, "longitude": "13.405",
	}, token)
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())
	body := decode[struct {
		Status     string    `json:"status"`
		LocationID uuid.UUID `json:"locationId"`
	}](t, rec)
	assert.Equal(t, "success", body.Status)
	return body.LocationID
}

func TestLocation_authorization(t *testing.T) {
	env := newTestEnv(t)
	location := map[string]any{"name": "Park", "description": "", "latitude": 1, "longitude": 2}

	rec := env.do(nethttp.MethodPost, "/api/location", location, "")
	assert.Equal(t, nethttp.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Please sign in", decode[statusBody](t, rec).Message)

	rec = env.do(nethttp.MethodPost, "/api/location", location, env.tokenForRole(model.RoleGuest))
	assert.Equal(t, nethttp.StatusUnauthorized, rec.Code)
	assert.Equal(t, "You do not have access to this", decode[statusBody](t, rec).Message)

	rec = env.do(nethttp.MethodPost, "/api/location", location, env.tokenForRole(model.RoleAdmin))
	assert.Equal(t, nethttp.StatusOK, rec.Code)
}

func TestLocation_validation(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenForRole(model.RoleUser)

	for name, body := range map[string]map[string]any{
		"name not string": {"name": 1, "description": "", "latitude": 1, "longitude": 2},
		"lat not number":  {"name": "x", "description": "", "latitude": "north", "longitude": 2},
		"lat range":       {"name": "x", "description": "", "latitude": 91, "longitude": 2},
		"missing lng":     {"name": "x", "description": "", "latitude": 1},
	} {
		rec := env.do(nethttp.MethodPost, "/api/location", body, token)
		assert.Equal(t, nethttp.StatusBadRequest, rec.Code, name)
		assert.Equal(t, "Please provide information of correct data type", decode[statusBody](t, rec).Message, name)
	}
}

func TestRating_validation(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenForRole(model.RoleGuest)
	locationID := createLocation(t, env, env.tokenForRole(model.RoleUser))
	now := time.Now().UTC().Format(time.RFC3339)

	tests := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"rating 0", map[string]any{"locationId": locationID, "rating": 0, "time": now}, nethttp.StatusBadRequest},
		{"rating 6", map[string]any{"locationId": locationID, "rating": 6, "time": now}, nethttp.StatusBadRequest},
		{"rating 1", map[string]any{"locationId": locationID, "rating": 1, "time": now}, nethttp.StatusOK},
		{"rating 5", map[string]any{"locationId": locationID, "rating": 5, "time": now, "description": "fine"}, nethttp.StatusOK},
		{"numeric string", map[string]any{"locationId": locationID, "rating": "3", "time": now}, nethttp.StatusOK},
		{"fractional", map[string]any{"locationId": locationID, "rating": 2.5, "time": now}, nethttp.StatusBadRequest},
		{"bad time", map[string]any{"locationId": locationID, "rating": 3, "time": "not-a-date"}, nethttp.StatusBadRequest},
		{"bad location id", map[string]any{"locationId": "nope", "rating": 3, "time": now}, nethttp.StatusBadRequest},
		{"unknown location", map[string]any{"locationId": uuid.New(), "rating": 3, "time": now}, nethttp.StatusBadRequest},
		{"description not string", map[string]any{"locationId": locationID, "rating": 3, "time": now, "description": 7}, nethttp.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(nethttp.MethodPost, "/api/rating", tt.body, token)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status == nethttp.StatusBadRequest {
				assert.Equal(t, "Please provide information of correct data type", decode[statusBody](t, rec).Message)
			}
		})
	}

	rec := env.do(nethttp.MethodPost, "/api/rating", map[string]any{"locationId": locationID, "rating": 3, "time": now}, "")
	assert.Equal(t, nethttp.StatusUnauthorized, rec.Code)
}

func TestRatingsAppearOnLocations(t *testing.T) {
	env := newTestEnv(t)
	userToken := env.signUp("ana@example.com")
	locationID := createLocation(t, env, userToken)

	rec := env.do(nethttp.MethodPost, "/api/rating", map[string]any{
		"locationId": locationID, "rating": 4, "time": "2025-03-01T20:15", "description": "busy at night",
	}, userToken)
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(nethttp.MethodGet, "/api/location", nil, "")
	require.Equal(t, nethttp.StatusOK, rec.Code)
	locations := decode[struct {
		Locations []model.Location `json:"locations"`
	}](t, rec).Locations
	require.Len(t, locations, 1)
	require.Len(t, locations[0].Ratings, 1)
	r := locations[0].Ratings[0]
	assert.Equal(t, 4, r.Value)
	require.NotNil(t, r.User)
	assert.Equal(t, "Ana", *r.User.Name)

	rec = env.do(nethttp.MethodGet, "/api/rating", nil, userToken)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Len(t, decode[struct {
		Ratings []model.Rating `json:"ratings"`
	}](t, rec).Ratings, 1)
}

func TestProfile(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()

	rec := env.do(nethttp.MethodGet, "/api/profile/"+id.String(), nil, "")
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":null}`, rec.Body.String())

	rec = env.do(nethttp.MethodGet, "/api/profile/not-a-uuid", nil, "")
	assert.JSONEq(t, `{"user":null}`, rec.Body.String())

	rec = env.do(nethttp.MethodPost, "/api/profile", map[string]any{"email": "g@example.com"}, "")
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please provide all required information", decode[statusBody](t, rec).Message)

	rec = env.do(nethttp.MethodPost, "/api/profile", map[string]any{"userId": id, "email": "g@example.com", "name": "Gus"}, "")
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, "Successfully signed up with Google", decode[statusBody](t, rec).Message)

	rec = env.do(nethttp.MethodGet, "/api/profile/"+id.String(), nil, "")
	profile := decode[struct {
		User *model.Profile `json:"user"`
	}](t, rec)
	require.NotNil(t, profile.User)
	assert.Equal(t, "g@example.com", profile.User.Email)
}

func TestGoogleSignUpCanRate(t *testing.T) {
	env := newTestEnv(t, withGoogle(map[string]auth.GoogleClaims{
		"tok-gus": {Subject: "g-7", Email: "gus@gmail.com", EmailVerified: true, Name: "Gus"},
	}))
	locationID := createLocation(t, env, env.signUp("ana@example.com"))

	rec := env.do(nethttp.MethodPost, "/auth/v1/token?grant_type=id_token", map[string]string{"provider": "google", "id_token": "tok-gus"}, "")
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())
	session := decode[auth.Session](t, rec)
	require.NotNil(t, session.User)

	rec = env.do(nethttp.MethodGet, "/api/profile/"+session.User.ID.String(), nil, "")
	profile := decode[struct {
		User *model.Profile `json:"user"`
	}](t, rec)
	require.NotNil(t, profile.User)
	assert.Equal(t, "gus@gmail.com", profile.User.Email)
	require.NotNil(t, profile.User.Name)
	assert.Equal(t, "Gus", *profile.User.Name)

	rec = env.do(nethttp.MethodPost, "/api/rating", map[string]any{
		"locationId": locationID, "rating": 5, "time": time.Now().UTC().Format(time.RFC3339),
	}, session.AccessToken)
	assert.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())

	// a second sign-in and the web client's profile call leave the profile intact
	rec = env.do(nethttp.MethodPost, "/auth/v1/token?grant_type=id_token", map[string]string{"id_token": "tok-gus"}, "")
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())
	rec = env.do(nethttp.MethodPost, "/api/profile", map[string]any{"userId": session.User.ID, "email": "gus@gmail.com"}, "")
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())
	stored, err := env.store.Profiles().GetByID(context.Background(), session.User.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Name)
	assert.Equal(t, "Gus", *stored.Name)
}

func TestProviderMFAFlow(t *testing.T) {
	env := newTestEnv(t)
	env.signUp("ana@example.com")
	session := env.passwordGrant("ana@example.com")

	type aal struct {
		CurrentLevel model.AAL `json:"currentLevel"`
		NextLevel    model.AAL `json:"nextLevel"`
	}
	rec := env.do(nethttp.MethodGet, "/auth/v1/aal", nil, session.AccessToken)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, aal{model.AAL1, model.AAL1}, decode[aal](t, rec))

	rec = env.do(nethttp.MethodPost, "/auth/v1/factors", map[string]string{"factor_type": "totp"}, session.AccessToken)
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())
	enrollment := decode[model.Enrollment](t, rec)
	assert.Contains(t, enrollment.TOTP.QRCode, "data:image/png;base64,")

	rec = env.do(nethttp.MethodGet, "/auth/v1/factors", nil, session.AccessToken)
	factors := decode[model.FactorList](t, rec)
	assert.Len(t, factors.All, 1)
	assert.Empty(t, factors.TOTP)

	rec = env.do(nethttp.MethodPost, "/auth/v1/factors/"+enrollment.ID.String()+"/challenge", nil, session.AccessToken)
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())
	challenge := decode[struct {
		ID uuid.UUID `json:"id"`
	}](t, rec)

	code, err := totp.GenerateCode(enrollment.TOTP.Secret, time.Now())
	require.NoError(t, err)
	rec = env.do(nethttp.MethodPost, "/auth/v1/factors/"+enrollment.ID.String()+"/verify",
		map[string]string{"challenge_id": challenge.ID.String(), "code": code}, session.AccessToken)
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())
	upgraded := decode[auth.Session](t, rec)

	rec = env.do(nethttp.MethodGet, "/auth/v1/aal", nil, upgraded.AccessToken)
	assert.Equal(t, aal{model.AAL2, model.AAL2}, decode[aal](t, rec))
	rec = env.do(nethttp.MethodGet, "/auth/v1/aal", nil, session.AccessToken)
	assert.Equal(t, aal{model.AAL1, model.AAL2}, decode[aal](t, rec), "old token still reports aal1")

	rec = env.do(nethttp.MethodPost, "/auth/v1/token?grant_type=refresh_token", map[string]string{"refresh_token": upgraded.RefreshToken}, "")
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(nethttp.MethodPost, "/auth/v1/logout", nil, upgraded.AccessToken)
	assert.Equal(t, nethttp.StatusNoContent, rec.Code)
}

func TestProviderErrors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(nethttp.MethodGet, "/auth/v1/user", nil, "")
	assert.Equal(t, nethttp.StatusUnauthorized, rec.Code)
	body := decode[statusBody](t, rec)
	assert.Equal(t, "session_not_found", body.Code)
	assert.Equal(t, "Auth session missing!", body.Message)

	rec = env.do(nethttp.MethodPost, "/auth/v1/token?grant_type=password", map[string]string{"email": "x@example.com", "password": "nope"}, "")
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_credentials", decode[statusBody](t, rec).Code)

	rec = env.do(nethttp.MethodPost, "/auth/v1/token?grant_type=magic", map[string]string{}, "")
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)

	token := env.signUp("ana@example.com")
	user, err := env.store.Users().GetByEmail(context.Background(), "ana@example.com")
	require.NoError(t, err)
	require.NoError(t, env.svc.DeleteUser(context.Background(), user.ID))

	rec = env.do(nethttp.MethodGet, "/auth/v1/user", nil, token)
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)
	assert.Equal(t, "user_not_found", decode[statusBody](t, rec).Code)
}

func TestGoogleCallback_redirectsWithError(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(nethttp.MethodGet, "/auth/v1/identities/google/callback?error=access_denied", nil, "")
	require.Equal(t, nethttp.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/auth/connect-google", loc.Path)
	assert.Equal(t, "access_denied", loc.Query().Get("error_code"))

	rec = env.do(nethttp.MethodGet, "/auth/v1/identities/google/callback?state=s&code=c", nil, "")
	require.Equal(t, nethttp.StatusFound, rec.Code)
	loc, err = url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "provider_disabled", loc.Query().Get("error_code"))
}
