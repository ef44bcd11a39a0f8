package tests

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safespace/server/internal/app"
	"github.com/safespace/server/internal/client"
	"github.com/safespace/server/internal/errmsg"
	"github.com/safespace/server/internal/model"
)

// TestAPIFlow_Memory runs the full flow on the in-memory store
func TestAPIFlow_Memory(t *testing.T) {
	api := NewMemoryAPI(t, app.Options{})
	runAPIFlow(t, api)
}

// TestAPIFlow_Postgres runs the same flow against DATABASE_URL
func TestAPIFlow_Postgres(t *testing.T) {
	api, _ := NewPostgresAPI(t, app.Options{})
	runAPIFlow(t, api)
}

// runAPIFlow: health, sign-up, sign-in, locations and ratings, MFA enrollment, sign-out.
func runAPIFlow(t *testing.T, api *API) {
	ctx := context.Background()
	c := client.New(api.URL(), client.NewMemoryTokenStore(), client.Options{})

	t.Run("A_Health", func(t *testing.T) {
		resp, err := http.Get(api.URL() + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"ok":true}`, string(body))
	})

	t.Run("B_SignUp", func(t *testing.T) {
		res, err := c.SignUp(ctx, "ana@example.com", TestPassword, "Ana")
		require.NoError(t, err)
		assert.Equal(t, "/enable-mfa", res.RedirectURL)

		_, err = c.SignUp(ctx, "ana@example.com", TestPassword, "Ana")
		require.Error(t, err)
		assert.Equal(t, errmsg.MsgAccountExists, err.Error())
	})

	t.Run("C_SignIn", func(t *testing.T) {
		_, err := c.SignInWithPassword(ctx, "ana@example.com", "Wrong1!pw")
		var apiErr *client.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "invalid_credentials", apiErr.Code)

		session, err := c.SignInWithPassword(ctx, "ana@example.com", TestPassword)
		require.NoError(t, err)
		assert.Equal(t, "bearer", session.TokenType)

		profile, err := c.Profile(ctx, session.User.ID)
		require.NoError(t, err)
		require.NotNil(t, profile)
		assert.Equal(t, "Ana", *profile.Name)
	})

	t.Run("D_LocationsAndRatings", func(t *testing.T) {
		id, err := c.CreateLocation(ctx, client.LocationInput{Name: "Station", Description: "lit", Latitude: 48.1, Longitude: 11.5})
		require.NoError(t, err)

		desc := "quiet"
		require.NoError(t, c.CreateRating(ctx, client.RatingInput{LocationID: id, Rating: 4, Description: &desc, Time: time.Now()}))

		err = c.CreateRating(ctx, client.RatingInput{LocationID: id, Rating: 6, Time: time.Now()})
		var apiErr *client.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

		locations, err := c.Locations(ctx)
		require.NoError(t, err)
		require.Len(t, locations, 1)
		require.Len(t, locations[0].Ratings, 1)
		assert.Equal(t, 4, locations[0].Ratings[0].Value)

		ratings, err := c.Ratings(ctx)
		require.NoError(t, err)
		assert.Len(t, ratings, 1)
	})

	t.Run("E_MFA", func(t *testing.T) {
		enrollment, err := c.Enroll(ctx, "phone")
		require.NoError(t, err)

		code, err := totp.GenerateCode(enrollment.TOTP.Secret, time.Now())
		require.NoError(t, err)
		_, err = c.ChallengeAndVerify(ctx, enrollment.ID, code)
		require.NoError(t, err)

		current, next, err := c.AuthLevel(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.AAL2, current)
		assert.Equal(t, model.AAL2, next)

		// a fresh password sign-in only reaches aal1
		fresh := client.New(api.URL(), client.NewMemoryTokenStore(), client.Options{})
		_, err = fresh.SignInWithPassword(ctx, "ana@example.com", TestPassword)
		require.NoError(t, err)
		current, next, err = fresh.AuthLevel(ctx)
		require.NoError(t, err)
		assert.Equal(t, model.AAL1, current)
		assert.Equal(t, model.AAL2, next)
	})

	t.Run("F_SignOut", func(t *testing.T) {
		require.NoError(t, c.SignOut(ctx))
		session, err := c.Session(ctx)
		require.NoError(t, err)
		assert.Nil(t, session)

		_, err = c.GetUser(ctx)
		var apiErr *client.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "session_not_found", apiErr.Code)
	})
}
