package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/safespace/server/internal/auth"
	"github.com/safespace/server/internal/model"
)

// Session returns the stored session, refreshed when close to expiry. It does not
// contact the API otherwise; nil means signed out.
func (c *Client) Session(ctx context.Context) (*auth.Session, error) {
	session, err := c.tokens.Load()
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if session == nil || !c.expiring(session) || session.RefreshToken == "" {
		return session, nil
	}
	return c.refresh(ctx)
}

// Refresh rotates the refresh token now
func (c *Client) Refresh(ctx context.Context) error {
	session, err := c.refresh(ctx)
	if err != nil {
		return err
	}
	if session == nil {
		return &APIError{StatusCode: auth.ErrSessionMissing.Status, Code: auth.ErrSessionMissing.Code, Message: auth.ErrSessionMissing.Message}
	}
	return nil
}

// refresh exchanges the stored refresh token. A rejected token ends the session and
// returns nil, nil.
func (c *Client) refresh(ctx context.Context) (*auth.Session, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	current, err := c.tokens.Load()
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if current == nil || current.RefreshToken == "" {
		return nil, nil
	}

	var session auth.Session
	err = c.send(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "",
		map[string]string{"refresh_token": current.RefreshToken}, &session)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		c.logger.Info("refresh token rejected, signing out", zap.String("code", apiErr.Code))
		if clearErr := c.ClearSession(); clearErr != nil {
			return nil, clearErr
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := c.tokens.Save(&session); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	c.emit(model.EventTokenRefreshed, session.User)
	return &session, nil
}

type userResponse struct {
	model.AuthUser
	Identities []model.Identity `json:"identities"`
}

// GetUser asks the API for the signed-in user
func (c *Client) GetUser(ctx context.Context) (*model.AuthUser, error) {
	var resp userResponse
	if err := c.doJSON(ctx, http.MethodGet, "/auth/v1/user", true, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.AuthUser, nil
}

// Identities lists the external accounts linked to the signed-in user
func (c *Client) Identities(ctx context.Context) ([]model.Identity, error) {
	var resp userResponse
	if err := c.doJSON(ctx, http.MethodGet, "/auth/v1/user", true, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Identities, nil
}

// SignInWithPassword starts a session from email credentials
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	return c.grant(ctx, "password", map[string]string{"email": email, "password": password})
}

// SignIn is SignInWithPassword for callers that only need the outcome
func (c *Client) SignIn(ctx context.Context, email, password string) error {
	_, err := c.SignInWithPassword(ctx, email, password)
	return err
}

// SignInWithIDToken starts a session from a Google ID token
func (c *Client) SignInWithIDToken(ctx context.Context, idToken string) (*auth.Session, error) {
	return c.grant(ctx, "id_token", map[string]string{"provider": auth.ProviderGoogle, "id_token": idToken})
}

func (c *Client) grant(ctx context.Context, grantType string, body map[string]string) (*auth.Session, error) {
	var session auth.Session
	if err := c.send(ctx, http.MethodPost, "/auth/v1/token?grant_type="+url.QueryEscape(grantType), "", body, &session); err != nil {
		return nil, err
	}
	if err := c.tokens.Save(&session); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	c.emit(model.EventSignedIn, session.User)
	return &session, nil
}

// AccountResult is the body returned by /api/signup and /api/signin
type AccountResult struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	RedirectURL string `json:"redirectUrl"`
}

// SignUp creates an account with a profile. It does not sign in.
func (c *Client) SignUp(ctx context.Context, email, password, name string) (*AccountResult, error) {
	var res AccountResult
	body := map[string]string{"email": email, "password": password, "name": name}
	if err := c.doJSON(ctx, http.MethodPost, "/api/signup", false, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SignOut revokes the session on the API and forgets it locally. The local session is
// dropped even when the API call fails.
func (c *Client) SignOut(ctx context.Context) error {
	session, err := c.tokens.Load()
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	if session == nil {
		return nil
	}

	var apiErr *APIError
	remoteErr := c.send(ctx, http.MethodPost, "/auth/v1/logout", session.AccessToken, nil, nil)
	if errors.As(remoteErr, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
		// token already invalid on the server
		remoteErr = nil
	}
	if err := c.ClearSession(); err != nil {
		return err
	}
	return remoteErr
}

// ClearSession forgets the stored tokens without calling the API
func (c *Client) ClearSession() error {
	if err := c.tokens.Clear(); err != nil {
		return err
	}
	c.emit(model.EventSignedOut, nil)
	return nil
}

type aalResponse struct {
	CurrentLevel model.AAL `json:"currentLevel"`
	NextLevel    model.AAL `json:"nextLevel"`
}

// AuthLevel returns the current and next authenticator assurance levels
func (c *Client) AuthLevel(ctx context.Context) (current, next model.AAL, err error) {
	var resp aalResponse
	if err := c.doJSON(ctx, http.MethodGet, "/auth/v1/aal", true, nil, &resp); err != nil {
		return "", "", err
	}
	return resp.CurrentLevel, resp.NextLevel, nil
}

// ListFactors returns every factor and the verified TOTP factors
func (c *Client) ListFactors(ctx context.Context) (*model.FactorList, error) {
	var list model.FactorList
	if err := c.doJSON(ctx, http.MethodGet, "/auth/v1/factors", true, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Enroll registers a new unverified TOTP factor
func (c *Client) Enroll(ctx context.Context, friendlyName string) (*model.Enrollment, error) {
	var enrollment model.Enrollment
	body := map[string]string{"factor_type": string(model.FactorTOTP), "friendly_name": friendlyName}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/v1/factors", true, body, &enrollment); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Unenroll deletes a factor
func (c *Client) Unenroll(ctx context.Context, factorID uuid.UUID) error {
	return c.doJSON(ctx, http.MethodDelete, "/auth/v1/factors/"+factorID.String(), true, nil, nil)
}

// ChallengeResult identifies a pending MFA challenge
type ChallengeResult struct {
	ID        uuid.UUID `json:"id"`
	ExpiresAt int64     `json:"expires_at"`
}

// Challenge opens a verification challenge for a factor
func (c *Client) Challenge(ctx context.Context, factorID uuid.UUID) (*ChallengeResult, error) {
	var res ChallengeResult
	if err := c.doJSON(ctx, http.MethodPost, "/auth/v1/factors/"+factorID.String()+"/challenge", true, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Verify checks a code against a challenge. Success replaces the stored session with
// the upgraded aal2 session.
func (c *Client) Verify(ctx context.Context, factorID, challengeID uuid.UUID, code string) (*auth.Session, error) {
	var session auth.Session
	body := map[string]string{"challenge_id": challengeID.String(), "code": code}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/v1/factors/"+factorID.String()+"/verify", true, body, &session); err != nil {
		return nil, err
	}
	if err := c.tokens.Save(&session); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	c.emit(model.EventMFAChallengeVerified, session.User)
	return &session, nil
}

// ChallengeAndVerify runs Challenge then Verify
func (c *Client) ChallengeAndVerify(ctx context.Context, factorID uuid.UUID, code string) (*auth.Session, error) {
	challenge, err := c.Challenge(ctx, factorID)
	if err != nil {
		return nil, err
	}
	return c.Verify(ctx, factorID, challenge.ID, code)
}
