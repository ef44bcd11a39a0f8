package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/oauth2"

	"github.com/safespace/server/internal/config"
)

const (
	// ProviderGoogle is the identity provider name stored on linked identities
	ProviderGoogle = "google"

	// GoogleCallbackPath is where Google redirects after consent
	GoogleCallbackPath = "/auth/v1/identities/google/callback"

	stateTTL      = 10 * time.Minute
	maxStates     = 4096
	stateIDLength = 32
)

// GoogleClaims are the ID token claims used to link or sign in
type GoogleClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// IdentityProvider links external accounts. GoogleProvider is the only implementation.
type IdentityProvider interface {
	// AuthCodeURL starts a link for userID and returns the consent page URL
	AuthCodeURL(userID uuid.UUID) (string, error)
	// Exchange finishes a link started by AuthCodeURL
	Exchange(ctx context.Context, state, code string) (uuid.UUID, GoogleClaims, error)
	// VerifyIDToken validates a raw Google ID token
	VerifyIDToken(ctx context.Context, rawIDToken string) (GoogleClaims, error)
}

// GoogleProvider implements IdentityProvider with OAuth2 + OIDC
type GoogleProvider struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	// pending link states, state -> user who started the flow
	states *expirable.LRU[string, uuid.UUID]
}

// NewGoogleProvider discovers the provider configuration and builds the verifier
func NewGoogleProvider(ctx context.Context, cfg config.GoogleConfig) (*GoogleProvider, error) {
	provider, err := oidc.NewProvider(ctx, cfg.ProviderURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURLBase + GoogleCallbackPath,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	return newGoogleProvider(oauth2Config, verifier), nil
}

func newGoogleProvider(oauth2Config *oauth2.Config, verifier *oidc.IDTokenVerifier) *GoogleProvider {
	return &GoogleProvider{
		oauth2Config: oauth2Config,
		verifier:     verifier,
		states:       expirable.NewLRU[string, uuid.UUID](maxStates, nil, stateTTL),
	}
}

func (p *GoogleProvider) AuthCodeURL(userID uuid.UUID) (string, error) {
	state, err := gonanoid.New(stateIDLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	p.states.Add(state, userID)
	return p.oauth2Config.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// Exchange consumes the state (single use), trades the code for tokens and verifies the ID token
func (p *GoogleProvider) Exchange(ctx context.Context, state, code string) (uuid.UUID, GoogleClaims, error) {
	userID, ok := p.states.Get(state)
	if !ok {
		return uuid.Nil, GoogleClaims{}, ErrBadOAuthState
	}
	p.states.Remove(state)

	if code == "" {
		return uuid.Nil, GoogleClaims{}, ErrBadOAuthCallback
	}

	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return uuid.Nil, GoogleClaims{}, fmt.Errorf("failed to exchange code: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return uuid.Nil, GoogleClaims{}, fmt.Errorf("id_token not found in token response")
	}

	claims, err := p.VerifyIDToken(ctx, rawIDToken)
	if err != nil {
		return uuid.Nil, GoogleClaims{}, err
	}
	return userID, claims, nil
}

func (p *GoogleProvider) VerifyIDToken(ctx context.Context, rawIDToken string) (GoogleClaims, error) {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return GoogleClaims{}, fmt.Errorf("failed to verify ID token: %w", err)
	}
	var claims GoogleClaims
	if err := idToken.Claims(&claims); err != nil {
		return GoogleClaims{}, fmt.Errorf("failed to parse ID token claims: %w", err)
	}
	if claims.Subject == "" {
		return GoogleClaims{}, fmt.Errorf("ID token has no subject")
	}
	return claims, nil
}
