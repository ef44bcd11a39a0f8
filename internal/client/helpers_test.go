package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/safespace/server/internal/auth"
)

// idTokens is an identity provider that only knows a fixed set of ID tokens
type idTokens map[string]auth.GoogleClaims

func (p idTokens) AuthCodeURL(uuid.UUID) (string, error) { return "", auth.ErrProviderDisabled }

func (p idTokens) Exchange(context.Context, string, string) (uuid.UUID, auth.GoogleClaims, error) {
	return uuid.Nil, auth.GoogleClaims{}, auth.ErrBadOAuthState
}

func (p idTokens) VerifyIDToken(_ context.Context, raw string) (auth.GoogleClaims, error) {
	claims, ok := p[raw]
	if !ok {
		return auth.GoogleClaims{}, auth.ErrBadJWT
	}
	return claims, nil
}

func generateCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return code
}
