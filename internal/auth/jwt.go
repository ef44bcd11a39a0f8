package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/safespace/server/internal/model"
)

const defaultAccessTokenTTL = time.Hour

// Claims are the access token claims. Subject holds the user ID.
type Claims struct {
	Email     string     `json:"email,omitempty"`
	Role      model.Role `json:"role,omitempty"`
	AAL       model.AAL  `json:"aal"`
	AMR       []string   `json:"amr,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim
func (c *Claims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// JWTService handles JWT token operations
type JWTService struct {
	secret    []byte
	accessTTL time.Duration
}

// NewJWTService creates a new JWT service. A zero ttl selects one hour.
func NewJWTService(secret string, accessTTL time.Duration) *JWTService {
	if accessTTL <= 0 {
		accessTTL = defaultAccessTokenTTL
	}
	return &JWTService{
		secret:    []byte(secret),
		accessTTL: accessTTL,
	}
}

// AccessTTL returns the lifetime of issued access tokens
func (s *JWTService) AccessTTL() time.Duration { return s.accessTTL }

// SignAccessToken creates an access token for the user at the given assurance level
func (s *JWTService) SignAccessToken(user model.AuthUser, aal model.AAL, amr []string, sessionID uuid.UUID) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.accessTTL)
	claims := &Claims{
		Email:     user.Email,
		Role:      user.Role,
		AAL:       aal,
		AMR:       amr,
		SessionID: sessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// VerifyToken verifies and parses a JWT token
func (s *JWTService) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if _, err := claims.UserID(); err != nil {
		return nil, fmt.Errorf("invalid subject: %w", err)
	}

	return claims, nil
}
