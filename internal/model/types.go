package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is the user role stored on the auth identity
type Role string

const (
	RoleGuest Role = "guest"
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// AAL is an authenticator assurance level
type AAL string

const (
	AAL0 AAL = "aal0"
	AAL1 AAL = "aal1"
	AAL2 AAL = "aal2"
)

type FactorType string

const FactorTOTP FactorType = "totp"

type FactorStatus string

const (
	FactorUnverified FactorStatus = "unverified"
	FactorVerified   FactorStatus = "verified"
)

// AuthUser is the identity held by the auth provider
type AuthUser struct {
	ID               uuid.UUID  `json:"id"`
	Email            string     `json:"email"`
	Name             string     `json:"name,omitempty"`
	Role             Role       `json:"role"`
	PasswordHash     string     `json:"-"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Identity is an external account linked to an auth user
type Identity struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Provider  string    `json:"provider"`
	Subject   string    `json:"subject"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Factor is an enrolled MFA authenticator
type Factor struct {
	ID           uuid.UUID    `json:"id"`
	UserID       uuid.UUID    `json:"user_id"`
	FriendlyName string       `json:"friendly_name,omitempty"`
	Type         FactorType   `json:"factor_type"`
	Status       FactorStatus `json:"status"`
	Secret       string       `json:"-"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// FactorList groups a user's factors the way the provider reports them
type FactorList struct {
	All  []Factor `json:"all"`
	TOTP []Factor `json:"totp"`
}

// HasVerifiedTOTP reports whether any TOTP factor has been verified
func (l *FactorList) HasVerifiedTOTP() bool {
	if l == nil {
		return false
	}
	for _, f := range l.TOTP {
		if f.Type == FactorTOTP && f.Status == FactorVerified {
			return true
		}
	}
	return false
}

// Challenge is a pending MFA verification for a factor
type Challenge struct {
	ID            uuid.UUID  `json:"id"`
	FactorID      uuid.UUID  `json:"factor_id"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	VerifiedAt    *time.Time `json:"-"`
	AttemptCount  int        `json:"-"`
	LastAttemptAt *time.Time `json:"-"`
	IPAddress     *string    `json:"-"`
}

// TOTPEnrollment carries what an authenticator app needs to register a factor
type TOTPEnrollment struct {
	QRCode string `json:"qr_code"`
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}

// Enrollment is the result of enrolling a new factor
type Enrollment struct {
	ID   uuid.UUID      `json:"id"`
	Type FactorType     `json:"type"`
	TOTP TOTPEnrollment `json:"totp"`
}

// RefreshSession represents a refresh token session
type RefreshSession struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	TokenHash  string
	AAL        AAL
	AMR        []string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy *uuid.UUID
}

// Profile is the application-side user record
type Profile struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      *string   `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Location is a marker placed on the map
type Location struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	CreatedAt   time.Time `json:"createdAt"`
	Ratings     []Rating  `json:"ratings"`
}

// RatingAuthor is the subset of the rater's profile shown alongside a rating
type RatingAuthor struct {
	Name *string `json:"name"`
}

// Rating is a 1..5 safety score left by a user for a location
type Rating struct {
	ID          uuid.UUID     `json:"id"`
	UserID      uuid.UUID     `json:"userId"`
	LocationID  uuid.UUID     `json:"locationId"`
	Value       int           `json:"rating"`
	Description *string       `json:"description"`
	Time        time.Time     `json:"time"`
	CreatedAt   time.Time     `json:"createdAt"`
	User        *RatingAuthor `json:"user,omitempty"`
}

// AuthEventType names a change in the provider's session state
type AuthEventType string

const (
	EventInitialSession       AuthEventType = "INITIAL_SESSION"
	EventSignedIn             AuthEventType = "SIGNED_IN"
	EventSignedOut            AuthEventType = "SIGNED_OUT"
	EventTokenRefreshed       AuthEventType = "TOKEN_REFRESHED"
	EventMFAChallengeVerified AuthEventType = "MFA_CHALLENGE_VERIFIED"
	EventUserUpdated          AuthEventType = "USER_UPDATED"
)

// AuthEvent is emitted by the provider whenever the session state changes
type AuthEvent struct {
	Type   AuthEventType `json:"type"`
	UserID string        `json:"user_id,omitempty"`
	User   *AuthUser     `json:"user,omitempty"`
	At     time.Time     `json:"at"`
}
