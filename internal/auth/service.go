package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/safespace/server/internal/db"
	"github.com/safespace/server/internal/events"
	"github.com/safespace/server/internal/metrics"
	"github.com/safespace/server/internal/model"
	"github.com/safespace/server/internal/repo"
)

const defaultRefreshTokenTTL = 7 * 24 * time.Hour

// Session is an issued access/refresh token pair
type Session struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	TokenType    string          `json:"token_type"`
	ExpiresIn    int             `json:"expires_in"`
	ExpiresAt    int64           `json:"expires_at"`
	User         *model.AuthUser `json:"user"`
}

// SignUpInput is the data needed to create a password identity
type SignUpInput struct {
	Email    string
	Password string
	Name     string
}

// Repos groups the stores the provider persists to
type Repos struct {
	Users      repo.UserRepo
	Identities repo.IdentityRepo
	Factors    repo.FactorRepo
	Challenges repo.ChallengeRepo
	Refresh    repo.RefreshRepo
}

// Options tune the provider. Zero values are usable.
type Options struct {
	RefreshTTL               time.Duration
	RequireEmailConfirmation bool
	Google                   IdentityProvider
	Publisher                events.Publisher
	Logger                   *zap.Logger
}

// AuthService is the auth provider: password and ID token sign-in, refresh rotation,
// TOTP factors and identity linking.
type AuthService struct {
	jwtService *JWTService
	repos      Repos
	opts       Options
	logger     *zap.Logger
	now        func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(jwtService *JWTService, repos Repos, opts Options) *AuthService {
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = defaultRefreshTokenTTL
	}
	if opts.Publisher == nil {
		opts.Publisher = &events.NoopPublisher{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		jwtService: jwtService,
		repos:      repos,
		opts:       opts,
		logger:     logger.Named("auth"),
		now:        time.Now,
	}
}

// JWT exposes the token verifier used by the auth middleware
func (s *AuthService) JWT() *JWTService { return s.jwtService }

// GoogleEnabled reports whether identity linking is configured
func (s *AuthService) GoogleEnabled() bool { return s.opts.Google != nil }

// SignUp creates a password identity with role user
func (s *AuthService) SignUp(ctx context.Context, in SignUpInput) (*model.AuthUser, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := ValidateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := ValidatePasswordStrength(in.Password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := model.AuthUser{
		Email:        in.Email,
		Name:         strings.TrimSpace(in.Name),
		Role:         model.RoleUser,
		PasswordHash: hash,
	}
	if !s.opts.RequireEmailConfirmation {
		now := s.now()
		user.EmailConfirmedAt = &now
	}

	created, err := s.repos.Users.Create(ctx, user)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.publish(ctx, events.TopicUserCreated, events.UserCreated{UserID: created.ID.String()})
	return &created, nil
}

// SignInWithPassword checks credentials and issues an aal1 session
func (s *AuthService) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.repos.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user.PasswordHash == "" || CheckPassword(user.PasswordHash, password) != nil {
		return nil, ErrInvalidCredentials
	}
	if s.opts.RequireEmailConfirmation && user.EmailConfirmedAt == nil {
		return nil, ErrEmailNotConfirmed
	}

	session, err := s.issueSession(ctx, user, model.AAL1, []string{"password"})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, model.EventSignedIn, user.ID)
	return session, nil
}

// SignInWithIDToken signs in with a Google ID token. An unknown subject is linked to the
// account with the same verified email, or gets a new account.
func (s *AuthService) SignInWithIDToken(ctx context.Context, rawIDToken string) (*Session, error) {
	if s.opts.Google == nil {
		return nil, ErrProviderDisabled
	}
	claims, err := s.opts.Google.VerifyIDToken(ctx, rawIDToken)
	if err != nil {
		s.logger.Debug("id token rejected", zap.Error(err))
		return nil, ErrBadJWT
	}

	var user model.AuthUser
	identity, err := s.repos.Identities.GetByProviderSubject(ctx, ProviderGoogle, claims.Subject)
	switch {
	case err == nil:
		user, err = s.repos.Users.GetByID(ctx, identity.UserID)
		if err != nil {
			return nil, s.userLookupErr(err)
		}
	case errors.Is(err, repo.ErrNotFound):
		user, err = s.userForNewIdentity(ctx, claims)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}

	session, err := s.issueSession(ctx, user, model.AAL1, []string{"oauth"})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, model.EventSignedIn, user.ID)
	return session, nil
}

func (s *AuthService) userForNewIdentity(ctx context.Context, claims GoogleClaims) (model.AuthUser, error) {
	user, err := s.repos.Users.GetByEmail(ctx, claims.Email)
	switch {
	case err == nil:
		if !claims.EmailVerified {
			return model.AuthUser{}, ErrEmailExists
		}
	case errors.Is(err, repo.ErrNotFound):
		now := s.now()
		user, err = s.repos.Users.Create(ctx, model.AuthUser{
			Email:            claims.Email,
			Name:             claims.Name,
			Role:             model.RoleUser,
			EmailConfirmedAt: &now,
		})
		if err != nil {
			if db.IsUniqueViolation(err) {
				return model.AuthUser{}, ErrEmailExists
			}
			return model.AuthUser{}, fmt.Errorf("failed to create user: %w", err)
		}
		s.publish(ctx, events.TopicUserCreated, events.UserCreated{UserID: user.ID.String()})
	default:
		return model.AuthUser{}, fmt.Errorf("failed to load user: %w", err)
	}

	if _, err := s.linkIdentity(ctx, user.ID, claims); err != nil {
		return model.AuthUser{}, err
	}
	return user, nil
}

// RefreshSession rotates a refresh token. Presenting an already rotated token revokes
// every session of its user.
func (s *AuthService) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	if !wellFormedRefreshToken(refreshToken) {
		return nil, ErrInvalidRefresh
	}
	hash := RefreshTokenDigest(refreshToken)
	current, err := s.repos.Refresh.FindByTokenHash(ctx, hash)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("failed to load refresh session: %w", err)
		}
		old, oldErr := s.repos.Refresh.FindByTokenHashIncludeRevoked(ctx, hash)
		if oldErr == nil && old.RevokedAt != nil && old.ReplacedBy != nil {
			s.logger.Warn("refresh token reuse detected, revoking all sessions", zap.String("user_id", old.UserID.String()))
			if err := s.repos.Refresh.RevokeAllForUser(ctx, old.UserID); err != nil {
				s.logger.Error("failed to revoke sessions after reuse", zap.Error(err))
			}
			return nil, ErrRefreshTokenReuse
		}
		return nil, ErrInvalidRefresh
	}

	user, err := s.repos.Users.GetByID(ctx, current.UserID)
	if err != nil {
		return nil, s.userLookupErr(err)
	}

	token, tokenHash, err := NewRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	nextID, err := s.repos.Refresh.Create(ctx, user.ID, tokenHash, current.AAL, current.AMR, s.now().Add(s.opts.RefreshTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to store refresh session: %w", err)
	}
	if err := s.repos.Refresh.RevokeAndSetReplacedBy(ctx, current.ID, nextID); err != nil {
		return nil, fmt.Errorf("failed to rotate refresh session: %w", err)
	}

	session, err := s.sessionFor(user, current.AAL, current.AMR, nextID, token)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, model.EventTokenRefreshed, user.ID)
	return session, nil
}

// SignOut revokes every refresh session of the user
func (s *AuthService) SignOut(ctx context.Context, userID uuid.UUID) error {
	if err := s.repos.Refresh.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	s.emit(ctx, model.EventSignedOut, userID)
	return nil
}

// GetUser returns the identity behind a verified access token
func (s *AuthService) GetUser(ctx context.Context, userID uuid.UUID) (*model.AuthUser, error) {
	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, s.userLookupErr(err)
	}
	return &user, nil
}

// ListIdentities returns the external accounts linked to the user
func (s *AuthService) ListIdentities(ctx context.Context, userID uuid.UUID) ([]model.Identity, error) {
	return s.repos.Identities.ListByUser(ctx, userID)
}

// DeleteUser removes an identity (admin operation, used to roll back a failed sign-up)
func (s *AuthService) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	if err := s.repos.Users.Delete(ctx, userID); err != nil {
		return s.userLookupErr(err)
	}
	s.publish(ctx, events.TopicUserDeleted, events.UserDeleted{UserID: userID.String()})
	return nil
}

// AuthenticatorAssuranceLevel returns the session's level and the highest level the user can reach
func (s *AuthService) AuthenticatorAssuranceLevel(ctx context.Context, claims *Claims) (model.AAL, model.AAL, error) {
	userID, err := claims.UserID()
	if err != nil {
		return "", "", ErrBadJWT
	}
	factors, err := s.repos.Factors.ListByUser(ctx, userID)
	if err != nil {
		return "", "", fmt.Errorf("failed to list factors: %w", err)
	}

	current := claims.AAL
	if current == "" {
		current = model.AAL1
	}
	next := model.AAL1
	for _, f := range factors {
		if f.Status == model.FactorVerified {
			next = model.AAL2
			break
		}
	}
	return current, next, nil
}

// ListFactors returns all factors and, separately, the verified TOTP factors
func (s *AuthService) ListFactors(ctx context.Context, userID uuid.UUID) (*model.FactorList, error) {
	factors, err := s.repos.Factors.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list factors: %w", err)
	}
	list := &model.FactorList{All: factors, TOTP: make([]model.Factor, 0)}
	for _, f := range factors {
		if f.Type == model.FactorTOTP && f.Status == model.FactorVerified {
			list.TOTP = append(list.TOTP, f)
		}
	}
	return list, nil
}

// Enroll creates an unverified TOTP factor and returns its QR code and secret
func (s *AuthService) Enroll(ctx context.Context, user model.AuthUser, friendlyName string) (*model.Enrollment, error) {
	key, err := GenerateTOTPKey(user.Email)
	if err != nil {
		return nil, err
	}
	factor, err := s.repos.Factors.Create(ctx, user.ID, friendlyName, key.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to enroll factor: %w", err)
	}

	s.publish(ctx, events.TopicFactorEnrolled, events.FactorEnrolled{
		UserID:   user.ID.String(),
		FactorID: factor.ID.String(),
	})
	return &model.Enrollment{
		ID:   factor.ID,
		Type: model.FactorTOTP,
		TOTP: model.TOTPEnrollment{QRCode: key.QRCode, Secret: key.Secret, URI: key.URI},
	}, nil
}

// Unenroll deletes a factor. Verified factors can only be removed from an aal2 session.
func (s *AuthService) Unenroll(ctx context.Context, claims *Claims, factorID uuid.UUID) error {
	factor, err := s.ownedFactor(ctx, claims, factorID)
	if err != nil {
		return err
	}
	if factor.Status == model.FactorVerified && claims.AAL != model.AAL2 {
		return ErrInsufficientAAL
	}
	if err := s.repos.Factors.Delete(ctx, factor.ID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrFactorNotFound
		}
		return fmt.Errorf("failed to unenroll factor: %w", err)
	}
	return nil
}

// Challenge opens a verification window for the factor
func (s *AuthService) Challenge(ctx context.Context, claims *Claims, factorID uuid.UUID, ip string) (*model.Challenge, error) {
	factor, err := s.ownedFactor(ctx, claims, factorID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	count, err := s.repos.Challenges.CountRecent(ctx, factor.ID, now.Add(-challengeWindow))
	if err != nil {
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if count >= maxChallengesPerWindow {
		return nil, ErrTooManyAttempts
	}

	var ipAddr *string
	if ip != "" {
		ipAddr = &ip
	}
	challenge, err := s.repos.Challenges.Create(ctx, factor.ID, now.Add(challengeExpiry), ipAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}
	return &challenge, nil
}

// Verify checks a TOTP code against a challenge: attempt limit 5, min 2s between attempts.
// Success verifies the factor and issues an aal2 session.
func (s *AuthService) Verify(ctx context.Context, claims *Claims, factorID, challengeID uuid.UUID, code string) (*Session, error) {
	factor, err := s.ownedFactor(ctx, claims, factorID)
	if err != nil {
		return nil, err
	}

	challenge, err := s.repos.Challenges.GetByID(ctx, challengeID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}
	if challenge.FactorID != factor.ID || challenge.VerifiedAt != nil {
		return nil, ErrChallengeNotFound
	}

	now := s.now()
	if now.After(challenge.ExpiresAt) {
		return nil, ErrChallengeExpired
	}
	if challenge.LastAttemptAt != nil && now.Sub(*challenge.LastAttemptAt) < minAttemptDelay {
		return nil, ErrTooManyAttempts
	}

	attempts, err := s.repos.Challenges.IncrementAttempt(ctx, challenge.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to record attempt: %w", err)
	}
	if attempts > maxAttempts {
		return nil, ErrTooManyAttempts
	}

	if !VerifyTOTPCode(factor.Secret, strings.TrimSpace(code)) {
		metrics.MFAVerificationsTotal.WithLabelValues("failed").Inc()
		return nil, ErrVerificationFail
	}
	metrics.MFAVerificationsTotal.WithLabelValues("verified").Inc()

	if err := s.repos.Challenges.MarkVerified(ctx, challenge.ID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("failed to consume challenge: %w", err)
	}
	if factor.Status != model.FactorVerified {
		if err := s.repos.Factors.MarkVerified(ctx, factor.ID); err != nil {
			return nil, fmt.Errorf("failed to verify factor: %w", err)
		}
	}

	user, err := s.repos.Users.GetByID(ctx, factor.UserID)
	if err != nil {
		return nil, s.userLookupErr(err)
	}

	// the aal1 session is superseded
	if sid, err := uuid.Parse(claims.SessionID); err == nil {
		if err := s.repos.Refresh.Revoke(ctx, sid); err != nil {
			s.logger.Warn("failed to revoke superseded session",
				zap.String("user_id", user.ID.String()), zap.String("session_id", sid.String()), zap.Error(err))
		}
	}

	session, err := s.issueSession(ctx, user, model.AAL2, appendMethod(claims.AMR, "totp"))
	if err != nil {
		return nil, err
	}
	s.emit(ctx, model.EventMFAChallengeVerified, user.ID)
	return session, nil
}

// StartLink begins linking a Google account to the user and returns the consent URL
func (s *AuthService) StartLink(_ context.Context, userID uuid.UUID) (string, error) {
	if s.opts.Google == nil {
		return "", ErrProviderDisabled
	}
	return s.opts.Google.AuthCodeURL(userID)
}

// CompleteLink finishes a link started by StartLink and returns the linked user's ID
func (s *AuthService) CompleteLink(ctx context.Context, state, code string) (uuid.UUID, error) {
	if s.opts.Google == nil {
		return uuid.Nil, ErrProviderDisabled
	}
	userID, claims, err := s.opts.Google.Exchange(ctx, state, code)
	if err != nil {
		return uuid.Nil, err
	}
	if _, err := s.linkIdentity(ctx, userID, claims); err != nil {
		return uuid.Nil, err
	}
	s.emit(ctx, model.EventUserUpdated, userID)
	return userID, nil
}

func (s *AuthService) linkIdentity(ctx context.Context, userID uuid.UUID, claims GoogleClaims) (model.Identity, error) {
	existing, err := s.repos.Identities.GetByProviderSubject(ctx, ProviderGoogle, claims.Subject)
	if err == nil {
		if existing.UserID == userID {
			return existing, nil
		}
		return model.Identity{}, ErrIdentityExists
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return model.Identity{}, fmt.Errorf("failed to load identity: %w", err)
	}

	identity, err := s.repos.Identities.Create(ctx, model.Identity{
		UserID:   userID,
		Provider: ProviderGoogle,
		Subject:  claims.Subject,
		Email:    claims.Email,
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return model.Identity{}, ErrIdentityExists
		}
		return model.Identity{}, fmt.Errorf("failed to link identity: %w", err)
	}
	s.publish(ctx, events.TopicIdentityLinked, events.IdentityLinked{UserID: userID.String(), Provider: ProviderGoogle})
	return identity, nil
}

func (s *AuthService) ownedFactor(ctx context.Context, claims *Claims, factorID uuid.UUID) (model.Factor, error) {
	userID, err := claims.UserID()
	if err != nil {
		return model.Factor{}, ErrBadJWT
	}
	factor, err := s.repos.Factors.GetByID(ctx, factorID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Factor{}, ErrFactorNotFound
		}
		return model.Factor{}, fmt.Errorf("failed to load factor: %w", err)
	}
	if factor.UserID != userID {
		return model.Factor{}, ErrFactorNotFound
	}
	return factor, nil
}

func (s *AuthService) issueSession(ctx context.Context, user model.AuthUser, aal model.AAL, amr []string) (*Session, error) {
	token, tokenHash, err := NewRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	sessionID, err := s.repos.Refresh.Create(ctx, user.ID, tokenHash, aal, amr, s.now().Add(s.opts.RefreshTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to store refresh session: %w", err)
	}
	return s.sessionFor(user, aal, amr, sessionID, token)
}

func (s *AuthService) sessionFor(user model.AuthUser, aal model.AAL, amr []string, sessionID uuid.UUID, refreshToken string) (*Session, error) {
	accessToken, expiresAt, err := s.jwtService.SignAccessToken(user, aal, amr, sessionID)
	if err != nil {
		return nil, err
	}
	return &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int(s.jwtService.AccessTTL().Seconds()),
		ExpiresAt:    expiresAt.Unix(),
		User:         &user,
	}, nil
}

func (s *AuthService) userLookupErr(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUserNotFound
	}
	return fmt.Errorf("failed to load user: %w", err)
}

func (s *AuthService) emit(ctx context.Context, t model.AuthEventType, userID uuid.UUID) {
	metrics.AuthEventsTotal.WithLabelValues(string(t)).Inc()
	s.publish(ctx, events.TopicFor(t), model.AuthEvent{Type: t, UserID: userID.String(), At: s.now().UTC()})
}

func (s *AuthService) publish(ctx context.Context, topic string, event any) {
	if err := s.opts.Publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("failed to publish auth event", zap.String("topic", topic), zap.Error(err))
	}
}

func appendMethod(amr []string, method string) []string {
	out := make([]string, 0, len(amr)+1)
	for _, m := range amr {
		if m != method {
			out = append(out, m)
		}
	}
	return append(out, method)
}
