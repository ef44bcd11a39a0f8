// Package memrepo keeps every repository in process memory. It backs the
// API server when DATABASE_URL=memory and the handler and client tests.
package memrepo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/safespace/server/internal/model"
	"github.com/safespace/server/internal/repo"
)

// Store holds all tables behind one lock
type Store struct {
	mu         sync.RWMutex
	users      map[uuid.UUID]model.AuthUser
	identities map[uuid.UUID]model.Identity
	factors    map[uuid.UUID]model.Factor
	challenges map[uuid.UUID]model.Challenge
	refresh    map[uuid.UUID]model.RefreshSession
	profiles   map[uuid.UUID]model.Profile
	locations  map[uuid.UUID]model.Location
	ratings    map[uuid.UUID]model.Rating
	now        func() time.Time
}

// New returns an empty store
func New() *Store {
	return &Store{
		users:      make(map[uuid.UUID]model.AuthUser),
		identities: make(map[uuid.UUID]model.Identity),
		factors:    make(map[uuid.UUID]model.Factor),
		challenges: make(map[uuid.UUID]model.Challenge),
		refresh:    make(map[uuid.UUID]model.RefreshSession),
		profiles:   make(map[uuid.UUID]model.Profile),
		locations:  make(map[uuid.UUID]model.Location),
		ratings:    make(map[uuid.UUID]model.Rating),
		now:        time.Now,
	}
}

func (s *Store) Users() repo.UserRepo           { return userRepo{s} }
func (s *Store) Identities() repo.IdentityRepo  { return identityRepo{s} }
func (s *Store) Factors() repo.FactorRepo       { return factorRepo{s} }
func (s *Store) Challenges() repo.ChallengeRepo { return challengeRepo{s} }
func (s *Store) Refresh() repo.RefreshRepo      { return refreshRepo{s} }
func (s *Store) Profiles() repo.ProfileRepo     { return profileRepo{s} }
func (s *Store) Locations() repo.LocationRepo   { return locationRepo{s} }
func (s *Store) Ratings() repo.RatingRepo       { return ratingRepo{s} }

func uniqueViolation(constraint string) error {
	return &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint", Constraint: constraint}
}

func foreignKeyViolation(constraint string) error {
	return &pq.Error{Code: "23503", Message: "insert or update violates foreign key constraint", Constraint: constraint}
}

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, user model.AuthUser) (model.AuthUser, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return model.AuthUser{}, fmt.Errorf("failed to create user: %w", uniqueViolation("auth_users_email_key"))
		}
	}
	if user.Role == "" {
		user.Role = model.RoleUser
	}
	user.ID = uuid.New()
	user.CreatedAt = r.s.now()
	user.UpdatedAt = user.CreatedAt
	r.s.users[user.ID] = user
	return user, nil
}

func (r userRepo) GetByID(_ context.Context, id uuid.UUID) (model.AuthUser, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return model.AuthUser{}, fmt.Errorf("user not found: %w", repo.ErrNotFound)
	}
	return u, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (model.AuthUser, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range r.s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.AuthUser{}, fmt.Errorf("user not found: %w", repo.ErrNotFound)
}

// Delete cascades to identities, factors, challenges and refresh sessions
func (r userRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return fmt.Errorf("user not found: %w", repo.ErrNotFound)
	}
	delete(r.s.users, id)
	for k, v := range r.s.identities {
		if v.UserID == id {
			delete(r.s.identities, k)
		}
	}
	for k, v := range r.s.factors {
		if v.UserID == id {
			r.s.deleteFactorLocked(k)
		}
	}
	for k, v := range r.s.refresh {
		if v.UserID == id {
			delete(r.s.refresh, k)
		}
	}
	return nil
}

func (s *Store) deleteFactorLocked(id uuid.UUID) {
	delete(s.factors, id)
	for k, c := range s.challenges {
		if c.FactorID == id {
			delete(s.challenges, k)
		}
	}
}

type identityRepo struct{ s *Store }

func (r identityRepo) Create(_ context.Context, identity model.Identity) (model.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[identity.UserID]; !ok {
		return model.Identity{}, fmt.Errorf("failed to create identity: %w", foreignKeyViolation("auth_identities_user_id_fkey"))
	}
	for _, i := range r.s.identities {
		if i.Provider == identity.Provider && i.Subject == identity.Subject {
			return model.Identity{}, fmt.Errorf("failed to create identity: %w", uniqueViolation("auth_identities_provider_subject_key"))
		}
	}
	identity.ID = uuid.New()
	identity.CreatedAt = r.s.now()
	r.s.identities[identity.ID] = identity
	return identity, nil
}

func (r identityRepo) GetByProviderSubject(_ context.Context, provider, subject string) (model.Identity, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, i := range r.s.identities {
		if i.Provider == provider && i.Subject == subject {
			return i, nil
		}
	}
	return model.Identity{}, fmt.Errorf("identity not found: %w", repo.ErrNotFound)
}

func (r identityRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]model.Identity, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.Identity, 0)
	for _, i := range r.s.identities {
		if i.UserID == userID {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

type factorRepo struct{ s *Store }

func (r factorRepo) Create(_ context.Context, userID uuid.UUID, friendlyName, secret string) (model.Factor, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[userID]; !ok {
		return model.Factor{}, fmt.Errorf("failed to create factor: %w", foreignKeyViolation("mfa_factors_user_id_fkey"))
	}
	now := r.s.now()
	f := model.Factor{
		ID:           uuid.New(),
		UserID:       userID,
		FriendlyName: friendlyName,
		Type:         model.FactorTOTP,
		Status:       model.FactorUnverified,
		Secret:       secret,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.s.factors[f.ID] = f
	return f, nil
}

func (r factorRepo) GetByID(_ context.Context, id uuid.UUID) (model.Factor, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	f, ok := r.s.factors[id]
	if !ok {
		return model.Factor{}, fmt.Errorf("factor not found: %w", repo.ErrNotFound)
	}
	return f, nil
}

func (r factorRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]model.Factor, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]model.Factor, 0)
	for _, f := range r.s.factors {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (r factorRepo) MarkVerified(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.factors[id]
	if !ok {
		return fmt.Errorf("factor not found: %w", repo.ErrNotFound)
	}
	f.Status = model.FactorVerified
	f.UpdatedAt = r.s.now()
	r.s.factors[id] = f
	return nil
}

func (r factorRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.factors[id]; !ok {
		return fmt.Errorf("factor not found: %w", repo.ErrNotFound)
	}
	r.s.deleteFactorLocked(id)
	return nil
}

type challengeRepo struct{ s *Store }

func (r challengeRepo) Create(_ context.Context, factorID uuid.UUID, expiresAt time.Time, ip *string) (model.Challenge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.factors[factorID]; !ok {
		return model.Challenge{}, fmt.Errorf("insert challenge: %w", foreignKeyViolation("mfa_challenges_factor_id_fkey"))
	}
	c := model.Challenge{
		ID:        uuid.New(),
		FactorID:  factorID,
		CreatedAt: r.s.now(),
		ExpiresAt: expiresAt,
		IPAddress: ip,
	}
	r.s.challenges[c.ID] = c
	return c, nil
}

func (r challengeRepo) GetByID(_ context.Context, id uuid.UUID) (model.Challenge, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.challenges[id]
	if !ok {
		return model.Challenge{}, fmt.Errorf("challenge not found: %w", repo.ErrNotFound)
	}
	return c, nil
}

func (r challengeRepo) IncrementAttempt(_ context.Context, id uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.challenges[id]
	if !ok {
		return 0, fmt.Errorf("challenge not found: %w", repo.ErrNotFound)
	}
	now := r.s.now()
	c.AttemptCount++
	c.LastAttemptAt = &now
	r.s.challenges[id] = c
	return c.AttemptCount, nil
}

func (r challengeRepo) MarkVerified(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.challenges[id]
	if !ok || c.VerifiedAt != nil {
		return fmt.Errorf("challenge not found: %w", repo.ErrNotFound)
	}
	now := r.s.now()
	c.VerifiedAt = &now
	r.s.challenges[id] = c
	return nil
}

func (r challengeRepo) CountRecent(_ context.Context, factorID uuid.UUID, since time.Time) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n := 0
	for _, c := range r.s.challenges {
		if c.FactorID == factorID && !c.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

type refreshRepo struct{ s *Store }

func (r refreshRepo) Create(_ context.Context, userID uuid.UUID, tokenHash string, aal model.AAL, amr []string, expiresAt time.Time) (uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rs := range r.s.refresh {
		if rs.TokenHash == tokenHash {
			return uuid.Nil, fmt.Errorf("insert refresh session: %w", uniqueViolation("refresh_sessions_token_hash_key"))
		}
	}
	rs := model.RefreshSession{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: tokenHash,
		AAL:       aal,
		AMR:       append([]string(nil), amr...),
		CreatedAt: r.s.now(),
		ExpiresAt: expiresAt,
	}
	r.s.refresh[rs.ID] = rs
	return rs.ID, nil
}

func (r refreshRepo) FindByTokenHash(ctx context.Context, tokenHash string) (model.RefreshSession, error) {
	rs, err := r.FindByTokenHashIncludeRevoked(ctx, tokenHash)
	if err != nil {
		return model.RefreshSession{}, err
	}
	if rs.RevokedAt != nil || !rs.ExpiresAt.After(r.s.now()) {
		return model.RefreshSession{}, fmt.Errorf("session not found: %w", repo.ErrNotFound)
	}
	return rs, nil
}

func (r refreshRepo) FindByTokenHashIncludeRevoked(_ context.Context, tokenHash string) (model.RefreshSession, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, rs := range r.s.refresh {
		if rs.TokenHash == tokenHash {
			return rs, nil
		}
	}
	return model.RefreshSession{}, fmt.Errorf("session not found: %w", repo.ErrNotFound)
}

func (r refreshRepo) RevokeAndSetReplacedBy(_ context.Context, sessionID uuid.UUID, replacedBy uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rs, ok := r.s.refresh[sessionID]
	if !ok {
		return fmt.Errorf("session not found: %w", repo.ErrNotFound)
	}
	now := r.s.now()
	rs.RevokedAt = &now
	rs.ReplacedBy = &replacedBy
	r.s.refresh[sessionID] = rs
	return nil
}

func (r refreshRepo) Revoke(_ context.Context, sessionID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rs, ok := r.s.refresh[sessionID]
	if !ok {
		return fmt.Errorf("session not found: %w", repo.ErrNotFound)
	}
	now := r.s.now()
	rs.RevokedAt = &now
	r.s.refresh[sessionID] = rs
	return nil
}

func (r refreshRepo) RevokeAllForUser(_ context.Context, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	for id, rs := range r.s.refresh {
		if rs.UserID == userID && rs.RevokedAt == nil {
			rs.RevokedAt = &now
			r.s.refresh[id] = rs
		}
	}
	return nil
}

type profileRepo struct{ s *Store }

func (r profileRepo) Create(_ context.Context, profile model.Profile) (model.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.profiles[profile.ID]; ok {
		return model.Profile{}, fmt.Errorf("failed to create profile: %w", uniqueViolation("users_pkey"))
	}
	for _, p := range r.s.profiles {
		if p.Email == profile.Email {
			return model.Profile{}, fmt.Errorf("failed to create profile: %w", uniqueViolation("users_email_key"))
		}
	}
	profile.CreatedAt = r.s.now()
	profile.UpdatedAt = profile.CreatedAt
	r.s.profiles[profile.ID] = profile
	return profile, nil
}

func (r profileRepo) Upsert(ctx context.Context, profile model.Profile) (model.Profile, error) {
	r.s.mu.Lock()
	existing, ok := r.s.profiles[profile.ID]
	if ok {
		if profile.Name != nil {
			existing.Name = profile.Name
		}
		existing.UpdatedAt = r.s.now()
		r.s.profiles[profile.ID] = existing
	}
	r.s.mu.Unlock()
	if ok {
		return existing, nil
	}
	return r.Create(ctx, profile)
}

func (r profileRepo) GetByID(_ context.Context, id uuid.UUID) (model.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.profiles[id]
	if !ok {
		return model.Profile{}, fmt.Errorf("profile not found: %w", repo.ErrNotFound)
	}
	return p, nil
}

type locationRepo struct{ s *Store }

func (r locationRepo) List(_ context.Context) ([]model.Location, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ratings := r.s.sortedRatingsLocked()
	out := make([]model.Location, 0, len(r.s.locations))
	for _, l := range r.s.locations {
		l.Ratings = make([]model.Rating, 0)
		for _, rt := range ratings {
			if rt.LocationID == l.ID {
				l.Ratings = append(l.Ratings, rt)
			}
		}
		out = append(out, l)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (r locationRepo) Create(_ context.Context, location model.Location) (model.Location, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	location.ID = uuid.New()
	location.CreatedAt = r.s.now()
	location.Ratings = make([]model.Rating, 0)
	r.s.locations[location.ID] = location
	return location, nil
}

type ratingRepo struct{ s *Store }

func (r ratingRepo) List(_ context.Context) ([]model.Rating, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.sortedRatingsLocked(), nil
}

func (r ratingRepo) Create(_ context.Context, rating model.Rating) (model.Rating, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.locations[rating.LocationID]; !ok {
		return model.Rating{}, fmt.Errorf("failed to create rating: %w", foreignKeyViolation("ratings_location_id_fkey"))
	}
	if _, ok := r.s.profiles[rating.UserID]; !ok {
		return model.Rating{}, fmt.Errorf("failed to create rating: %w", foreignKeyViolation("ratings_user_id_fkey"))
	}
	rating.ID = uuid.New()
	rating.CreatedAt = r.s.now()
	rating.User = nil
	r.s.ratings[rating.ID] = rating
	return rating, nil
}

// sortedRatingsLocked returns ratings newest first with the rater's name attached
func (s *Store) sortedRatingsLocked() []model.Rating {
	out := make([]model.Rating, 0, len(s.ratings))
	for _, rt := range s.ratings {
		author := &model.RatingAuthor{}
		if p, ok := s.profiles[rt.UserID]; ok {
			author.Name = p.Name
		}
		rt.User = author
		out = append(out, rt)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Time.After(out[b].Time) })
	return out
}
