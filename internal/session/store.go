// Package session holds the signed-in user and profile for the client application and
// tells subscribers when either changes.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/safespace/server/internal/auth"
	"github.com/safespace/server/internal/model"
)

// InitialLoadTimeout bounds the first session fetch
const InitialLoadTimeout = 10 * time.Second

// Provider is the auth provider as seen by the store
type Provider interface {
	Session(ctx context.Context) (*auth.Session, error)
	GetUser(ctx context.Context) (*model.AuthUser, error)
	SignIn(ctx context.Context, email, password string) error
	SignOut(ctx context.Context) error
	AuthLevel(ctx context.Context) (current, next model.AAL, err error)
	Profile(ctx context.Context, userID uuid.UUID) (*model.Profile, error)
	Subscribe() (<-chan model.AuthEvent, func())
}

// Snapshot is a consistent view of the store
type Snapshot struct {
	User    *model.AuthUser
	Profile *model.Profile
	Loading bool
	// Version counts processed auth events, the initial load included
	Version uint64
}

type subscriber struct {
	ch   chan uint64
	once sync.Once
}

func (s *subscriber) close() { s.once.Do(func() { close(s.ch) }) }

// Store is the session context. It is written only by its event loop.
type Store struct {
	provider    Provider
	logger      *zap.Logger
	loadTimeout time.Duration

	mu      sync.RWMutex
	user    *model.AuthUser
	profile *model.Profile
	loading bool
	version uint64
	subs    map[int]*subscriber
	nextID  int

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewStore creates a store in the loading state. Call Start to populate it.
func NewStore(provider Provider, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		provider:    provider,
		logger:      logger.Named("session"),
		loadTimeout: InitialLoadTimeout,
		loading:     true,
		subs:        make(map[int]*subscriber),
		done:        make(chan struct{}),
	}
}

// Start loads the initial session and then follows provider events until ctx is done or
// Close is called. Only the first call has an effect.
func (s *Store) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, s.cancel = context.WithCancel(ctx)
		// subscribe before loading so no event is missed
		events, unsubscribe := s.provider.Subscribe()
		go func() {
			defer close(s.done)
			defer unsubscribe()
			s.initialLoad(ctx)
			s.follow(ctx, events)
		}()
	})
}

func (s *Store) initialLoad(ctx context.Context) {
	loadCtx, cancel := context.WithTimeout(ctx, s.loadTimeout)
	defer cancel()

	current, err := s.provider.Session(loadCtx)
	if err != nil {
		// fail safe: no identity, no retry. The load still counts as one event so
		// subscribers waiting on it re-derive.
		s.logger.Warn("initial session load failed", zap.Error(err))
		s.apply(nil, nil)
		return
	}

	var (
		user    *model.AuthUser
		profile *model.Profile
	)
	if current != nil && current.User != nil {
		user = current.User
		profile = s.fetchProfile(loadCtx, user.ID)
	}
	s.apply(user, profile)
}

func (s *Store) follow(ctx context.Context, events <-chan model.AuthEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handle(ctx, ev)
		}
	}
}

func (s *Store) handle(ctx context.Context, ev model.AuthEvent) {
	s.logger.Debug("auth event", zap.String("event", string(ev.Type)), zap.String("user_id", ev.UserID))

	s.mu.RLock()
	profile := s.profile
	s.mu.RUnlock()

	switch {
	case ev.Type == model.EventSignedIn && ev.User != nil:
		profile = s.fetchProfile(ctx, ev.User.ID)
	case ev.Type == model.EventSignedOut:
		profile = nil
	}
	s.apply(ev.User, profile)
}

// fetchProfile returns nil on any error
func (s *Store) fetchProfile(ctx context.Context, userID uuid.UUID) *model.Profile {
	profile, err := s.provider.Profile(ctx, userID)
	if err != nil {
		s.logger.Warn("profile fetch failed", zap.String("user_id", userID.String()), zap.Error(err))
		return nil
	}
	return profile
}

func (s *Store) apply(user *model.AuthUser, profile *model.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
	s.profile = profile
	s.loading = false
	s.version++
	for _, sub := range s.subs {
		notify(sub.ch, s.version)
	}
}

// notify delivers v, replacing an unread older version
func notify(ch chan uint64, v uint64) {
	for {
		select {
		case ch <- v:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

// Close stops the event loop and closes every subscription
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		// a store that was never started has no loop to wait for
		s.startOnce.Do(func() { close(s.done) })
		if s.cancel != nil {
			s.cancel()
		}
		<-s.done

		s.mu.Lock()
		defer s.mu.Unlock()
		for id, sub := range s.subs {
			sub.close()
			delete(s.subs, id)
		}
	})
}

// Subscribe returns a channel that receives the store version after every change.
// A slow reader only sees the latest version.
func (s *Store) Subscribe() (<-chan uint64, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	sub := &subscriber{ch: make(chan uint64, 1)}
	s.subs[id] = sub
	return sub.ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			sub.close()
		}
	}
}

// Snapshot returns the current state
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{User: s.user, Profile: s.profile, Loading: s.loading, Version: s.version}
}

// Version returns the number of processed auth events
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// CurrentUser asks the provider for the signed-in user. Errors yield nil.
func (s *Store) CurrentUser(ctx context.Context) *model.AuthUser {
	user, err := s.provider.GetUser(ctx)
	if err != nil {
		s.logger.Debug("get user failed", zap.Error(err))
		return nil
	}
	return user
}

// SignIn delegates to the provider. The store itself changes when the sign-in event arrives.
func (s *Store) SignIn(ctx context.Context, email, password string) error {
	return s.provider.SignIn(ctx, email, password)
}

// SignOut delegates to the provider
func (s *Store) SignOut(ctx context.Context) error {
	return s.provider.SignOut(ctx)
}

// AuthLevel returns the provider's assurance levels; with no user held it is (aal0, "", nil)
func (s *Store) AuthLevel(ctx context.Context) (current, next model.AAL, err error) {
	s.mu.RLock()
	user := s.user
	s.mu.RUnlock()
	if user == nil {
		return model.AAL0, "", nil
	}
	return s.provider.AuthLevel(ctx)
}
