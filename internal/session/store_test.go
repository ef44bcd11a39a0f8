package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safespace/server/internal/auth"
	"github.com/safespace/server/internal/model"
)

type fakeProvider struct {
	mu           sync.Mutex
	session      *auth.Session
	sessionErr   error
	blockSession bool
	user         *model.AuthUser
	userErr      error
	aalCalls     int
	profiles     map[uuid.UUID]*model.Profile
	profileErr   error
	events       chan model.AuthEvent
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		profiles: make(map[uuid.UUID]*model.Profile),
		events:   make(chan model.AuthEvent, 8),
	}
}

func (f *fakeProvider) Session(ctx context.Context) (*auth.Session, error) {
	if f.blockSession {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.session, f.sessionErr
}

func (f *fakeProvider) GetUser(context.Context) (*model.AuthUser, error) {
	return f.user, f.userErr
}

func (f *fakeProvider) SignIn(context.Context, string, string) error { return nil }
func (f *fakeProvider) SignOut(context.Context) error                { return nil }

func (f *fakeProvider) AuthLevel(context.Context) (model.AAL, model.AAL, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aalCalls++
	return model.AAL1, model.AAL2, nil
}

func (f *fakeProvider) Profile(_ context.Context, id uuid.UUID) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return f.profiles[id], nil
}

func (f *fakeProvider) Subscribe() (<-chan model.AuthEvent, func()) {
	return f.events, func() {}
}

func newUser(name string) (*model.AuthUser, *model.Profile) {
	id := uuid.New()
	return &model.AuthUser{ID: id, Email: name + "@example.com", Role: model.RoleUser},
		&model.Profile{ID: id, Email: name + "@example.com", Name: &name}
}

func waitVersion(t *testing.T, s *Store, v uint64) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Version() >= v }, 2*time.Second, 5*time.Millisecond)
}

func TestStore_InitialLoad(t *testing.T) {
	p := newFakeProvider()
	user, profile := newUser("ana")
	p.session = &auth.Session{AccessToken: "a", User: user}
	p.profiles[user.ID] = profile

	s := NewStore(p, nil)
	defer s.Close()
	assert.True(t, s.Snapshot().Loading)

	s.Start(context.Background())
	waitVersion(t, s, 1)

	snap := s.Snapshot()
	assert.False(t, snap.Loading)
	assert.Equal(t, uint64(1), snap.Version)
	assert.Equal(t, user.ID, snap.User.ID)
	require.NotNil(t, snap.Profile)
	assert.Equal(t, "ana", *snap.Profile.Name)
}

func TestStore_InitialLoadWithoutSession(t *testing.T) {
	s := NewStore(newFakeProvider(), nil)
	defer s.Close()
	s.Start(context.Background())
	waitVersion(t, s, 1)

	snap := s.Snapshot()
	assert.Nil(t, snap.User)
	assert.Nil(t, snap.Profile)
	assert.False(t, snap.Loading)
}

func TestStore_InitialLoadTimeout(t *testing.T) {
	p := newFakeProvider()
	p.blockSession = true

	s := NewStore(p, nil)
	s.loadTimeout = 20 * time.Millisecond
	defer s.Close()

	updates, cancel := s.Subscribe()
	defer cancel()
	s.Start(context.Background())

	select {
	case v := <-updates:
		assert.Equal(t, uint64(1), v)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber not notified after the load timed out")
	}
	snap := s.Snapshot()
	assert.False(t, snap.Loading)
	assert.Nil(t, snap.User)
	assert.Equal(t, uint64(1), snap.Version, "a failed load still counts as one event")
}

func TestStore_InitialLoadError(t *testing.T) {
	p := newFakeProvider()
	p.sessionErr = errors.New("token file unreadable")

	s := NewStore(p, nil)
	defer s.Close()
	s.Start(context.Background())

	waitVersion(t, s, 1)
	snap := s.Snapshot()
	assert.False(t, snap.Loading)
	assert.Nil(t, snap.User)
}

func TestStore_FollowsEvents(t *testing.T) {
	p := newFakeProvider()
	user, profile := newUser("ana")
	p.profiles[user.ID] = profile

	s := NewStore(p, nil)
	defer s.Close()
	s.Start(context.Background())
	waitVersion(t, s, 1)

	p.events <- model.AuthEvent{Type: model.EventSignedIn, User: user}
	waitVersion(t, s, 2)
	snap := s.Snapshot()
	assert.Equal(t, user.ID, snap.User.ID)
	require.NotNil(t, snap.Profile, "sign-in fetches the profile")

	p.events <- model.AuthEvent{Type: model.EventTokenRefreshed, User: user}
	waitVersion(t, s, 3)
	assert.NotNil(t, s.Snapshot().Profile, "other events keep the cached profile")

	p.events <- model.AuthEvent{Type: model.EventSignedOut}
	waitVersion(t, s, 4)
	snap = s.Snapshot()
	assert.Nil(t, snap.User)
	assert.Nil(t, snap.Profile)
}

func TestStore_ProfileErrorClearsProfile(t *testing.T) {
	p := newFakeProvider()
	p.profileErr = errors.New("profile route down")
	user, _ := newUser("ana")

	s := NewStore(p, nil)
	defer s.Close()
	s.Start(context.Background())
	p.events <- model.AuthEvent{Type: model.EventSignedIn, User: user}
	waitVersion(t, s, 2)

	snap := s.Snapshot()
	assert.NotNil(t, snap.User)
	assert.Nil(t, snap.Profile)
}

func TestStore_SubscribeDeliversLatestVersion(t *testing.T) {
	p := newFakeProvider()
	user, _ := newUser("ana")

	s := NewStore(p, nil)
	defer s.Close()
	versions, cancel := s.Subscribe()
	defer cancel()

	s.Start(context.Background())
	for i := 0; i < 3; i++ {
		p.events <- model.AuthEvent{Type: model.EventUserUpdated, User: user}
	}
	waitVersion(t, s, 4)

	select {
	case v := <-versions:
		assert.Equal(t, uint64(4), v)
	case <-time.After(time.Second):
		t.Fatal("no version delivered")
	}
}

func TestStore_AuthLevelWithoutUser(t *testing.T) {
	p := newFakeProvider()
	s := NewStore(p, nil)
	defer s.Close()

	current, next, err := s.AuthLevel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.AAL0, current)
	assert.Equal(t, model.AAL(""), next)
	assert.Zero(t, p.aalCalls, "provider is not asked without a user")
}

func TestStore_AuthLevelWithUser(t *testing.T) {
	p := newFakeProvider()
	user, _ := newUser("ana")
	p.session = &auth.Session{User: user}

	s := NewStore(p, nil)
	defer s.Close()
	s.Start(context.Background())
	waitVersion(t, s, 1)

	current, next, err := s.AuthLevel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.AAL1, current)
	assert.Equal(t, model.AAL2, next)
}

func TestStore_CurrentUserFailsSoft(t *testing.T) {
	p := newFakeProvider()
	p.userErr = errors.New("network down")
	s := NewStore(p, nil)
	defer s.Close()
	assert.Nil(t, s.CurrentUser(context.Background()))

	user, _ := newUser("ana")
	p.userErr = nil
	p.user = user
	assert.Equal(t, user, s.CurrentUser(context.Background()))
}

func TestStore_Close(t *testing.T) {
	s := NewStore(newFakeProvider(), nil)
	versions, _ := s.Subscribe()
	s.Start(context.Background())
	s.Close()
	s.Close()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-versions:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestStore_CloseWithoutStart(t *testing.T) {
	s := NewStore(newFakeProvider(), nil)
	s.Close()
	s.Start(context.Background())
	assert.Equal(t, uint64(0), s.Version())
}
