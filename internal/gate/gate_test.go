package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safespace/server/internal/auth"
	"github.com/safespace/server/internal/errmsg"
	"github.com/safespace/server/internal/model"
)

// fakeSession is a session context whose answers the test controls
type fakeSession struct {
	mu      sync.Mutex
	user    *model.AuthUser
	current model.AAL
	next    model.AAL
	aalErr  error
	version uint64
	subs    []chan uint64
	// hold, when set, blocks AuthLevel for the given version until released
	hold map[uint64]chan struct{}
}

func newFakeSession() *fakeSession {
	return &fakeSession{hold: make(map[uint64]chan struct{})}
}

func (f *fakeSession) CurrentUser(context.Context) *model.AuthUser {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user
}

// AuthLevel answers with the levels as they were when it was called
func (f *fakeSession) AuthLevel(ctx context.Context) (model.AAL, model.AAL, error) {
	f.mu.Lock()
	wait := f.hold[f.version]
	current, next, err := f.current, f.next, f.aalErr
	f.mu.Unlock()
	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return "", "", ctx.Err()
		}
	}
	return current, next, err
}

func (f *fakeSession) Version() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version
}

func (f *fakeSession) Subscribe() (<-chan uint64, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan uint64, 1)
	f.subs = append(f.subs, ch)
	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, c := range f.subs {
			if c == ch {
				f.subs = append(f.subs[:i], f.subs[i+1:]...)
				return
			}
		}
	}
}

// update changes the session and bumps the version like an auth event would
func (f *fakeSession) update(change func(*fakeSession)) {
	f.mu.Lock()
	change(f)
	f.version++
	v := f.version
	subs := f.subs
	f.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- v:
		default:
		}
	}
}

type fakeFactors struct {
	mu   sync.Mutex
	list *model.FactorList
	err  error
}

func (f *fakeFactors) ListFactors(context.Context) (*model.FactorList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list, f.err
}

func (f *fakeFactors) set(list *model.FactorList, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.list, f.err = list, err
}

func factors(statuses ...model.FactorStatus) *model.FactorList {
	list := &model.FactorList{}
	for _, s := range statuses {
		f := model.Factor{ID: uuid.New(), Type: model.FactorTOTP, Status: s}
		list.All = append(list.All, f)
		if s == model.FactorVerified {
			list.TOTP = append(list.TOTP, f)
		}
	}
	return list
}

// recordingView records rendered states as strings
type recordingView struct {
	mu     sync.Mutex
	events []string
}

func (v *recordingView) add(s string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.events = append(v.events, s)
}

func (v *recordingView) Loading()              { v.add("loading") }
func (v *recordingView) SignIn(message string) { v.add("signin:" + message) }
func (v *recordingView) MFA(string)            { v.add("mfa") }
func (v *recordingView) Authenticated()        { v.add("authenticated") }
func (v *recordingView) Redirect(url string)   { v.add("redirect:" + url) }

func (v *recordingView) all() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.events...)
}

func (v *recordingView) last() string {
	all := v.all()
	if len(all) == 0 {
		return ""
	}
	return all[len(all)-1]
}

func signedIn(current, next model.AAL) func(*fakeSession) {
	return func(f *fakeSession) {
		f.user = &model.AuthUser{ID: uuid.New(), Email: "ana@example.com"}
		f.current, f.next = current, next
	}
}

func TestDerive(t *testing.T) {
	tests := []struct {
		name       string
		session    func(*fakeSession)
		list       *model.FactorList
		factorsErr error
		want       State
	}{
		{
			name:    "no user",
			session: func(*fakeSession) {},
			want:    SignIn{Message: MsgSignIn},
		},
		{
			name:    "aal error is translated",
			session: func(f *fakeSession) { signedIn("", "")(f); f.aalErr = auth.ErrSessionMissing },
			want:    Error{Message: errmsg.MsgSignInFirst},
		},
		{
			name:    "missing level",
			session: signedIn(model.AAL1, ""),
			list:    factors(),
			want:    SignIn{Message: MsgSignIn},
		},
		{
			name:       "factor error is translated",
			session:    signedIn(model.AAL1, model.AAL1),
			factorsErr: fmt.Errorf("list: %w", auth.ErrUserNotFound),
			want:       Error{Message: errmsg.MsgClearCookies, ClearSession: true},
		},
		{
			name:    "no factor list",
			session: signedIn(model.AAL1, model.AAL1),
			want:    Error{Message: MsgIdentityIssue},
		},
		{
			name:    "no verified factor passes even when levels differ",
			session: signedIn(model.AAL1, model.AAL2),
			list:    factors(model.FactorUnverified),
			want:    Authenticated{},
		},
		{
			name:    "verified factor below aal2",
			session: signedIn(model.AAL1, model.AAL2),
			list:    factors(model.FactorUnverified, model.FactorVerified),
			want:    MFA{Message: MsgMFA},
		},
		{
			name:    "verified factor at aal2",
			session: signedIn(model.AAL2, model.AAL2),
			list:    factors(model.FactorVerified),
			want:    Authenticated{},
		},
		{
			name:    "no factors",
			session: signedIn(model.AAL1, model.AAL1),
			list:    factors(),
			want:    Authenticated{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFakeSession()
			tt.session(s)
			got := Derive(context.Background(), s, &fakeFactors{list: tt.list, err: tt.factorsErr})
			if got != tt.want {
				t.Errorf("Derive() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func newGate(t *testing.T, s *fakeSession, f *fakeFactors) (*Gate, *recordingView) {
	t.Helper()
	view := &recordingView{}
	g := New(s, f, view, Options{DefaultRoute: "/map"})
	t.Cleanup(g.Close)
	return g, view
}

func waitFor(t *testing.T, view *recordingView, want string) {
	t.Helper()
	require.Eventually(t, func() bool { return view.last() == want }, 2*time.Second, 5*time.Millisecond,
		"last rendered state %q, want %q", view.last(), want)
}

func TestGate_RendersLoadingThenState(t *testing.T) {
	s := newFakeSession()
	g, view := newGate(t, s, &fakeFactors{list: factors()})
	g.Run()

	waitFor(t, view, "signin:"+MsgSignIn)
	assert.Equal(t, "loading", view.all()[0])
	assert.Equal(t, SignIn{Message: MsgSignIn}, g.State())
}

func TestGate_SignedOutAlwaysSignsIn(t *testing.T) {
	s := newFakeSession()
	signedIn(model.AAL1, model.AAL1)(s)
	g, view := newGate(t, s, &fakeFactors{list: factors()})
	g.Run()
	waitFor(t, view, "authenticated")

	s.update(func(f *fakeSession) { f.user = nil })
	waitFor(t, view, "signin:"+MsgSignIn)
	assert.Equal(t, SignIn{Message: MsgSignIn}, g.State())
}

func TestGate_MFAThenAuthenticated(t *testing.T) {
	s := newFakeSession()
	signedIn(model.AAL1, model.AAL2)(s)
	g, view := newGate(t, s, &fakeFactors{list: factors(model.FactorVerified)})
	g.Run()
	waitFor(t, view, "mfa")

	s.update(func(f *fakeSession) { f.current = model.AAL2 })
	waitFor(t, view, "authenticated")
	assert.Equal(t, Authenticated{}, g.State())
}

func TestGate_RefreshAfterSignIn(t *testing.T) {
	s := newFakeSession()
	g, view := newGate(t, s, &fakeFactors{list: factors()})
	g.Run()
	waitFor(t, view, "signin:"+MsgSignIn)

	// the prompt succeeded; the session changed without a version bump yet
	s.mu.Lock()
	signedIn(model.AAL1, model.AAL1)(s)
	s.mu.Unlock()
	g.Refresh()
	waitFor(t, view, "authenticated")
}

func TestGate_ErrorRedirects(t *testing.T) {
	s := newFakeSession()
	signedIn(model.AAL1, model.AAL1)(s)
	f := &fakeFactors{}
	f.set(nil, errors.New("boom"))

	cleared := make(chan struct{}, 1)
	view := &recordingView{}
	g := New(s, f, view, Options{DefaultRoute: "/map", ClearSession: func() { cleared <- struct{}{} }})
	defer g.Close()
	g.Run()

	waitFor(t, view, "redirect:/map?message=boom")

	f.set(nil, auth.ErrUserNotFound)
	s.update(func(*fakeSession) {})
	require.Eventually(t, func() bool { return strings.HasPrefix(view.last(), "redirect:/map?message=Please+clear") }, 2*time.Second, 5*time.Millisecond)
	select {
	case <-cleared:
	case <-time.After(time.Second):
		t.Fatal("session was not cleared")
	}
}

func TestGate_DiscardsStaleDerivation(t *testing.T) {
	s := newFakeSession()
	signedIn(model.AAL1, model.AAL2)(s)
	release := make(chan struct{})
	s.hold[0] = release

	g, view := newGate(t, s, &fakeFactors{list: factors(model.FactorVerified)})
	g.Run()

	// version 1 finishes first with aal2; the held version 0 derivation would say MFA
	s.update(func(f *fakeSession) { f.current = model.AAL2 })
	waitFor(t, view, "authenticated")

	close(release)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, Authenticated{}, g.State())
	assert.NotContains(t, view.all(), "mfa")
}

func TestGate_CloseStopsUpdates(t *testing.T) {
	s := newFakeSession()
	signedIn(model.AAL1, model.AAL1)(s)
	s.hold[0] = make(chan struct{})

	g, view := newGate(t, s, &fakeFactors{list: factors()})
	g.Run()
	g.Close()

	s.update(func(*fakeSession) {})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"loading"}, view.all())
	assert.Equal(t, Loading{}, g.State())
}
