// Package enroll runs TOTP enrollment for the signed-in user: discard stale factors,
// enroll a new one, verify the first code.
package enroll

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/safespace/server/internal/auth"
	"github.com/safespace/server/internal/errmsg"
	"github.com/safespace/server/internal/forms"
	"github.com/safespace/server/internal/model"
)

// RedirectDelay is how long Success stays on screen before the redirect
const RedirectDelay = 3 * time.Second

const (
	MsgSignInFirst    = "Please sign in before enabling multi-factor authentication"
	MsgAlreadyEnabled = "Multi-factor authentication is already enabled"
	MsgEnrollIssue    = "There was an issue enabling multi-factor authentication. Please try again later or refresh"
	MsgEnabled        = "Successfully enabled multi-factor authentication"
	MsgNotReady       = "There was an issue. Please try again later or refresh"
)

// State is one of PageLoading, Ready, Verifying, Success or Failed
type State interface {
	isState()
}

type (
	PageLoading struct{}
	// Ready holds what the authenticator app needs
	Ready struct {
		FactorID uuid.UUID
		QRCode   string
		Secret   string
		URI      string
	}
	Verifying struct{}
	Success   struct{ Message string }
	Failed    struct{ Message string }
)

func (PageLoading) isState() {}
func (Ready) isState()       {}
func (Verifying) isState()   {}
func (Success) isState()     {}
func (Failed) isState()      {}

// Provider is the slice of the auth client the flow needs
type Provider interface {
	GetUser(ctx context.Context) (*model.AuthUser, error)
	ListFactors(ctx context.Context) (*model.FactorList, error)
	Enroll(ctx context.Context, friendlyName string) (*model.Enrollment, error)
	Unenroll(ctx context.Context, factorID uuid.UUID) error
	ChallengeAndVerify(ctx context.Context, factorID uuid.UUID, code string) (*auth.Session, error)
}

// Options configure a Flow
type Options struct {
	FriendlyName  string
	DefaultRoute  string
	RedirectDelay time.Duration
	// Redirect is called once, RedirectDelay after a successful verification
	Redirect func(url string)
	Logger   *zap.Logger
}

// Flow is a single enrollment attempt. It is safe for concurrent use.
type Flow struct {
	provider Provider
	opts     Options
	logger   *zap.Logger

	mu       sync.Mutex
	state    State
	factorID uuid.UUID
	timer    *time.Timer
	closed   bool
}

// New creates a flow in the PageLoading state
func New(provider Provider, opts Options) *Flow {
	if opts.DefaultRoute == "" {
		opts.DefaultRoute = "/"
	}
	if opts.RedirectDelay <= 0 {
		opts.RedirectDelay = RedirectDelay
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Flow{
		provider: provider,
		opts:     opts,
		logger:   opts.Logger.Named("enroll"),
		state:    PageLoading{},
	}
}

// Start checks the user, discards unverified factors and enrolls a new TOTP factor
func (f *Flow) Start(ctx context.Context) State {
	f.set(PageLoading{})

	user, err := f.provider.GetUser(ctx)
	if err != nil {
		return f.set(failed(err))
	}
	if user == nil {
		return f.set(Failed{Message: MsgSignInFirst})
	}

	list, err := f.provider.ListFactors(ctx)
	if err != nil {
		return f.set(failed(err))
	}
	if list == nil {
		return f.set(Failed{Message: MsgEnrollIssue})
	}
	f.discardUnverified(ctx, list)

	if list.HasVerifiedTOTP() {
		return f.set(Success{Message: MsgAlreadyEnabled})
	}

	enrollment, err := f.provider.Enroll(ctx, f.opts.FriendlyName)
	if err != nil {
		return f.set(failed(err))
	}
	if enrollment == nil || enrollment.ID == uuid.Nil {
		return f.set(Failed{Message: MsgEnrollIssue})
	}

	f.mu.Lock()
	f.factorID = enrollment.ID
	f.mu.Unlock()
	return f.set(Ready{
		FactorID: enrollment.ID,
		QRCode:   enrollment.TOTP.QRCode,
		Secret:   enrollment.TOTP.Secret,
		URI:      enrollment.TOTP.URI,
	})
}

func (f *Flow) discardUnverified(ctx context.Context, list *model.FactorList) {
	for _, factor := range list.All {
		if factor.Status != model.FactorUnverified {
			continue
		}
		if err := f.provider.Unenroll(ctx, factor.ID); err != nil {
			f.logger.Warn("unenroll unverified factor", zap.String("factor_id", factor.ID.String()), zap.Error(err))
		}
	}
}

// Verify challenges the enrolled factor and checks code against it. A failed
// verification keeps the factor so the user can try another code.
func (f *Flow) Verify(ctx context.Context, code string) State {
	if err := forms.ValidateCode(code); err != nil {
		return f.set(Failed{Message: err.Error()})
	}

	f.mu.Lock()
	factorID := f.factorID
	f.mu.Unlock()
	if factorID == uuid.Nil {
		return f.set(Failed{Message: MsgNotReady})
	}

	f.set(Verifying{})
	if _, err := f.provider.ChallengeAndVerify(ctx, factorID, code); err != nil {
		return f.set(failed(err))
	}

	f.mu.Lock()
	f.factorID = uuid.Nil
	f.mu.Unlock()
	s := f.set(Success{Message: MsgEnabled})
	f.scheduleRedirect()
	return s
}

func (f *Flow) scheduleRedirect() {
	if f.opts.Redirect == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.timer != nil {
		return
	}
	target := f.opts.DefaultRoute
	f.timer = time.AfterFunc(f.opts.RedirectDelay, func() { f.opts.Redirect(target) })
}

// State returns the current state
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Close cancels a pending redirect
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	if f.timer != nil {
		f.timer.Stop()
	}
}

func (f *Flow) set(s State) State {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
	return s
}

func failed(err error) State {
	return Failed{Message: errmsg.TranslateErr(err).Message}
}
