package gate

import (
	"context"
	"net/url"
	"sync"

	"go.uber.org/zap"
)

// View renders gate states. Calls are serialized and arrive in derivation order; a view
// must not block on the gate.
type View interface {
	Loading()
	SignIn(message string)
	MFA(message string)
	Authenticated()
	// Redirect leaves the protected view; url is the default route with ?message= attached
	Redirect(url string)
}

// Options configure a Gate
type Options struct {
	DefaultRoute string
	// ClearSession runs before the redirect of an Error state that asks for it
	ClearSession func()
	Logger       *zap.Logger
}

// Gate re-derives its state on start, on Refresh and whenever the session version changes.
// A derivation that finishes after the session has moved on is discarded.
type Gate struct {
	session      Session
	factors      Factors
	view         View
	defaultRoute string
	clearSession func()
	logger       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	renderMu    sync.Mutex
	state       State
	seq         uint64
	appliedSeq  uint64
	running     bool
	closed      bool
	unsubscribe func()
}

// New creates a gate in the Loading state
func New(session Session, factors Factors, view View, opts Options) *Gate {
	if opts.DefaultRoute == "" {
		opts.DefaultRoute = "/"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Gate{
		session:      session,
		factors:      factors,
		view:         view,
		defaultRoute: opts.DefaultRoute,
		clearSession: opts.ClearSession,
		logger:       opts.Logger.Named("gate"),
		ctx:          ctx,
		cancel:       cancel,
		state:        Loading{},
	}
}

// Run renders Loading, starts the first derivation and follows session changes
func (g *Gate) Run() {
	g.mu.Lock()
	if g.running || g.closed {
		g.mu.Unlock()
		return
	}
	g.running = true
	versions, unsubscribe := g.session.Subscribe()
	g.unsubscribe = unsubscribe
	g.renderMu.Lock()
	g.mu.Unlock()
	g.view.Loading()
	g.renderMu.Unlock()

	g.Refresh()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		for {
			select {
			case <-g.ctx.Done():
				return
			case _, ok := <-versions:
				if !ok {
					return
				}
				g.Refresh()
			}
		}
	}()
}

// Refresh starts a new derivation, e.g. after a successful sign-in or MFA prompt
func (g *Gate) Refresh() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.seq++
	seq := g.seq
	g.wg.Add(1)
	g.mu.Unlock()

	version := g.session.Version()
	go func() {
		defer g.wg.Done()
		g.apply(version, seq, Derive(g.ctx, g.session, g.factors))
	}()
}

func (g *Gate) apply(version, seq uint64, next State) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	if current := g.session.Version(); current != version || seq < g.appliedSeq {
		g.logger.Debug("discarding stale gate state", zap.Uint64("stamp", version), zap.Uint64("version", current))
		g.mu.Unlock()
		return
	}
	g.appliedSeq = seq
	changed := next != g.state
	g.state = next
	if !changed {
		g.mu.Unlock()
		return
	}
	g.renderMu.Lock()
	g.mu.Unlock()
	defer g.renderMu.Unlock()
	g.render(next)
}

func (g *Gate) render(s State) {
	switch s := s.(type) {
	case Loading:
		g.view.Loading()
	case SignIn:
		g.view.SignIn(s.Message)
	case MFA:
		g.view.MFA(s.Message)
	case Authenticated:
		g.view.Authenticated()
	case Error:
		g.logger.Info("gate error", zap.String("message", s.Message))
		if s.ClearSession && g.clearSession != nil {
			g.clearSession()
		}
		g.view.Redirect(g.defaultRoute + "?message=" + url.QueryEscape(s.Message))
	}
}

// State returns the last applied state
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Close cancels in-flight derivations; no state is applied or rendered afterwards
func (g *Gate) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.cancel()
	if g.unsubscribe != nil {
		g.unsubscribe()
	}
	g.mu.Unlock()
	g.wg.Wait()
}
