// Package gate decides what a protected view shows: a sign-in prompt, an MFA prompt,
// the content itself, or an error.
package gate

import (
	"context"

	"github.com/safespace/server/internal/errmsg"
	"github.com/safespace/server/internal/model"
)

const (
	MsgSignIn        = "Please sign in"
	MsgMFA           = "Please complete your multi-factor authentication"
	MsgIdentityIssue = "There was an issue verifying the user's identity. Please try again later or refresh"
)

// State is one of Loading, SignIn, MFA, Authenticated or Error
type State interface {
	isState()
}

type (
	Loading       struct{}
	SignIn        struct{ Message string }
	MFA           struct{ Message string }
	Authenticated struct{}
	// Error carries a user-facing message. ClearSession asks the view to drop the stored session.
	Error struct {
		Message      string
		ClearSession bool
	}
)

func (Loading) isState()       {}
func (SignIn) isState()        {}
func (MFA) isState()           {}
func (Authenticated) isState() {}
func (Error) isState()         {}

// Session is the session context the gate reads
type Session interface {
	CurrentUser(ctx context.Context) *model.AuthUser
	AuthLevel(ctx context.Context) (current, next model.AAL, err error)
	Version() uint64
	Subscribe() (<-chan uint64, func())
}

// Factors lists the signed-in user's MFA factors
type Factors interface {
	ListFactors(ctx context.Context) (*model.FactorList, error)
}

// Derive computes the state from scratch
func Derive(ctx context.Context, session Session, factors Factors) State {
	if session.CurrentUser(ctx) == nil {
		return SignIn{Message: MsgSignIn}
	}

	current, next, err := session.AuthLevel(ctx)
	if err != nil {
		return errorState(err)
	}
	if current == "" || next == "" {
		return SignIn{Message: MsgSignIn}
	}

	list, err := factors.ListFactors(ctx)
	if err != nil {
		return errorState(err)
	}
	if list == nil {
		return Error{Message: MsgIdentityIssue}
	}

	if list.HasVerifiedTOTP() && next == model.AAL2 && next != current {
		return MFA{Message: MsgMFA}
	}
	return Authenticated{}
}

func errorState(err error) State {
	t := errmsg.TranslateErr(err)
	return Error{Message: t.Message, ClearSession: t.ClearSession}
}
