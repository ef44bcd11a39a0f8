package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/safespace/server/internal/errmsg"
	"github.com/safespace/server/internal/forms"
	"github.com/safespace/server/internal/gate"
	"github.com/safespace/server/internal/model"
	"github.com/safespace/server/internal/session"
)

const promptAttempts = 3

type viewEvent struct {
	state   string
	message string
}

// chanView hands gate renders to the command loop, keeping only the latest one
type chanView struct {
	ch chan viewEvent
}

func newChanView() *chanView {
	return &chanView{ch: make(chan viewEvent, 1)}
}

func (v *chanView) push(e viewEvent) {
	for {
		select {
		case v.ch <- e:
			return
		default:
			select {
			case <-v.ch:
			default:
			}
		}
	}
}

func (v *chanView) Loading()              { v.push(viewEvent{state: "loading"}) }
func (v *chanView) SignIn(message string) { v.push(viewEvent{state: "signin", message: message}) }
func (v *chanView) MFA(message string)    { v.push(viewEvent{state: "mfa", message: message}) }
func (v *chanView) Authenticated()        { v.push(viewEvent{state: "authenticated"}) }
func (v *chanView) Redirect(target string) {
	v.push(viewEvent{state: "redirect", message: target})
}

// protected runs fn once the gate lets the user through, prompting for sign-in and the
// MFA code on the way when running in a terminal
func protected(ctx context.Context, fn func(ctx context.Context, snap session.Snapshot) error) error {
	store := session.NewStore(api, logger)
	defer store.Close()
	store.Start(ctx)
	if err := waitLoaded(ctx, store); err != nil {
		return err
	}

	view := newChanView()
	g := gate.New(store, api, view, gate.Options{
		DefaultRoute: cfg.DefaultRoute,
		ClearSession: func() {
			if err := api.ClearSession(); err != nil {
				logger.Warn("clear session", zap.Error(err))
			}
		},
		Logger: logger,
	})
	defer g.Close()
	g.Run()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-view.ch:
			switch ev.state {
			case "loading":
				logger.Debug("checking session")
			case "signin":
				if err := promptSignIn(ctx, store, ev.message); err != nil {
					return err
				}
			case "mfa":
				if err := promptMFA(ctx, ev.message); err != nil {
					return err
				}
			case "authenticated":
				return fn(ctx, store.Snapshot())
			case "redirect":
				return &exitMessage{message: redirectMessage(ev.message)}
			}
		}
	}
}

func waitLoaded(ctx context.Context, store *session.Store) error {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for store.Snapshot().Loading {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func redirectMessage(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	if m := u.Query().Get("message"); m != "" {
		return m
	}
	return target
}

// promptSignIn returns once a sign-in succeeded; the store's sign-in event moves the gate on
func promptSignIn(ctx context.Context, store *session.Store, message string) error {
	if !interactive() {
		return &exitMessage{message: message + ": run `safespace signin` first"}
	}
	fmt.Fprintln(os.Stderr, message)
	for attempt := 0; attempt < promptAttempts; attempt++ {
		var email, password string
		if err := ask("Email", &email); err != nil {
			return err
		}
		if err := askPassword(&password); err != nil {
			return err
		}
		if err := forms.ValidateSignIn(email, password); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			continue
		}
		err := store.SignIn(ctx, email, password)
		if err == nil {
			return nil
		}
		fmt.Fprintln(os.Stderr, errmsg.TranslateErr(err).Message)
	}
	return &exitMessage{message: "too many failed sign-in attempts"}
}

// promptMFA verifies a code against the first verified TOTP factor
func promptMFA(ctx context.Context, message string) error {
	if !interactive() {
		return &exitMessage{message: message + ": run `safespace mfa verify --code` first"}
	}
	list, err := api.ListFactors(ctx)
	if err != nil {
		return err
	}
	factor, ok := verifiedTOTP(list)
	if !ok {
		return &exitMessage{message: gate.MsgIdentityIssue}
	}

	fmt.Fprintln(os.Stderr, message)
	for attempt := 0; attempt < promptAttempts; attempt++ {
		var code string
		if err := askCode(&code); err != nil {
			return err
		}
		if err := forms.ValidateCode(code); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			continue
		}
		_, err := api.ChallengeAndVerify(ctx, factor.ID, code)
		if err == nil {
			return nil
		}
		fmt.Fprintln(os.Stderr, errmsg.TranslateErr(err).Message)
	}
	return &exitMessage{message: "too many failed verification attempts"}
}

func verifiedTOTP(list *model.FactorList) (model.Factor, bool) {
	if list == nil {
		return model.Factor{}, false
	}
	for _, f := range list.TOTP {
		if f.Type == model.FactorTOTP && f.Status == model.FactorVerified {
			return f, true
		}
	}
	return model.Factor{}, false
}
