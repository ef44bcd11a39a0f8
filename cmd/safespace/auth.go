package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/safespace/server/internal/forms"
	"github.com/safespace/server/internal/model"
	"github.com/safespace/server/internal/session"
)

var signUpCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		name, _ := cmd.Flags().GetString("name")
		if err := ask("Email", &email); err != nil {
			return err
		}
		if err := ask("Name", &name); err != nil {
			return err
		}
		if err := askPassword(&password); err != nil {
			return err
		}
		if err := forms.ValidateSignUp(email, password, name); err != nil {
			return &exitMessage{message: err.Error()}
		}

		res, err := api.SignUp(cmd.Context(), email, password, name)
		if err != nil {
			return err
		}
		fmt.Println(res.Message)
		if res.RedirectURL != "" {
			fmt.Println("Next: sign in, then run `safespace mfa enroll` to protect your account")
		}
		return nil
	},
}

var signInCmd = &cobra.Command{
	Use:   "signin",
	Short: "Sign in with email and password, or with a Google ID token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if idToken, _ := cmd.Flags().GetString("id-token"); idToken != "" {
			return signInWithGoogle(cmd.Context(), strings.TrimSpace(idToken))
		}
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		if err := ask("Email", &email); err != nil {
			return err
		}
		if err := askPassword(&password); err != nil {
			return err
		}
		if err := forms.ValidateSignIn(email, password); err != nil {
			return &exitMessage{message: err.Error()}
		}

		s, err := api.SignInWithPassword(cmd.Context(), email, password)
		if err != nil {
			return err
		}
		if s.User != nil {
			fmt.Printf("Signed in as %s\n", s.User.Email)
		}

		list, err := api.ListFactors(cmd.Context())
		if err == nil && list.HasVerifiedTOTP() {
			fmt.Println("Multi-factor authentication is enabled; protected commands will ask for your code")
		}
		return nil
	},
}

var signOutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Sign out and forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		ok, err := confirm("Sign out?", yes)
		if err != nil || !ok {
			return err
		}
		if err := api.SignOut(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Signed out successfully")
		return nil
	},
}

type whoami struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	Role         string    `json:"role"`
	CurrentLevel model.AAL `json:"currentLevel"`
	NextLevel    model.AAL `json:"nextLevel"`
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store := session.NewStore(api, logger)
		defer store.Close()
		store.Start(ctx)
		if err := waitLoaded(ctx, store); err != nil {
			return err
		}

		snap := store.Snapshot()
		if snap.User == nil {
			return &exitMessage{message: "Not signed in"}
		}
		current, next, err := store.AuthLevel(ctx)
		if err != nil {
			return err
		}
		me := whoami{
			ID:           snap.User.ID.String(),
			Email:        snap.User.Email,
			Role:         string(snap.User.Role),
			CurrentLevel: current,
			NextLevel:    next,
		}
		if snap.Profile != nil && snap.Profile.Name != nil {
			me.Name = *snap.Profile.Name
		}
		return render(me, func() *uitable.Table {
			table := uitable.New()
			table.AddRow("ID", "EMAIL", "NAME", "ROLE", "AAL")
			table.AddRow(me.ID, me.Email, me.Name, me.Role, fmt.Sprintf("%s (next %s)", me.CurrentLevel, me.NextLevel))
			return table
		})
	},
}

var linkGoogleCmd = &cobra.Command{
	Use:   "link-google",
	Short: "Connect a Google account to the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return protected(ctx, func(ctx context.Context, _ session.Snapshot) error {
			linker := api.NewIdentityLinker(2 * time.Second)
			defer linker.Close()

			consentURL, err := linker.Start(ctx)
			if err != nil {
				return err
			}
			fmt.Println("Open this URL in your browser to connect your Google account:")
			fmt.Println(consentURL)

			waitCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			identity, err := linker.Wait(waitCtx)
			if err != nil {
				return err
			}
			fmt.Printf("Successfully connected Google account %s\n", identity.Email)
			return nil
		})
	},
}

func init() {
	signUpCmd.Flags().String("email", "", "account email")
	signUpCmd.Flags().String("password", "", "account password (default $SAFESPACE_PASSWORD or prompt)")
	signUpCmd.Flags().String("name", "", "display name")

	signInCmd.Flags().String("email", "", "account email")
	signInCmd.Flags().String("password", "", "account password (default $SAFESPACE_PASSWORD or prompt)")
	signInCmd.Flags().String("id-token", "", "sign in with a Google ID token instead of a password")

	signOutCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	linkGoogleCmd.Flags().Duration("timeout", 5*time.Minute, "how long to wait for the browser consent")
}

// signInWithGoogle starts a session from an ID token obtained outside the CLI, e.g. with
// `gcloud auth print-identity-token`, and makes sure the account has a profile
func signInWithGoogle(ctx context.Context, idToken string) error {
	s, err := api.SignInWithIDToken(ctx, idToken)
	if err != nil {
		return err
	}
	if err := api.EnsureProfile(ctx, s.User); err != nil {
		return err
	}
	if s.User != nil {
		fmt.Printf("Signed in with Google as %s\n", s.User.Email)
	}
	return nil
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rotate the stored session's refresh token now",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := api.Refresh(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Session refreshed")
		return nil
	},
}
