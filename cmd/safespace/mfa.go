package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/safespace/server/internal/enroll"
	"github.com/safespace/server/internal/session"
)

var mfaCmd = &cobra.Command{
	Use:   "mfa",
	Short: "Manage multi-factor authentication",
}

var mfaEnrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enable TOTP multi-factor authentication",
	RunE: func(cmd *cobra.Command, args []string) error {
		code, _ := cmd.Flags().GetString("code")
		name, _ := cmd.Flags().GetString("name")
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		redirected := make(chan string, 1)
		flow := enroll.New(api, enroll.Options{
			FriendlyName: name,
			DefaultRoute: cfg.DefaultRoute,
			Redirect:     func(target string) { redirected <- target },
			Logger:       logger,
		})
		defer flow.Close()

		switch s := flow.Start(ctx).(type) {
		case enroll.Failed:
			return &exitMessage{message: s.Message}
		case enroll.Success:
			fmt.Println(s.Message)
			return nil
		case enroll.Ready:
			fmt.Println("Scan the QR code or add this secret to your authenticator app (Google Authenticator, Authy, 1Password):")
			fmt.Println()
			fmt.Printf("  Secret: %s\n", s.Secret)
			fmt.Printf("  URI:    %s\n", s.URI)
			fmt.Println()
		}

		for {
			if err := askCode(&code); err != nil {
				return err
			}
			switch s := flow.Verify(ctx, strings.TrimSpace(code)).(type) {
			case enroll.Success:
				fmt.Printf("%s. Redirecting you in a few seconds...\n", s.Message)
				select {
				case target := <-redirected:
					fmt.Printf("Continue at %s\n", target)
				case <-ctx.Done():
				}
				return nil
			case enroll.Failed:
				if !interactive() {
					return &exitMessage{message: s.Message}
				}
				fmt.Fprintln(os.Stderr, s.Message)
				code = ""
			}
		}
	},
}

var mfaVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Complete multi-factor authentication for the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		code, _ := cmd.Flags().GetString("code")
		ctx := cmd.Context()
		if code != "" {
			// non-interactive: answer the MFA prompt from the flag
			list, err := api.ListFactors(ctx)
			if err != nil {
				return err
			}
			if factor, ok := verifiedTOTP(list); ok {
				if _, err := api.ChallengeAndVerify(ctx, factor.ID, strings.TrimSpace(code)); err != nil {
					return err
				}
			}
		}
		return protected(ctx, func(ctx context.Context, snap session.Snapshot) error {
			current, _, err := api.AuthLevel(ctx)
			if err != nil {
				return err
			}
			if snap.User == nil {
				fmt.Printf("Authenticated (%s)\n", current)
				return nil
			}
			fmt.Printf("Authenticated as %s (%s)\n", snap.User.Email, current)
			return nil
		})
	},
}

var mfaStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List enrolled factors",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := api.ListFactors(cmd.Context())
		if err != nil {
			return err
		}
		return render(list, func() *uitable.Table {
			table := uitable.New()
			table.AddRow("ID", "TYPE", "NAME", "STATUS", "CREATED")
			for _, f := range list.All {
				table.AddRow(f.ID, f.Type, f.FriendlyName, f.Status, f.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			return table
		})
	},
}

var mfaDisableCmd = &cobra.Command{
	Use:   "disable <factor-id>",
	Short: "Remove a factor (verified factors need a verified session)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		ok, err := confirm("Remove factor "+args[0]+"?", yes)
		if err != nil || !ok {
			return err
		}
		return protected(cmd.Context(), func(ctx context.Context, _ session.Snapshot) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := api.Unenroll(ctx, id); err != nil {
				return err
			}
			fmt.Println("Factor removed")
			return nil
		})
	},
}

func init() {
	mfaEnrollCmd.Flags().String("code", "", "6-digit code from the authenticator app")
	mfaEnrollCmd.Flags().String("name", "", "friendly name for the factor")
	mfaVerifyCmd.Flags().String("code", "", "6-digit code from the authenticator app")
	mfaDisableCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")

	mfaCmd.AddCommand(mfaEnrollCmd)
	mfaCmd.AddCommand(mfaVerifyCmd)
	mfaCmd.AddCommand(mfaStatusCmd)
	mfaCmd.AddCommand(mfaDisableCmd)
}
