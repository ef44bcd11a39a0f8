package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/safespace/server/internal/client"
	"github.com/safespace/server/internal/config"
	"github.com/safespace/server/internal/logging"
)

var (
	apiURL       string
	outputFormat string

	cfg    *config.ClientConfig
	logger *zap.Logger
	api    *client.Client
)

var rootCmd = &cobra.Command{
	Use:           "safespace",
	Short:         "Terminal client for the SafeSpace API",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateOutputFormat(outputFormat); err != nil {
			return err
		}

		var err error
		cfg, err = config.LoadClient()
		if err != nil {
			return err
		}
		if apiURL != "" {
			cfg.APIURL = apiURL
		}
		logger, err = logging.New(cfg.LogLevel, false)
		if err != nil {
			return err
		}

		tokens := client.NewFileTokenStore(cfg.SessionFile)
		api = client.New(cfg.APIURL, tokens, client.Options{
			HTTPClient: &http.Client{Timeout: cfg.Timeout},
			Logger:     logger,
		})
		logger.Debug("client ready", zap.String("api", cfg.APIURL), zap.String("session_file", tokens.Path()))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "API base URL (default $SAFESPACE_API_URL or http://localhost:8080)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", formatTable, "output format: table, json or yaml")

	rootCmd.AddCommand(signUpCmd)
	rootCmd.AddCommand(signInCmd)
	rootCmd.AddCommand(signOutCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(linkGoogleCmd)
	rootCmd.AddCommand(mfaCmd)
	rootCmd.AddCommand(mapCmd)
	rootCmd.AddCommand(rateCmd)
	rootCmd.AddCommand(watchAuthCmd)
}

func main() {
	_ = godotenv.Load(".env")
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", userMessage(err))
		os.Exit(1)
	}
}
