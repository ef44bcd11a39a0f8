package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/safespace/server/internal/events"
	"github.com/safespace/server/internal/model"
)

var watchAuthCmd = &cobra.Command{
	Use:   "watch-auth",
	Short: "Stream auth events published by the API (needs NATS)",
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL, _ := cmd.Flags().GetString("nats")
		if natsURL == "" {
			natsURL = cfg.NATSURL
		}
		if natsURL == "" {
			return &exitMessage{message: "set --nats or SAFESPACE_NATS_URL"}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		sub, err := events.NewNATSSubscriber(natsURL,
			nats.Name("safespace-cli"),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("nats disconnected", zap.Error(err))
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				logger.Info("nats reconnected")
			}),
		)
		if err != nil {
			return err
		}
		defer func() { _ = sub.Close() }()

		ch, cancel, err := sub.Subscribe(events.TopicAuthAll)
		if err != nil {
			return err
		}
		defer cancel()

		fmt.Fprintf(os.Stderr, "Watching %s on %s (Ctrl-C to stop)\n", events.TopicAuthAll, natsURL)
		for {
			select {
			case <-ctx.Done():
				return nil
			case data, ok := <-ch:
				if !ok {
					return nil
				}
				printAuthEvent(data)
			}
		}
	},
}

func printAuthEvent(data []byte) {
	var ev model.AuthEvent
	if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
		fmt.Println(string(data))
		return
	}
	fmt.Printf("%s  %-24s user=%s\n", ev.At.Local().Format("15:04:05"), ev.Type, ev.UserID)
}

func init() {
	watchAuthCmd.Flags().String("nats", "", "NATS URL (default $SAFESPACE_NATS_URL)")
}
