package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sahana-project/ewaste-api/config"
	"github.com/sahana-project/ewaste-api/internal/logger"
	"github.com/sahana-project/ewaste-api/internal/mq"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect listing lifecycle events",
}

// eventsTailCmd prints every listing event as one JSON line until interrupted.
var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print listing events from the configured broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		log := logger.Setup(cfg.LogLevel)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue, err := mq.NewFromConfig(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		defer queue.Close()

		enc := json.NewEncoder(cmd.OutOrStdout())
		err = mq.TailListingEvents(ctx, queue, cfg.MQ.Channel,
			func(ev mq.ListingEvent) error {
				return enc.Encode(ev)
			},
			func(msg mq.Message, err error) {
				log.Warn("skipping invalid event", "message_id", msg.ID, "error", err)
			},
		)
		if errors.Is(err, mq.ErrNoBackend) {
			return fmt.Errorf("MQ_BACKEND is %q, nothing to tail", cfg.MQ.Backend)
		}
		if err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
