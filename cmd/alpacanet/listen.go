package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/alpacanet/internal/discovery"
	"github.com/muurk/alpacanet/internal/logging"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Answer discovery requests only",
	Long: `Answer Alpaca discovery requests on the discovery port until interrupted.

Every request is answered with {"AlpacaPort": <service-port>}. Requests are
matched case-insensitively on their prefix; the legacy "alpaca discovery"
form is accepted. Nothing is broadcast and no unit is polled.`,
	Example: `  # Announce an Alpaca server on port 11111
  alpacanet listen --service-port 11111

  # Also advertise over mDNS and log every datagram
  alpacanet listen --mdns --log-level debug`,
	RunE: runListen,
}

func init() {
	addDiscoveryFlags(listenCmd)
	rootCmd.AddCommand(listenCmd)
}

func runListen(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if err := initLogging(settings, "info"); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l := discovery.NewListener(settings.ListenerConfig())
	err = l.Run(ctx)

	stats := l.Stats()
	logging.Info("Discovery listener totals",
		zap.Uint64("answered", stats.Answered),
		zap.Uint64("unexpected", stats.Unexpected),
		zap.Uint64("ignored", stats.Ignored),
		zap.Uint64("rate_limited", stats.Limited),
	)
	return err
}
