package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/muurk/alpacanet/internal/ui"
)

var watchListen bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show a live view of the registry",
	Long: `Run the prober in the background and show the registry in a live,
interactive table refreshed every second.

Keys:
  tab   switch between units and devices
  w     start a discovery cycle now
  r     clear the registry
  q     quit

Logging is silent unless ALPACANET_LOG_LEVEL or --log-level is set, in
which case redirect stderr to keep the view readable.`,
	RunE: runWatch,
}

func init() {
	addDiscoveryFlags(watchCmd)
	watchCmd.Flags().BoolVar(&watchListen, "listen", false, "Also answer discovery requests")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if !ui.IsTerminal() {
		return fmt.Errorf("watch needs a terminal; use 'alpacanet scan' instead")
	}
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if err := initLogging(settings, ""); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	st, err := newStack(settings, watchListen)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	bg, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = st.prober.Run(bg)
	}()
	if watchListen {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = runListener(bg, settings.ListenerConfig())
		}()
	}

	err = ui.RunWatch(ctx, st.reg.Snapshot, st)
	cancel()
	wg.Wait()
	return err
}
