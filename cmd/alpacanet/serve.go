package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/alpacanet/internal/discovery"
	"github.com/muurk/alpacanet/internal/feed"
	"github.com/muurk/alpacanet/internal/logging"
)

// Serve command flags
var (
	feedListen    string
	probeInterval time.Duration
	noListener    bool
	noProber      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run discovery continuously",
	Long: `Run the discovery listener and prober until interrupted.

The listener answers Alpaca discovery requests from other hosts. The prober
broadcasts a request every interval, registers each unit that replies plus
those listed in the endpoints file, and polls them for their devices.

While running:
  SIGUSR1   start a discovery cycle now
  SIGHUP    clear the registry and re-read the endpoints and hosts files

With --feed the registry is also served over HTTP (GET /api/units,
GET /api/devices, POST /api/wake, POST /api/reset, GET /api/ws).`,
	Example: `  # Listen and probe with the defaults
  alpacanet serve

  # Probe every 30 seconds and serve the registry on port 8080
  alpacanet serve --interval 30s --feed :8080

  # Keep a sighting history
  alpacanet serve --history ~/.local/share/alpacanet/history.db

  # Only answer discovery requests
  alpacanet serve --no-prober`,
	RunE: runServe,
}

func init() {
	addDiscoveryFlags(serveCmd)
	serveCmd.Flags().StringVar(&feedListen, "feed", "", "Serve the registry over HTTP on this address (e.g. :8080)")
	serveCmd.Flags().DurationVar(&probeInterval, "interval", 90*time.Second, "Pause between discovery cycles")
	serveCmd.Flags().BoolVar(&noListener, "no-listener", false, "Do not answer discovery requests")
	serveCmd.Flags().BoolVar(&noProber, "no-prober", false, "Do not broadcast or poll")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("feed") {
		settings.Feed.Listen = feedListen
	}
	if cmd.Flags().Changed("interval") {
		settings.Discovery.Interval = probeInterval
	}
	if noListener && noProber {
		return fmt.Errorf("--no-listener and --no-prober leave nothing to run")
	}
	if err := initLogging(settings, "info"); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	st, err := newStack(settings, !noListener)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serveStack(ctx, st, serveOptions{
		listener: !noListener,
		prober:   !noProber,
		feedAddr: settings.Feed.Listen,
	})
}

// serveOptions selects what serveStack runs.
type serveOptions struct {
	listener bool
	prober   bool
	feedAddr string
}

// serveStack runs the selected components until ctx is cancelled or one of
// them fails. A listener that cannot bind is logged and left out while the
// prober or feed keep running; it only ends serve when it was the sole
// component.
func serveStack(ctx context.Context, st *stack, opts serveOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		errChan = make(chan error, 3)
	)
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				errChan <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	if opts.listener {
		lcfg := st.settings.ListenerConfig()
		listenerOnly := !opts.prober && opts.feedAddr == ""
		run("listener", func(ctx context.Context) error {
			if err := runListener(ctx, lcfg); err != nil && listenerOnly {
				return err
			}
			return nil
		})
	}
	if opts.feedAddr != "" {
		var fopts []feed.Option
		if st.store != nil {
			fopts = append(fopts, feed.WithHistory(st.store))
		}
		f := feed.New(st.reg, st, fopts...)
		st.prober.AddObserver(f)
		run("feed", func(ctx context.Context) error { return f.ListenAndServe(ctx, opts.feedAddr) })
	}
	if opts.prober {
		run("prober", st.prober.Run)
		go handleControlSignals(ctx, st)
	}

	// Wait for shutdown signal or error
	var err error
	select {
	case <-ctx.Done():
		logging.Info("Shutdown signal received, stopping...")
	case err = <-errChan:
		logging.Error("Component failed, stopping", zap.Error(err))
	}
	cancel()
	wg.Wait()
	return err
}

// runListener answers discovery requests until ctx is cancelled. A bind
// failure is logged and returned.
func runListener(ctx context.Context, cfg discovery.ListenerConfig) error {
	err := discovery.NewListener(cfg).Run(ctx)
	if err != nil {
		logging.Error("Discovery listener unavailable, continuing without it", zap.Error(err))
	}
	return err
}

// handleControlSignals maps wake and reset signals onto the stack.
func handleControlSignals(ctx context.Context, st *stack) {
	sigs := controlSignals()
	if len(sigs) == 0 {
		return
	}
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-ch:
			switch sig {
			case wakeSignal:
				logging.Info("Wake signal received")
				st.Wake()
			case resetSignal:
				logging.Info("Reset signal received")
				st.Reset()
			}
		}
	}
}
