package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/alpacanet/internal/discovery"
	"github.com/muurk/alpacanet/internal/registry"
	"github.com/muurk/alpacanet/internal/ui"
)

// Scan command flags
var outputFormat string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one discovery cycle and print the result",
	Long: `Broadcast one Alpaca discovery request, poll every unit that replies
(plus those in the endpoints file) and print the units and devices found.

Replies are collected until two consecutive reads time out, so a scan
takes at least twice --timeout.`,
	Example: `  # Scan with the defaults
  alpacanet scan

  # Wait longer for slow units and print JSON
  alpacanet scan --timeout 5s --format json

  # Scan a subnet's directed broadcast address
  alpacanet scan --broadcast 192.168.1.255`,
	RunE: runScan,
}

func init() {
	addDiscoveryFlags(scanCmd)
	scanCmd.Flags().StringVar(&outputFormat, "format", "table", "Output format (table, json)")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	if outputFormat != "table" && outputFormat != "json" {
		return fmt.Errorf("unknown format %q (table, json)", outputFormat)
	}
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	if err := initLogging(settings, ""); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	st, err := newStack(settings, false)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := ui.NewPrinter(cmd.OutOrStdout())
	bcast := net.JoinHostPort(settings.Discovery.BroadcastAddress, strconv.Itoa(settings.Discovery.Port))
	if outputFormat == "table" {
		p.PrintHeader("Discovery scan", "alpacanet scan",
			ui.Param{Key: "Broadcast", Value: bcast},
			ui.Param{Key: "Timeout", Value: settings.Discovery.ReceiveTimeout.String()},
			ui.Param{Key: "Endpoints", Value: settings.Files.Endpoints},
		)
	}

	stats := st.prober.RunCycle(ctx)
	snap := st.reg.Snapshot()

	if outputFormat == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	if len(snap.Units) == 0 {
		p.PrintWarning("No units found",
			ui.Param{Key: "Replies", Value: strconv.Itoa(stats.Replies)},
			ui.Param{Key: "Duration", Value: stats.Duration.Round(time.Millisecond).String()},
		)
		p.PrintLines(
			"Troubleshooting:",
			"  - Check the units are powered and on this network",
			"  - Broadcasts may not cross routers; try --broadcast with the subnet address",
			"  - List units by hand in "+settings.Files.Endpoints,
			"  - Increase --timeout for slow networks",
		)
		return nil
	}

	p.PrintSnapshot(snap)
	p.PrintResult(scanResult(snap, stats))
	return nil
}

// scanResult summarises a scan; counts that are usually zero only appear
// when they are not.
func scanResult(snap registry.Snapshot, stats discovery.CycleStats) *ui.Result {
	r := ui.NewSuccessResult(fmt.Sprintf("%d units, %d devices", len(snap.Units), len(snap.Devices)),
		ui.Param{Key: "Replies", Value: strconv.Itoa(stats.Replies)},
		ui.Param{Key: "Polled", Value: strconv.Itoa(stats.Polled)},
		ui.Param{Key: "Poll failures", Value: strconv.Itoa(stats.PollFailures)},
	)
	if stats.MetadataPolled > 0 {
		r.AddDetail("Metadata polled", strconv.Itoa(stats.MetadataPolled))
	}
	if stats.Skipped > 0 {
		r.AddDetail("Skipped (stale)", strconv.Itoa(stats.Skipped))
	}
	return r.AddDetail("Duration", stats.Duration.Round(time.Millisecond).String())
}
