package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/muurk/alpacanet/internal/config"
	"github.com/muurk/alpacanet/internal/history"
	"github.com/muurk/alpacanet/internal/ui"
)

// History command flags
var (
	historyDB     string
	historyCycles int
	historyFormat string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print recorded sightings",
	Long: `Print every unit and device recorded in the sighting history.

The history is written by 'serve', 'scan' and 'watch' when history.path is
set in the config file or --history is given.`,
	Example: `  # Print the history configured in the config file
  alpacanet history

  # Print a specific database with the last 5 cycles
  alpacanet history --db ./history.db --cycles 5`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyDB, "db", "", "History database (default is history.path from the config file)")
	historyCmd.Flags().IntVar(&historyCycles, "cycles", 0, "Also list this many recent cycles")
	historyCmd.Flags().StringVar(&historyFormat, "format", "table", "Output format (table, json)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	path := historyDB
	if path == "" {
		settings, err := config.Load(configPath)
		if err != nil {
			return err
		}
		path = settings.History.Path
	}
	if path == "" {
		return fmt.Errorf("no history database: set history.path in the config file or pass --db")
	}
	if _, err := os.Stat(path); err != nil {
		err = fmt.Errorf("history database not found: %w", err)
		ui.NewPrinter(cmd.OutOrStdout()).PrintError("History unavailable", err, []string{
			"Record sightings with 'alpacanet serve --history " + path + "'",
			"Check history.path in 'alpacanet config show'",
		})
		return err
	}

	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	units, err := store.Units(ctx)
	if err != nil {
		return err
	}
	devices, err := store.Devices(ctx)
	if err != nil {
		return err
	}
	var cycles []history.CycleRecord
	if historyCycles > 0 {
		if cycles, err = store.Cycles(ctx, historyCycles); err != nil {
			return err
		}
	}

	switch historyFormat {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Units   []history.UnitRecord   `json:"units"`
			Devices []history.DeviceRecord `json:"devices"`
			Cycles  []history.CycleRecord  `json:"cycles,omitempty"`
		}{units, devices, cycles})
	case "table":
	default:
		return fmt.Errorf("unknown format %q (table, json)", historyFormat)
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	p.PrintHeader("Sighting history", "alpacanet history", ui.Param{Key: "Database", Value: path})
	if len(units) == 0 {
		p.PrintWarning("Nothing recorded yet")
		return nil
	}
	p.PrintHistory(units, devices)
	for _, c := range cycles {
		p.Println(fmt.Sprintf("  cycle %-6s %s  %d units, %d devices",
			strconv.FormatUint(c.Cycle, 10), c.TakenAt.Local().Format("2006-01-02 15:04:05"), c.Units, c.Devices))
	}
	return nil
}
