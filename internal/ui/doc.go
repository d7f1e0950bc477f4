// Package ui renders registry contents for the alpacanet CLI.
//
// Two output styles are provided:
//
//   - Printer writes run-once output: a command header, unit and device
//     tables, and success/failure result boxes. Used by scan and history.
//   - WatchModel is an interactive Bubble Tea view over a live registry,
//     refreshed every second. Used by watch.
//
// Colour follows lipgloss's detection of stdout, so piping output to a
// file gives plain text.
//
// # Logging Integration
//
// CLI commands keep zap silent unless ALPACANET_LOG_LEVEL is set, so the
// rendered output is not interleaved with log lines.
package ui
