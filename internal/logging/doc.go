// Package logging provides structured logging for alpacanet.
//
// This package wraps a process-wide zap logger with convenience functions
// used by the discovery listener, the prober, the endpoint poller and the
// CLI. Logging is silent by default; set ALPACANET_LOG_LEVEL (or pass
// --log-level) to enable it.
//
// # Log Levels
//
//   - Debug: datagram dumps, per-poll byte counts, rate-limited requests
//   - Info: listener/prober lifecycle, new units and devices
//   - Warn: failed polls, capacity exceeded, unexpected discovery payloads
//   - Error: socket failures that stop a component
//
// # Structured Logging
//
// All log functions use structured fields:
//
//	logging.Info("Unit discovered",
//	    zap.String("remote_addr", "192.168.1.40:6800"),
//	    zap.String("source", "broadcast"),
//	)
//
// # Specialized Logging
//
//	logging.LogDatagram("received", addr, payload)
//	logging.LogPoll(addr, "/management/v1/configureddevices", n, err)
//
// # Configuration
//
//	if err := logging.Initialize("debug"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// Output goes to stderr in console format so that command output on
// stdout stays machine readable.
package logging
