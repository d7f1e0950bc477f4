package logging

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// LogLevelEnvVar names the environment variable read when no level is
// passed explicitly. Unset or empty keeps logging silent.
const LogLevelEnvVar = "ALPACANET_LOG_LEVEL"

// dumpLimit caps how much of a payload is rendered into a log line.
const dumpLimit = 256

// Initialize installs the process logger at the given level ("debug",
// "info", "warn" or "error"). An empty level falls back to
// ALPACANET_LOG_LEVEL and then to a nop logger. Unknown names log at info.
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}
	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	l, err := newConsoleLogger(lvl)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = l
	return nil
}

// newConsoleLogger writes human-readable lines to stderr so stdout stays
// free for command output.
func newConsoleLogger(lvl zapcore.Level) (*zap.Logger, error) {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeCaller = zapcore.ShortCallerEncoder

	return zap.Config{
		Level:            zap.NewAtomicLevelAt(lvl),
		Encoding:         "console",
		EncoderConfig:    enc,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}.Build()
}

// SetLogger replaces the global logger. Tests use it with zaptest/observer.
func SetLogger(l *zap.Logger) {
	logger = l
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// LogDatagram logs a UDP discovery datagram. The payload dump is only
// rendered when debug logging is enabled.
func LogDatagram(direction string, remoteAddr string, payload []byte) {
	if !GetLogger().Core().Enabled(zapcore.DebugLevel) {
		return
	}
	Debug("Discovery datagram",
		zap.String("direction", direction),
		zap.String("remote_addr", remoteAddr),
		zap.Int("length", len(payload)),
		zap.String("ascii", ascii(payload)),
	)
}

// LogPoll logs the outcome of a single endpoint poll.
func LogPoll(remoteAddr string, path string, bytesRead int, err error) {
	if err != nil {
		Warn("Endpoint poll failed",
			zap.String("remote_addr", remoteAddr),
			zap.String("path", path),
			zap.Error(err),
		)
		return
	}
	Debug("Endpoint poll complete",
		zap.String("remote_addr", remoteAddr),
		zap.String("path", path),
		zap.Int("bytes", bytesRead),
	)
}

// LogRawBytes dumps a payload at debug level.
func LogRawBytes(label string, data []byte) {
	if !GetLogger().Core().Enabled(zapcore.DebugLevel) {
		return
	}
	hexStr, ascii := dump(data)
	Debug(label,
		zap.Int("length", len(data)),
		zap.String("hex", hexStr),
		zap.String("ascii", ascii),
	)
}

// dump renders at most dumpLimit bytes as hex and as printable ASCII with
// '.' for everything else. A truncated hex dump ends in "...".
func dump(data []byte) (hexStr, ascii string) {
	truncated := len(data) > dumpLimit
	if truncated {
		data = data[:dumpLimit]
	}

	hexStr = hex.EncodeToString(data)
	if truncated {
		hexStr += "..."
	}

	printable := bytes.Map(func(r rune) rune {
		if r < ' ' || r > '~' {
			return '.'
		}
		return r
	}, data)
	return hexStr, string(printable)
}

func ascii(data []byte) string {
	_, a := dump(data)
	return a
}

// Sync flushes any buffered log entries
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
