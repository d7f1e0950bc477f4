package logging

import (
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	prev := logger
	SetLogger(zap.New(core))
	t.Cleanup(func() { logger = prev })
	return logs
}

func TestInitialize(t *testing.T) {
	prev := logger
	t.Cleanup(func() { logger = prev })

	t.Setenv(LogLevelEnvVar, "")
	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("empty level should give a silent logger")
	}

	t.Setenv(LogLevelEnvVar, "warn")
	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	core := GetLogger().Core()
	if core.Enabled(zapcore.InfoLevel) || !core.Enabled(zapcore.WarnLevel) {
		t.Error("environment level not applied")
	}

	if err := Initialize("debug"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !GetLogger().Core().Enabled(zapcore.DebugLevel) {
		t.Error("explicit level should win over the environment")
	}
}

func TestLogPoll(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	LogPoll("10.0.0.2:6800", "/management/v1/configureddevices", 512, nil)
	LogPoll("10.0.0.3:6800", "/management/v1/configureddevices", 0, errors.New("connection refused"))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Level != zapcore.DebugLevel || entries[0].ContextMap()["bytes"] != int64(512) {
		t.Errorf("success entry = %+v", entries[0])
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].ContextMap()["remote_addr"] != "10.0.0.3:6800" {
		t.Errorf("failure entry = %+v", entries[1])
	}
}

func TestLogDatagramOnlyAtDebug(t *testing.T) {
	logs := observe(t, zapcore.InfoLevel)
	LogDatagram("received", "10.0.0.2:40000", []byte("alpacadiscovery1"))
	if logs.Len() != 0 {
		t.Errorf("datagram logged at info level")
	}

	logs = observe(t, zapcore.DebugLevel)
	LogDatagram("received", "10.0.0.2:40000", []byte("alpacadiscovery1\x00"))
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["ascii"]; got != "alpacadiscovery1." {
		t.Errorf("ascii = %q", got)
	}
}

func TestDump(t *testing.T) {
	hexStr, a := dump([]byte("ok\r\n\xff"))
	if hexStr != "6f6b0d0aff" || a != "ok..." {
		t.Errorf("dump = %q, %q", hexStr, a)
	}

	data := []byte(strings.Repeat("a", dumpLimit+10))
	hexStr, a = dump(data)
	if len(a) != dumpLimit {
		t.Errorf("ascii length = %d, want %d", len(a), dumpLimit)
	}
	if !strings.HasSuffix(hexStr, "...") || len(hexStr) != dumpLimit*2+3 {
		t.Errorf("hex not truncated: %d bytes", len(hexStr))
	}

	hexStr, a = dump(nil)
	if hexStr != "" || a != "" {
		t.Error("empty input should give empty dumps")
	}
}
