package ui

import (
	"bytes"
	"errors"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/muurk/alpacanet/internal/history"
	"github.com/muurk/alpacanet/internal/registry"
)

func TestUnitState(t *testing.T) {
	tests := []struct {
		name string
		unit registry.Unit
		want string
	}{
		{"never polled", registry.Unit{}, StateNew},
		{"active", registry.Unit{CurrentlyActive: true, QueryOKCount: 3}, StateActive},
		{"failed", registry.Unit{QueryErrCount: 1}, StateDown},
		{"missed a cycle", registry.Unit{CurrentlyActive: true, NoResponseCount: 2}, StateStale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UnitState(tt.unit); got != tt.want {
				t.Errorf("UnitState() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnitRow(t *testing.T) {
	u := registry.Unit{
		Address:      "10.0.0.2:6800",
		Source:       registry.SourceManual,
		QueryOKCount: 4,
		Telemetry:    registry.Telemetry{UptimeDays: 12, CPUTempF: 104.5, UpdatedAt: time.Now()},
	}
	row := UnitRow(u)
	if len(row) != len(UnitColumns) {
		t.Fatalf("row has %d cells, want %d", len(row), len(UnitColumns))
	}
	want := []string{"10.0.0.2:6800", "-", "manual", StateNew, "4", "0", "0", "-", "12d", "104.5"}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("cell %s = %q, want %q", UnitColumns[i], row[i], want[i])
		}
	}

	if got := UnitRow(registry.Unit{})[8]; got != "-" {
		t.Errorf("uptime without telemetry = %q, want -", got)
	}
}

func TestDeviceRow(t *testing.T) {
	d := registry.RemoteDevice{Address: "10.0.0.2:6800", DeviceType: "Camera", DeviceNumber: 1, DeviceName: "cam"}
	row := DeviceRow(d)
	if len(row) != len(DeviceColumns) {
		t.Fatalf("row has %d cells, want %d", len(row), len(DeviceColumns))
	}
	if row[2] != "Camera" || row[3] != "1" || row[5] != "-" {
		t.Errorf("unexpected row %v", row)
	}
}

func TestRenderTables(t *testing.T) {
	units := []registry.Unit{
		{Address: "10.0.0.2:6800", HostName: "scope", Source: registry.SourceBroadcast},
		{Address: "10.0.0.10:6800", Source: registry.SourceManual},
	}
	out := RenderUnits(units, 0)
	for _, s := range []string{"ADDRESS", "10.0.0.2:6800", "scope", "10.0.0.10:6800"} {
		if !strings.Contains(out, s) {
			t.Errorf("unit table missing %q", s)
		}
	}
	if strings.Index(out, "10.0.0.2:") > strings.Index(out, "10.0.0.10:") {
		t.Error("unit table reordered rows")
	}

	out = RenderHistoryUnits([]history.UnitRecord{{
		Addr:   netip.MustParseAddrPort("10.0.0.7:6800"),
		Source: "mdns",
	}}, 0)
	if !strings.Contains(out, "10.0.0.7:6800") || !strings.Contains(out, "mdns") {
		t.Errorf("history table missing values:\n%s", out)
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf).SetWidth(100)

	p.PrintHeader("Discovery scan", "alpacanet scan",
		Param{Key: "Broadcast", Value: "255.255.255.255:32227"},
		Param{Key: "Timeout", Value: "3s"},
	)
	p.PrintSnapshot(registry.Snapshot{
		Units:   []registry.Unit{{Address: "10.0.0.2:6800"}},
		Devices: []registry.RemoteDevice{{Address: "10.0.0.2:6800", DeviceType: "Dome", DeviceName: "roof"}},
	})
	p.PrintSuccess("1 unit, 1 device", Param{Key: "Cycle", Value: "1"})
	p.PrintError("Scan failed", errors.New("permission denied"), []string{"Run with CAP_NET_BROADCAST"})

	out := buf.String()
	for _, s := range []string{"DISCOVERY SCAN", "alpacanet scan", "Broadcast:", "roof", "SUCCESS", "permission denied", "Troubleshooting:"} {
		if !strings.Contains(out, s) {
			t.Errorf("output missing %q", s)
		}
	}
	if strings.Index(out, "Broadcast:") > strings.Index(out, "Timeout:") {
		t.Error("header params out of order")
	}
}

func TestPrintSnapshotEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintSnapshot(registry.Snapshot{})
	if buf.Len() != 0 {
		t.Errorf("empty snapshot printed %q", buf.String())
	}
}

func TestRenderSoftware(t *testing.T) {
	units := []registry.Unit{
		{Address: "10.0.0.2:6800", HostName: "scope", Metadata: registry.Metadata{Libraries: []registry.Library{
			{Kind: "software", Name: "opencv", Version: "4.5.1"},
			{Kind: "camera", Name: "ZWO", Version: "1.20"},
		}}},
		{Address: "10.0.0.3:6800"},
	}
	out := RenderSoftware(units, 0)
	for _, s := range []string{"SOFTWARE", "scope", "opencv", "4.5.1"} {
		if !strings.Contains(out, s) {
			t.Errorf("software table missing %q", s)
		}
	}
	if strings.Contains(out, "ZWO") || strings.Contains(out, "10.0.0.3") {
		t.Errorf("software table lists non-software entries:\n%s", out)
	}

	if got := RenderSoftware(units[1:], 0); got != "" {
		t.Errorf("RenderSoftware without libraries = %q, want empty", got)
	}

	var buf bytes.Buffer
	NewPrinter(&buf).SetWidth(120).PrintSnapshot(registry.Snapshot{Units: units})
	if !strings.Contains(buf.String(), "opencv") {
		t.Error("PrintSnapshot left out the software table")
	}
}

func TestPrintResultDetails(t *testing.T) {
	var buf bytes.Buffer
	r := NewSuccessResult("2 units", Param{Key: "Replies", Value: "2"}).
		AddDetail("Skipped (stale)", "1")
	NewPrinter(&buf).SetWidth(100).PrintResult(r)

	out := buf.String()
	if !strings.Contains(out, "Skipped (stale)") {
		t.Errorf("added detail missing:\n%s", out)
	}
	if strings.Index(out, "Replies") > strings.Index(out, "Skipped") {
		t.Error("details out of order")
	}
}
