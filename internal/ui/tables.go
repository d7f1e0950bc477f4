package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/muurk/alpacanet/internal/history"
	"github.com/muurk/alpacanet/internal/registry"
)

// Unit states shown in the STATE column.
const (
	StateActive = "active"
	StateStale  = "stale"
	StateDown   = "down"
	StateNew    = "new"
)

// UnitColumns are the headings of the unit table.
var UnitColumns = []string{"ADDRESS", "HOST", "SOURCE", "STATE", "OK", "ERR", "MISSED", "PLATFORM", "UPTIME", "CPU °F"}

// SoftwareColumns are the headings of the software table.
var SoftwareColumns = []string{"ADDRESS", "HOST", "SOFTWARE", "VERSION"}

// DeviceColumns are the headings of the device table.
var DeviceColumns = []string{"ADDRESS", "HOST", "TYPE", "#", "NAME", "VERSION", "UNIQUE ID", "NOT SEEN"}

// UnitState summarises a unit's poll health.
func UnitState(u registry.Unit) string {
	switch {
	case u.NoResponseCount > 0:
		return StateStale
	case u.CurrentlyActive:
		return StateActive
	case u.QueryErrCount > 0:
		return StateDown
	default:
		return StateNew
	}
}

func stateStyle(state string) lipgloss.Style {
	switch state {
	case StateActive:
		return ActiveStyle
	case StateStale:
		return StaleStyle
	case StateDown:
		return InactiveStyle
	default:
		return lipgloss.NewStyle().Foreground(MutedColor)
	}
}

// UnitRow returns the unstyled cells of one unit.
func UnitRow(u registry.Unit) []string {
	uptime, temp := "-", "-"
	if !u.Telemetry.UpdatedAt.IsZero() {
		uptime = fmt.Sprintf("%dd", u.Telemetry.UptimeDays)
		if u.Telemetry.CPUTempF != 0 {
			temp = strconv.FormatFloat(u.Telemetry.CPUTempF, 'f', 1, 64)
		}
	}
	return []string{
		u.Address,
		orDash(u.HostName),
		string(u.Source),
		UnitState(u),
		strconv.FormatUint(u.QueryOKCount, 10),
		strconv.FormatUint(u.QueryErrCount, 10),
		strconv.Itoa(u.NoResponseCount),
		orDash(u.Metadata.Platform),
		uptime,
		temp,
	}
}

// DeviceRow returns the unstyled cells of one remote device.
func DeviceRow(d registry.RemoteDevice) []string {
	return []string{
		d.Address,
		orDash(d.HostName),
		d.DeviceType,
		strconv.Itoa(d.DeviceNumber),
		d.DeviceName,
		orDash(d.Version),
		orDash(d.UniqueID),
		strconv.Itoa(d.NotSeenCount),
	}
}

// RenderUnits renders units as a bordered table.
func RenderUnits(units []registry.Unit, width int) string {
	rows := make([][]string, 0, len(units))
	for _, u := range units {
		rows = append(rows, UnitRow(u))
	}
	return newTable(UnitColumns, rows, width, 3)
}

// RenderDevices renders remote devices as a bordered table.
func RenderDevices(devices []registry.RemoteDevice, width int) string {
	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, DeviceRow(d))
	}
	return newTable(DeviceColumns, rows, width, -1)
}

// RenderSoftware renders the software libraries each unit reported. It
// returns "" when no unit reported any.
func RenderSoftware(units []registry.Unit, width int) string {
	var rows [][]string
	for _, u := range units {
		for _, lib := range u.Metadata.SoftwareLibraries() {
			rows = append(rows, []string{u.Address, orDash(u.HostName), lib.Name, orDash(lib.Version)})
		}
	}
	if len(rows) == 0 {
		return ""
	}
	return newTable(SoftwareColumns, rows, width, -1)
}

// RenderHistoryUnits renders stored units.
func RenderHistoryUnits(units []history.UnitRecord, width int) string {
	rows := make([][]string, 0, len(units))
	for _, u := range units {
		rows = append(rows, []string{
			u.Addr.String(),
			orDash(u.HostName),
			u.Source,
			orDash(u.Platform),
			strconv.FormatUint(u.QueryOK, 10),
			strconv.FormatUint(u.QueryErr, 10),
			formatTime(u.FirstSeen),
			formatTime(u.LastSeen),
		})
	}
	return newTable([]string{"ADDRESS", "HOST", "SOURCE", "PLATFORM", "OK", "ERR", "FIRST SEEN", "LAST SEEN"}, rows, width, -1)
}

// RenderHistoryDevices renders stored devices.
func RenderHistoryDevices(devices []history.DeviceRecord, width int) string {
	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, []string{
			d.Addr.String(),
			d.DeviceType,
			strconv.Itoa(d.DeviceNumber),
			d.DeviceName,
			orDash(d.Version),
			formatTime(d.FirstSeen),
			formatTime(d.LastSeen),
		})
	}
	return newTable([]string{"ADDRESS", "TYPE", "#", "NAME", "VERSION", "FIRST SEEN", "LAST SEEN"}, rows, width, -1)
}

// newTable builds the shared table look. stateCol, when not negative, is
// coloured by unit state. Tables wider than width are squeezed to fit.
func newTable(headers []string, rows [][]string, width, stateCol int) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(MutedColor)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case col == stateCol && row < len(rows):
				return stateStyle(rows[row][col]).Padding(0, 1)
			default:
				return TableCellStyle
			}
		})
	out := t.Render()
	if width > 0 && lipgloss.Width(out) > width {
		out = t.Width(width).Render()
	}
	return out
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
