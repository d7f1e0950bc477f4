package ui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/alpacanet/internal/registry"
)

// RefreshInterval is how often the watch view re-reads the registry.
const RefreshInterval = time.Second

// Controller is the part of the prober the watch view drives.
type Controller interface {
	Wake()
	Reset()
}

// SnapshotFunc returns the current registry contents.
type SnapshotFunc func() registry.Snapshot

type tickMsg time.Time

// watchKeyMap defines key bindings for the watch view
type watchKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Toggle key.Binding
	Wake   key.Binding
	Reset  key.Binding
	Quit   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Wake, k.Reset, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Toggle},
		{k.Wake, k.Reset, k.Quit},
	}
}

func defaultWatchKeys() watchKeyMap {
	return watchKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Toggle: key.NewBinding(
			key.WithKeys("tab", "d"),
			key.WithHelp("tab", "units/devices"),
		),
		Wake: key.NewBinding(
			key.WithKeys("w"),
			key.WithHelp("w", "discover now"),
		),
		Reset: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reset"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// WatchModel is a live view over a registry.
type WatchModel struct {
	snapshot SnapshotFunc
	ctrl     Controller
	keys     watchKeyMap
	help     help.Model
	spinner  spinner.Model
	units    table.Model
	devices  table.Model

	snap        registry.Snapshot
	showDevices bool
	status      string
	// waiting is set by a wake until a cycle newer than wokeAt shows up.
	waiting bool
	wokeAt  uint64
	width   int
	height  int
}

// NewWatchModel creates a watch view. ctrl may be nil, which disables the
// wake and reset keys.
func NewWatchModel(snapshot SnapshotFunc, ctrl Controller) WatchModel {
	width, height := GetTerminalSize()

	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(MutedColor).
		BorderBottom(true).
		Foreground(PrimaryColor).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(TextColor).
		Background(PrimaryColor).
		Bold(false)

	m := WatchModel{
		snapshot: snapshot,
		ctrl:     ctrl,
		keys:     defaultWatchKeys(),
		help:     help.New(),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(lipgloss.NewStyle().Foreground(PrimaryColor))),
		units: table.New(
			table.WithColumns(columns(UnitColumns, []int{21, 16, 9, 7, 6, 6, 6, 14, 7, 7})),
			table.WithFocused(true),
			table.WithStyles(styles),
		),
		devices: table.New(
			table.WithColumns(columns(DeviceColumns, []int{21, 16, 16, 3, 24, 10, 20, 8})),
			table.WithStyles(styles),
		),
		width:  width,
		height: height,
	}
	m.resize()
	m.refresh()
	return m
}

func columns(titles []string, widths []int) []table.Column {
	cols := make([]table.Column, len(titles))
	for i, t := range titles {
		cols[i] = table.Column{Title: t, Width: widths[i]}
	}
	return cols
}

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init implements tea.Model
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(tick(), m.spinner.Tick)
}

// Update implements tea.Model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.resize()
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Toggle):
			m.showDevices = !m.showDevices
			if m.showDevices {
				m.units.Blur()
				m.devices.Focus()
			} else {
				m.devices.Blur()
				m.units.Focus()
			}
			return m, nil

		case key.Matches(msg, m.keys.Wake):
			if m.ctrl == nil {
				return m, nil
			}
			m.ctrl.Wake()
			m.waiting = true
			m.wokeAt = m.snap.Cycle
			m.status = "discovery requested"
			return m, nil

		case key.Matches(msg, m.keys.Reset):
			if m.ctrl == nil {
				return m, nil
			}
			m.ctrl.Reset()
			m.status = "registry reset"
			m.refresh()
			return m, nil
		}
	}

	var cmd tea.Cmd
	if m.showDevices {
		m.devices, cmd = m.devices.Update(msg)
	} else {
		m.units, cmd = m.units.Update(msg)
	}
	return m, cmd
}

func (m *WatchModel) refresh() {
	m.snap = m.snapshot()
	if m.waiting && m.snap.Cycle > m.wokeAt {
		m.waiting = false
		m.status = fmt.Sprintf("cycle %d complete", m.snap.Cycle)
	}

	unitRows := make([]table.Row, 0, len(m.snap.Units))
	for _, u := range m.snap.Units {
		row := UnitRow(u)
		row[3] = stateMarker(row[3]) + " " + row[3]
		unitRows = append(unitRows, row)
	}
	m.units.SetRows(unitRows)

	deviceRows := make([]table.Row, 0, len(m.snap.Devices))
	for _, d := range m.snap.Devices {
		deviceRows = append(deviceRows, DeviceRow(d))
	}
	m.devices.SetRows(deviceRows)
}

func stateMarker(state string) string {
	if state == StateActive {
		return ActiveMarker
	}
	return InactiveMarker
}

func (m *WatchModel) resize() {
	// Title, blank, status bar and help take four lines.
	h := max(m.height-6, 3)
	m.units.SetHeight(h)
	m.devices.SetHeight(h)
	m.units.SetWidth(m.width)
	m.devices.SetWidth(m.width)
}

// View implements tea.Model
func (m WatchModel) View() string {
	title := HeaderTitleStyle.Render("ALPACA UNITS")
	body := m.units.View()
	if m.showDevices {
		title = HeaderTitleStyle.Render("REMOTE DEVICES")
		body = m.devices.View()
	}

	status := fmt.Sprintf("cycle %d · %d units · %d devices", m.snap.Cycle, len(m.snap.Units), len(m.snap.Devices))
	if m.status != "" {
		status += " · " + m.status
	}
	if m.waiting {
		status = m.spinner.View() + " " + status
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		"",
		body,
		StatusBarStyle.Render(status),
		StatusBarStyle.Render(m.help.View(m.keys)),
	)
}

// RunWatch runs the watch view until the user quits or ctx is cancelled.
func RunWatch(ctx context.Context, snapshot SnapshotFunc, ctrl Controller) error {
	p := tea.NewProgram(NewWatchModel(snapshot, ctrl), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
