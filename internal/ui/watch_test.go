package ui

import (
	"net/netip"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/alpacanet/internal/registry"
)

type fakeController struct {
	reg    *registry.Registry
	wakes  int
	resets int
}

func (f *fakeController) Wake() { f.wakes++ }

func (f *fakeController) Reset() {
	f.resets++
	f.reg.Reset()
}

func keyPress(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newWatch(t *testing.T) (WatchModel, *registry.Registry, *fakeController) {
	t.Helper()
	reg := registry.New(registry.Config{})
	key, _, err := reg.UpsertUnit(netip.MustParseAddrPort("10.0.0.2:6800"), registry.SourceBroadcast)
	require.NoError(t, err)
	_, err = reg.UpsertRemoteDevice(key, "Telescope", 0, "mount", registry.DeviceExtra{})
	require.NoError(t, err)

	ctrl := &fakeController{reg: reg}
	return NewWatchModel(reg.Snapshot, ctrl), reg, ctrl
}

func update(t *testing.T, m WatchModel, msg tea.Msg) (WatchModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	wm, ok := next.(WatchModel)
	require.True(t, ok)
	return wm, cmd
}

func TestWatchShowsRegistry(t *testing.T) {
	m, _, _ := newWatch(t)
	view := m.View()
	assert.Contains(t, view, "10.0.0.2:6800")
	assert.Contains(t, view, "1 units · 1 devices")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.True(t, m.showDevices)
	assert.Contains(t, m.View(), "mount")
}

func TestWatchWake(t *testing.T) {
	m, reg, ctrl := newWatch(t)

	m, _ = update(t, m, keyPress("w"))
	assert.Equal(t, 1, ctrl.wakes)
	assert.True(t, m.waiting)

	reg.BeginCycle()
	m, cmd := update(t, m, tickMsg{})
	assert.NotNil(t, cmd, "tick reschedules itself")
	assert.False(t, m.waiting)
	assert.Contains(t, m.View(), "cycle 1 complete")
}

func TestWatchReset(t *testing.T) {
	m, _, ctrl := newWatch(t)

	m, _ = update(t, m, keyPress("r"))
	assert.Equal(t, 1, ctrl.resets)
	assert.Empty(t, m.snap.Units)
	assert.True(t, strings.Contains(m.View(), "registry reset"))
}

func TestWatchWithoutController(t *testing.T) {
	reg := registry.New(registry.Config{})
	m := NewWatchModel(reg.Snapshot, nil)

	m, _ = update(t, m, keyPress("w"))
	assert.False(t, m.waiting)
	m, _ = update(t, m, keyPress("r"))
	assert.Empty(t, m.status)
}

func TestWatchQuit(t *testing.T) {
	m, _, _ := newWatch(t)
	_, cmd := update(t, m, keyPress("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
