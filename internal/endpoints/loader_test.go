package endpoints

import (
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/alpacanet/internal/registry"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line    string
		want    string
		wantOK  bool
		wantErr bool
	}{
		{"192.168.2.10", "192.168.2.10:6800", true, false},
		{"  192.168.2.11:11111  ", "192.168.2.11:11111", true, false},
		{"10.1.1.1 # dome controller", "10.1.1.1:6800", true, false},
		{"# 10.1.1.2", "", false, false},
		{"", "", false, false},
		{"example.org", "", false, true},
		{"10.1.1.3:0", "", false, true},
		{"10.1.1.3:99999", "", false, true},
		{"10.1.1.4 10.1.1.5", "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok, err := ParseLine(tt.line, DefaultPort)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want, got.String())
			}
		})
	}
}

func TestParseSkipsBadLines(t *testing.T) {
	input := "# remote observatory\n203.0.113.5\nbogus\n203.0.113.6:7000\n"
	addrs, err := Parse(strings.NewReader(input), 6800)
	require.NoError(t, err)
	assert.Equal(t, []netip.AddrPort{
		netip.MustParseAddrPort("203.0.113.5:6800"),
		netip.MustParseAddrPort("203.0.113.6:7000"),
	}, addrs)
}

func TestLoadOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte("203.0.113.5\n203.0.113.6:7000\n"), 0o644))

	reg := registry.New(registry.Config{})
	l := NewLoader(path, 0)
	reg.OnReset(l.Reset)

	added, err := l.LoadOnce(reg)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	for i := 0; i < 5; i++ {
		added, err = l.LoadOnce(reg)
		require.NoError(t, err)
		assert.Zero(t, added)
	}
	assert.Equal(t, 1, l.Loads())

	reg.Reset()
	added, err = l.LoadOnce(reg)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, 2, l.Loads())

	units := reg.ListUnits()
	require.Len(t, units, 2)
	assert.Equal(t, registry.SourceManual, units[0].Source)
}

func TestLoadOnceMissingFile(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "absent.txt"), 0)
	reg := registry.New(registry.Config{})

	added, err := l.LoadOnce(reg)
	require.NoError(t, err)
	assert.Zero(t, added)

	_, _ = l.LoadOnce(reg)
	assert.Equal(t, 1, l.Loads())
}

func TestReadLocalIPOverride(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "local_ip.txt")
	require.NoError(t, os.WriteFile(path, []byte("# bind here\n\n192.168.1.5   eth0\n10.0.0.1\n"), 0o644))
	ip, ok, err := ReadLocalIPOverride(path)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "192.168.1.5", ip.String())

	_, ok, err = ReadLocalIPOverride(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.False(t, ok)

	bad := filepath.Join(dir, "bad")
	require.NoError(t, os.WriteFile(bad, []byte("not-an-ip\n"), 0o644))
	_, _, err = ReadLocalIPOverride(bad)
	assert.Error(t, err)

	_, ok, err = ReadLocalIPOverride("")
	require.NoError(t, err)
	assert.False(t, ok)
}
