package registry

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ap(s string) netip.AddrPort {
	return netip.MustParseAddrPort(s)
}

func newTestRegistry(cfg Config) *Registry {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tick := 0
	cfg.Now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return New(cfg)
}

func TestUpsertUnitIdempotent(t *testing.T) {
	r := newTestRegistry(Config{})

	key, created, err := r.UpsertUnit(ap("192.168.1.40:6800"), SourceBroadcast)
	require.NoError(t, err)
	assert.True(t, created)

	require.NoError(t, r.RecordPollSuccess(key))
	require.NoError(t, r.RecordPollFailure(key))

	_, created, err = r.UpsertUnit(ap("192.168.1.40:6800"), SourceManual)
	require.NoError(t, err)
	assert.False(t, created)

	units := r.ListUnits()
	require.Len(t, units, 1)
	u := units[0]
	assert.Equal(t, uint64(1), u.QueryOKCount)
	assert.Equal(t, uint64(1), u.QueryErrCount)
	assert.Equal(t, SourceBroadcast, u.Source)
	assert.Equal(t, "192.168.1.40:6800", u.Address)
}

func TestUnitKeyIncludesPort(t *testing.T) {
	r := newTestRegistry(Config{})
	for _, s := range []string{"10.0.0.2:6800", "10.0.0.2:6801", "[::ffff:10.0.0.2]:6800"} {
		_, _, err := r.UpsertUnit(ap(s), SourceBroadcast)
		require.NoError(t, err)
	}
	units, _ := r.Counts()
	assert.Equal(t, 2, units)
}

func TestUpsertUnitInvalid(t *testing.T) {
	r := newTestRegistry(Config{})
	_, _, err := r.UpsertUnit(ap("10.0.0.2:0"), SourceBroadcast)
	assert.Error(t, err)
}

func TestListUnitsSorted(t *testing.T) {
	r := newTestRegistry(Config{})
	for _, s := range []string{"10.0.0.5:6800", "10.0.0.2:6800", "10.0.0.9:6800", "10.0.0.10:6800", "9.255.0.1:6800", "10.0.0.2:80"} {
		_, _, err := r.UpsertUnit(ap(s), SourceBroadcast)
		require.NoError(t, err)
	}

	var got []string
	for _, u := range r.ListUnits() {
		got = append(got, u.Address)
	}
	assert.Equal(t, []string{
		"9.255.0.1:6800",
		"10.0.0.2:80",
		"10.0.0.2:6800",
		"10.0.0.5:6800",
		"10.0.0.9:6800",
		"10.0.0.10:6800",
	}, got)
}

func TestUpsertRemoteDevice(t *testing.T) {
	r := newTestRegistry(Config{})
	key, _, err := r.UpsertUnit(ap("192.168.1.40:6800"), SourceBroadcast)
	require.NoError(t, err)

	res, err := r.UpsertRemoteDevice(key, "Camera", 0, "ZWO ASI1600", DeviceExtra{UniqueID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, UpsertCreated, res)

	res, err = r.UpsertRemoteDevice(key, "Camera", 0, "ZWO ASI1600", DeviceExtra{Version: "1.2"})
	require.NoError(t, err)
	assert.Equal(t, UpsertRefreshed, res)

	res, err = r.UpsertRemoteDevice(key, "Camera", 1, "ZWO ASI1600", DeviceExtra{})
	require.NoError(t, err)
	assert.Equal(t, UpsertCreated, res)

	res, err = r.UpsertRemoteDevice(key, "Management", 0, "Alpaca", DeviceExtra{})
	require.NoError(t, err)
	assert.Equal(t, UpsertIgnored, res)

	devices := r.ListRemoteDevices()
	require.Len(t, devices, 2)
	assert.Equal(t, "u1", devices[0].UniqueID)
	assert.Equal(t, "1.2", devices[0].Version)

	_, err = r.UpsertRemoteDevice(KeyOf(ap("10.9.9.9:6800")), "Camera", 0, "x", DeviceExtra{})
	assert.ErrorIs(t, err, ErrUnknownUnit)
}

func TestListRemoteDevicesSorted(t *testing.T) {
	r := newTestRegistry(Config{})
	a, _, _ := r.UpsertUnit(ap("10.0.0.9:6800"), SourceBroadcast)
	b, _, _ := r.UpsertUnit(ap("10.0.0.2:6800"), SourceBroadcast)

	_, _ = r.UpsertRemoteDevice(a, "Camera", 0, "cam", DeviceExtra{})
	_, _ = r.UpsertRemoteDevice(b, "Focuser", 0, "moonlite", DeviceExtra{})
	_, _ = r.UpsertRemoteDevice(b, "Camera", 1, "zwo", DeviceExtra{})
	_, _ = r.UpsertRemoteDevice(b, "Camera", 0, "atik", DeviceExtra{})

	var got []string
	for _, d := range r.ListRemoteDevices() {
		got = append(got, d.Key.String())
	}
	assert.Equal(t, []string{
		"10.0.0.2:6800/Camera/0/atik",
		"10.0.0.2:6800/Camera/1/zwo",
		"10.0.0.2:6800/Focuser/0/moonlite",
		"10.0.0.9:6800/Camera/0/cam",
	}, got)
}

func TestStalenessCounting(t *testing.T) {
	r := newTestRegistry(Config{})
	key, _, _ := r.UpsertUnit(ap("10.0.0.2:6800"), SourceBroadcast)
	_, _ = r.UpsertRemoteDevice(key, "Dome", 0, "roof", DeviceExtra{})
	dk := DeviceKey{Unit: key, DeviceType: "Dome", DeviceNumber: 0, DeviceName: "roof"}

	const n = 4
	for i := 0; i < n; i++ {
		r.BeginCycle()
		r.EndCycle()
	}
	d, ok := r.Device(dk)
	require.True(t, ok)
	assert.Equal(t, n, d.NotSeenCount)

	r.BeginCycle()
	_, err := r.UpsertRemoteDevice(key, "Dome", 0, "roof", DeviceExtra{})
	require.NoError(t, err)
	r.EndCycle()

	d, _ = r.Device(dk)
	assert.Equal(t, 0, d.NotSeenCount)
}

func TestNoResponseCounting(t *testing.T) {
	r := newTestRegistry(Config{DemoteAfter: 3})
	key, _, _ := r.UpsertUnit(ap("10.0.0.2:6800"), SourceManual)

	for i := 1; i <= 7; i++ {
		r.BeginCycle()
		res := r.EndCycle()
		assert.Equal(t, []UnitKey{key}, res.Silent)

		u, _ := r.Unit(key)
		assert.Equal(t, i, u.NoResponseCount)

		want := i < 3 || i%3 == 0
		assert.Equal(t, want, r.PollEligible(key), "cycle %d", i)
	}

	r.BeginCycle()
	require.NoError(t, r.RecordPollSuccess(key))
	res := r.EndCycle()
	assert.Empty(t, res.Silent)
	u, _ := r.Unit(key)
	assert.Equal(t, 0, u.NoResponseCount)
	assert.True(t, u.CurrentlyActive)
	assert.True(t, r.PollEligible(key))
}

func TestEviction(t *testing.T) {
	r := newTestRegistry(Config{EvictAfter: 2, DeviceEvictAfter: 3})
	quiet, _, _ := r.UpsertUnit(ap("10.0.0.2:6800"), SourceBroadcast)
	loud, _, _ := r.UpsertUnit(ap("10.0.0.3:6800"), SourceBroadcast)
	_, _ = r.UpsertRemoteDevice(quiet, "Camera", 0, "a", DeviceExtra{})
	_, _ = r.UpsertRemoteDevice(loud, "Camera", 0, "b", DeviceExtra{})
	_, _ = r.UpsertRemoteDevice(loud, "Focuser", 0, "c", DeviceExtra{})

	for i := 0; i < 2; i++ {
		r.BeginCycle()
		_, _, _ = r.UpsertUnit(loud.AddrPort(), SourceBroadcast)
		_, _ = r.UpsertRemoteDevice(loud, "Camera", 0, "b", DeviceExtra{})
		r.EndCycle()
	}
	_, ok := r.Unit(quiet)
	assert.False(t, ok, "silent unit should be evicted")
	units, devices := r.Counts()
	assert.Equal(t, 1, units)
	assert.Equal(t, 2, devices)

	r.BeginCycle()
	_, _, _ = r.UpsertUnit(loud.AddrPort(), SourceBroadcast)
	res := r.EndCycle()
	require.Len(t, res.EvictedDevices, 1)
	assert.Equal(t, "Focuser", res.EvictedDevices[0].DeviceType)
}

func TestEvictionDisabledByDefault(t *testing.T) {
	r := newTestRegistry(Config{})
	key, _, _ := r.UpsertUnit(ap("10.0.0.2:6800"), SourceBroadcast)
	_, _ = r.UpsertRemoteDevice(key, "Camera", 0, "a", DeviceExtra{})
	for i := 0; i < 50; i++ {
		r.BeginCycle()
		r.EndCycle()
	}
	units, devices := r.Counts()
	assert.Equal(t, 1, units)
	assert.Equal(t, 1, devices)
}

func TestCapacityExceeded(t *testing.T) {
	r := newTestRegistry(Config{MaxUnits: 2, MaxDevices: 1})
	a, _, err := r.UpsertUnit(ap("10.0.0.1:6800"), SourceBroadcast)
	require.NoError(t, err)
	_, _, err = r.UpsertUnit(ap("10.0.0.2:6800"), SourceBroadcast)
	require.NoError(t, err)

	_, _, err = r.UpsertUnit(ap("10.0.0.3:6800"), SourceBroadcast)
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	_, _, err = r.UpsertUnit(ap("10.0.0.1:6800"), SourceBroadcast)
	assert.NoError(t, err, "refreshing an existing unit never hits the limit")

	_, err = r.UpsertRemoteDevice(a, "Camera", 0, "a", DeviceExtra{})
	require.NoError(t, err)
	_, err = r.UpsertRemoteDevice(a, "Camera", 1, "b", DeviceExtra{})
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestResetRunsHooks(t *testing.T) {
	r := newTestRegistry(Config{})
	key, _, _ := r.UpsertUnit(ap("10.0.0.2:6800"), SourceBroadcast)
	_, _ = r.UpsertRemoteDevice(key, "Camera", 0, "a", DeviceExtra{})

	calls := 0
	r.OnReset(func() { calls++ })
	r.Reset()

	units, devices := r.Counts()
	assert.Zero(t, units)
	assert.Zero(t, devices)
	assert.Equal(t, 1, calls)
}

func TestMetadataAndTelemetry(t *testing.T) {
	r := newTestRegistry(Config{TempHistory: 3})
	key, _, _ := r.UpsertUnit(ap("10.0.0.2:6800"), SourceBroadcast)

	libs := []Library{{Kind: "software", Name: "opencv", Version: "4.5.1"}, {Kind: "camera", Name: "ZWO", Version: "1.20"}}
	require.NoError(t, r.SetMetadata(key, Metadata{Platform: "Raspberry Pi 4", Libraries: libs}))
	require.NoError(t, r.MarkMetadataFetched(key))
	libs[0].Name = "mutated"

	for _, temp := range []float64{100, 101, 102, 103} {
		require.NoError(t, r.RecordTelemetry(key, 3, temp, true))
	}
	require.NoError(t, r.RecordTelemetry(key, 4, 0, false))

	u, ok := r.Unit(key)
	require.True(t, ok)
	assert.True(t, u.MetadataFetched)
	assert.Equal(t, "opencv", u.Metadata.Libraries[0].Name)
	assert.Len(t, u.Metadata.SoftwareLibraries(), 1)
	assert.Equal(t, 4, u.Telemetry.UptimeDays)
	assert.Equal(t, 103.0, u.Telemetry.CPUTempF)
	require.Len(t, u.Telemetry.Samples, 3)
	assert.Equal(t, 101.0, u.Telemetry.Samples[0].DegF)
	assert.Equal(t, 103.0, u.Telemetry.Samples[2].DegF)

	u.Metadata.Libraries[0].Name = "changed"
	again, _ := r.Unit(key)
	assert.Equal(t, "opencv", again.Metadata.Libraries[0].Name)
}

func TestSetHostNamePropagates(t *testing.T) {
	r := newTestRegistry(Config{})
	key, _, _ := r.UpsertUnit(ap("10.0.0.2:6800"), SourceBroadcast)
	_, _ = r.UpsertRemoteDevice(key, "Camera", 0, "a", DeviceExtra{})

	require.NoError(t, r.SetHostName(key, "observatory-pi"))
	assert.Equal(t, "observatory-pi", r.ListRemoteDevices()[0].HostName)
	assert.ErrorIs(t, r.SetHostName(KeyOf(ap("10.0.0.3:1")), "x"), ErrUnknownUnit)
}

func TestSnapshot(t *testing.T) {
	r := newTestRegistry(Config{})
	_, _, _ = r.UpsertUnit(ap("10.0.0.2:6800"), SourceBroadcast)
	r.BeginCycle()
	r.BeginCycle()

	snap := r.Snapshot()
	assert.Equal(t, uint64(2), snap.Cycle)
	assert.Len(t, snap.Units, 1)
	assert.Empty(t, snap.Devices)
}
