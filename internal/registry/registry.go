package registry

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/alpacanet/internal/logging"
)

var (
	// ErrCapacityExceeded is returned when an insert would exceed MaxUnits
	// or MaxDevices.
	ErrCapacityExceeded = errors.New("registry capacity exceeded")
	// ErrUnknownUnit is returned for operations on a unit that is not
	// registered.
	ErrUnknownUnit = errors.New("unknown unit")
)

// managementType is the device type every server exposes for itself; it
// is never stored as a remote device.
const managementType = "management"

// Config bounds the registry and sets its staleness policy.
type Config struct {
	MaxUnits         int
	MaxDevices       int
	DemoteAfter      int
	EvictAfter       int
	DeviceEvictAfter int
	// TempHistory is the number of CPU temperature samples kept per unit.
	TempHistory int
	// Now is used for timestamps; tests override it.
	Now func() time.Time
}

// DefaultConfig returns the limits used when nothing is configured. 960
// samples at the default 90 second interval covers one day.
func DefaultConfig() Config {
	return Config{
		MaxUnits:    128,
		MaxDevices:  512,
		DemoteAfter: 3,
		TempHistory: 960,
	}
}

type unitEntry struct {
	Unit
	temps     *tempRing
	responded bool
}

type deviceEntry struct {
	RemoteDevice
}

// Registry is the mutex-guarded store of units and remote devices.
type Registry struct {
	cfg Config

	mu      sync.RWMutex
	units   map[UnitKey]*unitEntry
	devices map[DeviceKey]*deviceEntry
	cycle   uint64
	onReset []func()
}

// New creates an empty registry. Zero limits fall back to DefaultConfig.
func New(cfg Config) *Registry {
	def := DefaultConfig()
	if cfg.MaxUnits <= 0 {
		cfg.MaxUnits = def.MaxUnits
	}
	if cfg.MaxDevices <= 0 {
		cfg.MaxDevices = def.MaxDevices
	}
	if cfg.TempHistory <= 0 {
		cfg.TempHistory = def.TempHistory
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry{
		cfg:     cfg,
		units:   make(map[UnitKey]*unitEntry),
		devices: make(map[DeviceKey]*deviceEntry),
	}
}

// UpsertUnit inserts a unit or refreshes an existing one. A refresh only
// marks the unit as having responded this cycle; counters are kept. The
// boolean result is true when the unit was created.
func (r *Registry) UpsertUnit(addr netip.AddrPort, src Source) (UnitKey, bool, error) {
	key := KeyOf(addr)
	if !key.Addr.IsValid() || key.Port == 0 {
		return key, false, fmt.Errorf("invalid unit address %q", addr)
	}
	now := r.cfg.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.units[key]; ok {
		u.LastSeen = now
		u.NoResponseCount = 0
		u.responded = true
		return key, false, nil
	}

	if len(r.units) >= r.cfg.MaxUnits {
		return key, false, fmt.Errorf("%w: unit %s, limit %d", ErrCapacityExceeded, key, r.cfg.MaxUnits)
	}

	r.units[key] = &unitEntry{
		Unit: Unit{
			Key:       key,
			Address:   key.String(),
			Source:    src,
			FirstSeen: now,
			LastSeen:  now,
		},
		temps:     newTempRing(r.cfg.TempHistory),
		responded: true,
	}
	logging.Info("Unit discovered",
		zap.String("remote_addr", key.String()),
		zap.String("source", string(src)),
	)
	return key, true, nil
}

// SetHostName records the resolved name of a unit and of its devices.
func (r *Registry) SetHostName(key UnitKey, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.units[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUnit, key)
	}
	u.HostName = name
	for dk, d := range r.devices {
		if dk.Unit == key {
			d.HostName = name
		}
	}
	return nil
}

// BumpAllRemoteNotSeen increments NotSeenCount on every remote device.
func (r *Registry) BumpAllRemoteNotSeen() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bumpDevicesLocked()
}

func (r *Registry) bumpDevicesLocked() {
	for _, d := range r.devices {
		d.NotSeenCount++
	}
}

// BeginCycle starts a discovery cycle: every device's NotSeenCount is
// incremented and every unit is marked as not yet responding.
func (r *Registry) BeginCycle() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cycle++
	r.bumpDevicesLocked()
	for _, u := range r.units {
		u.responded = false
	}
	return r.cycle
}

// EndCycle closes a discovery cycle. Units that neither answered the
// broadcast nor a device-list poll get NoResponseCount incremented, then
// the eviction thresholds are applied.
func (r *Registry) EndCycle() CycleResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res CycleResult
	for key, u := range r.units {
		if u.responded {
			u.NoResponseCount = 0
			continue
		}
		u.NoResponseCount++
		res.Silent = append(res.Silent, key)
		if r.cfg.EvictAfter > 0 && u.NoResponseCount >= r.cfg.EvictAfter {
			res.EvictedUnits = append(res.EvictedUnits, key)
		}
	}

	for _, key := range res.EvictedUnits {
		delete(r.units, key)
		for dk := range r.devices {
			if dk.Unit == key {
				delete(r.devices, dk)
				res.EvictedDevices = append(res.EvictedDevices, dk)
			}
		}
		logging.Info("Unit evicted", zap.String("remote_addr", key.String()))
	}

	if r.cfg.DeviceEvictAfter > 0 {
		for dk, d := range r.devices {
			if d.NotSeenCount >= r.cfg.DeviceEvictAfter {
				delete(r.devices, dk)
				res.EvictedDevices = append(res.EvictedDevices, dk)
			}
		}
	}

	slices.SortFunc(res.Silent, compareUnitKeys)
	slices.SortFunc(res.EvictedUnits, compareUnitKeys)
	slices.SortFunc(res.EvictedDevices, compareDeviceKeys)
	return res
}

// PollEligible reports whether the staleness policy allows polling the
// unit this cycle. Demoted units are retried every DemoteAfter cycles.
func (r *Registry) PollEligible(key UnitKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.units[key]
	if !ok {
		return false
	}
	n := r.cfg.DemoteAfter
	if n <= 0 || u.NoResponseCount < n {
		return true
	}
	return u.NoResponseCount%n == 0
}

// UpsertRemoteDevice inserts or refreshes a device of a registered unit.
// Refreshing resets NotSeenCount. Management devices are ignored.
func (r *Registry) UpsertRemoteDevice(unit UnitKey, deviceType string, deviceNumber int, deviceName string, extra DeviceExtra) (UpsertResult, error) {
	if strings.EqualFold(deviceType, managementType) {
		return UpsertIgnored, nil
	}
	key := DeviceKey{Unit: unit, DeviceType: deviceType, DeviceNumber: deviceNumber, DeviceName: deviceName}
	now := r.cfg.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.units[unit]
	if !ok {
		return UpsertIgnored, fmt.Errorf("%w: %s", ErrUnknownUnit, unit)
	}

	if d, ok := r.devices[key]; ok {
		d.NotSeenCount = 0
		d.LastSeen = now
		d.HostName = u.HostName
		applyExtra(&d.RemoteDevice, extra)
		return UpsertRefreshed, nil
	}

	if len(r.devices) >= r.cfg.MaxDevices {
		return UpsertIgnored, fmt.Errorf("%w: device %s, limit %d", ErrCapacityExceeded, key, r.cfg.MaxDevices)
	}

	d := &deviceEntry{RemoteDevice: RemoteDevice{
		Key:          key,
		Address:      unit.String(),
		HostName:     u.HostName,
		DeviceType:   deviceType,
		DeviceNumber: deviceNumber,
		DeviceName:   deviceName,
		FirstSeen:    now,
		LastSeen:     now,
	}}
	applyExtra(&d.RemoteDevice, extra)
	r.devices[key] = d
	return UpsertCreated, nil
}

func applyExtra(d *RemoteDevice, extra DeviceExtra) {
	if extra.UniqueID != "" {
		d.UniqueID = extra.UniqueID
	}
	if extra.Version != "" {
		d.Version = extra.Version
	}
	if extra.TimeStamp != "" {
		d.TimeStamp = extra.TimeStamp
	}
}

// RecordPollSuccess counts a successful device-list poll.
func (r *Registry) RecordPollSuccess(key UnitKey) error {
	return r.withUnit(key, func(u *unitEntry) {
		u.QueryOKCount++
		u.CurrentlyActive = true
		u.responded = true
		u.LastSeen = r.cfg.Now()
	})
}

// RecordPollFailure counts a failed device-list poll.
func (r *Registry) RecordPollFailure(key UnitKey) error {
	return r.withUnit(key, func(u *unitEntry) {
		u.QueryErrCount++
		u.CurrentlyActive = false
	})
}

// RecordTelemetry stores uptime and, when present, a temperature sample.
func (r *Registry) RecordTelemetry(key UnitKey, uptimeDays int, cpuTempF float64, hasTemp bool) error {
	return r.withUnit(key, func(u *unitEntry) {
		now := r.cfg.Now()
		u.Telemetry.UptimeDays = uptimeDays
		u.Telemetry.UpdatedAt = now
		if hasTemp {
			u.Telemetry.CPUTempF = cpuTempF
			u.temps.add(now, cpuTempF)
		}
	})
}

// SetMetadata stores the capability report of a unit.
func (r *Registry) SetMetadata(key UnitKey, md Metadata) error {
	return r.withUnit(key, func(u *unitEntry) {
		md.Libraries = slices.Clone(md.Libraries)
		u.Metadata = md
	})
}

// MarkMetadataFetched records that the one-time metadata polls ran.
func (r *Registry) MarkMetadataFetched(key UnitKey) error {
	return r.withUnit(key, func(u *unitEntry) {
		u.MetadataFetched = true
	})
}

func (r *Registry) withUnit(key UnitKey, fn func(u *unitEntry)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.units[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUnit, key)
	}
	fn(u)
	return nil
}

// Unit returns a copy of one unit.
func (r *Registry) Unit(key UnitKey) (Unit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.units[key]
	if !ok {
		return Unit{}, false
	}
	return u.snapshot(), true
}

// Device returns a copy of one remote device.
func (r *Registry) Device(key DeviceKey) (RemoteDevice, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[key]
	if !ok {
		return RemoteDevice{}, false
	}
	return d.RemoteDevice, true
}

// ListUnits returns every unit ordered by numeric address, then port.
func (r *Registry) ListUnits() []Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listUnitsLocked()
}

func (r *Registry) listUnitsLocked() []Unit {
	out := make([]Unit, 0, len(r.units))
	for _, u := range r.units {
		out = append(out, u.snapshot())
	}
	slices.SortFunc(out, func(a, b Unit) int { return compareUnitKeys(a.Key, b.Key) })
	return out
}

// ListRemoteDevices returns every device ordered by unit, type and name.
func (r *Registry) ListRemoteDevices() []RemoteDevice {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listDevicesLocked()
}

func (r *Registry) listDevicesLocked() []RemoteDevice {
	out := make([]RemoteDevice, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d.RemoteDevice)
	}
	slices.SortFunc(out, func(a, b RemoteDevice) int { return compareDeviceKeys(a.Key, b.Key) })
	return out
}

// Counts returns the number of units and devices.
func (r *Registry) Counts() (units, devices int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.units), len(r.devices)
}

// Snapshot returns a consistent copy of both collections.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		Cycle:   r.cycle,
		TakenAt: r.cfg.Now(),
		Units:   r.listUnitsLocked(),
		Devices: r.listDevicesLocked(),
	}
}

// OnReset registers fn to run after every Reset.
func (r *Registry) OnReset(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReset = append(r.onReset, fn)
}

// Reset removes every unit and device and then runs the reset hooks.
func (r *Registry) Reset() {
	r.mu.Lock()
	clear(r.units)
	clear(r.devices)
	hooks := slices.Clone(r.onReset)
	r.mu.Unlock()

	logging.Info("Registry reset")
	for _, fn := range hooks {
		fn()
	}
}

func (u *unitEntry) snapshot() Unit {
	out := u.Unit
	out.Metadata.Libraries = slices.Clone(u.Metadata.Libraries)
	out.Telemetry.Samples = u.temps.points()
	return out
}
