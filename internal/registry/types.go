package registry

import (
	"fmt"
	"net/netip"
	"time"
)

// Source records how a unit was first found.
type Source string

const (
	SourceBroadcast Source = "broadcast"
	SourceManual    Source = "manual"
	SourceMDNS      Source = "mdns"
)

// UnitKey identifies a unit by address and service port.
type UnitKey struct {
	Addr netip.Addr
	Port uint16
}

// KeyOf builds a UnitKey, unmapping IPv4-in-IPv6 addresses.
func KeyOf(ap netip.AddrPort) UnitKey {
	return UnitKey{Addr: ap.Addr().Unmap(), Port: ap.Port()}
}

// AddrPort returns the key as a dialable address.
func (k UnitKey) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(k.Addr, k.Port)
}

func (k UnitKey) String() string {
	return k.AddrPort().String()
}

// Library is one entry of a unit's libraries report, for example
// "software-opencv-4.5.1" or "camera-ZWO-1.20".
type Library struct {
	Kind    string `json:"kind"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Metadata is the one-time capability report of a unit.
type Metadata struct {
	Hardware        string    `json:"hardware,omitempty"`
	Platform        string    `json:"platform,omitempty"`
	OperatingSystem string    `json:"operatingSystem,omitempty"`
	CPUInfo         string    `json:"cpuInfo,omitempty"`
	Version         string    `json:"version,omitempty"`
	BogoMIPS        float64   `json:"bogoMips,omitempty"`
	UptimeSeconds   int64     `json:"uptimeSeconds,omitempty"`
	Libraries       []Library `json:"libraries,omitempty"`
}

// SoftwareLibraries returns the libraries whose kind is "software".
func (m Metadata) SoftwareLibraries() []Library {
	var out []Library
	for _, l := range m.Libraries {
		if l.Kind == "software" {
			out = append(out, l)
		}
	}
	return out
}

// TempSample is one CPU temperature reading.
type TempSample struct {
	At   time.Time `json:"at"`
	DegF float64   `json:"degF"`
}

// Telemetry carries the health values reported with each device list.
type Telemetry struct {
	UptimeDays int          `json:"uptimeDays"`
	CPUTempF   float64      `json:"cpuTempF"`
	Samples    []TempSample `json:"samples,omitempty"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// Unit is a snapshot of one instrument server.
type Unit struct {
	Key             UnitKey   `json:"-"`
	Address         string    `json:"address"`
	HostName        string    `json:"hostName,omitempty"`
	Source          Source    `json:"source"`
	CurrentlyActive bool      `json:"currentlyActive"`
	QueryOKCount    uint64    `json:"queryOk"`
	QueryErrCount   uint64    `json:"queryErr"`
	NoResponseCount int       `json:"noResponseCount"`
	MetadataFetched bool      `json:"metadataFetched"`
	Metadata        Metadata  `json:"metadata"`
	Telemetry       Telemetry `json:"telemetry"`
	FirstSeen       time.Time `json:"firstSeen"`
	LastSeen        time.Time `json:"lastSeen"`
}

// DeviceKey identifies a remote device.
type DeviceKey struct {
	Unit         UnitKey
	DeviceType   string
	DeviceNumber int
	DeviceName   string
}

func (k DeviceKey) String() string {
	return fmt.Sprintf("%s/%s/%d/%s", k.Unit, k.DeviceType, k.DeviceNumber, k.DeviceName)
}

// DeviceExtra carries the optional values reported next to a device.
type DeviceExtra struct {
	UniqueID  string
	Version   string
	TimeStamp string
}

// RemoteDevice is a snapshot of one sub-device.
type RemoteDevice struct {
	Key          DeviceKey `json:"-"`
	Address      string    `json:"address"`
	HostName     string    `json:"hostName,omitempty"`
	DeviceType   string    `json:"deviceType"`
	DeviceNumber int       `json:"deviceNumber"`
	DeviceName   string    `json:"deviceName"`
	UniqueID     string    `json:"uniqueId,omitempty"`
	Version      string    `json:"version,omitempty"`
	TimeStamp    string    `json:"timeStamp,omitempty"`
	NotSeenCount int       `json:"notSeenCount"`
	FirstSeen    time.Time `json:"firstSeen"`
	LastSeen     time.Time `json:"lastSeen"`
}

// UpsertResult reports what UpsertRemoteDevice did.
type UpsertResult int

const (
	UpsertIgnored UpsertResult = iota
	UpsertCreated
	UpsertRefreshed
)

func (r UpsertResult) String() string {
	switch r {
	case UpsertCreated:
		return "created"
	case UpsertRefreshed:
		return "refreshed"
	default:
		return "ignored"
	}
}

// CycleResult summarises EndCycle.
type CycleResult struct {
	Silent         []UnitKey
	EvictedUnits   []UnitKey
	EvictedDevices []DeviceKey
}

// Snapshot is a consistent copy of the whole registry.
type Snapshot struct {
	Cycle   uint64         `json:"cycle"`
	TakenAt time.Time      `json:"takenAt"`
	Units   []Unit         `json:"units"`
	Devices []RemoteDevice `json:"devices"`
}
