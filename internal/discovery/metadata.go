package discovery

import (
	"strconv"
	"strings"

	"github.com/muurk/alpacanet/internal/jsonreader"
	"github.com/muurk/alpacanet/internal/registry"
)

// ParseLibraries reads the library-N entries of a libraries report. Each
// value has the form "<kind>-<name>-<version>"; the version may itself
// contain dashes.
func ParseLibraries(doc *jsonreader.Document) []registry.Library {
	var libs []registry.Library
	for _, tok := range doc.Prefixed("LIBRARY") {
		parts := strings.SplitN(tok.Value, "-", 3)
		lib := registry.Library{Name: tok.Value}
		switch len(parts) {
		case 3:
			lib = registry.Library{Kind: parts[0], Name: parts[1], Version: parts[2]}
		case 2:
			lib = registry.Library{Kind: parts[0], Name: parts[1]}
		}
		libs = append(libs, lib)
	}
	return libs
}

// ApplyCPUStats copies the known cpustats keywords into md.
func ApplyCPUStats(md *registry.Metadata, doc *jsonreader.Document) {
	if v, ok := doc.Get("hardware"); ok {
		md.Hardware = v
	}
	if v, ok := doc.Get("platform"); ok {
		md.Platform = v
	}
	if v, ok := doc.Get("operatingsystem"); ok {
		md.OperatingSystem = v
	}
	if v, ok := doc.Get("cpuinfo"); ok {
		md.CPUInfo = v
	}
	if v, ok := doc.Get("version"); ok {
		md.Version = v
	}
	if v, ok := doc.Float("bogomips"); ok {
		md.BogoMIPS = v
	}
	if v, ok := doc.Int("uptime_secs"); ok {
		md.UptimeSeconds = int64(v)
	}
}

// deviceRecord is one entry of a configureddevices reply.
type deviceRecord struct {
	deviceType string
	number     int
	name       string
	extra      registry.DeviceExtra
}

// parseConfiguredDevices reads the Value array of a configureddevices
// reply. Top-level Version and TimeStamp apply to every device unless the
// record carries its own.
func parseConfiguredDevices(doc *jsonreader.Document) []deviceRecord {
	version, _ := doc.Get("Version")
	timeStamp, _ := doc.Get("TimeStamp")

	var out []deviceRecord
	for _, rec := range doc.Records("Value") {
		typ := rec["DEVICETYPE"]
		if typ == "" {
			continue
		}
		r := deviceRecord{
			deviceType: typ,
			name:       rec["DEVICENAME"],
			extra: registry.DeviceExtra{
				UniqueID:  rec["UNIQUEID"],
				Version:   version,
				TimeStamp: timeStamp,
			},
		}
		if n, err := strconv.Atoi(rec["DEVICENUMBER"]); err == nil {
			r.number = n
		}
		if v := rec["VERSION"]; v != "" {
			r.extra.Version = v
		}
		out = append(out, r)
	}
	return out
}
