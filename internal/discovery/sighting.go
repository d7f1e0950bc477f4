package discovery

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/muurk/alpacanet/internal/registry"
)

// Sighting is one unit seen during a discovery window, by broadcast reply
// or mDNS browse.
type Sighting struct {
	Addr         netip.AddrPort
	HostName     string
	Source       registry.Source
	DiscoveredAt time.Time
}

// String returns a human-readable representation.
func (s Sighting) String() string {
	if s.HostName != "" {
		return fmt.Sprintf("%s (%s, %s)", s.Addr, s.HostName, s.Source)
	}
	return fmt.Sprintf("%s (%s)", s.Addr, s.Source)
}
