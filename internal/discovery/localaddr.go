package discovery

import (
	"fmt"
	"net/netip"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// AddrSet is a set of IP addresses.
type AddrSet map[netip.Addr]struct{}

// Contains reports whether addr is in the set.
func (s AddrSet) Contains(addr netip.Addr) bool {
	_, ok := s[addr.Unmap()]
	return ok
}

// LocalAddrs returns every address configured on this host's interfaces.
func LocalAddrs() (AddrSet, error) {
	ifaces, err := psnet.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	set := AddrSet{}
	for _, iface := range ifaces {
		for _, a := range iface.Addrs {
			if p, err := netip.ParsePrefix(a.Addr); err == nil {
				set[p.Addr().Unmap()] = struct{}{}
				continue
			}
			if ip, err := netip.ParseAddr(a.Addr); err == nil {
				set[ip.Unmap()] = struct{}{}
			}
		}
	}
	return set, nil
}
