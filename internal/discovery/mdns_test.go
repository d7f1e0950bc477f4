package discovery

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"

	"github.com/muurk/alpacanet/internal/registry"
)

func TestParseServiceEntry(t *testing.T) {
	tests := []struct {
		name     string
		entry    *zeroconf.ServiceEntry
		wantOK   bool
		wantAddr string
		wantHost string
	}{
		{
			name: "srv port",
			entry: &zeroconf.ServiceEntry{
				HostName: "observatory-pi.local.",
				Port:     6800,
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.40")},
				Text:     []string{"alpacaport=6800", "version=0.7.0"},
			},
			wantOK:   true,
			wantAddr: "192.168.1.40:6800",
			wantHost: "observatory-pi",
		},
		{
			name: "port from txt",
			entry: &zeroconf.ServiceEntry{
				HostName: "dome.local",
				AddrIPv4: []net.IP{net.ParseIP("10.0.0.5")},
				Text:     []string{"AlpacaPort=11111"},
			},
			wantOK:   true,
			wantAddr: "10.0.0.5:11111",
			wantHost: "dome",
		},
		{
			name: "ipv6 only",
			entry: &zeroconf.ServiceEntry{
				HostName: "v6.local.",
				Port:     6800,
				AddrIPv6: []net.IP{net.ParseIP("fe80::1")},
			},
			wantOK: false,
		},
		{
			name: "no port",
			entry: &zeroconf.ServiceEntry{
				HostName: "noport.local.",
				AddrIPv4: []net.IP{net.ParseIP("10.0.0.6")},
				Text:     []string{"flag"},
			},
			wantOK: false,
		},
		{
			name:   "nil",
			entry:  nil,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseServiceEntry(tt.entry)
			if ok != tt.wantOK {
				t.Fatalf("parseServiceEntry() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.Addr.String() != tt.wantAddr {
				t.Errorf("Addr = %v, want %v", got.Addr, tt.wantAddr)
			}
			if got.HostName != tt.wantHost {
				t.Errorf("HostName = %v, want %v", got.HostName, tt.wantHost)
			}
			if got.Source != registry.SourceMDNS {
				t.Errorf("Source = %v, want %v", got.Source, registry.SourceMDNS)
			}
		})
	}
}

func TestSightingString(t *testing.T) {
	entry := &zeroconf.ServiceEntry{
		HostName: "observatory-pi.local.",
		Port:     6800,
		AddrIPv4: []net.IP{net.ParseIP("192.168.1.40")},
		Text:     []string{"version=0.7.0"},
	}
	s, ok := parseServiceEntry(entry)
	if !ok {
		t.Fatal("parseServiceEntry() failed")
	}

	if got := s.String(); got != "192.168.1.40:6800 (observatory-pi, mdns)" {
		t.Errorf("String() = %v", got)
	}
}
