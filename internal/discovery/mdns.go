package discovery

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/alpacanet/internal/logging"
	"github.com/muurk/alpacanet/internal/registry"
	"github.com/muurk/alpacanet/internal/version"
)

const (
	// ServiceType is the DNS-SD service type for Alpaca servers.
	ServiceType = "_alpaca._tcp"

	// ServiceDomain is the mDNS domain.
	ServiceDomain = "local."

	// DefaultBrowseTimeout bounds a standalone mDNS browse.
	DefaultBrowseTimeout = 5 * time.Second
)

// Advertise registers this server as an _alpaca._tcp service. Call
// Shutdown on the returned server to withdraw it.
func Advertise(instance string, servicePort int) (*zeroconf.Server, error) {
	txt := []string{
		"alpacaport=" + strconv.Itoa(servicePort),
		"version=" + version.Version,
	}
	srv, err := zeroconf.Register(instance, ServiceType, ServiceDomain, servicePort, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	return srv, nil
}

// Browser finds Alpaca servers over mDNS.
type Browser struct {
	// Timeout is how long a browse collects entries.
	Timeout time.Duration
}

// NewBrowser creates a browser with the default timeout.
func NewBrowser() *Browser {
	return &Browser{Timeout: DefaultBrowseTimeout}
}

// Browse collects every _alpaca._tcp entry announced within the timeout.
func (b *Browser) Browse(ctx context.Context) ([]Sighting, error) {
	ctx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	// zeroconf never closes the entries channel, so the collector stops on
	// ctx instead. The buffer keeps late sends from blocking the resolver.
	entries := make(chan *zeroconf.ServiceEntry, 16)
	var (
		mu        sync.Mutex
		sightings []Sighting
		done      = make(chan struct{})
	)
	go func() {
		defer close(done)
		for {
			select {
			case entry := <-entries:
				if s, ok := parseServiceEntry(entry); ok {
					mu.Lock()
					sightings = append(sightings, s)
					mu.Unlock()
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	<-done

	mu.Lock()
	defer mu.Unlock()
	logging.Debug("mDNS browse finished", zap.Int("found", len(sightings)))
	return sightings, nil
}

// parseServiceEntry converts a zeroconf entry into a Sighting. The port
// comes from the SRV record, or from an alpacaport TXT value when the SRV
// port is missing.
func parseServiceEntry(entry *zeroconf.ServiceEntry) (Sighting, bool) {
	if entry == nil {
		return Sighting{}, false
	}

	var addr netip.Addr
	for _, ip := range entry.AddrIPv4 {
		if a, ok := netip.AddrFromSlice(ip.To4()); ok {
			addr = a
			break
		}
	}
	if !addr.IsValid() {
		return Sighting{}, false
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[strings.ToLower(key)] = value
	}

	port := entry.Port
	if port == 0 {
		if p, err := strconv.Atoi(metadata["alpacaport"]); err == nil {
			port = p
		}
	}
	if port <= 0 || port > 65535 {
		return Sighting{}, false
	}

	return Sighting{
		Addr:         netip.AddrPortFrom(addr, uint16(port)),
		HostName:     strings.TrimSuffix(strings.TrimSuffix(entry.HostName, "."), ".local"),
		Source:       registry.SourceMDNS,
		DiscoveredAt: time.Now(),
	}, true
}
