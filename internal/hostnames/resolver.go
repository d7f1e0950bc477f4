// Package hostnames maps IPv4 addresses to names using a hosts(5) file.
package hostnames

import (
	"bufio"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/muurk/alpacanet/internal/logging"
)

// DefaultPath is the system hosts file.
const DefaultPath = "/etc/hosts"

// Resolver answers address-to-name lookups from a hosts file. The file is
// read lazily on the first lookup and cached until Reload is called.
type Resolver struct {
	path string

	mu    sync.Mutex
	once  *sync.Once
	table map[netip.Addr]string
	loads int
}

// NewResolver creates a resolver for the given hosts file. An empty path
// selects DefaultPath.
func NewResolver(path string) *Resolver {
	if path == "" {
		path = DefaultPath
	}
	return &Resolver{path: path, once: new(sync.Once)}
}

// Lookup returns the first name listed for addr. addr may carry a port.
func (r *Resolver) Lookup(addr string) (string, bool) {
	ip, err := parseAddr(addr)
	if err != nil {
		return "", false
	}

	r.mu.Lock()
	once := r.once
	r.mu.Unlock()
	once.Do(r.load)

	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.table[ip]
	return name, ok
}

// Reload discards the cached table; the next Lookup re-reads the file.
func (r *Resolver) Reload() {
	r.mu.Lock()
	r.once = new(sync.Once)
	r.mu.Unlock()
}

// Loads reports how many times the hosts file has been read.
func (r *Resolver) Loads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads
}

func (r *Resolver) load() {
	table := map[netip.Addr]string{}

	f, err := os.Open(r.path)
	if err != nil {
		logging.Warn("Hosts file unavailable, names will not be resolved",
			zap.String("path", r.path),
			zap.Error(err),
		)
	} else {
		table, err = Parse(f)
		f.Close()
		if err != nil {
			logging.Warn("Failed to read hosts file",
				zap.String("path", r.path),
				zap.Error(err),
			)
		}
	}

	r.mu.Lock()
	r.table = table
	r.loads++
	r.mu.Unlock()

	logging.Debug("Hosts file loaded",
		zap.String("path", r.path),
		zap.Int("entries", len(table)),
	)
}

// Parse reads hosts(5) formatted lines. Only IPv4 entries are kept and
// only the first name of each line is used. When an address is listed
// more than once the first line wins. The returned table holds every
// entry read before a read error.
func Parse(rd io.Reader) (map[netip.Addr]string, error) {
	table := map[netip.Addr]string{}
	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		ip, err := netip.ParseAddr(fields[0])
		if err != nil || !ip.Is4() {
			continue
		}
		if _, dup := table[ip]; !dup {
			table[ip] = fields[1]
		}
	}
	if err := scanner.Err(); err != nil {
		return table, fmt.Errorf("scan hosts: %w", err)
	}
	return table, nil
}

func parseAddr(s string) (netip.Addr, error) {
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap(), nil
	}
	ip, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, err
	}
	return ip.Unmap(), nil
}
