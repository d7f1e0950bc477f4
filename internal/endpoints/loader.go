// Package endpoints reads operator-supplied unit addresses that broadcast
// discovery cannot reach, and the optional local address override.
package endpoints

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/muurk/alpacanet/internal/logging"
	"github.com/muurk/alpacanet/internal/registry"
)

const (
	// DefaultFile is the manual endpoint list read from the working directory.
	DefaultFile = "external_ip_list.txt"
	// DefaultPort is the Alpaca service port assumed when a line has none.
	DefaultPort uint16 = 6800
)

// Upserter is the part of the registry the loader needs.
type Upserter interface {
	UpsertUnit(addr netip.AddrPort, src registry.Source) (registry.UnitKey, bool, error)
}

// Loader injects the manual endpoint list into the registry once, until
// Reset re-arms it.
type Loader struct {
	path        string
	defaultPort uint16

	mu     sync.Mutex
	loaded bool
	loads  int
}

// NewLoader creates a loader. Empty path and zero port select the defaults.
func NewLoader(path string, defaultPort uint16) *Loader {
	if path == "" {
		path = DefaultFile
	}
	if defaultPort == 0 {
		defaultPort = DefaultPort
	}
	return &Loader{path: path, defaultPort: defaultPort}
}

// Path returns the endpoint file location.
func (l *Loader) Path() string {
	return l.path
}

// LoadOnce upserts every listed endpoint the first time it is called and
// returns how many were added. Later calls do nothing until Reset. A
// missing file counts as loaded.
func (l *Loader) LoadOnce(u Upserter) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.loaded {
		return 0, nil
	}

	addrs, err := ParseFile(l.path, l.defaultPort)
	l.loads++
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.loaded = true
			logging.Debug("No manual endpoint file", zap.String("path", l.path))
			return 0, nil
		}
		return 0, err
	}
	l.loaded = true

	added := 0
	for _, addr := range addrs {
		_, created, err := u.UpsertUnit(addr, registry.SourceManual)
		if err != nil {
			logging.Warn("Manual endpoint rejected",
				zap.String("remote_addr", addr.String()),
				zap.Error(err),
			)
			continue
		}
		if created {
			added++
		}
	}
	logging.Info("Manual endpoints loaded",
		zap.String("path", l.path),
		zap.Int("listed", len(addrs)),
		zap.Int("added", added),
	)
	return added, nil
}

// Reset makes the next LoadOnce read the file again.
func (l *Loader) Reset() {
	l.mu.Lock()
	l.loaded = false
	l.mu.Unlock()
}

// Loads reports how many times the file has been read.
func (l *Loader) Loads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}

// ParseFile reads an endpoint list from disk.
func ParseFile(path string, defaultPort uint16) ([]netip.AddrPort, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open endpoint list: %w", err)
	}
	defer f.Close()
	return Parse(f, defaultPort)
}

// Parse reads one "ip[:port]" per line. Blank lines, '#' comments and
// malformed lines are skipped; malformed lines are logged.
func Parse(rd io.Reader, defaultPort uint16) ([]netip.AddrPort, error) {
	var out []netip.AddrPort
	scanner := bufio.NewScanner(rd)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		addr, ok, err := ParseLine(scanner.Text(), defaultPort)
		if err != nil {
			logging.Warn("Skipping malformed endpoint line",
				zap.Int("line", lineNo),
				zap.Error(err),
			)
			continue
		}
		if ok {
			out = append(out, addr)
		}
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("read endpoint list: %w", err)
	}
	return out, nil
}

// ParseLine parses a single endpoint line. ok is false for blank and
// comment lines.
func ParseLine(line string, defaultPort uint16) (addr netip.AddrPort, ok bool, err error) {
	line = stripComment(line)
	if line == "" {
		return netip.AddrPort{}, false, nil
	}
	if fields := strings.Fields(line); len(fields) > 1 {
		return netip.AddrPort{}, false, fmt.Errorf("unexpected text after %q", fields[0])
	}

	host, portStr, hasPort := strings.Cut(line, ":")
	ip, err := netip.ParseAddr(host)
	if err != nil || !ip.Is4() {
		return netip.AddrPort{}, false, fmt.Errorf("invalid IPv4 address %q", host)
	}
	port := defaultPort
	if hasPort {
		n, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil || n == 0 {
			return netip.AddrPort{}, false, fmt.Errorf("invalid port %q", portStr)
		}
		port = uint16(n)
	}
	return netip.AddrPortFrom(ip, port), true, nil
}

// ReadLocalIPOverride returns the first address listed in the override
// file. ok is false when the file is absent or holds no address.
func ReadLocalIPOverride(path string) (netip.Addr, bool, error) {
	if path == "" {
		return netip.Addr{}, false, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return netip.Addr{}, false, nil
		}
		return netip.Addr{}, false, fmt.Errorf("open local address override: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := stripComment(scanner.Text())
		if line == "" {
			continue
		}
		ip, err := netip.ParseAddr(strings.Fields(line)[0])
		if err != nil {
			return netip.Addr{}, false, fmt.Errorf("local address override %s: %w", path, err)
		}
		return ip, true, nil
	}
	return netip.Addr{}, false, scanner.Err()
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}
