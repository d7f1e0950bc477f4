// Package poller issues the hand-built HTTP/1.0 GET requests used to ask
// Alpaca units for their device list and metadata.
//
// Instrument servers on small boards often speak a minimal HTTP dialect, so
// the request is written byte for byte instead of going through net/http:
//
//	GET <path> HTTP/1.0
//	Host: <ip>:<port>
//	User-Agent: alpacanet/<version>
//	Accept: text/html,application/json
//
// The response is read until the server closes the connection or the byte
// cap is reached, then flattened by jsonreader.
package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/alpacanet/internal/jsonreader"
	"github.com/muurk/alpacanet/internal/logging"
	"github.com/muurk/alpacanet/internal/version"
)

// Endpoint paths polled on every unit.
const (
	PathConfiguredDevices = "/management/v1/configureddevices"
	PathLibraries         = "/api/v1/management/0/libraries"
	PathCPUStats          = "/api/v1/management/0/cpustats"
)

const (
	DefaultTimeout          = 5 * time.Second
	DefaultMaxResponseBytes = 256 * 1024
)

// Config controls a Poller.
type Config struct {
	ConnectTimeout   time.Duration
	IOTimeout        time.Duration
	MaxResponseBytes int
	UserAgent        string
}

// Poller fetches JSON documents from units.
type Poller struct {
	cfg    Config
	dialer net.Dialer
}

// New creates a Poller. Zero values select the defaults.
func New(cfg Config) *Poller {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultTimeout
	}
	if cfg.IOTimeout <= 0 {
		cfg.IOTimeout = DefaultTimeout
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = version.UserAgent()
	}
	return &Poller{
		cfg:    cfg,
		dialer: net.Dialer{Timeout: cfg.ConnectTimeout},
	}
}

// BuildRequest returns the exact request bytes sent for path.
func BuildRequest(host, path, userAgent string) []byte {
	return []byte(fmt.Sprintf(
		"GET %s HTTP/1.0\r\nHost: %s\r\nUser-Agent: %s\r\nAccept: text/html,application/json\r\n\r\n",
		path, host, userAgent,
	))
}

// Fetch sends one request and returns the raw response bytes.
func (p *Poller) Fetch(ctx context.Context, addr netip.AddrPort, path string) ([]byte, error) {
	host := addr.String()

	conn, err := p.dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return nil, p.fail(addr, path, err)
	}
	defer conn.Close()

	// Cancelling ctx unblocks pending reads by expiring the deadline.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := conn.SetDeadline(time.Now().Add(p.cfg.IOTimeout)); err != nil {
		return nil, p.fail(addr, path, err)
	}
	if _, err := conn.Write(BuildRequest(host, path, p.cfg.UserAgent)); err != nil {
		return nil, p.fail(addr, path, err)
	}

	data, err := io.ReadAll(io.LimitReader(conn, int64(p.cfg.MaxResponseBytes)))
	if err != nil {
		if ctx.Err() != nil {
			return nil, p.fail(addr, path, ctx.Err())
		}
		// Some servers keep the connection open after the body; what
		// arrived before the deadline is handed to the JSON reader.
		if len(data) == 0 || !os.IsTimeout(err) {
			return nil, p.fail(addr, path, err)
		}
		logging.Debug("Read deadline reached, using partial response",
			zap.String("remote_addr", host),
			zap.String("path", path),
			zap.Int("bytes", len(data)),
		)
	}
	logging.LogPoll(host, path, len(data), nil)
	return data, nil
}

// Get fetches path and flattens the JSON body.
func (p *Poller) Get(ctx context.Context, addr netip.AddrPort, path string) (*jsonreader.Document, error) {
	data, err := p.Fetch(ctx, addr, path)
	if err != nil {
		return nil, err
	}
	doc, err := jsonreader.Parse(data)
	if err != nil {
		pe := &PollError{Kind: KindParse, Addr: addr.String(), Path: path, Err: err}
		logging.LogPoll(addr.String(), path, len(data), pe)
		logging.LogRawBytes("Unparseable response", data)
		return nil, pe
	}
	return doc, nil
}

func (p *Poller) fail(addr netip.AddrPort, path string, err error) error {
	kind := Classify(err)
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	pe := &PollError{Kind: kind, Addr: addr.String(), Path: path, Err: err}
	if kind == KindRefused {
		// Refused is common for stale manual endpoints; keep it out of warn.
		logging.Debug("Unit refused connection", zap.String("remote_addr", addr.String()), zap.String("path", path))
		return pe
	}
	logging.LogPoll(addr.String(), path, 0, pe)
	return pe
}
