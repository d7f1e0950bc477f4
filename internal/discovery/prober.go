package discovery

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/alpacanet/internal/endpoints"
	"github.com/muurk/alpacanet/internal/hostnames"
	"github.com/muurk/alpacanet/internal/logging"
	"github.com/muurk/alpacanet/internal/poller"
	"github.com/muurk/alpacanet/internal/registry"
)

// ProberConfig configures the client side of discovery.
type ProberConfig struct {
	// DiscoveryPort is the UDP port requests are sent to.
	DiscoveryPort int
	// BroadcastAddr is the request destination.
	BroadcastAddr netip.Addr
	// LocalAddr binds the request socket; invalid means any.
	LocalAddr netip.Addr
	// ReceiveTimeout bounds each wait for a reply.
	ReceiveTimeout time.Duration
	// MaxTimeouts ends the collection window after this many consecutive
	// receive timeouts.
	MaxTimeouts int
	// Interval is the pause between cycles.
	Interval time.Duration
	// ExcludeSelf skips the reply of this process's own listener: one
	// from a local address that carries ServicePort. Other servers on this
	// host are kept.
	ExcludeSelf bool
	// ServicePort is the port this process's listener advertises. Zero
	// means no listener runs here and nothing is excluded.
	ServicePort int
	// BrowseMDNS adds an mDNS browse to every collection window.
	BrowseMDNS bool
}

// DefaultProberConfig returns the standard prober settings.
func DefaultProberConfig() ProberConfig {
	return ProberConfig{
		DiscoveryPort:  DefaultDiscoveryPort,
		BroadcastAddr:  netip.AddrFrom4([4]byte{255, 255, 255, 255}),
		ReceiveTimeout: 3 * time.Second,
		MaxTimeouts:    2,
		Interval:       90 * time.Second,
		ExcludeSelf:    true,
	}
}

// Observer is notified with a registry snapshot after every cycle.
type Observer interface {
	CycleComplete(ctx context.Context, snap registry.Snapshot)
}

// CycleStats summarises one discovery cycle.
type CycleStats struct {
	Cycle          uint64
	Replies        int
	NewUnits       int
	Polled         int
	PollFailures   int
	Skipped        int
	NewDevices     int
	MetadataPolled int
	Evicted        int
	Duration       time.Duration
}

// ProberOption customises a Prober.
type ProberOption func(*Prober)

// WithPoller replaces the default endpoint poller.
func WithPoller(p *poller.Poller) ProberOption {
	return func(pr *Prober) { pr.poller = p }
}

// WithLoader injects manual endpoints on the first cycle after start or
// reset.
func WithLoader(l *endpoints.Loader) ProberOption {
	return func(pr *Prober) { pr.loader = l }
}

// WithResolver names units from a hosts file.
func WithResolver(r *hostnames.Resolver) ProberOption {
	return func(pr *Prober) { pr.hosts = r }
}

// WithObserver adds a cycle observer.
func WithObserver(o Observer) ProberOption {
	return func(pr *Prober) { pr.observers = append(pr.observers, o) }
}

// WithLocalAddrs replaces the self-address lookup.
func WithLocalAddrs(fn func() (AddrSet, error)) ProberOption {
	return func(pr *Prober) { pr.localAddrs = fn }
}

// WithBrowser replaces the mDNS browser used when BrowseMDNS is set.
func WithBrowser(b *Browser) ProberOption {
	return func(pr *Prober) { pr.browser = b }
}

// Prober periodically discovers units and polls them into a registry.
type Prober struct {
	cfg        ProberConfig
	reg        *registry.Registry
	poller     *poller.Poller
	loader     *endpoints.Loader
	hosts      *hostnames.Resolver
	browser    *Browser
	observers  []Observer
	localAddrs func() (AddrSet, error)

	wake    chan struct{}
	cycleMu sync.Mutex
}

// NewProber creates a prober writing into reg.
func NewProber(cfg ProberConfig, reg *registry.Registry, opts ...ProberOption) *Prober {
	def := DefaultProberConfig()
	if cfg.DiscoveryPort == 0 {
		cfg.DiscoveryPort = def.DiscoveryPort
	}
	if !cfg.BroadcastAddr.IsValid() {
		cfg.BroadcastAddr = def.BroadcastAddr
	}
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = def.ReceiveTimeout
	}
	if cfg.MaxTimeouts <= 0 {
		cfg.MaxTimeouts = def.MaxTimeouts
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}

	p := &Prober{
		cfg:        cfg,
		reg:        reg,
		localAddrs: LocalAddrs,
		wake:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.poller == nil {
		p.poller = poller.New(poller.Config{})
	}
	if p.browser == nil {
		p.browser = &Browser{Timeout: p.collectWindow()}
	}
	if p.loader != nil {
		reg.OnReset(p.loader.Reset)
	}
	return p
}

// collectWindow is the longest a reply collection can take.
func (p *Prober) collectWindow() time.Duration {
	return p.cfg.ReceiveTimeout * time.Duration(p.cfg.MaxTimeouts)
}

// Wake ends the current sleep early. It never blocks; extra calls while a
// wake is pending are dropped.
func (p *Prober) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Reset clears the registry and re-arms the manual endpoint loader.
func (p *Prober) Reset() {
	p.reg.Reset()
}

// AddObserver adds a cycle observer after construction. It waits for a
// running cycle to finish.
func (p *Prober) AddObserver(o Observer) {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()
	p.observers = append(p.observers, o)
}

// Registry returns the registry the prober writes into.
func (p *Prober) Registry() *registry.Registry {
	return p.reg
}

// Run executes cycles until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) error {
	logging.Info("Discovery prober started",
		zap.Int("discovery_port", p.cfg.DiscoveryPort),
		zap.String("broadcast", p.cfg.BroadcastAddr.String()),
		zap.Duration("interval", p.cfg.Interval),
	)
	for {
		stats := p.RunCycle(ctx)
		if ctx.Err() != nil {
			logging.Info("Discovery prober stopped")
			return nil
		}
		logging.Info("Discovery cycle complete",
			zap.Uint64("cycle", stats.Cycle),
			zap.Int("replies", stats.Replies),
			zap.Int("new_units", stats.NewUnits),
			zap.Int("polled", stats.Polled),
			zap.Int("poll_failures", stats.PollFailures),
			zap.Int("new_devices", stats.NewDevices),
			zap.Duration("duration", stats.Duration),
		)
		if !p.sleep(ctx) {
			logging.Info("Discovery prober stopped")
			return nil
		}
	}
}

// sleep waits for the interval, a wake or cancellation. It returns false
// on cancellation.
func (p *Prober) sleep(ctx context.Context) bool {
	timer := time.NewTimer(p.cfg.Interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-p.wake:
		logging.Debug("Discovery prober woken early")
		return true
	case <-timer.C:
		return true
	}
}

// RunCycle performs one full discovery cycle.
func (p *Prober) RunCycle(ctx context.Context) CycleStats {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	start := time.Now()
	var stats CycleStats

	if p.loader != nil {
		if _, err := p.loader.LoadOnce(p.reg); err != nil {
			logging.Warn("Manual endpoints not loaded", zap.String("path", p.loader.Path()), zap.Error(err))
		}
	}

	stats.Cycle = p.reg.BeginCycle()

	sightings := p.collect(ctx)
	stats.Replies = len(sightings)

	var self AddrSet
	if p.cfg.ExcludeSelf && p.cfg.ServicePort > 0 {
		var err error
		if self, err = p.localAddrs(); err != nil {
			logging.Warn("Local addresses unavailable, own reply kept", zap.Error(err))
		}
	}

	for _, s := range sightings {
		if p.isOwnReply(self, s.Addr) {
			logging.Debug("Skipping reply from this process", zap.String("remote_addr", s.Addr.String()))
			continue
		}
		key, created, err := p.reg.UpsertUnit(s.Addr, s.Source)
		if err != nil {
			logging.Warn("Unit not registered", zap.String("remote_addr", s.Addr.String()), zap.Error(err))
			continue
		}
		if created {
			stats.NewUnits++
			logging.Info("Unit discovered", zap.Stringer("unit", s))
			if s.HostName != "" {
				_ = p.reg.SetHostName(key, s.HostName)
			}
		}
	}

	for _, u := range p.reg.ListUnits() {
		if ctx.Err() != nil {
			break
		}
		if !p.reg.PollEligible(u.Key) {
			stats.Skipped++
			continue
		}
		if u.HostName == "" && p.hosts != nil {
			if name, ok := p.hosts.Lookup(u.Key.Addr.String()); ok {
				_ = p.reg.SetHostName(u.Key, name)
			}
		}

		stats.Polled++
		created, ok := p.pollDevices(ctx, u.Key)
		stats.NewDevices += created
		if !ok {
			stats.PollFailures++
		}
		if !u.MetadataFetched && ctx.Err() == nil {
			p.pollMetadata(ctx, u.Key)
			stats.MetadataPolled++
		}
	}

	res := p.reg.EndCycle()
	stats.Evicted = len(res.EvictedUnits)
	stats.Duration = time.Since(start)

	if len(p.observers) > 0 {
		snap := p.reg.Snapshot()
		for _, o := range p.observers {
			o.CycleComplete(ctx, snap)
		}
	}
	return stats
}

// isOwnReply reports whether addr is this process's listener, reached
// through one of the host addresses in self.
func (p *Prober) isOwnReply(self AddrSet, addr netip.AddrPort) bool {
	return p.cfg.ServicePort > 0 &&
		addr.Port() == uint16(p.cfg.ServicePort) &&
		self.Contains(addr.Addr())
}

// collect sends the broadcast and gathers replies, plus mDNS entries when
// enabled.
func (p *Prober) collect(ctx context.Context) []Sighting {
	var (
		wg     sync.WaitGroup
		viaDNS []Sighting
	)
	if p.cfg.BrowseMDNS {
		wg.Add(1)
		go func() {
			defer wg.Done()
			found, err := p.browser.Browse(ctx)
			if err != nil {
				logging.Warn("mDNS browse failed", zap.Error(err))
				return
			}
			viaDNS = found
		}()
	}

	sightings := p.broadcast(ctx)
	wg.Wait()
	return append(sightings, viaDNS...)
}

func (p *Prober) broadcast(ctx context.Context) []Sighting {
	laddr := &net.UDPAddr{}
	if p.cfg.LocalAddr.IsValid() {
		laddr.IP = p.cfg.LocalAddr.AsSlice()
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		logging.Error("Failed to open discovery socket", zap.Error(err))
		return nil
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	dst := net.UDPAddrFromAddrPort(netip.AddrPortFrom(p.cfg.BroadcastAddr, uint16(p.cfg.DiscoveryPort)))
	if _, err := conn.WriteToUDP([]byte(RequestPayload), dst); err != nil {
		logging.Warn("Discovery broadcast failed", zap.String("dst", dst.String()), zap.Error(err))
		return nil
	}
	logging.LogDatagram("sent", dst.String(), []byte(RequestPayload))

	var sightings []Sighting
	buf := make([]byte, 1500)
	timeouts := 0
	for timeouts < p.cfg.MaxTimeouts {
		if err := conn.SetReadDeadline(time.Now().Add(p.cfg.ReceiveTimeout)); err != nil {
			break
		}
		n, src, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				timeouts++
				continue
			}
			logging.Warn("Discovery receive failed", zap.Error(err))
			break
		}
		timeouts = 0
		logging.LogDatagram("received", src.String(), buf[:n])

		port, err := ParseResponse(buf[:n])
		if err != nil {
			logging.Debug("Ignoring discovery datagram", zap.String("remote_addr", src.String()), zap.Error(err))
			continue
		}
		sightings = append(sightings, Sighting{
			Addr:         netip.AddrPortFrom(src.Addr().Unmap(), port),
			Source:       registry.SourceBroadcast,
			DiscoveredAt: time.Now(),
		})
	}
	return sightings
}

func (p *Prober) pollDevices(ctx context.Context, key registry.UnitKey) (created int, ok bool) {
	doc, err := p.poller.Get(ctx, key.AddrPort(), poller.PathConfiguredDevices)
	if err != nil {
		_ = p.reg.RecordPollFailure(key)
		return 0, false
	}
	_ = p.reg.RecordPollSuccess(key)

	uptime, hasUptime := doc.Int("upTime_Days")
	temp, hasTemp := doc.Float("cpuTemp_DegF")
	if hasUptime || hasTemp {
		_ = p.reg.RecordTelemetry(key, uptime, temp, hasTemp)
	}

	for _, rec := range parseConfiguredDevices(doc) {
		res, err := p.reg.UpsertRemoteDevice(key, rec.deviceType, rec.number, rec.name, rec.extra)
		if err != nil {
			logging.Warn("Remote device not registered",
				zap.String("remote_addr", key.String()),
				zap.String("device_type", rec.deviceType),
				zap.String("device_name", rec.name),
				zap.Error(err),
			)
			continue
		}
		if res == registry.UpsertCreated {
			created++
			logging.Info("Remote device discovered",
				zap.String("remote_addr", key.String()),
				zap.String("device_type", rec.deviceType),
				zap.Int("device_number", rec.number),
				zap.String("device_name", rec.name),
			)
		}
	}
	return created, true
}

// pollMetadata runs the one-time libraries and cpustats polls. The unit is
// marked fetched whatever the outcome.
func (p *Prober) pollMetadata(ctx context.Context, key registry.UnitKey) {
	defer func() { _ = p.reg.MarkMetadataFetched(key) }()

	var md registry.Metadata
	got := false
	if doc, err := p.poller.Get(ctx, key.AddrPort(), poller.PathLibraries); err == nil {
		md.Libraries = ParseLibraries(doc)
		got = true
	}
	if doc, err := p.poller.Get(ctx, key.AddrPort(), poller.PathCPUStats); err == nil {
		ApplyCPUStats(&md, doc)
		got = true
	}
	if got {
		_ = p.reg.SetMetadata(key, md)
	}
}
