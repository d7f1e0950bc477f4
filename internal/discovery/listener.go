package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/ipv4"
	"golang.org/x/time/rate"

	"github.com/muurk/alpacanet/internal/logging"
)

// ListenerConfig configures the responder side of discovery.
type ListenerConfig struct {
	// Port is the UDP discovery port. Zero picks an ephemeral port.
	Port int
	// ServicePort is the HTTP port advertised in replies.
	ServicePort int
	// BindAddr restricts the socket to one local address; empty binds all.
	BindAddr string
	// RateLimit caps replies per second. Zero, the default, answers every
	// request; a positive value drops the excess.
	RateLimit float64
	// Burst is the limiter's bucket size.
	Burst int
	// AdvertiseMDNS also registers the service over mDNS.
	AdvertiseMDNS bool
	// InstanceName is the mDNS instance name; defaults to the host name.
	InstanceName string
}

// DefaultListenerConfig returns the standard discovery responder settings.
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		Port:        DefaultDiscoveryPort,
		ServicePort: DefaultServicePort,
	}
}

// ListenerStats counts handled datagrams.
type ListenerStats struct {
	Answered   uint64
	Unexpected uint64
	Ignored    uint64
	Limited    uint64
}

// Listener answers Alpaca discovery requests.
type Listener struct {
	cfg     ListenerConfig
	limiter *rate.Limiter

	mu    sync.Mutex
	addr  net.Addr
	ready chan struct{}

	answered   atomic.Uint64
	unexpected atomic.Uint64
	ignored    atomic.Uint64
	limited    atomic.Uint64
}

// NewListener creates a listener; call Run to start it.
func NewListener(cfg ListenerConfig) *Listener {
	if cfg.ServicePort == 0 {
		cfg.ServicePort = DefaultServicePort
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Listener{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the socket is bound.
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

// Addr returns the bound address, or nil before Ready.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr
}

// Stats returns a copy of the datagram counters.
func (l *Listener) Stats() ListenerStats {
	return ListenerStats{
		Answered:   l.answered.Load(),
		Unexpected: l.unexpected.Load(),
		Ignored:    l.ignored.Load(),
		Limited:    l.limited.Load(),
	}
}

// Run binds the discovery socket and answers requests until ctx is
// cancelled. Bind failures are returned; per-datagram failures are logged.
func (l *Listener) Run(ctx context.Context) error {
	lc := net.ListenConfig{Control: reuseControl}
	bind := net.JoinHostPort(l.cfg.BindAddr, strconv.Itoa(l.cfg.Port))
	pc, err := lc.ListenPacket(ctx, "udp4", bind)
	if err != nil {
		logging.Error("Failed to bind discovery socket", zap.String("addr", bind), zap.Error(err))
		return fmt.Errorf("failed to bind discovery socket %s: %w", bind, err)
	}
	defer pc.Close()

	l.mu.Lock()
	l.addr = pc.LocalAddr()
	l.mu.Unlock()
	close(l.ready)

	stop := context.AfterFunc(ctx, func() { pc.Close() })
	defer stop()

	conn := ipv4.NewPacketConn(pc)
	if err := conn.SetControlMessage(ipv4.FlagDst, true); err != nil {
		logging.Debug("Destination control messages unavailable", zap.Error(err))
	}

	if l.cfg.AdvertiseMDNS {
		instance := l.cfg.InstanceName
		if instance == "" {
			instance, _ = os.Hostname()
		}
		srv, err := Advertise(instance, l.cfg.ServicePort)
		if err != nil {
			logging.Warn("mDNS advertisement disabled", zap.Error(err))
		} else {
			defer srv.Shutdown()
		}
	}

	logging.Info("Discovery listener started",
		zap.String("addr", pc.LocalAddr().String()),
		zap.Int("service_port", l.cfg.ServicePort),
	)

	buf := make([]byte, 1500)
	for {
		n, cm, src, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logging.Info("Discovery listener stopped")
				return nil
			}
			logging.Warn("Discovery receive failed", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}
		l.handle(conn, buf[:n], cm, src)
	}
}

func (l *Listener) handle(conn *ipv4.PacketConn, payload []byte, cm *ipv4.ControlMessage, src net.Addr) {
	logging.LogDatagram("received", src.String(), payload)

	kind := MatchRequest(payload)
	switch kind {
	case RequestNone:
		l.ignored.Add(1)
		return
	case RequestLoose:
		l.unexpected.Add(1)
		logging.Warn("Unexpected discovery request answered",
			zap.String("remote_addr", src.String()),
			zap.ByteString("payload", truncate(payload, 64)),
		)
	}

	if !l.limiter.Allow() {
		l.limited.Add(1)
		logging.Debug("Discovery reply rate limited", zap.String("remote_addr", src.String()))
		return
	}

	reply := BuildResponse(l.cfg.ServicePort)
	if _, err := conn.WriteTo(reply, nil, src); err != nil {
		logging.Warn("Discovery reply failed", zap.String("remote_addr", src.String()), zap.Error(err))
		return
	}
	l.answered.Add(1)

	fields := []zap.Field{
		zap.String("remote_addr", src.String()),
		zap.String("kind", kind.String()),
	}
	if cm != nil && cm.Dst != nil {
		fields = append(fields, zap.String("dst", cm.Dst.String()))
	}
	logging.Debug("Discovery request answered", fields...)
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
