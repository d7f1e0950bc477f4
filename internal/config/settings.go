package config

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/muurk/alpacanet/internal/discovery"
	"github.com/muurk/alpacanet/internal/endpoints"
	"github.com/muurk/alpacanet/internal/hostnames"
	"github.com/muurk/alpacanet/internal/poller"
	"github.com/muurk/alpacanet/internal/registry"
)

// CurrentVersion is the only settings file version understood.
const CurrentVersion = 1

// Settings represents the entire configuration file.
type Settings struct {
	Version   int               `yaml:"version"`
	LogLevel  string            `yaml:"log_level,omitempty"`
	Discovery DiscoverySettings `yaml:"discovery"`
	Poll      PollSettings      `yaml:"poll"`
	Registry  RegistrySettings  `yaml:"registry"`
	Files     FileSettings      `yaml:"files"`
	History   HistorySettings   `yaml:"history"`
	Feed      FeedSettings      `yaml:"feed"`
}

// DiscoverySettings configures the UDP listener and prober.
type DiscoverySettings struct {
	Port             int           `yaml:"port"`
	ServicePort      int           `yaml:"service_port"`
	BroadcastAddress string        `yaml:"broadcast_address"`
	LocalIP          string        `yaml:"local_ip,omitempty"`
	ReceiveTimeout   time.Duration `yaml:"receive_timeout"`
	MaxTimeouts      int           `yaml:"max_timeouts"`
	Interval         time.Duration `yaml:"interval"`
	ExcludeSelf      bool          `yaml:"exclude_self"`
	MDNS             bool          `yaml:"mdns"`
	// RateLimit caps discovery replies per second; 0 answers every request.
	RateLimit        float64       `yaml:"rate_limit"`
	Burst            int           `yaml:"burst"`
}

// PollSettings configures the endpoint poller.
type PollSettings struct {
	Timeout          time.Duration `yaml:"timeout"`
	MaxResponseBytes int           `yaml:"max_response_bytes"`
}

// RegistrySettings bounds the registry and sets the staleness policy.
type RegistrySettings struct {
	MaxUnits         int `yaml:"max_units"`
	MaxDevices       int `yaml:"max_devices"`
	DemoteAfter      int `yaml:"demote_after"`
	EvictAfter       int `yaml:"evict_after"`
	DeviceEvictAfter int `yaml:"device_evict_after"`
	TempHistory      int `yaml:"temp_history"`
}

// FileSettings names the optional line-oriented input files.
type FileSettings struct {
	Endpoints       string `yaml:"endpoints"`
	Hosts           string `yaml:"hosts"`
	LocalIPOverride string `yaml:"local_ip_override,omitempty"`
}

// HistorySettings enables the sqlite sighting history.
type HistorySettings struct {
	Path string `yaml:"path,omitempty"`
}

// FeedSettings enables the HTTP/websocket registry feed.
type FeedSettings struct {
	Listen string `yaml:"listen,omitempty"`
}

// NewSettings returns the default settings.
func NewSettings() *Settings {
	pcfg := discovery.DefaultProberConfig()
	lcfg := discovery.DefaultListenerConfig()
	rcfg := registry.DefaultConfig()
	return &Settings{
		Version: CurrentVersion,
		Discovery: DiscoverySettings{
			Port:             lcfg.Port,
			ServicePort:      lcfg.ServicePort,
			BroadcastAddress: pcfg.BroadcastAddr.String(),
			ReceiveTimeout:   pcfg.ReceiveTimeout,
			MaxTimeouts:      pcfg.MaxTimeouts,
			Interval:         pcfg.Interval,
			ExcludeSelf:      pcfg.ExcludeSelf,
			RateLimit:        lcfg.RateLimit,
			Burst:            lcfg.Burst,
		},
		Poll: PollSettings{
			Timeout:          poller.DefaultTimeout,
			MaxResponseBytes: poller.DefaultMaxResponseBytes,
		},
		Registry: RegistrySettings{
			MaxUnits:         rcfg.MaxUnits,
			MaxDevices:       rcfg.MaxDevices,
			DemoteAfter:      rcfg.DemoteAfter,
			EvictAfter:       rcfg.EvictAfter,
			DeviceEvictAfter: rcfg.DeviceEvictAfter,
			TempHistory:      rcfg.TempHistory,
		},
		Files: FileSettings{
			Endpoints: endpoints.DefaultFile,
			Hosts:     hostnames.DefaultPath,
		},
	}
}

// Validate checks value ranges and address syntax.
func (s *Settings) Validate() error {
	var errs []error
	if s.Version != CurrentVersion {
		errs = append(errs, fmt.Errorf("unsupported config version: %d (expected %d)", s.Version, CurrentVersion))
	}
	if !validPort(s.Discovery.Port) {
		errs = append(errs, fmt.Errorf("discovery.port %d out of range", s.Discovery.Port))
	}
	if !validPort(s.Discovery.ServicePort) {
		errs = append(errs, fmt.Errorf("discovery.service_port %d out of range", s.Discovery.ServicePort))
	}
	if _, err := netip.ParseAddr(s.Discovery.BroadcastAddress); err != nil {
		errs = append(errs, fmt.Errorf("discovery.broadcast_address: %w", err))
	}
	if s.Discovery.LocalIP != "" {
		if _, err := netip.ParseAddr(s.Discovery.LocalIP); err != nil {
			errs = append(errs, fmt.Errorf("discovery.local_ip: %w", err))
		}
	}
	if s.Discovery.ReceiveTimeout <= 0 || s.Discovery.Interval <= 0 || s.Poll.Timeout <= 0 {
		errs = append(errs, errors.New("timeouts and interval must be positive"))
	}
	if s.Discovery.MaxTimeouts < 1 {
		errs = append(errs, errors.New("discovery.max_timeouts must be at least 1"))
	}
	r := s.Registry
	if r.MaxUnits < 1 || r.MaxDevices < 1 {
		errs = append(errs, errors.New("registry limits must be at least 1"))
	}
	if r.DemoteAfter < 0 || r.EvictAfter < 0 || r.DeviceEvictAfter < 0 {
		errs = append(errs, errors.New("registry staleness thresholds must not be negative"))
	}
	return errors.Join(errs...)
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

// ListenerConfig converts the settings for the discovery listener.
func (s *Settings) ListenerConfig() discovery.ListenerConfig {
	return discovery.ListenerConfig{
		Port:          s.Discovery.Port,
		ServicePort:   s.Discovery.ServicePort,
		BindAddr:      s.Discovery.LocalIP,
		RateLimit:     s.Discovery.RateLimit,
		Burst:         s.Discovery.Burst,
		AdvertiseMDNS: s.Discovery.MDNS,
	}
}

// ProberConfig converts the settings for the prober. The local address
// comes from discovery.local_ip, or from the override file when that is
// unset.
func (s *Settings) ProberConfig() (discovery.ProberConfig, error) {
	cfg := discovery.ProberConfig{
		DiscoveryPort:  s.Discovery.Port,
		ReceiveTimeout: s.Discovery.ReceiveTimeout,
		MaxTimeouts:    s.Discovery.MaxTimeouts,
		Interval:       s.Discovery.Interval,
		ExcludeSelf:    s.Discovery.ExcludeSelf,
		BrowseMDNS:     s.Discovery.MDNS,
	}

	bcast, err := netip.ParseAddr(s.Discovery.BroadcastAddress)
	if err != nil {
		return cfg, fmt.Errorf("discovery.broadcast_address: %w", err)
	}
	cfg.BroadcastAddr = bcast

	if s.Discovery.LocalIP != "" {
		ip, err := netip.ParseAddr(s.Discovery.LocalIP)
		if err != nil {
			return cfg, fmt.Errorf("discovery.local_ip: %w", err)
		}
		cfg.LocalAddr = ip
		return cfg, nil
	}

	ip, ok, err := endpoints.ReadLocalIPOverride(s.Files.LocalIPOverride)
	if err != nil {
		return cfg, err
	}
	if ok {
		cfg.LocalAddr = ip
	}
	return cfg, nil
}

// RegistryConfig converts the settings for the registry.
func (s *Settings) RegistryConfig() registry.Config {
	return registry.Config{
		MaxUnits:         s.Registry.MaxUnits,
		MaxDevices:       s.Registry.MaxDevices,
		DemoteAfter:      s.Registry.DemoteAfter,
		EvictAfter:       s.Registry.EvictAfter,
		DeviceEvictAfter: s.Registry.DeviceEvictAfter,
		TempHistory:      s.Registry.TempHistory,
	}
}

// PollerConfig converts the settings for the endpoint poller.
func (s *Settings) PollerConfig() poller.Config {
	return poller.Config{
		ConnectTimeout:   s.Poll.Timeout,
		IOTimeout:        s.Poll.Timeout,
		MaxResponseBytes: s.Poll.MaxResponseBytes,
	}
}
