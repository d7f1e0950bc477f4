package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/alpacanet/internal/config"
	"github.com/muurk/alpacanet/internal/discovery"
	"github.com/muurk/alpacanet/internal/endpoints"
	"github.com/muurk/alpacanet/internal/history"
	"github.com/muurk/alpacanet/internal/hostnames"
	"github.com/muurk/alpacanet/internal/logging"
	"github.com/muurk/alpacanet/internal/poller"
	"github.com/muurk/alpacanet/internal/registry"
)

// Discovery flags shared by every command that talks to the network.
var (
	discoveryPort  int
	servicePort    int
	broadcastAddr  string
	localIP        string
	endpointsFile  string
	hostsFile      string
	historyPath    string
	mdnsEnabled    bool
	receiveTimeout time.Duration
)

func addDiscoveryFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVar(&discoveryPort, "port", discovery.DefaultDiscoveryPort, "UDP discovery port")
	f.IntVar(&servicePort, "service-port", discovery.DefaultServicePort, "Alpaca port announced in discovery replies")
	f.StringVar(&broadcastAddr, "broadcast", "255.255.255.255", "Discovery request destination")
	f.StringVar(&localIP, "local-ip", "", "Bind discovery sockets to this address")
	f.StringVar(&endpointsFile, "endpoints", endpoints.DefaultFile, "File of manually listed units (ip[:port] per line)")
	f.StringVar(&hostsFile, "hosts", hostnames.DefaultPath, "Hosts file used to name units")
	f.StringVar(&historyPath, "history", "", "Record sightings to this sqlite database")
	f.BoolVar(&mdnsEnabled, "mdns", false, "Also advertise and browse _alpaca._tcp over mDNS")
	f.DurationVar(&receiveTimeout, "timeout", 3*time.Second, "Wait for discovery replies this long per read")
}

// loadSettings reads the config file and applies any flag the user set.
func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	s, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("log-level") {
		s.LogLevel = logLevel
	}
	if f.Lookup("port") == nil {
		return s, nil
	}
	if f.Changed("port") {
		s.Discovery.Port = discoveryPort
	}
	if f.Changed("service-port") {
		s.Discovery.ServicePort = servicePort
	}
	if f.Changed("broadcast") {
		s.Discovery.BroadcastAddress = broadcastAddr
	}
	if f.Changed("local-ip") {
		s.Discovery.LocalIP = localIP
	}
	if f.Changed("endpoints") {
		s.Files.Endpoints = endpointsFile
	}
	if f.Changed("hosts") {
		s.Files.Hosts = hostsFile
	}
	if f.Changed("history") {
		s.History.Path = historyPath
	}
	if f.Changed("mdns") {
		s.Discovery.MDNS = mdnsEnabled
	}
	if f.Changed("timeout") {
		s.Discovery.ReceiveTimeout = receiveTimeout
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

// initLogging starts zap at the configured level. Without one, the
// ALPACANET_LOG_LEVEL environment variable and then fallback apply; an
// empty fallback keeps logging silent.
func initLogging(s *config.Settings, fallback string) error {
	level := s.LogLevel
	if level == "" {
		level = os.Getenv(logging.LogLevelEnvVar)
	}
	if level == "" {
		level = fallback
	}
	return logging.Initialize(level)
}

// stack is the registry plus everything that feeds it.
type stack struct {
	settings *config.Settings
	reg      *registry.Registry
	prober   *discovery.Prober
	resolver *hostnames.Resolver
	store    *history.Store
}

// newStack builds the registry and prober. listening tells the prober that
// this process also runs a discovery listener, whose reply it then skips.
func newStack(s *config.Settings, listening bool) (*stack, error) {
	pcfg, err := s.ProberConfig()
	if err != nil {
		return nil, err
	}
	if listening {
		pcfg.ServicePort = s.Discovery.ServicePort
	}

	st := &stack{
		settings: s,
		reg:      registry.New(s.RegistryConfig()),
		resolver: hostnames.NewResolver(s.Files.Hosts),
	}
	opts := []discovery.ProberOption{
		discovery.WithPoller(poller.New(s.PollerConfig())),
		discovery.WithResolver(st.resolver),
	}
	if s.Files.Endpoints != "" {
		opts = append(opts, discovery.WithLoader(endpoints.NewLoader(s.Files.Endpoints, endpoints.DefaultPort)))
	}
	if s.History.Path != "" {
		st.store, err = history.Open(s.History.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		opts = append(opts, discovery.WithObserver(st.store))
		logging.Info("Recording sightings", zap.String("path", s.History.Path))
	}

	st.prober = discovery.NewProber(pcfg, st.reg, opts...)
	return st, nil
}

// Wake starts a discovery cycle now.
func (st *stack) Wake() {
	st.prober.Wake()
}

// Reset clears the registry, re-arms the endpoints file and re-reads the
// hosts file.
func (st *stack) Reset() {
	st.prober.Reset()
	st.resolver.Reload()
}

func (st *stack) Close() {
	if st.store != nil {
		if err := st.store.Close(); err != nil {
			logging.Warn("Failed to close history", zap.Error(err))
		}
	}
}
