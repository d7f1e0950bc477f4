// Package config provides the YAML settings file for alpacanet.
//
// The settings file holds every tunable of the discovery listener, the
// prober, the endpoint poller and the registry, plus the paths of the
// optional input files. Missing keys keep their defaults, so a file only
// needs the values an operator wants to change.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/alpacanet/config.yaml or $HOME/.config/alpacanet/config.yaml
//   - macOS: $HOME/.config/alpacanet/config.yaml
//   - Windows: %LOCALAPPDATA%\alpacanet\config.yaml
//
// # Usage Example
//
//	settings, err := config.Load("")
//	if err != nil {
//	    return err
//	}
//	pcfg, err := settings.ProberConfig()
//	if err != nil {
//	    return err
//	}
//	reg := registry.New(settings.RegistryConfig())
//	prober := discovery.NewProber(pcfg, reg)
//
// # File Format
//
//	version: 1
//	log_level: info
//	discovery:
//	  port: 32227
//	  service_port: 6800
//	  interval: 90s
//	registry:
//	  demote_after: 3
//	  evict_after: 0
package config
