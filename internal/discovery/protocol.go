package discovery

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/muurk/alpacanet/internal/jsonreader"
)

const (
	// DefaultDiscoveryPort is the well-known Alpaca discovery port.
	DefaultDiscoveryPort = 32227
	// DefaultServicePort is the HTTP port advertised when none is configured.
	DefaultServicePort = 6800

	// RequestPayload is the request broadcast by the prober.
	RequestPayload = "alpacadiscovery1"

	currentPrefix = "alpacadiscovery"
	legacyPrefix  = "alpaca discovery"
	loosePrefix   = "alpaca"
)

// RequestKind classifies an incoming discovery datagram.
type RequestKind int

const (
	RequestNone RequestKind = iota
	RequestCurrent
	RequestLegacy
	RequestLoose
)

func (k RequestKind) String() string {
	switch k {
	case RequestCurrent:
		return "current"
	case RequestLegacy:
		return "legacy"
	case RequestLoose:
		return "loose"
	default:
		return "none"
	}
}

// Answered reports whether a request of this kind gets a reply.
func (k RequestKind) Answered() bool {
	return k != RequestNone
}

// MatchRequest classifies payload by its prefix, ignoring case.
func MatchRequest(payload []byte) RequestKind {
	switch {
	case hasPrefixFold(payload, currentPrefix):
		return RequestCurrent
	case hasPrefixFold(payload, legacyPrefix):
		return RequestLegacy
	case hasPrefixFold(payload, loosePrefix):
		return RequestLoose
	default:
		return RequestNone
	}
}

func hasPrefixFold(payload []byte, prefix string) bool {
	return len(payload) >= len(prefix) && bytes.EqualFold(payload[:len(prefix)], []byte(prefix))
}

// BuildResponse returns the reply advertising servicePort.
func BuildResponse(servicePort int) []byte {
	return []byte(fmt.Sprintf(`{"AlpacaPort": %d}`, servicePort))
}

// ParseResponse extracts the service port from a discovery reply.
func ParseResponse(payload []byte) (uint16, error) {
	doc, err := jsonreader.Parse(payload)
	if err != nil {
		return 0, fmt.Errorf("discovery reply: %w", err)
	}
	port, ok := doc.Int("AlpacaPort")
	if !ok {
		return 0, fmt.Errorf("discovery reply without AlpacaPort: %q", strings.TrimSpace(string(payload)))
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("discovery reply port %d out of range", port)
	}
	return uint16(port), nil
}
