package discovery

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startListener(t *testing.T, cfg ListenerConfig) *Listener {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	l := NewListener(cfg)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, l.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	select {
	case <-l.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not bind")
	}
	return l
}

func exchange(t *testing.T, to net.Addr, payload string) (string, bool) {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	port := to.(*net.UDPAddr).Port
	_, err = conn.WriteTo([]byte(payload), &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(500*time.Millisecond)))
	buf := make([]byte, 256)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		return "", false
	}
	return string(buf[:n]), true
}

func TestListenerRoundTrip(t *testing.T) {
	l := startListener(t, ListenerConfig{Port: 0, ServicePort: 6801})

	for _, payload := range []string{"alpacadiscovery1", "ALPACADISCOVERY1", "AlpacaDiscovery1", "alpaca discovery"} {
		t.Run(payload, func(t *testing.T) {
			reply, ok := exchange(t, l.Addr(), payload)
			require.True(t, ok, "no reply")
			assert.Equal(t, `{"AlpacaPort": 6801}`, reply)
		})
	}
	assert.Equal(t, uint64(4), l.Stats().Answered)
}

func TestListenerIgnoresUnknown(t *testing.T) {
	l := startListener(t, ListenerConfig{Port: 0, ServicePort: 6800})

	_, ok := exchange(t, l.Addr(), "alpac")
	assert.False(t, ok)

	reply, ok := exchange(t, l.Addr(), "alpacaXYZ")
	require.True(t, ok)
	assert.Equal(t, `{"AlpacaPort": 6800}`, reply)

	stats := l.Stats()
	assert.Equal(t, uint64(1), stats.Ignored)
	assert.Equal(t, uint64(1), stats.Unexpected)
}

func TestListenerRateLimit(t *testing.T) {
	l := startListener(t, ListenerConfig{Port: 0, RateLimit: 0.001, Burst: 1})

	_, ok := exchange(t, l.Addr(), RequestPayload)
	assert.True(t, ok)
	_, ok = exchange(t, l.Addr(), RequestPayload)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), l.Stats().Limited)
}

func TestListenerDefaultAnswersEveryRequest(t *testing.T) {
	cfg := DefaultListenerConfig()
	cfg.Port = 0
	l := startListener(t, cfg)

	const requests = 150
	for i := 0; i < requests; i++ {
		_, ok := exchange(t, l.Addr(), RequestPayload)
		require.True(t, ok, "request %d not answered", i)
	}
	stats := l.Stats()
	assert.Equal(t, uint64(requests), stats.Answered)
	assert.Zero(t, stats.Limited)
}

func TestListenerSharedPort(t *testing.T) {
	first := startListener(t, ListenerConfig{Port: 0, ServicePort: 6800})
	port := first.Addr().(*net.UDPAddr).Port

	second := startListener(t, ListenerConfig{Port: port, ServicePort: 6900})
	assert.Equal(t, port, second.Addr().(*net.UDPAddr).Port)
}

func TestListenerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := NewListener(ListenerConfig{Port: 0})
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	<-l.Ready()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestListenerBindFailure(t *testing.T) {
	l := NewListener(ListenerConfig{Port: 0, BindAddr: "192.0.2.250"})
	err := l.Run(context.Background())
	assert.Error(t, err)
}
