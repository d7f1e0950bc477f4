// Package discovery implements Alpaca UDP discovery for both sides of the
// exchange.
//
// # Protocol
//
// A client broadcasts a short ASCII request to UDP port 32227:
//
//	alpacadiscovery1
//
// Every Alpaca server on the subnet answers the sender with a unicast JSON
// object naming its HTTP service port:
//
//	{"AlpacaPort": 6800}
//
// Servers also accept the legacy request "alpaca discovery" and, for old
// clients, anything starting with "alpaca" (logged as unexpected).
//
// # Listener
//
// Listener answers requests on behalf of this process. The socket is bound
// with SO_REUSEADDR and SO_REUSEPORT so several servers on one host can
// share the discovery port. Replies are rate limited and the listener can
// also advertise the service over mDNS as _alpaca._tcp.
//
// # Prober
//
// Prober is the client side. Each cycle it loads manual endpoints, sends
// the broadcast, folds all replies into the registry, polls every unit for
// its device list and one-time metadata, then sleeps until the next cycle
// or an explicit Wake:
//
//	reg := registry.New(registry.DefaultConfig())
//	p := discovery.NewProber(discovery.DefaultProberConfig(), reg,
//	    discovery.WithLoader(endpoints.NewLoader("", 0)),
//	    discovery.WithResolver(hostnames.NewResolver("")),
//	)
//	go p.Run(ctx)
//	...
//	p.Wake()
//
// Observers registered with WithObserver receive a registry snapshot after
// every cycle.
package discovery
