// Package feed serves the registry over HTTP.
//
// Routes:
//
//	GET  /api/units             registry units, sorted by address
//	GET  /api/units/{addr}      one unit, addressed as ip:port
//	GET  /api/devices           remote devices
//	GET  /api/history/units     units from the sighting history (when enabled)
//	GET  /api/history/devices   devices from the sighting history (when enabled)
//	POST /api/wake              start a discovery cycle now
//	POST /api/reset             clear the registry and re-arm manual endpoints
//	GET  /api/ws                websocket stream of snapshots
//
// A websocket client receives the current snapshot on connect and a new
// one after every completed cycle. Slow clients only ever see the latest
// snapshot; intermediate ones are dropped.
package feed
