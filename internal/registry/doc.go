// Package registry holds the de-duplicated picture of Alpaca units and the
// remote devices they expose.
//
// A Unit is one instrument server, keyed by address and service port. A
// RemoteDevice is one sub-device reported by a unit's configureddevices
// endpoint, keyed by (unit, type, number, name). The Registry is the only
// owner of both collections; every accessor returns copies.
//
// # Staleness
//
// Every discovery cycle is bracketed by BeginCycle and EndCycle:
//
//	reg.BeginCycle()           // every device NotSeenCount++
//	reg.UpsertUnit(...)        // discovery replies mark units as responding
//	reg.RecordPollSuccess(...) // so do successful device-list polls
//	reg.UpsertRemoteDevice(...)
//	res := reg.EndCycle()      // silent units NoResponseCount++, eviction
//
// Units that stay silent for DemoteAfter cycles are only polled on every
// DemoteAfter-th cycle afterwards (see PollEligible). EvictAfter and
// DeviceEvictAfter remove entries entirely; both are disabled when zero.
package registry
