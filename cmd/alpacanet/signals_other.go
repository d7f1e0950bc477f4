//go:build !unix

package main

import "os"

var (
	wakeSignal  os.Signal
	resetSignal os.Signal
)

// No control signals outside unix; use the feed's wake and reset routes.
func controlSignals() []os.Signal {
	return nil
}
