//go:build unix

package main

import (
	"os"
	"syscall"
)

// SIGUSR1 wakes the prober; SIGHUP resets the registry.
var (
	wakeSignal  os.Signal = syscall.SIGUSR1
	resetSignal os.Signal = syscall.SIGHUP
)

func controlSignals() []os.Signal {
	return []os.Signal{wakeSignal, resetSignal}
}
