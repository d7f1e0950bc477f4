package poller

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

// Kind is the category of a poll failure.
type Kind int

const (
	// KindNetwork is any transport failure not covered below.
	KindNetwork Kind = iota
	// KindRefused means nothing listens on the unit's service port.
	KindRefused
	// KindTimeout means connect, write or read exceeded the deadline.
	KindTimeout
	// KindUnreachable means the host or network could not be reached.
	KindUnreachable
	// KindParse means the response held no usable JSON.
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network error"
	case KindRefused:
		return "connection refused"
	case KindTimeout:
		return "timeout"
	case KindUnreachable:
		return "unreachable"
	case KindParse:
		return "parse error"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// PollError describes a failed poll of one unit endpoint.
type PollError struct {
	Kind Kind
	Addr string
	Path string
	Err  error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll %s%s: %s: %v", e.Addr, e.Path, e.Kind, e.Err)
}

func (e *PollError) Unwrap() error {
	return e.Err
}

// Classify maps a transport error to a Kind.
func Classify(err error) Kind {
	if os.IsTimeout(err) {
		return KindTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			return KindRefused
		case errors.Is(opErr.Err, syscall.EHOSTUNREACH), errors.Is(opErr.Err, syscall.ENETUNREACH):
			return KindUnreachable
		}
	}
	return KindNetwork
}

// KindOf returns the Kind of a PollError, and false for other errors.
func KindOf(err error) (Kind, bool) {
	var pe *PollError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}
