// Package camera defines the boundary to a physical camera: an opaque,
// already-authenticated connection object with media-subscribe and control
// operations, plus a scheme registry for pluggable wire codecs.
//
// The session core owns connections exclusively through this interface.
// Nothing here speaks the camera's byte-level protocol; that lives in the
// codec implementations (see the tcpcam subpackage for the built-in one).
package camera

import (
	"context"
	"fmt"
)

// IRMode selects the infrared light behavior.
type IRMode uint8

const (
	IROff IRMode = iota
	IROn
	IRAuto
)

func (m IRMode) String() string {
	switch m {
	case IROff:
		return "off"
	case IROn:
		return "on"
	case IRAuto:
		return "auto"
	default:
		return fmt.Sprintf("ir(%d)", uint8(m))
	}
}

// ParseIRMode converts an IR mode name to its IRMode value.
func ParseIRMode(s string) (IRMode, error) {
	switch s {
	case "off":
		return IROff, nil
	case "on":
		return IROn, nil
	case "auto":
		return IRAuto, nil
	default:
		return 0, fmt.Errorf("unknown ir mode %q", s)
	}
}

// Conn is one live connection to a camera. Implementations own all protocol
// state; callers interact only through these operations.
//
// A Conn signals its own death by closing Done. After Done is closed, Err
// reports why. Close releases resources and is safe to call more than once.
type Conn interface {
	// Subscribe opens the upstream media feed for one track. The returned
	// channel is closed when the subscription or the connection ends.
	// Subscribing a track the camera cannot serve returns an error.
	Subscribe(ctx context.Context, track Track) (<-chan Frame, error)

	// SetStatusLED toggles the camera's status indicator.
	SetStatusLED(ctx context.Context, on bool) error

	// SetIRLights sets the infrared light mode.
	SetIRLights(ctx context.Context, mode IRMode) error

	// Reboot asks the camera to reboot. The connection will usually die
	// shortly after; the lifecycle worker handles the reconnect.
	Reboot(ctx context.Context) error

	// Done is closed when the connection has failed or been closed.
	Done() <-chan struct{}

	// Err reports why the connection died, once Done is closed.
	Err() error

	// Close tears the connection down.
	Close() error
}

// Ref is a non-owning, observable reference to the current connection.
// The zero Ref means "no connection". Generation increases with every new
// connection, letting observers detect reconnects.
type Ref struct {
	Conn       Conn
	Generation uint64
}

// Live reports whether the reference points at a connection.
func (r Ref) Live() bool { return r.Conn != nil }
