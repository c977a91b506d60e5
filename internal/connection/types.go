package connection

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrCloseTimeout  = errors.New("close timeout")
	ErrAlreadyClosed = errors.New("already closed")

	ErrHandshakeTimeout = errors.New("handshake not confirmed in time")
)

// Status is the session status.
type Status int32

const (
	Disconnected Status = iota
	Connecting
	Connected
	Disconnecting
	ReconnectWaiting
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	case ReconnectWaiting:
		return "reconnect_waiting"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// Change is published when the session becomes connected or stops being
// connected. Reconnect is true when the change is part of a reconnect: a
// drop that will be followed by a reopen, or the confirmation that ends
// one. A Change with Connected false and Reconnect false means the session
// is over; it is also published when a pending reconnect is abandoned.
type Change struct {
	Connected bool
	Reconnect bool
}

// Opener is the transport as seen by the monitor. Close must be safe to
// call when nothing is open.
type Opener interface {
	Open(ctx context.Context, addr string) error
	Close() error
}

// Config configures the monitor.
type Config struct {
	Addr            string        // Terminal address handed to Opener.Open
	PreConnectDelay time.Duration // Wait before every open
	ConfirmDelay    time.Duration // Wait between handshake and Connected
	ReconnectDelay  time.Duration // Fixed wait between reconnect attempts
	ConfirmTimeout  time.Duration // Max wait for the handshake after open; 0 waits forever
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PreConnectDelay: 100 * time.Millisecond,
		ConfirmDelay:    500 * time.Millisecond,
		ReconnectDelay:  5 * time.Second,
		ConfirmTimeout:  10 * time.Second,
	}
}

type command int32

const (
	cmdNone command = iota
	cmdConnect
	cmdConfirm
	cmdReconnect
	cmdDisconnect
)

func (c command) String() string {
	switch c {
	case cmdConnect:
		return "connect"
	case cmdConfirm:
		return "confirm"
	case cmdReconnect:
		return "reconnect"
	case cmdDisconnect:
		return "disconnect"
	default:
		return "none"
	}
}
