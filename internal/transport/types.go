package transport

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rickgao/tws-session/internal/event"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrAlreadyOpen     = errors.New("already open")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrUnknownEvent    = errors.New("unknown event type")
)

// Transport is what the session needs from a connection to the terminal.
type Transport interface {
	// Open connects to addr. It returns once the connection is usable.
	Open(ctx context.Context, addr string) error

	// Close closes the connection. Safe to call when not open.
	Close() error

	// IsOpen reports whether a connection is up.
	IsOpen() bool

	// Send writes one outbound request.
	Send(ctx context.Context, req Request) error

	// SetHandler installs the consumer of inbound events. Call before Open.
	SetHandler(h event.Handler)
}

// Request is an outbound message.
type Request struct {
	Type    string
	ID      int64
	Payload any
}

// Outbound request types.
const (
	ReqStartAPI        = "start_api"
	ReqPlaceOrder      = "place_order"
	ReqCancelOrder     = "cancel_order"
	ReqOpenOrders      = "req_open_orders"
	ReqPositions       = "req_positions"
	ReqCancelPositions = "cancel_positions"
	ReqAccountUpdates  = "req_account_updates"
	ReqMktData         = "req_mkt_data"
	ReqCancelMktData   = "cancel_mkt_data"
	ReqMktDepth        = "req_mkt_depth"
	ReqCancelMktDepth  = "cancel_mkt_depth"
	ReqContractDetails = "req_contract_details"
	ReqExecutions      = "req_executions"
	ReqCurrentTime     = "req_current_time"
	ReqIDs             = "req_ids"
)

// envelope is the frame for both directions.
type envelope struct {
	Type string          `json:"type"`
	ID   int64           `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ClientConfig configures a websocket Client.
type ClientConfig struct {
	ClientID          int64         // Sent in the start_api hello
	HandshakeTimeout  time.Duration // Dial timeout
	PingInterval      time.Duration // How often to ping the terminal
	PingTimeout       time.Duration // Max time without ping/pong before the connection is stale
	WriteTimeout      time.Duration // Write deadline for sends
	MaxRequestsPerSec float64       // Outbound pacing; 0 disables
	Burst             int           // Outbound burst allowance
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout:  10 * time.Second,
		PingInterval:      30 * time.Second,
		PingTimeout:       60 * time.Second,
		WriteTimeout:      5 * time.Second,
		MaxRequestsPerSec: 50, // terminal limit on inbound API messages
		Burst:             10,
	}
}
