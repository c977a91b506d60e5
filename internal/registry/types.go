package registry

import (
	"errors"
	"fmt"
)

// Errors
var (
	ErrNotConnected       = errors.New("not connected")
	ErrDuplicateOperation = errors.New("duplicate operation")
	ErrUnknownOperation   = errors.New("unknown operation")
	ErrUnknownKind        = errors.New("unknown operation kind")
	ErrNoSideEffect       = errors.New("register side effect is required")
	ErrTimeout            = errors.New("operation timeout")
	ErrCancelled          = errors.New("operation cancelled")
	ErrConnectionLost     = errors.New("connection lost")
	ErrNoResult           = errors.New("operation completed without a result")
)

// Kind is an operation kind.
type Kind int

const (
	KindPlaceOrder Kind = iota + 1
	KindCancelOrder
	KindOpenOrders
	KindPositions
	KindAccountUpdates
	KindMarketData
	KindMarketDepth
	KindContractDetails
	KindExecutions
	KindCurrentTime
	KindNextValidID
)

type kindInfo struct {
	name string

	// perInstance kinds are keyed by id; the others are singletons.
	perInstance bool

	// resubscribe kinds are re-armed after a reconnect.
	resubscribe bool

	// persistent kinds outlive a dropped connection without being re-armed;
	// the terminal keeps delivering their events on the next connection.
	persistent bool
}

var kinds = map[Kind]kindInfo{
	KindPlaceOrder:      {name: "place_order", perInstance: true, persistent: true},
	KindCancelOrder:     {name: "cancel_order", perInstance: true},
	KindOpenOrders:      {name: "open_orders"},
	KindPositions:       {name: "positions", resubscribe: true},
	KindAccountUpdates:  {name: "account_updates", resubscribe: true},
	KindMarketData:      {name: "market_data", perInstance: true, resubscribe: true},
	KindMarketDepth:     {name: "market_depth", perInstance: true, resubscribe: true},
	KindContractDetails: {name: "contract_details", perInstance: true},
	KindExecutions:      {name: "executions", perInstance: true},
	KindCurrentTime:     {name: "current_time"},
	KindNextValidID:     {name: "next_valid_id"},
}

func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// PerInstance reports whether operations of this kind carry an id.
func (k Kind) PerInstance() bool { return kinds[k].perInstance }

// Resubscribable reports whether operations of this kind are re-armed
// after a reconnect.
func (k Kind) Resubscribable() bool { return kinds[k].resubscribe }

// SurvivesReconnect reports whether operations of this kind stay live when
// the connection drops. All other kinds fail with ErrConnectionLost.
func (k Kind) SurvivesReconnect() bool {
	info := kinds[k]
	return info.resubscribe || info.persistent
}

func (k Kind) valid() bool {
	_, ok := kinds[k]
	return ok
}

// Key identifies an operation. Singleton kinds never carry an id.
type Key struct {
	Kind  Kind
	ID    int64
	HasID bool
}

// NewKey returns the canonical key for kind and id. The id is dropped for
// singleton kinds.
func NewKey(kind Kind, id int64) Key {
	if !kind.PerInstance() {
		return Key{Kind: kind}
	}
	return Key{Kind: kind, ID: id, HasID: true}
}

// Matches reports whether two keys address the same operation: the kinds
// are equal and either the ids are equal or one side has no id.
func (k Key) Matches(other Key) bool {
	if k.Kind != other.Kind {
		return false
	}
	return !k.HasID || !other.HasID || k.ID == other.ID
}

func (k Key) String() string {
	if !k.HasID {
		return k.Kind.String()
	}
	return fmt.Sprintf("%s#%d", k.Kind, k.ID)
}

// SideEffect issues a register or unregister request for the operation id.
// Singleton operations receive id 0.
type SideEffect func(id int64) error

// StatusSource reports whether the session can accept new operations.
type StatusSource interface {
	IsConnected() bool
}

// IDSource allocates ids for per-instance operations.
type IDSource interface {
	NextRequestID() int64
}

// Observer receives operation lifecycle counts. Implementations must not
// block.
type Observer interface {
	OperationAdded(kind string)
	OperationRemoved(kind string)
	UnknownEvent(kind string)
}
