// Package event defines the inbound events a transport delivers to the
// session. Each event is a plain value; consumers switch on the concrete
// type.
package event

import (
	"github.com/shopspring/decimal"

	"github.com/rickgao/tws-session/internal/model"
)

// Event is an inbound event.
type Event interface {
	// Name is the wire name of the event type.
	Name() string
	isEvent()
}

// Handler consumes events. A transport calls it from its read goroutine and
// does not read the next frame until it returns.
type Handler func(Event)

// -----------------------------------------------------------------------------
// Session
// -----------------------------------------------------------------------------

// NextValidID announces the next order id the terminal will accept.
type NextValidID struct {
	OrderID int64 `json:"order_id"`
}

// ManagedAccounts lists the accounts reachable through the session.
type ManagedAccounts struct {
	Accounts []string `json:"accounts"`
}

// CurrentTime is the terminal clock in Unix seconds.
type CurrentTime struct {
	Time int64 `json:"time"`
}

// Error is a fault notification. ID is -1 when the fault is not tied to an
// operation.
type Error struct {
	ID      int64  `json:"id"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ConnectionClosed reports that the transport lost its connection. It is
// never sent for a close the session asked for.
type ConnectionClosed struct {
	Err error `json:"-"`
}

// -----------------------------------------------------------------------------
// Orders
// -----------------------------------------------------------------------------

// OpenOrder carries an order description.
type OpenOrder struct {
	model.OpenOrder
}

// OrderStatus carries one status update.
type OrderStatus struct {
	model.OrderStatus
}

// OpenOrderEnd ends an open-orders listing.
type OpenOrderEnd struct{}

// Execution is one fill reported for an executions request.
type Execution struct {
	ReqID     int64           `json:"req_id"`
	Execution model.Execution `json:"execution"`
}

// ExecutionEnd ends an executions listing.
type ExecutionEnd struct {
	ReqID int64 `json:"req_id"`
}

// -----------------------------------------------------------------------------
// Account
// -----------------------------------------------------------------------------

// Position is one position row.
type Position struct {
	model.Position
}

// PositionEnd marks the end of the initial positions snapshot.
type PositionEnd struct{}

// Portfolio is one portfolio row from account updates.
type Portfolio struct {
	model.PortfolioItem
}

// AccountDownloadEnd marks the end of the initial account snapshot.
type AccountDownloadEnd struct {
	Account string `json:"account"`
}

// -----------------------------------------------------------------------------
// Market data
// -----------------------------------------------------------------------------

// TickPrice updates a price field.
type TickPrice struct {
	ReqID int64          `json:"req_id"`
	Field model.TickType `json:"field"`
	Price float64        `json:"price"`
}

// TickSize updates a size field.
type TickSize struct {
	ReqID int64           `json:"req_id"`
	Field model.TickType  `json:"field"`
	Size  decimal.Decimal `json:"size"`
}

// TickString updates a string field.
type TickString struct {
	ReqID int64          `json:"req_id"`
	Field model.TickType `json:"field"`
	Value string         `json:"value"`
}

// TickGeneric updates a generic numeric field.
type TickGeneric struct {
	ReqID int64          `json:"req_id"`
	Field model.TickType `json:"field"`
	Value float64        `json:"value"`
}

// TickSnapshotEnd ends a one-shot market-data snapshot.
type TickSnapshotEnd struct {
	ReqID int64 `json:"req_id"`
}

// MarketDepth is one order-book mutation.
type MarketDepth struct {
	ReqID int64            `json:"req_id"`
	Op    model.DepthOp    `json:"op"`
	Level model.DepthLevel `json:"level"`
}

// ContractDetails is one contract-details row.
type ContractDetails struct {
	ReqID   int64                 `json:"req_id"`
	Details model.ContractDetails `json:"details"`
}

// ContractDetailsEnd ends a contract-details listing.
type ContractDetailsEnd struct {
	ReqID int64 `json:"req_id"`
}

func (NextValidID) Name() string        { return "next_valid_id" }
func (ManagedAccounts) Name() string    { return "managed_accounts" }
func (CurrentTime) Name() string        { return "current_time" }
func (Error) Name() string              { return "error" }
func (ConnectionClosed) Name() string   { return "connection_closed" }
func (OpenOrder) Name() string          { return "open_order" }
func (OrderStatus) Name() string        { return "order_status" }
func (OpenOrderEnd) Name() string       { return "open_order_end" }
func (Execution) Name() string          { return "execution" }
func (ExecutionEnd) Name() string       { return "execution_end" }
func (Position) Name() string           { return "position" }
func (PositionEnd) Name() string        { return "position_end" }
func (Portfolio) Name() string          { return "portfolio" }
func (AccountDownloadEnd) Name() string { return "account_download_end" }
func (TickPrice) Name() string          { return "tick_price" }
func (TickSize) Name() string           { return "tick_size" }
func (TickString) Name() string         { return "tick_string" }
func (TickGeneric) Name() string        { return "tick_generic" }
func (TickSnapshotEnd) Name() string    { return "tick_snapshot_end" }
func (MarketDepth) Name() string        { return "market_depth" }
func (ContractDetails) Name() string    { return "contract_details" }
func (ContractDetailsEnd) Name() string { return "contract_details_end" }

func (NextValidID) isEvent()        {}
func (ManagedAccounts) isEvent()    {}
func (CurrentTime) isEvent()        {}
func (Error) isEvent()              {}
func (ConnectionClosed) isEvent()   {}
func (OpenOrder) isEvent()          {}
func (OrderStatus) isEvent()        {}
func (OpenOrderEnd) isEvent()       {}
func (Execution) isEvent()          {}
func (ExecutionEnd) isEvent()       {}
func (Position) isEvent()           {}
func (PositionEnd) isEvent()        {}
func (Portfolio) isEvent()          {}
func (AccountDownloadEnd) isEvent() {}
func (TickPrice) isEvent()          {}
func (TickSize) isEvent()           {}
func (TickString) isEvent()         {}
func (TickGeneric) isEvent()        {}
func (TickSnapshotEnd) isEvent()    {}
func (MarketDepth) isEvent()        {}
func (ContractDetails) isEvent()    {}
func (ContractDetailsEnd) isEvent() {}
