package model

import (
	"math"

	"github.com/shopspring/decimal"
)

// Sentinels the terminal uses for "field not set".
const (
	UnsetDouble  = math.MaxFloat64
	UnsetInteger = math.MaxInt32
	UnsetLong    = math.MaxInt64
)

// UnsetDecimal is the decimal sentinel for sizes and quantities.
var UnsetDecimal = decimal.NewFromInt(UnsetLong)

// IsUnsetDecimal reports whether d is the "not set" sentinel.
func IsUnsetDecimal(d decimal.Decimal) bool {
	return d.Equal(UnsetDecimal)
}

// -----------------------------------------------------------------------------
// Instruments
// -----------------------------------------------------------------------------

// Contract identifies a tradeable instrument.
type Contract struct {
	ConID           int64   `json:"con_id"`
	Symbol          string  `json:"symbol"`
	SecType         string  `json:"sec_type"` // STK, OPT, FUT, CASH, ...
	Exchange        string  `json:"exchange"`
	PrimaryExchange string  `json:"primary_exchange,omitempty"`
	Currency        string  `json:"currency"`
	LocalSymbol     string  `json:"local_symbol,omitempty"`
	LastTradeDate   string  `json:"last_trade_date,omitempty"`
	Strike          float64 `json:"strike,omitempty"`
	Right           string  `json:"right,omitempty"`
	Multiplier      string  `json:"multiplier,omitempty"`
}

// ContractDetails is one row of a contract-details response.
type ContractDetails struct {
	Contract     Contract `json:"contract"`
	MarketName   string   `json:"market_name"`
	LongName     string   `json:"long_name"`
	MinTick      float64  `json:"min_tick"`
	OrderTypes   string   `json:"order_types,omitempty"`
	ValidExch    string   `json:"valid_exchanges,omitempty"`
	TimeZoneID   string   `json:"time_zone_id,omitempty"`
	TradingHours string   `json:"trading_hours,omitempty"`
	LiquidHours  string   `json:"liquid_hours,omitempty"`
}

// -----------------------------------------------------------------------------
// Orders
// -----------------------------------------------------------------------------

// Order is the structural description of an order.
type Order struct {
	OrderID       int64           `json:"order_id"`
	ClientID      int64           `json:"client_id"`
	PermID        int64           `json:"perm_id,omitempty"`
	ParentID      int64           `json:"parent_id,omitempty"`
	Account       string          `json:"account,omitempty"`
	Action        string          `json:"action"`     // BUY or SELL
	OrderType     string          `json:"order_type"` // LMT, MKT, STP, ...
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	LmtPrice      float64         `json:"lmt_price,omitempty"`
	AuxPrice      float64         `json:"aux_price,omitempty"`
	TIF           string          `json:"tif,omitempty"`
	Transmit      bool            `json:"transmit"`
}

// OrderInfo carries the terminal's view of an open order beyond its status.
type OrderInfo struct {
	State       OrderState `json:"status"`
	Commission  float64    `json:"commission,omitempty"`
	WarningText string     `json:"warning_text,omitempty"`
}

// OpenOrder is an order description as reported by the terminal.
type OpenOrder struct {
	Contract Contract  `json:"contract"`
	Order    Order     `json:"order"`
	Info     OrderInfo `json:"info"`
}

// TrackedOrder is the cached state of one order: its latest description and
// every distinct status update seen for it, ordered least to most advanced.
type TrackedOrder struct {
	OpenOrder
	Statuses []OrderStatus
}

// LastStatus returns the most advanced status, if any.
func (t TrackedOrder) LastStatus() (OrderStatus, bool) {
	if len(t.Statuses) == 0 {
		return OrderStatus{}, false
	}
	return t.Statuses[len(t.Statuses)-1], true
}

// Done reports whether the order has reached a terminal state.
func (t TrackedOrder) Done() bool {
	s, ok := t.LastStatus()
	return ok && s.Status.Terminal()
}

// Execution is a single fill.
type Execution struct {
	ExecID   string          `json:"exec_id"`
	OrderID  int64           `json:"order_id"`
	PermID   int64           `json:"perm_id,omitempty"`
	Contract Contract        `json:"contract"`
	Account  string          `json:"account"`
	Exchange string          `json:"exchange"`
	Side     string          `json:"side"` // BOT or SLD
	Shares   decimal.Decimal `json:"shares"`
	Price    float64         `json:"price"`
	CumQty   decimal.Decimal `json:"cum_qty"`
	AvgPrice float64         `json:"avg_price"`
	Time     string          `json:"time"`
}

// ExecutionFilter narrows an executions request.
type ExecutionFilter struct {
	ClientID int64  `json:"client_id,omitempty"`
	Account  string `json:"account,omitempty"`
	Symbol   string `json:"symbol,omitempty"`
	SecType  string `json:"sec_type,omitempty"`
	Side     string `json:"side,omitempty"`
	Time     string `json:"time,omitempty"`
}

// -----------------------------------------------------------------------------
// Account
// -----------------------------------------------------------------------------

// Position is one (account, contract) holding. A value with SnapshotEnd set
// marks the end of the initial snapshot on a positions stream and is never
// cached.
type Position struct {
	Account     string          `json:"account"`
	Contract    Contract        `json:"contract"`
	Quantity    decimal.Decimal `json:"quantity"`
	AvgCost     float64         `json:"avg_cost"`
	SnapshotEnd bool            `json:"-"`
}

// PortfolioItem is one portfolio row from an account-updates stream.
// SnapshotEnd has the same meaning as on Position.
type PortfolioItem struct {
	Account       string          `json:"account"`
	Contract      Contract        `json:"contract"`
	Position      decimal.Decimal `json:"position"`
	MarketPrice   float64         `json:"market_price"`
	MarketValue   float64         `json:"market_value"`
	AverageCost   float64         `json:"average_cost"`
	UnrealizedPNL float64         `json:"unrealized_pnl"`
	RealizedPNL   float64         `json:"realized_pnl"`
	SnapshotEnd   bool            `json:"-"`
}
