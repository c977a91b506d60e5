package model

import "github.com/shopspring/decimal"

// DepthOp is the mutation carried by a market-depth update.
type DepthOp int

const (
	DepthInsert DepthOp = 0
	DepthUpdate DepthOp = 1
	DepthRemove DepthOp = 2
)

func (o DepthOp) String() string {
	switch o {
	case DepthInsert:
		return "insert"
	case DepthUpdate:
		return "update"
	case DepthRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Side is the book side of a depth level.
type Side int

const (
	SideAsk Side = 0
	SideBid Side = 1
)

func (s Side) String() string {
	if s == SideBid {
		return "bid"
	}
	return "ask"
}

// DepthLevel is one row of an order book, addressed by its position
// (rank) on its side.
type DepthLevel struct {
	Position    int             `json:"position"`
	Side        Side            `json:"side"`
	Price       float64         `json:"price"`
	Size        decimal.Decimal `json:"size"`
	MarketMaker string          `json:"market_maker,omitempty"`
}

// OrderBook is a point-in-time copy of an instrument's levels, each side
// ordered by position.
type OrderBook struct {
	Instrument int64
	Bids       []DepthLevel
	Asks       []DepthLevel
}
