package model

import (
	"maps"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// TickType identifies a market-data field.
type TickType int

const (
	TickBidSize        TickType = 0
	TickBid            TickType = 1
	TickAsk            TickType = 2
	TickAskSize        TickType = 3
	TickLast           TickType = 4
	TickLastSize       TickType = 5
	TickHigh           TickType = 6
	TickLow            TickType = 7
	TickVolume         TickType = 8
	TickClose          TickType = 9
	TickOpen           TickType = 14
	TickOptionImpVol   TickType = 24
	TickShortable      TickType = 46
	TickLastTimestamp  TickType = 45
	TickHalted         TickType = 49
	TickMarkPrice      TickType = 37
	TickDelayedBid     TickType = 66
	TickDelayedAsk     TickType = 67
	TickDelayedLast    TickType = 68
	TickDelayedBidSize TickType = 69
	TickDelayedAskSize TickType = 70
)

var tickNames = map[TickType]string{
	TickBidSize:        "bidSize",
	TickBid:            "bid",
	TickAsk:            "ask",
	TickAskSize:        "askSize",
	TickLast:           "last",
	TickLastSize:       "lastSize",
	TickHigh:           "high",
	TickLow:            "low",
	TickVolume:         "volume",
	TickClose:          "close",
	TickOpen:           "open",
	TickOptionImpVol:   "optionImpliedVol",
	TickShortable:      "shortable",
	TickLastTimestamp:  "lastTimestamp",
	TickHalted:         "halted",
	TickMarkPrice:      "markPrice",
	TickDelayedBid:     "delayedBid",
	TickDelayedAsk:     "delayedAsk",
	TickDelayedLast:    "delayedLast",
	TickDelayedBidSize: "delayedBidSize",
	TickDelayedAskSize: "delayedAskSize",
}

func (t TickType) String() string {
	if n, ok := tickNames[t]; ok {
		return n
	}
	return "tick" + strconv.Itoa(int(t))
}

// QuoteSnapshot is the sparse per-subscription market-data record. Fields
// are grouped by category; a field that was never set, or was last reported
// with the wire sentinel, is absent.
type QuoteSnapshot struct {
	ReqID     int64
	Prices    map[TickType]float64
	Sizes     map[TickType]decimal.Decimal
	Strings   map[TickType]string
	Generics  map[TickType]float64
	UpdatedAt time.Time
}

// NewQuoteSnapshot returns an empty snapshot for a subscription.
func NewQuoteSnapshot(reqID int64) *QuoteSnapshot {
	return &QuoteSnapshot{
		ReqID:    reqID,
		Prices:   make(map[TickType]float64),
		Sizes:    make(map[TickType]decimal.Decimal),
		Strings:  make(map[TickType]string),
		Generics: make(map[TickType]float64),
	}
}

// SetPrice records a price field. The UnsetDouble sentinel clears it.
func (q *QuoteSnapshot) SetPrice(t TickType, v float64) {
	if v == UnsetDouble {
		delete(q.Prices, t)
		return
	}
	q.Prices[t] = v
}

// SetSize records a size field. The UnsetDecimal sentinel clears it.
func (q *QuoteSnapshot) SetSize(t TickType, v decimal.Decimal) {
	if IsUnsetDecimal(v) {
		delete(q.Sizes, t)
		return
	}
	q.Sizes[t] = v
}

// SetString records a string field. An empty value clears it.
func (q *QuoteSnapshot) SetString(t TickType, v string) {
	if v == "" {
		delete(q.Strings, t)
		return
	}
	q.Strings[t] = v
}

// SetGeneric records a generic field. The UnsetDouble sentinel clears it.
func (q *QuoteSnapshot) SetGeneric(t TickType, v float64) {
	if v == UnsetDouble {
		delete(q.Generics, t)
		return
	}
	q.Generics[t] = v
}

func (q QuoteSnapshot) Price(t TickType) (float64, bool) {
	v, ok := q.Prices[t]
	return v, ok
}

func (q QuoteSnapshot) Size(t TickType) (decimal.Decimal, bool) {
	v, ok := q.Sizes[t]
	return v, ok
}

func (q QuoteSnapshot) Text(t TickType) (string, bool) {
	v, ok := q.Strings[t]
	return v, ok
}

func (q QuoteSnapshot) Generic(t TickType) (float64, bool) {
	v, ok := q.Generics[t]
	return v, ok
}

// Clone returns a deep copy.
func (q *QuoteSnapshot) Clone() QuoteSnapshot {
	return QuoteSnapshot{
		ReqID:     q.ReqID,
		Prices:    maps.Clone(q.Prices),
		Sizes:     maps.Clone(q.Sizes),
		Strings:   maps.Clone(q.Strings),
		Generics:  maps.Clone(q.Generics),
		UpdatedAt: q.UpdatedAt,
	}
}
