// Package ident issues request identifiers and tracks the order-id
// sequence assigned by the terminal.
//
// Request ids are local: strictly increasing from a configured start and
// never reused for the life of a Generator. Order ids belong to the
// terminal, which announces the next valid id after every connect; the
// generator hands out ids from that baseline and treats a decrease as a
// server-side reset.
package ident

import (
	"errors"
	"sync/atomic"
)

// ErrNoOrderID is returned when no order-id baseline has been announced yet.
var ErrNoOrderID = errors.New("order id sequence not initialized")

// unknown marks an order-id sequence that has never been observed.
const unknown = -1

// Generator is safe for concurrent use.
type Generator struct {
	requestID atomic.Int64
	orderID   atomic.Int64 // next order id to hand out, or unknown
}

// NewGenerator returns a Generator whose first request id is start.
func NewGenerator(start int64) *Generator {
	g := &Generator{}
	g.requestID.Store(start - 1)
	g.orderID.Store(unknown)
	return g
}

// NextRequestID returns the next request id.
func (g *Generator) NextRequestID() int64 {
	return g.requestID.Add(1)
}

// NextOrderID reserves the next order id.
func (g *Generator) NextOrderID() (int64, error) {
	for {
		cur := g.orderID.Load()
		if cur == unknown {
			return 0, ErrNoOrderID
		}
		if g.orderID.CompareAndSwap(cur, cur+1) {
			return cur, nil
		}
	}
}

// PeekOrderID returns the next order id without reserving it.
func (g *Generator) PeekOrderID() (int64, bool) {
	cur := g.orderID.Load()
	return cur, cur != unknown
}

// ObserveServerNextID records a next-valid-id announcement. The local
// sequence only moves forward, except when the announced id is below it,
// which means the terminal reset its sequence: the baseline is replaced
// and reset is true.
func (g *Generator) ObserveServerNextID(next int64) (reset bool) {
	for {
		cur := g.orderID.Load()
		switch {
		case cur == unknown || next > cur:
			if g.orderID.CompareAndSwap(cur, next) {
				return false
			}
		case next == cur:
			return false
		default:
			if g.orderID.CompareAndSwap(cur, next) {
				return true
			}
		}
	}
}
