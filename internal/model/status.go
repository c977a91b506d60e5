package model

import (
	"cmp"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderState is the order status string reported by the terminal.
type OrderState string

const (
	StateApiPending    OrderState = "ApiPending"
	StatePendingSubmit OrderState = "PendingSubmit"
	StatePendingCancel OrderState = "PendingCancel"
	StatePreSubmitted  OrderState = "PreSubmitted"
	StateSubmitted     OrderState = "Submitted"
	StateApiCancelled  OrderState = "ApiCancelled"
	StateCancelled     OrderState = "Cancelled"
	StateFilled        OrderState = "Filled"
	StateInactive      OrderState = "Inactive"
)

// stateRank orders states by lifecycle progression. Unknown states rank
// below every known one.
var stateRank = map[OrderState]int{
	StateApiPending:    1,
	StatePendingSubmit: 2,
	StatePreSubmitted:  3,
	StateSubmitted:     4,
	StatePendingCancel: 5,
	StateApiCancelled:  6,
	StateCancelled:     7,
	StateInactive:      8,
	StateFilled:        9,
}

// Rank returns the lifecycle position of the state.
func (s OrderState) Rank() int {
	return stateRank[s]
}

// Terminal reports whether no further status changes are expected.
func (s OrderState) Terminal() bool {
	switch s {
	case StateFilled, StateCancelled, StateApiCancelled, StateInactive:
		return true
	}
	return false
}

// Cancelled reports whether the state is one of the cancelled states.
func (s OrderState) Cancelled() bool {
	return s == StateCancelled || s == StateApiCancelled
}

// OrderStatus is one status update for an order.
type OrderStatus struct {
	OrderID       int64           `json:"order_id"`
	Status        OrderState      `json:"status"`
	Filled        decimal.Decimal `json:"filled"`
	Remaining     decimal.Decimal `json:"remaining"`
	AvgFillPrice  float64         `json:"avg_fill_price"`
	PermID        int64           `json:"perm_id"`
	ParentID      int64           `json:"parent_id"`
	LastFillPrice float64         `json:"last_fill_price"`
	ClientID      int64           `json:"client_id"`
	WhyHeld       string          `json:"why_held,omitempty"`
	MktCapPrice   float64         `json:"mkt_cap_price"`
}

// CompareStatus orders two status updates by how far the order has
// progressed: filled quantity ascending, remaining quantity descending,
// lifecycle rank, average fill price, last fill price, then every remaining
// field. It returns 0 only for identical updates, so it can back a set.
func CompareStatus(a, b OrderStatus) int {
	if c := a.Filled.Cmp(b.Filled); c != 0 {
		return c
	}
	if c := b.Remaining.Cmp(a.Remaining); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Status.Rank(), b.Status.Rank()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.AvgFillPrice, b.AvgFillPrice); c != 0 {
		return c
	}
	if c := cmp.Compare(a.LastFillPrice, b.LastFillPrice); c != 0 {
		return c
	}
	if c := strings.Compare(string(a.Status), string(b.Status)); c != 0 {
		return c
	}
	if c := cmp.Compare(a.OrderID, b.OrderID); c != 0 {
		return c
	}
	if c := cmp.Compare(a.PermID, b.PermID); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ParentID, b.ParentID); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ClientID, b.ClientID); c != 0 {
		return c
	}
	if c := cmp.Compare(a.MktCapPrice, b.MktCapPrice); c != 0 {
		return c
	}
	return strings.Compare(a.WhyHeld, b.WhyHeld)
}

// StatusLess is CompareStatus as a less function.
func StatusLess(a, b OrderStatus) bool {
	return CompareStatus(a, b) < 0
}
