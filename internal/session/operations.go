package session

import (
	"fmt"
	"time"

	"github.com/rickgao/tws-session/internal/model"
	"github.com/rickgao/tws-session/internal/registry"
	"github.com/rickgao/tws-session/internal/transport"
)

// Request payloads.
type (
	placeOrderRequest struct {
		Contract model.Contract `json:"contract"`
		Order    model.Order    `json:"order"`
	}

	accountUpdatesRequest struct {
		Subscribe bool   `json:"subscribe"`
		Account   string `json:"account"`
	}

	mktDataRequest struct {
		Contract     model.Contract `json:"contract"`
		GenericTicks string         `json:"generic_ticks,omitempty"`
		Snapshot     bool           `json:"snapshot"`
	}

	mktDepthRequest struct {
		Contract model.Contract `json:"contract"`
		Rows     int            `json:"rows"`
	}

	contractDetailsRequest struct {
		Contract model.Contract `json:"contract"`
	}

	executionsRequest struct {
		Filter model.ExecutionFilter `json:"filter"`
	}

	reqIDsRequest struct {
		NumIDs int `json:"num_ids"`
	}
)

// MarketDataOptions tunes a market-data request.
type MarketDataOptions struct {
	GenericTicks string // Comma-separated generic tick ids
	Snapshot     bool   // One-shot; the stream completes after the snapshot
}

// -----------------------------------------------------------------------------
// Orders
// -----------------------------------------------------------------------------

// PlaceOrder submits an order and streams its tracked state. The stream
// completes once the order reaches a terminal status. A zero OrderID takes
// the next id from the terminal's sequence.
func (s *Session) PlaceOrder(contract model.Contract, order model.Order) (*Subscription[model.TrackedOrder], error) {
	if order.OrderID == 0 {
		id, err := s.ids.NextOrderID()
		if err != nil {
			return nil, err
		}
		order.OrderID = id
	}
	if order.ClientID == 0 {
		order.ClientID = s.cfg.ClientID
	}

	register := func(id int64) error {
		prev, known := s.cache.Order(id)
		s.cache.AddOrder(model.OpenOrder{
			Contract: contract,
			Order:    order,
			Info:     model.OrderInfo{State: model.StatePendingSubmit},
		})

		err := s.send(transport.ReqPlaceOrder, id, placeOrderRequest{Contract: contract, Order: order})
		if err != nil {
			// Never sent: restore what the cache knew before.
			if known {
				s.cache.AddOrder(prev.OpenOrder)
			} else {
				s.cache.RemoveOrder(id)
			}
		}
		return err
	}

	h, err := s.registry.Register(registry.KindPlaceOrder, register, registry.WithID(order.OrderID))
	if err != nil {
		return nil, err
	}
	s.logger.Info("order placed", "order_id", order.OrderID, "symbol", contract.Symbol, "action", order.Action, "quantity", order.TotalQuantity)
	return &Subscription[model.TrackedOrder]{h: h}, nil
}

// CancelOrder asks the terminal to cancel an order. The request completes
// with the cancelled status.
func (s *Session) CancelOrder(orderID int64) (*Request[model.OrderStatus], error) {
	h, err := s.registry.Register(registry.KindCancelOrder, s.sender(transport.ReqCancelOrder, nil), registry.WithID(orderID))
	if err != nil {
		return nil, err
	}
	return &Request[model.OrderStatus]{h: h, timeout: s.cfg.RequestTimeout}, nil
}

// OpenOrders lists the orders open at the terminal.
func (s *Session) OpenOrders() (*List[model.OpenOrder], error) {
	h, err := s.registry.Register(registry.KindOpenOrders, s.sender(transport.ReqOpenOrders, nil))
	if err != nil {
		return nil, err
	}
	return &List[model.OpenOrder]{h: h, timeout: s.cfg.RequestTimeout}, nil
}

// Executions lists the fills matching filter.
func (s *Session) Executions(filter model.ExecutionFilter) (*List[model.Execution], error) {
	h, err := s.registry.Register(registry.KindExecutions, s.sender(transport.ReqExecutions, executionsRequest{Filter: filter}))
	if err != nil {
		return nil, err
	}
	return &List[model.Execution]{h: h, timeout: s.cfg.RequestTimeout}, nil
}

// -----------------------------------------------------------------------------
// Account
// -----------------------------------------------------------------------------

// Positions streams position rows for every account. After the initial
// snapshot a value with SnapshotEnd set is delivered; updates follow.
func (s *Session) Positions() (*Subscription[model.Position], error) {
	h, err := s.registry.Register(registry.KindPositions,
		s.sender(transport.ReqPositions, nil),
		registry.WithUnregister(s.sender(transport.ReqCancelPositions, nil)),
	)
	if err != nil {
		return nil, err
	}
	return &Subscription[model.Position]{h: h}, nil
}

// AccountUpdates streams portfolio rows for account. An empty account uses
// the configured account, then the first managed account.
func (s *Session) AccountUpdates(account string) (*Subscription[model.PortfolioItem], error) {
	if account == "" {
		account = s.cfg.Account
	}
	if account == "" {
		if accounts := s.router.Accounts(); len(accounts) > 0 {
			account = accounts[0]
		}
	}
	if account == "" {
		return nil, ErrNoAccount
	}

	h, err := s.registry.Register(registry.KindAccountUpdates,
		s.sender(transport.ReqAccountUpdates, accountUpdatesRequest{Subscribe: true, Account: account}),
		registry.WithUnregister(s.sender(transport.ReqAccountUpdates, accountUpdatesRequest{Subscribe: false, Account: account})),
		registry.WithData(account),
	)
	if err != nil {
		return nil, err
	}
	return &Subscription[model.PortfolioItem]{h: h}, nil
}

// -----------------------------------------------------------------------------
// Market data
// -----------------------------------------------------------------------------

// MarketData streams quote snapshots for contract. Each value is the full
// snapshot after one tick.
func (s *Session) MarketData(contract model.Contract, opts MarketDataOptions) (*Subscription[model.QuoteSnapshot], error) {
	req := mktDataRequest{Contract: contract, GenericTicks: opts.GenericTicks, Snapshot: opts.Snapshot}
	h, err := s.registry.Register(registry.KindMarketData,
		s.sender(transport.ReqMktData, req),
		registry.WithUnregister(s.sender(transport.ReqCancelMktData, nil)),
		registry.WithData(contract),
	)
	if err != nil {
		return nil, err
	}
	return &Subscription[model.QuoteSnapshot]{h: h}, nil
}

// MarketDepth streams the order book for contract, rows levels per side.
// The book is cached under the contract id, or the request id when the
// contract has none.
func (s *Session) MarketDepth(contract model.Contract, rows int) (*Subscription[model.OrderBook], error) {
	if rows < 1 {
		return nil, fmt.Errorf("market depth rows must be >= 1, got %d", rows)
	}
	h, err := s.registry.Register(registry.KindMarketDepth,
		s.sender(transport.ReqMktDepth, mktDepthRequest{Contract: contract, Rows: rows}),
		registry.WithUnregister(s.sender(transport.ReqCancelMktDepth, nil)),
		registry.WithData(contract),
	)
	if err != nil {
		return nil, err
	}
	return &Subscription[model.OrderBook]{h: h}, nil
}

// ContractDetails lists the contracts matching a partial description.
func (s *Session) ContractDetails(contract model.Contract) (*List[model.ContractDetails], error) {
	h, err := s.registry.Register(registry.KindContractDetails, s.sender(transport.ReqContractDetails, contractDetailsRequest{Contract: contract}))
	if err != nil {
		return nil, err
	}
	return &List[model.ContractDetails]{h: h, timeout: s.cfg.RequestTimeout}, nil
}

// -----------------------------------------------------------------------------
// Session
// -----------------------------------------------------------------------------

// CurrentTime asks for the terminal clock.
func (s *Session) CurrentTime() (*Request[time.Time], error) {
	h, err := s.registry.Register(registry.KindCurrentTime, s.sender(transport.ReqCurrentTime, nil))
	if err != nil {
		return nil, err
	}
	return &Request[time.Time]{h: h, timeout: s.cfg.RequestTimeout}, nil
}

// NextValidID asks the terminal for its next order id. The answer also
// advances the local order-id sequence.
func (s *Session) NextValidID() (*Request[int64], error) {
	h, err := s.registry.Register(registry.KindNextValidID, s.sender(transport.ReqIDs, reqIDsRequest{NumIDs: 1}))
	if err != nil {
		return nil, err
	}
	return &Request[int64]{h: h, timeout: s.cfg.RequestTimeout}, nil
}
