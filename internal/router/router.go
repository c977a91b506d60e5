// Package router dispatches inbound events to the state cache, the
// operation registry and the error classifier.
//
// Dispatch runs on the transport's read goroutine and finishes every cache
// mutation and registry delivery before the next frame is read, so
// consumers observe events in arrival order.
package router

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/tws-session/internal/cache"
	"github.com/rickgao/tws-session/internal/errclass"
	"github.com/rickgao/tws-session/internal/event"
	"github.com/rickgao/tws-session/internal/ident"
	"github.com/rickgao/tws-session/internal/model"
	"github.com/rickgao/tws-session/internal/registry"
)

// Router is the inbound event dispatcher.
type Router struct {
	cache    *cache.Cache
	reg      *registry.Registry
	faults   *errclass.Classifier
	ids      *ident.Generator
	ctl      Controller
	logger   *slog.Logger
	observer Observer

	// Handshake state, reset for every connection attempt.
	hsMu      sync.Mutex
	gotNextID bool
	accounts  []string
	confirmed bool

	// Stats
	received    atomic.Int64
	handshakes  atomic.Int64
	losses      atomic.Int64
	idResets    atomic.Int64
	faultsTotal atomic.Int64
	strayEnds   atomic.Int64
}

// New creates a Router.
func New(
	c *cache.Cache,
	reg *registry.Registry,
	faults *errclass.Classifier,
	ids *ident.Generator,
	ctl Controller,
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cache:    c,
		reg:      reg,
		faults:   faults,
		ids:      ids,
		ctl:      ctl,
		logger:   logger,
		observer: nopObserver{},
	}
}

// SetObserver installs an event counter. Call before the first Dispatch.
func (r *Router) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	r.observer = o
}

// ResetHandshake forgets the handshake progress. Call when a new connection
// attempt starts.
func (r *Router) ResetHandshake() {
	r.hsMu.Lock()
	r.gotNextID = false
	r.accounts = nil
	r.confirmed = false
	r.hsMu.Unlock()
}

// Accounts returns the accounts announced in the last handshake.
func (r *Router) Accounts() []string {
	r.hsMu.Lock()
	defer r.hsMu.Unlock()
	return slices.Clone(r.accounts)
}

// Stats returns current statistics.
func (r *Router) Stats() Stats {
	return Stats{
		EventsReceived:   r.received.Load(),
		Handshakes:       r.handshakes.Load(),
		ConnectionLosses: r.losses.Load(),
		IDResets:         r.idResets.Load(),
		Faults:           r.faultsTotal.Load(),
		StrayEnds:        r.strayEnds.Load(),
	}
}

// Dispatch routes one inbound event. It is an event.Handler.
func (r *Router) Dispatch(ev event.Event) {
	r.received.Add(1)
	r.observer.EventReceived(ev.Name())

	switch ev := ev.(type) {
	// Session
	case event.NextValidID:
		r.onNextValidID(ev)
	case event.ManagedAccounts:
		r.onManagedAccounts(ev)
	case event.CurrentTime:
		r.reg.OnNextAndComplete(key(registry.KindCurrentTime, 0), time.Unix(ev.Time, 0).UTC())
	case event.Error:
		r.faultsTotal.Add(1)
		r.faults.Handle(ev.ID, ev.Code, ev.Message)
	case event.ConnectionClosed:
		r.onConnectionClosed(ev)

	// Orders
	case event.OpenOrder:
		r.onOpenOrder(ev)
	case event.OrderStatus:
		r.onOrderStatus(ev)
	case event.OpenOrderEnd:
		r.complete(key(registry.KindOpenOrders, 0), ev.Name())
	case event.Execution:
		r.reg.OnNext(key(registry.KindExecutions, ev.ReqID), ev.Execution)
	case event.ExecutionEnd:
		r.complete(key(registry.KindExecutions, ev.ReqID), ev.Name())

	// Account
	case event.Position:
		r.cache.UpdatePosition(ev.Position)
		r.reg.OnNext(key(registry.KindPositions, 0), ev.Position)
	case event.PositionEnd:
		r.reg.OnNext(key(registry.KindPositions, 0), model.Position{SnapshotEnd: true})
	case event.Portfolio:
		r.cache.UpdatePortfolio(ev.PortfolioItem)
		r.reg.OnNext(key(registry.KindAccountUpdates, 0), ev.PortfolioItem)
	case event.AccountDownloadEnd:
		r.reg.OnNext(key(registry.KindAccountUpdates, 0), model.PortfolioItem{Account: ev.Account, SnapshotEnd: true})

	// Market data
	case event.TickPrice:
		r.onTick(ev.ReqID, func(q *model.QuoteSnapshot) { q.SetPrice(ev.Field, ev.Price) })
	case event.TickSize:
		r.onTick(ev.ReqID, func(q *model.QuoteSnapshot) { q.SetSize(ev.Field, ev.Size) })
	case event.TickString:
		r.onTick(ev.ReqID, func(q *model.QuoteSnapshot) { q.SetString(ev.Field, ev.Value) })
	case event.TickGeneric:
		r.onTick(ev.ReqID, func(q *model.QuoteSnapshot) { q.SetGeneric(ev.Field, ev.Value) })
	case event.TickSnapshotEnd:
		r.complete(key(registry.KindMarketData, ev.ReqID), ev.Name())
	case event.MarketDepth:
		r.onMarketDepth(ev)
	case event.ContractDetails:
		r.reg.OnNext(key(registry.KindContractDetails, ev.ReqID), ev.Details)
	case event.ContractDetailsEnd:
		r.complete(key(registry.KindContractDetails, ev.ReqID), ev.Name())

	default:
		r.logger.Debug("skipping event", "event", ev.Name())
	}
}

func key(kind registry.Kind, id int64) registry.Key {
	return registry.NewKey(kind, id)
}

// complete finishes a collected request on its end marker. A marker with
// no live operation usually follows a cancel or timeout.
func (r *Router) complete(k registry.Key, marker string) {
	if err := r.reg.OnComplete(k, registry.MustExist()); err != nil {
		r.strayEnds.Add(1)
		r.logger.Warn("end marker without live operation", "event", marker, "error", err)
	}
}

// -----------------------------------------------------------------------------
// Session
// -----------------------------------------------------------------------------

func (r *Router) onNextValidID(ev event.NextValidID) {
	if r.ids.ObserveServerNextID(ev.OrderID) {
		r.idResets.Add(1)
		r.logger.Warn("terminal order id sequence went backwards, clearing cache", "next_id", ev.OrderID)
		r.cache.Clear()
	}
	r.reg.OnNextAndComplete(key(registry.KindNextValidID, 0), ev.OrderID)

	r.hsMu.Lock()
	r.gotNextID = true
	r.hsMu.Unlock()
	r.maybeConfirm()
}

func (r *Router) onManagedAccounts(ev event.ManagedAccounts) {
	r.hsMu.Lock()
	r.accounts = slices.Clone(ev.Accounts)
	if r.accounts == nil {
		r.accounts = []string{}
	}
	r.hsMu.Unlock()
	r.maybeConfirm()
}

// maybeConfirm confirms the connection once both handshake events arrived.
func (r *Router) maybeConfirm() {
	r.hsMu.Lock()
	ready := r.gotNextID && r.accounts != nil && !r.confirmed
	if ready {
		r.confirmed = true
	}
	accounts := len(r.accounts)
	r.hsMu.Unlock()

	if !ready {
		return
	}
	r.handshakes.Add(1)
	r.logger.Debug("handshake complete", "accounts", accounts)
	r.ctl.ConfirmConnection()
}

func (r *Router) onConnectionClosed(ev event.ConnectionClosed) {
	r.losses.Add(1)
	if r.ctl.ShuttingDown() {
		r.logger.Debug("connection closed during shutdown", "error", ev.Err)
		return
	}
	r.logger.Warn("connection lost, reconnecting", "error", ev.Err)
	r.ctl.Reconnect()
}

// -----------------------------------------------------------------------------
// Orders
// -----------------------------------------------------------------------------

func (r *Router) onOpenOrder(ev event.OpenOrder) {
	r.cache.AddOrder(ev.OpenOrder)

	openOrders := key(registry.KindOpenOrders, 0)
	if r.reg.Live(openOrders) {
		r.reg.OnNext(openOrders, ev.OpenOrder)
	}
	r.publishOrder(ev.Order.OrderID)
}

func (r *Router) onOrderStatus(ev event.OrderStatus) {
	id := ev.OrderID
	changed := r.cache.AddStatus(ev.OrderStatus)

	if ev.Status.Cancelled() {
		cancel := key(registry.KindCancelOrder, id)
		if r.reg.Live(cancel) {
			r.reg.OnNextAndComplete(cancel, ev.OrderStatus)
		}
	}

	if !changed {
		r.logger.Debug("order status not new or order unknown", "order_id", id, "status", ev.Status)
		return
	}
	r.publishOrder(id)
}

// publishOrder sends the cached order to its PlaceOrder stream, completing
// the stream once the order is done.
func (r *Router) publishOrder(id int64) {
	k := key(registry.KindPlaceOrder, id)
	if !r.reg.Live(k) {
		return
	}
	tracked, ok := r.cache.Order(id)
	if !ok {
		return
	}
	if tracked.Done() {
		r.reg.OnNextAndComplete(k, tracked)
		return
	}
	r.reg.OnNext(k, tracked)
}

// -----------------------------------------------------------------------------
// Market data
// -----------------------------------------------------------------------------

func (r *Router) onTick(reqID int64, mutate func(*model.QuoteSnapshot)) {
	k := key(registry.KindMarketData, reqID)
	if !r.reg.Live(k) {
		r.logger.Debug("tick for inactive request", "req_id", reqID)
		return
	}
	r.reg.OnNext(k, r.cache.UpdateTick(reqID, mutate))
}

func (r *Router) onMarketDepth(ev event.MarketDepth) {
	k := key(registry.KindMarketDepth, ev.ReqID)
	data, ok := r.reg.Data(k)
	if !ok {
		r.logger.Debug("depth for inactive request", "req_id", ev.ReqID)
		return
	}

	instrument := ev.ReqID
	if c, ok := data.(model.Contract); ok && c.ConID != 0 {
		instrument = c.ConID
	}
	r.reg.OnNext(k, r.cache.AddOrderBookLevel(instrument, ev.Op, ev.Level))
}
