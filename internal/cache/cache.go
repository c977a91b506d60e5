package cache

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/tidwall/btree"

	"github.com/rickgao/tws-session/internal/model"
)

// PositionKey identifies a position.
type PositionKey struct {
	Account string
	ConID   int64
}

type statusSet = btree.BTreeG[model.OrderStatus]

func newStatusSet() *statusSet {
	// The cache mutex guards every set.
	return btree.NewBTreeGOptions(model.StatusLess, btree.Options{NoLocks: true})
}

type trackedOrder struct {
	desc     model.OpenOrder
	statuses *statusSet
}

type book struct {
	bids btree.Map[int, model.DepthLevel]
	asks btree.Map[int, model.DepthLevel]
}

func (b *book) side(s model.Side) *btree.Map[int, model.DepthLevel] {
	if s == model.SideBid {
		return &b.bids
	}
	return &b.asks
}

// Cache is safe for concurrent use.
type Cache struct {
	mu sync.RWMutex

	orders    map[int64]*trackedOrder
	pending   map[int64]*statusSet // statuses for orders not yet described
	positions map[PositionKey]model.Position
	portfolio map[int64]model.PortfolioItem
	ticks     map[int64]*model.QuoteSnapshot
	books     map[int64]*book

	now func() time.Time
}

// New returns an empty cache.
func New() *Cache {
	c := &Cache{now: time.Now}
	c.reset()
	return c
}

func (c *Cache) reset() {
	c.orders = make(map[int64]*trackedOrder)
	c.pending = make(map[int64]*statusSet)
	c.positions = make(map[PositionKey]model.Position)
	c.portfolio = make(map[int64]model.PortfolioItem)
	c.ticks = make(map[int64]*model.QuoteSnapshot)
	c.books = make(map[int64]*book)
}

// Clear drops all cached state.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

// -----------------------------------------------------------------------------
// Orders
// -----------------------------------------------------------------------------

// AddOrder records an order description. It returns true the first time the
// order id is seen; later calls replace the description. Statuses that
// arrived before the first description are merged in.
func (c *Cache) AddOrder(o model.OpenOrder) bool {
	id := o.Order.OrderID

	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.orders[id]; ok {
		t.desc = o
		return false
	}

	t := &trackedOrder{desc: o, statuses: newStatusSet()}
	if early, ok := c.pending[id]; ok {
		early.Scan(func(s model.OrderStatus) bool {
			t.statuses.Set(s)
			return true
		})
		delete(c.pending, id)
	}
	c.orders[id] = t
	return true
}

// RemoveOrder forgets an order and its statuses. It reports whether the
// order was known.
func (c *Cache) RemoveOrder(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.orders[id]; !ok {
		return false
	}
	delete(c.orders, id)
	return true
}

// AddStatus records a status update. It returns true only if the order is
// known and the update is new. Updates for unknown orders are buffered and
// return false.
func (c *Cache) AddStatus(s model.OrderStatus) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.orders[s.OrderID]
	if !ok {
		early, ok := c.pending[s.OrderID]
		if !ok {
			early = newStatusSet()
			c.pending[s.OrderID] = early
		}
		early.Set(s)
		return false
	}

	_, replaced := t.statuses.Set(s)
	return !replaced
}

// Order returns a copy of one tracked order.
func (c *Cache) Order(id int64) (model.TrackedOrder, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.orders[id]
	if !ok {
		return model.TrackedOrder{}, false
	}
	return t.snapshot(), true
}

// Orders returns copies of all tracked orders, ordered by id.
func (c *Cache) Orders() []model.TrackedOrder {
	c.mu.RLock()
	out := make([]model.TrackedOrder, 0, len(c.orders))
	for _, t := range c.orders {
		out = append(out, t.snapshot())
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b model.TrackedOrder) int {
		return cmp.Compare(a.Order.OrderID, b.Order.OrderID)
	})
	return out
}

// LastStatus returns the most advanced status of a known order.
func (c *Cache) LastStatus(id int64) (model.OrderStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.orders[id]
	if !ok {
		return model.OrderStatus{}, false
	}
	return t.statuses.Max()
}

// Statuses returns the status history of a known order, least advanced first.
func (c *Cache) Statuses(id int64) []model.OrderStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.orders[id]
	if !ok {
		return nil
	}
	return t.statuses.Items()
}

// PendingStatuses returns how many order ids have buffered statuses.
func (c *Cache) PendingStatuses() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pending)
}

func (t *trackedOrder) snapshot() model.TrackedOrder {
	return model.TrackedOrder{
		OpenOrder: t.desc,
		Statuses:  t.statuses.Items(),
	}
}

// -----------------------------------------------------------------------------
// Account
// -----------------------------------------------------------------------------

// UpdatePosition upserts a position.
func (c *Cache) UpdatePosition(p model.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positions[PositionKey{Account: p.Account, ConID: p.Contract.ConID}] = p
}

// Position returns one position.
func (c *Cache) Position(account string, conID int64) (model.Position, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.positions[PositionKey{Account: account, ConID: conID}]
	return p, ok
}

// Positions returns all positions ordered by account then contract id.
func (c *Cache) Positions() []model.Position {
	c.mu.RLock()
	out := make([]model.Position, 0, len(c.positions))
	for _, p := range c.positions {
		out = append(out, p)
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b model.Position) int {
		if n := cmp.Compare(a.Account, b.Account); n != 0 {
			return n
		}
		return cmp.Compare(a.Contract.ConID, b.Contract.ConID)
	})
	return out
}

// UpdatePortfolio upserts a portfolio row.
func (c *Cache) UpdatePortfolio(p model.PortfolioItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.portfolio[p.Contract.ConID] = p
}

// PortfolioItem returns one portfolio row.
func (c *Cache) PortfolioItem(conID int64) (model.PortfolioItem, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.portfolio[conID]
	return p, ok
}

// Portfolio returns all portfolio rows ordered by contract id.
func (c *Cache) Portfolio() []model.PortfolioItem {
	c.mu.RLock()
	out := make([]model.PortfolioItem, 0, len(c.portfolio))
	for _, p := range c.portfolio {
		out = append(out, p)
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b model.PortfolioItem) int {
		return cmp.Compare(a.Contract.ConID, b.Contract.ConID)
	})
	return out
}

// -----------------------------------------------------------------------------
// Market data
// -----------------------------------------------------------------------------

// UpdateTick applies mutate to the snapshot for reqID, creating it on first
// use, and returns a copy of the result.
func (c *Cache) UpdateTick(reqID int64, mutate func(*model.QuoteSnapshot)) model.QuoteSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.ticks[reqID]
	if !ok {
		q = model.NewQuoteSnapshot(reqID)
		c.ticks[reqID] = q
	}
	mutate(q)
	q.UpdatedAt = c.now()
	return q.Clone()
}

// Tick returns a copy of the snapshot for reqID.
func (c *Cache) Tick(reqID int64) (model.QuoteSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	q, ok := c.ticks[reqID]
	if !ok {
		return model.QuoteSnapshot{}, false
	}
	return q.Clone(), true
}

// AddOrderBookLevel applies a depth update to an instrument's book and
// returns a copy of the book. Insert and update both upsert the level at its
// position; remove deletes it and ignores positions that are not present.
func (c *Cache) AddOrderBookLevel(instrument int64, op model.DepthOp, level model.DepthLevel) model.OrderBook {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.books[instrument]
	if !ok {
		b = &book{}
		c.books[instrument] = b
	}

	side := b.side(level.Side)
	switch op {
	case model.DepthInsert, model.DepthUpdate:
		side.Set(level.Position, level)
	case model.DepthRemove:
		side.Delete(level.Position)
	}
	return b.snapshot(instrument)
}

// OrderBook returns a copy of an instrument's book.
func (c *Cache) OrderBook(instrument int64) (model.OrderBook, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, ok := c.books[instrument]
	if !ok {
		return model.OrderBook{}, false
	}
	return b.snapshot(instrument), true
}

func (b *book) snapshot(instrument int64) model.OrderBook {
	return model.OrderBook{
		Instrument: instrument,
		Bids:       b.bids.Values(),
		Asks:       b.asks.Values(),
	}
}
