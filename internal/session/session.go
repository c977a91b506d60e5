// Package session assembles the session layer: the connection monitor, the
// operation registry, the state cache, the error classifier and the event
// router, bound to one transport.
//
// A Session is the caller's entry point. Operations return typed handles
// (Request, List, Subscription) backed by registry operations; the local
// cache is read through State.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/tws-session/internal/cache"
	"github.com/rickgao/tws-session/internal/connection"
	"github.com/rickgao/tws-session/internal/errclass"
	"github.com/rickgao/tws-session/internal/ident"
	"github.com/rickgao/tws-session/internal/metrics"
	"github.com/rickgao/tws-session/internal/model"
	"github.com/rickgao/tws-session/internal/registry"
	"github.com/rickgao/tws-session/internal/router"
	"github.com/rickgao/tws-session/internal/transport"
)

// Errors
var (
	ErrNoAccount       = errors.New("no account configured or announced")
	ErrUnexpectedValue = errors.New("unexpected value type")
	ErrConnectTimeout  = errors.New("connect timeout")
)

// Config configures a Session.
type Config struct {
	Monitor        connection.Config
	ClientID       int64         // Stamped on placed orders
	Account        string        // Default account for account updates
	RequestTimeout time.Duration // Default Wait timeout and send deadline
	CloseTimeout   time.Duration // Bound on Close
	RequestIDStart int64         // First request id
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Monitor:        connection.DefaultConfig(),
		RequestTimeout: 10 * time.Second,
		CloseTimeout:   5 * time.Second,
		RequestIDStart: 1_000_000,
	}
}

// State is the read side of the local cache.
type State interface {
	Orders() []model.TrackedOrder
	Order(id int64) (model.TrackedOrder, bool)
	LastStatus(id int64) (model.OrderStatus, bool)
	Statuses(id int64) []model.OrderStatus
	Positions() []model.Position
	Position(account string, conID int64) (model.Position, bool)
	Portfolio() []model.PortfolioItem
	PortfolioItem(conID int64) (model.PortfolioItem, bool)
	Tick(reqID int64) (model.QuoteSnapshot, bool)
	OrderBook(instrument int64) (model.OrderBook, bool)
}

// Option configures a Session.
type Option func(*options)

type options struct {
	metrics *metrics.Metrics
	onFault func(*errclass.Fault)
	rules   map[int]errclass.Severity
}

// WithMetrics records session metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithFaultHandler is called for every session-level fault before the
// session reconnects.
func WithFaultHandler(fn func(*errclass.Fault)) Option {
	return func(o *options) { o.onFault = fn }
}

// WithRule overrides the severity of one terminal error code.
func WithRule(code int, sev errclass.Severity) Option {
	return func(o *options) {
		if o.rules == nil {
			o.rules = make(map[int]errclass.Severity)
		}
		o.rules[code] = sev
	}
}

// Session is safe for concurrent use.
type Session struct {
	cfg       Config
	logger    *slog.Logger
	transport transport.Transport

	ids      *ident.Generator
	monitor  *connection.Monitor
	registry *registry.Registry
	cache    *cache.Cache
	faults   *errclass.Classifier
	router   *router.Router
	metrics  *metrics.Metrics

	mu              sync.RWMutex
	statusListeners []func(from, to connection.Status)
}

// New wires a Session around t. It installs the event handler on t.
func New(cfg Config, t transport.Transport, logger *slog.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		cfg:       cfg,
		logger:    logger,
		transport: t,
		ids:       ident.NewGenerator(cfg.RequestIDStart),
		cache:     cache.New(),
		metrics:   o.metrics,
	}

	s.monitor = connection.NewMonitor(cfg.Monitor, t, logger.With("component", "monitor"))
	s.registry = registry.New(s.monitor, s.ids, logger.With("component", "registry"))
	s.registry.SetObserver(o.metrics)

	faultOpts := []errclass.Option{errclass.WithObserver(o.metrics)}
	if o.onFault != nil {
		faultOpts = append(faultOpts, errclass.WithFaultHandler(o.onFault))
	}
	for code, sev := range o.rules {
		faultOpts = append(faultOpts, errclass.WithRule(code, sev))
	}
	s.faults = errclass.New(s.registry, s.monitor, logger.With("component", "errors"), faultOpts...)

	s.router = router.New(s.cache, s.registry, s.faults, s.ids, s.monitor, logger.With("component", "router"))
	s.router.SetObserver(o.metrics)

	s.monitor.OnStatus(s.onStatus)
	s.monitor.OnChange(s.onChange)
	t.SetHandler(s.router.Dispatch)

	return s
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Start launches the connection monitor. ctx bounds the session's life.
func (s *Session) Start(ctx context.Context) error {
	return s.monitor.Start(ctx)
}

// Connect opens the session without waiting.
func (s *Session) Connect() {
	s.monitor.Connect()
}

// ConnectAndWait opens the session and waits until it is Connected.
func (s *Session) ConnectAndWait(timeout time.Duration) error {
	s.monitor.Connect()
	if !s.monitor.WaitFor(connection.Connected, timeout) {
		return ErrConnectTimeout
	}
	return nil
}

// Disconnect cancels every live operation and tears the session down.
func (s *Session) Disconnect() {
	s.registry.CancelAll()
	s.monitor.Disconnect()
}

// Close cancels every live operation, disconnects and stops the monitor.
// The session cannot be restarted.
func (s *Session) Close() error {
	s.registry.CancelAll()
	return s.monitor.Close(s.cfg.CloseTimeout)
}

// IsConnected reports whether the session is Connected.
func (s *Session) IsConnected() bool { return s.monitor.IsConnected() }

// Status returns the session status.
func (s *Session) Status() connection.Status { return s.monitor.Status() }

// SessionID identifies the current connect attempt.
func (s *Session) SessionID() string { return s.monitor.SessionID() }

// WaitFor waits until the session reaches want.
func (s *Session) WaitFor(want connection.Status, timeout time.Duration) bool {
	return s.monitor.WaitFor(want, timeout)
}

// OnStatus registers a listener for status transitions. Listeners must not
// block.
func (s *Session) OnStatus(fn func(from, to connection.Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusListeners = append(s.statusListeners, fn)
}

// OnError registers a listener for failed connect attempts.
func (s *Session) OnError(fn func(error)) {
	s.monitor.OnError(fn)
}

// Accounts returns the accounts announced by the terminal.
func (s *Session) Accounts() []string { return s.router.Accounts() }

// State returns the read side of the local cache.
func (s *Session) State() State { return s.cache }

// Live returns the number of live operations.
func (s *Session) Live() int { return s.registry.Len() }

// RouterStats returns inbound dispatch statistics.
func (s *Session) RouterStats() router.Stats { return s.router.Stats() }

func (s *Session) onStatus(from, to connection.Status) {
	if to == connection.Connecting {
		s.router.ResetHandshake()
	}
	s.metrics.StatusChanged(from, to)

	s.mu.RLock()
	listeners := s.statusListeners
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(from, to)
	}
}

func (s *Session) onChange(c connection.Change) {
	switch {
	case c.Connected && c.Reconnect:
		n := s.registry.Resubscribe()
		s.logger.Info("session reconnected", "resubscribed", n, "session", s.monitor.SessionID())

	case c.Connected:
		s.logger.Info("session connected", "session", s.monitor.SessionID())

	default:
		failed := s.registry.FailPending(registry.ErrConnectionLost)
		if c.Reconnect {
			s.logger.Warn("session dropped, waiting to reconnect", "failed_operations", failed)
			return
		}
		cancelled := s.registry.CancelAll()
		s.cache.Clear()
		s.logger.Info("session ended", "failed_operations", failed, "cancelled_operations", cancelled)
	}
}

// -----------------------------------------------------------------------------
// Sending
// -----------------------------------------------------------------------------

func (s *Session) send(typ string, id int64, payload any) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	defer cancel()
	return s.transport.Send(ctx, transport.Request{Type: typ, ID: id, Payload: payload})
}

// sender returns a side effect sending one request type.
func (s *Session) sender(typ string, payload any) registry.SideEffect {
	return func(id int64) error {
		return s.send(typ, id, payload)
	}
}
