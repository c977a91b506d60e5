package connection

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Monitor is the connection state machine.
type Monitor struct {
	cfg    Config
	opener Opener
	logger *slog.Logger

	status atomic.Int32

	// changed is closed and replaced on every transition.
	mu      sync.Mutex
	changed chan struct{}

	// One-slot mailbox.
	slot atomic.Int32
	wake chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started atomic.Bool
	closed  atomic.Bool

	listenersMu     sync.RWMutex
	changeListeners []func(Change)
	statusListeners []func(from, to Status)
	errorListeners  []func(error)

	sessionID atomic.Value // string

	// Owned by the control goroutine.
	connected    bool
	reconnecting bool
	confirmTimer *time.Timer // armed from a successful open until confirmed
}

// NewMonitor creates a Monitor. Call Start before issuing commands.
func NewMonitor(cfg Config, opener Opener, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Monitor{
		cfg:     cfg,
		opener:  opener,
		logger:  logger,
		changed: make(chan struct{}),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	m.sessionID.Store("")
	return m
}

// Start launches the control goroutine.
func (m *Monitor) Start(ctx context.Context) error {
	if m.closed.Load() {
		return ErrAlreadyClosed
	}
	if !m.started.CompareAndSwap(false, true) {
		return nil
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	go m.run()

	m.logger.Debug("connection monitor started", "addr", m.cfg.Addr)
	return nil
}

// Close disconnects, waits up to timeout for Disconnected, and stops the
// control goroutine. It returns ErrCloseTimeout if the session did not
// reach Disconnected in time; the transport is closed regardless.
func (m *Monitor) Close(timeout time.Duration) error {
	if !m.started.Load() || !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	deadline := time.Now().Add(timeout)
	m.submit(cmdDisconnect)
	reached := m.WaitFor(Disconnected, timeout)

	m.cancel()
	select {
	case <-m.done:
	case <-time.After(time.Until(deadline)):
		m.logger.Warn("control loop did not stop in time")
		m.closeTransport()
		return ErrCloseTimeout
	}

	// The loop has exited; finish anything it left half done.
	if m.Status() != Disconnected {
		m.closeTransport()
		m.setStatus(Disconnected)
	}
	if m.connected {
		m.connected = false
		m.emit(Change{})
	}

	m.logger.Info("connection monitor stopped")
	if !reached {
		return ErrCloseTimeout
	}
	return nil
}

// Connect opens the session. Ignored unless Disconnected.
func (m *Monitor) Connect() { m.submit(cmdConnect) }

// ConfirmConnection marks the handshake as complete. Ignored unless
// Connecting.
func (m *Monitor) ConfirmConnection() { m.submit(cmdConfirm) }

// Reconnect tears the session down and reopens it.
func (m *Monitor) Reconnect() { m.submit(cmdReconnect) }

// Disconnect tears the session down. Idempotent.
func (m *Monitor) Disconnect() { m.submit(cmdDisconnect) }

// Status returns the current status.
func (m *Monitor) Status() Status {
	return Status(m.status.Load())
}

// IsConnected reports whether the status is Connected.
func (m *Monitor) IsConnected() bool {
	return m.Status() == Connected
}

// ShuttingDown reports whether the session is being torn down or is down.
func (m *Monitor) ShuttingDown() bool {
	if m.closed.Load() {
		return true
	}
	s := m.Status()
	return s == Disconnecting || s == Disconnected
}

// SessionID identifies the current connect attempt. Empty before the first.
func (m *Monitor) SessionID() string {
	return m.sessionID.Load().(string)
}

// WaitFor blocks until the status equals want or timeout elapses, and
// reports whether want was reached.
func (m *Monitor) WaitFor(want Status, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		m.mu.Lock()
		if m.Status() == want {
			m.mu.Unlock()
			return true
		}
		ch := m.changed
		m.mu.Unlock()

		select {
		case <-ch:
		case <-timer.C:
			return m.Status() == want
		}
	}
}

// OnChange registers a listener for connected/disconnected edges. Listeners
// run on the control goroutine and must not block.
func (m *Monitor) OnChange(fn func(Change)) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.changeListeners = append(m.changeListeners, fn)
}

// OnStatus registers a listener for every status transition. Listeners run
// on the goroutine making the transition and must not block.
func (m *Monitor) OnStatus(fn func(from, to Status)) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.statusListeners = append(m.statusListeners, fn)
}

// OnError registers a listener for transport open failures.
func (m *Monitor) OnError(fn func(error)) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.errorListeners = append(m.errorListeners, fn)
}

// -----------------------------------------------------------------------------
// Control loop
// -----------------------------------------------------------------------------

func (m *Monitor) submit(c command) {
	if m.closed.Load() && c != cmdDisconnect {
		m.logger.Debug("command after close ignored", "command", c)
		return
	}
	m.slot.Store(int32(c))
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Monitor) run() {
	defer close(m.done)

	for {
		select {
		case <-m.ctx.Done():
			m.disarmConfirm()
			return
		case <-m.wake:
		case <-m.confirmExpired():
			m.confirmTimer = nil
			m.handshakeTimedOut()
		}

		for {
			c := command(m.slot.Swap(int32(cmdNone)))
			if c == cmdNone || m.ctx.Err() != nil {
				break
			}
			m.execute(c)
		}
	}
}

func (m *Monitor) execute(c command) {
	m.logger.Debug("executing command", "command", c, "status", m.Status())

	switch c {
	case cmdConnect:
		m.connect()
	case cmdConfirm:
		m.confirm()
	case cmdReconnect:
		m.reconnect()
	case cmdDisconnect:
		m.disconnect()
	}
}

func (m *Monitor) connect() {
	if s := m.Status(); s != Disconnected {
		m.logger.Debug("connect ignored", "status", s)
		return
	}

	m.newSession()
	m.setStatus(Connecting)
	if !m.sleep(m.cfg.PreConnectDelay, cmdConnect) {
		return
	}

	if err := m.opener.Open(m.ctx, m.cfg.Addr); err != nil {
		m.logger.Error("connect failed", "addr", m.cfg.Addr, "error", err)
		m.closeTransport()
		m.setStatus(Disconnected)
		m.reportError(err)
		return
	}
	m.armConfirm()
}

func (m *Monitor) confirm() {
	if s := m.Status(); s != Connecting {
		m.logger.Debug("confirmation ignored", "status", s)
		return
	}
	if !m.sleep(m.cfg.ConfirmDelay, cmdConfirm) {
		m.logger.Debug("confirmation interrupted")
		return
	}

	m.disarmConfirm()
	m.setStatus(Connected)
	if !m.connected {
		m.connected = true
		c := Change{Connected: true, Reconnect: m.reconnecting}
		m.reconnecting = false
		m.emit(c)
	}
}

func (m *Monitor) reconnect() {
	m.reconnecting = true
	m.teardown(true)

	for {
		m.setStatus(ReconnectWaiting)
		if !m.sleep(m.cfg.ReconnectDelay, cmdReconnect) {
			m.setStatus(Disconnected)
			return
		}

		m.newSession()
		m.setStatus(Connecting)
		err := m.opener.Open(m.ctx, m.cfg.Addr)
		if err == nil {
			m.armConfirm()
			return
		}

		m.logger.Warn("reconnect attempt failed", "addr", m.cfg.Addr, "error", err)
		m.closeTransport()
		m.reportError(err)
		if m.ctx.Err() != nil {
			m.setStatus(Disconnected)
			return
		}
	}
}

func (m *Monitor) disconnect() {
	wasReconnecting := m.reconnecting
	m.reconnecting = false

	if m.Status() == Disconnected && !wasReconnecting {
		m.logger.Debug("already disconnected")
		return
	}

	if fired := m.teardown(false); !fired && wasReconnecting {
		// The reconnect that was in progress is abandoned.
		m.emit(Change{})
	}
}

// teardown closes the transport and moves to Disconnected, publishing the
// disconnected edge if the session was connected. Reports whether it did.
func (m *Monitor) teardown(reconnect bool) bool {
	m.disarmConfirm()
	if m.Status() != Disconnected {
		m.setStatus(Disconnecting)
		m.closeTransport()
		m.setStatus(Disconnected)
	}

	if !m.connected {
		return false
	}
	m.connected = false
	m.emit(Change{Connected: false, Reconnect: reconnect})
	return true
}

// handshakeTimedOut reopens a connection whose handshake never completed.
func (m *Monitor) handshakeTimedOut() {
	if s := m.Status(); s != Connecting {
		return
	}
	m.logger.Warn("handshake not confirmed, reconnecting", "timeout", m.cfg.ConfirmTimeout)
	m.reportError(ErrHandshakeTimeout)
	m.reconnect()
}

func (m *Monitor) armConfirm() {
	m.disarmConfirm()
	if m.cfg.ConfirmTimeout > 0 {
		m.confirmTimer = time.NewTimer(m.cfg.ConfirmTimeout)
	}
}

func (m *Monitor) disarmConfirm() {
	if m.confirmTimer != nil {
		m.confirmTimer.Stop()
		m.confirmTimer = nil
	}
}

// confirmExpired is nil, and never ready, while no timer is armed.
func (m *Monitor) confirmExpired() <-chan time.Time {
	if m.confirmTimer == nil {
		return nil
	}
	return m.confirmTimer.C
}

// sleep waits d and reports whether the wait ran to the end. Only a
// Disconnect or a Reconnect other than self interrupts it. Everything else
// is absorbed.
func (m *Monitor) sleep(d time.Duration, self command) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return m.ctx.Err() == nil
		case <-m.ctx.Done():
			return false
		case <-m.wake:
			switch c := command(m.slot.Load()); c {
			case cmdNone:
				// Stale wake-up for a command already taken.
			case cmdDisconnect, cmdReconnect:
				if c != self {
					return false
				}
				m.slot.CompareAndSwap(int32(c), int32(cmdNone))
				m.logger.Debug("repeated command absorbed", "command", c)
			default:
				m.slot.CompareAndSwap(int32(c), int32(cmdNone))
				m.logger.Debug("command absorbed during wait", "command", c, "status", m.Status())
			}
		}
	}
}

func (m *Monitor) setStatus(s Status) {
	old := Status(m.status.Swap(int32(s)))
	if old == s {
		return
	}

	m.mu.Lock()
	close(m.changed)
	m.changed = make(chan struct{})
	m.mu.Unlock()

	m.logger.Info("session status changed", "from", old, "to", s, "session", m.SessionID())

	m.listenersMu.RLock()
	listeners := m.statusListeners
	m.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(old, s)
	}
}

func (m *Monitor) emit(c Change) {
	m.listenersMu.RLock()
	listeners := m.changeListeners
	m.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(c)
	}
}

func (m *Monitor) reportError(err error) {
	m.listenersMu.RLock()
	listeners := m.errorListeners
	m.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(err)
	}
}

func (m *Monitor) closeTransport() {
	if err := m.opener.Close(); err != nil {
		m.logger.Debug("transport close error", "error", err)
	}
}

func (m *Monitor) newSession() {
	id := uuid.NewString()
	m.sessionID.Store(id)
	m.logger.Debug("new session", "session", id)
}
