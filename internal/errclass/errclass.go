// Package errclass classifies fault notifications reported by the terminal
// and routes each one by severity.
//
// Routing:
//   - Info and Warning: logged only
//   - Operation: fails the pending operation(s) registered under the id
//   - General: reported to the session fault handler, then a reconnect is
//     requested unless the session is already shutting down
//   - Critical: a full disconnect is requested
//
// Severities come from a code table. Codes missing from the table are
// Operation faults when they carry an operation id (id >= 0) and General
// faults otherwise.
package errclass

import (
	"fmt"
	"log/slog"
)

// Severity is the class of a fault.
type Severity int

const (
	Info Severity = iota
	Warning
	Operation
	General
	Critical
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Operation:
		return "operation"
	case General:
		return "general"
	case Critical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// NoID is the id the terminal uses for faults not tied to an operation.
const NoID = -1

// Fault is a classified fault notification.
type Fault struct {
	ID       int64
	Code     int
	Message  string
	Severity Severity
}

func (f *Fault) Error() string {
	if f.ID < 0 {
		return fmt.Sprintf("terminal error %d: %s", f.Code, f.Message)
	}
	return fmt.Sprintf("terminal error %d (id %d): %s", f.Code, f.ID, f.Message)
}

// DefaultRules is the built-in code table.
var DefaultRules = map[int]Severity{
	// Market-data farm and connectivity notices.
	1102: Info, // connectivity restored, data maintained
	2104: Info, // market data farm connection OK
	2106: Info, // HMDS data farm connection OK
	2107: Info, // HMDS data farm connection inactive
	2108: Info, // market data farm connection inactive
	2119: Info, // market data farm connecting
	2158: Info, // sec-def data farm connection OK

	161:   Warning, // cancel attempted when order is not cancellable
	202:   Warning, // order cancelled
	399:   Warning, // order message warning
	2100:  Warning, // account data unsubscribed
	2103:  Warning, // market data farm broken
	2105:  Warning, // HMDS data farm broken
	2157:  Warning, // sec-def data farm broken
	10148: Warning, // cancel of an order that is already filled or cancelled

	162:   Operation, // historical data service error
	200:   Operation, // no security definition found
	201:   Operation, // order rejected
	300:   Operation, // can't find ticker id
	321:   Operation, // error validating request
	322:   Operation, // error processing request
	354:   Operation, // market data not subscribed
	366:   Operation, // no historical data query found
	10089: Operation, // additional subscription required
	10090: Operation, // part of requested market data not subscribed
	10197: Operation, // no market data during competing session

	504:  General, // not connected
	1100: General, // connectivity between terminal and server lost
	1300: General, // socket port reset

	326: Critical, // client id already in use
	502: Critical, // couldn't connect
	503: Critical, // terminal version not supported
}

// Failer fails the pending operations registered under an id.
type Failer interface {
	FailID(id int64, err error) int
}

// Controller is the part of the connection monitor the classifier drives.
type Controller interface {
	Reconnect()
	Disconnect()
	ShuttingDown() bool
}

// Observer counts classified faults.
type Observer interface {
	FaultClassified(severity string)
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithRule adds or overrides the severity of a code.
func WithRule(code int, sev Severity) Option {
	return func(c *Classifier) { c.rules[code] = sev }
}

// WithFaultHandler sets the callback for General faults.
func WithFaultHandler(fn func(*Fault)) Option {
	return func(c *Classifier) { c.onFault = fn }
}

// WithObserver sets the fault counter.
func WithObserver(o Observer) Option {
	return func(c *Classifier) { c.observer = o }
}

// Classifier routes faults. The rule table is read-only after New.
type Classifier struct {
	rules    map[int]Severity
	ops      Failer
	ctl      Controller
	logger   *slog.Logger
	onFault  func(*Fault)
	observer Observer
}

// New creates a Classifier seeded with DefaultRules.
func New(ops Failer, ctl Controller, logger *slog.Logger, opts ...Option) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Classifier{
		rules:  make(map[int]Severity, len(DefaultRules)),
		ops:    ops,
		ctl:    ctl,
		logger: logger,
	}
	for code, sev := range DefaultRules {
		c.rules[code] = sev
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the severity of a fault without acting on it.
func (c *Classifier) Classify(id int64, code int) Severity {
	sev, ok := c.rules[code]
	if !ok {
		if id >= 0 {
			return Operation
		}
		return General
	}
	// An operation fault with nothing to resolve is a session fault.
	if sev == Operation && id < 0 {
		return General
	}
	return sev
}

// Handle classifies and routes one fault notification.
func (c *Classifier) Handle(id int64, code int, message string) *Fault {
	f := &Fault{ID: id, Code: code, Message: message, Severity: c.Classify(id, code)}
	if c.observer != nil {
		c.observer.FaultClassified(f.Severity.String())
	}

	attrs := []any{"id", id, "code", code, "message", message}

	switch f.Severity {
	case Info:
		c.logger.Info("terminal notice", attrs...)

	case Warning:
		c.logger.Warn("terminal warning", attrs...)

	case Operation:
		n := c.ops.FailID(id, f)
		if n == 0 {
			c.logger.Warn("terminal error for unknown operation", attrs...)
			break
		}
		c.logger.Debug("operation failed by terminal", append(attrs, "operations", n)...)

	case General:
		if c.ctl.ShuttingDown() {
			c.logger.Debug("terminal error during shutdown ignored", attrs...)
			break
		}
		c.logger.Error("terminal session error", attrs...)
		if c.onFault != nil {
			c.onFault(f)
		}
		c.ctl.Reconnect()

	case Critical:
		c.logger.Error("terminal critical error, disconnecting", attrs...)
		c.ctl.Disconnect()
	}

	return f
}
