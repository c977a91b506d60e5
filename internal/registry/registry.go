// Package registry correlates keyed operations with the inbound events that
// resolve them.
//
// An operation is registered under a Key (kind plus optional id). The
// registry invokes the caller's register side effect, usually a transport
// send, and returns a Handle. Inbound events are delivered to the matching
// operation with OnNext, OnComplete, OnError and OnNextAndComplete; the
// handle yields the values in delivery order followed by exactly one
// outcome.
//
// After a reconnect, Resubscribe re-invokes the register side effect of every
// live subscription under its original key, so handles stay valid across
// the reconnect.
package registry

import (
	"fmt"
	"log/slog"
	"sync"
)

// Registry is safe for concurrent use. Operations on different keys never
// contend; registration on one key is atomic.
type Registry struct {
	status   StatusSource
	ids      IDSource
	logger   *slog.Logger
	observer Observer

	ops sync.Map // Key -> *operation
}

// New creates a Registry. status gates registration and unregistration;
// ids allocates ids for per-instance kinds registered without one.
func New(status StatusSource, ids IDSource, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		status:   status,
		ids:      ids,
		logger:   logger,
		observer: nopObserver{},
	}
}

// SetObserver installs an observer for operation counts. Call before use.
func (r *Registry) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	r.observer = o
}

// Option configures a registration.
type Option func(*registerOptions)

type registerOptions struct {
	id         int64
	hasID      bool
	unregister SideEffect
	data       any
}

// WithID registers under an explicit id instead of allocating one.
func WithID(id int64) Option {
	return func(o *registerOptions) {
		o.id = id
		o.hasID = true
	}
}

// WithUnregister sets the side effect run when the handle is cancelled.
func WithUnregister(fn SideEffect) Option {
	return func(o *registerOptions) { o.unregister = fn }
}

// WithData attaches caller data, retrievable through Data and Handle.Data.
func WithData(data any) Option {
	return func(o *registerOptions) { o.data = data }
}

// Register creates an operation of the given kind and invokes register for
// it. It does not wait for any result.
func (r *Registry) Register(kind Kind, register SideEffect, opts ...Option) (*Handle, error) {
	if register == nil {
		return nil, ErrNoSideEffect
	}
	if !kind.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(kind))
	}
	if !r.status.IsConnected() {
		return nil, ErrNotConnected
	}

	var o registerOptions
	for _, opt := range opts {
		opt(&o)
	}

	id := o.id
	if kind.PerInstance() && !o.hasID {
		id = r.ids.NextRequestID()
	}
	key := NewKey(kind, id)

	op := newOperation(key, register, o.unregister, o.data)
	if _, loaded := r.ops.LoadOrStore(key, op); loaded {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateOperation, key)
	}
	r.observer.OperationAdded(kind.String())

	if err := register(key.ID); err != nil {
		if r.detach(op) {
			op.finish(err, true)
		}
		return nil, fmt.Errorf("register %s: %w", key, err)
	}

	r.logger.Debug("operation registered", "key", key)
	return &Handle{op: op, reg: r}, nil
}

// -----------------------------------------------------------------------------
// Delivery
// -----------------------------------------------------------------------------

// DeliverOption configures a delivery.
type DeliverOption func(*deliverOptions)

type deliverOptions struct {
	mustExist bool
}

// MustExist makes a delivery to a missing operation return
// ErrUnknownOperation instead of only being logged.
func MustExist() DeliverOption {
	return func(o *deliverOptions) { o.mustExist = true }
}

// OnNext delivers a value to the operation matching key.
func (r *Registry) OnNext(key Key, v any, opts ...DeliverOption) error {
	op, ok := r.find(key)
	if !ok || !op.values.push(v) {
		return r.miss(key, "next", opts)
	}
	return nil
}

// OnComplete completes the operation matching key.
func (r *Registry) OnComplete(key Key, opts ...DeliverOption) error {
	op, ok := r.find(key)
	if !ok || !r.detach(op) {
		return r.miss(key, "complete", opts)
	}
	op.finish(nil, false)
	return nil
}

// OnError fails the operation matching key.
func (r *Registry) OnError(key Key, err error, opts ...DeliverOption) error {
	op, ok := r.find(key)
	if !ok || !r.detach(op) {
		return r.miss(key, "error", opts)
	}
	op.finish(err, false)
	return nil
}

// OnNextAndComplete delivers a final value and completes the operation.
func (r *Registry) OnNextAndComplete(key Key, v any, opts ...DeliverOption) error {
	op, ok := r.find(key)
	if !ok || !r.detach(op) {
		return r.miss(key, "next_and_complete", opts)
	}
	op.values.push(v)
	op.finish(nil, false)
	return nil
}

// FailID fails every live per-instance operation registered under id and
// returns how many there were.
func (r *Registry) FailID(id int64, err error) int {
	n := 0
	r.ops.Range(func(_, v any) bool {
		op := v.(*operation)
		if op.key.HasID && op.key.ID == id && r.detach(op) {
			op.finish(err, false)
			n++
		}
		return true
	})
	return n
}

func (r *Registry) miss(key Key, what string, opts []DeliverOption) error {
	var o deliverOptions
	for _, opt := range opts {
		opt(&o)
	}
	r.observer.UnknownEvent(key.Kind.String())
	if o.mustExist {
		return fmt.Errorf("%w: %s for %s", ErrUnknownOperation, what, key)
	}
	r.logger.Debug("event for unregistered operation", "key", key, "event", what)
	return nil
}

// -----------------------------------------------------------------------------
// Queries
// -----------------------------------------------------------------------------

// Live reports whether an operation matching key is registered.
func (r *Registry) Live(key Key) bool {
	_, ok := r.find(key)
	return ok
}

// Data returns the caller data of the operation matching key.
func (r *Registry) Data(key Key) (any, bool) {
	op, ok := r.find(key)
	if !ok {
		return nil, false
	}
	return op.data, true
}

// Len returns the number of live operations.
func (r *Registry) Len() int {
	n := 0
	r.ops.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// find resolves key under the matching rule. A per-instance key without an
// id matches any operation of that kind.
func (r *Registry) find(key Key) (*operation, bool) {
	if key.HasID || !key.Kind.PerInstance() {
		v, ok := r.ops.Load(NewKey(key.Kind, key.ID))
		if !ok {
			return nil, false
		}
		return v.(*operation), true
	}

	var found *operation
	r.ops.Range(func(k, v any) bool {
		if key.Matches(k.(Key)) {
			found = v.(*operation)
			return false
		}
		return true
	})
	return found, found != nil
}

// detach removes op if it is still the live operation for its key.
func (r *Registry) detach(op *operation) bool {
	if !r.ops.CompareAndDelete(op.key, op) {
		return false
	}
	r.observer.OperationRemoved(op.key.Kind.String())
	return true
}

// -----------------------------------------------------------------------------
// Connection changes
// -----------------------------------------------------------------------------

// Resubscribe re-invokes the register side effect of every live
// resubscribable operation, keeping keys and handles. An operation whose
// side effect fails is failed with that error. Returns the number re-armed.
func (r *Registry) Resubscribe() int {
	n := 0
	r.ops.Range(func(_, v any) bool {
		op := v.(*operation)
		if !op.key.Kind.Resubscribable() {
			return true
		}
		if err := op.register(op.key.ID); err != nil {
			r.logger.Warn("resubscribe failed", "key", op.key, "error", err)
			if r.detach(op) {
				op.finish(fmt.Errorf("resubscribe %s: %w", op.key, err), false)
			}
			return true
		}
		n++
		return true
	})
	if n > 0 {
		r.logger.Info("operations resubscribed", "count", n)
	}
	return n
}

// FailPending fails every live operation that cannot survive a reconnect.
func (r *Registry) FailPending(err error) int {
	n := 0
	r.ops.Range(func(_, v any) bool {
		op := v.(*operation)
		if !op.key.Kind.SurvivesReconnect() && r.detach(op) {
			op.finish(err, false)
			n++
		}
		return true
	})
	if n > 0 {
		r.logger.Info("pending operations failed", "count", n, "error", err)
	}
	return n
}

// CancelAll cancels every live operation as if its handle were cancelled.
func (r *Registry) CancelAll() int {
	n := 0
	r.ops.Range(func(_, v any) bool {
		if r.cancel(v.(*operation)) {
			n++
		}
		return true
	})
	if n > 0 {
		r.logger.Info("operations cancelled", "count", n)
	}
	return n
}

func (r *Registry) cancel(op *operation) bool {
	if !r.detach(op) {
		return false
	}
	if op.unregister != nil && r.status.IsConnected() {
		if err := op.unregister(op.key.ID); err != nil {
			r.logger.Warn("unregister failed", "key", op.key, "error", err)
		}
	}
	op.finish(ErrCancelled, true)
	r.logger.Debug("operation cancelled", "key", op.key)
	return true
}

type nopObserver struct{}

func (nopObserver) OperationAdded(string)   {}
func (nopObserver) OperationRemoved(string) {}
func (nopObserver) UnknownEvent(string)     {}
