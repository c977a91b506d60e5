package registry

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

type operation struct {
	key        Key
	register   SideEffect
	unregister SideEffect
	data       any

	values *queue[any]
	done   chan struct{}
	once   sync.Once
	err    error // outcome; nil means completed
}

func newOperation(key Key, register, unregister SideEffect, data any) *operation {
	return &operation{
		key:        key,
		register:   register,
		unregister: unregister,
		data:       data,
		values:     newQueue[any](8),
		done:       make(chan struct{}),
	}
}

// finish records the outcome once. With discard, queued values are dropped.
func (op *operation) finish(err error, discard bool) {
	op.once.Do(func() {
		op.err = err
		if discard {
			op.values.discard()
		} else {
			op.values.close()
		}
		close(op.done)
	})
}

// Handle is the caller's view of a registered operation.
type Handle struct {
	op  *operation
	reg *Registry
}

// Key returns the operation key.
func (h *Handle) Key() Key { return h.op.key }

// ID returns the operation id, 0 for singleton kinds.
func (h *Handle) ID() int64 { return h.op.key.ID }

// Data returns the caller data attached at registration.
func (h *Handle) Data() any { return h.op.data }

// Done is closed once the operation has an outcome or was cancelled.
// Values may still be queued.
func (h *Handle) Done() <-chan struct{} { return h.op.done }

// Err returns the outcome once Done is closed: nil for completion,
// ErrCancelled for cancellation, otherwise the failure.
func (h *Handle) Err() error {
	select {
	case <-h.op.done:
		return h.op.err
	default:
		return nil
	}
}

// Next returns the next value. After the last value it returns io.EOF if
// the operation completed, or the failure. It returns ctx.Err() if ctx ends
// first.
func (h *Handle) Next(ctx context.Context) (any, error) {
	v, err := h.op.values.pop(ctx)
	if err == nil {
		return v, nil
	}
	if errors.Is(err, errQueueClosed) {
		if h.op.err != nil {
			return nil, h.op.err
		}
		return nil, io.EOF
	}
	return nil, err
}

// Pending returns the number of delivered values not yet read.
func (h *Handle) Pending() int { return h.op.values.len() }

// Wait returns the first value, or ErrTimeout if none arrives in time. The
// operation stays registered after a timeout.
func (h *Handle) Wait(timeout time.Duration) (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return h.first(ctx)
}

// WaitForever is Wait without a deadline. It blocks until the terminal
// answers or the operation ends.
func (h *Handle) WaitForever() (any, error) {
	return h.first(context.Background())
}

func (h *Handle) first(ctx context.Context) (any, error) {
	v, err := h.Next(ctx)
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, io.EOF):
		return nil, ErrNoResult
	case errors.Is(err, context.DeadlineExceeded):
		return nil, ErrTimeout
	}
	return nil, err
}

// Collect gathers values until the operation completes. It returns
// ErrTimeout, with the values seen so far, if completion does not arrive
// in time.
func (h *Handle) Collect(timeout time.Duration) ([]any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var out []any
	for {
		v, err := h.Next(ctx)
		switch {
		case err == nil:
			out = append(out, v)
			continue
		case errors.Is(err, io.EOF):
			return out, nil
		case errors.Is(err, context.DeadlineExceeded):
			return out, ErrTimeout
		}
		return out, err
	}
}

// Cancel removes the operation, runs its unregister side effect if the
// session is connected, and drops any queued values. Later events for the
// key are ignored. Cancelling twice, or after the outcome, is a no-op.
func (h *Handle) Cancel() {
	h.reg.cancel(h.op)
}
