package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/tws-session/internal/registry"
)

func cast[T any](v any) (T, error) {
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: got %T, want %T", ErrUnexpectedValue, v, zero)
	}
	return t, nil
}

// Request is a pending single-result operation.
type Request[T any] struct {
	h       *registry.Handle
	timeout time.Duration
}

// ID returns the operation id, 0 for singleton kinds.
func (r *Request[T]) ID() int64 { return r.h.ID() }

// Done is closed once the request has an outcome.
func (r *Request[T]) Done() <-chan struct{} { return r.h.Done() }

// Cancel abandons the request.
func (r *Request[T]) Cancel() { r.h.Cancel() }

// Wait waits up to the session request timeout.
func (r *Request[T]) Wait() (T, error) {
	return r.WaitTimeout(r.timeout)
}

// WaitTimeout returns the result, or registry.ErrTimeout. A timed-out
// request is cancelled so the same kind can be requested again.
func (r *Request[T]) WaitTimeout(d time.Duration) (T, error) {
	v, err := r.h.Wait(d)
	if err != nil {
		if errors.Is(err, registry.ErrTimeout) {
			r.h.Cancel()
		}
		var zero T
		return zero, err
	}
	return cast[T](v)
}

// WaitForever waits without a deadline.
func (r *Request[T]) WaitForever() (T, error) {
	v, err := r.h.WaitForever()
	if err != nil {
		var zero T
		return zero, err
	}
	return cast[T](v)
}

// List is a pending operation whose result is every value delivered before
// its end marker.
type List[T any] struct {
	h       *registry.Handle
	timeout time.Duration
}

// ID returns the operation id, 0 for singleton kinds.
func (l *List[T]) ID() int64 { return l.h.ID() }

// Done is closed once the list is complete or failed.
func (l *List[T]) Done() <-chan struct{} { return l.h.Done() }

// Cancel abandons the request.
func (l *List[T]) Cancel() { l.h.Cancel() }

// Wait collects up to the session request timeout.
func (l *List[T]) Wait() ([]T, error) {
	return l.WaitTimeout(l.timeout)
}

// WaitTimeout returns the collected values. On error the values received
// so far are returned with it; on timeout the list is also cancelled.
func (l *List[T]) WaitTimeout(d time.Duration) ([]T, error) {
	values, err := l.h.Collect(d)
	if errors.Is(err, registry.ErrTimeout) {
		l.h.Cancel()
	}
	out := make([]T, 0, len(values))
	for _, v := range values {
		t, castErr := cast[T](v)
		if castErr != nil {
			return out, castErr
		}
		out = append(out, t)
	}
	return out, err
}

// Subscription is a streaming operation. It stays live across reconnects
// for kinds that resubscribe.
type Subscription[T any] struct {
	h *registry.Handle
}

// ID returns the operation id, 0 for singleton kinds.
func (s *Subscription[T]) ID() int64 { return s.h.ID() }

// Done is closed once the stream ended. Queued values can still be read
// with Next.
func (s *Subscription[T]) Done() <-chan struct{} { return s.h.Done() }

// Err returns the stream outcome once Done is closed.
func (s *Subscription[T]) Err() error { return s.h.Err() }

// Cancel stops the stream and unsubscribes at the terminal.
func (s *Subscription[T]) Cancel() { s.h.Cancel() }

// Pending returns the number of updates received but not yet read.
func (s *Subscription[T]) Pending() int { return s.h.Pending() }

// Next returns the next update. It returns io.EOF once a completed stream
// is drained, the failure for a failed one, and registry.ErrCancelled after
// Cancel.
func (s *Subscription[T]) Next(ctx context.Context) (T, error) {
	v, err := s.h.Next(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return cast[T](v)
}
