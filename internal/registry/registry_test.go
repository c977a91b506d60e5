package registry

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatus struct{ connected atomic.Bool }

func (f *fakeStatus) IsConnected() bool { return f.connected.Load() }

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NextRequestID() int64 { return s.n.Add(1) }

type countingObserver struct {
	mu      sync.Mutex
	live    map[string]int
	unknown int
}

func (o *countingObserver) OperationAdded(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.live[kind]++
}

func (o *countingObserver) OperationRemoved(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.live[kind]--
}

func (o *countingObserver) UnknownEvent(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unknown++
}

func newTestRegistry(t *testing.T) (*Registry, *fakeStatus) {
	t.Helper()
	st := &fakeStatus{}
	st.connected.Store(true)
	return New(st, &seqIDs{}, nil), st
}

func noop(int64) error { return nil }

func next(t *testing.T, h *Handle) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return h.Next(ctx)
}

func TestKeyMatches(t *testing.T) {
	tests := []struct {
		name string
		a, b Key
		want bool
	}{
		{"same id", NewKey(KindMarketData, 1), NewKey(KindMarketData, 1), true},
		{"different id", NewKey(KindMarketData, 1), NewKey(KindMarketData, 2), false},
		{"different kind", NewKey(KindMarketData, 1), NewKey(KindMarketDepth, 1), false},
		{"singleton ignores id", NewKey(KindPositions, 5), NewKey(KindPositions, 9), true},
		{"absent id matches any", Key{Kind: KindMarketData}, NewKey(KindMarketData, 3), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Matches(tt.b))
			assert.Equal(t, tt.want, tt.b.Matches(tt.a))
		})
	}
}

func TestKindTable(t *testing.T) {
	assert.True(t, KindMarketData.PerInstance())
	assert.True(t, KindMarketData.Resubscribable())
	assert.False(t, KindPositions.PerInstance())
	assert.True(t, KindPositions.Resubscribable())
	assert.True(t, KindPlaceOrder.PerInstance())
	assert.False(t, KindPlaceOrder.Resubscribable())
	assert.True(t, KindPlaceOrder.SurvivesReconnect())
	assert.True(t, KindMarketDepth.SurvivesReconnect())
	assert.False(t, KindCurrentTime.SurvivesReconnect())
	assert.False(t, KindCancelOrder.SurvivesReconnect())
	assert.Equal(t, "market_data#4", NewKey(KindMarketData, 4).String())
	assert.Equal(t, "current_time", NewKey(KindCurrentTime, 4).String())
}

func TestRegister_NotConnected(t *testing.T) {
	r, st := newTestRegistry(t)
	st.connected.Store(false)

	called := false
	_, err := r.Register(KindPositions, func(int64) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, called)
}

func TestRegister_Validation(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Register(KindPositions, nil)
	assert.ErrorIs(t, err, ErrNoSideEffect)

	_, err = r.Register(Kind(99), noop)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestRegister_AllocatesID(t *testing.T) {
	r, _ := newTestRegistry(t)

	var got int64
	h, err := r.Register(KindMarketData, func(id int64) error { got = id; return nil })
	require.NoError(t, err)
	assert.Equal(t, int64(1), h.ID())
	assert.Equal(t, int64(1), got)

	h2, err := r.Register(KindMarketData, noop)
	require.NoError(t, err)
	assert.Equal(t, int64(2), h2.ID())

	single, err := r.Register(KindCurrentTime, noop)
	require.NoError(t, err)
	assert.Zero(t, single.ID(), "singletons do not consume ids")
}

func TestRegister_Duplicate(t *testing.T) {
	r, _ := newTestRegistry(t)

	first, err := r.Register(KindMarketData, noop, WithID(42))
	require.NoError(t, err)

	calls := 0
	_, err = r.Register(KindMarketData, func(int64) error { calls++; return nil }, WithID(42))
	assert.ErrorIs(t, err, ErrDuplicateOperation)
	assert.Zero(t, calls, "register side effect not run for a duplicate")

	require.NoError(t, r.OnNext(NewKey(KindMarketData, 42), "tick", MustExist()))
	v, err := next(t, first)
	require.NoError(t, err)
	assert.Equal(t, "tick", v, "first operation unaffected")

	_, err = r.Register(KindPositions, noop)
	require.NoError(t, err)
	_, err = r.Register(KindPositions, noop)
	assert.ErrorIs(t, err, ErrDuplicateOperation)
}

func TestRegister_SideEffectFailure(t *testing.T) {
	r, _ := newTestRegistry(t)
	boom := errors.New("send failed")

	_, err := r.Register(KindCurrentTime, func(int64) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, r.Len())

	_, err = r.Register(KindCurrentTime, noop)
	assert.NoError(t, err, "key is free again")
}

func TestRegister_SameKeyRace(t *testing.T) {
	r, _ := newTestRegistry(t)

	const racers = 16
	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		successes atomic.Int32
		dups      atomic.Int32
	)
	for _i := 0; _i < racers; _i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := r.Register(KindPlaceOrder, noop, WithID(7))
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrDuplicateOperation):
				dups.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(racers-1), dups.Load())
	assert.Equal(t, 1, r.Len())
}

func TestRegister_DifferentKeysDoNotBlock(t *testing.T) {
	r, _ := newTestRegistry(t)

	release := make(chan struct{})
	entered := make(chan struct{})
	go func() {
		r.Register(KindMarketData, func(int64) error {
			close(entered)
			<-release
			return nil
		}, WithID(1))
	}()
	<-entered

	done := make(chan error, 1)
	go func() {
		_, err := r.Register(KindMarketData, noop, WithID(2))
		done <- err
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("registration on another key blocked")
	}
	close(release)
}

func TestPlaceOrderEndToEnd(t *testing.T) {
	r, _ := newTestRegistry(t)

	var sent int64
	h, err := r.Register(KindPlaceOrder, func(id int64) error { sent = id; return nil }, WithID(7))
	require.NoError(t, err)
	assert.Equal(t, int64(7), sent)

	key := NewKey(KindPlaceOrder, 7)
	require.NoError(t, r.OnNext(key, "orderAck", MustExist()))
	require.NoError(t, r.OnComplete(key, MustExist()))

	v, err := next(t, h)
	require.NoError(t, err)
	assert.Equal(t, "orderAck", v)

	_, err = next(t, h)
	assert.ErrorIs(t, err, io.EOF)
	_, err = next(t, h)
	assert.ErrorIs(t, err, io.EOF, "completion is sticky")

	assert.ErrorIs(t, r.OnNext(key, "late", MustExist()), ErrUnknownOperation)
	assert.NoError(t, h.Err())
}

func TestDelivery_FIFO(t *testing.T) {
	r, _ := newTestRegistry(t)
	h, err := r.Register(KindMarketData, noop, WithID(1))
	require.NoError(t, err)

	key := h.Key()
	go func() {
		for i := 0; i < 1000; i++ {
			r.OnNext(key, i)
		}
		r.OnComplete(key)
	}()

	for i := 0; i < 1000; i++ {
		v, err := next(t, h)
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
	_, err = next(t, h)
	assert.ErrorIs(t, err, io.EOF)
}

func TestOnError_SingleOutcome(t *testing.T) {
	r, _ := newTestRegistry(t)
	h, err := r.Register(KindContractDetails, noop)
	require.NoError(t, err)

	fault := errors.New("no security definition")
	r.OnNext(h.Key(), "row")
	require.NoError(t, r.OnError(h.Key(), fault))
	assert.ErrorIs(t, r.OnNext(h.Key(), "after", MustExist()), ErrUnknownOperation)
	assert.ErrorIs(t, r.OnError(h.Key(), fault, MustExist()), ErrUnknownOperation)

	v, err := next(t, h)
	require.NoError(t, err)
	assert.Equal(t, "row", v, "values before the error are kept")

	_, err = next(t, h)
	assert.ErrorIs(t, err, fault)
	assert.ErrorIs(t, h.Err(), fault)
}

func TestOnNextAndComplete(t *testing.T) {
	r, _ := newTestRegistry(t)
	h, err := r.Register(KindCurrentTime, noop)
	require.NoError(t, err)

	// Singleton lookups ignore the id.
	require.NoError(t, r.OnNextAndComplete(NewKey(KindCurrentTime, 99), int64(1700000000), MustExist()))

	v, err := h.Wait(time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), v)
	<-h.Done()
	assert.Zero(t, r.Len())
}

func TestMiss(t *testing.T) {
	r, _ := newTestRegistry(t)
	obs := &countingObserver{live: map[string]int{}}
	r.SetObserver(obs)

	assert.NoError(t, r.OnNext(NewKey(KindMarketData, 5), "x"), "lenient miss is only logged")
	assert.ErrorIs(t, r.OnComplete(NewKey(KindMarketData, 5), MustExist()), ErrUnknownOperation)
	assert.Equal(t, 2, obs.unknown)
}

func TestCancel(t *testing.T) {
	r, st := newTestRegistry(t)
	obs := &countingObserver{live: map[string]int{}}
	r.SetObserver(obs)

	var unregistered []int64
	h, err := r.Register(KindMarketData, noop, WithID(3),
		WithUnregister(func(id int64) error { unregistered = append(unregistered, id); return nil }))
	require.NoError(t, err)
	assert.Equal(t, 1, obs.live["market_data"])

	r.OnNext(h.Key(), "queued")
	h.Cancel()
	h.Cancel()

	assert.Equal(t, []int64{3}, unregistered, "unregister runs once")
	assert.Zero(t, obs.live["market_data"])
	assert.False(t, r.Live(h.Key()))

	_, err = next(t, h)
	assert.ErrorIs(t, err, ErrCancelled, "queued values are dropped")
	assert.NoError(t, r.OnNext(h.Key(), "late"), "late events are dropped quietly")

	// Disconnected: key released but no unregister request.
	h2, err := r.Register(KindMarketData, noop, WithID(3),
		WithUnregister(func(id int64) error { unregistered = append(unregistered, id); return nil }))
	require.NoError(t, err, "key reusable after cancel")
	st.connected.Store(false)
	h2.Cancel()
	assert.Len(t, unregistered, 1)
}

func TestCancelAfterComplete(t *testing.T) {
	r, _ := newTestRegistry(t)
	calls := 0
	h, err := r.Register(KindOpenOrders, noop, WithUnregister(func(int64) error { calls++; return nil }))
	require.NoError(t, err)

	r.OnComplete(h.Key())
	h.Cancel()

	assert.Zero(t, calls)
	assert.NoError(t, h.Err())
}

func TestResubscribe(t *testing.T) {
	r, _ := newTestRegistry(t)

	var mdCalls, orderCalls atomic.Int32
	md, err := r.Register(KindMarketData, func(id int64) error {
		assert.Equal(t, int64(42), id)
		mdCalls.Add(1)
		return nil
	}, WithID(42))
	require.NoError(t, err)
	_, err = r.Register(KindPlaceOrder, func(int64) error { orderCalls.Add(1); return nil }, WithID(8))
	require.NoError(t, err)

	assert.Equal(t, 1, r.Resubscribe())
	assert.Equal(t, int32(2), mdCalls.Load(), "re-armed exactly once")
	assert.Equal(t, int32(1), orderCalls.Load(), "requests are not re-sent")

	require.NoError(t, r.OnNext(NewKey(KindMarketData, 42), "after", MustExist()))
	v, err := next(t, md)
	require.NoError(t, err)
	assert.Equal(t, "after", v, "handle survives the reconnect")
}

func TestResubscribe_Failure(t *testing.T) {
	r, _ := newTestRegistry(t)
	boom := errors.New("send failed")

	first := true
	h, err := r.Register(KindPositions, func(int64) error {
		if first {
			first = false
			return nil
		}
		return boom
	})
	require.NoError(t, err)

	assert.Zero(t, r.Resubscribe())
	_, err = next(t, h)
	assert.ErrorIs(t, err, boom)
}

func TestFailPending(t *testing.T) {
	r, _ := newTestRegistry(t)

	req, err := r.Register(KindCurrentTime, noop)
	require.NoError(t, err)
	sub, err := r.Register(KindPositions, noop)
	require.NoError(t, err)

	var placed atomic.Int32
	order, err := r.Register(KindPlaceOrder, func(int64) error {
		placed.Add(1)
		return nil
	}, WithID(100))
	require.NoError(t, err)

	assert.Equal(t, 1, r.FailPending(ErrConnectionLost))

	_, err = next(t, req)
	assert.ErrorIs(t, err, ErrConnectionLost)
	assert.True(t, r.Live(sub.Key()))
	assert.True(t, r.Live(order.Key()), "order streams outlive a dropped connection")

	// Orders are not re-sent; later status events resume the stream.
	assert.Equal(t, 1, r.Resubscribe())
	assert.Equal(t, int32(1), placed.Load())
	require.NoError(t, r.OnNext(order.Key(), "filled"))
	v, err := next(t, order)
	require.NoError(t, err)
	assert.Equal(t, "filled", v)
}

func TestHandlePending(t *testing.T) {
	r, _ := newTestRegistry(t)

	h, err := r.Register(KindPositions, noop)
	require.NoError(t, err)
	assert.Zero(t, h.Pending())

	require.NoError(t, r.OnNext(h.Key(), 1))
	require.NoError(t, r.OnNext(h.Key(), 2))
	assert.Equal(t, 2, h.Pending())

	_, err = next(t, h)
	require.NoError(t, err)
	assert.Equal(t, 1, h.Pending())
}

func TestFailID(t *testing.T) {
	r, _ := newTestRegistry(t)

	order, err := r.Register(KindPlaceOrder, noop, WithID(11))
	require.NoError(t, err)
	cancel, err := r.Register(KindCancelOrder, noop, WithID(11))
	require.NoError(t, err)
	other, err := r.Register(KindPlaceOrder, noop, WithID(12))
	require.NoError(t, err)

	fault := errors.New("order rejected")
	assert.Equal(t, 2, r.FailID(11, fault))

	_, err = next(t, order)
	assert.ErrorIs(t, err, fault)
	_, err = next(t, cancel)
	assert.ErrorIs(t, err, fault)
	assert.True(t, r.Live(other.Key()))
}

func TestCancelAll(t *testing.T) {
	r, _ := newTestRegistry(t)

	var unregistered atomic.Int32
	unreg := WithUnregister(func(int64) error { unregistered.Add(1); return nil })

	a, _ := r.Register(KindMarketData, noop, unreg)
	b, _ := r.Register(KindPositions, noop, unreg)

	assert.Equal(t, 2, r.CancelAll())
	assert.Equal(t, int32(2), unregistered.Load())
	assert.Zero(t, r.Len())
	assert.ErrorIs(t, a.Err(), ErrCancelled)
	assert.ErrorIs(t, b.Err(), ErrCancelled)
}

func TestWait(t *testing.T) {
	r, _ := newTestRegistry(t)

	h, err := r.Register(KindNextValidID, noop)
	require.NoError(t, err)
	_, err = h.Wait(10 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, r.Live(h.Key()), "timeout does not cancel")

	r.OnComplete(h.Key())
	_, err = h.Wait(time.Second)
	assert.ErrorIs(t, err, ErrNoResult)

	h2, err := r.Register(KindNextValidID, noop)
	require.NoError(t, err)
	go r.OnNextAndComplete(h2.Key(), int64(100))
	v, err := h2.WaitForever()
	require.NoError(t, err)
	assert.Equal(t, int64(100), v)
}

func TestCollect(t *testing.T) {
	r, _ := newTestRegistry(t)

	h, err := r.Register(KindExecutions, noop, WithData("filter"))
	require.NoError(t, err)
	assert.Equal(t, "filter", h.Data())

	data, ok := r.Data(h.Key())
	require.True(t, ok)
	assert.Equal(t, "filter", data)

	r.OnNext(h.Key(), "a")
	r.OnNext(h.Key(), "b")
	vals, err := h.Collect(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, []any{"a", "b"}, vals)

	r.OnNext(h.Key(), "c")
	r.OnComplete(h.Key())
	vals, err = h.Collect(time.Second)
	require.NoError(t, err)
	assert.Equal(t, []any{"c"}, vals)
}
