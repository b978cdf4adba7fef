package events

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestBus_DeliversInOrder(t *testing.T) {
	bus := NewBus(quietLogger(), 16)

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	bus.SubscribeFunc(PoolRefreshed, func(ctx context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.PoolID)
		if len(got) == 3 {
			close(done)
		}
		return nil
	})

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, bus.Publish(New(PoolRefreshed, id, nil)))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("events not delivered")
	}
	mu.Lock()
	assert.Equal(t, []string{"1", "2", "3"}, got)
	mu.Unlock()

	require.NoError(t, bus.Shutdown(context.Background()))
	assert.ErrorIs(t, bus.Publish(New(PoolRefreshed, "4", nil)), ErrBusClosed)
}

func TestBus_WildcardAndUnsubscribe(t *testing.T) {
	bus := NewBus(quietLogger(), 16)
	defer func() { _ = bus.Shutdown(context.Background()) }()

	var all, typed int
	sub := bus.SubscribeFunc(SwapFailed, func(ctx context.Context, e Event) error {
		typed++
		return nil
	})
	bus.SubscribeFunc(All, func(ctx context.Context, e Event) error {
		all++
		return nil
	})

	require.NoError(t, bus.PublishSync(context.Background(), New(SwapFailed, "", nil)))
	require.NoError(t, bus.PublishSync(context.Background(), New(PlanBuilt, "", nil)))
	sub.Unsubscribe()
	require.NoError(t, bus.PublishSync(context.Background(), New(SwapFailed, "", nil)))

	assert.Equal(t, 1, typed)
	assert.Equal(t, 3, all)
}

func TestBus_HandlerErrorsReported(t *testing.T) {
	bus := NewBus(quietLogger(), 4)
	defer func() { _ = bus.Shutdown(context.Background()) }()

	bus.SubscribeFunc(QuoteUpdated, func(ctx context.Context, e Event) error {
		return errors.New("boom")
	})
	assert.Error(t, bus.PublishSync(context.Background(), New(QuoteUpdated, "", nil)))
}

func TestBus_DropsWhenFull(t *testing.T) {
	bus := NewBus(quietLogger(), 1)
	defer func() { _ = bus.Shutdown(context.Background()) }()

	block := make(chan struct{})
	defer close(block)
	bus.SubscribeFunc(PlanBuilt, func(ctx context.Context, e Event) error {
		<-block
		return nil
	})

	var dropped bool
	for i := 0; i < 10; i++ {
		if errors.Is(bus.Publish(New(PlanBuilt, "", nil)), ErrBufferFull) {
			dropped = true
			break
		}
	}
	assert.True(t, dropped)
}

func TestEvent_PayloadRoundTrip(t *testing.T) {
	e := New(PricesRefreshed, "79", map[string]string{"wrap.near": "3.41"})
	var out map[string]string
	require.NoError(t, e.Decode(&out))
	assert.Equal(t, "3.41", out["wrap.near"])
	assert.NotEmpty(t, e.ID)
}
