package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/events"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/swapengine"
)

func newMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)
	return m, reg
}

func TestNew_RequiresRegistry(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestNew_DoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}

func TestHandle_Quotes(t *testing.T) {
	m, _ := newMetrics(t)
	ctx := context.Background()

	require.NoError(t, m.Handle(ctx, events.New(events.QuoteUpdated, "79", swapengine.QuotePayload{
		PriceImpact: "-0.3",
	})))
	require.NoError(t, m.Handle(ctx, events.New(events.QuoteUpdated, "79", swapengine.QuotePayload{
		PriceImpact: "9.09",
		HighImpact:  true,
	})))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.quotes.WithLabelValues("79")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.highImpact.WithLabelValues("79")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.priceImpact))
}

func TestHandle_PlansAndOutcomes(t *testing.T) {
	m, _ := newMetrics(t)
	ctx := context.Background()

	plan := &models.TransactionPlan{ID: "p1", Kind: models.PlanKindSwap}
	require.NoError(t, m.Handle(ctx, events.New(events.PlanBuilt, "79", plan)))
	require.NoError(t, m.Handle(ctx, events.New(events.SwapConfirmed, "79", nil)))
	require.NoError(t, m.Handle(ctx, events.New(events.SwapFailed, "79", nil)))
	require.NoError(t, m.Handle(ctx, events.New(events.SwapFailed, "79", nil)))
	require.NoError(t, m.Handle(ctx, events.New(events.SwapCancelled, "79", nil)))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.plans.WithLabelValues("swap")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("confirmed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.outcomes.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("cancelled")))
}

func TestHandle_Refreshes(t *testing.T) {
	m, _ := newMetrics(t)
	ctx := context.Background()

	require.NoError(t, m.Handle(ctx, events.New(events.PoolRefreshed, "79", nil)))
	require.NoError(t, m.Handle(ctx, events.New(events.PricesRefreshed, "", map[string]string{"wrap.near": "3.1"})))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.poolRefreshes.WithLabelValues("79")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.priceUpdates))
}

func TestHandle_SkipsRelayedEvents(t *testing.T) {
	m, _ := newMetrics(t)

	e := events.New(events.PoolRefreshed, "79", nil)
	e.Origin = "other-instance"
	require.NoError(t, m.Handle(context.Background(), e))

	assert.Equal(t, 0, testutil.CollectAndCount(m.poolRefreshes))
}

func TestHandle_BadPayload(t *testing.T) {
	m, _ := newMetrics(t)

	e := events.New(events.PlanBuilt, "79", nil)
	e.Data = []byte(`{"kind":`)
	assert.Error(t, m.Handle(context.Background(), e))
}

func TestAttach_CountsPublishedEvents(t *testing.T) {
	m, reg := newMetrics(t)
	bus := events.NewBus(nil, 16)
	defer func() { _ = bus.Shutdown(context.Background()) }()

	sub := m.Attach(bus)
	defer sub.Unsubscribe()

	require.NoError(t, bus.PublishSync(context.Background(), events.New(events.SwapConfirmed, "79", nil)))

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "ref_swap_plan_outcomes_total" {
			found = true
		}
	}
	assert.True(t, found)
}
