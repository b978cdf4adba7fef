package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/events"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/swapengine"
)

const namespace = "ref_swap"

// Subscriber is satisfied by *events.Bus
type Subscriber interface {
	Subscribe(eventType events.Type, handler events.Handler) events.Subscription
}

// Metrics turns bus events into Prometheus series
type Metrics struct {
	quotes        *prometheus.CounterVec
	highImpact    *prometheus.CounterVec
	priceImpact   prometheus.Histogram
	plans         *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
	poolRefreshes *prometheus.CounterVec
	priceUpdates  prometheus.Counter
}

// New registers the swap series on reg
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, errors.New("metrics: registry cannot be nil")
	}

	m := &Metrics{
		quotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_total",
			Help:      "Estimates served, by pool",
		}, []string{"pool"}),
		highImpact: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "high_impact_quotes_total",
			Help:      "Estimates at or above the high price impact threshold, by pool",
		}, []string{"pool"}),
		priceImpact: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_price_impact_percent",
			Help:      "Absolute price impact of served estimates, in percent",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 15, 25, 50},
		}),
		plans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_total",
			Help:      "Transaction plans built, by kind",
		}, []string{"kind"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_outcomes_total",
			Help:      "Settled plans, by final state",
		}, []string{"state"}),
		poolRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_refreshes_total",
			Help:      "Pool snapshots refreshed in the background, by pool",
		}, []string{"pool"}),
		priceUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_refreshes_total",
			Help:      "Price snapshots refreshed in the background",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.quotes, m.highImpact, m.priceImpact, m.plans, m.outcomes, m.poolRefreshes, m.priceUpdates,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Attach subscribes m to every event on bus
func (m *Metrics) Attach(bus Subscriber) events.Subscription {
	return bus.Subscribe(events.All, m)
}

// Handle implements events.Handler. Events relayed from other processes are
// counted where they originated and skipped here.
func (m *Metrics) Handle(_ context.Context, e events.Event) error {
	if e.Origin != "" {
		return nil
	}

	switch e.Type {
	case events.QuoteUpdated:
		m.quotes.WithLabelValues(e.PoolID).Inc()
		var q swapengine.QuotePayload
		if err := e.Decode(&q); err != nil {
			return err
		}
		if q.HighImpact {
			m.highImpact.WithLabelValues(e.PoolID).Inc()
		}
		if impact, err := decimal.NewFromString(q.PriceImpact); err == nil {
			f, _ := impact.Abs().Float64()
			m.priceImpact.Observe(f)
		}
	case events.PlanBuilt:
		var plan models.TransactionPlan
		if err := e.Decode(&plan); err != nil {
			return err
		}
		m.plans.WithLabelValues(string(plan.Kind)).Inc()
	case events.SwapConfirmed:
		m.outcomes.WithLabelValues(string(swapengine.StateConfirmed)).Inc()
	case events.SwapFailed:
		m.outcomes.WithLabelValues(string(swapengine.StateFailed)).Inc()
	case events.SwapCancelled:
		m.outcomes.WithLabelValues(string(swapengine.StateCancelled)).Inc()
	case events.PoolRefreshed:
		m.poolRefreshes.WithLabelValues(e.PoolID).Inc()
	case events.PricesRefreshed:
		m.priceUpdates.Inc()
	}
	return nil
}
