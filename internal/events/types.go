package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type names what happened
type Type string

const (
	PoolRefreshed   Type = "pool.refreshed"
	PricesRefreshed Type = "prices.refreshed"
	QuoteUpdated    Type = "quote.updated"
	PlanBuilt       Type = "plan.built"
	SwapConfirmed   Type = "swap.confirmed"
	SwapFailed      Type = "swap.failed"
	SwapCancelled   Type = "swap.cancelled"

	// All subscribes to every type
	All Type = "*"
)

// Event is a serializable notification. Data holds a JSON payload whose shape
// depends on Type.
type Event struct {
	ID     string          `json:"id"`
	Type   Type            `json:"type"`
	Origin string          `json:"origin,omitempty"`
	PoolID string          `json:"pool_id,omitempty"`
	PlanID string          `json:"plan_id,omitempty"`
	Time   time.Time       `json:"time"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// New creates an event stamped with a fresh id and the current time.
// A payload that fails to marshal is dropped.
func New(t Type, poolID string, payload interface{}) Event {
	e := Event{
		ID:     uuid.NewString(),
		Type:   t,
		PoolID: poolID,
		Time:   time.Now(),
	}
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			e.Data = b
		}
	}
	return e
}

// Decode unmarshals the payload into v
func (e Event) Decode(v interface{}) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// Handler processes events. Should not block.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts an ordinary function to Handler
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Subscription represents a subscription to events
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	id  string
	bus *Bus
	typ Type
}

func (s *subscription) Unsubscribe() {
	s.bus.unsubscribe(s.id, s.typ)
}

// Publisher is the part of Bus producers depend on
type Publisher interface {
	Publish(event Event) error
}
