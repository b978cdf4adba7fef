package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrBusClosed  = errors.New("event bus is shutting down")
	ErrBufferFull = errors.New("event channel full")
)

// Bus is an in-memory event bus. Events are dispatched in publish order by a
// single worker so consumers see invalidations in sequence.
type Bus struct {
	mu         sync.RWMutex
	handlers   map[Type]map[string]Handler
	logger     *logrus.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	eventChan  chan Event
	bufferSize int
}

// NewBus creates a new event bus and starts its dispatcher
func NewBus(logger *logrus.Logger, bufferSize int) *Bus {
	if logger == nil {
		logger = logrus.New()
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		handlers:   make(map[Type]map[string]Handler),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		eventChan:  make(chan Event, bufferSize),
		bufferSize: bufferSize,
	}

	go b.processEvents()
	return b
}

// Subscribe registers a handler for eventType, or for every type with All
func (b *Bus) Subscribe(eventType Type, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[string]Handler)
	}
	b.handlers[eventType][id] = handler

	b.logger.WithFields(logrus.Fields{
		"event_type":      eventType,
		"subscription_id": id,
	}).Debug("handler subscribed")

	return &subscription{id: id, bus: b, typ: eventType}
}

// SubscribeFunc subscribes a plain function
func (b *Bus) SubscribeFunc(eventType Type, fn func(context.Context, Event) error) Subscription {
	return b.Subscribe(eventType, HandlerFunc(fn))
}

// Publish queues event for asynchronous delivery. A full buffer drops it.
func (b *Bus) Publish(event Event) error {
	select {
	case <-b.ctx.Done():
		return ErrBusClosed
	default:
	}

	select {
	case b.eventChan <- event:
		return nil
	default:
		b.logger.WithField("event_type", event.Type).Warn("event channel full, dropping event")
		return ErrBufferFull
	}
}

// PublishSync delivers event to every matching handler before returning
func (b *Bus) PublishSync(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := make(map[string]Handler, len(b.handlers[event.Type])+len(b.handlers[All]))
	for id, h := range b.handlers[event.Type] {
		handlers[id] = h
	}
	if event.Type != All {
		for id, h := range b.handlers[All] {
			handlers[id] = h
		}
	}
	b.mu.RUnlock()

	var errs []error
	for id, h := range handlers {
		if err := h.Handle(ctx, event); err != nil {
			b.logger.WithFields(logrus.Fields{
				"event_type": event.Type,
				"handler_id": id,
			}).WithError(err).Error("handler error")
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("handlers failed: %v", errs)
	}
	return nil
}

func (b *Bus) processEvents() {
	defer close(b.done)

	for {
		select {
		case <-b.ctx.Done():
			for {
				select {
				case event := <-b.eventChan:
					_ = b.PublishSync(context.Background(), event)
				default:
					return
				}
			}
		case event := <-b.eventChan:
			_ = b.PublishSync(b.ctx, event)
		}
	}
}

func (b *Bus) unsubscribe(id string, eventType Type) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if handlers, ok := b.handlers[eventType]; ok {
		delete(handlers, id)
		if len(handlers) == 0 {
			delete(b.handlers, eventType)
		}
	}

	b.logger.WithFields(logrus.Fields{
		"event_type":      eventType,
		"subscription_id": id,
	}).Debug("handler unsubscribed")
}

// Shutdown stops accepting events, drains the queue and waits for the
// dispatcher or ctx.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.cancel()

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		b.logger.Warn("event bus shutdown timeout")
		return ctx.Err()
	}
}

// Stats returns statistics about the event bus
func (b *Bus) Stats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	counts := make(map[string]int, len(b.handlers))
	for t, hs := range b.handlers {
		counts[string(t)] = len(hs)
	}
	return map[string]interface{}{
		"buffer_size":       b.bufferSize,
		"pending_events":    len(b.eventChan),
		"handlers_per_type": counts,
	}
}
