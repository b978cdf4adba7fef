package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/constants"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/events"
)

// Subscriber is the part of events.Bus the bridge forwards from
type Subscriber interface {
	Subscribe(eventType events.Type, handler events.Handler) events.Subscription
}

// PubSubBridge shares bus events between processes over a Redis channel.
// Every process stamps its own origin id on outgoing events and ignores its
// own echoes; events received from peers are never forwarded again.
type PubSubBridge struct {
	client  *redis.Client
	bus     Subscriber
	origin  string
	channel string
	logger  *logrus.Logger
}

func NewPubSubBridge(client *redis.Client, bus Subscriber, logger *logrus.Logger) *PubSubBridge {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PubSubBridge{
		client:  client,
		bus:     bus,
		origin:  uuid.NewString(),
		channel: constants.PubSubChannelEvents,
		logger:  logger,
	}
}

// Origin identifies this process on the shared channel
func (p *PubSubBridge) Origin() string { return p.origin }

// Forward publishes locally raised events until ctx ends
func (p *PubSubBridge) Forward(ctx context.Context) error {
	sub := p.bus.Subscribe(events.All, events.HandlerFunc(func(hctx context.Context, e events.Event) error {
		if e.Origin != "" {
			return nil
		}
		e.Origin = p.origin
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		return p.client.Publish(ctx, p.channel, data).Err()
	}))
	defer sub.Unsubscribe()

	p.logger.WithField("channel", p.channel).Info("forwarding events")
	<-ctx.Done()
	return nil
}

// Listen republishes events from other processes on bus until ctx ends
func (p *PubSubBridge) Listen(ctx context.Context, bus events.Publisher) error {
	pubsub := p.client.Subscribe(ctx, p.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", p.channel, err)
	}
	p.logger.WithField("channel", p.channel).Info("subscribed to events")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var e events.Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				p.logger.WithError(err).Warn("error unmarshaling event")
				continue
			}
			if e.Origin == "" || e.Origin == p.origin {
				continue
			}
			if err := bus.Publish(e); err != nil {
				p.logger.WithError(err).WithField("type", e.Type).Debug("remote event dropped")
			}
		}
	}
}
