package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Publisher is the narrow capability handed to services that only emit
// events. The reconciler uses it to tell interested clients that adherence
// rows changed underneath them.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// NopPublisher discards events; used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }
