package messaging

import (
	"context"
)

// Vendor represents the name of a messaging vendor
type Vendor string

// Queue represents an abstract message queue for any payload type. The
// dispatch pipeline uses one queue per device as its durable command channel.
type Queue[T any] interface {
	// Publish adds a new message with payload to the queue
	Publish(ctx context.Context, t *T) error

	// Consume retrieves a single message from the queue
	Consume(ctx context.Context) (Message[T], error)
}

// Message represents a message retrieved from a queue
type Message[T any] interface {
	// T returns the payload of this message
	T() *T

	// Ack acknowledges successful processing of this message
	Ack() error

	// Nack indicates failure in processing this message
	Nack(err error) error
}

// OrderedList is a per-key ordered list – the per-device priority queue the
// dispatch service pushes packages onto. Implementations guarantee atomicity
// of individual Push/Remove/Pop calls only; no cross-call locking is assumed.
type OrderedList[T any] interface {
	// Push appends t to key's list; head inserts at the front.
	Push(ctx context.Context, key string, t *T, head bool) error

	// Pop removes and returns the first element, or nil when empty.
	Pop(ctx context.Context, key string) (*T, error)

	// Remove deletes the first element matching the predicate and reports
	// whether one was found.
	Remove(ctx context.Context, key string, match func(*T) bool) (bool, error)

	// Items returns a snapshot of key's list in order.
	Items(ctx context.Context, key string) ([]*T, error)
}

// QueueConfig defines standard configuration options for queue implementations
type QueueConfig struct {
	// MaxRetries specifies how many times a message can be retried
	MaxRetries int

	// RetryDelay specifies the time to wait before retrying a failed message
	RetryDelay int

	// VisibilityTimeout specifies how long a message is considered in-flight
	VisibilityTimeout int

	// AdditionalConfig allows implementation-specific configurations
	AdditionalConfig map[string]interface{}
}
