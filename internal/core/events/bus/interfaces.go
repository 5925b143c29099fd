package bus

import (
	"time"

	"github.com/zeusync/bigspace/internal/core/models"
)

// EventBus is a thread-safe, in-process pub/sub bus carrying world events.
//
// Key characteristics:
// - Type-based fan-out: handlers subscribe by Event.Type, or by AnyType.
// - Topics: every partition publishes on its own topic (PartitionTopic);
//   world-wide events use the default topic "".
// - Synchronous delivery in subscription order; handler errors are joined.
// - Metrics are produced only when observers are registered.
type EventBus interface {
	// Publish delivers to subscribers of event.Type in the default topic.
	Publish(event Event) error
	PublishToTopic(topic string, event Event) error

	// Subscribe registers handler in the default topic. Filters are checked
	// per event before the handler runs.
	Subscribe(eventType string, handler EventHandler, filters ...EventFilter) (Subscription, error)
	SubscribeTopic(topic, eventType string, handler EventHandler, filters ...EventFilter) (Subscription, error)
	// Unsubscribe is safe with nil.
	Unsubscribe(Subscription) error

	// CreateTopic is idempotent.
	CreateTopic(name string) error
	GetTopics() []TopicInfo

	// Observability
	AddObserver(obs Observer)
	RemoveObserver(obs Observer)
	GetMetrics() Metrics
}

// AnyType subscribes a handler to every event type of a topic.
const AnyType = "*"

// Event is an immutable message transported by the bus.
type Event struct {
	ID        string
	Type      string
	Source    string
	Timestamp time.Time

	Frame     uint64
	Partition models.PartitionID
	Entity    models.EntityID

	Data any
}

type (
	EventHandler func(event Event) error
	// EventFilter drops the event for one subscription when it returns false.
	EventFilter func(event Event) bool
)

// Subscription is a registered handler bound to a topic and event type.
type Subscription interface {
	ID() string
	Topic() string
	EventType() string
	IsActive() bool
	// Cancel de-registers the handler. Multiple calls are safe.
	Cancel() error
}

// Observer is notified about deliveries and errors. Observers should return
// quickly.
type Observer interface {
	OnPublish(topic string, event Event)
	OnDelivered(topic string, event Event, handlers int, err error, took time.Duration)
}

// Metrics is only updated while at least one observer is registered.
type Metrics struct {
	Published         uint64
	DeliveredHandlers uint64
	Errors            uint64
	Filtered          uint64
	SubscribersActive uint64
	Topics            uint64
}

type TopicInfo struct {
	Name       string
	EventTypes int
	Subs       int
}
