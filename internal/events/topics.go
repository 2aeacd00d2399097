package events

// Topic constants for domain events emitted by the checkout engine.
const (
	TopicOrderCreated   = "order.created"
	TopicOrderCancelled = "order.cancelled"
	TopicCartCleared    = "cart.cleared"
)

var knownTopics = map[string]struct{}{
	TopicOrderCreated:   {},
	TopicOrderCancelled: {},
	TopicCartCleared:    {},
}

// Known reports whether topic is one the bus accepts.
func Known(topic string) bool {
	_, ok := knownTopics[topic]
	return ok
}
