// Package events defines the process-local event bus the shaping
// engine publishes to. The bus is strictly off the packet fast path:
// publishes are buffered and handlers run on their own goroutines.
package events

import "time"

type Event struct {
	ID        string
	Type      string
	Timestamp time.Time
	Source    string
	Data      any
}

type Handler func(Event)

type Subscription interface {
	Unsubscribe()
}

type TopicStats struct {
	Topic       string `json:"topic"`
	Subscribers int    `json:"subscribers"`
}

type Stats struct {
	Topics       []TopicStats `json:"topics"`
	PublishChLen int          `json:"publish-channel-length"`
	PublishChCap int          `json:"publish-channel-capacity"`
	Published    uint64       `json:"published"`
	Dropped      uint64       `json:"dropped"`
}

type Bus interface {
	Publish(topic string, event Event)
	Subscribe(topic string, handler Handler) Subscription
	SubscribeAll(handler Handler) Subscription
	Stats() Stats
	Close() error
}
