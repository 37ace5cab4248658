package shaper

import (
	"github.com/veesix-networks/linkshaper/pkg/events"
)

// BusRecorder bridges link drops onto the event bus. Publishing is
// buffered and non-blocking, so it is safe on the packet path; the
// high-rate arrival and opportunity events stay off the bus entirely.
type BusRecorder struct {
	Bus  events.Bus
	Link string
}

func (r BusRecorder) RecordArrival(t uint64, size int)                 {}
func (r BusRecorder) RecordOpportunity(t uint64, size int)             {}
func (r BusRecorder) RecordDeparture(t uint64, size int, delay uint64) {}

func (r BusRecorder) RecordDrop(t uint64, packets, bytes int) {
	r.Bus.Publish(events.TopicDrops, events.Event{
		Source: r.Link,
		Data: events.DropEvent{
			Link:     r.Link,
			Packets:  packets,
			Bytes:    bytes,
			AtMillis: t,
		},
	})
}
