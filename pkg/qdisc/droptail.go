package qdisc

import "fmt"

// DropTail refuses arriving packets once either limit is reached.
type DropTail struct {
	bounded
}

func NewDropTail(packetLimit, byteLimit int) (*DropTail, error) {
	b, err := newBounded(packetLimit, byteLimit)
	if err != nil {
		return nil, fmt.Errorf("droptail: %w", err)
	}
	return &DropTail{bounded: b}, nil
}

func (q *DropTail) Enqueue(p Packet) {
	if q.goodWith(q.bytes+len(p.Contents), len(q.queue)+1) {
		q.accept(p)
	}
}

func (q *DropTail) Dequeue() (Packet, bool) {
	return q.popFront()
}

func (q *DropTail) String() string {
	return "droptail [" + q.limitString() + "]"
}
