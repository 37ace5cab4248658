package qdisc

import "fmt"

// DropHead always accepts the newest packet and sheds from the front
// of the queue until the limits hold again.
type DropHead struct {
	bounded
}

func NewDropHead(packetLimit, byteLimit int) (*DropHead, error) {
	b, err := newBounded(packetLimit, byteLimit)
	if err != nil {
		return nil, fmt.Errorf("drophead: %w", err)
	}
	return &DropHead{bounded: b}, nil
}

func (q *DropHead) Enqueue(p Packet) {
	q.accept(p)

	for !q.good() {
		if _, ok := q.popFront(); !ok {
			break
		}
	}
}

func (q *DropHead) Dequeue() (Packet, bool) {
	return q.popFront()
}

func (q *DropHead) String() string {
	return "drophead [" + q.limitString() + "]"
}
