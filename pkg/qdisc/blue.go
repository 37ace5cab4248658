package qdisc

import (
	"fmt"
	"math/rand"
)

const (
	blueDefaultIncrement  = 0.0025
	blueDefaultDecrement  = 0.00025
	blueDefaultFreezeTime = 100 // ms
)

// Blue keeps a single marking probability: raised each time the queue
// overflows, lowered each time it runs empty, with updates rate-limited
// by a freeze interval. Arriving packets are dropped with the current
// probability.
type Blue struct {
	bounded

	markP      float64
	increment  float64
	decrement  float64
	freezeTime uint64
	lastUpdate uint64

	rng *rand.Rand
}

func NewBlue(packetLimit, byteLimit int, seed int64) (*Blue, error) {
	b, err := newBounded(packetLimit, byteLimit)
	if err != nil {
		return nil, fmt.Errorf("blue: %w", err)
	}
	return &Blue{
		bounded:    b,
		increment:  blueDefaultIncrement,
		decrement:  blueDefaultDecrement,
		freezeTime: blueDefaultFreezeTime,
		rng:        rand.New(rand.NewSource(seed)),
	}, nil
}

func (q *Blue) Enqueue(p Packet) {
	now := p.ArrivalTime

	if !q.goodWith(q.bytes+len(p.Contents), len(q.queue)+1) {
		q.onOverflow(now)
		return
	}

	if q.markP > 0 && q.rng.Float64() < q.markP {
		return
	}

	q.accept(p)
}

func (q *Blue) Dequeue() (Packet, bool) {
	p, ok := q.popFront()
	if ok && len(q.queue) == 0 {
		q.onIdle(p.ArrivalTime)
	}
	return p, ok
}

func (q *Blue) onOverflow(now uint64) {
	if now-q.lastUpdate < q.freezeTime {
		return
	}
	q.markP += q.increment
	if q.markP > 1 {
		q.markP = 1
	}
	q.lastUpdate = now
}

func (q *Blue) onIdle(now uint64) {
	if now-q.lastUpdate < q.freezeTime {
		return
	}
	q.markP -= q.decrement
	if q.markP < 0 {
		q.markP = 0
	}
	q.lastUpdate = now
}

func (q *Blue) String() string {
	return fmt.Sprintf("blue [%s, increment=%g, decrement=%g]", q.limitString(), q.increment, q.decrement)
}
