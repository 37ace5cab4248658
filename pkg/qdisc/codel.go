package qdisc

import (
	"fmt"
	"math"

	"github.com/veesix-networks/linkshaper/pkg/clock"
)

const (
	// RFC 8289 reference values, in milliseconds.
	codelDefaultTarget   = 5
	codelDefaultInterval = 100
)

// CoDel bounds the time packets sit in the queue rather than the queue
// length. Arriving packets are always accepted (up to the hard size
// limit); shedding happens at dequeue once the sojourn time stays
// above target for a full interval.
type CoDel struct {
	bounded
	clk clock.Clock

	target   uint64
	interval uint64

	firstAboveTime uint64
	dropNext       uint64
	count          uint32
	dropping       bool
}

func NewCoDel(packetLimit, byteLimit int, target, interval uint64, clk clock.Clock) (*CoDel, error) {
	b, err := newBounded(packetLimit, byteLimit)
	if err != nil {
		return nil, fmt.Errorf("codel: %w", err)
	}
	if target == 0 {
		target = codelDefaultTarget
	}
	if interval == 0 {
		interval = codelDefaultInterval
	}
	return &CoDel{
		bounded:  b,
		clk:      clk,
		target:   target,
		interval: interval,
	}, nil
}

func (q *CoDel) Enqueue(p Packet) {
	if q.goodWith(q.bytes+len(p.Contents), len(q.queue)+1) {
		q.accept(p)
	}
}

// doDequeue pops the head and reports whether CoDel is allowed to drop
// it: only once the sojourn time has stayed above target for at least
// one interval.
func (q *CoDel) doDequeue(now uint64) (Packet, bool, bool) {
	p, ok := q.popFront()
	if !ok {
		q.firstAboveTime = 0
		return Packet{}, false, false
	}

	sojourn := now - p.ArrivalTime
	if sojourn < q.target {
		q.firstAboveTime = 0
		return p, true, false
	}

	if q.firstAboveTime == 0 {
		q.firstAboveTime = now + q.interval
		return p, true, false
	}

	return p, true, now >= q.firstAboveTime
}

func (q *CoDel) controlLaw(t uint64) uint64 {
	return t + uint64(float64(q.interval)/math.Sqrt(float64(q.count)))
}

func (q *CoDel) Dequeue() (Packet, bool) {
	now := q.clk.Timestamp()
	p, ok, okToDrop := q.doDequeue(now)
	if !ok {
		q.dropping = false
		return Packet{}, false
	}

	if q.dropping {
		if !okToDrop {
			q.dropping = false
			return p, true
		}
		for now >= q.dropNext && q.dropping {
			// shed and move on to the next candidate
			q.count++
			p, ok, okToDrop = q.doDequeue(now)
			if !ok {
				q.dropping = false
				return Packet{}, false
			}
			if !okToDrop {
				q.dropping = false
				return p, true
			}
			q.dropNext = q.controlLaw(q.dropNext)
		}
		return p, true
	}

	if okToDrop && (now-q.dropNext < q.interval || now-q.firstAboveTime >= q.interval) {
		// entering the dropping state: shed this packet and deliver
		// the next one instead
		next, nextOK, _ := q.doDequeue(now)
		q.dropping = true

		if now-q.dropNext < q.interval {
			if q.count > 2 {
				q.count -= 2
			} else {
				q.count = 1
			}
		} else {
			q.count = 1
		}
		q.dropNext = q.controlLaw(now)

		if !nextOK {
			q.dropping = false
			return Packet{}, false
		}
		return next, true
	}

	return p, true
}

func (q *CoDel) String() string {
	return fmt.Sprintf("codel [%s, target=%d, interval=%d]", q.limitString(), q.target, q.interval)
}
