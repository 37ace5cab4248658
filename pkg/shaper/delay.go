package shaper

import (
	"github.com/veesix-networks/linkshaper/pkg/classify"
	"github.com/veesix-networks/linkshaper/pkg/clock"
)

type delayedPacket struct {
	release  uint64
	contents []byte
}

// DelayQueue postpones every shaped packet by a fixed interval.
// Bypassed packets are stamped releasable immediately. Because the
// delay is constant, release times are monotonic in arrival order and
// a plain FIFO suffices.
type DelayQueue struct {
	delayMS    uint64
	clk        clock.Clock
	classifier *classify.Classifier
	queue      []delayedPacket
}

func NewDelayQueue(delayMS uint64, clk clock.Clock, classifier *classify.Classifier) *DelayQueue {
	return &DelayQueue{
		delayMS:    delayMS,
		clk:        clk,
		classifier: classifier,
	}
}

// ReadPacket never drops and enforces no size limit; oversize
// enforcement belongs to the link path only.
func (q *DelayQueue) ReadPacket(frame []byte) error {
	now := q.clk.Timestamp()

	release := now + q.delayMS
	if q.classifier.Classify(frame) == classify.Bypass {
		release = now
	}

	q.queue = append(q.queue, delayedPacket{release: release, contents: copyFrame(frame)})
	return nil
}

func (q *DelayQueue) WritePackets(sink Sink) error {
	now := q.clk.Timestamp()

	for len(q.queue) > 0 && q.queue[0].release <= now {
		if err := sink.WritePacket(q.queue[0].contents); err != nil {
			return err
		}
		q.queue[0] = delayedPacket{}
		q.queue = q.queue[1:]
	}
	return nil
}

func (q *DelayQueue) WaitTime() uint64 {
	if len(q.queue) == 0 {
		return WaitForever
	}

	now := q.clk.Timestamp()
	if q.queue[0].release <= now {
		return 0
	}
	return q.queue[0].release - now
}

func (q *DelayQueue) PendingOutput() bool {
	return q.WaitTime() == 0
}

func (q *DelayQueue) Finished() bool {
	return false
}
