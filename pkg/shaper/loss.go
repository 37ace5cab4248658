package shaper

import (
	"fmt"
	"math/rand"
)

// lossStore is the store-and-forward queue shared by the loss
// disciplines: no delay, no reordering, packets either forwarded
// immediately or gone.
type lossStore struct {
	queue [][]byte
}

func (s *lossStore) push(frame []byte) {
	s.queue = append(s.queue, copyFrame(frame))
}

func (s *lossStore) WritePackets(sink Sink) error {
	for len(s.queue) > 0 {
		if err := sink.WritePacket(s.queue[0]); err != nil {
			return err
		}
		s.queue[0] = nil
		s.queue = s.queue[1:]
	}
	return nil
}

func (s *lossStore) queueWait() uint64 {
	if len(s.queue) == 0 {
		return WaitForever
	}
	return 0
}

func (s *lossStore) PendingOutput() bool {
	return len(s.queue) > 0
}

func (s *lossStore) Finished() bool {
	return false
}

// IIDLoss drops each packet independently with a fixed probability.
type IIDLoss struct {
	lossStore
	rate float64
	rng  *rand.Rand
}

func NewIIDLoss(rate float64, seed int64) *IIDLoss {
	return &IIDLoss{
		rate: rate,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

func (q *IIDLoss) ReadPacket(frame []byte) error {
	if q.rng.Float64() >= q.rate {
		q.push(frame)
	}
	return nil
}

func (q *IIDLoss) WaitTime() uint64 {
	return q.queueWait()
}

// boundMS caps a drawn interval so a very large draw cannot overflow
// the switch-time arithmetic.
func boundMS(x float64) uint64 {
	if x > float64(1<<30) {
		return 1 << 30
	}
	return uint64(x)
}

// StochasticSwitchingLink models a link that flips between fully up
// and fully down, with exponentially distributed dwell times. Packets
// arriving while the link is down are lost.
type StochasticSwitchingLink struct {
	lossStore
	linkOn bool

	meanOnMS  float64
	meanOffMS float64

	nextSwitch uint64
	now        func() uint64
	rng        *rand.Rand
}

// NewStochasticSwitchingLink takes mean on and off durations in
// seconds, matching the operator-facing units.
func NewStochasticSwitchingLink(meanOnSeconds, meanOffSeconds float64, now func() uint64, seed int64) *StochasticSwitchingLink {
	return &StochasticSwitchingLink{
		meanOnMS:   meanOnSeconds * 1000.0,
		meanOffMS:  meanOffSeconds * 1000.0,
		nextSwitch: now(),
		now:        now,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

func (q *StochasticSwitchingLink) advanceSwitches(now uint64) {
	for q.nextSwitch <= now {
		q.linkOn = !q.linkOn
		mean := q.meanOffMS
		if q.linkOn {
			mean = q.meanOnMS
		}
		q.nextSwitch += boundMS(q.rng.ExpFloat64() * mean)
	}
}

func (q *StochasticSwitchingLink) ReadPacket(frame []byte) error {
	q.advanceSwitches(q.now())
	if q.linkOn {
		q.push(frame)
	}
	return nil
}

func (q *StochasticSwitchingLink) WaitTime() uint64 {
	now := q.now()
	q.advanceSwitches(now)

	if q.queueWait() == 0 {
		return 0
	}

	if q.nextSwitch-now > WaitForever {
		return WaitForever
	}
	return q.nextSwitch - now
}

// PeriodicSwitchingLink is the deterministic variant: fixed on and off
// intervals.
type PeriodicSwitchingLink struct {
	lossStore
	linkOn bool

	onTimeMS  uint64
	offTimeMS uint64

	nextSwitch uint64
	now        func() uint64
}

func NewPeriodicSwitchingLink(onSeconds, offSeconds float64, now func() uint64) (*PeriodicSwitchingLink, error) {
	on := boundMS(onSeconds * 1000.0)
	off := boundMS(offSeconds * 1000.0)
	if on == 0 && off == 0 {
		return nil, fmt.Errorf("on_time and off_time cannot both be zero")
	}
	return &PeriodicSwitchingLink{
		onTimeMS:   on,
		offTimeMS:  off,
		nextSwitch: now(),
		now:        now,
	}, nil
}

func (q *PeriodicSwitchingLink) advanceSwitches(now uint64) {
	for q.nextSwitch <= now {
		q.linkOn = !q.linkOn
		if q.linkOn {
			q.nextSwitch += q.onTimeMS
		} else {
			q.nextSwitch += q.offTimeMS
		}
	}
}

func (q *PeriodicSwitchingLink) ReadPacket(frame []byte) error {
	q.advanceSwitches(q.now())
	if q.linkOn {
		q.push(frame)
	}
	return nil
}

func (q *PeriodicSwitchingLink) WaitTime() uint64 {
	now := q.now()
	q.advanceSwitches(now)

	if q.queueWait() == 0 {
		return 0
	}

	if q.nextSwitch-now > WaitForever {
		return WaitForever
	}
	return q.nextSwitch - now
}
