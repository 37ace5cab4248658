package shaper

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/veesix-networks/linkshaper/pkg/classify"
	"github.com/veesix-networks/linkshaper/pkg/clock"
	"github.com/veesix-networks/linkshaper/pkg/graph"
	"github.com/veesix-networks/linkshaper/pkg/logger"
	"github.com/veesix-networks/linkshaper/pkg/qdisc"
	"github.com/veesix-networks/linkshaper/pkg/trace"
)

// neverDeliver is the next-delivery time of a finished link.
const neverDeliver = math.MaxUint64

// Throughput graph signal indices.
const (
	sigArrival = iota
	sigOpportunity
	sigDeparture
)

// LinkConfig describes one emulated link direction.
type LinkConfig struct {
	LinkName  string
	TraceFile string

	// LogPath enables the packet event log when nonempty.
	LogPath     string
	CommandLine string

	// Repeat restarts the schedule when it ends instead of finishing
	// the link.
	Repeat bool

	GraphThroughput bool
	GraphDelay      bool
	// GraphWriter receives the live graph output; defaults to stderr.
	GraphWriter io.Writer

	// Queue is the discipline between ingress and the scheduler.
	Queue qdisc.Queue
}

// LinkQueue emulates a variable-capacity link. Delivery opportunities
// of PacketSize bytes occur at the trace's millisecond offsets,
// anchored at the base timestamp captured on construction. Packets are
// serialized byte-by-byte across opportunities and surface on the
// output queue only once complete.
type LinkQueue struct {
	clk        clock.Clock
	classifier *classify.Classifier
	logger     *slog.Logger

	schedule      trace.Schedule
	nextDelivery  int
	baseTimestamp uint64

	packetQueue              qdisc.Queue
	packetInTransit          qdisc.Packet
	packetInTransitBytesLeft int
	outputQueue              [][]byte

	log             *EventLog
	throughputGraph *graph.Live
	delayGraph      *graph.Live
	recorders       []Recorder

	repeat   bool
	finished bool
}

func NewLinkQueue(cfg LinkConfig, clk clock.Clock, classifier *classify.Classifier) (*LinkQueue, error) {
	if cfg.Queue == nil {
		return nil, fmt.Errorf("link %s: no queue discipline", cfg.LinkName)
	}

	schedule, err := trace.Load(cfg.TraceFile)
	if err != nil {
		return nil, err
	}

	q := &LinkQueue{
		clk:           clk,
		classifier:    classifier,
		logger:        logger.Get(logger.Link),
		schedule:      schedule,
		baseTimestamp: clk.Timestamp(),
		packetQueue:   cfg.Queue,
		repeat:        cfg.Repeat,
	}

	if cfg.LogPath != "" {
		log, err := OpenEventLog(cfg.LogPath, cfg.LinkName, cfg.TraceFile,
			cfg.CommandLine, cfg.Queue.String(), q.baseTimestamp)
		if err != nil {
			return nil, err
		}
		q.log = log
		q.recorders = append(q.recorders, log)
	}

	graphWriter := cfg.GraphWriter
	if graphWriter == nil {
		graphWriter = os.Stderr
	}

	if cfg.GraphThroughput {
		q.throughputGraph = graph.NewLive(clk, graph.LiveOptions{
			Name:         cfg.LinkName + " [" + cfg.TraceFile + "]",
			YLabel:       "Mbps",
			SignalLabels: []string{"arrivals", "capacity", "departures"},
			Multiplier:   8.0 / 1000000.0,
			RateQuantity: true,
			BinWidthMS:   500,
			ResetValue:   0,
			Writer:       graphWriter,
		})
		q.recorders = append(q.recorders, throughputRecorder{q.throughputGraph.Series()})
	}

	if cfg.GraphDelay {
		q.delayGraph = graph.NewLive(clk, graph.LiveOptions{
			Name:         cfg.LinkName + " delay [" + cfg.TraceFile + "]",
			YLabel:       "ms",
			SignalLabels: []string{"queueing delay"},
			Multiplier:   1,
			RateQuantity: false,
			BinWidthMS:   250,
			ResetValue:   -1,
			Writer:       graphWriter,
		})
		q.recorders = append(q.recorders, delayRecorder{q.delayGraph.Series()})
	}

	q.logger.Info("link up",
		"link", cfg.LinkName,
		"trace", cfg.TraceFile,
		"opportunities", len(schedule),
		"duration_ms", schedule.Duration(),
		"queue", cfg.Queue.String(),
		"repeat", cfg.Repeat,
	)

	return q, nil
}

// AddRecorder attaches an additional event observer (metrics exporter,
// event-bus bridge). Not safe after the first packet.
func (q *LinkQueue) AddRecorder(r Recorder) {
	q.recorders = append(q.recorders, r)
}

func (q *LinkQueue) recordArrival(t uint64, size int) {
	for _, r := range q.recorders {
		r.RecordArrival(t, size)
	}
}

func (q *LinkQueue) recordOpportunity(t uint64) {
	for _, r := range q.recorders {
		r.RecordOpportunity(t, PacketSize)
	}
}

func (q *LinkQueue) recordDeparture(t uint64, p qdisc.Packet) {
	for _, r := range q.recorders {
		r.RecordDeparture(t, len(p.Contents), t-p.ArrivalTime)
	}
}

func (q *LinkQueue) recordDrop(t uint64, packets, bytes int) {
	for _, r := range q.recorders {
		r.RecordDrop(t, packets, bytes)
	}
}

// ReadPacket admits one frame. Bypassed frames skip shaping entirely
// and queue straight for output. Shaped frames are accounted only
// after the link has been advanced to now, so every delivery
// opportunity preceding the arrival has already been realized.
func (q *LinkQueue) ReadPacket(frame []byte) error {
	if q.classifier.Classify(frame) == classify.Bypass {
		q.outputQueue = append(q.outputQueue, copyFrame(frame))
		return nil
	}

	now := q.clk.Timestamp()

	if len(frame) > PacketSize {
		return fmt.Errorf("packet size %d is greater than maximum %d", len(frame), PacketSize)
	}

	q.rationalize(now)

	q.recordArrival(now, len(frame))

	bytesBefore := q.packetQueue.SizeBytes()
	packetsBefore := q.packetQueue.SizePackets()

	q.packetQueue.Enqueue(qdisc.Packet{Contents: copyFrame(frame), ArrivalTime: now})

	if q.packetQueue.SizePackets() > packetsBefore+1 ||
		q.packetQueue.SizeBytes() > bytesBefore+len(frame) {
		panic("qdisc: queue grew by more than the admitted packet")
	}

	missingPackets := packetsBefore + 1 - q.packetQueue.SizePackets()
	missingBytes := bytesBefore + len(frame) - q.packetQueue.SizeBytes()
	if missingPackets > 0 || missingBytes > 0 {
		q.recordDrop(now, missingPackets, missingBytes)
	}

	if q.log != nil {
		return q.log.Err()
	}
	return nil
}

func (q *LinkQueue) nextDeliveryTime() uint64 {
	if q.finished {
		return neverDeliver
	}
	return q.schedule[q.nextDelivery] + q.baseTimestamp
}

func (q *LinkQueue) useADeliveryOpportunity() {
	q.recordOpportunity(q.nextDeliveryTime())

	q.nextDelivery = (q.nextDelivery + 1) % len(q.schedule)

	// wraparound
	if q.nextDelivery == 0 {
		if q.repeat {
			q.baseTimestamp += q.schedule.Duration()
		} else {
			q.finished = true
			q.logger.Info("trace finished", "timestamp", q.clk.Timestamp())
		}
	}
}

// rationalize advances the emulation to now, consuming every due
// delivery opportunity. Call before enqueueing an arrival and before
// reporting the wait until the next event. An opportunity with no
// queued packet is burned; idle links lose capacity.
func (q *LinkQueue) rationalize(now uint64) {
	for q.nextDeliveryTime() <= now {
		thisDeliveryTime := q.nextDeliveryTime()

		bytesLeftInThisDelivery := PacketSize
		q.useADeliveryOpportunity()

		for bytesLeftInThisDelivery > 0 {
			if q.packetInTransitBytesLeft == 0 {
				p, ok := q.packetQueue.Dequeue()
				if !ok {
					break
				}
				q.packetInTransit = p
				q.packetInTransitBytesLeft = len(p.Contents)
			}

			if q.packetInTransit.ArrivalTime > thisDeliveryTime {
				panic("link: packet departing before it arrived")
			}
			if q.packetInTransitBytesLeft > PacketSize ||
				q.packetInTransitBytesLeft > len(q.packetInTransit.Contents) {
				panic("link: in-transit byte accounting out of bounds")
			}

			amountToSend := min(bytesLeftInThisDelivery, q.packetInTransitBytesLeft)

			q.packetInTransitBytesLeft -= amountToSend
			bytesLeftInThisDelivery -= amountToSend

			if q.packetInTransitBytesLeft == 0 {
				q.recordDeparture(thisDeliveryTime, q.packetInTransit)

				q.outputQueue = append(q.outputQueue, q.packetInTransit.Contents)
				q.packetInTransit = qdisc.Packet{}
			}
		}
	}
}

// WritePackets drains fully transmitted frames to the sink in FIFO
// order, each as a single write.
func (q *LinkQueue) WritePackets(sink Sink) error {
	for len(q.outputQueue) > 0 {
		if err := sink.WritePacket(q.outputQueue[0]); err != nil {
			return err
		}
		q.outputQueue[0] = nil
		q.outputQueue = q.outputQueue[1:]
	}

	if q.log != nil {
		return q.log.Err()
	}
	return nil
}

func (q *LinkQueue) WaitTime() uint64 {
	now := q.clk.Timestamp()

	q.rationalize(now)

	next := q.nextDeliveryTime()
	if next == neverDeliver {
		return WaitForever
	}
	if next <= now {
		return 0
	}
	return next - now
}

func (q *LinkQueue) PendingOutput() bool {
	return len(q.outputQueue) > 0
}

func (q *LinkQueue) Finished() bool {
	return q.finished
}

// Close flushes and releases the log and graphs. Queued packets still
// waiting are discarded silently.
func (q *LinkQueue) Close() error {
	if q.throughputGraph != nil {
		q.throughputGraph.Close()
	}
	if q.delayGraph != nil {
		q.delayGraph.Close()
	}
	if q.log != nil {
		return q.log.Close()
	}
	return nil
}

type throughputRecorder struct {
	series *graph.BinnedSeries
}

func (r throughputRecorder) RecordArrival(t uint64, size int) {
	r.series.AddValueNow(sigArrival, uint64(size))
}

func (r throughputRecorder) RecordOpportunity(t uint64, size int) {
	r.series.AddValueNow(sigOpportunity, uint64(size))
}

func (r throughputRecorder) RecordDeparture(t uint64, size int, delayMS uint64) {
	r.series.AddValueNow(sigDeparture, uint64(size))
}

func (r throughputRecorder) RecordDrop(t uint64, packets, bytes int) {}

type delayRecorder struct {
	series *graph.BinnedSeries
}

func (r delayRecorder) RecordArrival(t uint64, size int)     {}
func (r delayRecorder) RecordOpportunity(t uint64, size int) {}

func (r delayRecorder) RecordDeparture(t uint64, size int, delayMS uint64) {
	r.series.SetMaxValueNow(0, delayMS)
}

func (r delayRecorder) RecordDrop(t uint64, packets, bytes int) {}
