// Package shaper implements the packet-shaping disciplines of the
// emulator: the fixed-delay queue, the trace-driven link queue, the
// loss queues, and the metering pass-through. All shapers share one
// contract and are driven sequentially by a single event loop.
package shaper

// PacketSize is the delivery-opportunity size and the largest frame
// the link path accepts. 1504 bytes: the TUN MTU plus the 4 bytes of
// framing the driver prepends. Changing it breaks compatibility with
// recorded traces.
const PacketSize = 1504

// WaitForever is the WaitTime sentinel for "no timed event pending";
// the event loop then waits on I/O readiness alone.
const WaitForever = 65535

// Sink receives fully shaped frames. A frame is always handed over in
// one call, never split.
type Sink interface {
	WritePacket(frame []byte) error
}

// Shaper is the contract between a shaping discipline and the event
// loop. Methods are invoked from one goroutine and must not block.
type Shaper interface {
	// ReadPacket admits one whole frame read from the ingress side.
	ReadPacket(frame []byte) error

	// WritePackets drains every frame that is due now to the sink.
	WritePackets(sink Sink) error

	// WaitTime reports ms until the next internal event: 0 when work
	// is already due, WaitForever when no timed event is pending.
	WaitTime() uint64

	// PendingOutput reports whether WritePackets would emit anything.
	PendingOutput() bool

	// Finished reports a permanent terminal state (schedule exhausted
	// with repeat off). Most shapers never finish.
	Finished() bool
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(frame []byte) error

func (f SinkFunc) WritePacket(frame []byte) error {
	return f(frame)
}

func copyFrame(frame []byte) []byte {
	c := make([]byte, len(frame))
	copy(c, frame)
	return c
}
