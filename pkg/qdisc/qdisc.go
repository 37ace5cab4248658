// Package qdisc provides the pluggable packet-queue disciplines that
// sit between link-queue ingress and the delivery scheduler. A
// discipline may silently refuse or shed packets; callers detect drops
// purely by size accounting before and after Enqueue.
package qdisc

// Packet is one queued frame plus its ingress timestamp in monotonic
// milliseconds. Contents are never copied or mutated by a discipline.
type Packet struct {
	Contents    []byte
	ArrivalTime uint64
}

// Queue is the discipline contract. Implementations are not safe for
// concurrent use; the link queue owns its discipline exclusively and
// drives it from a single goroutine.
type Queue interface {
	// Enqueue offers a packet. The discipline may accept it, refuse
	// it, or shed other packets to make room.
	Enqueue(p Packet)

	// Dequeue removes and returns the next packet to serialize. ok is
	// false when the discipline has nothing deliverable.
	Dequeue() (p Packet, ok bool)

	Empty() bool
	SizePackets() int
	SizeBytes() int

	// String is a human description used in the packet log header.
	String() string
}
