package qdisc

import (
	"testing"

	"github.com/veesix-networks/linkshaper/pkg/clock"
)

func TestCoDelDeliversBelowTarget(t *testing.T) {
	clk := clock.NewMock(0)
	q, err := NewCoDel(100, 0, 5, 100, clk)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	q.Enqueue(pkt(100, clk.Timestamp()))
	clk.Advance(2) // under target

	p, ok := q.Dequeue()
	if !ok {
		t.Fatal("expected a packet")
	}
	if p.ArrivalTime != 0 {
		t.Fatalf("got arrival %d, want 0", p.ArrivalTime)
	}
	if q.dropping {
		t.Fatal("should not be dropping under target")
	}
}

func TestCoDelNoDropOnTransientQueue(t *testing.T) {
	clk := clock.NewMock(0)
	q, err := NewCoDel(100, 0, 5, 100, clk)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	q.Enqueue(pkt(100, 0))
	q.Enqueue(pkt(100, 0))

	// above target but drains well inside one interval
	clk.Advance(10)

	p, ok := q.Dequeue()
	if !ok || p.ArrivalTime != 0 {
		t.Fatal("expected first packet")
	}

	clk.Advance(20)

	if _, ok := q.Dequeue(); !ok {
		t.Fatal("expected second packet")
	}
	if q.dropping {
		t.Fatal("transient queue must not enter the drop state")
	}
}

func TestCoDelDropsPersistentBadQueue(t *testing.T) {
	clk := clock.NewMock(0)
	q, err := NewCoDel(100, 0, 5, 100, clk)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 4; i++ {
		q.Enqueue(Packet{Contents: []byte{byte(i)}, ArrivalTime: clk.Timestamp()})
	}

	// sojourn builds past the target
	clk.Advance(300)

	p, ok := q.Dequeue()
	if !ok || p.Contents[0] != 0 {
		t.Fatalf("first dequeue: got %v, want packet 0", p.Contents)
	}
	if q.dropping {
		t.Fatal("must not drop before the delay persists a full interval")
	}

	// still bad a full interval later
	clk.Advance(200)

	p, ok = q.Dequeue()
	if !ok {
		t.Fatal("expected a packet once dropping starts")
	}
	if p.Contents[0] != 2 {
		t.Fatalf("persistent queue should shed packet 1, delivered %d", p.Contents[0])
	}
	if !q.dropping {
		t.Fatal("persistently bad queue should enter the drop state")
	}
}

func TestCoDelEmptyQueueResets(t *testing.T) {
	clk := clock.NewMock(0)
	q, err := NewCoDel(100, 0, 5, 100, clk)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := q.Dequeue(); ok {
		t.Fatal("empty queue returned a packet")
	}
	if q.dropping {
		t.Fatal("empty queue cannot be in the drop state")
	}
}

func TestRegistrySelection(t *testing.T) {
	clk := clock.NewMock(0)

	q, err := New("droptail", map[string]string{"packets": "10"}, clk)
	if err != nil {
		t.Fatalf("droptail: %v", err)
	}
	if _, ok := q.(*DropTail); !ok {
		t.Fatalf("got %T, want *DropTail", q)
	}

	q, err = New("codel", map[string]string{"packets": "100"}, clk)
	if err != nil {
		t.Fatalf("codel: %v", err)
	}
	if got := q.String(); got != "codel [packets=100, target=5, interval=100]" {
		t.Fatalf("codel string: %q", got)
	}

	if _, err := New("red", nil, clk); err == nil {
		t.Fatal("expected error for unknown discipline")
	}

	if _, err := New("droptail", map[string]string{"packets": "x"}, clk); err == nil {
		t.Fatal("expected error for malformed argument")
	}
}
