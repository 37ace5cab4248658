package shaper

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/veesix-networks/linkshaper/pkg/classify"
	"github.com/veesix-networks/linkshaper/pkg/clock"
	"github.com/veesix-networks/linkshaper/pkg/qdisc"
)

func writeTrace(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "link.trace")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write trace: %v", err)
	}
	return path
}

func newLink(t *testing.T, clk clock.Clock, traceContents string, queue qdisc.Queue, opts func(*LinkConfig)) *LinkQueue {
	t.Helper()

	cfg := LinkConfig{
		LinkName:  "uplink",
		TraceFile: writeTrace(t, traceContents),
		Queue:     queue,
	}
	if opts != nil {
		opts(&cfg)
	}

	q, err := NewLinkQueue(cfg, clk, noBypass(t))
	if err != nil {
		t.Fatalf("link queue: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func mustDropTail(t *testing.T, packets int) qdisc.Queue {
	t.Helper()
	q, err := qdisc.NewDropTail(packets, 0)
	if err != nil {
		t.Fatalf("droptail: %v", err)
	}
	return q
}

func TestLinkQueueFill(t *testing.T) {
	clk := clock.NewMock(0)
	q := newLink(t, clk, "10\n20\n30\n", mustDropTail(t, 10), nil)

	for i := 0; i < 3; i++ {
		if err := q.ReadPacket(testFrame(PacketSize)); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
	}

	if got := q.WaitTime(); got != 10 {
		t.Fatalf("wait at t=0: got %d, want 10", got)
	}

	sink := &captureSink{}

	clk.Set(9)
	q.WaitTime()
	q.WritePackets(sink)
	if len(sink.frames) != 0 {
		t.Fatalf("output before the first opportunity: %d frames", len(sink.frames))
	}

	clk.Set(10)
	q.WaitTime()
	q.WritePackets(sink)
	if len(sink.frames) != 1 {
		t.Fatalf("at t=10: got %d frames, want 1", len(sink.frames))
	}

	clk.Set(30)
	q.WaitTime()
	q.WritePackets(sink)
	if len(sink.frames) != 3 {
		t.Fatalf("at t=30: got %d frames, want 3", len(sink.frames))
	}

	clk.Set(31)
	if got := q.WaitTime(); got != WaitForever {
		t.Fatalf("wait after schedule end: got %d, want %d", got, WaitForever)
	}
	if !q.Finished() {
		t.Fatal("link should be finished")
	}
}

func TestLinkQueueFragmentationAcrossOpportunities(t *testing.T) {
	clk := clock.NewMock(0)
	q := newLink(t, clk, "10\n20\n", mustDropTail(t, 10), nil)

	small := testFrame(1000)
	large := testFrame(PacketSize)

	if err := q.ReadPacket(small); err != nil {
		t.Fatalf("read small: %v", err)
	}
	if err := q.ReadPacket(large); err != nil {
		t.Fatalf("read large: %v", err)
	}

	sink := &captureSink{}

	// the first opportunity carries the small frame and only part of
	// the large one
	clk.Set(10)
	q.WaitTime()
	q.WritePackets(sink)
	if len(sink.frames) != 1 {
		t.Fatalf("at t=10: got %d frames, want 1", len(sink.frames))
	}
	if !bytes.Equal(sink.frames[0], small) {
		t.Fatal("at t=10: wrong frame delivered")
	}

	clk.Set(20)
	q.WaitTime()
	q.WritePackets(sink)
	if len(sink.frames) != 2 {
		t.Fatalf("at t=20: got %d frames, want 2", len(sink.frames))
	}
	if !bytes.Equal(sink.frames[1], large) {
		t.Fatal("at t=20: large frame not delivered intact")
	}
}

func TestLinkQueueBurnedOpportunities(t *testing.T) {
	clk := clock.NewMock(0)
	q := newLink(t, clk, "10\n20\n30\n", mustDropTail(t, 10), nil)

	// idle across the first two opportunities
	clk.Set(25)
	q.WaitTime()

	if err := q.ReadPacket(testFrame(PacketSize)); err != nil {
		t.Fatalf("read: %v", err)
	}

	sink := &captureSink{}
	q.WritePackets(sink)
	if len(sink.frames) != 0 {
		t.Fatal("burned opportunities must not deliver later arrivals")
	}

	clk.Set(30)
	q.WaitTime()
	q.WritePackets(sink)
	if len(sink.frames) != 1 {
		t.Fatalf("at t=30: got %d frames, want 1", len(sink.frames))
	}
}

func TestLinkQueueRepeatWrap(t *testing.T) {
	clk := clock.NewMock(0)
	q := newLink(t, clk, "10\n", mustDropTail(t, 10), func(c *LinkConfig) {
		c.Repeat = true
	})

	// opportunities at 10, 20, 30, ...
	clk.Set(35)
	if got := q.WaitTime(); got != 5 {
		t.Fatalf("wait at t=35: got %d, want 5", got)
	}
	if q.Finished() {
		t.Fatal("repeating link must never finish")
	}

	clk.Set(1000)
	if got := q.WaitTime(); got != 10 {
		t.Fatalf("wait at t=1000: got %d, want 10", got)
	}
}

func TestLinkQueueOversizeRejected(t *testing.T) {
	clk := clock.NewMock(0)
	q := newLink(t, clk, "10\n", mustDropTail(t, 10), nil)

	if err := q.ReadPacket(testFrame(PacketSize + 1)); err == nil {
		t.Fatal("expected error for oversized frame")
	}
}

func TestLinkQueueBypass(t *testing.T) {
	clk := clock.NewMock(0)
	c, err := classify.New("10.0.0.1", "")
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}

	cfg := LinkConfig{
		LinkName:  "uplink",
		TraceFile: writeTrace(t, "1000\n"),
		Queue:     mustDropTail(t, 10),
	}
	q, err := NewLinkQueue(cfg, clk, c)
	if err != nil {
		t.Fatalf("link queue: %v", err)
	}
	defer q.Close()

	frame := ipv4Frame(t, "10.0.0.1", "192.168.1.1")
	if err := q.ReadPacket(frame); err != nil {
		t.Fatalf("read: %v", err)
	}

	if !q.PendingOutput() {
		t.Fatal("bypassed frame should be pending immediately")
	}

	sink := &captureSink{}
	q.WritePackets(sink)
	if len(sink.frames) != 1 || !bytes.Equal(sink.frames[0], frame) {
		t.Fatalf("bypassed frame not emitted unchanged")
	}
}

func TestLinkQueueDropAccounting(t *testing.T) {
	clk := clock.NewMock(0)
	logPath := filepath.Join(t.TempDir(), "uplink.log")

	q := newLink(t, clk, "10\n", mustDropTail(t, 1), func(c *LinkConfig) {
		c.LogPath = logPath
	})

	if err := q.ReadPacket(testFrame(500)); err != nil {
		t.Fatalf("read 1: %v", err)
	}
	if err := q.ReadPacket(testFrame(600)); err != nil {
		t.Fatalf("read 2: %v", err)
	}

	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}

	var dropLines []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.Contains(line, " d ") {
			dropLines = append(dropLines, line)
		}
	}

	if len(dropLines) != 1 {
		t.Fatalf("got %d drop lines, want 1:\n%s", len(dropLines), data)
	}
	if dropLines[0] != "0 d 1 600" {
		t.Fatalf("drop line: %q", dropLines[0])
	}
}

func TestLinkQueueLogFormat(t *testing.T) {
	t.Setenv(EnvShellPrefix, "test-shell")

	clk := clock.NewMock(0)
	logPath := filepath.Join(t.TempDir(), "uplink.log")

	q := newLink(t, clk, "10\n20\n", mustDropTail(t, 10), func(c *LinkConfig) {
		c.LogPath = logPath
		c.CommandLine = "linkshaperd -config test.yaml"
	})

	if err := q.ReadPacket(testFrame(1200)); err != nil {
		t.Fatalf("read: %v", err)
	}

	clk.Set(10)
	q.WaitTime()

	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")

	wantPrefixes := []string{
		"# mahimahi mm-link (uplink) [",
		"# command line: linkshaperd -config test.yaml",
		"# queue: droptail [packets=10]",
		"# init timestamp: ",
		"# base timestamp: 0",
		"# mahimahi config: test-shell",
		"0 + 1200",
		"10 # 1504",
		"10 - 1200 10",
	}

	if len(lines) != len(wantPrefixes) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(wantPrefixes), data)
	}
	for i, want := range wantPrefixes {
		if !strings.HasPrefix(lines[i], want) {
			t.Fatalf("line %d: got %q, want prefix %q", i, lines[i], want)
		}
	}
}

func TestLinkQueueOpportunityPrecedesDeparture(t *testing.T) {
	clk := clock.NewMock(0)
	logPath := filepath.Join(t.TempDir(), "uplink.log")

	q := newLink(t, clk, "10\n", mustDropTail(t, 10), func(c *LinkConfig) {
		c.LogPath = logPath
	})

	q.ReadPacket(testFrame(100))
	clk.Set(10)
	q.WaitTime()
	q.Close()

	data, _ := os.ReadFile(logPath)
	text := string(data)

	oppIdx := strings.Index(text, "10 # 1504")
	depIdx := strings.Index(text, "10 - 100 10")
	if oppIdx < 0 || depIdx < 0 {
		t.Fatalf("missing events:\n%s", text)
	}
	if oppIdx > depIdx {
		t.Fatal("opportunity must be recorded before the departure it produced")
	}
}

func TestLinkQueueCapacityConservation(t *testing.T) {
	clk := clock.NewMock(0)
	q := newLink(t, clk, "10\n20\n30\n", mustDropTail(t, 100), nil)

	// heavy backlog: far more than three opportunities can carry
	for i := 0; i < 10; i++ {
		if err := q.ReadPacket(testFrame(PacketSize)); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
	}

	clk.Set(100)
	q.WaitTime()

	sink := &captureSink{}
	q.WritePackets(sink)

	var total int
	for _, f := range sink.frames {
		total += len(f)
	}
	if total != 3*PacketSize {
		t.Fatalf("departed %d bytes, want exactly %d", total, 3*PacketSize)
	}
}

func TestLinkQueueArrivalsAfterFinishNeverDepart(t *testing.T) {
	clk := clock.NewMock(0)
	q := newLink(t, clk, "10\n", mustDropTail(t, 5), nil)

	clk.Set(50)
	q.WaitTime()
	if !q.Finished() {
		t.Fatal("link should be finished")
	}

	if err := q.ReadPacket(testFrame(100)); err != nil {
		t.Fatalf("read after finish: %v", err)
	}

	clk.Set(10000)
	if got := q.WaitTime(); got != WaitForever {
		t.Fatalf("wait: got %d, want %d", got, WaitForever)
	}

	sink := &captureSink{}
	q.WritePackets(sink)
	if len(sink.frames) != 0 {
		t.Fatal("finished link must not deliver")
	}
}
