package shaper

import (
	"fmt"
	"os"

	"github.com/veesix-networks/linkshaper/pkg/clock"
)

// EnvShellPrefix, when set by the surrounding shell, is echoed into
// the log header verbatim.
const EnvShellPrefix = "MAHIMAHI_SHELL_PREFIX"

// Recorder observes link-queue events. Implementations must be cheap
// and side-effect-only; they see events in the engine's internal order
// (within one scheduling step, the opportunity precedes the departures
// it produced).
type Recorder interface {
	RecordArrival(t uint64, size int)
	RecordOpportunity(t uint64, size int)
	RecordDeparture(t uint64, size int, delayMS uint64)
	RecordDrop(t uint64, packets, bytes int)
}

// EventLog is the append-only packet log: a fixed header followed by
// one line per event, every line flushed as written. It implements
// Recorder, with write failures held sticky for the link queue to
// surface.
type EventLog struct {
	f   *os.File
	err error
}

// OpenEventLog creates (truncating) the log file and writes the
// header. The header names the link, the trace, the discipline, the
// process epoch, and the base timestamp anchoring schedule offset 0.
func OpenEventLog(path, linkName, traceFile, commandLine, queueDesc string, baseTimestamp uint64) (*EventLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%s: error opening for writing: %w", path, err)
	}

	l := &EventLog{f: f}

	l.printf("# mahimahi mm-link (%s) [%s] > %s\n", linkName, traceFile, path)
	l.printf("# command line: %s\n", commandLine)
	l.printf("# queue: %s\n", queueDesc)
	l.printf("# init timestamp: %d\n", clock.InitialTimestamp())
	l.printf("# base timestamp: %d\n", baseTimestamp)
	if prefix := os.Getenv(EnvShellPrefix); prefix != "" {
		l.printf("# mahimahi config: %s\n", prefix)
	}

	if l.err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: write header: %w", path, l.err)
	}

	return l, nil
}

func (l *EventLog) printf(format string, args ...any) {
	if l.err != nil {
		return
	}
	_, l.err = fmt.Fprintf(l.f, format, args...)
}

func (l *EventLog) RecordArrival(t uint64, size int) {
	l.printf("%d + %d\n", t, size)
}

func (l *EventLog) RecordOpportunity(t uint64, size int) {
	l.printf("%d # %d\n", t, size)
}

func (l *EventLog) RecordDeparture(t uint64, size int, delayMS uint64) {
	l.printf("%d - %d %d\n", t, size, delayMS)
}

func (l *EventLog) RecordDrop(t uint64, packets, bytes int) {
	l.printf("%d d %d %d\n", t, packets, bytes)
}

// Err returns the first write failure, if any.
func (l *EventLog) Err() error {
	return l.err
}

func (l *EventLog) Close() error {
	if err := l.f.Close(); err != nil && l.err == nil {
		l.err = err
	}
	return l.err
}
