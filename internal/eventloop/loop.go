// Package eventloop drives the shapers. One goroutine multiplexes
// readiness on the two packet endpoints with a timed wait equal to the
// shapers' next wake-up, then moves whole frames: endpoint to shaper,
// shaper to the opposite endpoint. The shapers themselves never block.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/veesix-networks/linkshaper/pkg/clock"
	"github.com/veesix-networks/linkshaper/pkg/component"
	"github.com/veesix-networks/linkshaper/pkg/logger"
	"github.com/veesix-networks/linkshaper/pkg/shaper"
)

// maxFrame bounds a single endpoint read. Larger than any frame the
// link path accepts; the delay path is unbounded by contract, so give
// it headroom.
const maxFrame = 65536

// pollCap bounds the poll timeout so context cancellation is noticed
// even when both shapers report WaitForever.
const pollCap = 1000 // ms

// Endpoint is one side of the emulated link: a file that reads and
// writes whole frames (a TAP device in production, a pipe in tests).
type Endpoint interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Fd() uintptr
	Name() string
}

// FileEndpoint adapts *os.File.
type FileEndpoint struct {
	*os.File
}

// Direction is one shaping direction: frames read from Src pass
// through Shaper and exit at Dst.
type Direction struct {
	Name   string
	Src    Endpoint
	Dst    Endpoint
	Shaper shaper.Shaper
}

type fdSink struct {
	dst Endpoint
}

func (s fdSink) WritePacket(frame []byte) error {
	n, err := s.dst.Write(frame)
	if err != nil {
		return fmt.Errorf("write %s: %w", s.dst.Name(), err)
	}
	if n != len(frame) {
		return fmt.Errorf("write %s: short write %d of %d", s.dst.Name(), n, len(frame))
	}
	return nil
}

// Loop is the daemon component owning the two directions.
type Loop struct {
	*component.Base
	logger     *slog.Logger
	directions []Direction
	buf        []byte

	lastTick atomic.Uint64
	runErr   atomic.Pointer[error]
}

func New(directions []Direction) *Loop {
	return &Loop{
		Base:       component.NewBase("eventloop"),
		logger:     logger.Get(logger.EventLoop),
		directions: directions,
		buf:        make([]byte, maxFrame),
	}
}

func (l *Loop) Start(ctx context.Context) error {
	l.StartContext(ctx)
	l.Go(func() {
		if err := l.Run(l.Ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.runErr.Store(&err)
			l.logger.Error("event loop exited", "error", err)
		}
	})
	return nil
}

func (l *Loop) Stop(ctx context.Context) error {
	l.StopContext()
	return nil
}

// Err reports a fatal loop failure, if one occurred.
func (l *Loop) Err() error {
	if p := l.runErr.Load(); p != nil {
		return *p
	}
	return nil
}

// LastTick is the monotonic ms of the loop's most recent iteration;
// the watchdog reads it to confirm liveness.
func (l *Loop) LastTick() uint64 {
	return l.lastTick.Load()
}

// waitTimeout converts the shapers' wake-ups into a poll timeout.
func (l *Loop) waitTimeout() int {
	wait := uint64(shaper.WaitForever)
	for _, d := range l.directions {
		if w := d.Shaper.WaitTime(); w < wait {
			wait = w
		}
	}
	if wait > pollCap {
		return pollCap
	}
	return int(wait)
}

// Run iterates until the context is cancelled or a fatal error
// surfaces. Each iteration: wait for readiness or the next shaper
// event, drain readable endpoints into their shapers, then drain every
// shaper's due output.
func (l *Loop) Run(ctx context.Context) error {
	pollfds := make([]unix.PollFd, len(l.directions))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		for i, d := range l.directions {
			pollfds[i] = unix.PollFd{Fd: int32(d.Src.Fd()), Events: unix.POLLIN}
		}

		n, err := unix.Poll(pollfds, l.waitTimeout())
		if err != nil && !errors.Is(err, unix.EINTR) {
			return fmt.Errorf("poll: %w", err)
		}

		if n > 0 {
			for i, d := range l.directions {
				if pollfds[i].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) == 0 {
					continue
				}
				if err := l.readInto(d); err != nil {
					return err
				}
			}
		}

		for _, d := range l.directions {
			if err := d.Shaper.WritePackets(fdSink{dst: d.Dst}); err != nil {
				return fmt.Errorf("%s: %w", d.Name, err)
			}
		}

		l.lastTick.Store(clock.Timestamp())
	}
}

// readInto consumes one frame from the endpoint. Endpoint reads are
// frame-oriented: one read, one frame.
func (l *Loop) readInto(d Direction) error {
	n, err := d.Src.Read(l.buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return nil
		}
		return fmt.Errorf("read %s: %w", d.Src.Name(), err)
	}
	if n == 0 {
		return nil
	}

	if err := d.Shaper.ReadPacket(l.buf[:n]); err != nil {
		return fmt.Errorf("%s: %w", d.Name, err)
	}
	return nil
}
