package graph

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/veesix-networks/linkshaper/pkg/clock"
	"github.com/veesix-networks/linkshaper/pkg/logger"
)

const defaultRedrawInterval = 100 * time.Millisecond

// Live renders a BinnedSeries as a continuously updated text readout.
// It samples the live process clock on its own goroutine, so its
// cadence is independent of packet activity and it can never perturb
// scheduling.
type Live struct {
	name    string
	yLabel  string
	labels  []string
	series  *BinnedSeries
	w       io.Writer
	logger  *slog.Logger
	stopped chan struct{}
	done    chan struct{}
	once    sync.Once
}

// LiveOptions configure one display.
type LiveOptions struct {
	Name         string
	YLabel       string
	SignalLabels []string
	Multiplier   float64
	RateQuantity bool
	BinWidthMS   uint64
	ResetValue   int64
	Writer       io.Writer
}

func NewLive(clk clock.Clock, opts LiveOptions) *Live {
	l := &Live{
		name:    opts.Name,
		yLabel:  opts.YLabel,
		labels:  opts.SignalLabels,
		w:       opts.Writer,
		logger:  logger.Get(logger.Graph),
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
	l.series = NewBinnedSeries(clk, len(opts.SignalLabels), opts.Multiplier,
		opts.RateQuantity, opts.BinWidthMS, opts.ResetValue, nil)

	go l.animationLoop()

	return l
}

// Series exposes the accumulator the shapers feed.
func (l *Live) Series() *BinnedSeries {
	return l.series
}

func (l *Live) animationLoop() {
	defer close(l.done)

	ticker := time.NewTicker(defaultRedrawInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopped:
			return
		case <-ticker.C:
			l.redraw()
		}
	}
}

func (l *Live) redraw() {
	_, values := l.series.Current()

	var sb strings.Builder
	fmt.Fprintf(&sb, "\r%s:", l.name)
	for i, label := range l.labels {
		fmt.Fprintf(&sb, "  %s=%.2f %s", label, values[i], l.yLabel)
	}

	if _, err := io.WriteString(l.w, sb.String()); err != nil {
		l.logger.Warn("redraw failed", "graph", l.name, "error", err)
	}
}

// Close halts the animation goroutine and terminates the output line.
// Safe to call more than once.
func (l *Live) Close() {
	l.once.Do(func() {
		close(l.stopped)
		<-l.done
		fmt.Fprintln(l.w)
	})
}
