package graph

import (
	"testing"

	"github.com/veesix-networks/linkshaper/pkg/clock"
)

func TestBinnedSeriesSumsWithinBin(t *testing.T) {
	clk := clock.NewMock(0)

	var flushedAt []float64
	var flushed [][]float64
	b := NewBinnedSeries(clk, 1, 1, false, 500, 0, func(at float64, vals []float64) {
		flushedAt = append(flushedAt, at)
		flushed = append(flushed, append([]float64(nil), vals...))
	})

	b.AddValueNow(0, 100)
	b.AddValueNow(0, 200)

	if len(flushed) != 0 {
		t.Fatalf("flushed before the bin closed: %d", len(flushed))
	}

	clk.Advance(500)
	b.AddValueNow(0, 50)

	if len(flushed) != 1 {
		t.Fatalf("got %d flushes, want 1", len(flushed))
	}
	if flushedAt[0] != 0.5 {
		t.Fatalf("flush time: got %v, want 0.5", flushedAt[0])
	}
	if flushed[0][0] != 300 {
		t.Fatalf("flushed value: got %v, want 300", flushed[0][0])
	}
}

func TestBinnedSeriesRateScaling(t *testing.T) {
	clk := clock.NewMock(0)

	var got float64
	// Mbps out of bytes: the throughput graph's configuration
	b := NewBinnedSeries(clk, 1, 8.0/1000000.0, true, 500, 0, func(_ float64, vals []float64) {
		got = vals[0]
	})

	// 62500 bytes in half a second = 1 Mbps
	b.AddValueNow(0, 62500)
	clk.Advance(500)
	b.AddValueNow(0, 1)

	if got < 0.999 || got > 1.001 {
		t.Fatalf("rate: got %v Mbps, want 1", got)
	}
}

func TestBinnedSeriesMaxRetention(t *testing.T) {
	clk := clock.NewMock(0)

	var flushed [][]float64
	b := NewBinnedSeries(clk, 1, 1, false, 250, -1, func(_ float64, vals []float64) {
		flushed = append(flushed, append([]float64(nil), vals...))
	})

	b.SetMaxValueNow(0, 10)
	b.SetMaxValueNow(0, 40)
	b.SetMaxValueNow(0, 25)

	clk.Advance(250)
	b.SetMaxValueNow(0, 1)

	if len(flushed) != 1 {
		t.Fatalf("got %d flushes, want 1", len(flushed))
	}
	if flushed[0][0] != 40 {
		t.Fatalf("max: got %v, want 40", flushed[0][0])
	}
}

func TestBinnedSeriesSkippedBinsFlushEmpty(t *testing.T) {
	clk := clock.NewMock(0)

	var count int
	b := NewBinnedSeries(clk, 1, 1, false, 100, 0, func(_ float64, _ []float64) {
		count++
	})

	b.AddValueNow(0, 1)
	clk.Advance(350)
	b.AddValueNow(0, 1)

	// bins [0,100), [100,200), [200,300) have all closed
	if count != 3 {
		t.Fatalf("got %d flushes, want 3", count)
	}
}

func TestBinnedSeriesCurrentEstimate(t *testing.T) {
	clk := clock.NewMock(0)

	b := NewBinnedSeries(clk, 1, 1, true, 500, 0, nil)

	b.AddValueNow(0, 100)
	clk.Advance(250)

	frac, vals := b.Current()
	if frac != 0.5 {
		t.Fatalf("bin fraction: got %v, want 0.5", frac)
	}
	// 100 units over 0.25 s extrapolates to 400/s
	if vals[0] != 400 {
		t.Fatalf("estimate: got %v, want 400", vals[0])
	}
}
