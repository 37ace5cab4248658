// Package graph provides the binned time-series accumulators behind
// the live throughput and delay displays. Accumulators are
// side-effect-only observers: the shapers feed them, nothing in the
// scheduling path reads them back.
package graph

import (
	"sync"

	"github.com/veesix-networks/linkshaper/pkg/clock"
)

// BinnedSeries accumulates one value per signal per fixed-width time
// bin. When the clock crosses into a new bin, every completed bin is
// flushed to the emit callback, scaled by the configured multiplier
// (and divided by the bin width when the quantity is a rate).
type BinnedSeries struct {
	mu sync.Mutex

	clk        clock.Clock
	binWidthMS uint64
	currentBin uint64
	values     []int64

	multiplier   float64
	rateQuantity bool

	// resetValue seeds each fresh bin: 0 for summed signals, -1 for
	// max-retaining signals so an idle bin reads as "no sample".
	resetValue int64

	emit func(binEndSeconds float64, values []float64)
}

func NewBinnedSeries(clk clock.Clock, signals int, multiplier float64, rateQuantity bool,
	binWidthMS uint64, resetValue int64, emit func(float64, []float64)) *BinnedSeries {

	b := &BinnedSeries{
		clk:          clk,
		binWidthMS:   binWidthMS,
		currentBin:   clk.Timestamp() / binWidthMS,
		values:       make([]int64, signals),
		multiplier:   multiplier,
		rateQuantity: rateQuantity,
		resetValue:   resetValue,
		emit:         emit,
	}
	for i := range b.values {
		b.values[i] = resetValue
	}
	return b
}

// advance flushes every bin the clock has moved past. Callers must
// hold b.mu.
func (b *BinnedSeries) advance(now uint64) {
	nowBin := now / b.binWidthMS

	for b.currentBin < nowBin {
		if b.emit != nil {
			out := make([]float64, len(b.values))
			for i, v := range b.values {
				scaled := float64(v) * b.multiplier
				if b.rateQuantity {
					scaled /= float64(b.binWidthMS) / 1000.0
				}
				out[i] = scaled
			}
			b.emit(float64((b.currentBin+1)*b.binWidthMS)/1000.0, out)
		}
		for i := range b.values {
			b.values[i] = b.resetValue
		}
		b.currentBin++
	}
}

// AddValueNow adds amount to a summed signal in the current bin.
func (b *BinnedSeries) AddValueNow(signal int, amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(b.clk.Timestamp())

	if b.values[signal] < 0 {
		b.values[signal] = 0
	}
	b.values[signal] += int64(amount)
}

// SetMaxValueNow retains the maximum of a signal within the current bin.
func (b *BinnedSeries) SetMaxValueNow(signal int, amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(b.clk.Timestamp())

	if int64(amount) > b.values[signal] {
		b.values[signal] = int64(amount)
	}
}

// Current returns the in-progress bin's scaled estimate for each
// signal, extrapolated when the quantity is a rate. Used by the live
// display between bin boundaries.
func (b *BinnedSeries) Current() (binFraction float64, values []float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clk.Timestamp()
	b.advance(now)

	soFar := now % b.binWidthMS
	values = make([]float64, len(b.values))
	for i, v := range b.values {
		if v < 0 {
			continue
		}
		est := float64(v) * b.multiplier
		if b.rateQuantity && soFar > 0 {
			est /= float64(soFar) / 1000.0
		}
		values[i] = est
	}
	return float64(soFar) / float64(b.binWidthMS), values
}
