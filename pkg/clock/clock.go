// Package clock provides the engine's monotonic millisecond time base.
// All shaping timestamps are milliseconds since a fixed process epoch
// captured at startup, so they survive wall-clock adjustments.
package clock

import "time"

var (
	epoch     = time.Now()
	epochWall = epoch.UnixMilli()
)

// Clock is the time source handed to the shapers. Production code uses
// Monotonic; tests drive a Mock.
type Clock interface {
	// Timestamp returns milliseconds elapsed since the process epoch.
	Timestamp() uint64
}

// Monotonic reads the process-wide monotonic clock.
type Monotonic struct{}

func NewMonotonic() Monotonic {
	return Monotonic{}
}

func (Monotonic) Timestamp() uint64 {
	return Timestamp()
}

// Timestamp returns milliseconds since the process epoch. time.Since
// uses the runtime's monotonic reading, never the wall clock.
func Timestamp() uint64 {
	return uint64(time.Since(epoch) / time.Millisecond)
}

// InitialTimestamp is the wall-clock instant of the process epoch in
// Unix milliseconds. It appears in log headers only; nothing in the
// engine schedules against it.
func InitialTimestamp() int64 {
	return epochWall
}
