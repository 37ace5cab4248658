// Package targets holds the concrete watchdog targets.
package targets

import (
	"fmt"

	"github.com/veesix-networks/linkshaper/internal/eventloop"
	"github.com/veesix-networks/linkshaper/internal/watchdog"
	"github.com/veesix-networks/linkshaper/pkg/clock"
)

// staleAfterMS is how long the event loop may go without an iteration
// before it counts as stalled. Generous: an idle loop still wakes at
// its poll cap.
const staleAfterMS = 5000

// Engine watches the event loop: it must keep ticking, and a fatal
// loop error is an immediate failure.
type Engine struct {
	loop *eventloop.Loop
}

func NewEngine(loop *eventloop.Loop) *Engine {
	return &Engine{loop: loop}
}

func (e *Engine) Name() string {
	return "engine"
}

func (e *Engine) Critical() bool {
	return true
}

func (e *Engine) Check() *watchdog.HealthResult {
	if err := e.loop.Err(); err != nil {
		return watchdog.NewHealthResult(false, err.Error())
	}

	now := clock.Timestamp()
	last := e.loop.LastTick()
	if last == 0 {
		// not started yet
		return watchdog.NewHealthResult(true, "starting")
	}
	if now-last > staleAfterMS {
		return watchdog.NewHealthResult(false,
			fmt.Sprintf("event loop stalled for %d ms", now-last))
	}

	return watchdog.NewHealthResult(true, "")
}
