// Package watchdog runs periodic health checks over the daemon's
// moving parts and publishes state transitions on the event bus.
package watchdog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/veesix-networks/linkshaper/pkg/component"
	"github.com/veesix-networks/linkshaper/pkg/events"
	"github.com/veesix-networks/linkshaper/pkg/logger"
)

type Watchdog struct {
	*component.Base
	logger  *slog.Logger
	bus     events.Bus
	runners map[string]*targetRunner
	mu      sync.RWMutex
}

func New(bus events.Bus) *Watchdog {
	return &Watchdog{
		Base:    component.NewBase("watchdog"),
		logger:  logger.Get(logger.Watchdog),
		bus:     bus,
		runners: make(map[string]*targetRunner),
	}
}

func (w *Watchdog) Register(target Target, config RunnerConfig) {
	w.mu.Lock()
	defer w.mu.Unlock()

	name := target.Name()
	if _, exists := w.runners[name]; exists {
		w.logger.Warn("target already registered, replacing", "target", name)
	}

	w.runners[name] = newTargetRunner(target, config, w.logger, w.bus)
	w.logger.Info("registered target", "target", name, "critical", target.Critical())
}

func (w *Watchdog) Start(ctx context.Context) error {
	w.StartContext(ctx)
	w.logger.Info("starting watchdog")

	w.mu.RLock()
	defer w.mu.RUnlock()

	for _, runner := range w.runners {
		runner.start(w.Ctx)
	}

	return nil
}

func (w *Watchdog) Stop(ctx context.Context) error {
	w.logger.Info("stopping watchdog")

	w.mu.RLock()
	defer w.mu.RUnlock()

	for _, runner := range w.runners {
		runner.stop()
	}

	w.StopContext()
	return nil
}

func (w *Watchdog) GetAllStates() []StateInfo {
	w.mu.RLock()
	defer w.mu.RUnlock()

	states := make([]StateInfo, 0, len(w.runners))
	for _, runner := range w.runners {
		states = append(states, runner.getStateInfo())
	}
	return states
}

// IsReady reports whether every critical target is healthy.
func (w *Watchdog) IsReady() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	for _, runner := range w.runners {
		if runner.target.Critical() && !runner.healthy.Load() {
			return false
		}
	}
	return true
}
