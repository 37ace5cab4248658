package watchdog

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/veesix-networks/linkshaper/pkg/events"
)

type RunnerConfig struct {
	CheckInterval    time.Duration
	FailureThreshold int
}

type targetRunner struct {
	target Target
	config RunnerConfig
	logger *slog.Logger
	bus    events.Bus

	healthy        atomic.Bool
	lastCheck      atomic.Pointer[HealthResult]
	consecFailures atomic.Int64
	totalFailures  atomic.Int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newTargetRunner(target Target, config RunnerConfig, logger *slog.Logger, bus events.Bus) *targetRunner {
	r := &targetRunner{
		target: target,
		config: config,
		logger: logger.With("target", target.Name()),
		bus:    bus,
	}
	r.healthy.Store(true)
	return r
}

func (r *targetRunner) start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx)
	}()
}

func (r *targetRunner) stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *targetRunner) run(ctx context.Context) {
	ticker := time.NewTicker(r.config.CheckInterval)
	defer ticker.Stop()

	r.doCheck()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.doCheck()
		}
	}
}

func (r *targetRunner) doCheck() {
	result := r.target.Check()
	r.lastCheck.Store(result)

	if result.Healthy {
		if r.consecFailures.Swap(0) >= int64(r.config.FailureThreshold) {
			r.transition(true, result.Detail)
		}
		return
	}

	r.totalFailures.Add(1)
	if r.consecFailures.Add(1) == int64(r.config.FailureThreshold) {
		r.transition(false, result.Detail)
	}
}

func (r *targetRunner) transition(healthy bool, detail string) {
	r.healthy.Store(healthy)

	if healthy {
		r.logger.Info("target recovered")
	} else {
		r.logger.Warn("target unhealthy", "detail", detail)
	}

	if r.bus != nil {
		r.bus.Publish(events.TopicWatchdog, events.Event{
			Source: "watchdog",
			Data: events.WatchdogEvent{
				Target:  r.target.Name(),
				Healthy: healthy,
				Detail:  detail,
			},
		})
	}
}

func (r *targetRunner) getStateInfo() StateInfo {
	info := StateInfo{
		Name:           r.target.Name(),
		Healthy:        r.healthy.Load(),
		Critical:       r.target.Critical(),
		ConsecFailures: r.consecFailures.Load(),
		TotalFailures:  r.totalFailures.Load(),
	}
	if lc := r.lastCheck.Load(); lc != nil {
		info.LastCheck = lc
	}
	return info
}
