// Package prometheus exports the shaping engine's counters over HTTP
// and mounts the watchdog's health endpoints alongside /metrics.
package prometheus

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veesix-networks/linkshaper/pkg/component"
	"github.com/veesix-networks/linkshaper/pkg/logger"
)

func init() {
	component.Register("exporter.prometheus", New)
}

type Component struct {
	*component.Base
	logger *slog.Logger
	addr   string
	server *http.Server
}

// New opts out (nil component) when monitoring is disabled in config.
func New(deps component.Dependencies) (component.Component, error) {
	cfg := deps.Config.Monitoring.Prometheus
	if !cfg.Enabled {
		return nil, nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if deps.Health != nil {
		mux.Handle("/healthz", deps.Health)
	}
	if deps.Ready != nil {
		mux.Handle("/readyz", deps.Ready)
	}

	return &Component{
		Base:   component.NewBase("exporter.prometheus"),
		logger: logger.Get(logger.Exporter),
		addr:   cfg.Address,
		server: &http.Server{
			Addr:    cfg.Address,
			Handler: mux,
		},
	}, nil
}

func (c *Component) Start(ctx context.Context) error {
	c.StartContext(ctx)

	c.Go(func() {
		c.logger.Info("metrics listening", "address", c.addr)
		if err := c.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("metrics server failed", "error", err)
		}
	})

	return nil
}

func (c *Component) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := c.server.Shutdown(shutdownCtx); err != nil {
		c.logger.Warn("metrics shutdown", "error", err)
	}

	c.StopContext()
	return nil
}
