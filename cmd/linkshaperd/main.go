package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/veesix-networks/linkshaper/internal/eventloop"
	"github.com/veesix-networks/linkshaper/internal/tun"
	"github.com/veesix-networks/linkshaper/internal/watchdog"
	"github.com/veesix-networks/linkshaper/internal/watchdog/targets"
	"github.com/veesix-networks/linkshaper/pkg/classify"
	"github.com/veesix-networks/linkshaper/pkg/clock"
	"github.com/veesix-networks/linkshaper/pkg/component"
	"github.com/veesix-networks/linkshaper/pkg/config"
	"github.com/veesix-networks/linkshaper/pkg/events"
	"github.com/veesix-networks/linkshaper/pkg/events/local"
	"github.com/veesix-networks/linkshaper/pkg/logger"
	"github.com/veesix-networks/linkshaper/pkg/qdisc"
	"github.com/veesix-networks/linkshaper/pkg/shaper"
	"github.com/veesix-networks/linkshaper/pkg/version"
	prom "github.com/veesix-networks/linkshaper/plugins/exporter/prometheus"

	_ "github.com/veesix-networks/linkshaper/plugins/all"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	components := make(map[string]logger.LogLevel, len(cfg.Logging.Components))
	for name, lvl := range cfg.Logging.Components {
		components[name] = logger.LogLevel(lvl)
	}
	logger.Configure(cfg.Logging.Format, logger.LogLevel(cfg.Logging.Level), components)

	mainLog := logger.Get(logger.Main)
	mainLog.Info("Starting linkshaperd", "version", version.Full())

	classifier, err := buildClassifier(cfg)
	if err != nil {
		log.Fatalf("Failed to resolve bypass addresses: %v", err)
	}

	clk := clock.NewMonotonic()
	commandLine := strings.Join(os.Args, " ")

	eventBus := local.NewBus()

	captive, err := tun.Open(cfg.Tun.Device)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", cfg.Tun.Device, err)
	}
	host, err := tun.Open(cfg.Tun.PeerDevice)
	if err != nil {
		log.Fatalf("Failed to open %s: %v", cfg.Tun.PeerDevice, err)
	}

	if err := tun.Configure(cfg.Tun); err != nil {
		log.Fatalf("Failed to configure %s: %v", cfg.Tun.Device, err)
	}
	if cfg.Tun.Namespace != "" {
		if err := tun.MoveToNamespace(cfg.Tun.Device, cfg.Tun.Namespace); err != nil {
			log.Fatalf("Failed to move %s: %v", cfg.Tun.Device, err)
		}
	}

	uplink, uplinkClose, err := buildShaper("uplink", cfg.Uplink, cfg, clk, classifier, commandLine, eventBus)
	if err != nil {
		log.Fatalf("Failed to build uplink: %v", err)
	}
	downlink, downlinkClose, err := buildShaper("downlink", cfg.Downlink, cfg, clk, classifier, commandLine, eventBus)
	if err != nil {
		log.Fatalf("Failed to build downlink: %v", err)
	}

	loop := eventloop.New([]eventloop.Direction{
		{Name: "uplink", Src: captive, Dst: host, Shaper: uplink},
		{Name: "downlink", Src: host, Dst: captive, Shaper: downlink},
	})

	wd := watchdog.New(eventBus)
	wd.Register(targets.NewEngine(loop), watchdog.RunnerConfig{
		CheckInterval:    time.Duration(cfg.Watchdog.CheckIntervalSeconds) * time.Second,
		FailureThreshold: 3,
	})

	deps := component.Dependencies{
		EventBus: eventBus,
		Config:   cfg,
		Health:   watchdog.HealthzHandler(wd),
		Ready:    watchdog.ReadyzHandler(wd),
	}

	plugins, err := component.LoadAll(deps)
	if err != nil {
		log.Fatalf("Failed to load plugins: %v", err)
	}

	orchestrator := component.NewOrchestrator()
	orchestrator.Register(loop)
	orchestrator.Register(wd)
	for _, p := range plugins {
		orchestrator.Register(p)
	}

	ctx := context.Background()
	if err := orchestrator.Start(ctx); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	for _, name := range []string{"uplink", "downlink"} {
		eventBus.Publish(events.TopicLinkLifecycle, events.Event{
			Source: name,
			Data:   events.LinkLifecycleEvent{Link: name, State: "up", AtMillis: clk.Timestamp()},
		})
	}

	mainLog.Info("linkshaperd running",
		"captive", cfg.Tun.Device,
		"host", cfg.Tun.PeerDevice,
		"uplink", cfg.Uplink.Type,
		"downlink", cfg.Downlink.Type,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	mainLog.Info("Shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := orchestrator.Stop(stopCtx); err != nil {
		mainLog.Warn("Shutdown incomplete", "error", err)
	}

	for name, sh := range map[string]shaper.Shaper{"uplink": uplink, "downlink": downlink} {
		if sh.Finished() {
			eventBus.Publish(events.TopicLinkLifecycle, events.Event{
				Source: name,
				Data:   events.LinkLifecycleEvent{Link: name, State: "finished", AtMillis: clk.Timestamp()},
			})
		}
	}

	uplinkClose()
	downlinkClose()
	captive.Close()
	host.Close()
	eventBus.Close()
}

// buildClassifier resolves bypass addresses: environment variables win
// over the config file.
func buildClassifier(cfg *config.Config) (*classify.Classifier, error) {
	src := cfg.Bypass.SrcIgnore
	if v := os.Getenv(classify.EnvSrcToIgnore); v != "" {
		src = v
	}
	dst := cfg.Bypass.DstIgnore
	if v := os.Getenv(classify.EnvDstToIgnore); v != "" {
		dst = v
	}
	return classify.New(src, dst)
}

// buildShaper assembles one direction's discipline from config.
func buildShaper(name string, d config.Direction, cfg *config.Config, clk clock.Clock,
	classifier *classify.Classifier, commandLine string, bus events.Bus) (shaper.Shaper, func(), error) {

	noop := func() {}

	switch d.Type {
	case "none", "meter":
		m := shaper.NewMeterQueue(name, d.Type == "meter" && d.Graphs.Throughput, clk, nil)
		return m, m.Close, nil

	case "delay":
		return shaper.NewDelayQueue(d.DelayMS, clk, classifier), noop, nil

	case "link":
		queue, err := qdisc.New(d.Queue.Type, d.Queue.Args, clk)
		if err != nil {
			return nil, nil, err
		}

		lq, err := shaper.NewLinkQueue(shaper.LinkConfig{
			LinkName:        name,
			TraceFile:       d.Trace,
			LogPath:         d.Log,
			CommandLine:     commandLine,
			Repeat:          d.Repeat,
			GraphThroughput: d.Graphs.Throughput,
			GraphDelay:      d.Graphs.Delay,
			Queue:           queue,
		}, clk, classifier)
		if err != nil {
			return nil, nil, err
		}

		if cfg.Monitoring.Prometheus.Enabled {
			lq.AddRecorder(prom.LinkRecorder(name))
		}
		lq.AddRecorder(shaper.BusRecorder{Bus: bus, Link: name})

		return lq, func() {
			if err := lq.Close(); err != nil {
				logger.Get(logger.Link).Warn("close link", "link", name, "error", err)
			}
		}, nil

	case "loss-iid":
		return shaper.NewIIDLoss(d.LossRate, d.Seed), noop, nil

	case "loss-stochastic":
		return shaper.NewStochasticSwitchingLink(d.MeanOnSeconds, d.MeanOffSeconds, clk.Timestamp, d.Seed), noop, nil

	case "loss-periodic":
		p, err := shaper.NewPeriodicSwitchingLink(d.OnSeconds, d.OffSeconds, clk.Timestamp)
		if err != nil {
			return nil, nil, err
		}
		return p, noop, nil

	default:
		return nil, nil, fmt.Errorf("unknown shaper type %q", d.Type)
	}
}
