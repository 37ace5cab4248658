package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	defaultQueueType      = "infinite"
	defaultTunDevice      = "shaper0"
	defaultTunMTU         = 1500
	defaultPromAddress    = ":9101"
	defaultWatchdogPeriod = 5
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

func (c *Config) applyDefaults() {
	for _, d := range []*Direction{&c.Uplink, &c.Downlink} {
		if d.Type == "" {
			d.Type = "none"
		}
		if d.Type == "link" && d.Queue.Type == "" {
			d.Queue.Type = defaultQueueType
		}
	}

	if c.Tun.Device == "" {
		c.Tun.Device = defaultTunDevice
	}
	if c.Tun.PeerDevice == "" {
		c.Tun.PeerDevice = c.Tun.Device + "-peer"
	}
	if c.Tun.MTU == 0 {
		c.Tun.MTU = defaultTunMTU
	}

	if c.Monitoring.Prometheus.Enabled && c.Monitoring.Prometheus.Address == "" {
		c.Monitoring.Prometheus.Address = defaultPromAddress
	}

	if c.Watchdog.CheckIntervalSeconds == 0 {
		c.Watchdog.CheckIntervalSeconds = defaultWatchdogPeriod
	}
}

func (c *Config) Validate() error {
	if err := c.Uplink.validate(); err != nil {
		return fmt.Errorf("uplink: %w", err)
	}
	if err := c.Downlink.validate(); err != nil {
		return fmt.Errorf("downlink: %w", err)
	}
	return nil
}

func (d *Direction) validate() error {
	switch d.Type {
	case "none", "meter":
		return nil
	case "delay":
		return nil
	case "link":
		if d.Trace == "" {
			return fmt.Errorf("link shaper requires a trace file")
		}
		return nil
	case "loss-iid":
		if d.LossRate < 0 || d.LossRate > 1 {
			return fmt.Errorf("loss_rate %v outside [0, 1]", d.LossRate)
		}
		return nil
	case "loss-stochastic":
		if d.MeanOnSeconds <= 0 || d.MeanOffSeconds <= 0 {
			return fmt.Errorf("mean_on_seconds and mean_off_seconds must be positive")
		}
		return nil
	case "loss-periodic":
		if d.OnSeconds == 0 && d.OffSeconds == 0 {
			return fmt.Errorf("on_seconds and off_seconds cannot both be zero")
		}
		return nil
	default:
		return fmt.Errorf("unknown shaper type %q", d.Type)
	}
}
