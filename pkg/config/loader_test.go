package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
logging:
  format: text
  level: info
  components:
    link: debug
uplink:
  type: link
  trace: /var/lib/linkshaper/uplink.trace
  log: /var/log/linkshaper/uplink.log
  repeat: true
  queue:
    type: droptail
    args:
      packets: "100"
  graphs:
    throughput: true
downlink:
  type: delay
  delay_ms: 50
bypass:
  src_ignore: 10.0.0.1
tun:
  device: shaper0
  address: 100.64.0.1/24
  namespace: captive
monitoring:
  prometheus:
    enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "link", cfg.Uplink.Type)
	assert.Equal(t, "/var/lib/linkshaper/uplink.trace", cfg.Uplink.Trace)
	assert.True(t, cfg.Uplink.Repeat)
	assert.Equal(t, "droptail", cfg.Uplink.Queue.Type)
	assert.Equal(t, "100", cfg.Uplink.Queue.Args["packets"])
	assert.True(t, cfg.Uplink.Graphs.Throughput)

	assert.Equal(t, "delay", cfg.Downlink.Type)
	assert.Equal(t, uint64(50), cfg.Downlink.DelayMS)

	assert.Equal(t, "10.0.0.1", cfg.Bypass.SrcIgnore)
	assert.Equal(t, "captive", cfg.Tun.Namespace)
	assert.Equal(t, "debug", cfg.Logging.Components["link"])
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
uplink:
  type: link
  trace: up.trace
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "infinite", cfg.Uplink.Queue.Type)
	assert.Equal(t, "none", cfg.Downlink.Type)
	assert.Equal(t, "shaper0", cfg.Tun.Device)
	assert.Equal(t, "shaper0-peer", cfg.Tun.PeerDevice)
	assert.Equal(t, 1500, cfg.Tun.MTU)
	assert.Equal(t, defaultWatchdogPeriod, cfg.Watchdog.CheckIntervalSeconds)
}

func TestLoadPrometheusDefaultAddress(t *testing.T) {
	path := writeConfig(t, `
monitoring:
  prometheus:
    enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9101", cfg.Monitoring.Prometheus.Address)
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"link without trace", "uplink:\n  type: link\n"},
		{"unknown type", "uplink:\n  type: tbf\n"},
		{"loss rate above one", "uplink:\n  type: loss-iid\n  loss_rate: 1.5\n"},
		{"stochastic without means", "uplink:\n  type: loss-stochastic\n"},
		{"periodic all zero", "uplink:\n  type: loss-periodic\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "uplink: [broken"))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := &Config{
		Uplink: Direction{Type: "delay", DelayMS: 25},
	}
	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), loaded.Uplink.DelayMS)
}
