package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irctrakz/chunkcap/pkg/core"
	"github.com/irctrakz/chunkcap/pkg/logging"
	"github.com/irctrakz/chunkcap/pkg/synth"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	opts, err := cfg.Synth()
	require.NoError(t, err)
	assert.Equal(t, synth.DefaultOptions(), opts)

	d, err := cfg.MetricsInterval()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), d)
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunkcap.yaml")
	yml := `
capture:
  file: /tmp/out.pcap
  ttl: 64
  flags: ACK,PSH
  maxSegment: 1400
logging:
  level: debug
admin:
  listen: 127.0.0.1:9464
metrics:
  interval: 15s
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	cfg := DefaultConfig()
	require.NoError(t, LoadFromFile(path, cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/tmp/out.pcap", cfg.Capture.File)
	assert.Equal(t, 64, cfg.Capture.TTL)
	// untouched keys keep their defaults
	assert.Equal(t, 128, cfg.Capture.HopLimit)
	assert.Equal(t, 1400, cfg.Capture.MaxSegment)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "127.0.0.1:9464", cfg.Admin.Listen)

	opts, err := cfg.Synth()
	require.NoError(t, err)
	assert.Equal(t, uint8(64), opts.TTL)
	assert.Equal(t, synth.FlagACK|synth.FlagPSH, opts.Flags)

	d, err := cfg.MetricsInterval()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, d)
	assert.Len(t, cfg.DispatcherOptions(), 1)
}

func TestLoadFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunkcap.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"capture":{"file":"x.pcap","hop_limit":10}}`), 0644))

	cfg := DefaultConfig()
	require.NoError(t, LoadFromFile(path, cfg))
	assert.Equal(t, "x.pcap", cfg.Capture.File)
	assert.Equal(t, 10, cfg.Capture.HopLimit)
}

func TestLoadFromFileErrors(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, LoadFromFile(filepath.Join(dir, "missing.yaml"), DefaultConfig()))

	txt := filepath.Join(dir, "config.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0644))
	assert.Error(t, LoadFromFile(txt, DefaultConfig()))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("capture: [unclosed"), 0644))
	assert.Error(t, LoadFromFile(bad, DefaultConfig()))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CHUNKCAP_FILE", "env.pcap")
	t.Setenv("CHUNKCAP_TTL", "32")
	t.Setenv("CHUNKCAP_WINDOW", "4096")
	t.Setenv("CHUNKCAP_FLAGS", "PSH")
	t.Setenv("CHUNKCAP_MAX_SEGMENT", "not-a-number")
	t.Setenv("CHUNKCAP_DEBUG", "yes")
	t.Setenv("LOGGING_LEVEL", "warn")
	t.Setenv("ADMIN_LISTEN", ":9000")
	t.Setenv("METRICS_INTERVAL", "1m")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	assert.Equal(t, "env.pcap", cfg.Capture.File)
	assert.Equal(t, 32, cfg.Capture.TTL)
	assert.Equal(t, 4096, cfg.Capture.Window)
	assert.Equal(t, "PSH", cfg.Capture.Flags)
	assert.Equal(t, 0, cfg.Capture.MaxSegment)
	assert.True(t, cfg.Capture.Debug)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, ":9000", cfg.Admin.Listen)
	assert.Equal(t, "1m", cfg.Metrics.Interval)
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"empty file":       func(c *Config) { c.Capture.File = " " },
		"ttl zero":         func(c *Config) { c.Capture.TTL = 0 },
		"hop limit big":    func(c *Config) { c.Capture.HopLimit = 300 },
		"window big":       func(c *Config) { c.Capture.Window = 70000 },
		"bad flags":        func(c *Config) { c.Capture.Flags = "SYN,NOPE" },
		"negative segment": func(c *Config) { c.Capture.MaxSegment = -1 },
		"bad level":        func(c *Config) { c.Logging.Level = "verbose" },
		"bad listen":       func(c *Config) { c.Admin.Listen = "9464" },
		"bad interval":     func(c *Config) { c.Metrics.Interval = "soon" },
		"bad format":       func(c *Config) { c.Metrics.Format = "xml" },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}

func TestSaveToFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "saved.yaml")
	cfg := DefaultConfig()
	cfg.Capture.File = "saved.pcap"
	require.NoError(t, cfg.SaveToFile(path))

	loaded := DefaultConfig()
	require.NoError(t, LoadFromFile(path, loaded))
	assert.Equal(t, cfg, loaded)

	assert.Error(t, cfg.SaveToFile(filepath.Join(t.TempDir(), "saved.ini")))
}

func TestApplyLogging(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capture.Debug = true
	cfg.Logging.File = filepath.Join(t.TempDir(), "logs", "chunkcap.log")
	defer func() {
		core.SetDebugMode(false)
		logging.SetOutput(os.Stdout)
		logging.SetLevel(logging.InfoLevel)
	}()

	require.NoError(t, cfg.ApplyLogging())
	assert.True(t, core.IsDebugMode())

	logging.Infof("applied")
	_, err := os.Stat(cfg.Logging.File)
	assert.NoError(t, err)
}
