// Package config provides configuration handling for chunkcap.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/irctrakz/chunkcap/pkg/core"
	"github.com/irctrakz/chunkcap/pkg/logging"
	"github.com/irctrakz/chunkcap/pkg/synth"
	"github.com/irctrakz/chunkcap/pkg/trace"
	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration.
type Config struct {
	// Capture contains the capture pipeline configuration.
	Capture core.CaptureConfig `json:"capture" yaml:"capture"`

	// Logging contains the logging configuration.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Admin contains the admin HTTP endpoint configuration.
	Admin AdminConfig `json:"admin" yaml:"admin"`

	// Metrics contains the periodic metrics log configuration.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// LoggingConfig contains configuration for logging.
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error).
	Level string `json:"level" yaml:"level"`

	// File is the log file path.
	File string `json:"file" yaml:"file"`

	// MaxSize is the maximum size of the log file in megabytes.
	MaxSize int `json:"maxSize" yaml:"maxSize"`

	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int `json:"maxBackups" yaml:"maxBackups"`

	// MaxAge is the maximum number of days to retain old log files.
	MaxAge int `json:"maxAge" yaml:"maxAge"`
}

// AdminConfig contains configuration for the /health and /metrics endpoint.
type AdminConfig struct {
	// Listen is the listen address, e.g. ":9464". Empty disables the endpoint.
	Listen string `json:"listen" yaml:"listen"`

	// MaxConns caps concurrent admin connections.
	MaxConns int `json:"maxConns" yaml:"maxConns"`
}

// MetricsConfig contains configuration for the periodic metrics log.
type MetricsConfig struct {
	// Interval between dumps, e.g. "30s". Empty or "0" disables.
	Interval string `json:"interval" yaml:"interval"`

	// Format is "text" or "json".
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Capture: core.CaptureConfig{
			File:       "chunkcap.pcap",
			TTL:        128,
			HopLimit:   128,
			Window:     0xffff,
			Flags:      "SYN,PSH",
			MaxSegment: 0,
			Debug:      false,
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		},
		Admin: AdminConfig{
			Listen:   "",
			MaxConns: 16,
		},
		Metrics: MetricsConfig{
			Interval: "",
			Format:   "text",
		},
	}
}

// LoadFromFile loads configuration from a file.
func LoadFromFile(path string, config *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch {
	case strings.HasSuffix(path, ".json"):
		if err := json.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}

	return nil
}

func envInt(name string, dst *int) {
	if val := os.Getenv(name); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}

func envBool(val string) bool {
	v := strings.ToLower(strings.TrimSpace(val))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv(config *Config) {
	// Capture config
	if val := os.Getenv("CHUNKCAP_FILE"); val != "" {
		config.Capture.File = val
	}
	envInt("CHUNKCAP_TTL", &config.Capture.TTL)
	envInt("CHUNKCAP_HOP_LIMIT", &config.Capture.HopLimit)
	envInt("CHUNKCAP_WINDOW", &config.Capture.Window)
	if val := os.Getenv("CHUNKCAP_FLAGS"); val != "" {
		config.Capture.Flags = val
	}
	envInt("CHUNKCAP_MAX_SEGMENT", &config.Capture.MaxSegment)
	if val := os.Getenv("CHUNKCAP_DEBUG"); val != "" {
		config.Capture.Debug = envBool(val)
	}

	// Logging config
	if val := os.Getenv("LOGGING_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("LOGGING_FILE"); val != "" {
		config.Logging.File = val
	}
	envInt("LOGGING_MAX_SIZE", &config.Logging.MaxSize)
	envInt("LOGGING_MAX_BACKUPS", &config.Logging.MaxBackups)
	envInt("LOGGING_MAX_AGE", &config.Logging.MaxAge)

	// Admin and metrics
	if val := os.Getenv("ADMIN_LISTEN"); val != "" {
		config.Admin.Listen = val
	}
	envInt("ADMIN_MAX_CONNS", &config.Admin.MaxConns)
	if val := os.Getenv("METRICS_INTERVAL"); val != "" {
		config.Metrics.Interval = val
	}
	if val := os.Getenv("METRICS_FORMAT"); val != "" {
		config.Metrics.Format = val
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Capture.File) == "" {
		return fmt.Errorf("capture file cannot be empty")
	}
	if c.Capture.TTL < 1 || c.Capture.TTL > 255 {
		return fmt.Errorf("invalid TTL: %d", c.Capture.TTL)
	}
	if c.Capture.HopLimit < 1 || c.Capture.HopLimit > 255 {
		return fmt.Errorf("invalid hop limit: %d", c.Capture.HopLimit)
	}
	if c.Capture.Window < 0 || c.Capture.Window > 0xffff {
		return fmt.Errorf("invalid TCP window: %d", c.Capture.Window)
	}
	if _, err := synth.ParseFlags(c.Capture.Flags); err != nil {
		return fmt.Errorf("invalid TCP flags: %w", err)
	}
	if c.Capture.MaxSegment < 0 {
		return fmt.Errorf("invalid max segment: %d", c.Capture.MaxSegment)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}

	if c.Admin.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Admin.Listen); err != nil {
			return fmt.Errorf("invalid admin listen address: %w", err)
		}
	}
	if c.Admin.MaxConns < 0 {
		return fmt.Errorf("invalid admin max conns: %d", c.Admin.MaxConns)
	}

	if _, err := c.MetricsInterval(); err != nil {
		return err
	}
	switch c.Metrics.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid metrics format: %s", c.Metrics.Format)
	}

	return nil
}

// MetricsInterval parses Metrics.Interval; zero disables the metrics log.
func (c *Config) MetricsInterval() (time.Duration, error) {
	iv := strings.TrimSpace(c.Metrics.Interval)
	if iv == "" || iv == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(iv)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid metrics interval: %s", c.Metrics.Interval)
	}
	return d, nil
}

// Synth builds the header synthesizer options. Call Validate first.
func (c *Config) Synth() (synth.Options, error) {
	flags, err := synth.ParseFlags(c.Capture.Flags)
	if err != nil {
		return synth.Options{}, err
	}
	return synth.Options{
		TTL:      uint8(c.Capture.TTL),
		HopLimit: uint8(c.Capture.HopLimit),
		Window:   uint16(c.Capture.Window),
		Flags:    flags,
	}, nil
}

// DispatcherOptions returns the dispatcher options implied by the config.
func (c *Config) DispatcherOptions() []trace.Option {
	return []trace.Option{trace.WithMaxSegment(c.Capture.MaxSegment)}
}

// ApplyLogging applies the logging configuration.
func (c *Config) ApplyLogging() error {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return err
	}
	if c.Capture.Debug {
		level = logging.DebugLevel
	}
	logging.SetLevel(level)
	core.SetDebugMode(c.Capture.Debug)

	if c.Logging.File != "" {
		err := logging.EnableFileLogging(
			c.Logging.File,
			c.Logging.MaxSize,
			c.Logging.MaxBackups,
			c.Logging.MaxAge,
		)
		if err != nil {
			return fmt.Errorf("failed to enable file logging: %w", err)
		}
	}

	return nil
}

// SaveToFile saves the configuration to a file.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch {
	case strings.HasSuffix(path, ".json"):
		data, err = json.MarshalIndent(c, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		data, err = yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
