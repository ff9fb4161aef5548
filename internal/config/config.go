// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `netmon:` root key in YAML.
type GlobalConfig struct {
	Transmitter TransmitterConfig `mapstructure:"transmitter" yaml:"transmitter"`
	Receiver    ReceiverConfig    `mapstructure:"receiver" yaml:"receiver"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	EventQueue  int               `mapstructure:"event_queue" yaml:"event_queue"` // pending event loop tasks
}

// ─── Roles ───

// TransmitterConfig configures the control port and the datagram socket.
type TransmitterConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`       // control TCP address
	Bind    string `mapstructure:"send_bind" yaml:"send_bind"` // local UDP address datagrams leave from
}

// ReceiverConfig configures capture and reporting.
type ReceiverConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	UDPListen      string        `mapstructure:"udp_listen" yaml:"udp_listen"`
	ReportListen   string        `mapstructure:"report_listen" yaml:"report_listen"`
	BufferCapacity int           `mapstructure:"buffer_capacity" yaml:"buffer_capacity"`
	OverflowGuard  int           `mapstructure:"overflow_guard" yaml:"overflow_guard"`
	DrainInterval  time.Duration `mapstructure:"drain_interval" yaml:"drain_interval"`
	DrainBatch     int           `mapstructure:"drain_batch" yaml:"drain_batch"`   // records written per drain tick
	StreamQueue    int           `mapstructure:"stream_queue" yaml:"stream_queue"` // records queued for a slow consumer
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level      string           `mapstructure:"level" yaml:"level"`   // debug / info / warn / error
	Format     string           `mapstructure:"format" yaml:"format"` // json / text / pattern
	Pattern    string           `mapstructure:"pattern" yaml:"pattern"`
	TimeFormat string           `mapstructure:"time_format" yaml:"time_format"`
	Outputs    LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig contains log output destinations.
type LogOutputsConfig struct {
	Console bool             `mapstructure:"console" yaml:"console"`
	File    FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Loading ───

const rootKey = "netmon"

// Default pattern and timestamp layout for the pattern log format.
const (
	DefaultPattern    = "%time [%level] %msg %field%n"
	DefaultTimeFormat = "2006-01-02 15:04:05.000"
)

// Load loads configuration from file. An empty path loads defaults and
// environment overrides only.
// The YAML file uses `netmon:` as root key; env vars use the NETMON_ prefix
// (e.g. NETMON_RECEIVER_UDP_LISTEN).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `netmon.` key prefix maps to `NETMON_` via the replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	root, _ := v.AllSettings()[rootKey].(map[string]interface{})
	cfg, err := decode(root)
	if err != nil {
		return nil, err
	}

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func decode(settings map[string]interface{}) (*GlobalConfig, error) {
	var cfg GlobalConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build config decoder: %w", err)
	}
	if err := dec.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use the "netmon." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	v.SetDefault("netmon.event_queue", 4096)

	// Transmitter defaults
	v.SetDefault("netmon.transmitter.enabled", true)
	v.SetDefault("netmon.transmitter.listen", "0.0.0.0:8888")
	v.SetDefault("netmon.transmitter.send_bind", "0.0.0.0:0")

	// Receiver defaults
	v.SetDefault("netmon.receiver.enabled", true)
	v.SetDefault("netmon.receiver.udp_listen", "0.0.0.0:8889")
	v.SetDefault("netmon.receiver.report_listen", "0.0.0.0:8889")
	v.SetDefault("netmon.receiver.buffer_capacity", 10000)
	v.SetDefault("netmon.receiver.overflow_guard", 10)
	v.SetDefault("netmon.receiver.drain_interval", "1ms")
	v.SetDefault("netmon.receiver.drain_batch", 1)
	v.SetDefault("netmon.receiver.stream_queue", 4096)

	// Log defaults
	v.SetDefault("netmon.log.level", "info")
	v.SetDefault("netmon.log.format", "text")
	v.SetDefault("netmon.log.pattern", DefaultPattern)
	v.SetDefault("netmon.log.time_format", DefaultTimeFormat)
	v.SetDefault("netmon.log.outputs.console", true)
	v.SetDefault("netmon.log.outputs.file.enabled", false)
	v.SetDefault("netmon.log.outputs.file.path", "/var/log/netmon/netmon.log")
	v.SetDefault("netmon.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("netmon.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("netmon.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("netmon.log.outputs.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("netmon.metrics.enabled", false)
	v.SetDefault("netmon.metrics.listen", "127.0.0.1:9091")
	v.SetDefault("netmon.metrics.path", "/metrics")
}

// ValidateAndApplyDefaults validates configuration and fills in runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "text", "pattern":
	default:
		return fmt.Errorf("invalid log format: %s (must be json/text/pattern)", cfg.Log.Format)
	}
	if cfg.Log.Pattern == "" {
		cfg.Log.Pattern = DefaultPattern
	}
	if cfg.Log.TimeFormat == "" {
		cfg.Log.TimeFormat = DefaultTimeFormat
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return fmt.Errorf("log.outputs.file.path is required when file output is enabled")
	}

	if !cfg.Transmitter.Enabled && !cfg.Receiver.Enabled {
		return fmt.Errorf("at least one of transmitter or receiver must be enabled")
	}
	if cfg.EventQueue <= 0 {
		return fmt.Errorf("event_queue must be positive, got %d", cfg.EventQueue)
	}

	// ── Transmitter ──
	if cfg.Transmitter.Enabled {
		if err := checkAddr("transmitter.listen", cfg.Transmitter.Listen); err != nil {
			return err
		}
		if cfg.Transmitter.Bind == "" {
			cfg.Transmitter.Bind = "0.0.0.0:0"
		}
		if err := checkAddr("transmitter.send_bind", cfg.Transmitter.Bind); err != nil {
			return err
		}
	}

	// ── Receiver ──
	if cfg.Receiver.Enabled {
		r := &cfg.Receiver
		if err := checkAddr("receiver.udp_listen", r.UDPListen); err != nil {
			return err
		}
		if err := checkAddr("receiver.report_listen", r.ReportListen); err != nil {
			return err
		}
		if r.BufferCapacity < 2 {
			return fmt.Errorf("receiver.buffer_capacity must be at least 2, got %d", r.BufferCapacity)
		}
		if r.OverflowGuard < 1 || r.OverflowGuard >= r.BufferCapacity {
			return fmt.Errorf("receiver.overflow_guard must be in [1, %d), got %d", r.BufferCapacity, r.OverflowGuard)
		}
		if r.DrainInterval <= 0 {
			return fmt.Errorf("receiver.drain_interval must be positive, got %s", r.DrainInterval)
		}
		if r.DrainBatch < 1 {
			return fmt.Errorf("receiver.drain_batch must be at least 1, got %d", r.DrainBatch)
		}
		if r.StreamQueue < 1 {
			return fmt.Errorf("receiver.stream_queue must be at least 1, got %d", r.StreamQueue)
		}
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled {
		if err := checkAddr("metrics.listen", cfg.Metrics.Listen); err != nil {
			return err
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path must start with '/', got %q", cfg.Metrics.Path)
		}
	}

	return nil
}

func checkAddr(key, addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, addr, err)
	}
	return nil
}
