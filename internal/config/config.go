// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/eeglink/internal/core"
)

// GlobalConfig represents the top-level global static configuration.
// Maps to the `eeglink:` root key in YAML.
type GlobalConfig struct {
	Device    DeviceConfig    `mapstructure:"device" yaml:"device"`
	Recording RecordingConfig `mapstructure:"recording" yaml:"recording"`
	Filters   []FilterConfig  `mapstructure:"filters" yaml:"filters"`
	Control   ControlConfig   `mapstructure:"control" yaml:"control"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Publisher PublisherConfig `mapstructure:"publisher" yaml:"publisher"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// ─── Device ───

// DeviceConfig describes the amplifier endpoint and the stream to request from it.
type DeviceConfig struct {
	Host           string        `mapstructure:"host" yaml:"host"`
	Port           int           `mapstructure:"port" yaml:"port"`
	Rate           int           `mapstructure:"rate" yaml:"rate"`           // 250 / 500 / 1000 Hz
	Protected      bool          `mapstructure:"protected" yaml:"protected"` // framed + CRC mode
	AutoReconnect  bool          `mapstructure:"auto_reconnect" yaml:"auto_reconnect"`
	WaitConnect    bool          `mapstructure:"wait_connect" yaml:"wait_connect"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// Address returns host:port.
func (d DeviceConfig) Address() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// ─── Recording ───

// RecordingConfig contains record file settings.
type RecordingConfig struct {
	Dir           string   `mapstructure:"dir" yaml:"dir"`
	Patient       string   `mapstructure:"patient" yaml:"patient"`
	ChannelLabels []string `mapstructure:"channel_labels" yaml:"channel_labels"`
}

// ─── Filters ───

// FilterConfig declares a filter installed at daemon start.
// Channels are 1-based; an empty list means all channels.
type FilterConfig struct {
	Type     string  `mapstructure:"type" yaml:"type"`
	Order    int     `mapstructure:"order" yaml:"order"`
	Channels []int   `mapstructure:"channels" yaml:"channels"`
	Rate     float64 `mapstructure:"rate" yaml:"rate"` // 0 = device rate
	Low      float64 `mapstructure:"low" yaml:"low"`
	High     float64 `mapstructure:"high" yaml:"high"`
}

// ─── Control Plane ───

// ControlConfig contains local control plane settings.
type ControlConfig struct {
	Socket  string `mapstructure:"socket" yaml:"socket"`
	PIDFile string `mapstructure:"pid_file" yaml:"pid_file"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Publisher ───

// PublisherConfig configures the optional Kafka frame publisher.
type PublisherConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Brokers      []string      `mapstructure:"brokers" yaml:"brokers"`
	Topic        string        `mapstructure:"topic" yaml:"topic"`
	Compression  string        `mapstructure:"compression" yaml:"compression"` // none / gzip / snappy / lz4
	BatchSize    int           `mapstructure:"batch_size" yaml:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout" yaml:"batch_timeout"`
	QueueSize    int           `mapstructure:"queue_size" yaml:"queue_size"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level" yaml:"level"`   // debug / info / warn / error
	Format  string           `mapstructure:"format" yaml:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file" yaml:"file"`
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

// ─── Loading ───

// DefaultChannelLabels are the montage labels written into new records.
var DefaultChannelLabels = []string{"Po7", "O1", "Oz", "P3", "Pz", "P4", "O2", "Po8"}

// configRoot is the top-level wrapper matching the YAML structure `eeglink: ...`.
type configRoot struct {
	EEGLink GlobalConfig `mapstructure:"eeglink"`
}

// Load loads configuration from file.
// The YAML file uses `eeglink:` as root key; env vars use the EEGLINK_ prefix (e.g., EEGLINK_DEVICE_HOST).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return load(v)
}

// Default returns the configuration obtained from defaults and environment only.
func Default() (*GlobalConfig, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*GlobalConfig, error) {
	// Key "eeglink.device.host" maps to env "EEGLINK_DEVICE_HOST".
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.EEGLink

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use the "eeglink." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Device defaults
	v.SetDefault("eeglink.device.host", "192.168.127.125")
	v.SetDefault("eeglink.device.port", 12345)
	v.SetDefault("eeglink.device.rate", 500)
	v.SetDefault("eeglink.device.protected", true)
	v.SetDefault("eeglink.device.auto_reconnect", true)
	v.SetDefault("eeglink.device.wait_connect", false)
	v.SetDefault("eeglink.device.connect_timeout", "3s")
	v.SetDefault("eeglink.device.reconnect_delay", "3s")
	v.SetDefault("eeglink.device.poll_interval", "20ms")

	// Recording defaults
	v.SetDefault("eeglink.recording.dir", "SaveData")
	v.SetDefault("eeglink.recording.channel_labels", DefaultChannelLabels)

	// Control defaults
	v.SetDefault("eeglink.control.pid_file", "/var/run/eeglink.pid")
	v.SetDefault("eeglink.control.socket", "/var/run/eeglink.sock")

	// Log defaults
	v.SetDefault("eeglink.log.level", "info")
	v.SetDefault("eeglink.log.format", "json")
	v.SetDefault("eeglink.log.outputs.file.enabled", false)
	v.SetDefault("eeglink.log.outputs.file.path", "/var/log/eeglink/eeglink.log")
	v.SetDefault("eeglink.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("eeglink.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("eeglink.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("eeglink.log.outputs.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("eeglink.metrics.enabled", true)
	v.SetDefault("eeglink.metrics.listen", ":9091")
	v.SetDefault("eeglink.metrics.path", "/metrics")

	// Publisher defaults
	v.SetDefault("eeglink.publisher.enabled", false)
	v.SetDefault("eeglink.publisher.topic", "eeg-frames")
	v.SetDefault("eeglink.publisher.compression", "snappy")
	v.SetDefault("eeglink.publisher.batch_size", 10)
	v.SetDefault("eeglink.publisher.batch_timeout", "100ms")
	v.SetDefault("eeglink.publisher.queue_size", 256)
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}

	// ── Device validation ──
	if cfg.Device.Host == "" {
		return fmt.Errorf("device.host is required")
	}
	if cfg.Device.Port <= 0 || cfg.Device.Port > 65535 {
		return fmt.Errorf("invalid device.port: %d", cfg.Device.Port)
	}
	switch cfg.Device.Rate {
	case 250, 500, 1000:
	default:
		return fmt.Errorf("invalid device.rate: %d (must be 250/500/1000)", cfg.Device.Rate)
	}
	if cfg.Device.ConnectTimeout <= 0 {
		cfg.Device.ConnectTimeout = 3 * time.Second
	}
	if cfg.Device.ReconnectDelay < 0 {
		cfg.Device.ReconnectDelay = 0
	}
	if cfg.Device.PollInterval <= 0 {
		cfg.Device.PollInterval = 20 * time.Millisecond
	}

	// ── Recording ──
	if len(cfg.Recording.ChannelLabels) == 0 {
		cfg.Recording.ChannelLabels = append([]string(nil), DefaultChannelLabels...)
	}
	if len(cfg.Recording.ChannelLabels) > 8 {
		return fmt.Errorf("recording.channel_labels: at most 8 labels, got %d", len(cfg.Recording.ChannelLabels))
	}

	// ── Filters ──
	for i := range cfg.Filters {
		f := &cfg.Filters[i]
		if f.Type == "" {
			f.Type = "butterworth"
		}
		if f.Order < 1 || f.Order > 8 {
			return fmt.Errorf("filters[%d]: order %d out of range 1..8", i, f.Order)
		}
		if len(f.Channels) > 8 {
			return fmt.Errorf("filters[%d]: at most 8 channels", i)
		}
		seen := make(map[int]bool, len(f.Channels))
		for _, ch := range f.Channels {
			if ch < 1 || ch > 8 || seen[ch] {
				return fmt.Errorf("filters[%d]: invalid or duplicate channel %d", i, ch)
			}
			seen[ch] = true
		}
		if f.Rate == 0 {
			f.Rate = float64(cfg.Device.Rate)
		}
		if f.Low < 0 || f.High <= f.Low {
			return fmt.Errorf("filters[%d]: band [%g, %g] is invalid", i, f.Low, f.High)
		}
	}

	// ── Publisher ──
	if cfg.Publisher.Enabled {
		if len(cfg.Publisher.Brokers) == 0 {
			return fmt.Errorf("publisher.brokers is required when publisher.enabled=true")
		}
		if cfg.Publisher.Topic == "" {
			return fmt.Errorf("publisher.topic is required when publisher.enabled=true")
		}
		switch cfg.Publisher.Compression {
		case "", "none", "gzip", "snappy", "lz4":
		default:
			return fmt.Errorf("unsupported publisher.compression: %s", cfg.Publisher.Compression)
		}
	}
	if cfg.Publisher.QueueSize <= 0 {
		cfg.Publisher.QueueSize = 256
	}

	return nil
}
