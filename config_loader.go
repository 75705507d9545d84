package ember

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the subset of Config a deployment would reasonably set
// from a file, with durations expressed as parseable strings (e.g. "30s")
// rather than Config's native time.Duration.
type fileConfig struct {
	MaxHeaderSize int    `yaml:"max_header_size"`
	MaxBodySize   int64  `yaml:"max_body_size"`
	IdleTimeout   string `yaml:"idle_timeout"`
	ReadTimeout   string `yaml:"read_timeout"`
	WriteTimeout  string `yaml:"write_timeout"`

	CompressionMinSize int `yaml:"compression_min_size"`
	CompressionLevel   int `yaml:"compression_level"`

	AsyncHandlerConcurrency int   `yaml:"async_handler_concurrency"`
	DisableStartupMessage   *bool `yaml:"disable_startup_message"`

	KeepAlive              *bool  `yaml:"keep_alive"`
	TCPKeepAliveTime       string `yaml:"tcp_keep_alive_time"`
	TCPKeepAliveInterval   string `yaml:"tcp_keep_alive_interval"`
	TCPKeepAliveRetryCount int    `yaml:"tcp_keep_alive_retry_count"`
	NoDelay                *bool  `yaml:"no_delay"`
	ReuseAddress           *bool  `yaml:"reuse_address"`
	ExclusiveAddressUse    *bool  `yaml:"exclusive_address_use"`
	ReusePort              *bool  `yaml:"reuse_port"`
	DualMode               *bool  `yaml:"dual_mode"`
	ListenBacklog          int    `yaml:"listen_backlog"`
	AcceptPerCore          int    `yaml:"accept_per_core"`
}

// LoadConfig reads a YAML file at path and overlays its fields onto
// DefaultConfig. Any numeric or duration field absent or zero-valued in the
// file keeps its default; a boolean field overrides its default whenever it
// is present, including an explicit false. ErrorHandler is left for the
// caller to set in code, since it is not representable in YAML.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("ember: read config %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return cfg, fmt.Errorf("ember: parse config %s: %w", path, err)
	}

	if fc.MaxHeaderSize > 0 {
		cfg.MaxHeaderSize = fc.MaxHeaderSize
	}
	if fc.MaxBodySize > 0 {
		cfg.MaxBodySize = fc.MaxBodySize
	}
	if d, err := parseDurationField("idle_timeout", fc.IdleTimeout); err != nil {
		return cfg, err
	} else if d > 0 {
		cfg.IdleTimeout = d
	}
	if d, err := parseDurationField("read_timeout", fc.ReadTimeout); err != nil {
		return cfg, err
	} else if d > 0 {
		cfg.ReadTimeout = d
	}
	if d, err := parseDurationField("write_timeout", fc.WriteTimeout); err != nil {
		return cfg, err
	} else if d > 0 {
		cfg.WriteTimeout = d
	}
	if fc.CompressionMinSize > 0 {
		cfg.CompressionMinSize = fc.CompressionMinSize
	}
	if fc.CompressionLevel != 0 {
		cfg.CompressionLevel = fc.CompressionLevel
	}
	if fc.AsyncHandlerConcurrency > 0 {
		cfg.AsyncHandlerConcurrency = fc.AsyncHandlerConcurrency
	}
	if fc.DisableStartupMessage != nil {
		cfg.DisableStartupMessage = *fc.DisableStartupMessage
	}
	if fc.KeepAlive != nil {
		cfg.KeepAlive = *fc.KeepAlive
	}
	if d, err := parseDurationField("tcp_keep_alive_time", fc.TCPKeepAliveTime); err != nil {
		return cfg, err
	} else if d > 0 {
		cfg.TCPKeepAliveTime = d
	}
	if d, err := parseDurationField("tcp_keep_alive_interval", fc.TCPKeepAliveInterval); err != nil {
		return cfg, err
	} else if d > 0 {
		cfg.TCPKeepAliveInterval = d
	}
	if fc.TCPKeepAliveRetryCount > 0 {
		cfg.TCPKeepAliveRetryCount = fc.TCPKeepAliveRetryCount
	}
	if fc.NoDelay != nil {
		cfg.NoDelay = *fc.NoDelay
	}
	if fc.ReuseAddress != nil {
		cfg.ReuseAddress = *fc.ReuseAddress
	}
	if fc.ExclusiveAddressUse != nil {
		cfg.ExclusiveAddressUse = *fc.ExclusiveAddressUse
	}
	if fc.ReusePort != nil {
		cfg.ReusePort = *fc.ReusePort
	}
	if fc.DualMode != nil {
		cfg.DualMode = *fc.DualMode
	}
	if fc.ListenBacklog > 0 {
		cfg.ListenBacklog = fc.ListenBacklog
	}
	if fc.AcceptPerCore > 0 {
		cfg.AcceptPerCore = fc.AcceptPerCore
	}

	return cfg, nil
}

func parseDurationField(field, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("ember: config field %s: %w", field, err)
	}
	return d, nil
}
