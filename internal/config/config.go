package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/vortexvpn/coremgr/internal/logger"
)

// FileConfig is the top-level TOML structure of the manager's own config
// file (not to be confused with the core's configuration document, which
// belongs to the external binary).
type FileConfig struct {
	Core    CoreConfig    `toml:"core" mapstructure:"core"`
	Monitor MonitorConfig `toml:"monitor" mapstructure:"monitor"`
	Log     logger.Config `toml:"log" mapstructure:"log"`
	History HistoryConfig `toml:"history" mapstructure:"history"`
	Probe   ProbeConfig   `toml:"probe" mapstructure:"probe"`
	Server  ServerConfig  `toml:"server" mapstructure:"server"`
}

type CoreConfig struct {
	Binary      string        `toml:"binary" mapstructure:"binary"`
	DataDir     string        `toml:"data_dir" mapstructure:"data_dir"`
	Config      string        `toml:"config" mapstructure:"config"`
	GracePeriod time.Duration `toml:"grace_period" mapstructure:"grace_period"`
	StopWait    time.Duration `toml:"stop_wait" mapstructure:"stop_wait"`
}

type MonitorConfig struct {
	PollInterval     time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`
	PollBackoff      time.Duration `toml:"poll_backoff" mapstructure:"poll_backoff"`
	ResourceInterval time.Duration `toml:"resource_interval" mapstructure:"resource_interval"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	DSN     string `toml:"dsn" mapstructure:"dsn"`
}

// ProbeConfig describes the optional scheduled latency probe.
type ProbeConfig struct {
	Schedule  string `toml:"schedule" mapstructure:"schedule"` // cron spec, e.g. "@every 60s"
	Proxy     string `toml:"proxy" mapstructure:"proxy"`
	URL       string `toml:"url" mapstructure:"url"`
	TimeoutMs int    `toml:"timeout_ms" mapstructure:"timeout_ms"`
}

type ServerConfig struct {
	Listen   string     `toml:"listen" mapstructure:"listen"`
	BasePath string     `toml:"base_path" mapstructure:"base_path"`
	TLS      *TLSConfig `toml:"tls" mapstructure:"tls"`
}

// TLSConfig enables HTTPS on the control API. Either point at an existing
// cert/key pair or give a directory where a self-signed pair is generated
// on first use.
type TLSConfig struct {
	Enabled      bool   `toml:"enabled" mapstructure:"enabled"`
	CertFile     string `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string `toml:"key_file" mapstructure:"key_file"`
	Dir          string `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool   `toml:"auto_generate" mapstructure:"auto_generate"`
}

// DefaultProbeURL is the connectivity endpoint most cores probe against.
const DefaultProbeURL = "http://www.gstatic.com/generate_204"

// Load reads the TOML config at path and applies defaults. The only
// mandatory field is core.binary.
func Load(path string) (FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return FileConfig{}, fmt.Errorf("read config: %w", err)
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return FileConfig{}, fmt.Errorf("parse config: %w", err)
	}
	fc.applyDefaults()
	if fc.Core.Binary == "" {
		return FileConfig{}, fmt.Errorf("config %s: core.binary is required", path)
	}
	return fc, nil
}

func (fc *FileConfig) applyDefaults() {
	if fc.Core.DataDir == "" {
		fc.Core.DataDir = DefaultDataDir()
	}
	if fc.Core.Config == "" {
		fc.Core.Config = filepath.Join(fc.Core.DataDir, "config.yaml")
	}
	if fc.Log.Dir == "" && fc.Log.Path == "" {
		fc.Log.Dir = filepath.Join(fc.Core.DataDir, "logs")
	}
	if fc.History.Enabled && fc.History.DSN == "" {
		fc.History.DSN = filepath.Join(fc.Core.DataDir, "history.db")
	}
	if fc.Probe.URL == "" {
		fc.Probe.URL = DefaultProbeURL
	}
	if fc.Probe.TimeoutMs <= 0 {
		fc.Probe.TimeoutMs = 5000
	}
	if fc.Server.Listen == "" {
		fc.Server.Listen = "127.0.0.1:9898"
	}
	if fc.Server.BasePath == "" {
		fc.Server.BasePath = "/api"
	}
}

// DefaultDataDir places core data under the user config dir, falling back
// to a directory next to the working dir when the home cannot be resolved.
func DefaultDataDir() string {
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, "vortex")
	}
	return "vortex-data"
}
