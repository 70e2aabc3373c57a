package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/apistol78/traktor-sub009/internal/errors"
	"github.com/apistol78/traktor-sub009/pkg/replicator"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "replicad.json"

	// DefaultListen is the default HTTP listen address.
	DefaultListen = ":7700"

	// DefaultTick is the default replicator update interval.
	DefaultTick = "16ms"

	// DefaultFlushInterval is the default recording flush interval.
	DefaultFlushInterval = "30s"
)

// Config represents the complete replicad.json configuration. Every field
// can be overridden by its REPLICAD_* environment variable.
type Config struct {
	// Name is announced to peers. Defaults to the hostname.
	Name string `json:"name,omitempty" env:"REPLICAD_NAME"`

	// Listen is the HTTP address serving /ws, /metrics, /healthz and /peers.
	Listen string `json:"listen,omitempty" env:"REPLICAD_LISTEN"`

	// Peers are WebSocket URLs dialed at startup.
	Peers []string `json:"peers,omitempty" env:"REPLICAD_PEERS" envSeparator:","`

	// Primary marks this node as the session's primary.
	Primary bool `json:"primary,omitempty" env:"REPLICAD_PRIMARY"`

	// Tick is the replicator update interval (e.g., "16ms").
	Tick string `json:"tick,omitempty" env:"REPLICAD_TICK"`

	// Log contains logging configuration.
	Log LogConfig `json:"log,omitempty" envPrefix:"REPLICAD_LOG_"`

	// Demo contains the orbiting demo entity configuration.
	Demo DemoConfig `json:"demo,omitempty" envPrefix:"REPLICAD_DEMO_"`

	// Tuning overrides replicator protocol defaults. Zero keeps the default.
	Tuning TuningConfig `json:"tuning,omitempty" envPrefix:"REPLICAD_TUNING_"`

	// Recording contains traffic capture configuration.
	Recording RecordingConfig `json:"recording,omitempty" envPrefix:"REPLICAD_RECORD_"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty" env:"LEVEL"`

	// Format is text or json.
	Format string `json:"format,omitempty" env:"FORMAT"`
}

// DemoConfig describes the body the node replicates.
type DemoConfig struct {
	// Radius of the orbit around the node's origin.
	Radius float64 `json:"radius,omitempty" env:"RADIUS"`

	// Speed is the angular velocity in radians per second.
	Speed float64 `json:"speed,omitempty" env:"SPEED"`

	// Origin is the centre of the orbit.
	Origin [3]float64 `json:"origin,omitempty"`
}

// TuningConfig overrides selected replicator.Config fields.
type TuningConfig struct {
	NearDistance   float64 `json:"nearDistance,omitempty" env:"NEAR_DISTANCE"`
	FarDistance    float64 `json:"farDistance,omitempty" env:"FAR_DISTANCE"`
	PeerTimeout    float64 `json:"peerTimeout,omitempty" env:"PEER_TIMEOUT"`
	StateKeepAlive float64 `json:"stateKeepAlive,omitempty" env:"STATE_KEEP_ALIVE"`
}

// RecordingConfig contains traffic capture settings. Recording is enabled
// when Dir or Bucket is set.
type RecordingConfig struct {
	// Dir stores segments on the local filesystem.
	Dir string `json:"dir,omitempty" env:"DIR"`

	// Bucket uploads segments to S3. Takes precedence over Dir.
	Bucket string `json:"bucket,omitempty" env:"BUCKET"`

	// Prefix is the S3 key prefix.
	Prefix string `json:"prefix,omitempty" env:"PREFIX"`

	// Region is the S3 region.
	Region string `json:"region,omitempty" env:"REGION"`

	// Endpoint overrides the S3 endpoint (e.g., a local MinIO).
	Endpoint string `json:"endpoint,omitempty" env:"ENDPOINT"`

	// Interval between flushes (e.g., "30s").
	Interval string `json:"interval,omitempty" env:"INTERVAL"`

	// AccessKey and SecretKey sign S3 requests. Anonymous when empty.
	AccessKey string `json:"-" env:"ACCESS_KEY"`
	SecretKey string `json:"-" env:"SECRET_KEY"`
}

// New creates a new Config with default values.
func New() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads path if it is not empty, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := New()
	if path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("R100").
				WithDetail("No " + filepath.Base(path) + " found in " + filepath.Dir(path))
		}
		return nil, errors.New("R101").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("R101").
			WithDetail("Failed to parse " + path + ": " + err.Error())
	}

	cfg.configPath = path
	cfg.applyDefaults()
	return cfg, nil
}

// ApplyEnv overlays REPLICAD_* environment variables.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return errors.New("R102").Wrap(err)
	}
	return nil
}

// Save writes the configuration to the specified path.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("R101").Wrap(err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("R101").Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Name == "" {
		if host, err := os.Hostname(); err == nil {
			c.Name = host
		} else {
			c.Name = "replicad"
		}
	}
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Tick == "" {
		c.Tick = DefaultTick
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Demo.Radius == 0 {
		c.Demo.Radius = 5
	}
	if c.Demo.Speed == 0 {
		c.Demo.Speed = 0.5
	}
	if c.Recording.Interval == "" {
		c.Recording.Interval = DefaultFlushInterval
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if tick, err := c.TickInterval(); err != nil || tick <= 0 {
		return errors.New("R103").WithDetail("tick must be a positive duration, got " + c.Tick)
	}
	if iv, err := c.FlushInterval(); err != nil || iv <= 0 {
		return errors.New("R103").WithDetail("recording interval must be a positive duration, got " + c.Recording.Interval)
	}
	if _, err := c.LogLevel(); err != nil {
		return errors.New("R103").Wrap(err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.New("R103").WithDetail("log format must be text or json, got " + c.Log.Format)
	}
	for _, p := range c.Peers {
		if !strings.HasPrefix(p, "ws://") && !strings.HasPrefix(p, "wss://") {
			return errors.New("R103").WithDetail("peer URL must use ws:// or wss://, got " + p)
		}
	}
	if err := c.ReplicatorConfig().Validate(); err != nil {
		return errors.New("R103").Wrap(err)
	}
	return nil
}

// TickInterval parses Tick.
func (c *Config) TickInterval() (time.Duration, error) {
	return time.ParseDuration(c.Tick)
}

// FlushInterval parses Recording.Interval.
func (c *Config) FlushInterval() (time.Duration, error) {
	return time.ParseDuration(c.Recording.Interval)
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(c.Log.Level))
	return level, err
}

// RecordingEnabled reports whether traffic capture is enabled.
func (c *Config) RecordingEnabled() bool {
	return c.Recording.Dir != "" || c.Recording.Bucket != ""
}

// ReplicatorConfig returns replicator defaults with Tuning applied.
func (c *Config) ReplicatorConfig() *replicator.Config {
	rc := replicator.DefaultConfig()
	if c.Tuning.NearDistance > 0 {
		rc.NearDistance = c.Tuning.NearDistance
	}
	if c.Tuning.FarDistance > 0 {
		rc.FarDistance = c.Tuning.FarDistance
	}
	if c.Tuning.PeerTimeout > 0 {
		rc.PeerTimeout = c.Tuning.PeerTimeout
	}
	if c.Tuning.StateKeepAlive > 0 {
		rc.StateKeepAlive = c.Tuning.StateKeepAlive
	}
	return rc
}
