package config

import (
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/apistol78/traktor-sub009/internal/errors"
	"github.com/apistol78/traktor-sub009/pkg/replicator"
)

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Listen != DefaultListen {
		t.Errorf("Listen = %q, want %q", cfg.Listen, DefaultListen)
	}
	if tick, err := cfg.TickInterval(); err != nil || tick != 16*time.Millisecond {
		t.Errorf("TickInterval() = %v, %v; want 16ms", tick, err)
	}
	if cfg.Name == "" {
		t.Errorf("Name is empty, want hostname")
	}
	if cfg.RecordingEnabled() {
		t.Errorf("RecordingEnabled() = true by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ConfigFileName)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `{
  "name": "node-a",
  "listen": "127.0.0.1:9000",
  "peers": ["ws://node-b:7700/ws"],
  "primary": true,
  "tick": "20ms",
  "log": {"level": "debug", "format": "json"},
  "tuning": {"nearDistance": 10, "farDistance": 100},
  "recording": {"dir": "/var/lib/replicad"}
}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Name != "node-a" || cfg.Listen != "127.0.0.1:9000" || !cfg.Primary {
		t.Errorf("LoadFile() = %+v", cfg)
	}
	if len(cfg.Peers) != 1 || cfg.Peers[0] != "ws://node-b:7700/ws" {
		t.Errorf("Peers = %v", cfg.Peers)
	}
	if level, _ := cfg.LogLevel(); level != slog.LevelDebug {
		t.Errorf("LogLevel() = %v, want debug", level)
	}
	if !cfg.RecordingEnabled() {
		t.Errorf("RecordingEnabled() = false with dir set")
	}
	if cfg.Path() != path {
		t.Errorf("Path() = %q, want %q", cfg.Path(), path)
	}
	if cfg.Demo.Radius != 5 {
		t.Errorf("Demo.Radius = %v, want default 5", cfg.Demo.Radius)
	}

	rc := cfg.ReplicatorConfig()
	if rc.NearDistance != 10 || rc.FarDistance != 100 {
		t.Errorf("ReplicatorConfig() distances = %v/%v, want 10/100", rc.NearDistance, rc.FarDistance)
	}
	if rc.PeerTimeout != replicator.DefaultConfig().PeerTimeout {
		t.Errorf("PeerTimeout = %v, want default", rc.PeerTimeout)
	}
}

func TestLoadFileErrors(t *testing.T) {
	tests := []struct {
		name     string
		path     func(t *testing.T) string
		wantCode string
	}{
		{
			name:     "missing file",
			path:     func(t *testing.T) string { return filepath.Join(t.TempDir(), ConfigFileName) },
			wantCode: "R100",
		},
		{
			name:     "invalid json",
			path:     func(t *testing.T) string { return writeConfig(t, "{not json") },
			wantCode: "R101",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(tt.path(t))
			var ce *errors.CLIError
			if !stderrors.As(err, &ce) || ce.Code != tt.wantCode {
				t.Errorf("LoadFile() error = %v, want code %s", err, tt.wantCode)
			}
		})
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `{"listen": ":9000", "peers": ["ws://a/ws"], "tick": "20ms"}`)
	t.Setenv("REPLICAD_LISTEN", ":9100")
	t.Setenv("REPLICAD_PEERS", "ws://b/ws,ws://c/ws")
	t.Setenv("REPLICAD_LOG_LEVEL", "warn")
	t.Setenv("REPLICAD_RECORD_BUCKET", "recordings")
	t.Setenv("REPLICAD_TUNING_PEER_TIMEOUT", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Listen != ":9100" {
		t.Errorf("Listen = %q, want :9100", cfg.Listen)
	}
	if strings.Join(cfg.Peers, " ") != "ws://b/ws ws://c/ws" {
		t.Errorf("Peers = %v", cfg.Peers)
	}
	if cfg.Tick != "20ms" {
		t.Errorf("Tick = %q, want value from file", cfg.Tick)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
	if cfg.Recording.Bucket != "recordings" {
		t.Errorf("Recording.Bucket = %q", cfg.Recording.Bucket)
	}
	if got := cfg.ReplicatorConfig().PeerTimeout; got != 5 {
		t.Errorf("PeerTimeout = %v, want 5", got)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("REPLICAD_NAME", "from-env")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Name != "from-env" {
		t.Errorf("Name = %q, want from-env", cfg.Name)
	}
}

func TestInvalidEnv(t *testing.T) {
	t.Setenv("REPLICAD_PRIMARY", "maybe")
	_, err := Load("")
	var ce *errors.CLIError
	if !stderrors.As(err, &ce) || ce.Code != "R102" {
		t.Errorf("Load() error = %v, want R102", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero tick", func(c *Config) { c.Tick = "0s" }},
		{"bad tick", func(c *Config) { c.Tick = "fast" }},
		{"bad interval", func(c *Config) { c.Recording.Interval = "-1s" }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }},
		{"http peer", func(c *Config) { c.Peers = []string{"http://a/ws"} }},
		{"inverted distances", func(c *Config) { c.Tuning.NearDistance = 200 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() error = nil")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := New()
	cfg.Name = "saved"
	cfg.Peers = []string{"ws://x/ws"}
	path := filepath.Join(t.TempDir(), ConfigFileName)
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if loaded.Name != "saved" || len(loaded.Peers) != 1 {
		t.Errorf("LoadFile() = %+v", loaded)
	}
}
