package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTOML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coremgr.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadFull(t *testing.T) {
	path := writeTOML(t, `
[core]
binary = "/usr/local/bin/core"
data_dir = "/var/lib/vortex"
config = "/etc/vortex/core.yaml"
grace_period = "750ms"
stop_wait = "5s"

[monitor]
poll_interval = "2s"
poll_backoff = "10s"

[log]
dir = "/var/log/vortex"
max_size_mb = 20

[history]
enabled = true
dsn = ":memory:"

[probe]
schedule = "@every 30s"
proxy = "AUTO"

[server]
listen = "127.0.0.1:7000"
base_path = "/ctl"

[server.tls]
enabled = true
dir = "/etc/vortex/tls"
auto_generate = true
`)
	fc, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fc.Core.Binary != "/usr/local/bin/core" {
		t.Fatalf("binary = %s", fc.Core.Binary)
	}
	if fc.Core.GracePeriod != 750*time.Millisecond {
		t.Fatalf("grace = %v", fc.Core.GracePeriod)
	}
	if fc.Monitor.PollBackoff != 10*time.Second {
		t.Fatalf("backoff = %v", fc.Monitor.PollBackoff)
	}
	if fc.Log.MaxSizeMB != 20 {
		t.Fatalf("max size = %d", fc.Log.MaxSizeMB)
	}
	if !fc.History.Enabled || fc.History.DSN != ":memory:" {
		t.Fatalf("history = %+v", fc.History)
	}
	if fc.Probe.Schedule != "@every 30s" || fc.Probe.URL != DefaultProbeURL {
		t.Fatalf("probe = %+v", fc.Probe)
	}
	if fc.Server.Listen != "127.0.0.1:7000" || fc.Server.BasePath != "/ctl" {
		t.Fatalf("server = %+v", fc.Server)
	}
	if fc.Server.TLS == nil || !fc.Server.TLS.Enabled || !fc.Server.TLS.AutoGenerate {
		t.Fatalf("tls = %+v", fc.Server.TLS)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeTOML(t, "[core]\nbinary = \"/bin/core\"\n")
	fc, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fc.Core.DataDir == "" {
		t.Fatalf("data dir default missing")
	}
	if !strings.HasPrefix(fc.Core.Config, fc.Core.DataDir) {
		t.Fatalf("core config should default under data dir, got %s", fc.Core.Config)
	}
	if fc.Log.Dir == "" {
		t.Fatalf("log dir default missing")
	}
	if fc.Probe.TimeoutMs != 5000 {
		t.Fatalf("probe timeout default = %d", fc.Probe.TimeoutMs)
	}
	if fc.Server.Listen != "127.0.0.1:9898" || fc.Server.BasePath != "/api" {
		t.Fatalf("server defaults = %+v", fc.Server)
	}
	if fc.History.Enabled {
		t.Fatalf("history should default to disabled")
	}
}

func TestLoadMissingBinary(t *testing.T) {
	path := writeTOML(t, "[server]\nlisten = \"127.0.0.1:1\"\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing core.binary")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
