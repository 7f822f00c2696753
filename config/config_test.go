package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "viewerd.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if cfg.Server.Addr != ":7331" || cfg.Web.WebSocketPath != "/scene" || cfg.Registry.Service != "scene" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadOverridesSomeKeys(t *testing.T) {
	path := writeConfig(t, `
[server]
addr = "127.0.0.1:9000"
session = "lab"
idle_timeout = "90s"
rate_limit = 200

[web]
fault_policy = "close"

[log]
level = "debug"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" || cfg.Server.Session != "lab" {
		t.Fatalf("server section not applied: %+v", cfg.Server)
	}
	if cfg.Server.IdleTimeout.Duration != 90*time.Second {
		t.Fatalf("idle_timeout = %v", cfg.Server.IdleTimeout)
	}
	if cfg.Server.RateLimit != 200 || cfg.Server.RateBurst != 64 {
		t.Fatalf("rate settings %v/%d", cfg.Server.RateLimit, cfg.Server.RateBurst)
	}
	if cfg.Web.FaultPolicy != "close" || cfg.Web.Addr != ":7332" {
		t.Fatalf("web section %+v", cfg.Web)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Fatalf("log section %+v", cfg.Log)
	}
}

func TestLoadRejects(t *testing.T) {
	cases := []struct {
		name, body, want string
	}{
		{"unknown key", "[server]\nport = 1\n", "unknown keys"},
		{"bad duration", "[server]\nidle_timeout = \"soon\"\n", "parse"},
		{"bad policy", "[web]\nfault_policy = \"drop\"\n", "fault_policy"},
		{"zero frame", "[server]\nmax_frame_bytes = 0\n", "max_frame_bytes"},
		{"ws path", "[web]\nwebsocket_path = \"scene\"\n", "websocket_path"},
		{"same paths", "[web]\nmetrics_path = \"/scene\"\n", "must differ"},
		{"no advertise", "[registry]\nendpoints = [\"127.0.0.1:2379\"]\n", "advertise"},
		{"burst", "[server]\nrate_limit = 5\nrate_burst = 0\n", "rate_burst"},
		{"negative", "[server]\nshutdown_timeout = \"-1s\"\n", "shutdown_timeout"},
	}
	for _, c := range cases {
		_, err := Load(writeConfig(t, c.body))
		if err == nil {
			t.Errorf("%s: expected error", c.name)
			continue
		}
		if !strings.Contains(err.Error(), c.want) {
			t.Errorf("%s: error %q does not mention %q", c.name, err, c.want)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestTemplateLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "viewerd.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("WriteTemplate failed: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("template does not load: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Fatalf("template differs from defaults:\n%+v\n%+v", cfg, Default())
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatal("WriteTemplate overwrote an existing file")
	}
}
