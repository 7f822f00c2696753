// Package config loads the front end's TOML configuration.
//
//	[server]   TCP listener, frame limit, session, timeouts, rate limit
//	[web]      HTTP listener: WebSocket endpoint and /metrics
//	[registry] etcd discovery (optional)
//	[log]      level and format
//
// Keys left out keep their defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration written as a string such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Web      WebConfig      `toml:"web"`
	Registry RegistryConfig `toml:"registry"`
	Log      LogConfig      `toml:"log"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
	// Session is the session TCP connections share; empty gives each
	// connection its own.
	Session         string   `toml:"session"`
	MaxFrameBytes   uint32   `toml:"max_frame_bytes"`
	IdleTimeout     Duration `toml:"idle_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
	// RequestTimeout bounds how long handlers may take; zero disables it.
	RequestTimeout Duration `toml:"request_timeout"`
	// RateLimit is frames per second across all connections; zero disables it.
	RateLimit float64 `toml:"rate_limit"`
	RateBurst int     `toml:"rate_burst"`
}

type WebConfig struct {
	// Addr is the HTTP listener; empty disables WebSocket and metrics.
	Addr          string `toml:"addr"`
	WebSocketPath string `toml:"websocket_path"`
	MetricsPath   string `toml:"metrics_path"`
	// FaultPolicy is "text" or "close".
	FaultPolicy string `toml:"fault_policy"`
}

type RegistryConfig struct {
	// Endpoints lists etcd servers; empty disables registration.
	Endpoints   []string `toml:"endpoints"`
	Service     string   `toml:"service"`
	Advertise   string   `toml:"advertise"`
	Weight      int      `toml:"weight"`
	DialTimeout Duration `toml:"dial_timeout"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the configuration used for keys a file leaves out.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":7331",
			MaxFrameBytes:   16 << 20,
			ShutdownTimeout: Duration{10 * time.Second},
			RateBurst:       64,
		},
		Web: WebConfig{
			Addr:          ":7332",
			WebSocketPath: "/scene",
			MetricsPath:   "/metrics",
			FaultPolicy:   "text",
		},
		Registry: RegistryConfig{
			Service:     "scene",
			Weight:      1,
			DialTimeout: Duration{5 * time.Second},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path over the defaults and validates the result. An empty
// path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.MaxFrameBytes == 0 {
		return errors.New("server.max_frame_bytes must be positive")
	}
	if c.Server.RateLimit < 0 {
		return errors.New("server.rate_limit must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		return errors.New("server.rate_burst must be at least 1 when rate_limit is set")
	}
	for name, d := range map[string]Duration{
		"server.idle_timeout":     c.Server.IdleTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"server.request_timeout":  c.Server.RequestTimeout,
		"registry.dial_timeout":   c.Registry.DialTimeout,
	} {
		if d.Duration < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if c.Web.Addr != "" {
		if !strings.HasPrefix(c.Web.WebSocketPath, "/") {
			return fmt.Errorf("web.websocket_path %q must start with /", c.Web.WebSocketPath)
		}
		if c.Web.MetricsPath != "" && !strings.HasPrefix(c.Web.MetricsPath, "/") {
			return fmt.Errorf("web.metrics_path %q must start with /", c.Web.MetricsPath)
		}
		if c.Web.MetricsPath == c.Web.WebSocketPath {
			return errors.New("web.metrics_path and web.websocket_path must differ")
		}
	}
	switch c.Web.FaultPolicy {
	case "text", "close":
	default:
		return fmt.Errorf("web.fault_policy %q must be text or close", c.Web.FaultPolicy)
	}
	if len(c.Registry.Endpoints) > 0 {
		if c.Registry.Service == "" {
			return errors.New("registry.service is required with registry.endpoints")
		}
		if c.Registry.Advertise == "" {
			return errors.New("registry.advertise is required with registry.endpoints")
		}
	}
	return nil
}

// WriteTemplate writes a commented starting configuration to path.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const template = `[server]
addr = ":7331"
# session = "lab"          # share one scene between all TCP controllers
max_frame_bytes = 16777216
idle_timeout = "0s"
shutdown_timeout = "10s"
request_timeout = "0s"
rate_limit = 0
rate_burst = 64

[web]
addr = ":7332"
websocket_path = "/scene"
metrics_path = "/metrics"
fault_policy = "text"

[registry]
# endpoints = ["127.0.0.1:2379"]
service = "scene"
# advertise = "10.0.0.5:7331"
weight = 1
dial_timeout = "5s"

[log]
level = "info"
format = "console"
`
