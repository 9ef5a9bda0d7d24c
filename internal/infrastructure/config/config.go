package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Logging   LogConfig       `toml:"logging"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Engine    EngineConfig    `toml:"engine"`
	Proxy     ProxyConfig     `toml:"proxy"`
	Storage   StorageConfig   `toml:"storage"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" toml:"port"`
	Host string `envconfig:"HOST" toml:"host"`
	// PublicURL is the same-origin base the bridge client posts to. Empty
	// means http://127.0.0.1:<Port>.
	PublicURL string `envconfig:"PUBLIC_URL" toml:"public_url"`
	// AllowOrigins restricts CORS; empty allows any origin.
	AllowOrigins []string `envconfig:"CORS_ORIGINS" toml:"allow_origins"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" toml:"development"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" toml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" toml:"enabled"`
	ProxyRPS          int  `envconfig:"RATE_LIMIT_PROXY_RPS" toml:"proxy_requests_per_second"`
	ProxyBurst        int  `envconfig:"RATE_LIMIT_PROXY_BURST" toml:"proxy_burst"`
}

// EngineConfig tunes the widget execution engine.
type EngineConfig struct {
	// RenderLoopThreshold is the number of renders allowed inside one
	// RenderWindow before the guard declares a render loop.
	RenderLoopThreshold int      `envconfig:"WIDGET_RENDER_LOOP_THRESHOLD" toml:"render_loop_threshold"`
	RenderWindow        Duration `envconfig:"WIDGET_RENDER_WINDOW" toml:"render_window"`
	ExecTimeout         Duration `envconfig:"WIDGET_EXEC_TIMEOUT" toml:"exec_timeout"`
	ConsoleBuffer       int      `envconfig:"WIDGET_CONSOLE_BUFFER" toml:"console_buffer"`
	SyncTimeout         Duration `envconfig:"WIDGET_SYNC_TIMEOUT" toml:"sync_timeout"`
}

// ProxyConfig holds network bridge configuration.
type ProxyConfig struct {
	Path            string   `envconfig:"PROXY_PATH" toml:"path"`
	Timeout         Duration `envconfig:"PROXY_TIMEOUT" toml:"timeout"`
	InsecureTLS     bool     `envconfig:"PROXY_INSECURE_TLS" toml:"insecure_tls"`
	UserAgent       string   `envconfig:"PROXY_USER_AGENT" toml:"user_agent"`
	MaxBodyBytes    int64    `envconfig:"PROXY_MAX_BODY_BYTES" toml:"max_body_bytes"`
	BreakerFailures uint32   `envconfig:"PROXY_BREAKER_FAILURES" toml:"breaker_failures"`
	BreakerTimeout  Duration `envconfig:"PROXY_BREAKER_TIMEOUT" toml:"breaker_timeout"`
}

// StorageConfig selects the widget record store.
type StorageConfig struct {
	Driver  string `envconfig:"STORAGE_DRIVER" toml:"driver"`
	DSN     string `envconfig:"STORAGE_DSN" toml:"dsn"`
	SeedDir string `envconfig:"WIDGET_SEED_DIR" toml:"seed_dir"`
	Watch   bool   `envconfig:"WIDGET_WATCH" toml:"watch"`
}

// Duration decodes "250ms"-style strings from both TOML and the environment.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Load loads configuration from defaults and environment variables.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile layers defaults, an optional TOML file and then the environment.
// An empty path falls back to DASHBOARD_CONFIG; a missing file is an error
// only when a path was given explicitly.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("DASHBOARD_CONFIG")
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case explicit || !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
			ProxyRPS:          20,
			ProxyBurst:        40,
		},
		Engine: EngineConfig{
			RenderLoopThreshold: 170,
			RenderWindow:        Duration{time.Second},
			ExecTimeout:         Duration{250 * time.Millisecond},
			ConsoleBuffer:       100,
			SyncTimeout:         Duration{5 * time.Second},
		},
		Proxy: ProxyConfig{
			Path:            "/api/proxy",
			Timeout:         Duration{30 * time.Second},
			InsecureTLS:     true,
			UserAgent:       "Mozilla/5.0 (compatible; DashboardProxy/1.0)",
			MaxBodyBytes:    10 << 20,
			BreakerFailures: 5,
			BreakerTimeout:  Duration{30 * time.Second},
		},
		Storage: StorageConfig{
			Driver: "memory",
			DSN:    "dashboard.db",
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("config: server port is required")
	}
	if c.Engine.RenderLoopThreshold <= 0 {
		return fmt.Errorf("config: render loop threshold must be positive, got %d", c.Engine.RenderLoopThreshold)
	}
	if c.Engine.RenderWindow.Duration <= 0 {
		return errors.New("config: render window must be positive")
	}
	if c.Engine.ExecTimeout.Duration <= 0 {
		return errors.New("config: exec timeout must be positive")
	}
	if c.Proxy.Path == "" || c.Proxy.Path[0] != '/' {
		return fmt.Errorf("config: proxy path must start with '/', got %q", c.Proxy.Path)
	}
	switch c.Storage.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}

// BridgeBaseURL returns the same-origin URL the bridge client targets.
func (c *Config) BridgeBaseURL() string {
	if c.Server.PublicURL != "" {
		return c.Server.PublicURL
	}
	return "http://127.0.0.1:" + c.Server.Port
}
