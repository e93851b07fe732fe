package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	WebSocket struct {
		PingInterval    time.Duration `yaml:"ping_interval"`
		PongTimeout     time.Duration `yaml:"pong_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		SendBuffer      int           `yaml:"send_buffer"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
		MaxMessageBytes int64         `yaml:"max_message_bytes"`
	} `yaml:"websocket"`

	Session struct {
		DefaultGroupName     string        `yaml:"default_group_name"`
		SubchannelsSupported bool          `yaml:"subchannels_supported"`
		HostVariant          string        `yaml:"host_variant"`
		ViewMode             string        `yaml:"view_mode"`
		RoomListTTL          time.Duration `yaml:"room_list_ttl"`
		RequestTimeout       time.Duration `yaml:"request_timeout"`
		LoopbackLatency      time.Duration `yaml:"loopback_latency"`
		InputsPrepareDelay   time.Duration `yaml:"inputs_prepare_delay"`
		DispatchBuffer       int           `yaml:"dispatch_buffer"`
	} `yaml:"session"`

	Plugins struct {
		ScanOnStart bool     `yaml:"scan_on_start"`
		Directories []string `yaml:"directories"`
		Blacklist   []string `yaml:"blacklist"`
	} `yaml:"plugins"`

	Backup struct {
		Enabled   bool          `yaml:"enabled"`
		Directory string        `yaml:"directory"`
		Interval  time.Duration `yaml:"interval"`
		Keep      int           `yaml:"keep"`
		// RestoreOnStart applies the newest backup when no saved inputs exist.
		RestoreOnStart bool `yaml:"restore_on_start"`
	} `yaml:"backup"`

	Monitoring struct {
		PrometheusEnabled bool   `yaml:"prometheus_enabled"`
		MetricsPath       string `yaml:"metrics_path"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled   bool   `yaml:"enabled"`
		Address   string `yaml:"address"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		PoolSize  int    `yaml:"pool_size"`
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"redis"`

	Auth struct {
		Enabled     bool          `yaml:"enabled"`
		JWTSecret   string        `yaml:"jwt_secret"`
		PairingCode string        `yaml:"pairing_code"`
		TokenTTL    time.Duration `yaml:"token_ttl"`
		RefreshTTL  time.Duration `yaml:"refresh_ttl"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled           bool    `yaml:"enabled"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
		CommandsPerSecond float64 `yaml:"commands_per_second"`
	} `yaml:"rate_limiting"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.read_timeout and server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("websocket.ping_interval must be > 0")
	}
	if c.WebSocket.PongTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("websocket.pong_timeout must be greater than websocket.ping_interval")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("websocket.send_buffer must be > 0")
	}

	if c.Session.DefaultGroupName == "" {
		return fmt.Errorf("session.default_group_name must not be empty")
	}
	switch c.Session.HostVariant {
	case "standalone", "plugin":
	default:
		return fmt.Errorf("session.host_variant must be standalone or plugin, got %q", c.Session.HostVariant)
	}
	switch c.Session.ViewMode {
	case "mini", "full", "full-screen":
	default:
		return fmt.Errorf("session.view_mode must be mini, full or full-screen, got %q", c.Session.ViewMode)
	}
	if c.Session.RoomListTTL < 0 {
		return fmt.Errorf("session.room_list_ttl must be >= 0")
	}
	if c.Session.RequestTimeout <= 0 {
		return fmt.Errorf("session.request_timeout must be > 0")
	}
	if c.Session.DispatchBuffer <= 0 {
		return fmt.Errorf("session.dispatch_buffer must be > 0")
	}

	if c.Backup.Enabled {
		if c.Backup.Directory == "" {
			return fmt.Errorf("backup.directory must not be empty when backup.enabled=true")
		}
		if c.Backup.Interval <= 0 {
			return fmt.Errorf("backup.interval must be > 0 when backup.enabled=true")
		}
		if c.Backup.Keep < 0 {
			return fmt.Errorf("backup.keep must be >= 0")
		}
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.MetricsPath == "" {
		return fmt.Errorf("monitoring.metrics_path must not be empty when prometheus_enabled=true")
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	if c.Auth.Enabled {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret must not be empty when auth.enabled=true")
		}
		if c.Auth.PairingCode == "" {
			return fmt.Errorf("auth.pairing_code must not be empty when auth.enabled=true")
		}
		if c.Auth.TokenTTL <= 0 || c.Auth.RefreshTTL < c.Auth.TokenTTL {
			return fmt.Errorf("auth.token_ttl must be > 0 and auth.refresh_ttl must not be shorter")
		}
	}

	if c.RateLimiting.Enabled {
		if c.RateLimiting.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.CommandsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.commands_per_second must be > 0 when rate limiting is enabled")
		}
	}

	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		// defaults only
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = "127.0.0.1:7600"
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.ShutdownTimeout = 10 * time.Second

	cfg.WebSocket.PingInterval = 30 * time.Second
	cfg.WebSocket.PongTimeout = 60 * time.Second
	cfg.WebSocket.WriteTimeout = 10 * time.Second
	cfg.WebSocket.SendBuffer = 64
	cfg.WebSocket.MaxMessageBytes = 16 * 1024

	cfg.Session.DefaultGroupName = "my channel"
	cfg.Session.SubchannelsSupported = true
	cfg.Session.HostVariant = "standalone"
	cfg.Session.ViewMode = "full"
	cfg.Session.RoomListTTL = 2 * time.Minute
	cfg.Session.RequestTimeout = 10 * time.Second
	cfg.Session.LoopbackLatency = 200 * time.Millisecond
	cfg.Session.InputsPrepareDelay = 500 * time.Millisecond
	cfg.Session.DispatchBuffer = 256

	cfg.Plugins.ScanOnStart = false

	cfg.Backup.Enabled = false
	cfg.Backup.Directory = "backups"
	cfg.Backup.Interval = 10 * time.Minute
	cfg.Backup.Keep = 20

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.MetricsPath = "/metrics"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.PoolSize = 10
	cfg.Redis.KeyPrefix = "jamlink:"

	cfg.Auth.Enabled = false
	cfg.Auth.TokenTTL = 12 * time.Hour
	cfg.Auth.RefreshTTL = 30 * 24 * time.Hour

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.RequestsPerSecond = 20
	cfg.RateLimiting.Burst = 40
	cfg.RateLimiting.CommandsPerSecond = 10

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "jamlink"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	return cfg
}

func (c *Config) applyEnvOverrides() error {
	if addr := os.Getenv("JAMLINK_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("JAMLINK_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if mode := os.Getenv("JAMLINK_VIEW_MODE"); mode != "" {
		c.Session.ViewMode = mode
	}
	if secret := os.Getenv("JAMLINK_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if code := os.Getenv("JAMLINK_PAIRING_CODE"); code != "" {
		c.Auth.PairingCode = code
	}
	if addr := os.Getenv("JAMLINK_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
	if enabled := os.Getenv("JAMLINK_REDIS_ENABLED"); enabled != "" {
		v, err := strconv.ParseBool(enabled)
		if err != nil {
			return fmt.Errorf("JAMLINK_REDIS_ENABLED: %w", err)
		}
		c.Redis.Enabled = v
	}
	return nil
}
