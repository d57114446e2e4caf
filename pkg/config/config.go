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
		ActionTimeout   time.Duration `yaml:"action_timeout"`
		PingInterval    time.Duration `yaml:"ping_interval"`
	} `yaml:"server"`

	Transport struct {
		BufferSize int `yaml:"buffer_size"`
	} `yaml:"transport"`

	Storage struct {
		Backend   string `yaml:"backend"` // memory | sqlite | redis
		Path      string `yaml:"path"`
		Namespace string `yaml:"namespace"`
		// LeaseTTL bounds how long a crashed process keeps its profiles
		// claimed on a shared Redis.
		LeaseTTL time.Duration `yaml:"lease_ttl"`
	} `yaml:"storage"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Join struct {
		RetryDelays []time.Duration `yaml:"retry_delays"`
		Timeout     time.Duration   `yaml:"timeout"`
	} `yaml:"join"`

	Camera struct {
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	} `yaml:"camera"`

	Session struct {
		RecordingPolicy string `yaml:"recording_policy"` // local | forward
	} `yaml:"session"`

	Device struct {
		Platform  string  `yaml:"platform"`
		Battery   int     `yaml:"battery"`
		StorageGB float64 `yaml:"storage_gb"`
	} `yaml:"device"`

	Monitoring struct {
		PrometheusEnabled bool          `yaml:"prometheus_enabled"`
		HealthInterval    time.Duration `yaml:"health_interval"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`

		WebSocket struct {
			ConnectionsPerMinute int `yaml:"connections_per_minute"`
			MaxConcurrent        int `yaml:"max_concurrent_connections"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Reliability struct {
		Retry struct {
			Enabled      bool          `yaml:"enabled"`
			MaxAttempts  int           `yaml:"max_attempts"`
			InitialDelay time.Duration `yaml:"initial_delay"`
			MaxDelay     time.Duration `yaml:"max_delay"`
			Multiplier   float64       `yaml:"multiplier"`
		} `yaml:"retry"`

		CircuitBreaker struct {
			Enabled             bool          `yaml:"enabled"`
			FailureThreshold    int           `yaml:"failure_threshold"`
			SuccessThreshold    int           `yaml:"success_threshold"`
			Timeout             time.Duration `yaml:"timeout"`
			MaxRequestsHalfOpen int           `yaml:"max_requests_half_open"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}
	if c.Server.ActionTimeout <= 0 {
		return fmt.Errorf("server.action_timeout must be > 0")
	}
	if c.Server.PingInterval <= 0 {
		return fmt.Errorf("server.ping_interval must be > 0")
	}

	// Transport
	if c.Transport.BufferSize <= 0 {
		return fmt.Errorf("transport.buffer_size must be > 0")
	}

	// Storage
	switch c.Storage.Backend {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path must not be empty when storage.backend=sqlite")
		}
	case "redis":
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when storage.backend=redis")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when storage.backend=redis")
		}
		if c.Storage.LeaseTTL < 3*time.Millisecond {
			return fmt.Errorf("storage.lease_ttl must be >= 3ms when storage.backend=redis")
		}
	default:
		return fmt.Errorf("storage.backend must be memory, sqlite or redis, got %q", c.Storage.Backend)
	}

	// Join
	if len(c.Join.RetryDelays) == 0 {
		return fmt.Errorf("join.retry_delays must not be empty")
	}
	for i, d := range c.Join.RetryDelays {
		if d < 0 {
			return fmt.Errorf("join.retry_delays[%d] must be >= 0", i)
		}
		if i > 0 && d < c.Join.RetryDelays[i-1] {
			return fmt.Errorf("join.retry_delays must be ascending")
		}
	}
	if c.Join.Timeout <= 0 {
		return fmt.Errorf("join.timeout must be > 0")
	}

	// Camera
	if c.Camera.HeartbeatInterval < 0 {
		return fmt.Errorf("camera.heartbeat_interval must be >= 0")
	}

	// Session
	if c.Session.RecordingPolicy != "local" && c.Session.RecordingPolicy != "forward" {
		return fmt.Errorf("session.recording_policy must be local or forward, got %q", c.Session.RecordingPolicy)
	}

	// Device
	if c.Device.Battery < 0 || c.Device.Battery > 100 {
		return fmt.Errorf("device.battery must be within 0..100")
	}
	if c.Device.StorageGB < 0 {
		return fmt.Errorf("device.storage_gb must be >= 0")
	}

	// Monitoring
	if c.Monitoring.HealthInterval <= 0 {
		return fmt.Errorf("monitoring.health_interval must be > 0")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.ConnectionsPerMinute <= 0 {
			return fmt.Errorf("rate_limiting.websocket.connections_per_minute must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_concurrent_connections must be >= 0 when rate limiting is enabled")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing is enabled")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within 0..1")
		}
	}

	// Reliability
	if c.Reliability.Retry.Enabled {
		if c.Reliability.Retry.MaxAttempts < 0 {
			return fmt.Errorf("reliability.retry.max_attempts must be >= 0")
		}
		if c.Reliability.Retry.Multiplier < 1 {
			return fmt.Errorf("reliability.retry.multiplier must be >= 1")
		}
	}
	if c.Reliability.CircuitBreaker.Enabled {
		if c.Reliability.CircuitBreaker.FailureThreshold <= 0 {
			return fmt.Errorf("reliability.circuit_breaker.failure_threshold must be > 0")
		}
		if c.Reliability.CircuitBreaker.SuccessThreshold <= 0 {
			return fmt.Errorf("reliability.circuit_breaker.success_threshold must be > 0")
		}
		if c.Reliability.CircuitBreaker.Timeout <= 0 {
			return fmt.Errorf("reliability.circuit_breaker.timeout must be > 0")
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
		// fall back to defaults
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second
	cfg.Server.ActionTimeout = 5 * time.Second
	cfg.Server.PingInterval = 30 * time.Second

	cfg.Transport.BufferSize = 64

	cfg.Storage.Backend = "sqlite"
	cfg.Storage.Path = "worldview.db"
	cfg.Storage.Namespace = "worldview"
	cfg.Storage.LeaseTTL = 15 * time.Second

	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Join.RetryDelays = []time.Duration{100 * time.Millisecond, time.Second, 3 * time.Second}
	cfg.Join.Timeout = 5 * time.Second

	cfg.Camera.HeartbeatInterval = 0

	cfg.Session.RecordingPolicy = "local"

	cfg.Device.Platform = "web"
	cfg.Device.Battery = 100
	cfg.Device.StorageGB = 64

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.HealthInterval = 30 * time.Second

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 60
	cfg.RateLimiting.WebSocket.MaxConcurrent = 0

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "worldview"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Reliability.Retry.Enabled = true
	cfg.Reliability.Retry.MaxAttempts = 2
	cfg.Reliability.Retry.InitialDelay = 50 * time.Millisecond
	cfg.Reliability.Retry.MaxDelay = time.Second
	cfg.Reliability.Retry.Multiplier = 2.0

	cfg.Reliability.CircuitBreaker.Enabled = true
	cfg.Reliability.CircuitBreaker.FailureThreshold = 5
	cfg.Reliability.CircuitBreaker.SuccessThreshold = 2
	cfg.Reliability.CircuitBreaker.Timeout = 30 * time.Second
	cfg.Reliability.CircuitBreaker.MaxRequestsHalfOpen = 3

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("WORLDVIEW_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("WORLDVIEW_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if backend := os.Getenv("WORLDVIEW_STORAGE_BACKEND"); backend != "" {
		c.Storage.Backend = backend
	}
	if path := os.Getenv("WORLDVIEW_STORAGE_PATH"); path != "" {
		c.Storage.Path = path
	}
	if addr := os.Getenv("WORLDVIEW_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
	if pw := os.Getenv("WORLDVIEW_REDIS_PASSWORD"); pw != "" {
		c.Redis.Password = pw
	}
	if policy := os.Getenv("WORLDVIEW_RECORDING_POLICY"); policy != "" {
		c.Session.RecordingPolicy = policy
	}
	if v := os.Getenv("WORLDVIEW_TRACING_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Tracing.Enabled = enabled
		}
	}
}
