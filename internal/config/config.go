package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/garyjia/docflow/internal/domain/entity"
)

// EnvPrefix prefixes every environment override, e.g. DOCFLOW_AUTH_JWT_SECRET
const EnvPrefix = "DOCFLOW"

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Logger       LoggerConfig       `mapstructure:"logger"`
	Workflow     WorkflowConfig     `mapstructure:"workflow"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Notification NotificationConfig `mapstructure:"notification"`
	Resilience   ResilienceConfig   `mapstructure:"resilience"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	Seed         SeedConfig         `mapstructure:"seed"`
	Worker       WorkerConfig       `mapstructure:"worker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// WorkflowConfig tunes the engine and statistics
type WorkflowConfig struct {
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	SigningKey       string        `mapstructure:"signing_key"`
	SingletonRoles   []string      `mapstructure:"singleton_roles"`
	TrendMonths      int           `mapstructure:"trend_months"`
	TopExecutors     int           `mapstructure:"top_executors"`
	ActivityWindow   time.Duration `mapstructure:"activity_window"`
	HandlerTimeout   time.Duration `mapstructure:"handler_timeout"`
}

// AuthConfig holds bearer token validation settings
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// StorageConfig holds attachment storage settings
type StorageConfig struct {
	AttachmentDir  string `mapstructure:"attachment_dir"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

// NotificationConfig selects the notifier. Disabled means log only.
type NotificationConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	NATSURL        string        `mapstructure:"nats_url"`
	SubjectPrefix  string        `mapstructure:"subject_prefix"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
}

// ResilienceConfig configures retries and the breaker around the broker
type ResilienceConfig struct {
	RetryMaxAttempts    int           `mapstructure:"retry_max_attempts"`
	RetryInitialBackoff time.Duration `mapstructure:"retry_initial_backoff"`
	RetryMaxBackoff     time.Duration `mapstructure:"retry_max_backoff"`
	BreakerEnabled      bool          `mapstructure:"breaker_enabled"`
	BreakerMinRequests  uint32        `mapstructure:"breaker_min_requests"`
	BreakerFailureRatio float64       `mapstructure:"breaker_failure_ratio"`
	BreakerOpenTimeout  time.Duration `mapstructure:"breaker_open_timeout"`
}

// RateLimitConfig is a per client IP token bucket
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// TracingConfig controls the stdout span exporter
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	OutputFile  string `mapstructure:"output_file"`
}

// SeedConfig points at optional reference data loaded at startup
type SeedConfig struct {
	Path string `mapstructure:"path"`
}

// WorkerConfig holds background worker settings
type WorkerConfig struct {
	OverdueInterval time.Duration `mapstructure:"overdue_interval"`
	OverdueTimeout  time.Duration `mapstructure:"overdue_timeout"`
}

// Load reads configuration from an optional YAML file, a .env file in the
// working directory and DOCFLOW_ prefixed environment variables, in
// increasing order of precedence.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv exports the variables of path without overriding the environment
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.path", "data/docflow.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 0)
	v.SetDefault("database.busy_timeout", 5*time.Second)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	// Workflow defaults
	v.SetDefault("workflow.operation_timeout", 5*time.Second)
	v.SetDefault("workflow.signing_key", "")
	v.SetDefault("workflow.singleton_roles", []string{entity.RoleRector, entity.RoleAdmin})
	v.SetDefault("workflow.trend_months", 6)
	v.SetDefault("workflow.top_executors", 5)
	v.SetDefault("workflow.activity_window", 7*24*time.Hour)
	v.SetDefault("workflow.handler_timeout", 10*time.Second)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")

	v.SetDefault("storage.attachment_dir", "data/attachments")
	v.SetDefault("storage.max_upload_bytes", 20<<20)

	v.SetDefault("notification.enabled", false)
	v.SetDefault("notification.nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("notification.subject_prefix", "docflow")
	v.SetDefault("notification.connect_timeout", 2*time.Second)
	v.SetDefault("notification.reconnect_wait", 2*time.Second)
	v.SetDefault("notification.max_reconnects", 60)

	v.SetDefault("resilience.retry_max_attempts", 3)
	v.SetDefault("resilience.retry_initial_backoff", 100*time.Millisecond)
	v.SetDefault("resilience.retry_max_backoff", 400*time.Millisecond)
	v.SetDefault("resilience.breaker_enabled", true)
	v.SetDefault("resilience.breaker_min_requests", 10)
	v.SetDefault("resilience.breaker_failure_ratio", 0.5)
	v.SetDefault("resilience.breaker_open_timeout", 30*time.Second)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "docflow")
	v.SetDefault("tracing.output_file", "")

	v.SetDefault("seed.path", "")

	v.SetDefault("worker.overdue_interval", time.Minute)
	v.SetDefault("worker.overdue_timeout", 30*time.Second)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Workflow.SigningKey == "" {
		return fmt.Errorf("workflow.signing_key is required")
	}
	if c.Workflow.OperationTimeout <= 0 {
		return fmt.Errorf("workflow.operation_timeout must be positive")
	}
	for _, role := range c.Workflow.SingletonRoles {
		if !entity.IsValidRole(role) {
			return fmt.Errorf("workflow.singleton_roles: unknown role %q", role)
		}
	}
	if c.Storage.AttachmentDir == "" {
		return fmt.Errorf("storage.attachment_dir is required")
	}
	if c.Notification.Enabled && c.Notification.NATSURL == "" {
		return fmt.Errorf("notification.nats_url is required when notifications are enabled")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate_limit requires positive requests_per_second and burst")
	}
	return nil
}

// Address returns the listen address
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
