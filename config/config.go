package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// Application behaviour
	App AppConfig `mapstructure:"app"`

	// Owner authentication
	Auth AuthConfig `mapstructure:"auth"`

	// PostgreSQL
	Postgres PostgresConfig `mapstructure:"postgres"`

	// Redis
	Redis RedisConfig `mapstructure:"redis"`

	// NATS
	NATS NATSConfig `mapstructure:"nats"`

	// Click pipeline
	Clicks ClicksConfig `mapstructure:"clicks"`

	// Expired-link cleanup
	Cleanup CleanupConfig `mapstructure:"cleanup"`

	// Creation rate limiting
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// Prometheus
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

type AppConfig struct {
	Environment string `mapstructure:"environment"`
	Port        int    `mapstructure:"port"`
	// PublicBaseURL overrides the request host when building short URLs.
	PublicBaseURL   string `mapstructure:"public_base_url"`
	CodeLength      int    `mapstructure:"code_length"`
	MaxCodeAttempts int    `mapstructure:"max_code_attempts"`
	// TrustProxy makes X-Forwarded-For the preferred client address.
	// The header is caller-controlled and only ever feeds analytics.
	TrustProxy bool `mapstructure:"trust_proxy"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type PostgresConfig struct {
	Host              string `mapstructure:"host"`
	User              string `mapstructure:"user"`
	Password          string `mapstructure:"password"`
	Database          string `mapstructure:"database"`
	Port              int    `mapstructure:"port"`
	SSLMode           string `mapstructure:"sslmode"`
	MaxConns          int32  `mapstructure:"max_conns"`
	MinConns          int32  `mapstructure:"min_conns"`
	MaxConnLifetime   string `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   string `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod string `mapstructure:"health_check_period"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	MonitorPort int    `mapstructure:"monitor_port"`
}

type ClicksConfig struct {
	// Async routes click events through NATS JetStream instead of writing them directly.
	Async     bool `mapstructure:"async"`
	// Workers append events in the background; 0 appends inline on the redirect.
	Workers   int  `mapstructure:"workers"`
	QueueSize int  `mapstructure:"queue_size"`
}

// CleanupConfig schedules purging of links whose expiry time has passed.
// Purged links answer 404 instead of 410 and lose their click history.
// Links stopped by their click budget are kept.
type CleanupConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Schedule string        `mapstructure:"schedule"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type RateLimitConfig struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

type PrometheusConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		App: AppConfig{
			Environment: "development",
			Port:        8080,
			CodeLength:  7,
		},
		Auth: AuthConfig{
			Issuer: "powerlink",
		},
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Database: "powerlink",
			SSLMode:  "disable",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		NATS: NATSConfig{
			Host: "localhost",
			Port: 4222,
		},
		Clicks: ClicksConfig{
			Workers:   4,
			QueueSize: 1024,
		},
		Cleanup: CleanupConfig{
			Schedule: "@every 1h",
			LockTTL:  5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			MaxRequests: 20,
			Window:      15 * time.Minute,
		},
		Prometheus: PrometheusConfig{
			Port: 9090,
		},
	}
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Environment, "production")
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.App.CodeLength < 1 || c.App.CodeLength > 20 {
		errs = append(errs, fmt.Errorf("app.code_length must be between 1 and 20, got %d", c.App.CodeLength))
	}
	if c.App.MaxCodeAttempts < 0 {
		errs = append(errs, errors.New("app.max_code_attempts must not be negative"))
	}
	if c.Clicks.Workers < 0 {
		errs = append(errs, errors.New("clicks.workers must not be negative"))
	}
	return errors.Join(errs...)
}

func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v, Default())

	// Search for config/config.yaml (plus root for overrides).
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Allow environment variables to override YAML entries.
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("app.environment", d.App.Environment)
	v.SetDefault("app.port", d.App.Port)
	v.SetDefault("app.code_length", d.App.CodeLength)
	v.SetDefault("app.max_code_attempts", d.App.MaxCodeAttempts)
	v.SetDefault("app.trust_proxy", d.App.TrustProxy)

	v.SetDefault("auth.issuer", d.Auth.Issuer)

	v.SetDefault("postgres.host", d.Postgres.Host)
	v.SetDefault("postgres.port", d.Postgres.Port)
	v.SetDefault("postgres.user", d.Postgres.User)
	v.SetDefault("postgres.database", d.Postgres.Database)
	v.SetDefault("postgres.sslmode", d.Postgres.SSLMode)

	v.SetDefault("redis.host", d.Redis.Host)
	v.SetDefault("redis.port", d.Redis.Port)

	v.SetDefault("nats.host", d.NATS.Host)
	v.SetDefault("nats.port", d.NATS.Port)

	v.SetDefault("clicks.async", d.Clicks.Async)
	v.SetDefault("clicks.workers", d.Clicks.Workers)
	v.SetDefault("clicks.queue_size", d.Clicks.QueueSize)

	v.SetDefault("cleanup.enabled", d.Cleanup.Enabled)
	v.SetDefault("cleanup.schedule", d.Cleanup.Schedule)
	v.SetDefault("cleanup.lock_ttl", d.Cleanup.LockTTL)

	v.SetDefault("rate_limit.max_requests", d.RateLimit.MaxRequests)
	v.SetDefault("rate_limit.window", d.RateLimit.Window)

	v.SetDefault("prometheus.port", d.Prometheus.Port)
}

func bindEnvVars(v *viper.Viper) {
	// Application
	v.BindEnv("app.environment", "APP_ENV")
	v.BindEnv("app.port", "APP_PORT")
	v.BindEnv("app.public_base_url", "PUBLIC_BASE_URL")
	v.BindEnv("app.trust_proxy", "TRUST_PROXY")

	// Auth
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")

	// PostgreSQL
	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
	v.BindEnv("postgres.sslmode", "PG_SSLMODE")

	// Redis
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// NATS
	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")
	v.BindEnv("nats.user", "NATS_USER")
	v.BindEnv("nats.password", "NATS_PASSWORD")
	v.BindEnv("nats.monitor_port", "NATS_MONITOR_PORT")

	// Click pipeline
	v.BindEnv("clicks.async", "CLICKS_ASYNC")
	v.BindEnv("clicks.workers", "CLICKS_WORKERS")

	// Cleanup
	v.BindEnv("cleanup.enabled", "CLEANUP_ENABLED")
	v.BindEnv("cleanup.schedule", "CLEANUP_SCHEDULE")

	// Prometheus
	v.BindEnv("prometheus.enabled", "PROM_ENABLED")
	v.BindEnv("prometheus.port", "PROM_PORT")
}
