package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all configuration for our application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Health    HealthConfig    `mapstructure:"health"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	Env             string        `mapstructure:"env"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig leaves Addr empty to run without the status cache and sweep lock
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	StatusTTL time.Duration `mapstructure:"status_ttl"`
}

type SchedulerConfig struct {
	SweepCron        string        `mapstructure:"sweep_cron"`
	ReminderCron     string        `mapstructure:"reminder_cron"`
	Timezone         string        `mapstructure:"timezone"`
	ReminderWindow   time.Duration `mapstructure:"reminder_window"`
	SweepConcurrency int           `mapstructure:"sweep_concurrency"`
	SweepLockTTL     time.Duration `mapstructure:"sweep_lock_ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type GatewayConfig struct {
	Timeout                time.Duration `mapstructure:"timeout"`
	FinishRedirectURL      string        `mapstructure:"finish_redirect_url"`
	MidtransServerKey      string        `mapstructure:"midtrans_server_key"`
	MidtransBaseURL        string        `mapstructure:"midtrans_base_url"`
	MockEnabled            bool          `mapstructure:"mock_enabled"`
	MockSuccessProbability float64       `mapstructure:"mock_success_probability"`
	MockDelay              time.Duration `mapstructure:"mock_delay"`
	MockSecret             string        `mapstructure:"mock_secret"`
}

// KafkaConfig leaves Brokers empty to log notifications instead of publishing them
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	Buffer  int      `mapstructure:"buffer"`
}

type HealthConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

var defaults = map[string]any{
	"server.port":             "8080",
	"server.host":             "0.0.0.0",
	"server.env":              "development",
	"server.read_timeout":     "15s",
	"server.write_timeout":    "15s",
	"server.shutdown_timeout": "30s",

	"database.driver":            DriverPostgres,
	"database.url":               "",
	"database.max_open_conns":    25,
	"database.max_idle_conns":    5,
	"database.conn_max_lifetime": "5m",

	"redis.addr":       "",
	"redis.password":   "",
	"redis.db":         0,
	"redis.status_ttl": "10m",

	"scheduler.sweep_cron":        "0 0 0 * * *",
	"scheduler.reminder_cron":     "0 0 9 * * *",
	"scheduler.timezone":          "Asia/Jakarta",
	"scheduler.reminder_window":   "72h",
	"scheduler.sweep_concurrency": 8,
	"scheduler.sweep_lock_ttl":    "10m",

	"logging.level":  "info",
	"logging.format": "json",

	"auth.jwt_secret": "",

	"gateway.timeout":                  "15s",
	"gateway.finish_redirect_url":      "",
	"gateway.midtrans_server_key":      "",
	"gateway.midtrans_base_url":        "https://app.sandbox.midtrans.com",
	"gateway.mock_enabled":             true,
	"gateway.mock_success_probability": 1.0,
	"gateway.mock_delay":               "0s",
	"gateway.mock_secret":              "",

	"kafka.brokers": []string{},
	"kafka.topic":   "installment-notifications",
	"kafka.buffer":  256,

	"health.timeout": "5s",
}

// Load reads configuration from environment variables and an optional .env file.
// Every key maps to an upper-case env name with dots replaced by underscores,
// e.g. scheduler.sweep_concurrency is SCHEDULER_SWEEP_CONCURRENCY.
func Load() (*Config, error) {
	// .env never overrides variables already present in the environment
	for _, f := range []string{".env", "deployments/.env"} {
		_ = godotenv.Load(f)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Short names kept from earlier deployments
	_ = v.BindEnv("logging.level", "LOGGING_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOGGING_FORMAT", "LOG_FORMAT")
	_ = v.BindEnv("server.env", "SERVER_ENV", "ENV")
	_ = v.BindEnv("auth.jwt_secret", "AUTH_JWT_SECRET", "JWT_SECRET")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("DATABASE_DRIVER must be %q or %q", DriverPostgres, DriverMemory)
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("SCHEDULER_TIMEZONE must be a valid IANA zone: %w", err)
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Scheduler.SweepCron); err != nil {
		return fmt.Errorf("SCHEDULER_SWEEP_CRON is invalid: %w", err)
	}
	if _, err := parser.Parse(c.Scheduler.ReminderCron); err != nil {
		return fmt.Errorf("SCHEDULER_REMINDER_CRON is invalid: %w", err)
	}

	if c.Scheduler.SweepConcurrency <= 0 {
		return fmt.Errorf("SCHEDULER_SWEEP_CONCURRENCY must be greater than 0")
	}

	if c.Scheduler.ReminderWindow <= 0 {
		return fmt.Errorf("SCHEDULER_REMINDER_WINDOW must be greater than 0")
	}

	if c.Gateway.MockSuccessProbability < 0 || c.Gateway.MockSuccessProbability > 1 {
		return fmt.Errorf("GATEWAY_MOCK_SUCCESS_PROBABILITY must be between 0 and 1")
	}

	if !c.Gateway.MockEnabled && c.Gateway.MidtransServerKey == "" {
		return fmt.Errorf("at least one payment provider must be configured")
	}

	if c.IsProduction() {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("AUTH_JWT_SECRET is required in production")
		}
		if c.Gateway.MockEnabled {
			return fmt.Errorf("the mock payment provider cannot run in production")
		}
	}

	if c.Health.Timeout <= 0 {
		return fmt.Errorf("HEALTH_TIMEOUT must be greater than 0")
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development" || c.Server.Env == "dev"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production" || c.Server.Env == "prod"
}

// Address returns the listen address of the HTTP server
func (c *Config) Address() string {
	return c.Server.Host + ":" + c.Server.Port
}

// Location returns the scheduler time zone, falling back to UTC
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
