package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Prospect  ProspectConfig  `mapstructure:"prospect"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Anonymize AnonymizeConfig `mapstructure:"anonymize"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port" validate:"min=1,max=65535"`
	Mode string `mapstructure:"mode" validate:"oneof=debug release test"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	DSN          string `mapstructure:"dsn" validate:"required"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"min=1"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"min=0"`
	Debug        bool   `mapstructure:"debug"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	FlagTTL  time.Duration `mapstructure:"flag_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name" validate:"required"`
	Insecure    bool   `mapstructure:"insecure"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type ProspectConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	BaseURL       string        `mapstructure:"base_url" validate:"required,url"`
	APIKey        string        `mapstructure:"api_key"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"min=1"`
	RatePerSecond float64       `mapstructure:"rate_per_second" validate:"gt=0"`
	Burst         int           `mapstructure:"burst" validate:"min=1"`
}

type OutboxConfig struct {
	BatchSize        int           `mapstructure:"batch_size" validate:"min=1,max=1000"`
	MaxRetries       int           `mapstructure:"max_retries" validate:"min=0"`
	DispatchSchedule string        `mapstructure:"dispatch_schedule" validate:"required"`
	CleanupSchedule  string        `mapstructure:"cleanup_schedule" validate:"required"`
	Retention        time.Duration `mapstructure:"retention" validate:"min=1"`
	HookWorkers      int           `mapstructure:"hook_workers" validate:"min=1"`
	HookQueueSize    int           `mapstructure:"hook_queue_size" validate:"min=1"`
	HookTimeout      time.Duration `mapstructure:"hook_timeout" validate:"min=1"`
}

type AnonymizeConfig struct {
	Salt string `mapstructure:"salt"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=clearstack port=5432 sslmode=disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 10)

	v.SetDefault("database.debug", false)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.flag_ttl", 5*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "development")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "clearstack")
	v.SetDefault("tracing.insecure", false)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("anonymize.salt", "")

	v.SetDefault("prospect.enabled", false)
	v.SetDefault("prospect.base_url", "https://api.prospect.example")
	v.SetDefault("prospect.api_key", "")
	v.SetDefault("prospect.timeout", 10*time.Second)
	v.SetDefault("prospect.rate_per_second", 5)
	v.SetDefault("prospect.burst", 5)

	v.SetDefault("outbox.batch_size", 50)
	v.SetDefault("outbox.max_retries", 5)
	v.SetDefault("outbox.dispatch_schedule", "@every 10m")
	v.SetDefault("outbox.cleanup_schedule", "0 3 * * *")
	v.SetDefault("outbox.retention", 30*24*time.Hour)
	v.SetDefault("outbox.hook_workers", 4)
	v.SetDefault("outbox.hook_queue_size", 1000)
	v.SetDefault("outbox.hook_timeout", 30*time.Second)
}

// Load reads config.yaml (optional), then CLEARSTACK_* environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	return load(v)
}

// LoadFile reads the given file instead of searching the default paths.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix("CLEARSTACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
