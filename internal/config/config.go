package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpiryHours int    `mapstructure:"expiry_hours"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type SMTPConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	FromName   string `mapstructure:"from_name"`
	FromEmail  string `mapstructure:"from_email"`
	DisableTLS bool   `mapstructure:"disable_tls"`
}

// ScheduleConfig drives the cron trigger layer. Hours are wall-clock hours in
// Timezone, which is also the location every "today" computation uses.
type ScheduleConfig struct {
	Timezone        string `mapstructure:"timezone"`
	MorningHour     int    `mapstructure:"morning_hour"`
	AfternoonHour   int    `mapstructure:"afternoon_hour"`
	EveningHour     int    `mapstructure:"evening_hour"`
	MissedSweepHour int    `mapstructure:"missed_sweep_hour"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Redis     RedisConfig     `mapstructure:"redis"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// Secrets are never read from the yaml file in production; they overlay the
// file values from the environment.
type envOverrides struct {
	DBHost       string `envconfig:"DB_HOST"`
	DBPassword   string `envconfig:"DB_PASSWORD"`
	JWTSecret    string `envconfig:"JWT_SECRET"`
	RedisURL     string `envconfig:"REDIS_URL"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/app/config")

	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.read_timeout", 10*time.Second)
	viper.SetDefault("server.write_timeout", 10*time.Second)
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("jwt.expiry_hours", 24)
	viper.SetDefault("schedule.timezone", "UTC")
	viper.SetDefault("schedule.morning_hour", 8)
	viper.SetDefault("schedule.afternoon_hour", 13)
	viper.SetDefault("schedule.evening_hour", 20)
	viper.SetDefault("schedule.missed_sweep_hour", 22)
	viper.SetDefault("rate_limit.requests_per_second", 50)
	viper.SetDefault("rate_limit.burst", 100)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("failed to read env overrides: %w", err)
	}
	if env.DBHost != "" {
		cfg.Database.Host = env.DBHost
	}
	if env.DBPassword != "" {
		cfg.Database.Password = env.DBPassword
	}
	if env.JWTSecret != "" {
		cfg.JWT.Secret = env.JWTSecret
	}
	if env.RedisURL != "" {
		cfg.Redis.URL = env.RedisURL
	}
	if env.SMTPPassword != "" {
		cfg.SMTP.Password = env.SMTPPassword
	}

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	return &cfg, nil
}
