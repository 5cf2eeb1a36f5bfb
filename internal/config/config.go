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

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type PricingConfig struct {
	// Per-km travel surcharge, e.g. "0.50". Parsed into decimal at wire-up.
	TravelRatePerKm string `mapstructure:"travel_rate_per_km"`
	Currency        string `mapstructure:"currency"`
}

type DistanceConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	// FallbackKm substitutes a conservative distance when the estimator is
	// unreachable; product policy, not a core invariant.
	FallbackKm float64 `mapstructure:"fallback_km"`
}

type ScheduleConfig struct {
	DaysAhead     int           `mapstructure:"days_ahead"`
	DayStart      string        `mapstructure:"day_start"`
	DayEnd        string        `mapstructure:"day_end"`
	SlotMinutes   int           `mapstructure:"slot_minutes"`
	WorkingDays   []string      `mapstructure:"working_days"`
	GenerateEvery time.Duration `mapstructure:"generate_every"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	RetentionDays int           `mapstructure:"retention_days"`
}

type EmailConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	From      string `mapstructure:"from"`
	Username  string `mapstructure:"username"`
	CancelURL string `mapstructure:"cancel_url"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type CancelTokenConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Secrets are never read from the config file, only from the environment.
type Secrets struct {
	DBPassword        string `envconfig:"DB_PASSWORD"`
	SMTPPassword      string `envconfig:"SMTP_PASSWORD"`
	CancelTokenSecret string `envconfig:"CANCEL_TOKEN_SECRET" default:"change-me"`
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Pricing     PricingConfig     `mapstructure:"pricing"`
	Distance    DistanceConfig    `mapstructure:"distance"`
	Schedule    ScheduleConfig    `mapstructure:"schedule"`
	Outbox      OutboxConfig      `mapstructure:"outbox"`
	Email       EmailConfig       `mapstructure:"email"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	CancelToken CancelTokenConfig `mapstructure:"cancel_token"`
	Log         LogConfig         `mapstructure:"log"`
	Secrets     Secrets           `mapstructure:"-"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/app")
	viper.AddConfigPath("/app/config")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process("booking", &config.Secrets); err != nil {
		return nil, fmt.Errorf("failed to process secrets: %w", err)
	}
	if config.Secrets.DBPassword != "" {
		config.Database.Password = config.Secrets.DBPassword
	}

	applyDefaults(&config)
	return &config, nil
}

func applyDefaults(c *Config) {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Pricing.TravelRatePerKm == "" {
		c.Pricing.TravelRatePerKm = "0.50"
	}
	if c.Distance.Timeout == 0 {
		c.Distance.Timeout = 3 * time.Second
	}
	if c.Distance.FallbackKm == 0 {
		c.Distance.FallbackKm = 30
	}
	if c.Schedule.DaysAhead == 0 {
		c.Schedule.DaysAhead = 14
	}
	if c.Schedule.DayStart == "" {
		c.Schedule.DayStart = "09:00"
	}
	if c.Schedule.DayEnd == "" {
		c.Schedule.DayEnd = "17:00"
	}
	if c.Schedule.SlotMinutes == 0 {
		c.Schedule.SlotMinutes = 120
	}
	if c.Schedule.GenerateEvery == 0 {
		c.Schedule.GenerateEvery = time.Hour
	}
	if c.Outbox.BatchSize == 0 {
		c.Outbox.BatchSize = 50
	}
	if c.Outbox.PollInterval == 0 {
		c.Outbox.PollInterval = 5 * time.Second
	}
	if c.Outbox.RetryAttempts == 0 {
		c.Outbox.RetryAttempts = 3
	}
	if c.Outbox.RetryDelay == 0 {
		c.Outbox.RetryDelay = 5 * time.Second
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 20
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 40
	}
	if c.CancelToken.TTL == 0 {
		c.CancelToken.TTL = 30 * 24 * time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
