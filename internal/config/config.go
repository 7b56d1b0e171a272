package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Telephony TelephonyConfig `mapstructure:"telephony"`
	AI        AIConfig
	Dialer    DialerConfig    `mapstructure:"dialer"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// Runtime flags (set from command line, not the config file)
	ForceMigrate bool `mapstructure:"-"`
	MigrateOnly  bool `mapstructure:"-"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type TelephonyConfig struct {
	AccountSID  string        `mapstructure:"account_sid"`
	AuthToken   string        `mapstructure:"auth_token"`
	PhoneNumber string        `mapstructure:"phone_number"`
	BaseURL     string        `mapstructure:"base_url"`
	WebhookURL  string        `mapstructure:"webhook_url"`
	DialTimeout time.Duration `mapstructure:"dial_timeout_seconds"`
}

type AIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout_seconds"`
}

// DialerConfig carries the call orchestration policy. Every value here is
// hot-reloadable through the config watcher.
type DialerConfig struct {
	MaxConcurrentCalls      int           `mapstructure:"max_concurrent_calls"`
	MaxCallAttempts         int           `mapstructure:"max_call_attempts"`
	CallsPerMinutePerSurvey int           `mapstructure:"calls_per_minute_per_survey"`
	MaxClarificationRounds  int           `mapstructure:"max_clarification_rounds"`
	MaxSilenceRetries       int           `mapstructure:"max_silence_retries"`
	ListenTimeout           time.Duration `mapstructure:"listen_timeout_seconds"`
	MaxTurnTime             time.Duration `mapstructure:"max_turn_time_seconds"`
	ScheduleInterval        time.Duration `mapstructure:"schedule_interval_seconds"`
	RetryBackoff            []string      `mapstructure:"retry_backoff"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

// RetryBackoffSchedule parses the configured backoff schedule, falling back
// to the 30m/2h/24h defaults when the config is empty or malformed.
func (c DialerConfig) RetryBackoffSchedule() []time.Duration {
	defaults := []time.Duration{30 * time.Minute, 2 * time.Hour, 24 * time.Hour}
	if len(c.RetryBackoff) == 0 {
		return defaults
	}
	schedule := make([]time.Duration, 0, len(c.RetryBackoff))
	for _, raw := range c.RetryBackoff {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return defaults
		}
		schedule = append(schedule, d)
	}
	return schedule
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("VOICE_SURVEY")
	viper.AutomaticEnv()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// Telephony provider
	viper.BindEnv("telephony.account_sid", "TWILIO_ACCOUNT_SID")
	viper.BindEnv("telephony.auth_token", "TWILIO_AUTH_TOKEN")
	viper.BindEnv("telephony.phone_number", "TWILIO_PHONE_NUMBER")
	viper.BindEnv("telephony.base_url", "TWILIO_BASE_URL")
	viper.BindEnv("telephony.webhook_url", "TWILIO_WEBHOOK_URL")

	// AI
	viper.BindEnv("ai.base_url", "AI_BASE_URL")
	viper.BindEnv("ai.api_key", "AI_API_KEY")
	viper.BindEnv("ai.model", "AI_MODEL")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Telephony.DialTimeout = cfg.Telephony.DialTimeout * time.Second
	cfg.AI.Timeout = cfg.AI.Timeout * time.Second
	cfg.Dialer.ListenTimeout = cfg.Dialer.ListenTimeout * time.Second
	cfg.Dialer.MaxTurnTime = cfg.Dialer.MaxTurnTime * time.Second
	cfg.Dialer.ScheduleInterval = cfg.Dialer.ScheduleInterval * time.Second

	ApplyDialerDefaults(&cfg.Dialer)

	if cfg.Server.Mode == "release" && cfg.Telephony.AccountSID == "" {
		return nil, fmt.Errorf("telephony account_sid must be set in release mode")
	}

	return &cfg, nil
}

// ApplyDialerDefaults fills zero-valued policy fields with the documented
// defaults: 10 concurrent calls, 3 attempts, 2 clarification rounds,
// 1 silence retry, 15s listen timeout.
func ApplyDialerDefaults(d *DialerConfig) {
	if d.MaxConcurrentCalls <= 0 {
		d.MaxConcurrentCalls = 10
	}
	if d.MaxCallAttempts <= 0 {
		d.MaxCallAttempts = 3
	}
	if d.CallsPerMinutePerSurvey <= 0 {
		d.CallsPerMinutePerSurvey = 30
	}
	if d.MaxClarificationRounds <= 0 {
		d.MaxClarificationRounds = 2
	}
	if d.MaxSilenceRetries <= 0 {
		d.MaxSilenceRetries = 1
	}
	if d.ListenTimeout <= 0 {
		d.ListenTimeout = 15 * time.Second
	}
	if d.MaxTurnTime <= 0 {
		d.MaxTurnTime = 10 * time.Minute
	}
	if d.ScheduleInterval <= 0 {
		d.ScheduleInterval = 10 * time.Second
	}
}
