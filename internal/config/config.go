// Package config loads service configuration from file and environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	S3          S3Config          `mapstructure:"s3"`
	Instagram   InstagramConfig   `mapstructure:"instagram"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Planner     PlannerConfig     `mapstructure:"planner"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug | release | test
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DatabaseConfig struct {
	Host                   string `mapstructure:"host"`
	Port                   int    `mapstructure:"port"`
	User                   string `mapstructure:"user"`
	Password               string `mapstructure:"password"`
	DBName                 string `mapstructure:"dbname"`
	SSLMode                string `mapstructure:"sslmode"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes"`
}

// DSN 构造 lib/pq 连接串
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMinutes) * time.Minute
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type S3Config struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
	// PublicBaseURL, when set, is joined with the object key to build media
	// URLs the platform can fetch; otherwise presigned GET URLs are issued.
	PublicBaseURL     string `mapstructure:"public_base_url"`
	PresignTTLMinutes int    `mapstructure:"presign_ttl_minutes"`
}

func (c S3Config) PresignTTL() time.Duration {
	return time.Duration(c.PresignTTLMinutes) * time.Minute
}

type InstagramConfig struct {
	GraphBaseURL   string `mapstructure:"graph_base_url"`
	APIVersion     string `mapstructure:"api_version"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

func (c InstagramConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type SchedulerConfig struct {
	TickIntervalSeconds   int `mapstructure:"tick_interval_seconds"`
	BatchSize             int `mapstructure:"batch_size"`
	GraceSeconds          int `mapstructure:"grace_seconds"`
	LeaseTTLMinutes       int `mapstructure:"lease_ttl_minutes"`
	MaxRetries            int `mapstructure:"max_retries"`
	RetryBaseDelaySeconds int `mapstructure:"retry_base_delay_seconds"`
	WorkerCount           int `mapstructure:"worker_count"`
	QueueSize             int `mapstructure:"queue_size"`
	PollInitialSeconds    int `mapstructure:"poll_initial_seconds"`
	PollMaxSeconds        int `mapstructure:"poll_max_seconds"`
	PollTotalSeconds      int `mapstructure:"poll_total_seconds"`
}

func (c SchedulerConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

func (c SchedulerConfig) Grace() time.Duration {
	return time.Duration(c.GraceSeconds) * time.Second
}

func (c SchedulerConfig) LeaseTTL() time.Duration {
	return time.Duration(c.LeaseTTLMinutes) * time.Minute
}

func (c SchedulerConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelaySeconds) * time.Second
}

func (c SchedulerConfig) PollInitial() time.Duration {
	return time.Duration(c.PollInitialSeconds) * time.Second
}

func (c SchedulerConfig) PollMax() time.Duration {
	return time.Duration(c.PollMaxSeconds) * time.Second
}

func (c SchedulerConfig) PollTotal() time.Duration {
	return time.Duration(c.PollTotalSeconds) * time.Second
}

type PlannerConfig struct {
	DailyCap            int `mapstructure:"daily_cap"`
	MinSpacingMinutes   int `mapstructure:"min_spacing_minutes"`
	DefaultDayStartHour int `mapstructure:"default_day_start_hour"`
	DefaultDayEndHour   int `mapstructure:"default_day_end_hour"`
}

func (c PlannerConfig) MinSpacing() time.Duration {
	return time.Duration(c.MinSpacingMinutes) * time.Minute
}

type RateLimitConfig struct {
	RemoteQuotaTTLSeconds int `mapstructure:"remote_quota_ttl_seconds"`
	// FallbackQuotaLimit is assumed when the platform cannot report a limit.
	FallbackQuotaLimit int `mapstructure:"fallback_quota_limit"`
	CounterSlackHours  int `mapstructure:"counter_slack_hours"`
}

func (c RateLimitConfig) RemoteQuotaTTL() time.Duration {
	return time.Duration(c.RemoteQuotaTTLSeconds) * time.Second
}

type MaintenanceConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ClearOldCron   string `mapstructure:"clear_old_cron"`
	TokenCheckCron string `mapstructure:"token_check_cron"`
	RetentionDays  int    `mapstructure:"retention_days"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Load reads config.yaml (optional) plus POSTFLOW_* env overrides.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config", "/etc/postflow"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix("POSTFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Scheduler.BatchSize <= 0 {
		return errors.New("scheduler.batch_size must be positive")
	}
	if c.Scheduler.MaxRetries < 0 {
		return errors.New("scheduler.max_retries must not be negative")
	}
	if c.Planner.DailyCap <= 0 {
		return errors.New("planner.daily_cap must be positive")
	}
	if c.Planner.MinSpacingMinutes <= 0 {
		return errors.New("planner.min_spacing_minutes must be positive")
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		return errors.New("s3.bucket required when s3.enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postflow")
	v.SetDefault("database.dbname", "postflow")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime_minutes", 30)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("s3.enabled", false)
	v.SetDefault("s3.region", "auto")
	v.SetDefault("s3.presign_ttl_minutes", 60)

	v.SetDefault("instagram.graph_base_url", "https://graph.facebook.com")
	v.SetDefault("instagram.api_version", "v21.0")
	v.SetDefault("instagram.timeout_seconds", 30)

	v.SetDefault("scheduler.tick_interval_seconds", 5)
	v.SetDefault("scheduler.batch_size", 50)
	v.SetDefault("scheduler.grace_seconds", 30)
	v.SetDefault("scheduler.lease_ttl_minutes", 5)
	v.SetDefault("scheduler.max_retries", 5)
	v.SetDefault("scheduler.retry_base_delay_seconds", 60)
	v.SetDefault("scheduler.worker_count", 8)
	v.SetDefault("scheduler.queue_size", 256)
	v.SetDefault("scheduler.poll_initial_seconds", 2)
	v.SetDefault("scheduler.poll_max_seconds", 30)
	v.SetDefault("scheduler.poll_total_seconds", 300)

	v.SetDefault("planner.daily_cap", 15)
	v.SetDefault("planner.min_spacing_minutes", 15)
	v.SetDefault("planner.default_day_start_hour", 8)
	v.SetDefault("planner.default_day_end_hour", 22)

	v.SetDefault("ratelimit.remote_quota_ttl_seconds", 60)
	v.SetDefault("ratelimit.fallback_quota_limit", 50)
	v.SetDefault("ratelimit.counter_slack_hours", 2)

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.clear_old_cron", "30 3 * * *")
	v.SetDefault("maintenance.token_check_cron", "0 5 * * *")
	v.SetDefault("maintenance.retention_days", 30)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)
}
