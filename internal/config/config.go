// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Affiliate AffiliateConfig `mapstructure:"affiliate"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	PublicURL   string `mapstructure:"public_url"`
	TasksSecret string `mapstructure:"tasks_secret"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// TelegramConfig holds chat platform limits and rendering knobs.
type TelegramConfig struct {
	MaxTextLen    int    `mapstructure:"max_text_len"`
	MaxCaptionLen int    `mapstructure:"max_caption_len"`
	Timezone      string `mapstructure:"timezone"`
}

// AffiliateConfig holds ledger defaults applied when a tenant has not
// configured its own values.
type AffiliateConfig struct {
	DefaultCreditAmount float64 `mapstructure:"default_credit_amount"`
	DefaultMinWithdraw  float64 `mapstructure:"default_min_withdraw"`
}

// QuotaConfig holds quota/cooldown guard defaults.
type QuotaConfig struct {
	CooldownSeconds int `mapstructure:"cooldown_seconds"`
}

// SchedulerConfig holds delayed-action scheduler configuration.
// Mode is "kafka" for the durable queue or "timer" for the in-process
// best-effort fallback.
type SchedulerConfig struct {
	Mode        string   `mapstructure:"mode"`
	Brokers     []string `mapstructure:"brokers"`
	ActionTopic string   `mapstructure:"action_topic"`
	GroupID     string   `mapstructure:"group_id"`
}

// BroadcastConfig holds mass-send batching configuration.
type BroadcastConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Enable environment variable override
	// e.g., SERVER_ADDR, DATABASE_HOST, SCHEDULER_MODE
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file not found is OK - env vars can provide all config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "affiliatebot")
	v.SetDefault("database.name", "affiliatebot")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Stay under the platform's hard 4096/1024 ceilings with margin for
	// markup expansion.
	v.SetDefault("telegram.max_text_len", 3500)
	v.SetDefault("telegram.max_caption_len", 900)
	v.SetDefault("telegram.timezone", "Asia/Kuala_Lumpur")

	v.SetDefault("affiliate.default_credit_amount", 0.30)
	v.SetDefault("affiliate.default_min_withdraw", 30.00)

	v.SetDefault("quota.cooldown_seconds", 5)

	v.SetDefault("scheduler.mode", "timer")
	v.SetDefault("scheduler.brokers", []string{"localhost:9092"})
	v.SetDefault("scheduler.action_topic", "bot.actions.deferred")
	v.SetDefault("scheduler.group_id", "affiliate-bot")

	v.SetDefault("broadcast.batch_size", 25)
}
