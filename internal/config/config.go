// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Whitelist WhitelistConfig `mapstructure:"whitelist"`
	Game      GameConfig      `mapstructure:"game"`
	Feed      FeedConfig      `mapstructure:"feed"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
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

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// WhitelistConfig holds chat whitelist configuration.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// GameConfig holds the staking rules. It is passed into the engine at
// construction so the rules never live in package-level state.
type GameConfig struct {
	SurvivalMultiplier float64 `mapstructure:"survival_multiplier"`
	MinStake           float64 `mapstructure:"min_stake"`
	MaxTickets         int     `mapstructure:"max_tickets"`
	DefaultRounds      int     `mapstructure:"default_rounds"`
	MinWithdraw        float64 `mapstructure:"min_withdraw"`
}

// FeedConfig holds live fixture feed configuration.
type FeedConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIToken     string        `mapstructure:"api_token"`
	SyncInterval time.Duration `mapstructure:"sync_interval"`
}

// Multiplier returns the survival multiplier as a decimal.
func (g *GameConfig) Multiplier() decimal.Decimal {
	return decimal.NewFromFloat(g.SurvivalMultiplier)
}

// MinStakeAmount returns the minimum per-ticket stake as a decimal.
func (g *GameConfig) MinStakeAmount() decimal.Decimal {
	return decimal.NewFromFloat(g.MinStake)
}

// MinWithdrawAmount returns the minimum withdrawal amount as a decimal.
func (g *GameConfig) MinWithdrawAmount() decimal.Decimal {
	return decimal.NewFromFloat(g.MinWithdraw)
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

	// Environment variables use underscore separator and uppercase,
	// e.g. BOT_TOKEN, DATABASE_HOST, GAME_MIN_STAKE
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we can use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "survivor")
	v.SetDefault("database.name", "survivor")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Game rule defaults
	v.SetDefault("game.survival_multiplier", 1.5)
	v.SetDefault("game.min_stake", 0.1)
	v.SetDefault("game.max_tickets", 5)
	v.SetDefault("game.default_rounds", 10)
	v.SetDefault("game.min_withdraw", 0.1)

	// Feed defaults
	v.SetDefault("feed.sync_interval", "5m")
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsChatAllowed checks if a chat ID is in the whitelist.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed
	if len(c.Whitelist.Chats) == 0 {
		return true
	}
	for _, id := range c.Whitelist.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}
