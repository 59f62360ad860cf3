package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full configuration for the reference server and the watcher client
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Client    ClientConfig    `mapstructure:"client"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	Channel   ChannelConfig   `mapstructure:"channel"`
	Countdown CountdownConfig `mapstructure:"countdown"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds the reference server settings
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// ClientConfig locates the REST data source and the push source
type ClientConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	WSURL       string        `mapstructure:"ws_url"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
}

// IdentityConfig is the viewing user attached to connections and bids
type IdentityConfig struct {
	UserID   string `mapstructure:"user_id"`
	UserName string `mapstructure:"user_name"`
	Token    string `mapstructure:"token"`
}

// ChannelConfig bounds the push reconnect loop
type ChannelConfig struct {
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	StableAfter       time.Duration `mapstructure:"stable_after"`
}

// CountdownConfig sets the countdown tick period
type CountdownConfig struct {
	Tick time.Duration `mapstructure:"tick"`
}

// LogConfig sets the logrus level
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// EnvPrefix prefixes every environment override, e.g. AUCTION_CLIENT_BASE_URL
const EnvPrefix = "AUCTION"

// NewViper returns a viper instance with defaults and environment overrides wired.
// The config file is optional and searched as config.yaml in . and ./config.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("client.base_url", "http://localhost:8080")
	v.SetDefault("client.ws_url", "ws://localhost:8080")
	v.SetDefault("client.http_timeout", 10*time.Second)
	v.SetDefault("identity.user_id", "anonymous")
	v.SetDefault("identity.user_name", "")
	v.SetDefault("identity.token", "")
	v.SetDefault("channel.reconnect_interval", 3*time.Second)
	v.SetDefault("channel.max_attempts", 10)
	v.SetDefault("channel.stable_after", 10*time.Second)
	v.SetDefault("countdown.tick", time.Second)
	v.SetDefault("log.level", "info")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("config")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the optional config file into v and decodes the result
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the sync engine cannot run with
func (c *Config) Validate() error {
	if c.Client.BaseURL == "" {
		return errors.New("config: client.base_url is required")
	}
	if c.Client.WSURL == "" {
		return errors.New("config: client.ws_url is required")
	}
	if c.Channel.ReconnectInterval <= 0 {
		return fmt.Errorf("config: channel.reconnect_interval must be positive, got %s", c.Channel.ReconnectInterval)
	}
	if c.Channel.MaxAttempts < 1 {
		return fmt.Errorf("config: channel.max_attempts must be at least 1, got %d", c.Channel.MaxAttempts)
	}
	if c.Channel.StableAfter < 0 {
		return fmt.Errorf("config: channel.stable_after must not be negative, got %s", c.Channel.StableAfter)
	}
	if c.Countdown.Tick <= 0 {
		return fmt.Errorf("config: countdown.tick must be positive, got %s", c.Countdown.Tick)
	}
	return nil
}
