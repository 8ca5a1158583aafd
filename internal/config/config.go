// Package config provides YAML-based configuration loading for pfchat.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level pfchat configuration, loaded from pfchat.yaml.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Stream  StreamConfig  `yaml:"stream"`
	Cache   CacheConfig   `yaml:"cache"`
	Gateway GatewayConfig `yaml:"gateway"`
	Notify  NotifyConfig  `yaml:"notify"`
}

// ServerConfig holds endpoints for the portfolio chat backend.
type ServerConfig struct {
	BaseURL string `yaml:"base_url"` // REST API root, e.g. https://api.example.com
	WSURL   string `yaml:"ws_url"`   // WebSocket root, e.g. wss://api.example.com/ws
}

// StreamConfig tunes the chat session client's connection behavior.
type StreamConfig struct {
	HeartbeatSec        int `yaml:"heartbeat_sec"`         // ping interval while connected
	ReconnectBaseMs     int `yaml:"reconnect_base_ms"`     // first reconnect delay
	ReconnectMaxMs      int `yaml:"reconnect_max_ms"`      // backoff cap
	MaxReconnectRetries int `yaml:"max_reconnect_retries"` // attempts before giving up
}

// CacheConfig holds connection settings for the local message-history cache.
type CacheConfig struct {
	Driver string `yaml:"driver"` // "sqlite" (default) or "mysql"
	Path   string `yaml:"path"`   // sqlite file path
	DSN    string `yaml:"dsn"`    // mysql DSN, required when driver is mysql
}

// GatewayConfig configures the local web gateway.
type GatewayConfig struct {
	Port      int    `yaml:"port"`
	PruneCron string `yaml:"prune_cron"`      // 5-field cron for history pruning
	PruneDays int    `yaml:"prune_keep_days"` // history retention window
}

// NotifyConfig configures optional alert delivery to chat platforms.
type NotifyConfig struct {
	Slack   SlackNotifyConfig   `yaml:"slack"`
	Discord DiscordNotifyConfig `yaml:"discord"`
}

// SlackNotifyConfig holds Slack credentials for alert posting.
type SlackNotifyConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DiscordNotifyConfig holds Discord credentials for alert posting.
type DiscordNotifyConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "pfchat.yaml"
	}
	return filepath.Join(home, ".config", "pfchat", "pfchat.yaml")
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.WSURL == "" && c.Server.BaseURL != "" {
		ws := strings.Replace(c.Server.BaseURL, "https://", "wss://", 1)
		ws = strings.Replace(ws, "http://", "ws://", 1)
		c.Server.WSURL = strings.TrimRight(ws, "/") + "/ws"
	}
	if c.Stream.HeartbeatSec == 0 {
		c.Stream.HeartbeatSec = 30
	}
	if c.Stream.ReconnectBaseMs == 0 {
		c.Stream.ReconnectBaseMs = 3000
	}
	if c.Stream.ReconnectMaxMs == 0 {
		c.Stream.ReconnectMaxMs = 30000
	}
	if c.Stream.MaxReconnectRetries == 0 {
		c.Stream.MaxReconnectRetries = 5
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "sqlite"
	}
	if c.Cache.Driver == "sqlite" && c.Cache.Path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			c.Cache.Path = filepath.Join(home, ".config", "pfchat", "history.db")
		} else {
			c.Cache.Path = "pfchat-history.db"
		}
	}
	if c.Gateway.Port == 0 {
		c.Gateway.Port = 8140
	}
	if c.Gateway.PruneDays == 0 {
		c.Gateway.PruneDays = 90
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Server.BaseURL == "" {
		errs = append(errs, "server.base_url is required")
	}
	switch c.Cache.Driver {
	case "sqlite":
		// path defaulted above
	case "mysql":
		if c.Cache.DSN == "" {
			errs = append(errs, "cache.dsn is required when cache.driver is mysql")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache.driver %q is not supported (sqlite, mysql)", c.Cache.Driver))
	}
	if c.Stream.ReconnectBaseMs > c.Stream.ReconnectMaxMs {
		errs = append(errs, "stream.reconnect_base_ms must not exceed stream.reconnect_max_ms")
	}
	if c.Notify.Slack.BotToken != "" && c.Notify.Slack.ChannelID == "" {
		errs = append(errs, "notify.slack.channel_id is required when notify.slack.bot_token is set")
	}
	if c.Notify.Discord.BotToken != "" && c.Notify.Discord.ChannelID == "" {
		errs = append(errs, "notify.discord.channel_id is required when notify.discord.bot_token is set")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
