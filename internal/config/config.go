// Package config provides YAML-based configuration loading for Switchboard.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level Switchboard configuration, loaded from switchboard.yaml.
type Config struct {
	Backend   EndpointConfig  `yaml:"backend"`
	ChatLine  ChatLineConfig  `yaml:"chatline"`
	Platform  PlatformConfig  `yaml:"platform"`
	Store     StoreConfig     `yaml:"store"`
	Poll      PollConfig      `yaml:"poll"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Notify    NotifyConfig    `yaml:"notify"`
	Log       LogConfig       `yaml:"log"`
}

// EndpointConfig describes one HTTP collaborator.
type EndpointConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Token      string        `yaml:"token"`
	Timeout    time.Duration `yaml:"timeout"`
	RatePerSec float64       `yaml:"rate_per_sec"`
}

// ChatLineConfig is the session gateway plus its sync cadence.
type ChatLineConfig struct {
	EndpointConfig `yaml:",inline"`
	SyncInterval   time.Duration `yaml:"sync_interval"`
}

// PlatformConfig holds the chat platform business API settings used for
// template registration and approved-template broadcasts.
type PlatformConfig struct {
	BaseURL   string `yaml:"base_url"`
	AccountID string `yaml:"account_id"`
	Token     string `yaml:"token"`
	UploadURL string `yaml:"upload_url"`
	Language  string `yaml:"language"`
}

// Enabled reports whether template features are configured.
func (p PlatformConfig) Enabled() bool {
	return p.AccountID != "" && p.Token != ""
}

// StoreConfig selects the reporting store.
type StoreConfig struct {
	Driver   string `yaml:"driver"` // sqlite or mysql
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// PollConfig controls report polling.
type PollConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// DashboardConfig controls the operator API server.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// NotifyConfig selects where campaign events and digests are posted.
type NotifyConfig struct {
	Platform        string `yaml:"platform"` // comma-separated: log, slack, discord
	Channel         string `yaml:"channel"`
	SlackBotToken   string `yaml:"slack_bot_token"`
	DiscordBotToken string `yaml:"discord_bot_token"`
	DigestCron      string `yaml:"digest_cron"`
}

// Platforms returns the configured notification targets in order, without
// blanks or repeats. An empty result means log only.
func (n NotifyConfig) Platforms() []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range strings.Split(n.Platform, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a YAML config file from path and returns a validated Config.
// A .env file next to the config, when present, is loaded first so that
// ${VAR} references can resolve against it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load %s: %w", envPath, err)
	}
	return Parse(data)
}

// Parse expands environment references in data and unmarshals it into a
// validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.ChatLine.SyncInterval == 0 {
		c.ChatLine.SyncInterval = 30 * time.Second
	}
	if c.Platform.BaseURL == "" {
		c.Platform.BaseURL = "https://graph.facebook.com/v19.0"
	}
	if c.Platform.Language == "" {
		c.Platform.Language = "es"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.Path == "" {
		c.Store.Path = "switchboard.db"
	}
	if c.Store.Host == "" {
		c.Store.Host = "127.0.0.1"
	}
	if c.Store.Port == 0 {
		c.Store.Port = 3306
	}
	if c.Store.Database == "" {
		c.Store.Database = "switchboard"
	}
	if c.Store.User == "" {
		c.Store.User = "root"
	}
	if c.Poll.Interval == 0 {
		c.Poll.Interval = 5 * time.Second
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8090
	}
	if c.Notify.DigestCron == "" {
		c.Notify.DigestCron = "0 9 * * *"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Backend.BaseURL == "" {
		errs = append(errs, "backend.base_url is required")
	}
	if c.ChatLine.BaseURL == "" {
		errs = append(errs, "chatline.base_url is required")
	}
	if c.Platform.AccountID != "" && c.Platform.Token == "" {
		errs = append(errs, "platform.token is required when platform.account_id is set")
	}
	switch c.Store.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or mysql", c.Store.Driver))
	}
	if c.Poll.Interval < time.Second {
		errs = append(errs, "poll.interval must be at least 1s")
	}
	platforms := c.Notify.Platforms()
	for _, p := range platforms {
		switch p {
		case "log":
		case "slack":
			if c.Notify.SlackBotToken == "" {
				errs = append(errs, "notify.slack_bot_token is required for slack")
			}
			if c.Notify.Channel == "" {
				errs = append(errs, "notify.channel is required for slack")
			}
		case "discord":
			if c.Notify.DiscordBotToken == "" {
				errs = append(errs, "notify.discord_bot_token is required for discord")
			}
			if c.Notify.Channel == "" {
				errs = append(errs, "notify.channel is required for discord")
			}
		default:
			errs = append(errs, fmt.Sprintf("notify.platform %q must be log, slack or discord", p))
		}
	}
	if slices.Contains(platforms, "slack") && slices.Contains(platforms, "discord") {
		errs = append(errs, "notify.platform cannot combine slack and discord; they share notify.channel")
	}
	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q is not a known level", c.Log.Level))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q must be console or json", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
