// Package config provides YAML-based configuration loading for Shipmate.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Shipmate configuration, loaded from shipmate.yaml.
type Config struct {
	Platform string        `yaml:"platform"` // "discord" or "slack"
	Discord  DiscordConfig `yaml:"discord"`
	Slack    SlackConfig   `yaml:"slack"`
	Storage  StorageConfig `yaml:"storage"`
	HTTP     HTTPConfig    `yaml:"http"`
	GitHub   GitHubConfig  `yaml:"github"`
	Shell    ShellConfig   `yaml:"shell"`
}

// DiscordConfig holds Discord bot credentials.
type DiscordConfig struct {
	Token string `yaml:"token"`
}

// SlackConfig holds Slack Socket Mode credentials.
type SlackConfig struct {
	AppToken string `yaml:"app_token"` // xapp-...
	BotToken string `yaml:"bot_token"` // xoxb-...
}

// StorageConfig selects the database backend. Path selects SQLite; setting
// Host switches to MySQL.
type StorageConfig struct {
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Database string `yaml:"database"`
}

// HTTPConfig configures the user admin API.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// GitHubConfig enables remote branch quick-picks when set.
type GitHubConfig struct {
	Token string `yaml:"token"`
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`
}

// ShellConfig controls how external commands are spawned.
type ShellConfig struct {
	// Interpreter is invoked as: interpreter --login -c <script>.
	Interpreter string `yaml:"interpreter"`
	// WakeCommand is the no-op command the keep-alive timer fires every
	// 30 seconds to stop the host from sleeping during long uploads.
	WakeCommand string `yaml:"wake_command"`
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

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Storage.Path == "" && c.Storage.Host == "" {
		c.Storage.Path = "shipmate.db"
	}
	if c.Storage.Host != "" {
		if c.Storage.Port == 0 {
			c.Storage.Port = 3306
		}
		if c.Storage.User == "" {
			c.Storage.User = "root"
		}
		if c.Storage.Database == "" {
			c.Storage.Database = "shipmate"
		}
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8090
	}
	if c.Shell.Interpreter == "" {
		c.Shell.Interpreter = "/bin/zsh"
	}
	if c.Shell.WakeCommand == "" {
		c.Shell.WakeCommand = "caffeinate -u -t 1"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Platform {
	case "discord":
		if c.Discord.Token == "" {
			errs = append(errs, "discord.token is required")
		}
	case "slack":
		if c.Slack.AppToken == "" {
			errs = append(errs, "slack.app_token is required")
		}
		if c.Slack.BotToken == "" {
			errs = append(errs, "slack.bot_token is required")
		}
	case "":
		errs = append(errs, "platform is required")
	default:
		errs = append(errs, fmt.Sprintf("unknown platform %q", c.Platform))
	}
	if c.GitHub.Token != "" && (c.GitHub.Owner == "" || c.GitHub.Repo == "") {
		errs = append(errs, "github.owner and github.repo are required when github.token is set")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
