// Copyright 2025-2026 Mantene

package bridge

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration: one bridge per entry, each fully
// isolated from the others.
type Config struct {
	LogLevel string `yaml:"log_level" env:"SLACK_IRC_LOG_LEVEL"`
	// DefaultSlackToken applies to bridge entries that omit slack_token.
	DefaultSlackToken string `yaml:"default_slack_token" env:"SLACK_IRC_TOKEN"`

	Bridges []BridgeConfig `yaml:"bridges"`
}

// BridgeConfig holds everything one Bridge needs.
type BridgeConfig struct {
	Name       string `yaml:"name"`
	SlackToken string `yaml:"slack_token"`

	IRC IRCConfig `yaml:"irc"`

	// ChannelMapping maps Slack channel names (or DM display names) to IRC
	// channel names. Both directions must be unique.
	ChannelMapping map[string]string `yaml:"channel_mapping"`

	MutedSlackUsers []string `yaml:"muted_slack_users"`
	MutedIRCNicks   []string `yaml:"muted_irc_nicks"`

	StatusNotices StatusNotices `yaml:"status_notices"`

	// NickSuffix is appended to generated shadow nicknames.
	NickSuffix string `yaml:"nick_suffix"`
	// CommandPrefixes is the set of characters that trigger command parsing.
	CommandPrefixes string `yaml:"command_prefixes"`
	// IRCTimeout is the idle duration before a shadow session is torn down.
	IRCTimeout time.Duration `yaml:"irc_timeout"`
}

// IRCConfig holds the legacy network connection settings.
type IRCConfig struct {
	Server   string `yaml:"server"`
	Nick     string `yaml:"nick"`
	User     string `yaml:"user"`
	RealName string `yaml:"real_name"`
	Password string `yaml:"password"`
	UseTLS   bool   `yaml:"use_tls"`
	// MaxReconnects bounds reconnect attempts; exhausting them is fatal
	// for the owning bridge.
	MaxReconnects int `yaml:"max_reconnects"`
}

// StatusNotices controls whether IRC join/leave events are announced on
// the Slack side.
type StatusNotices struct {
	Join  bool `yaml:"join"`
	Leave bool `yaml:"leave"`
}

const (
	defaultNickSuffix      = "-sl"
	defaultCommandPrefixes = "."
	defaultIRCTimeout      = 10 * time.Minute
)

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// LoadConfig reads a YAML configuration file and applies environment
// overrides. The returned config has been validated.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and channel-mapping well-formedness for
// every bridge entry, returning a ConfigurationError naming the offending
// field.
func (c *Config) Validate() error {
	if len(c.Bridges) == 0 {
		return &ConfigurationError{Field: "bridges", Reason: "at least one bridge is required"}
	}
	for i := range c.Bridges {
		b := &c.Bridges[i]
		if b.SlackToken == "" {
			b.SlackToken = c.DefaultSlackToken
		}
		if err := b.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks one bridge entry and fills in defaults.
func (b *BridgeConfig) Validate() error {
	if b.SlackToken == "" {
		return &ConfigurationError{Field: "slack_token", Reason: "required"}
	}
	if b.IRC.Server == "" {
		return &ConfigurationError{Field: "irc.server", Reason: "required"}
	}
	if b.IRC.Nick == "" {
		return &ConfigurationError{Field: "irc.nick", Reason: "required"}
	}
	if len(b.ChannelMapping) == 0 {
		return &ConfigurationError{Field: "channel_mapping", Reason: "required"}
	}
	seen := make(map[string]string, len(b.ChannelMapping))
	for slackName, ircName := range b.ChannelMapping {
		key := strings.ToLower(ircName)
		if prev, dup := seen[key]; dup {
			return &ConfigurationError{
				Field:  "channel_mapping",
				Reason: fmt.Sprintf("%q and %q both map to %q", prev, slackName, ircName),
			}
		}
		seen[key] = slackName
	}
	if b.NickSuffix == "" {
		b.NickSuffix = defaultNickSuffix
	}
	if b.CommandPrefixes == "" {
		b.CommandPrefixes = defaultCommandPrefixes
	}
	if b.IRCTimeout <= 0 {
		b.IRCTimeout = defaultIRCTimeout
	}
	if b.IRC.User == "" {
		b.IRC.User = b.IRC.Nick
	}
	if b.IRC.RealName == "" {
		b.IRC.RealName = b.IRC.Nick
	}
	return nil
}
