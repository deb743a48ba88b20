// Package config loads the council and chat configuration keys, via
// viper: unmarshal into a mapstructure-tagged tree, normalize, validate,
// reject unknown keys under the namespaces that matter.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// CouncilMode is the broadcast/sequential dispatch mode.
type CouncilMode string

const (
	CouncilBroadcast  CouncilMode = "broadcast"
	CouncilSequential CouncilMode = "sequential"
)

// ThinkingVisibility controls whether the chat TUI renders thinking deltas.
type ThinkingVisibility string

const (
	ThinkingAuto ThinkingVisibility = "auto"
	ThinkingShow ThinkingVisibility = "show"
	ThinkingHide ThinkingVisibility = "hide"
)

// Council holds council.* keys.
type Council struct {
	Members      []string    `mapstructure:"members"`
	TimeoutSecs  int         `mapstructure:"timeout"`
	AutoMessages *int        `mapstructure:"auto_messages"` // nil => default to unmuted-member count
	Mode         CouncilMode `mapstructure:"mode"`
	Preamble     string      `mapstructure:"preamble"`
}

// Chat holds chat.* keys.
type Chat struct {
	ThinkingVisibility ThinkingVisibility `mapstructure:"thinking_visibility"`
}

// Config is the full set of keys the core consumes.
type Config struct {
	Council Council `mapstructure:"council"`
	Chat    Chat    `mapstructure:"chat"`
}

var knownCouncilKeys = map[string]bool{
	"members": true, "timeout": true, "auto_messages": true, "mode": true, "preamble": true,
}

var knownChatKeys = map[string]bool{
	"thinking_visibility": true,
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("council.members", []string{"claude", "codex", "cursor"})
	v.SetDefault("council.timeout", 600)
	v.SetDefault("council.mode", string(CouncilBroadcast))
	v.SetDefault("council.preamble", "")
}

// Load reads configuration from path (typically .kd/config.json) via
// viper, validating it against the known-key table.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := rejectUnknownKeys(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// rejectUnknownKeys enforces the "unknown keys under council./chat.
// -> reject at load" row. Viper lowercases keys on read, so comparisons are
// case-insensitive by construction.
func rejectUnknownKeys(v *viper.Viper) error {
	for _, key := range v.AllKeys() {
		switch {
		case strings.HasPrefix(key, "council."):
			sub := strings.TrimPrefix(key, "council.")
			if !knownCouncilKeys[sub] {
				return fmt.Errorf("config: unknown key council.%s", sub)
			}
		case strings.HasPrefix(key, "chat."):
			sub := strings.TrimPrefix(key, "chat.")
			if !knownChatKeys[sub] {
				return fmt.Errorf("config: unknown key chat.%s", sub)
			}
		}
	}
	return nil
}

// Validate applies the per-key validation rules.
func Validate(cfg *Config) error {
	if len(cfg.Council.Members) == 0 {
		return fmt.Errorf("config: council.members must be non-empty")
	}
	if cfg.Council.TimeoutSecs <= 0 {
		return fmt.Errorf("config: council.timeout must be positive")
	}
	if cfg.Council.AutoMessages != nil && *cfg.Council.AutoMessages < 0 {
		return fmt.Errorf("config: council.auto_messages must be >= 0")
	}
	switch cfg.Council.Mode {
	case CouncilBroadcast, CouncilSequential:
	default:
		return fmt.Errorf("config: council.mode must be %q or %q", CouncilBroadcast, CouncilSequential)
	}
	switch cfg.Chat.ThinkingVisibility {
	case "", ThinkingAuto, ThinkingShow, ThinkingHide:
	default:
		return fmt.Errorf("config: chat.thinking_visibility must be auto, show, or hide")
	}
	return nil
}

// AutoMessagesFor resolves the effective auto_messages budget for a given
// unmuted-member count, applying the "default = unmuted-member count" rule.
func (c Council) AutoMessagesFor(unmutedCount int) int {
	if c.AutoMessages == nil {
		return unmutedCount
	}
	return *c.AutoMessages
}
