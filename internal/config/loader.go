package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigFile is the default presence record file name, relative to the
	// working directory.
	ConfigFile = "config.json"
	// TimelineFile is the default activity log database file name.
	TimelineFile = "rpcdash.db"
)

// Load reads settings from env files and the process environment.
// Priority: process environment > env file > defaults.
func Load() (*Settings, error) {
	cfg := DefaultSettings()

	LoadEnvFileCandidates()

	// Every group is keyed by its explicit envconfig tag; the empty prefix
	// keeps the conventional variable names (PORT, DISCORD_TOKEN, ...).
	groups := []struct {
		name   string
		target any
	}{
		{"gateway", &cfg.Gateway},
		{"discord", &cfg.Discord},
		{"paths", &cfg.Paths},
		{"kafka", &cfg.Kafka},
	}
	for _, g := range groups {
		if err := envconfig.Process("", g.target); err != nil {
			return nil, fmt.Errorf("config %s: %w", g.name, err)
		}
	}

	normalize(cfg)
	return cfg, nil
}

// normalize restores defaults for values that were set but empty, and
// expands ~ in paths.
func normalize(cfg *Settings) {
	def := DefaultSettings()
	if strings.TrimSpace(cfg.Gateway.Password) == "" {
		cfg.Gateway.Password = def.Gateway.Password
	}
	if cfg.Gateway.Port <= 0 {
		cfg.Gateway.Port = def.Gateway.Port
	}
	cfg.Gateway.Host = strings.TrimSpace(cfg.Gateway.Host)
	cfg.Discord.Token = strings.TrimSpace(cfg.Discord.Token)
	if strings.TrimSpace(cfg.Discord.GatewayURL) == "" {
		cfg.Discord.GatewayURL = def.Discord.GatewayURL
	}
	if strings.TrimSpace(cfg.Paths.ConfigFile) == "" {
		cfg.Paths.ConfigFile = def.Paths.ConfigFile
	}
	if strings.TrimSpace(cfg.Paths.TimelineDB) == "" {
		cfg.Paths.TimelineDB = def.Paths.TimelineDB
	}
	if strings.TrimSpace(cfg.Kafka.Topic) == "" {
		cfg.Kafka.Topic = def.Kafka.Topic
	}
	brokers := cfg.Kafka.Brokers[:0]
	for _, b := range cfg.Kafka.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	cfg.Kafka.Brokers = brokers

	cfg.Paths.ConfigFile = expandHome(cfg.Paths.ConfigFile)
	cfg.Paths.TimelineDB = expandHome(cfg.Paths.TimelineDB)
}

// Addr returns the listen address for the dashboard server.
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// HasToken reports whether a session credential was supplied.
func (d DiscordConfig) HasToken() bool {
	return d.Token != ""
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}
