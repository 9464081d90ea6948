// Package config provides process settings for rpcdash.
//
// Settings are read once at startup from the process environment, after
// env files have been loaded. The editable presence record lives in
// package rpcconfig, not here.
package config

// Settings is the root process configuration.
// Groups: Gateway, Discord, Paths, Kafka.
type Settings struct {
	Gateway GatewayConfig `json:"gateway"`
	Discord DiscordConfig `json:"discord"`
	Paths   PathsConfig   `json:"paths"`
	Kafka   KafkaConfig   `json:"kafka"`
}

// ---------------------------------------------------------------------------
// Gateway – dashboard HTTP/websocket server
// ---------------------------------------------------------------------------

// GatewayConfig contains dashboard server settings.
type GatewayConfig struct {
	Host     string `json:"host" envconfig:"HOST"`
	Port     int    `json:"port" envconfig:"PORT"`
	Password string `json:"-" envconfig:"DASHBOARD_PASSWORD"`
}

// ---------------------------------------------------------------------------
// Discord – external chat session
// ---------------------------------------------------------------------------

// DiscordConfig holds the session credential. The token never leaves the
// process: it is not serialized and not part of the presence record.
type DiscordConfig struct {
	Token      string `json:"-" envconfig:"DISCORD_TOKEN"`
	GatewayURL string `json:"gatewayUrl" envconfig:"DISCORD_GATEWAY_URL"`
}

// ---------------------------------------------------------------------------
// Paths – filesystem locations
// ---------------------------------------------------------------------------

// PathsConfig groups filesystem path settings.
type PathsConfig struct {
	ConfigFile string `json:"configFile" envconfig:"RPCDASH_CONFIG_FILE"`
	TimelineDB string `json:"timelineDb" envconfig:"RPCDASH_TIMELINE_DB"`
}

// ---------------------------------------------------------------------------
// Kafka – optional event mirroring
// ---------------------------------------------------------------------------

// KafkaConfig configures the optional event sink.
type KafkaConfig struct {
	Brokers []string `json:"brokers" envconfig:"RPCDASH_KAFKA_BROKERS"`
	Topic   string   `json:"topic" envconfig:"RPCDASH_KAFKA_TOPIC"`
}

// Enabled reports whether at least one broker is configured.
func (k KafkaConfig) Enabled() bool {
	for _, b := range k.Brokers {
		if b != "" {
			return true
		}
	}
	return false
}

const (
	// DefaultPort is the dashboard port when PORT is unset.
	DefaultPort = 3000
	// DefaultPassword is the dashboard password when DASHBOARD_PASSWORD is unset.
	DefaultPassword = "admin"
	// DefaultGatewayURL is the chat gateway endpoint.
	DefaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"
	// DefaultKafkaTopic receives mirrored events.
	DefaultKafkaTopic = "rpcdash.events"
)

// DefaultSettings returns settings with every default applied.
func DefaultSettings() *Settings {
	return &Settings{
		Gateway: GatewayConfig{
			Port:     DefaultPort,
			Password: DefaultPassword,
		},
		Discord: DiscordConfig{
			GatewayURL: DefaultGatewayURL,
		},
		Paths: PathsConfig{
			ConfigFile: ConfigFile,
			TimelineDB: TimelineFile,
		},
		Kafka: KafkaConfig{
			Topic: DefaultKafkaTopic,
		},
	}
}
