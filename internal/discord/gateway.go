package discord

import "encoding/json"

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opPresenceUpdate = 3
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11
)

// closeAuthenticationFailed is sent when the token is rejected.
const closeAuthenticationFailed = 4004

type gatewayPayload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int            `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type helloData struct {
	HeartbeatInterval int `json:"heartbeat_interval"`
}

type identifyData struct {
	Token      string            `json:"token"`
	Properties map[string]string `json:"properties"`
	Presence   PresenceUpdate    `json:"presence"`
}

type readyData struct {
	SessionID string      `json:"session_id"`
	User      discordUser `json:"user"`
}

type discordUser struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
}

func (u discordUser) identity() Identity {
	tag := u.Username
	if u.Discriminator != "" && u.Discriminator != "0" {
		tag = u.Username + "#" + u.Discriminator
	}
	return Identity{ID: u.ID, Username: u.Username, Tag: tag}
}
