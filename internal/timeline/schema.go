package timeline

import (
	"time"
)

// Log severities, as shown on the dashboard.
const (
	KindInfo    = "info"
	KindSuccess = "success"
	KindError   = "error"
)

// TimelineEvent is one recorded dashboard log line. Source is one of
// conn, session, timer or system; ConnID is set for connection commands.
type TimelineEvent struct {
	ID        int64     `json:"id"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Source    string    `json:"source"`
	ConnID    string    `json:"conn_id,omitempty"`
}

// Well-known settings keys.
const (
	SettingLastIdentity = "last_identity"
	SettingLastSyncAt   = "last_sync_at"
)

const Schema = `
CREATE TABLE IF NOT EXISTS timeline (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id TEXT UNIQUE,
	timestamp DATETIME NOT NULL,
	kind TEXT NOT NULL DEFAULT 'info',
	message TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	conn_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_timeline_timestamp ON timeline(timestamp);
CREATE INDEX IF NOT EXISTS idx_timeline_kind ON timeline(kind);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
