// Package presence turns the stored presence record into the activity
// payload pushed to the chat session.
package presence

import (
	"strings"
	"time"

	"github.com/KafClaw/rpcdash/internal/rpcconfig"
)

// ActivityType values understood by the chat gateway.
type ActivityType int

const (
	ActivityPlaying   ActivityType = 0
	ActivityStreaming ActivityType = 1
	ActivityListening ActivityType = 2
	ActivityWatching  ActivityType = 3
	ActivityCompeting ActivityType = 5
)

// Activity is one entry of a presence update's activity list.
type Activity struct {
	ApplicationID string       `json:"application_id"`
	Type          ActivityType `json:"type"`
	Name          string       `json:"name"`
	Details       string       `json:"details"`
	State         string       `json:"state"`
	Timestamps    *Timestamps  `json:"timestamps,omitempty"`
	Assets        *Assets      `json:"assets,omitempty"`
	Buttons       []string     `json:"buttons,omitempty"`
	Metadata      *Metadata    `json:"metadata,omitempty"`
}

// Timestamps holds unix milliseconds.
type Timestamps struct {
	Start int64 `json:"start,omitempty"`
	End   int64 `json:"end,omitempty"`
}

// Assets references the large and small activity images.
type Assets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
	SmallImage string `json:"small_image,omitempty"`
	SmallText  string `json:"small_text,omitempty"`
}

// Metadata carries button targets; labels live in Activity.Buttons.
type Metadata struct {
	ButtonURLs []string `json:"button_urls,omitempty"`
}

// Build assembles the activity for rec. It reports false when nothing
// should be pushed: the session is not logged in or no application id is
// configured.
func Build(rec rpcconfig.Record, loggedIn bool, now time.Time) (Activity, bool) {
	appID := strings.TrimSpace(rec.RPC.ApplicationID)
	if !loggedIn || appID == "" {
		return Activity{}, false
	}

	r := rec.RPC
	a := Activity{
		ApplicationID: appID,
		Type:          ActivityPlaying,
		Name:          r.Name,
		Details:       r.Details,
		State:         r.State,
		Timestamps:    &Timestamps{Start: now.UnixMilli()},
	}
	if a.Name == "" {
		a.Name = rpcconfig.DefaultName
	}

	var assets Assets
	if r.LargeImageKey != "" {
		assets.LargeImage = NormalizeAssetKey(r.LargeImageKey)
		if r.LargeImageText != "" {
			assets.LargeText = strings.TrimSpace(r.LargeImageText)
		}
	}
	if r.SmallImageKey != "" {
		assets.SmallImage = NormalizeAssetKey(r.SmallImageKey)
		if r.SmallImageText != "" {
			assets.SmallText = strings.TrimSpace(r.SmallImageText)
		}
	}
	if assets != (Assets{}) {
		a.Assets = &assets
	}

	for _, b := range r.Buttons {
		if b.Label == "" || b.URL == "" {
			continue
		}
		if a.Metadata == nil {
			a.Metadata = &Metadata{}
		}
		a.Buttons = append(a.Buttons, b.Label)
		a.Metadata.ButtonURLs = append(a.Metadata.ButtonURLs, b.URL)
	}
	return a, true
}

// NormalizeAssetKey trims key and lowercases it unless it is a URL.
// Asset names are matched case-insensitively by the platform; URLs are not.
func NormalizeAssetKey(key string) string {
	key = strings.TrimSpace(key)
	if strings.HasPrefix(key, "http") {
		return key
	}
	return strings.ToLower(key)
}
