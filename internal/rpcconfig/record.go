// Package rpcconfig holds the editable rich presence record and its
// on-disk store.
package rpcconfig

import "strings"

// DefaultName is the activity name used when the record leaves it empty.
const DefaultName = "Custom RPC"

// Record is the persisted presence configuration.
type Record struct {
	RPC RPC `json:"rpc"`
}

// RPC groups the presence display fields.
type RPC struct {
	ApplicationID  string   `json:"applicationId"`
	Name           string   `json:"name"`
	Details        string   `json:"details"`
	State          string   `json:"state"`
	LargeImageKey  string   `json:"largeImageKey"`
	LargeImageText string   `json:"largeImageText"`
	SmallImageKey  string   `json:"smallImageKey"`
	SmallImageText string   `json:"smallImageText"`
	Buttons        []Button `json:"buttons"`
}

// Button is a labelled link shown under the activity.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// DefaultRecord returns the record seeded on first run.
func DefaultRecord() Record {
	return Record{
		RPC: RPC{
			Name:    DefaultName,
			Details: "Premium Mobile Dashboard",
			State:   "Crafting a masterpiece",
			Buttons: []Button{},
		},
	}
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := r
	out.RPC.Buttons = make([]Button, len(r.RPC.Buttons))
	copy(out.RPC.Buttons, r.RPC.Buttons)
	return out
}

// Sanitize strips markup delimiters from s.
func Sanitize(s string) string {
	if !strings.ContainsAny(s, "<>") {
		return s
	}
	return strings.NewReplacer("<", "", ">", "").Replace(s)
}
