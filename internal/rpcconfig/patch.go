package rpcconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidPatch is returned for updateConfig payloads that are not a JSON
// object, carry unknown keys, or carry values of the wrong type.
var ErrInvalidPatch = errors.New("invalid config update")

// Patch is a partial Record. Nil fields are left untouched by Merge.
type Patch struct {
	RPC *RPCPatch `json:"rpc,omitempty"`
}

// RPCPatch is the editable subset of RPC. Buttons, when present, replace
// the whole list.
type RPCPatch struct {
	ApplicationID  *string   `json:"applicationId,omitempty"`
	Name           *string   `json:"name,omitempty"`
	Details        *string   `json:"details,omitempty"`
	State          *string   `json:"state,omitempty"`
	LargeImageKey  *string   `json:"largeImageKey,omitempty"`
	LargeImageText *string   `json:"largeImageText,omitempty"`
	SmallImageKey  *string   `json:"smallImageKey,omitempty"`
	SmallImageText *string   `json:"smallImageText,omitempty"`
	Buttons        *[]Button `json:"buttons,omitempty"`
}

// DecodePatch parses an updateConfig payload. Only whitelisted keys are
// accepted.
func DecodePatch(raw []byte) (Patch, error) {
	var p Patch
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return p, fmt.Errorf("%w: payload must be a JSON object", ErrInvalidPatch)
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Patch{}, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Patch{}, fmt.Errorf("%w: trailing data after object", ErrInvalidPatch)
	}
	return p, nil
}

// apply merges p into rec, sanitizing every string it copies.
func (p Patch) apply(rec *Record) {
	if p.RPC == nil {
		return
	}
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = Sanitize(*src)
		}
	}
	r := &rec.RPC
	set(&r.ApplicationID, p.RPC.ApplicationID)
	set(&r.Name, p.RPC.Name)
	set(&r.Details, p.RPC.Details)
	set(&r.State, p.RPC.State)
	set(&r.LargeImageKey, p.RPC.LargeImageKey)
	set(&r.LargeImageText, p.RPC.LargeImageText)
	set(&r.SmallImageKey, p.RPC.SmallImageKey)
	set(&r.SmallImageText, p.RPC.SmallImageText)
	if p.RPC.Buttons != nil {
		buttons := make([]Button, 0, len(*p.RPC.Buttons))
		for _, b := range *p.RPC.Buttons {
			buttons = append(buttons, Button{Label: Sanitize(b.Label), URL: Sanitize(b.URL)})
		}
		r.Buttons = buttons
	}
}
