package gateway

import (
	"context"

	"github.com/KafClaw/rpcdash/internal/bus"
	"github.com/KafClaw/rpcdash/internal/discord"
)

// Session is the chat-account session the dashboard drives.
// *discord.Client satisfies it.
type Session interface {
	Login(ctx context.Context, token string) error
	Logout() error
	SetPresence(ctx context.Context, u discord.PresenceUpdate) error
	LoggedIn() bool
	Identity() (discord.Identity, bool)
}

// Internal commands published by the session callbacks and timers.
const (
	cmdSessionReady    = "sessionReady"
	cmdSessionClosed   = "sessionClosed"
	cmdLoginFailed     = "loginFailed"
	cmdRestorePresence = "restorePresence"
	cmdDisconnect      = "disconnect"
)

// HookSession returns opts with lifecycle callbacks that hand session
// events to the dispatcher through b.
func HookSession(opts discord.Options, b *bus.MessageBus) discord.Options {
	opts.OnReady = func(id discord.Identity) {
		b.PublishInbound(&bus.Command{Name: cmdSessionReady, Source: bus.SourceSession, Data: id})
	}
	opts.OnError = func(err error) {
		b.PublishInbound(&bus.Command{Name: cmdLoginFailed, Source: bus.SourceSession, Data: err})
	}
	opts.OnClosed = func(err error) {
		b.PublishInbound(&bus.Command{Name: cmdSessionClosed, Source: bus.SourceSession, Data: err})
	}
	return opts
}

// UserView is the user object sent to dashboards.
type UserView struct {
	Tag      string `json:"tag"`
	Username string `json:"username"`
}

func currentUser(s Session) *UserView {
	id, ok := s.Identity()
	if !ok {
		return nil
	}
	return &UserView{Tag: id.Tag, Username: id.Username}
}
