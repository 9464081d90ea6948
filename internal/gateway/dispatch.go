package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/KafClaw/rpcdash/internal/bus"
	"github.com/KafClaw/rpcdash/internal/discord"
	"github.com/KafClaw/rpcdash/internal/presence"
	"github.com/KafClaw/rpcdash/internal/rpcconfig"
	"github.com/KafClaw/rpcdash/internal/timeline"
)

type commandHandler func(s *Server, ctx context.Context, cmd *bus.Command) error

// privileged lists the commands that require an authenticated connection.
var privileged = map[string]commandHandler{
	CmdUpdateConfig: (*Server).updateConfig,
	CmdLogin:        (*Server).login,
	CmdLogout:       (*Server).logout,
	CmdStopPresence: (*Server).stopPresence,
}

func (s *Server) handle(ctx context.Context, cmd *bus.Command) {
	if cmd.Source != bus.SourceConn {
		s.handleInternal(ctx, cmd)
		return
	}

	switch cmd.Name {
	case CmdPing:
		s.reply(cmd.ConnID, EventPong, nil)
		return
	case CmdAuth:
		s.auth(cmd)
		return
	case cmdDisconnect:
		delete(s.authed, cmd.ConnID)
		return
	}

	handler, ok := privileged[cmd.Name]
	if !ok {
		slog.Debug("Ignoring unknown command", "command", cmd.Name, "conn", cmd.ConnID)
		return
	}
	if !s.guard.Allowed(s.authed[cmd.ConnID]) {
		return
	}
	s.result(cmd, handler(s, ctx, cmd))
}

func (s *Server) handleInternal(ctx context.Context, cmd *bus.Command) {
	switch cmd.Name {
	case cmdSessionReady:
		id, _ := cmd.Data.(discord.Identity)
		s.sessionReady(ctx, cmd, id)
	case cmdSessionClosed:
		err, _ := cmd.Data.(error)
		s.sessionClosed(cmd, err)
	case cmdLoginFailed:
		err, _ := cmd.Data.(error)
		if err == nil || errors.Is(err, discord.ErrLoginCancelled) {
			slog.Debug("Login superseded", "error", err)
			return
		}
		s.logf(cmd, timeline.KindError, "Login failed: %v", err)
	case cmdRestorePresence:
		epoch, _ := cmd.Data.(uint64)
		s.restorePresence(ctx, cmd, epoch)
	default:
		slog.Warn("Unknown internal command", "command", cmd.Name, "source", cmd.Source)
	}
}

func (s *Server) auth(cmd *bus.Command) {
	var secret string
	if err := json.Unmarshal(cmd.Payload, &secret); err != nil || !s.guard.Check(secret) {
		s.reply(cmd.ConnID, EventAuthError, "Invalid password")
		s.logf(cmd, timeline.KindError, "Unauthorized access attempt blocked")
		return
	}
	s.authed[cmd.ConnID] = true
	s.reply(cmd.ConnID, EventAuthSuccess, AuthPayload{
		Config:   s.store.Snapshot(),
		IsLogged: s.session.LoggedIn(),
		User:     currentUser(s.session),
	})
	s.logf(cmd, timeline.KindInfo, "Authorized connection established")
}

func (s *Server) updateConfig(ctx context.Context, cmd *bus.Command) error {
	patch, err := rpcconfig.DecodePatch(cmd.Payload)
	if err != nil {
		return err
	}
	if _, err := s.store.Update(patch); err != nil {
		s.logf(cmd, timeline.KindError, "Config save failed: %v", err)
		return err
	}
	if s.session.LoggedIn() {
		s.syncPresence(ctx, cmd)
	}
	return nil
}

func (s *Server) login(ctx context.Context, cmd *bus.Command) error {
	if s.opts.Token == "" {
		s.logf(cmd, timeline.KindError, "Token missing in .env!")
		return discord.ErrNoToken
	}
	if id, ok := s.session.Identity(); ok {
		s.logf(cmd, timeline.KindInfo, "Already logged in as %s", id.Tag)
		return nil
	}

	token := s.opts.Token
	go func() {
		if err := s.session.Login(ctx, token); err != nil {
			s.bus.PublishInbound(&bus.Command{Name: cmdLoginFailed, Source: bus.SourceSession, Data: err})
		}
	}()
	return nil
}

func (s *Server) logout(_ context.Context, cmd *bus.Command) error {
	s.cancelRestore()
	if err := s.session.Logout(); err != nil {
		if !errors.Is(err, discord.ErrNotLoggedIn) {
			return err
		}
		slog.Info("Logout requested without a session", "conn", cmd.ConnID)
	}
	s.broadcast(EventStatusUpdate, StatusPayload{IsLogged: false})
	s.logf(cmd, timeline.KindInfo, "Logged out")
	return nil
}

func (s *Server) stopPresence(ctx context.Context, cmd *bus.Command) error {
	if !s.session.LoggedIn() {
		return discord.ErrNotLoggedIn
	}
	err := s.session.SetPresence(ctx, discord.PresenceUpdate{Status: discord.StatusInvisible})
	if err != nil {
		s.logf(cmd, timeline.KindError, "Presence Error: %v", err)
		return err
	}
	s.scheduleRestore()
	s.logf(cmd, timeline.KindSuccess, "Presence Stopped & Cleared")
	return nil
}

// scheduleRestore queues a restorePresence command after the stop delay.
// Logout and session loss bump the epoch, which voids the pending restore.
func (s *Server) scheduleRestore() {
	s.cancelRestore()
	epoch := s.epoch
	s.restore = time.AfterFunc(s.opts.StopRestoreDelay, func() {
		s.bus.PublishInbound(&bus.Command{Name: cmdRestorePresence, Source: bus.SourceTimer, Data: epoch})
	})
}

func (s *Server) cancelRestore() {
	s.epoch++
	if s.restore != nil {
		s.restore.Stop()
		s.restore = nil
	}
}

func (s *Server) restorePresence(ctx context.Context, cmd *bus.Command, epoch uint64) {
	if epoch != s.epoch || !s.session.LoggedIn() {
		return
	}
	s.restore = nil
	if err := s.session.SetPresence(ctx, discord.PresenceUpdate{Status: discord.StatusOnline}); err != nil {
		s.logf(cmd, timeline.KindError, "Presence Error: %v", err)
	}
}

func (s *Server) sessionReady(ctx context.Context, cmd *bus.Command, id discord.Identity) {
	// A logout processed after READY was queued wins.
	if !s.session.LoggedIn() {
		return
	}
	s.logf(cmd, timeline.KindSuccess, "Logged in as %s", id.Tag)
	s.broadcast(EventStatusUpdate, StatusPayload{
		IsLogged: true,
		User:     &UserView{Tag: id.Tag, Username: id.Username},
	})
	s.setSetting(timeline.SettingLastIdentity, id.Tag)
	s.syncPresence(ctx, cmd)
}

func (s *Server) sessionClosed(cmd *bus.Command, err error) {
	s.cancelRestore()
	s.broadcast(EventStatusUpdate, StatusPayload{IsLogged: false})
	s.logf(cmd, timeline.KindError, "Session closed: %v", err)
}

// syncPresence rebuilds the activity from the current record and pushes it.
func (s *Server) syncPresence(ctx context.Context, cmd *bus.Command) {
	act, ok := presence.Build(s.store.Snapshot(), s.session.LoggedIn(), time.Now())
	if !ok {
		return
	}
	err := s.session.SetPresence(ctx, discord.PresenceUpdate{
		Activities: []presence.Activity{act},
		Status:     discord.StatusOnline,
	})
	if err != nil {
		s.logf(cmd, timeline.KindError, "Presence Error: %v", err)
		return
	}
	s.logf(cmd, timeline.KindSuccess, "RPC Synced: %s", act.Name)
	s.setSetting(timeline.SettingLastSyncAt, time.Now().UTC().Format(time.RFC3339))
}

func (s *Server) setSetting(key, value string) {
	if s.timeline == nil {
		return
	}
	if err := s.timeline.SetSetting(key, value); err != nil {
		slog.Warn("Update setting failed", "key", key, "error", err)
	}
}
