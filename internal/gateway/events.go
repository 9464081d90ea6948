package gateway

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fatih/color"

	"github.com/KafClaw/rpcdash/internal/bus"
	"github.com/KafClaw/rpcdash/internal/rpcconfig"
	"github.com/KafClaw/rpcdash/internal/timeline"
)

// Client commands.
const (
	CmdAuth         = "auth"
	CmdUpdateConfig = "updateConfig"
	CmdLogin        = "login"
	CmdLogout       = "logout"
	CmdStopPresence = "stopPresence"
	CmdPing         = "ping"
)

// Server events.
const (
	EventAuthSuccess   = "authSuccess"
	EventAuthError     = "authError"
	EventLog           = "log"
	EventStatusUpdate  = "statusUpdate"
	EventConfigUpdate  = "configUpdate"
	EventCommandResult = "commandResult"
	EventPong          = "pong"
)

// LogLine is the payload of a log event.
type LogLine struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// StatusPayload is the payload of statusUpdate.
type StatusPayload struct {
	IsLogged bool      `json:"isLogged"`
	User     *UserView `json:"user"`
}

// AuthPayload is the payload of authSuccess.
type AuthPayload struct {
	Config   rpcconfig.Record `json:"config"`
	IsLogged bool             `json:"isLogged"`
	User     *UserView        `json:"user"`
}

// CommandResult reports the outcome of a privileged command to its sender.
type CommandResult struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

var (
	consoleTime    = color.New(color.FgHiBlack)
	consoleSuccess = color.New(color.FgGreen)
	consoleError   = color.New(color.FgRed)
)

// broadcast sends an event to every connection.
func (s *Server) broadcast(name string, data any) {
	s.bus.PublishOutbound(&bus.Event{Name: name, Data: data})
}

// reply sends an event to one connection.
func (s *Server) reply(connID, name string, data any) {
	s.bus.PublishOutbound(&bus.Event{Name: name, Target: connID, Data: data})
}

func (s *Server) result(cmd *bus.Command, err error) {
	if cmd.Source != bus.SourceConn {
		return
	}
	res := CommandResult{Command: cmd.Name, OK: err == nil}
	if err != nil {
		res.Error = err.Error()
	}
	s.reply(cmd.ConnID, EventCommandResult, res)
}

// logf broadcasts a log line, echoes it on the console and records it in
// the timeline.
func (s *Server) logf(cmd *bus.Command, kind, format string, args ...any) {
	now := time.Now()
	msg := fmt.Sprintf(format, args...)
	stamp := now.Format("15:04:05")

	_, _ = consoleTime.Fprintf(s.opts.Console, "[%s] ", stamp)
	switch kind {
	case timeline.KindSuccess:
		_, _ = consoleSuccess.Fprintln(s.opts.Console, msg)
	case timeline.KindError:
		_, _ = consoleError.Fprintln(s.opts.Console, msg)
	default:
		_, _ = fmt.Fprintln(s.opts.Console, msg)
	}

	s.broadcast(EventLog, LogLine{Message: msg, Type: kind, Timestamp: stamp})

	if s.timeline == nil {
		return
	}
	evt := &timeline.TimelineEvent{Timestamp: now, Kind: kind, Message: msg, Source: "system"}
	if cmd != nil {
		evt.Source = cmd.Source
		evt.ConnID = cmd.ConnID
	}
	if err := s.timeline.AddEvent(evt); err != nil {
		slog.Warn("Record log line failed", "error", err)
	}
}
