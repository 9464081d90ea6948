// Package gateway serves the dashboard: a websocket endpoint carrying
// {"event","data"} frames, a small JSON API, and the dispatcher that owns
// every mutation of the config record and the chat session.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/KafClaw/rpcdash/internal/bus"
	"github.com/KafClaw/rpcdash/internal/eventsink"
	"github.com/KafClaw/rpcdash/internal/guard"
	"github.com/KafClaw/rpcdash/internal/rpcconfig"
	"github.com/KafClaw/rpcdash/internal/timeline"
)

// DefaultStopRestoreDelay is how long stopPresence stays invisible before
// the account is set back online.
const DefaultStopRestoreDelay = time.Second

// Options wires a Server to its collaborators. Store, Session, Guard and
// Bus are required.
type Options struct {
	Store    *rpcconfig.Store
	Session  Session
	Guard    *guard.Guard
	Bus      *bus.MessageBus
	Timeline *timeline.TimelineService
	Sink     eventsink.Sink

	// Token is the session credential used by the login command.
	Token   string
	Version string

	StopRestoreDelay time.Duration

	// Console receives the human-readable log lines. Defaults to stdout.
	Console io.Writer
}

// Server is the realtime gateway.
type Server struct {
	opts     Options
	store    *rpcconfig.Store
	session  Session
	guard    *guard.Guard
	bus      *bus.MessageBus
	timeline *timeline.TimelineService
	hub      *Hub
	upgrader websocket.Upgrader
	started  time.Time

	// Owned by the dispatcher goroutine.
	authed  map[string]bool
	epoch   uint64
	restore *time.Timer
}

// New builds a Server and subscribes it to the bus and the config store.
func New(opts Options) (*Server, error) {
	if opts.Store == nil || opts.Session == nil || opts.Guard == nil || opts.Bus == nil {
		return nil, errors.New("gateway: store, session, guard and bus are required")
	}
	if opts.StopRestoreDelay <= 0 {
		opts.StopRestoreDelay = DefaultStopRestoreDelay
	}
	if opts.Console == nil {
		opts.Console = os.Stdout
	}

	s := &Server{
		opts:     opts,
		store:    opts.Store,
		session:  opts.Session,
		guard:    opts.Guard,
		bus:      opts.Bus,
		timeline: opts.Timeline,
		hub:      newHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		started: time.Now(),
		authed:  make(map[string]bool),
	}

	s.bus.Subscribe(bus.AllEvents, s.hub.deliver)
	if opts.Sink != nil {
		eventsink.Attach(s.bus, opts.Sink)
	}
	s.store.Observe(func(rec rpcconfig.Record) {
		s.bus.PublishOutbound(&bus.Event{Name: EventConfigUpdate, Data: rec})
	})
	return s, nil
}

// Handler returns the HTTP routes served by the gateway.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/logs", s.handleLogs)
	return mux
}

// Connections returns the number of open dashboard connections.
func (s *Server) Connections() int {
	return s.hub.Count()
}

// Run consumes commands until ctx is cancelled. It is the only goroutine
// that mutates dashboard state.
func (s *Server) Run(ctx context.Context) error {
	go s.bus.DispatchOutbound(ctx)
	slog.Info("Gateway dispatcher started")
	defer func() {
		if s.restore != nil {
			s.restore.Stop()
		}
		slog.Info("Gateway dispatcher stopped")
	}()

	for {
		cmd, err := s.bus.ConsumeInbound(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		s.handle(ctx, cmd)
	}
}

// ListenAndServe serves Handler on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("dashboard server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
