package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/KafClaw/rpcdash/internal/bus"
)

// frame is the envelope of every client to server message.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Dashboard upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	p := &peer{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}
	s.hub.register(p)
	slog.Debug("Dashboard connected", "conn", p.id, "remote", r.RemoteAddr)

	go p.writePump()
	s.readLoop(p)
}

// readLoop turns frames from p into dispatcher commands. Connection state
// is discarded with a disconnect command once the socket closes.
func (s *Server) readLoop(p *peer) {
	defer func() {
		s.hub.unregister(p.id)
		s.bus.PublishInbound(&bus.Command{Name: cmdDisconnect, Source: bus.SourceConn, ConnID: p.id})
		slog.Debug("Dashboard disconnected", "conn", p.id)
	}()

	p.conn.SetReadLimit(maxFrameSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Dashboard read error", "conn", p.id, "error", err)
			}
			return
		}
		_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))

		var f frame
		if err := json.Unmarshal(message, &f); err != nil || f.Event == "" {
			slog.Debug("Ignoring malformed frame", "conn", p.id)
			continue
		}
		s.bus.PublishInbound(&bus.Command{
			Name:    f.Event,
			Source:  bus.SourceConn,
			ConnID:  p.id,
			Payload: f.Data,
		})
	}
}
