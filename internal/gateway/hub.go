package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/KafClaw/rpcdash/internal/bus"
)

const (
	sendBuffer   = 64
	writeWait    = 10 * time.Second
	pongWait     = 120 * time.Second
	pingInterval = 30 * time.Second
	maxFrameSize = 65536
)

// peer is one dashboard connection as seen by the hub.
type peer struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans outbound events out to connected dashboards.
type Hub struct {
	mu    sync.RWMutex
	peers map[string]*peer
}

func newHub() *Hub {
	return &Hub{peers: make(map[string]*peer)}
}

func (h *Hub) register(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[p.id] = p
}

// unregister removes id and closes its send channel, which stops its write
// pump. It reports whether the peer was still registered.
func (h *Hub) unregister(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.peers[id]
	if !ok {
		return false
	}
	delete(h.peers, id)
	close(p.send)
	return true
}

// Count returns the number of connected dashboards.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// deliver writes evt to its target, or to every peer when untargeted.
// Peers whose buffer is full are dropped.
func (h *Hub) deliver(evt *bus.Event) {
	frame, err := json.Marshal(evt)
	if err != nil {
		slog.Error("Encode event failed", "event", evt.Name, "error", err)
		return
	}

	var slow []string
	h.mu.RLock()
	for id, p := range h.peers {
		if evt.Target != "" && evt.Target != id {
			continue
		}
		select {
		case p.send <- frame:
		default:
			slow = append(slow, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range slow {
		if h.unregister(id) {
			slog.Warn("Dropped slow dashboard connection", "conn", id)
		}
	}
}

// writePump owns all writes to p.conn.
func (p *peer) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
