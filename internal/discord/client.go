// Package discord drives a user-account chat gateway session: login,
// logout and presence updates. Nothing else of the gateway protocol is
// handled.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/KafClaw/rpcdash/internal/presence"
)

var (
	// ErrNotLoggedIn is returned by operations that need a ready session.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrNoToken is returned by Login when the credential is empty.
	ErrNoToken = errors.New("token missing")
	// ErrLoginCancelled is returned when Logout or a newer Login superseded
	// a pending handshake.
	ErrLoginCancelled = errors.New("login cancelled")
	// ErrAuthenticationFailed is reported when the gateway rejects the token.
	ErrAuthenticationFailed = errors.New("an invalid token was provided")
	// ErrInvalidSession is reported when the gateway invalidates the session.
	ErrInvalidSession = errors.New("invalid session")
)

const writeTimeout = 10 * time.Second

// Status is the account's online status.
type Status string

const (
	StatusOnline    Status = "online"
	StatusIdle      Status = "idle"
	StatusDND       Status = "dnd"
	StatusInvisible Status = "invisible"
)

// Identity describes the logged-in account.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Tag      string `json:"tag"`
}

// PresenceUpdate is the payload of a presence update. A nil Activities
// slice is sent as an empty list, which clears the activity.
type PresenceUpdate struct {
	Since      *int64              `json:"since"`
	Activities []presence.Activity `json:"activities"`
	Status     Status              `json:"status"`
	AFK        bool                `json:"afk"`
}

// Options configures a Client.
type Options struct {
	GatewayURL string
	Dialer     *websocket.Dialer

	// OnReady runs once per successful login, from the read goroutine.
	OnReady  func(Identity)
	// OnError reports a login that failed after Login returned.
	OnError  func(error)
	// OnClosed reports a ready session that ended without Logout.
	OnClosed func(error)
}

// Client owns at most one gateway connection. Each Login starts a new
// generation; Logout and later Logins invalidate older generations so a
// late READY from a superseded handshake is dropped.
type Client struct {
	opts Options

	mu       sync.Mutex
	gen      uint64
	conn     *websocket.Conn
	cancel   context.CancelFunc
	identity *Identity
	seq      *int

	writeMu sync.Mutex
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Client{opts: opts}
}

// LoggedIn reports whether the session has reached READY.
func (c *Client) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity != nil
}

// Identity returns the account once the session is ready.
func (c *Client) Identity() (Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		return Identity{}, false
	}
	return *c.identity, true
}

// Login connects and identifies with token. It returns once IDENTIFY has
// been sent; READY is delivered through Options.OnReady. Any session held
// by the client is torn down first.
func (c *Client) Login(ctx context.Context, token string) error {
	if token == "" {
		return ErrNoToken
	}

	c.mu.Lock()
	c.teardownLocked()
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.GatewayURL, nil)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	var hello gatewayPayload
	_ = conn.SetReadDeadline(time.Now().Add(writeTimeout))
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return fmt.Errorf("read hello: %w", closeReason(err))
	}
	_ = conn.SetReadDeadline(time.Time{})
	if hello.Op != opHello {
		conn.Close()
		return fmt.Errorf("expected op %d, got %d", opHello, hello.Op)
	}
	var hd helloData
	if err := json.Unmarshal(hello.D, &hd); err != nil || hd.HeartbeatInterval <= 0 {
		conn.Close()
		return fmt.Errorf("invalid hello payload")
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		cancel()
		conn.Close()
		return ErrLoginCancelled
	}
	c.conn = conn
	c.cancel = cancel
	c.seq = nil
	c.mu.Unlock()

	id := identifyData{
		Token: token,
		Properties: map[string]string{
			"os": "linux", "browser": "rpcdash", "device": "rpcdash",
		},
		Presence: PresenceUpdate{Activities: []presence.Activity{}, Status: StatusOnline},
	}
	if err := c.send(conn, opIdentify, id); err != nil {
		c.endGeneration(gen)
		return fmt.Errorf("identify: %w", err)
	}

	go c.heartbeatLoop(sessCtx, gen, conn, time.Duration(hd.HeartbeatInterval)*time.Millisecond)
	go c.readLoop(sessCtx, gen, conn)
	return nil
}

// Logout closes the session immediately. It also cancels a pending Login.
// With no connection it returns ErrNotLoggedIn and changes nothing else.
func (c *Client) Logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if c.conn == nil {
		return ErrNotLoggedIn
	}
	c.teardownLocked()
	return nil
}

// SetPresence pushes u to the ready session.
func (c *Client) SetPresence(ctx context.Context, u PresenceUpdate) error {
	c.mu.Lock()
	conn := c.conn
	ready := c.identity != nil
	c.mu.Unlock()
	if conn == nil || !ready {
		return ErrNotLoggedIn
	}
	if u.Activities == nil {
		u.Activities = []presence.Activity{}
	}
	if u.Status == "" {
		u.Status = StatusOnline
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.send(conn, opPresenceUpdate, u)
}

func (c *Client) send(conn *websocket.Conn, op int, d any) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(gatewayPayload{Op: op, D: raw})
}

func (c *Client) heartbeatLoop(ctx context.Context, gen uint64, conn *websocket.Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.sendHeartbeat(conn); err != nil {
				slog.Debug("Gateway heartbeat failed", "gen", gen, "error", err)
				return
			}
		}
	}
}

func (c *Client) sendHeartbeat(conn *websocket.Conn) error {
	c.mu.Lock()
	var seq any
	if c.seq != nil {
		seq = *c.seq
	}
	c.mu.Unlock()
	return c.send(conn, opHeartbeat, seq)
}

func (c *Client) readLoop(ctx context.Context, gen uint64, conn *websocket.Conn) {
	for {
		var payload gatewayPayload
		if err := conn.ReadJSON(&payload); err != nil {
			if ctx.Err() == nil {
				c.fail(gen, closeReason(err))
			}
			return
		}

		if payload.S != nil {
			c.mu.Lock()
			if c.gen == gen {
				s := *payload.S
				c.seq = &s
			}
			c.mu.Unlock()
		}

		switch payload.Op {
		case opDispatch:
			if payload.T == "READY" {
				c.handleReady(gen, payload.D)
			}
		case opHeartbeat:
			_ = c.sendHeartbeat(conn)
		case opReconnect:
			c.fail(gen, errors.New("gateway requested reconnect"))
			return
		case opInvalidSession:
			c.fail(gen, ErrInvalidSession)
			return
		case opHeartbeatAck:
		}
	}
}

func (c *Client) handleReady(gen uint64, d json.RawMessage) {
	var ready readyData
	if err := json.Unmarshal(d, &ready); err != nil {
		c.fail(gen, fmt.Errorf("decode ready: %w", err))
		return
	}
	id := ready.User.identity()

	c.mu.Lock()
	if c.gen != gen || c.conn == nil {
		c.mu.Unlock()
		return
	}
	c.identity = &id
	c.mu.Unlock()

	if c.opts.OnReady != nil {
		c.opts.OnReady(id)
	}
}

// fail ends generation gen after a protocol or transport error and reports
// it as a failed login or a closed session.
func (c *Client) fail(gen uint64, err error) {
	c.mu.Lock()
	if c.gen != gen || c.conn == nil {
		c.mu.Unlock()
		return
	}
	wasReady := c.identity != nil
	c.teardownLocked()
	c.mu.Unlock()

	if wasReady {
		if c.opts.OnClosed != nil {
			c.opts.OnClosed(err)
		}
		return
	}
	if c.opts.OnError != nil {
		c.opts.OnError(err)
	}
}

func (c *Client) endGeneration(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen {
		c.teardownLocked()
	}
}

// teardownLocked drops the current connection. Caller holds c.mu.
func (c *Client) teardownLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.conn.Close()
		c.conn = nil
	}
	c.identity = nil
	c.seq = nil
}

func closeReason(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Code == closeAuthenticationFailed {
		return ErrAuthenticationFailed
	}
	return err
}
