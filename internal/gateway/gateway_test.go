package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/KafClaw/rpcdash/internal/bus"
	"github.com/KafClaw/rpcdash/internal/discord"
	"github.com/KafClaw/rpcdash/internal/guard"
	"github.com/KafClaw/rpcdash/internal/rpcconfig"
	"github.com/KafClaw/rpcdash/internal/timeline"
)

const testPassword = "s3cret"

type fakeSession struct {
	mu       sync.Mutex
	identity *discord.Identity
	logins   int
	loginErr error
	updates  chan discord.PresenceUpdate
}

func newFakeSession() *fakeSession {
	return &fakeSession{updates: make(chan discord.PresenceUpdate, 16)}
}

func (f *fakeSession) Login(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	return f.loginErr
}

func (f *fakeSession) Logout() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.identity == nil {
		return discord.ErrNotLoggedIn
	}
	f.identity = nil
	return nil
}

func (f *fakeSession) SetPresence(_ context.Context, u discord.PresenceUpdate) error {
	if !f.LoggedIn() {
		return discord.ErrNotLoggedIn
	}
	f.updates <- u
	return nil
}

func (f *fakeSession) LoggedIn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.identity != nil
}

func (f *fakeSession) Identity() (discord.Identity, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.identity == nil {
		return discord.Identity{}, false
	}
	return *f.identity, true
}

func (f *fakeSession) setReady(id discord.Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identity = &id
}

func (f *fakeSession) failLogins(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginErr = err
}

func (f *fakeSession) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

type harness struct {
	srv      *Server
	sess     *fakeSession
	store    *rpcconfig.Store
	bus      *bus.MessageBus
	timeline *timeline.TimelineService
	http     *httptest.Server
}

type harnessOptions struct {
	token string
	delay time.Duration
	seed  *rpcconfig.Patch
}

func newHarness(t *testing.T, ho harnessOptions) *harness {
	t.Helper()
	dir := t.TempDir()
	store, err := rpcconfig.Open(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if ho.seed != nil {
		if _, err := store.Update(*ho.seed); err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}
	tl, err := timeline.NewTimelineService(filepath.Join(dir, "timeline.db"))
	if err != nil {
		t.Fatalf("open timeline: %v", err)
	}
	if ho.delay == 0 {
		ho.delay = 50 * time.Millisecond
	}

	h := &harness{sess: newFakeSession(), store: store, bus: bus.NewMessageBus(), timeline: tl}
	h.srv, err = New(Options{
		Store:            store,
		Session:          h.sess,
		Guard:            guard.New(testPassword),
		Bus:              h.bus,
		Timeline:         tl,
		Token:            ho.token,
		Version:          "test",
		StopRestoreDelay: ho.delay,
		Console:          io.Discard,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.srv.Run(ctx)
		close(done)
	}()
	h.http = httptest.NewServer(h.srv.Handler())
	t.Cleanup(func() {
		h.http.Close()
		cancel()
		<-done
		_ = tl.Close()
	})
	return h
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func (h *harness) dial(t *testing.T) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(event string, data any) {
	c.t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		c.t.Fatalf("marshal %s: %v", event, err)
	}
	if err := c.conn.WriteJSON(envelope{Event: event, Data: raw}); err != nil {
		c.t.Fatalf("send %s: %v", event, err)
	}
}

func (c *wsClient) next() envelope {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var env envelope
	if err := c.conn.ReadJSON(&env); err != nil {
		c.t.Fatalf("read frame: %v", err)
	}
	return env
}

// expect skips frames until one named event arrives.
func (c *wsClient) expect(event string) json.RawMessage {
	c.t.Helper()
	for {
		env := c.next()
		if env.Event == event {
			return env.Data
		}
	}
}

// until collects every frame up to and including the next pong.
func (c *wsClient) until() []envelope {
	c.t.Helper()
	c.send(CmdPing, nil)
	var frames []envelope
	for {
		env := c.next()
		frames = append(frames, env)
		if env.Event == EventPong {
			return frames
		}
	}
}

func (c *wsClient) authenticate() AuthPayload {
	c.t.Helper()
	c.send(CmdAuth, testPassword)
	var payload AuthPayload
	if err := json.Unmarshal(c.expect(EventAuthSuccess), &payload); err != nil {
		c.t.Fatalf("decode authSuccess: %v", err)
	}
	var line LogLine
	_ = json.Unmarshal(c.expect(EventLog), &line)
	if line.Message != "Authorized connection established" || line.Type != timeline.KindInfo {
		c.t.Fatalf("unexpected auth log %+v", line)
	}
	return payload
}

func logLines(t *testing.T, frames []envelope) []LogLine {
	t.Helper()
	var lines []LogLine
	for _, f := range frames {
		if f.Event != EventLog {
			continue
		}
		var line LogLine
		if err := json.Unmarshal(f.Data, &line); err != nil {
			t.Fatalf("decode log: %v", err)
		}
		lines = append(lines, line)
	}
	return lines
}

func resultOf(t *testing.T, frames []envelope, command string) CommandResult {
	t.Helper()
	for _, f := range frames {
		if f.Event != EventCommandResult {
			continue
		}
		var res CommandResult
		if err := json.Unmarshal(f.Data, &res); err != nil {
			t.Fatalf("decode commandResult: %v", err)
		}
		if res.Command == command {
			return res
		}
	}
	t.Fatalf("no commandResult for %s in %+v", command, frames)
	return CommandResult{}
}

func nextUpdate(t *testing.T, ch <-chan discord.PresenceUpdate) discord.PresenceUpdate {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for presence update")
	}
	return discord.PresenceUpdate{}
}

func strPtr(s string) *string { return &s }

func TestAuthSuccessReturnsConfigAndState(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	c := h.dial(t)

	payload := c.authenticate()
	if payload.Config.RPC.Name != rpcconfig.DefaultName {
		t.Fatalf("expected default config, got %+v", payload.Config)
	}
	if payload.IsLogged || payload.User != nil {
		t.Fatalf("expected logged out state, got %+v", payload)
	}
}

func TestAuthSuccessIncludesUserWhenLoggedIn(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.sess.setReady(discord.Identity{ID: "1", Username: "tester", Tag: "tester"})
	c := h.dial(t)

	payload := c.authenticate()
	if !payload.IsLogged || payload.User == nil || payload.User.Tag != "tester" {
		t.Fatalf("expected logged in user, got %+v", payload)
	}
}

func TestAuthFailure(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	c := h.dial(t)

	c.send(CmdAuth, "wrong")
	var msg string
	if err := json.Unmarshal(c.expect(EventAuthError), &msg); err != nil || msg != "Invalid password" {
		t.Fatalf("unexpected authError %q (%v)", msg, err)
	}
	var line LogLine
	_ = json.Unmarshal(c.expect(EventLog), &line)
	if line.Message != "Unauthorized access attempt blocked" || line.Type != timeline.KindError {
		t.Fatalf("unexpected log %+v", line)
	}

	// Still unauthenticated: privileged commands are dropped.
	c.send(CmdUpdateConfig, map[string]any{"rpc": map[string]any{"name": "X"}})
	for _, f := range c.until() {
		if f.Event != EventPong {
			t.Fatalf("unexpected frame %s", f.Event)
		}
	}
}

func TestUnauthenticatedUpdateConfigHasNoEffect(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	watcher := h.dial(t)
	watcher.authenticate()
	c := h.dial(t)

	before, err := os.ReadFile(h.store.Path())
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	c.send(CmdUpdateConfig, map[string]any{"rpc": map[string]any{"name": "Hacked"}})
	frames := c.until()
	if len(frames) != 1 {
		t.Fatalf("expected only pong, got %+v", frames)
	}

	after, _ := os.ReadFile(h.store.Path())
	if string(before) != string(after) {
		t.Fatal("config file changed by unauthenticated command")
	}
	if h.store.Snapshot().RPC.Name != rpcconfig.DefaultName {
		t.Fatal("in-memory config changed by unauthenticated command")
	}
	for _, f := range watcher.until() {
		if f.Event == EventConfigUpdate {
			t.Fatal("unexpected configUpdate broadcast")
		}
	}
}

func TestUpdateConfigPersistsAndBroadcasts(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	c := h.dial(t)
	c.authenticate()
	other := h.dial(t)
	other.until()

	c.send(CmdUpdateConfig, map[string]any{"rpc": map[string]any{"name": "My <b>Game</b>"}})
	frames := c.until()
	if res := resultOf(t, frames, CmdUpdateConfig); !res.OK {
		t.Fatalf("expected ok result, got %+v", res)
	}

	var rec rpcconfig.Record
	if err := json.Unmarshal(other.expect(EventConfigUpdate), &rec); err != nil {
		t.Fatalf("decode configUpdate: %v", err)
	}
	if rec.RPC.Name != "My bGame/b" {
		t.Fatalf("expected sanitized name, got %q", rec.RPC.Name)
	}
	data, err := os.ReadFile(h.store.Path())
	if err != nil || !strings.Contains(string(data), `"name": "My bGame/b"`) {
		t.Fatalf("expected persisted name, got %s (%v)", data, err)
	}
	select {
	case u := <-h.sess.updates:
		t.Fatalf("unexpected presence push while logged out: %+v", u)
	default:
	}
}

func TestUpdateConfigSyncsPresenceWhenLoggedIn(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.sess.setReady(discord.Identity{Username: "tester", Tag: "tester"})
	c := h.dial(t)
	c.authenticate()

	c.send(CmdUpdateConfig, map[string]any{"rpc": map[string]any{"applicationId": " 123 ", "name": "Game"}})
	u := nextUpdate(t, h.sess.updates)
	if len(u.Activities) != 1 || u.Activities[0].ApplicationID != "123" || u.Status != discord.StatusOnline {
		t.Fatalf("unexpected presence %+v", u)
	}
	lines := logLines(t, c.until())
	if len(lines) == 0 || lines[len(lines)-1].Message != "RPC Synced: Game" {
		t.Fatalf("expected sync log, got %+v", lines)
	}
	if v, err := h.timeline.GetSetting(timeline.SettingLastSyncAt); err != nil || v == "" {
		t.Fatalf("expected last sync recorded, got %q (%v)", v, err)
	}
}

func TestUpdateConfigRejectsUnknownFields(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	c := h.dial(t)
	c.authenticate()

	c.send(CmdUpdateConfig, map[string]any{"rpc": map[string]any{"token": "x"}})
	frames := c.until()
	res := resultOf(t, frames, CmdUpdateConfig)
	if res.OK || res.Error == "" {
		t.Fatalf("expected failed result, got %+v", res)
	}
	for _, f := range frames {
		if f.Event == EventConfigUpdate {
			t.Fatal("rejected patch must not broadcast")
		}
	}
}

func TestLoginWithoutTokenLogsOnce(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	c := h.dial(t)
	c.authenticate()

	c.send(CmdLogin, nil)
	frames := c.until()
	lines := logLines(t, frames)
	if len(lines) != 1 || lines[0].Message != "Token missing in .env!" || lines[0].Type != timeline.KindError {
		t.Fatalf("expected exactly one token log, got %+v", lines)
	}
	if res := resultOf(t, frames, CmdLogin); res.OK {
		t.Fatalf("expected failed result, got %+v", res)
	}
	if h.sess.loginCount() != 0 || h.sess.LoggedIn() {
		t.Fatal("login must not reach the session without a token")
	}
}

func TestLoginStartsSessionAndReportsFailure(t *testing.T) {
	h := newHarness(t, harnessOptions{token: "tok"})
	h.sess.failLogins(errors.New("boom"))
	c := h.dial(t)
	c.authenticate()

	c.send(CmdLogin, nil)
	var line LogLine
	_ = json.Unmarshal(c.expect(EventLog), &line)
	if line.Message != "Login failed: boom" || line.Type != timeline.KindError {
		t.Fatalf("unexpected log %+v", line)
	}
	if h.sess.loginCount() != 1 {
		t.Fatalf("expected one login attempt, got %d", h.sess.loginCount())
	}
}

func TestSessionReadyBroadcastsAndSyncs(t *testing.T) {
	h := newHarness(t, harnessOptions{seed: &rpcconfig.Patch{RPC: &rpcconfig.RPCPatch{
		ApplicationID: strPtr("42"),
		Name:          strPtr("Game"),
	}}})
	c := h.dial(t)
	c.authenticate()

	id := discord.Identity{ID: "1", Username: "tester", Tag: "tester"}
	h.sess.setReady(id)
	h.bus.PublishInbound(&bus.Command{Name: cmdSessionReady, Source: bus.SourceSession, Data: id})

	var line LogLine
	_ = json.Unmarshal(c.expect(EventLog), &line)
	if line.Message != "Logged in as tester" || line.Type != timeline.KindSuccess {
		t.Fatalf("unexpected log %+v", line)
	}
	var status StatusPayload
	_ = json.Unmarshal(c.expect(EventStatusUpdate), &status)
	if !status.IsLogged || status.User == nil || status.User.Username != "tester" {
		t.Fatalf("unexpected status %+v", status)
	}
	u := nextUpdate(t, h.sess.updates)
	if len(u.Activities) != 1 || u.Activities[0].Name != "Game" {
		t.Fatalf("unexpected presence %+v", u)
	}
	_ = json.Unmarshal(c.expect(EventLog), &line)
	if line.Message != "RPC Synced: Game" {
		t.Fatalf("unexpected log %+v", line)
	}
	if v, _ := h.timeline.GetSetting(timeline.SettingLastIdentity); v != "tester" {
		t.Fatalf("expected last identity recorded, got %q", v)
	}
}

func TestInternalCommandsIgnoredFromConnections(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	c := h.dial(t)
	c.authenticate()

	c.send(cmdSessionReady, map[string]string{"tag": "evil"})
	for _, f := range c.until() {
		if f.Event != EventPong {
			t.Fatalf("unexpected frame %s", f.Event)
		}
	}
}

func TestStopPresenceInvisibleThenOnline(t *testing.T) {
	h := newHarness(t, harnessOptions{delay: 50 * time.Millisecond})
	h.sess.setReady(discord.Identity{Username: "tester", Tag: "tester"})
	c := h.dial(t)
	c.authenticate()

	c.send(CmdStopPresence, nil)
	first := nextUpdate(t, h.sess.updates)
	if first.Status != discord.StatusInvisible || len(first.Activities) != 0 {
		t.Fatalf("expected invisible with no activities, got %+v", first)
	}
	second := nextUpdate(t, h.sess.updates)
	if second.Status != discord.StatusOnline || len(second.Activities) != 0 {
		t.Fatalf("expected online with no activities, got %+v", second)
	}

	var line LogLine
	_ = json.Unmarshal(c.expect(EventLog), &line)
	if line.Message != "Presence Stopped & Cleared" || line.Type != timeline.KindSuccess {
		t.Fatalf("unexpected log %+v", line)
	}
}

func TestStopPresenceRestoreSuppressedByLogout(t *testing.T) {
	h := newHarness(t, harnessOptions{delay: 200 * time.Millisecond})
	h.sess.setReady(discord.Identity{Username: "tester", Tag: "tester"})
	c := h.dial(t)
	c.authenticate()

	c.send(CmdStopPresence, nil)
	c.send(CmdLogout, nil)
	if u := nextUpdate(t, h.sess.updates); u.Status != discord.StatusInvisible {
		t.Fatalf("expected invisible first, got %+v", u)
	}

	var status StatusPayload
	_ = json.Unmarshal(c.expect(EventStatusUpdate), &status)
	if status.IsLogged || status.User != nil {
		t.Fatalf("unexpected status %+v", status)
	}

	select {
	case u := <-h.sess.updates:
		t.Fatalf("restore must not run after logout, got %+v", u)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestSessionClosedBroadcastsLoggedOut(t *testing.T) {
	h := newHarness(t, harnessOptions{delay: 200 * time.Millisecond})
	opts := HookSession(discord.Options{}, h.bus)
	h.sess.setReady(discord.Identity{Username: "tester", Tag: "tester"})
	c := h.dial(t)
	c.authenticate()

	c.send(CmdStopPresence, nil)
	if u := nextUpdate(t, h.sess.updates); u.Status != discord.StatusInvisible {
		t.Fatalf("expected invisible first, got %+v", u)
	}
	opts.OnClosed(errors.New("gateway gone"))

	var status StatusPayload
	_ = json.Unmarshal(c.expect(EventStatusUpdate), &status)
	if status.IsLogged || status.User != nil {
		t.Fatalf("unexpected status %+v", status)
	}
	for {
		var line LogLine
		_ = json.Unmarshal(c.expect(EventLog), &line)
		if line.Message == "Session closed: gateway gone" {
			if line.Type != timeline.KindError {
				t.Fatalf("expected error log, got %+v", line)
			}
			break
		}
	}

	// The fake still reports a live session, so only the cancelled
	// timer keeps the restore from going out.
	select {
	case u := <-h.sess.updates:
		t.Fatalf("restore must not run after session loss, got %+v", u)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestStopPresenceWhenLoggedOut(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	c := h.dial(t)
	c.authenticate()

	c.send(CmdStopPresence, nil)
	frames := c.until()
	if lines := logLines(t, frames); len(lines) != 0 {
		t.Fatalf("expected no log lines, got %+v", lines)
	}
	if res := resultOf(t, frames, CmdStopPresence); res.OK {
		t.Fatalf("expected failed result, got %+v", res)
	}
}

func TestLogoutWhenLoggedOutStillBroadcasts(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	c := h.dial(t)
	c.authenticate()

	c.send(CmdLogout, nil)
	frames := c.until()
	if res := resultOf(t, frames, CmdLogout); !res.OK {
		t.Fatalf("expected ok result, got %+v", res)
	}
	lines := logLines(t, frames)
	if len(lines) != 1 || lines[0].Message != "Logged out" {
		t.Fatalf("unexpected logs %+v", lines)
	}
}

func TestStatusEndpoint(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	fetch := func() map[string]any {
		t.Helper()
		resp, err := http.Get(h.http.URL + "/api/v1/status")
		if err != nil {
			t.Fatalf("get status: %v", err)
		}
		defer resp.Body.Close()
		var body map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		return body
	}

	body := fetch()
	if body["version"] != "test" || body["isLogged"] != false {
		t.Fatalf("unexpected status %+v", body)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		queue, ok := body["queue"].(map[string]any)
		if !ok {
			t.Fatalf("expected queue depths in status, got %+v", body)
		}
		if _, ok := queue["inbound"].(float64); !ok {
			t.Fatalf("expected numeric inbound depth, got %+v", queue)
		}
		if _, ok := queue["outbound"].(float64); !ok {
			t.Fatalf("expected numeric outbound depth, got %+v", queue)
		}
		if queue["dispatching"] == true {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("dispatcher never reported running: %+v", queue)
		}
		time.Sleep(20 * time.Millisecond)
		body = fetch()
	}
}

func TestLogsEndpointRequiresBearer(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	c := h.dial(t)
	c.authenticate()

	resp, err := http.Get(h.http.URL + "/api/v1/logs")
	if err != nil {
		t.Fatalf("get logs: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		req, _ := http.NewRequest(http.MethodGet, h.http.URL+"/api/v1/logs?limit=10", nil)
		req.Header.Set("Authorization", "Bearer "+testPassword)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("get logs: %v", err)
		}
		var events []timeline.TimelineEvent
		err = json.NewDecoder(resp.Body).Decode(&events)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decode logs: %v", err)
		}
		if len(events) > 0 {
			if events[0].Message != "Authorized connection established" || events[0].Source != bus.SourceConn {
				t.Fatalf("unexpected event %+v", events[0])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for recorded log")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
