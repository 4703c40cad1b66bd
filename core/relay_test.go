package core

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/websocket"
)

type fakeProvider struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (f *fakeProvider) Respond(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	started []string
	ended   []string
}

func (f *fakeRecorder) Start(_ context.Context, sessionID, _ string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, sessionID)
	return nil
}

func (f *fakeRecorder) End(_ context.Context, sessionID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, sessionID)
	return nil
}

// relayClient wraps a websocket connection with a persistent decoder so
// frames can be read one at a time.
type relayClient struct {
	conn *websocket.Conn
	dec  *json.Decoder
}

type testFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func startRelayServer(t *testing.T, provider AIProvider, sessions SessionRecorder) (*httptest.Server, *PresenceRegistry) {
	t.Helper()
	presence := NewPresenceRegistry()
	relay := NewRelay(presence, provider, sessions)
	srv := httptest.NewServer(relay.Handler())
	t.Cleanup(srv.Close)
	return srv, presence
}

func dialRelay(t *testing.T, srv *httptest.Server) *relayClient {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &relayClient{conn: conn, dec: json.NewDecoder(conn)}
}

func (c *relayClient) send(t *testing.T, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", event, err)
	}
	if err := json.NewEncoder(c.conn).Encode(wsFrame{Event: event, Data: raw}); err != nil {
		t.Fatalf("send %s: %v", event, err)
	}
}

func (c *relayClient) recv(t *testing.T) testFrame {
	t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame testFrame
	if err := c.dec.Decode(&frame); err != nil {
		t.Fatalf("receive frame: %v", err)
	}
	return frame
}

// expectSilence asserts no frame arrives within the window.
func (c *relayClient) expectSilence(t *testing.T, window time.Duration) {
	t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(window))
	var frame testFrame
	err := c.dec.Decode(&frame)
	if err == nil {
		t.Fatalf("unexpected frame %q", frame.Event)
	}
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Fatalf("expected read timeout, got %v", err)
	}
}

func (c *relayClient) expectActiveUsers(t *testing.T, want int) {
	t.Helper()
	frame := c.recv(t)
	if frame.Event != "activeUsers" {
		t.Fatalf("event = %q, want activeUsers", frame.Event)
	}
	var count int
	if err := json.Unmarshal(frame.Data, &count); err != nil {
		t.Fatalf("decode count: %v", err)
	}
	if count != want {
		t.Fatalf("activeUsers = %d, want %d", count, want)
	}
}

func TestRelayJoinAndDisconnectBroadcastCount(t *testing.T) {
	srv, presence := startRelayServer(t, &fakeProvider{reply: "ok"}, nil)

	a := dialRelay(t, srv)
	a.send(t, "join", UserDescriptor{UserID: "42", Name: "Ana"})
	a.expectActiveUsers(t, 1)

	b := dialRelay(t, srv)
	b.send(t, "join", UserDescriptor{UserID: "43", Name: "Ben"})
	a.expectActiveUsers(t, 2)
	b.expectActiveUsers(t, 2)

	if got := presence.Size(); got != 2 {
		t.Fatalf("presence size = %d, want 2", got)
	}

	_ = b.conn.Close()
	a.expectActiveUsers(t, 1)
	if got := presence.Size(); got != 1 {
		t.Fatalf("presence size after close = %d, want 1", got)
	}
}

func TestRelayAIMessageSuccess(t *testing.T) {
	srv, _ := startRelayServer(t, &fakeProvider{reply: "Photosynthesis converts light into energy."}, nil)

	a := dialRelay(t, srv)
	a.send(t, "join", UserDescriptor{UserID: "42", Name: "Ana"})
	a.expectActiveUsers(t, 1)

	a.send(t, "aiMessage", map[string]string{"message": "explain photosynthesis"})
	frame := a.recv(t)
	if frame.Event != "aiResponse" {
		t.Fatalf("event = %q, want aiResponse", frame.Event)
	}
	var resp aiResponsePayload
	if err := json.Unmarshal(frame.Data, &resp); err != nil {
		t.Fatalf("decode aiResponse: %v", err)
	}
	if resp.Type != "ai" || resp.Message == "" || resp.Timestamp.IsZero() {
		t.Fatalf("aiResponse = %+v", resp)
	}
}

// A provider failure must produce exactly one error-typed response to the
// originating connection, leave every other connection untouched, and keep
// the failed connection usable.
func TestRelayAIFailureRecoversLocally(t *testing.T) {
	provider := &fakeProvider{err: errors.New("provider down")}
	srv, _ := startRelayServer(t, provider, nil)

	a := dialRelay(t, srv)
	a.send(t, "join", UserDescriptor{UserID: "42", Name: "Ana"})
	a.expectActiveUsers(t, 1)

	b := dialRelay(t, srv)
	b.send(t, "join", UserDescriptor{UserID: "42", Name: "Ana-tablet"})
	a.expectActiveUsers(t, 2)
	b.expectActiveUsers(t, 2)

	a.send(t, "aiMessage", map[string]string{"message": "hello?"})
	frame := a.recv(t)
	if frame.Event != "aiResponse" {
		t.Fatalf("event = %q, want aiResponse", frame.Event)
	}
	var resp aiResponsePayload
	if err := json.Unmarshal(frame.Data, &resp); err != nil {
		t.Fatalf("decode aiResponse: %v", err)
	}
	if resp.Type != "error" || resp.Message != aiErrorFallback {
		t.Fatalf("aiResponse = %+v", resp)
	}

	// The connection survived: a progress update from the same connection
	// still reaches the roommate.
	a.send(t, "progressUpdate", map[string]any{"userId": "42", "skillArea": "math", "progressPercentage": 50})
	got := b.recv(t)
	if got.Event != "progressUpdated" {
		t.Fatalf("roommate event = %q, want progressUpdated (no stray aiResponse)", got.Event)
	}

	// And the error response went to the sender only.
	b.expectSilence(t, 300*time.Millisecond)
}

func TestRelayProgressNarrowcastExcludesSenderAndOtherRooms(t *testing.T) {
	srv, _ := startRelayServer(t, &fakeProvider{reply: "ok"}, nil)

	a := dialRelay(t, srv)
	a.send(t, "join", UserDescriptor{UserID: "42", Name: "Ana-phone"})
	a.expectActiveUsers(t, 1)

	b := dialRelay(t, srv)
	b.send(t, "join", UserDescriptor{UserID: "42", Name: "Ana-laptop"})
	a.expectActiveUsers(t, 2)
	b.expectActiveUsers(t, 2)

	c := dialRelay(t, srv)
	c.send(t, "join", UserDescriptor{UserID: "7", Name: "Caro"})
	a.expectActiveUsers(t, 3)
	b.expectActiveUsers(t, 3)
	c.expectActiveUsers(t, 3)

	a.send(t, "progressUpdate", map[string]any{"userId": "42", "skillArea": "go", "progressPercentage": 80})

	frame := b.recv(t)
	if frame.Event != "progressUpdated" {
		t.Fatalf("roommate event = %q, want progressUpdated", frame.Event)
	}
	var payload map[string]any
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["skillArea"] != "go" {
		t.Fatalf("payload = %v", payload)
	}

	// Never delivered back to the sender, never to other rooms.
	a.expectSilence(t, 300*time.Millisecond)
	c.expectSilence(t, 300*time.Millisecond)
}

func TestRelaySessionLifecycle(t *testing.T) {
	recorder := &fakeRecorder{}
	srv, _ := startRelayServer(t, &fakeProvider{reply: "ok"}, recorder)

	a := dialRelay(t, srv)
	a.send(t, "join", UserDescriptor{UserID: "42", Name: "Ana"})
	a.expectActiveUsers(t, 1)

	a.send(t, "sessionStart", map[string]any{"subject": "biology"})
	frame := a.recv(t)
	if frame.Event != "sessionStarted" {
		t.Fatalf("event = %q, want sessionStarted", frame.Event)
	}
	var started map[string]any
	if err := json.Unmarshal(frame.Data, &started); err != nil {
		t.Fatalf("decode sessionStarted: %v", err)
	}
	sessionID, _ := started["sessionId"].(string)
	if sessionID == "" || started["startTime"] == nil || started["subject"] != "biology" {
		t.Fatalf("sessionStarted = %v", started)
	}

	a.send(t, "sessionEnd", map[string]any{"sessionId": sessionID, "subject": "biology"})
	frame = a.recv(t)
	if frame.Event != "sessionEnded" {
		t.Fatalf("event = %q, want sessionEnded", frame.Event)
	}
	var ended map[string]any
	if err := json.Unmarshal(frame.Data, &ended); err != nil {
		t.Fatalf("decode sessionEnded: %v", err)
	}
	if ended["endTime"] == nil || ended["sessionId"] != sessionID {
		t.Fatalf("sessionEnded = %v", ended)
	}

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.started) != 1 || recorder.started[0] != sessionID {
		t.Fatalf("recorded starts = %v", recorder.started)
	}
	if len(recorder.ended) != 1 || recorder.ended[0] != sessionID {
		t.Fatalf("recorded ends = %v", recorder.ended)
	}
}
