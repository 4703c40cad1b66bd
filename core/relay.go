package core

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

// AIProvider is the external generative-AI dependency: opaque, potentially
// slow, potentially failing.
type AIProvider interface {
	Respond(ctx context.Context, prompt string) (string, error)
}

// SessionRecorder persists study sessions started/ended over the relay.
type SessionRecorder interface {
	Start(ctx context.Context, sessionID, userID string, startedAt time.Time) error
	End(ctx context.Context, sessionID string, endedAt time.Time) error
}

const aiErrorFallback = "Sorry, I encountered an error processing your request."

type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type aiRequestPayload struct {
	Message string `json:"message"`
}

type aiResponsePayload struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"` // "ai" or "error"
}

// wsPeer serializes frame writes to one connection.
type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(encoder *json.Encoder) *wsPeer {
	return &wsPeer{encoder: encoder}
}

func (p *wsPeer) writeFrame(frame outFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// Relay routes websocket events between connections: broadcasts the active
// user count, narrowcasts progress updates within a user's room, and proxies
// AI messages to the provider, answering the originating connection only.
//
// Each connection is served by a single goroutine reading frames in arrival
// order, so per-connection ordering holds without further coordination.
type Relay struct {
	presence *PresenceRegistry
	provider AIProvider
	sessions SessionRecorder // optional

	mu    sync.Mutex
	peers map[string]*wsPeer            // conn id -> peer
	rooms map[string]map[string]*wsPeer // room -> conn id -> peer
	room  map[string]string             // conn id -> current room
}

func NewRelay(presence *PresenceRegistry, provider AIProvider, sessions SessionRecorder) *Relay {
	return &Relay{
		presence: presence,
		provider: provider,
		sessions: sessions,
		peers:    make(map[string]*wsPeer),
		rooms:    make(map[string]map[string]*wsPeer),
		room:     make(map[string]string),
	}
}

// Handler returns the websocket endpoint handler.
func (rl *Relay) Handler() http.Handler {
	return websocket.Handler(rl.handleConn)
}

func (rl *Relay) handleConn(conn *websocket.Conn) {
	connID := NewConnectionID()
	peer := newWSPeer(json.NewEncoder(conn))

	rl.mu.Lock()
	rl.peers[connID] = peer
	rl.mu.Unlock()

	defer rl.disconnect(connID)

	decoder := json.NewDecoder(conn)
	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			return
		}
		rl.dispatch(connID, peer, frame)
	}
}

func (rl *Relay) dispatch(connID string, peer *wsPeer, frame wsFrame) {
	switch frame.Event {
	case "join":
		rl.handleJoin(connID, peer, frame.Data)
	case "aiMessage":
		rl.handleAIMessage(connID, peer, frame.Data)
	case "progressUpdate":
		rl.handleProgressUpdate(connID, frame.Data)
	case "sessionStart":
		rl.handleSessionStart(connID, peer, frame.Data)
	case "sessionEnd":
		rl.handleSessionEnd(peer, frame.Data)
	default:
		log.Printf("relay: unknown event %q from %s", frame.Event, connID)
	}
}

// handleJoin records presence, enrolls the connection in its user room and
// broadcasts the updated active-user count. Re-join replaces the descriptor.
func (rl *Relay) handleJoin(connID string, peer *wsPeer, data json.RawMessage) {
	var desc UserDescriptor
	if err := json.Unmarshal(data, &desc); err != nil || desc.UserID == "" {
		log.Printf("relay: invalid join payload from %s", connID)
		return
	}

	count := rl.presence.Join(connID, desc)
	rl.enroll(connID, peer, userRoom(desc.UserID))
	log.Printf("relay: user %s joined (%s)", desc.Name, connID)

	rl.broadcast(outFrame{Event: "activeUsers", Data: count})
}

// handleAIMessage forwards the prompt to the provider and answers the
// originating connection only. A provider failure becomes an error-typed
// response; the connection is never torn down because of it. The provider
// call carries no deadline: a slow provider stalls only this response.
func (rl *Relay) handleAIMessage(connID string, peer *wsPeer, data json.RawMessage) {
	var req aiRequestPayload
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("relay: invalid aiMessage payload from %s", connID)
		return
	}

	reply, err := rl.provider.Respond(context.Background(), req.Message)
	resp := aiResponsePayload{Message: reply, Timestamp: time.Now().UTC(), Type: "ai"}
	if err != nil {
		log.Printf("relay: ai provider error for %s: %v", connID, err)
		resp.Message = aiErrorFallback
		resp.Type = "error"
	}

	if err := peer.writeFrame(outFrame{Event: "aiResponse", Data: resp}); err != nil {
		log.Printf("relay: write aiResponse to %s: %v", connID, err)
	}
}

// handleProgressUpdate narrowcasts the payload to the other connections in
// the target user's room, never back to the sender.
func (rl *Relay) handleProgressUpdate(connID string, data json.RawMessage) {
	var target struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(data, &target); err != nil || target.UserID == "" {
		log.Printf("relay: invalid progressUpdate payload from %s", connID)
		return
	}

	rl.narrowcast(userRoom(target.UserID), connID, outFrame{Event: "progressUpdated", Data: data})
}

func (rl *Relay) handleSessionStart(connID string, peer *wsPeer, data json.RawMessage) {
	sessionID := NewSessionID()
	startTime := time.Now().UTC()

	if rl.sessions != nil {
		userID := ""
		if desc, ok := rl.presence.Get(connID); ok {
			userID = desc.UserID
		}
		if err := rl.sessions.Start(context.Background(), sessionID, userID, startTime); err != nil {
			log.Printf("relay: record session start: %v", err)
		}
	}

	payload := mergePayload(data, map[string]any{
		"sessionId": sessionID,
		"startTime": startTime,
	})
	if err := peer.writeFrame(outFrame{Event: "sessionStarted", Data: payload}); err != nil {
		log.Printf("relay: write sessionStarted: %v", err)
	}
}

func (rl *Relay) handleSessionEnd(peer *wsPeer, data json.RawMessage) {
	endTime := time.Now().UTC()

	if rl.sessions != nil {
		var ref struct {
			SessionID string `json:"sessionId"`
		}
		if json.Unmarshal(data, &ref) == nil && ref.SessionID != "" {
			if err := rl.sessions.End(context.Background(), ref.SessionID, endTime); err != nil {
				log.Printf("relay: record session end: %v", err)
			}
		}
	}

	payload := mergePayload(data, map[string]any{"endTime": endTime})
	if err := peer.writeFrame(outFrame{Event: "sessionEnded", Data: payload}); err != nil {
		log.Printf("relay: write sessionEnded: %v", err)
	}
}

// disconnect removes a closed connection from peers, its room and the
// presence registry, then broadcasts the updated count.
func (rl *Relay) disconnect(connID string) {
	rl.mu.Lock()
	delete(rl.peers, connID)
	if room, ok := rl.room[connID]; ok {
		delete(rl.room, connID)
		if members, ok := rl.rooms[room]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(rl.rooms, room)
			}
		}
	}
	rl.mu.Unlock()

	count := rl.presence.Drop(connID)
	log.Printf("relay: connection %s closed", connID)
	rl.broadcast(outFrame{Event: "activeUsers", Data: count})
}

func userRoom(userID string) string {
	return "user_" + userID
}

// enroll moves a connection into room, leaving any previous room first.
func (rl *Relay) enroll(connID string, peer *wsPeer, room string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if prev, ok := rl.room[connID]; ok && prev != room {
		if members, ok := rl.rooms[prev]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(rl.rooms, prev)
			}
		}
	}
	members, ok := rl.rooms[room]
	if !ok {
		members = make(map[string]*wsPeer)
		rl.rooms[room] = members
	}
	members[connID] = peer
	rl.room[connID] = room
}

// broadcast delivers a frame to every live connection.
func (rl *Relay) broadcast(frame outFrame) {
	rl.mu.Lock()
	peers := make([]*wsPeer, 0, len(rl.peers))
	for _, p := range rl.peers {
		peers = append(peers, p)
	}
	rl.mu.Unlock()

	for _, p := range peers {
		if err := p.writeFrame(frame); err != nil {
			log.Printf("relay: broadcast write: %v", err)
		}
	}
}

// narrowcast delivers a frame to every room member except the sender.
func (rl *Relay) narrowcast(room, senderID string, frame outFrame) {
	rl.mu.Lock()
	peers := make([]*wsPeer, 0)
	for id, p := range rl.rooms[room] {
		if id != senderID {
			peers = append(peers, p)
		}
	}
	rl.mu.Unlock()

	for _, p := range peers {
		if err := p.writeFrame(frame); err != nil {
			log.Printf("relay: narrowcast write: %v", err)
		}
	}
}

// mergePayload overlays extra keys on a raw JSON object payload.
func mergePayload(data json.RawMessage, extra map[string]any) map[string]any {
	merged := map[string]any{}
	if len(data) > 0 {
		_ = json.Unmarshal(data, &merged)
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
