package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/amx/agent-exchange/internal/metrics"
)

const (
	sendBuffer   = 256
	readDeadline = 60 * time.Second
	pingInterval = 30 * time.Second
)

// session is one live WebSocket connection. It implements Conn for the
// dispatcher: the identity is unset until the agent registers.
type session struct {
	hub    *Hub
	conn   *websocket.Conn
	origin string
	send   chan Envelope

	mu    sync.Mutex
	ident *Identity
}

func (s *session) Origin() string { return s.origin }

// Send queues an envelope. A session that cannot keep up has its frames
// dropped rather than blocking settlement.
func (s *session) Send(env Envelope) {
	select {
	case s.send <- env:
	default:
	}
}

func (s *session) Identity() (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ident == nil {
		return Identity{}, false
	}
	return *s.ident, true
}

func (s *session) Bind(id Identity) {
	s.mu.Lock()
	s.ident = &id
	s.mu.Unlock()
	s.hub.bind(id.PublicID, s)
}

// Hub owns the live agent sessions: it upgrades connections, runs their
// read and write pumps, and delivers envelopes by agent id. A reconnecting
// agent replaces its previous session.
type Hub struct {
	dispatcher *Dispatcher

	mu       sync.RWMutex
	sessions map[*session]bool
	byAgent  map[int64]*session
}

// NewHub creates a hub feeding the given dispatcher.
func NewHub(d *Dispatcher) *Hub {
	return &Hub{
		dispatcher: d,
		sessions:   make(map[*session]bool),
		byAgent:    make(map[int64]*session),
	}
}

// SendTo delivers an envelope to the agent's live session.
func (h *Hub) SendTo(agentID int64, env Envelope) bool {
	h.mu.RLock()
	s, ok := h.byAgent[agentID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	s.Send(env)
	return true
}

// Broadcast delivers an envelope to every live session.
func (h *Hub) Broadcast(env Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.sessions {
		s.Send(env)
	}
}

// bind points the agent id at its new session. The replaced session stays
// sendable until its pumps observe the closed connection and drop it; its
// queue is simply never drained to a live socket again.
func (h *Hub) bind(agentID int64, s *session) {
	h.mu.Lock()
	prev, replaced := h.byAgent[agentID]
	if replaced && prev != s {
		if _, ok := h.sessions[prev]; ok {
			delete(h.sessions, prev)
			metrics.ConnectedAgents.Dec()
		}
	}
	h.byAgent[agentID] = s
	h.mu.Unlock()

	if replaced && prev != s {
		prev.conn.Close()
	}
}

func (h *Hub) drop(s *session) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; ok {
		delete(h.sessions, s)
		metrics.ConnectedAgents.Dec()
	}
	if id, ok := s.Identity(); ok && h.byAgent[id.PublicID] == s {
		delete(h.byAgent, id.PublicID)
	}
	h.mu.Unlock()
	s.conn.Close()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// HandleWS handles WebSocket upgrade requests at GET /ws.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.dispatcher.log.Error("ws upgrade failed", "error", err)
		return
	}

	origin := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		origin = host
	}

	s := &session{
		hub:    h,
		conn:   conn,
		origin: origin,
		send:   make(chan Envelope, sendBuffer),
	}
	h.mu.Lock()
	h.sessions[s] = true
	h.mu.Unlock()
	metrics.ConnectedAgents.Inc()

	go h.writePump(s)
	go h.readPump(r.Context(), s)
}

// readPump feeds inbound frames to the dispatcher until the connection
// drops.
func (h *Hub) readPump(ctx context.Context, s *session) {
	defer h.drop(s)
	s.conn.SetReadDeadline(time.Now().Add(readDeadline))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		h.dispatcher.Handle(ctx, s, raw)
	}
}

// writePump drains the session's send queue and pings through proxies.
func (h *Hub) writePump(s *session) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case env := <-s.send:
			if err := s.conn.WriteJSON(env); err != nil {
				h.drop(s)
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(s)
				return
			}
		}
	}
}
