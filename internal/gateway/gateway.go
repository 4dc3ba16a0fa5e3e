// Package gateway maintains the long-lived WebSocket connections used
// for real-time alert push. Connections authenticate with an API key
// inside a 10-second window; the agentId → socket registry is the only
// process-wide mutable state besides the store.
package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/cylonmolting/agora-oracle/internal/modules/agents"
)

const (
	authTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
)

// AgentDirectory validates API keys against the agents table.
type AgentDirectory interface {
	GetByAPIKey(apiKey string) (*agents.Agent, error)
}

// client is one authenticated connection. Writes are serialized by mu.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(ctx context.Context, v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c.conn, v)
}

// Gateway accepts, authenticates and tracks push connections.
type Gateway struct {
	directory AgentDirectory
	log       zerolog.Logger

	mu      sync.Mutex
	clients map[int64]*client
}

// New creates a new websocket gateway
func New(directory AgentDirectory, log zerolog.Logger) *Gateway {
	return &Gateway{
		directory: directory,
		log:       log.With().Str("component", "ws_gateway").Logger(),
		clients:   make(map[int64]*client),
	}
}

// inbound is any client → server message.
type inbound struct {
	Type    string `json:"type"`
	AgentID int64  `json:"agentId,omitempty"`
	APIKey  string `json:"apiKey,omitempty"`
}

// HandleConnection upgrades the request and runs the per-connection
// event loop until the peer disconnects.
// GET /v1/ws
func (g *Gateway) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		g.log.Warn().Err(err).Msg("WebSocket accept failed")
		return
	}

	ctx := r.Context()

	agentID, ok := g.authenticate(ctx, conn)
	if !ok {
		return
	}

	c := &client{conn: conn}
	g.register(agentID, c)
	defer g.unregister(agentID, c)

	g.log.Info().Int64("agent_id", agentID).Msg("WebSocket connection authenticated")

	_ = c.write(ctx, map[string]interface{}{
		"type":    "connected",
		"agentId": agentID,
		"message": "subscribed to price alerts",
	})

	g.readLoop(ctx, agentID, c)
}

// authenticate enforces the auth handshake inside the timeout window.
func (g *Gateway) authenticate(ctx context.Context, conn *websocket.Conn) (int64, bool) {
	authCtx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	var msg inbound
	if err := wsjson.Read(authCtx, conn, &msg); err != nil {
		g.log.Debug().Err(err).Msg("WebSocket closed before authentication")
		conn.Close(websocket.StatusPolicyViolation, "authentication timeout")
		return 0, false
	}

	if msg.Type != "auth" || msg.APIKey == "" || msg.AgentID == 0 {
		g.rejectAuth(ctx, conn, "auth message with agentId and apiKey required")
		return 0, false
	}

	agent, err := g.directory.GetByAPIKey(msg.APIKey)
	if err != nil {
		g.log.Error().Err(err).Msg("API key lookup failed")
		g.rejectAuth(ctx, conn, "authentication unavailable")
		return 0, false
	}
	if agent == nil || agent.ID != msg.AgentID {
		g.rejectAuth(ctx, conn, "invalid agent credentials")
		return 0, false
	}

	return agent.ID, true
}

func (g *Gateway) rejectAuth(ctx context.Context, conn *websocket.Conn, message string) {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = wsjson.Write(writeCtx, conn, map[string]interface{}{
		"type":    "error",
		"message": message,
	})
	conn.Close(websocket.StatusPolicyViolation, "authentication failed")
}

// readLoop answers pings and logs unknown message types until the
// connection drops.
func (g *Gateway) readLoop(ctx context.Context, agentID int64, c *client) {
	for {
		var msg inbound
		if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
			g.log.Debug().Err(err).Int64("agent_id", agentID).Msg("WebSocket connection closed")
			return
		}

		switch msg.Type {
		case "ping":
			_ = c.write(ctx, map[string]interface{}{
				"type":      "pong",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
		default:
			g.log.Debug().Str("type", msg.Type).Int64("agent_id", agentID).Msg("Unknown WebSocket message type")
		}
	}
}

// register stores the connection, replacing any prior registration for
// the same agent.
func (g *Gateway) register(agentID int64, c *client) {
	g.mu.Lock()
	prior := g.clients[agentID]
	g.clients[agentID] = c
	g.mu.Unlock()

	if prior != nil {
		prior.conn.Close(websocket.StatusPolicyViolation, "replaced by newer connection")
	}
}

// unregister clears the map entry unless a newer connection already took
// it over.
func (g *Gateway) unregister(agentID int64, c *client) {
	g.mu.Lock()
	if g.clients[agentID] == c {
		delete(g.clients, agentID)
	}
	g.mu.Unlock()
}

// BroadcastAlert pushes a payload to an agent's live connection. Returns
// true iff an open registered socket existed and the send succeeded; a
// dead entry is removed.
func (g *Gateway) BroadcastAlert(agentID int64, payload interface{}) bool {
	g.mu.Lock()
	c := g.clients[agentID]
	g.mu.Unlock()

	if c == nil {
		return false
	}

	if err := c.write(context.Background(), payload); err != nil {
		g.log.Warn().Err(err).Int64("agent_id", agentID).Msg("WebSocket push failed, dropping connection")
		c.conn.Close(websocket.StatusInternalError, "write failed")
		g.unregister(agentID, c)
		return false
	}

	return true
}

// ConnectedAgents returns the number of live registrations.
func (g *Gateway) ConnectedAgents() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

// Shutdown closes every connection with a going-away code.
func (g *Gateway) Shutdown() {
	g.mu.Lock()
	clients := make([]*client, 0, len(g.clients))
	for _, c := range g.clients {
		clients = append(clients, c)
	}
	g.clients = make(map[int64]*client)
	g.mu.Unlock()

	for _, c := range clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutdown")
	}

	g.log.Info().Int("connections", len(clients)).Msg("WebSocket gateway shut down")
}
