package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/dana-ai/dana/pkg/metrics"
)

// ConnectionManager bridges bus subscriptions onto WebSocket connections.
// Each Go process has one instance; the API layer upgrades connections and
// delegates their lifecycle here.
type ConnectionManager struct {
	bus *Bus

	// Active connections: connection_id → *Connection
	connections map[string]*Connection
	mu          sync.RWMutex

	// Write timeout for WebSocket sends
	writeTimeout time.Duration
	metrics      *metrics.Metrics
}

// Connection represents a single WebSocket subscriber of one session.
type Connection struct {
	ID        string
	SessionID string
	Conn      *websocket.Conn
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewConnectionManager creates a connection manager on the given bus.
func NewConnectionManager(bus *Bus, writeTimeout time.Duration, m *metrics.Metrics) *ConnectionManager {
	return &ConnectionManager{
		bus:          bus,
		connections:  make(map[string]*Connection),
		writeTimeout: writeTimeout,
		metrics:      m,
	}
}

// HandleSession manages the lifecycle of one WebSocket subscription:
// connected ack, full backlog replay, live events, terminal close. Called
// by the WebSocket HTTP handler after upgrade; blocks until the stream or
// the connection closes.
func (m *ConnectionManager) HandleSession(parentCtx context.Context, conn *websocket.Conn, sessionID string) error {
	sub, err := m.bus.Subscribe(sessionID)
	if err != nil {
		_ = conn.Close(websocket.StatusPolicyViolation, "unknown session")
		return err
	}
	defer sub.Close()

	connID := uuid.New().String()
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	c := &Connection{
		ID:        connID,
		SessionID: sessionID,
		Conn:      conn,
		ctx:       ctx,
		cancel:    cancel,
	}

	m.registerConnection(c)
	defer m.unregisterConnection(c)

	m.sendJSON(c, ConnectedPayload{
		Envelope: Envelope{
			Type:      EventTypeConnected,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			SessionID: sessionID,
		},
		ConnectionID: connID,
	})

	// Read loop on its own goroutine: handles ping/unsubscribe and detects
	// a client-side close while the write loop is blocked on the stream.
	go m.readLoop(c)

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-sub.Events():
			if !ok {
				// Stream reached its terminal event (or was reclaimed).
				_ = conn.Close(websocket.StatusNormalClosure, "stream closed")
				return nil
			}
			if err := m.sendRaw(c, data); err != nil {
				slog.Warn("Failed to send to WebSocket client",
					"connection_id", c.ID, "session_id", sessionID, "error", err)
				return nil
			}
		}
	}
}

// readLoop processes client → server messages until the connection closes.
func (m *ConnectionManager) readLoop(c *Connection) {
	defer c.cancel()
	for {
		_, data, err := c.Conn.Read(c.ctx)
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid WebSocket message", "connection_id", c.ID, "error", err)
			continue
		}

		switch msg.Action {
		case "ping":
			m.sendJSON(c, map[string]string{"type": "pong"})
		case "unsubscribe":
			return
		}
	}
}

// ActiveConnections returns the count of active WebSocket connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// registerConnection adds a connection to the tracking map.
func (m *ConnectionManager) registerConnection(c *Connection) {
	m.mu.Lock()
	m.connections[c.ID] = c
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.WSConnections.Inc()
	}
}

// unregisterConnection removes a connection and closes its socket.
func (m *ConnectionManager) unregisterConnection(c *Connection) {
	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.WSConnections.Dec()
	}

	c.cancel()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")
}

// sendJSON marshals and sends a JSON message to a single connection.
func (m *ConnectionManager) sendJSON(c *Connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal WebSocket message", "connection_id", c.ID, "error", err)
		return
	}
	if err := m.sendRaw(c, data); err != nil {
		slog.Warn("Failed to send WebSocket message", "connection_id", c.ID, "error", err)
	}
}

// sendRaw sends raw bytes to a single connection with a write timeout.
func (m *ConnectionManager) sendRaw(c *Connection, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.Conn.Write(writeCtx, websocket.MessageText, data)
}
