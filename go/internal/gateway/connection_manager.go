package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/mcdev12/triviabluff/go/internal/client"
	"github.com/mcdev12/triviabluff/go/internal/metrics"
)

// ConnectionManager owns every websocket connection, grouped by session code.
// Each connection drives its own client.Controller.
type ConnectionManager struct {
	// connections not yet in a session are kept under ""
	sessionConnections map[string]map[*Connection]bool
	mu                 sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	app        client.App
	clientOpts []client.Option
	metrics    metrics.Collector
}

// Connection is one browser tab playing as one player.
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	controller *client.Controller
	limiter    *rate.Limiter
	ctx        context.Context
	cancel     context.CancelFunc

	mu     sync.Mutex
	code   string
	closed bool

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for websocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	MaxMessageSize  int64         `yaml:"max_message_size"`
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	// MessagesPerSecond and Burst limit how fast one connection may send actions.
	MessagesPerSecond float64                    `yaml:"messages_per_second"`
	Burst             int                        `yaml:"burst"`
	CheckOrigin       func(r *http.Request) bool `yaml:"-"`
}

// DefaultConnectionConfig returns default websocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:      10 * time.Second,
		ReadTimeout:       60 * time.Second,
		PingInterval:      30 * time.Second,
		MaxMessageSize:    4096,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		MessagesPerSecond: 10,
		Burst:             20,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

type ManagerOption func(*ConnectionManager)

// WithClientOptions passes options to every controller the manager creates.
func WithClientOptions(opts ...client.Option) ManagerOption {
	return func(cm *ConnectionManager) { cm.clientOpts = append(cm.clientOpts, opts...) }
}

func WithMetrics(m metrics.Collector) ManagerOption {
	return func(cm *ConnectionManager) { cm.metrics = m }
}

// NewConnectionManager creates a new websocket connection manager.
func NewConnectionManager(app client.App, config ConnectionConfig, opts ...ManagerOption) *ConnectionManager {
	if config.CheckOrigin == nil {
		config.CheckOrigin = DefaultConnectionConfig().CheckOrigin
	}
	cm := &ConnectionManager{
		sessionConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:  config,
		app:     app,
		metrics: metrics.NoOp{},
	}
	for _, opt := range opts {
		opt(cm)
	}
	return cm
}

// UpgradeConnection upgrades an HTTP connection to a websocket and starts its pumps.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		limiter:     rate.NewLimiter(rate.Limit(cm.config.MessagesPerSecond), cm.config.Burst),
		ctx:         ctx,
		cancel:      cancel,
		ConnectedAt: now,
		LastPing:    now,
	}
	opts := append([]client.Option{
		client.WithOnView(func(v client.View) { connection.sendMessage(viewMessage(v)) }),
		client.WithOnError(func(err error) { connection.sendMessage(errorMessage("", errorKind(err), err)) }),
	}, cm.clientOpts...)
	connection.controller = client.New(cm.app, opts...)

	cm.registerConnection(connection, "")

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("websocket connection established")
	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection, code string) {
	cm.mu.Lock()
	if cm.sessionConnections[code] == nil {
		cm.sessionConnections[code] = make(map[*Connection]bool)
	}
	cm.sessionConnections[code][conn] = true
	total := cm.totalLocked()
	cm.mu.Unlock()

	cm.metrics.SetConnections(total)
	log.Debug().
		Str("connection_id", conn.ID).
		Str("session_code", code).
		Int("total_connections", total).
		Msg("connection registered")
}

// moveConnection files conn under its session once it has created or joined one.
func (cm *ConnectionManager) moveConnection(conn *Connection, code string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if pending, ok := cm.sessionConnections[""]; ok {
		delete(pending, conn)
		if len(pending) == 0 {
			delete(cm.sessionConnections, "")
		}
	}
	if cm.sessionConnections[code] == nil {
		cm.sessionConnections[code] = make(map[*Connection]bool)
	}
	cm.sessionConnections[code][conn] = true

	conn.mu.Lock()
	conn.code = code
	conn.mu.Unlock()
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	code := conn.sessionCode()

	cm.mu.Lock()
	connections, exists := cm.sessionConnections[code]
	if !exists || !connections[conn] {
		cm.mu.Unlock()
		return
	}
	delete(connections, conn)
	if len(connections) == 0 {
		delete(cm.sessionConnections, code)
	}
	total := cm.totalLocked()
	cm.mu.Unlock()

	conn.shutdown()
	cm.metrics.SetConnections(total)

	log.Info().
		Str("connection_id", conn.ID).
		Str("session_code", code).
		Msg("connection unregistered")
}

func (cm *ConnectionManager) totalLocked() int {
	total := 0
	for _, connections := range cm.sessionConnections {
		total += len(connections)
	}
	return total
}

// ConnectionStats summarizes live connections.
type ConnectionStats struct {
	TotalConnections   int            `json:"total_connections"`
	ActiveSessions     int            `json:"active_sessions"`
	PendingConnections int            `json:"pending_connections"`
	SessionConnections map[string]int `json:"session_connections"`
}

// GetConnectionStats returns statistics about active connections.
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{SessionConnections: make(map[string]int)}
	for code, connections := range cm.sessionConnections {
		count := len(connections)
		stats.TotalConnections += count
		if code == "" {
			stats.PendingConnections = count
			continue
		}
		stats.ActiveSessions++
		stats.SessionConnections[code] = count
	}
	return stats
}

// CloseAll drops every connection.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, connections := range cm.sessionConnections {
		for conn := range connections {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}
}

func (c *Connection) sessionCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
}

// sendMessage queues msg for the write pump. Messages to a closed or backed-up
// connection are dropped.
func (c *Connection) sendMessage(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to marshal message")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
		log.Warn().Str("connection_id", c.ID).Str("type", msg.Type).Msg("connection send buffer full, dropping message")
	}
}

func (c *Connection) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.Send)
	c.mu.Unlock()

	c.cancel()
	if err := c.controller.Close(); err != nil {
		log.Warn().Err(err).Str("connection_id", c.ID).Msg("failed to close controller")
	}
}

// writePump handles sending messages to the websocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the websocket connection.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.mu.Lock()
		c.LastPing = time.Now()
		c.mu.Unlock()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected websocket close error")
			}
			break
		}

		if !c.limiter.Allow() {
			c.sendMessage(errorMessage("", KindRateLimited, fmt.Errorf("too many messages")))
		} else {
			c.handleClientMessage(message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
