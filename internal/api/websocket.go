package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"microcraft/internal/game"
	"microcraft/internal/logger"
	"microcraft/internal/metrics"
)

const (
	// MaxWSConnectionsTotal is the maximum number of WebSocket connections allowed
	MaxWSConnectionsTotal = 500

	// MaxWSConnectionsPerIP is the maximum WebSocket connections per IP
	MaxWSConnectionsPerIP = 10

	// MaxWSConnectionsPerFaction caps viewers and controllers of one faction
	MaxWSConnectionsPerFaction = 8

	// maxInboundMessage caps one inbound command frame
	maxInboundMessage = 4096

	writeWait = 2 * time.Second
)

// envelope is the wire shape of every pushed message
type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// wsClient tracks a WebSocket connection with its source IP and faction
type wsClient struct {
	conn    *websocket.Conn
	ip      string
	faction game.Faction
}

// outbound is one queued write. A nil target addresses every client of
// the faction.
type outbound struct {
	target  *websocket.Conn
	faction game.Faction
	data    []byte
}

// WebSocketHub manages all WebSocket connections with DoS protection.
// Only Run writes to connections.
type WebSocketHub struct {
	clients    map[*websocket.Conn]*wsClient
	outbound   chan outbound
	register   chan *wsClient
	unregister chan *websocket.Conn
	mu         sync.RWMutex

	engine   EngineInterface
	seats    *SeatManager
	upgrader websocket.Upgrader

	// Connection slots per IP and faction, command tokens per faction
	conns    *ConnectionLimiter
	commands *RateLimiter

	stopChan chan struct{}
	stopOnce sync.Once
	log      *logrus.Entry
}

// NewWebSocketHub creates a new hub with connection limiting. seats may be
// nil to leave every faction open; limiter may be nil to leave inbound
// commands unthrottled.
func NewWebSocketHub(engine EngineInterface, seats *SeatManager, origins *OriginPolicy, limiter *RateLimiter) *WebSocketHub {
	h := &WebSocketHub{
		clients:    make(map[*websocket.Conn]*wsClient),
		outbound:   make(chan outbound, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *websocket.Conn),
		engine:     engine,
		seats:      seats,
		conns:      NewConnectionLimiter(MaxWSConnectionsPerIP, MaxWSConnectionsPerFaction),
		commands:   limiter,
		stopChan:   make(chan struct{}),
		log:        logger.Component("websocket"),
	}
	if origins == nil {
		origins = NewOriginPolicy(nil)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origins.IsAllowed(origin) {
				return true
			}

			// Log rejected origin for security monitoring
			h.log.WithField("origin", origin).Warn("⚠️ WebSocket connection rejected")
			metrics.RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// Run starts the hub. It returns after Stop.
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			count := len(h.clients)
			h.mu.Unlock()

			h.log.WithFields(logrus.Fields{"ip": client.ip, "faction": client.faction, "total": count}).
				Info("📱 Client connected")
			metrics.UpdateWSConnections(count)

		case conn := <-h.unregister:
			if h.drop(conn) {
				h.log.WithField("remaining", h.ClientCount()).Info("📱 Client disconnected")
			}

		case msg := <-h.outbound:
			var failed []*websocket.Conn
			h.mu.RLock()
			for conn, c := range h.clients {
				if msg.target != nil && conn != msg.target {
					continue
				}
				if msg.target == nil && c.faction != msg.faction {
					continue
				}
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
					failed = append(failed, conn)
					continue
				}
				metrics.RecordWSMessage("out")
			}
			h.mu.RUnlock()
			for _, conn := range failed {
				h.drop(conn)
			}

		case <-h.stopChan:
			h.mu.Lock()
			for conn, c := range h.clients {
				h.conns.Release(c.ip, c.faction)
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()
			metrics.UpdateWSConnections(0)
			return
		}
	}
}

// Stop closes every connection and ends Run and the broadcast loop.
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopChan)
	})
}

// drop removes a client and frees its IP slot
func (h *WebSocketHub) drop(conn *websocket.Conn) bool {
	h.mu.Lock()
	client, ok := h.clients[conn]
	if ok {
		h.conns.Release(client.ip, client.faction)
		delete(h.clients, conn)
		conn.Close()
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		metrics.UpdateWSConnections(count)
	}
	return ok
}

// SendFaction queues a message for every client of faction f
func (h *WebSocketHub) SendFaction(f game.Faction, event string, data interface{}) {
	h.enqueue(outbound{faction: f}, event, data)
}

func (h *WebSocketHub) sendTo(conn *websocket.Conn, event string, data interface{}) {
	h.enqueue(outbound{target: conn}, event, data)
}

func (h *WebSocketHub) enqueue(msg outbound, event string, data interface{}) {
	jsonBytes, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		h.log.WithError(err).WithField("event", event).Error("❌ Failed to encode message")
		return
	}
	msg.data = jsonBytes

	select {
	case h.outbound <- msg:
	default:
		// Channel full, skip (backpressure)
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetStats returns the client count and connection rejections
func (h *WebSocketHub) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"clients":  h.ClientCount(),
		"rejected": h.conns.GetStats(),
	}
}

// factions returns the distinct factions with at least one client
func (h *WebSocketHub) factions() []game.Faction {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[game.Faction]bool)
	var out []game.Faction
	for _, c := range h.clients {
		if !seen[c.faction] {
			seen[c.faction] = true
			out = append(out, c.faction)
		}
	}
	return out
}

// StartBroadcastLoop pushes each faction its own view of every new snapshot
// and forwards the events that concern it.
func (h *WebSocketHub) StartBroadcastLoop(interval time.Duration) {
	events, cancel := h.engine.Subscribe(64)
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		defer cancel()

		var lastSeq uint64
		for {
			select {
			case <-h.stopChan:
				return

			case batch, ok := <-events:
				if !ok {
					return
				}
				h.pushEvents(batch)

			case <-ticker.C:
				if h.ClientCount() == 0 {
					continue
				}
				snap := h.engine.Snapshot()
				if snap == nil || snap.Sequence == lastSeq {
					continue
				}
				lastSeq = snap.Sequence
				for _, f := range h.factions() {
					h.SendFaction(f, "snapshot", snap.ForFaction(f))
				}
			}
		}
	}()
}

func (h *WebSocketHub) pushEvents(batch []game.Event) {
	if h.ClientCount() == 0 {
		return
	}
	snap := h.engine.Snapshot()
	for _, f := range h.factions() {
		var evs []game.Event
		for _, ev := range batch {
			if (snap == nil && ev.Concerns(f)) || (snap != nil && snap.Reveals(f, ev)) {
				evs = append(evs, ev)
			}
		}
		if len(evs) > 0 {
			h.SendFaction(f, "events", evs)
		}
	}
}

// HandleWebSocket handles incoming WebSocket connections with DoS protection
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	f, err := parseFaction(r.URL.Query().Get("faction"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if code, err := authorizeSeat(h.seats, r, f); err != nil {
		http.Error(w, err.Error(), code)
		return
	}
	snap := h.engine.Snapshot()
	if snap != nil {
		if _, ok := snap.Resources[f]; !ok {
			http.Error(w, fmt.Sprintf("unknown faction %d", f), http.StatusBadRequest)
			return
		}
	}

	// Get client IP for rate limiting
	ip := GetClientIP(r)

	// Check total connection limit
	if total := h.ClientCount(); total >= MaxWSConnectionsTotal {
		h.log.WithField("total", total).Warn("⚠️ WebSocket connection rejected: total limit reached")
		metrics.RecordConnectionRejected("ws_total_limit")
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	// Check per-IP and per-faction connection limits
	if err := h.conns.Acquire(ip, f); err != nil {
		reason := "ws_ip_limit"
		if errors.Is(err, ErrFactionConnLimit) {
			reason = "ws_faction_limit"
		}
		h.log.WithFields(logrus.Fields{"ip": ip, "faction": f}).WithError(err).Warn("⚠️ WebSocket connection rejected")
		metrics.RecordConnectionRejected(reason)
		http.Error(w, err.Error(), http.StatusTooManyRequests)
		return
	}

	// Upgrade to WebSocket
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("WebSocket upgrade failed")
		h.conns.Release(ip, f) // Release the slot we reserved
		return
	}
	conn.SetReadLimit(maxInboundMessage)

	client := &wsClient{conn: conn, ip: ip, faction: f}
	select {
	case h.register <- client:
	case <-h.stopChan:
		h.conns.Release(ip, f)
		conn.Close()
		return
	}
	if snap != nil {
		h.sendTo(conn, "snapshot", snap.ForFaction(f))
	}

	go h.readLoop(client)
}

// readLoop decodes inbound frames as commands for the client's faction
func (h *WebSocketHub) readLoop(client *wsClient) {
	defer func() {
		select {
		case h.unregister <- client.conn:
		case <-h.stopChan:
		}
	}()

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		metrics.RecordWSMessage("in")

		var cmd game.Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			h.sendTo(client.conn, "error", map[string]string{"error": "invalid command: " + err.Error()})
			continue
		}
		cmd.Faction = client.faction

		if h.commands != nil && !h.commands.AllowCommand(client.faction) {
			h.sendTo(client.conn, "error", map[string]string{"error": ErrCommandRateLimited.Error()})
			continue
		}
		if err := h.engine.Submit(cmd); err != nil {
			h.sendTo(client.conn, "error", map[string]string{"error": err.Error()})
			continue
		}
		h.sendTo(client.conn, "queued", map[string]interface{}{"type": cmd.Type})
	}
}
