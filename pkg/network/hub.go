package network

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opd-ai/go-rts/pkg/engine"
	"github.com/opd-ai/go-rts/pkg/event"
	"github.com/opd-ai/go-rts/pkg/logging"
	"github.com/opd-ai/go-rts/pkg/metrics"
	"github.com/opd-ai/go-rts/pkg/resource"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 512
)

// ErrHubClosed is returned for connections attempted after Close
var ErrHubClosed = errors.New("hub closed")

// MessageState carries a full world snapshot
const MessageState = "state"

// Message is the envelope written to observers
type Message struct {
	Type  string            `json:"type"`
	Tick  uint64            `json:"tick"`
	State *engine.GameState `json:"state,omitempty"`
}

// HubConfig bounds the observer fan-out
type HubConfig struct {
	MaxClients     int
	MaxPerIP       int
	TicksPerState  int
	WriteTimeout   time.Duration
	SendBuffer     int
	AllowedOrigins []string
}

type observer struct {
	conn *websocket.Conn
	ip   string
	send chan []byte
	done chan struct{}
	once sync.Once
}

// Hub streams snapshots to websocket observers. It publishes one snapshot
// every TicksPerState completed ticks. Each observer has a bounded send
// queue; a slow observer misses snapshots instead of stalling the tick.
type Hub struct {
	game     *engine.Game
	tasks    *resource.ResourceManager
	config   HubConfig
	logger   *logging.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
	perIP    *ConnLimiter
	sub      *event.Subscription

	mu      sync.RWMutex
	clients map[*observer]struct{}
	closed  bool
	dropped atomic.Uint64
}

// NewHub creates a hub fed by game's TickCompleted events. Writer and reader
// goroutines are started through tasks so shutdown can wait for them.
func NewHub(game *engine.Game, tasks *resource.ResourceManager, cfg HubConfig, logger *logging.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.TicksPerState < 1 {
		cfg.TicksPerState = 1
	}
	if cfg.MaxClients < 1 {
		cfg.MaxClients = 1
	}
	if cfg.MaxPerIP < 1 {
		cfg.MaxPerIP = cfg.MaxClients
	}
	if cfg.SendBuffer < 1 {
		cfg.SendBuffer = 1
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	h := &Hub{
		game:    game,
		tasks:   tasks,
		config:  cfg,
		logger:  logger.Component("hub"),
		metrics: m,
		perIP:   NewConnLimiter(cfg.MaxPerIP),
		clients: make(map[*observer]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	h.sub = game.EventBus.Subscribe(event.TickCompleted, h.onTick)
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.config.AllowedOrigins) == 0 {
		return true
	}
	if slices.Contains(h.config.AllowedOrigins, origin) {
		return true
	}
	h.logger.Warn(r.Context(), "websocket origin rejected", "origin", origin)
	h.metrics.RecordConnectionRejected("origin")
	return false
}

func (h *Hub) onTick(e event.Event) {
	te, ok := e.(*event.TickEvent)
	if !ok || te.Tick%uint64(h.config.TicksPerState) != 0 {
		return
	}
	if h.ClientCount() == 0 {
		return
	}
	h.Broadcast(h.game.GetState())
}

// Broadcast queues state for every observer
func (h *Hub) Broadcast(state *engine.GameState) {
	data, err := json.Marshal(Message{Type: MessageState, Tick: state.Tick, State: state})
	if err != nil {
		h.logger.Error(context.Background(), "failed to encode snapshot", err, "tick", state.Tick)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for o := range h.clients {
		select {
		case o.send <- data:
		default:
			h.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of connected observers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the observer
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	h.mu.RLock()
	closed, total := h.closed, len(h.clients)
	h.mu.RUnlock()
	if closed {
		http.Error(w, ErrHubClosed.Error(), http.StatusServiceUnavailable)
		return
	}
	if total >= h.config.MaxClients {
		h.logger.Warn(r.Context(), "observer rejected: total limit reached", "clients", total)
		h.metrics.RecordConnectionRejected("ws_total_limit")
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}
	if !h.perIP.Acquire(ip) {
		h.logger.Warn(r.Context(), "observer rejected: per-IP limit reached", "ip", ip)
		h.metrics.RecordConnectionRejected("ws_ip_limit")
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.perIP.Release(ip)
		h.logger.Debug(r.Context(), "websocket upgrade failed", "error", err.Error())
		return
	}

	o := &observer{
		conn: conn,
		ip:   ip,
		send: make(chan []byte, h.config.SendBuffer),
		done: make(chan struct{}),
	}
	state := h.game.GetState()
	if data, err := json.Marshal(Message{Type: MessageState, Tick: state.Tick, State: state}); err == nil {
		o.send <- data
	}
	if err := h.register(o); err != nil {
		h.perIP.Release(ip)
		h.closeWith(conn, websocket.CloseTryAgainLater, err.Error())
		return
	}

	ctx := logging.WithCorrelationID(context.Background(), logging.GenerateCorrelationID())
	if err := h.tasks.Go(ctx, "observer-writer", func(ctx context.Context) { h.writeLoop(ctx, o) }); err != nil {
		h.logger.Warn(ctx, "observer rejected: no writer slot", "error", err.Error())
		h.unregister(o)
		h.closeWith(conn, websocket.CloseTryAgainLater, "server busy")
		return
	}
	if err := h.tasks.Go(ctx, "observer-reader", func(ctx context.Context) { h.readLoop(o) }); err != nil {
		h.logger.Warn(ctx, "observer rejected: no reader slot", "error", err.Error())
		h.unregister(o)
		return
	}

	h.logger.Info(ctx, "observer connected", "ip", ip)
}

func (h *Hub) register(o *observer) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	if len(h.clients) >= h.config.MaxClients {
		h.metrics.RecordConnectionRejected("ws_total_limit")
		return errors.New("too many connections")
	}
	h.clients[o] = struct{}{}
	h.metrics.SetWSConnections(len(h.clients))
	return nil
}

func (h *Hub) unregister(o *observer) {
	o.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, o)
		count := len(h.clients)
		h.mu.Unlock()

		close(o.done)
		h.perIP.Release(o.ip)
		h.metrics.SetWSConnections(count)
		h.logger.Debug(context.Background(), "observer disconnected", "ip", o.ip, "remaining", count)
	})
}

func (h *Hub) writeLoop(ctx context.Context, o *observer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		o.conn.Close()
		h.unregister(o)
	}()

	for {
		select {
		case <-ctx.Done():
			h.closeWith(o.conn, websocket.CloseGoingAway, "server shutting down")
			return
		case <-o.done:
			h.closeWith(o.conn, websocket.CloseNormalClosure, "")
			return
		case msg := <-o.send:
			o.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := o.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
			h.metrics.IncWSMessages()
		case <-ticker.C:
			o.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := o.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop only services control frames; observers have nothing to say.
func (h *Hub) readLoop(o *observer) {
	defer h.unregister(o)

	o.conn.SetReadLimit(maxInboundSize)
	o.conn.SetReadDeadline(time.Now().Add(pongWait))
	o.conn.SetPongHandler(func(string) error {
		return o.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := o.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) closeWith(conn *websocket.Conn, code int, text string) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
	conn.Close()
}

// Dropped returns how many snapshots were skipped for slow observers
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close stops broadcasting and disconnects every observer
func (h *Hub) Close() {
	h.sub.Cancel()

	h.mu.Lock()
	h.closed = true
	clients := make([]*observer, 0, len(h.clients))
	for o := range h.clients {
		clients = append(clients, o)
	}
	h.mu.Unlock()

	for _, o := range clients {
		h.unregister(o)
	}
}
