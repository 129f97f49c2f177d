package network

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opd-ai/go-rts/pkg/config"
	"github.com/opd-ai/go-rts/pkg/engine"
	"github.com/opd-ai/go-rts/pkg/event"
	"github.com/opd-ai/go-rts/pkg/logging"
)

// Observer connection events published on the observer's bus
const (
	ObserverConnected    event.Type = "observer_connected"
	ObserverDisconnected event.Type = "observer_disconnected"
)

// ErrNotConnected is returned when reading without a live connection
var ErrNotConnected = errors.New("not connected")

// Observer follows a server's snapshot stream and reconnects through the
// circuit breaker when the connection drops.
type Observer struct {
	url            string
	service        *NetworkService
	dialer         *websocket.Dialer
	eventBus       *event.Bus
	logger         *logging.Logger
	states         chan *engine.GameState
	reconnectDelay time.Duration
	readTimeout    time.Duration

	mu       sync.Mutex
	conn     *websocket.Conn
	lastTick uint64
}

// NewObserver creates an observer for the websocket endpoint at url
func NewObserver(url string, env *config.EnvironmentConfig, eventBus *event.Bus, logger *logging.Logger) *Observer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if eventBus == nil {
		eventBus = event.NewEventBus()
	}
	return &Observer{
		url:     url,
		service: NewNetworkService(env, logger),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		eventBus:       eventBus,
		logger:         logger.Component("observer"),
		states:         make(chan *engine.GameState, 4),
		reconnectDelay: 3 * time.Second,
		readTimeout:    env.ReadTimeout,
	}
}

// SetReconnectDelay changes the pause between reconnect cycles
func (o *Observer) SetReconnectDelay(d time.Duration) {
	o.reconnectDelay = d
}

// Service exposes the observer's circuit breaker
func (o *Observer) Service() *NetworkService {
	return o.service
}

// States delivers decoded snapshots. When the consumer falls behind, the
// oldest queued snapshot is discarded.
func (o *Observer) States() <-chan *engine.GameState {
	return o.states
}

// LastTick returns the tick of the newest snapshot received
func (o *Observer) LastTick() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastTick
}

// Connect dials the server, retrying through the circuit breaker
func (o *Observer) Connect(ctx context.Context) error {
	var conn *websocket.Conn
	err := o.service.ExecuteWithRetry(ctx, func() error {
		c, resp, err := o.dialer.DialContext(ctx, o.url, nil)
		if err != nil {
			if resp != nil {
				return fmt.Errorf("dial %s: %w (status %d)", o.url, err, resp.StatusCode)
			}
			return fmt.Errorf("dial %s: %w", o.url, err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return err
	}

	o.mu.Lock()
	if o.conn != nil {
		o.conn.Close()
	}
	o.conn = conn
	o.mu.Unlock()

	o.logger.Info(ctx, "connected", "url", o.url)
	o.eventBus.Publish(&event.BaseEvent{EventType: ObserverConnected, Source: o})
	return nil
}

// Run connects and reads snapshots until ctx is cancelled, reconnecting
// after every dropped connection.
func (o *Observer) Run(ctx context.Context) error {
	defer o.Close()

	for {
		if err := o.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			o.logger.Warn(ctx, "connect failed", "error", err.Error(), "breaker", o.service.GetState().String())
		} else {
			err := o.readLoop(ctx)
			if ctx.Err() != nil {
				return nil
			}
			o.logger.Warn(ctx, "connection lost", "error", err.Error())
			o.eventBus.Publish(&event.BaseEvent{EventType: ObserverDisconnected, Source: o})
		}

		timer := time.NewTimer(o.reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (o *Observer) readLoop(ctx context.Context) error {
	o.mu.Lock()
	conn := o.conn
	o.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		if o.readTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(o.readTimeout))
		}
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		if msg.Type != MessageState || msg.State == nil {
			continue
		}
		o.deliver(msg.State)
	}
}

func (o *Observer) deliver(state *engine.GameState) {
	o.mu.Lock()
	o.lastTick = state.Tick
	o.mu.Unlock()

	for {
		select {
		case o.states <- state:
			return
		default:
		}
		select {
		case <-o.states:
		default:
		}
	}
}

// Close drops the current connection
func (o *Observer) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conn == nil {
		return nil
	}
	err := o.conn.Close()
	o.conn = nil
	return err
}
