// Package websocket streams loader and scheduler events to browser clients.
//
// The EventHub subscribes once to an events.Bus and fans every event out to
// connected clients as a JSON text message. Each client has a bounded send
// buffer; a client that falls behind is disconnected rather than allowed to
// stall the hub.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/conneroisu/modloader/internal/events"
	"github.com/conneroisu/modloader/internal/logging"
)

const (
	defaultSendBuffer   = 64
	defaultPingInterval = 30 * time.Second
	defaultWriteTimeout = 10 * time.Second
)

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	remote    string
	closeOnce sync.Once
}

func (c *client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// EventHub serves the /ws endpoint
type EventHub struct {
	bus            *events.Bus
	allowedOrigins []string
	logger         logging.Logger

	pingInterval time.Duration
	writeTimeout time.Duration
	sendBuffer   int

	clients map[*client]struct{}
	mutex   sync.RWMutex

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	handlers     sync.WaitGroup
	hubDone      chan struct{}
}

// Option configures an EventHub
type Option func(*EventHub)

// WithPingInterval sets how often idle clients are pinged
func WithPingInterval(d time.Duration) Option {
	return func(h *EventHub) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

// WithWriteTimeout bounds a single write or ping
func WithWriteTimeout(d time.Duration) Option {
	return func(h *EventHub) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithSendBuffer sets the per-client message buffer
func WithSendBuffer(n int) Option {
	return func(h *EventHub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// NewEventHub creates a hub and starts forwarding events from bus.
// allowedOrigins are host patterns accepted in the Origin header in addition
// to the server's own host; an empty list means same-origin only.
func NewEventHub(bus *events.Bus, allowedOrigins []string, logger logging.Logger, opts ...Option) *EventHub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &EventHub{
		bus:            bus,
		allowedOrigins: allowedOrigins,
		logger:         logging.OrNop(logger).WithComponent("websocket"),
		pingInterval:   defaultPingInterval,
		writeTimeout:   defaultWriteTimeout,
		sendBuffer:     defaultSendBuffer,
		clients:        make(map[*client]struct{}),
		ctx:            ctx,
		cancel:         cancel,
		hubDone:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}

	go h.run(bus.Subscribe(256))
	return h
}

func (h *EventHub) run(sub <-chan events.Event) {
	defer close(h.hubDone)
	defer h.bus.Unsubscribe(sub)

	for {
		select {
		case event, ok := <-sub:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error(h.ctx, err, "Failed to marshal event", "type", string(event.Type))
				continue
			}
			h.broadcast(data)
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *EventHub) broadcast(message []byte) {
	h.mutex.RLock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- message:
		default:
			slow = append(slow, c)
		}
	}
	h.mutex.RUnlock()

	for _, c := range slow {
		h.logger.Warn(h.ctx, nil, "Disconnecting slow WebSocket client", "remote", c.remote)
		h.remove(c)
	}
}

// ServeHTTP upgrades the request and streams events until the client goes
// away or the hub shuts down
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  h.allowedOrigins,
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		// Accept has already written the response
		h.logger.Warn(r.Context(), err, "WebSocket upgrade rejected",
			"remote", r.RemoteAddr,
			"origin", r.Header.Get("Origin"))
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, h.sendBuffer),
		remote: r.RemoteAddr,
	}
	if !h.add(c) {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.handlers.Done()

	// Inbound messages are discarded; ctx ends when the peer closes
	ctx := conn.CloseRead(h.ctx)
	h.writeLoop(ctx, c)

	h.remove(c)
	status := websocket.StatusNormalClosure
	if h.ctx.Err() != nil {
		status = websocket.StatusGoingAway
	}
	_ = conn.Close(status, "")
}

func (h *EventHub) writeLoop(ctx context.Context, c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				h.logger.Debug(ctx, "WebSocket write failed", "remote", c.remote, "error", err.Error())
				return
			}

		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				h.logger.Debug(ctx, "WebSocket ping failed", "remote", c.remote, "error", err.Error())
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

func (h *EventHub) add(c *client) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.ctx.Err() != nil {
		return false
	}
	h.clients[c] = struct{}{}
	h.handlers.Add(1)

	h.logger.Info(h.ctx, "WebSocket client connected",
		"remote", c.remote,
		"clients", len(h.clients))
	return true
}

func (h *EventHub) remove(c *client) {
	h.mutex.Lock()
	_, exists := h.clients[c]
	delete(h.clients, c)
	count := len(h.clients)
	h.mutex.Unlock()

	c.closeSend()
	if exists {
		h.logger.Info(context.Background(), "WebSocket client disconnected",
			"remote", c.remote,
			"clients", count)
	}
}

// ClientCount returns the number of connected clients
func (h *EventHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects every client and stops forwarding events. It waits
// for client handlers to return or for ctx to end.
func (h *EventHub) Shutdown(ctx context.Context) error {
	h.shutdownOnce.Do(func() {
		h.mutex.Lock()
		h.cancel()
		h.mutex.Unlock()
	})

	done := make(chan struct{})
	go func() {
		h.handlers.Wait()
		<-h.hubDone
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info(ctx, "WebSocket hub shut down")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
