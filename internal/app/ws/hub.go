// Package ws pushes refresh results and connection state to dashboard
// clients over websockets and routes their pointer interaction frames
// into a per-connection chart renderer session.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TokenPulse/dashboard_core/internal/app/domain/market"
	"github.com/TokenPulse/dashboard_core/internal/app/metrics"
	"github.com/TokenPulse/dashboard_core/internal/app/services/orchestrator"
	"github.com/TokenPulse/dashboard_core/internal/chart/render"
	"github.com/TokenPulse/dashboard_core/pkg/logger"
)

const (
	pingInterval = 25 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	sendBuffer   = 8
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// RendererFactory builds the chart session backing one connection.
type RendererFactory func() (*render.Renderer, error)

// Inbound is one client frame.
type Inbound struct {
	Action  string               `json:"action"`
	Pointer *render.PointerEvent `json:"pointer,omitempty"`
	Window  string               `json:"window,omitempty"`
	Config  *render.ConfigPatch  `json:"config,omitempty"`
}

// Outbound is one server frame.
type Outbound struct {
	Type   string               `json:"type"`
	Status orchestrator.Status  `json:"status,omitempty"`
	Update *orchestrator.Update `json:"update,omitempty"`
	Image  string               `json:"image,omitempty"`
	Error  string               `json:"error,omitempty"`
}

type client struct {
	conn     *websocket.Conn
	send     chan Outbound
	renderer *render.Renderer
}

// Hub fans refresher updates out to connected clients.
type Hub struct {
	refresher *orchestrator.Refresher
	factory   RendererFactory
	log       *logger.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewHub wires the hub to a refresher and a renderer factory.
func NewHub(refresher *orchestrator.Refresher, factory RendererFactory, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewDefault("ws-hub")
	}
	return &Hub{
		refresher: refresher,
		factory:   factory,
		log:       log,
		clients:   make(map[*client]struct{}),
	}
}

func (h *Hub) Name() string { return "ws-hub" }

// Start subscribes to the refresher and begins fanning updates out.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = true
	runCtx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.mu.Unlock()

	updates, unsubscribe := h.refresher.Subscribe()
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer unsubscribe()
		for {
			select {
			case <-runCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				h.broadcast(Outbound{Type: "update", Status: update.Status, Update: &update})
			}
		}
	}()
	h.log.Info("websocket hub started")
	return nil
}

// Stop disconnects every client and halts the fan-out loop.
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = false
	cancel := h.cancel
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	cancel()
	for _, c := range clients {
		c.conn.Close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	h.log.Info("websocket hub stopped")
	return nil
}

func (h *Hub) broadcast(frame Outbound) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			// Slow consumers drop frames rather than stall the hub.
		}
	}
}

// HandleWebSocket upgrades the connection, attaches a renderer session,
// and runs the read loop until the client disconnects.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	h.mu.Unlock()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	renderer, err := h.factory()
	if err != nil {
		h.log.WithError(err).Warn("chart session init failed")
		conn.Close()
		return
	}

	c := &client{conn: conn, send: make(chan Outbound, sendBuffer), renderer: renderer}
	h.addClient(c)

	// Writer goroutine owns the connection's write side. On the way out
	// the client leaves the broadcast set before its send channel
	// closes, so a concurrent broadcast never hits a closed channel.
	writerDone := make(chan struct{})
	go c.writeLoop(writerDone)
	defer func() { <-writerDone }()
	defer close(c.send)
	defer h.removeClient(c)

	c.send <- Outbound{Type: "status", Status: h.refresher.Status()}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.WithError(err).Debug("websocket read failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame Inbound
		if err := json.Unmarshal(message, &frame); err != nil {
			c.trySend(Outbound{Type: "error", Error: "invalid frame"})
			continue
		}
		h.handleFrame(r.Context(), c, frame)
	}
}

// handleFrame routes one inbound frame. State-changing interactions are
// answered with a freshly exported chart image.
func (h *Hub) handleFrame(ctx context.Context, c *client, frame Inbound) {
	switch frame.Action {
	case "pointer":
		if frame.Pointer == nil {
			c.trySend(Outbound{Type: "error", Error: "pointer frame missing event"})
			return
		}
		if c.renderer.HandlePointer(*frame.Pointer) {
			h.pushFrame(c)
		}
	case "load":
		window := market.Window(frame.Window)
		loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := c.renderer.LoadData(loadCtx, window); err != nil {
			c.trySend(Outbound{Type: "error", Error: err.Error()})
			return
		}
		h.pushFrame(c)
	case "config":
		if frame.Config == nil {
			c.trySend(Outbound{Type: "error", Error: "config frame missing patch"})
			return
		}
		if err := c.renderer.UpdateConfig(*frame.Config); err != nil {
			c.trySend(Outbound{Type: "error", Error: err.Error()})
			return
		}
		h.pushFrame(c)
	case "export":
		h.pushFrame(c)
	default:
		c.trySend(Outbound{Type: "error", Error: "unknown action " + frame.Action})
	}
}

func (h *Hub) pushFrame(c *client) {
	image, err := c.renderer.ExportImage()
	if err != nil {
		c.trySend(Outbound{Type: "error", Error: err.Error()})
		return
	}
	c.trySend(Outbound{Type: "frame", Image: image})
}

func (h *Hub) addClient(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.SetWebsocketClients(n)
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	metrics.SetWebsocketClients(n)
	c.renderer.Destroy()
	c.conn.Close()
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (c *client) trySend(frame Outbound) {
	select {
	case c.send <- frame:
	default:
	}
}

func (c *client) writeLoop(done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
