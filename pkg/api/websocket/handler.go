package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/aescanero/costume-orders/pkg/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	clientBuffer = 16
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	productID string
	send      chan []byte
}

func (c *client) wants(event domain.Event) bool {
	if c.productID == "" {
		return true
	}
	for _, item := range event.Detail.Items {
		if item.ProductID == c.productID {
			return true
		}
	}
	return false
}

// Handler fans OrderCreated events out to connected WebSocket clients
type Handler struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHandler creates a new WebSocket handler
func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// Notify broadcasts the event to every interested client. Slow clients
// miss events instead of blocking the consumer.
func (h *Handler) Notify(_ context.Context, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.wants(event) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("client buffer full, dropping event",
				zap.String("event_id", event.ID),
				zap.String("order_id", event.Detail.ID))
		}
	}
	return nil
}

// Clients returns the number of connected clients
func (h *Handler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleOrderStream upgrades the request and streams events until the
// client goes away
func (h *Handler) HandleOrderStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	cl := &client{
		productID: c.Query("productId"),
		send:      make(chan []byte, clientBuffer),
	}
	h.register(cl)
	defer h.unregister(cl)

	h.logger.Info("WebSocket connection established",
		zap.String("product_filter", cl.productID),
		zap.String("client", c.ClientIP()))

	// The read loop only notices the close frame.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case data := <-cl.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Warn("failed to write message", zap.Error(err))
				return
			}
		}
	}
}

func (h *Handler) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Handler) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}
