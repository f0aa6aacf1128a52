package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"diabetesdx/db"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType 消息类型
type MessageType string

const StatsUpdate MessageType = "stats"

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = 2 * pingPeriod
)

// Message 推送给浏览器的消息
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	ID        string          `json:"id"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	id   string
}

// StatsHub fans the latest diagnosis counts out to every connected browser.
// A new client immediately receives the last published snapshot.
type StatsHub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	upgrader   websocket.Upgrader
	logger     *zap.Logger

	mu   sync.RWMutex
	last []byte
	done chan struct{}
}

func NewStatsHub(logger *zap.Logger) *StatsHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsHub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.Named("ws"),
		done:   make(chan struct{}),
	}
}

// Run 启动广播循环，ctx 结束时关闭所有连接
func (h *StatsHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			h.mu.RLock()
			last := h.last
			h.mu.RUnlock()
			if last != nil {
				c.send <- last
			}
			h.logger.Debug("client connected", zap.String("client", c.id), zap.Int("clients", len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.logger.Debug("client disconnected", zap.String("client", c.id), zap.Int("clients", len(h.clients)))

		case message := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					// slow consumer
					close(c.send)
					delete(h.clients, c)
				}
			}

		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return
		}
	}
}

// Done is closed once Run has returned.
func (h *StatsHub) Done() <-chan struct{} { return h.done }

// Prime stores the snapshot new clients receive until the first Publish,
// typically the store's counts at startup.
func (h *StatsHub) Prime(stats db.Stats) {
	message, err := encodeMessage(StatsUpdate, stats)
	if err != nil {
		h.logger.Error("encode stats", zap.Error(err))
		return
	}
	h.mu.Lock()
	if h.last == nil {
		h.last = message
	}
	h.mu.Unlock()
}

// Publish implements diagnosis.StatsPublisher.
func (h *StatsHub) Publish(stats db.Stats) {
	message, err := encodeMessage(StatsUpdate, stats)
	if err != nil {
		h.logger.Error("encode stats", zap.Error(err))
		return
	}
	h.mu.Lock()
	h.last = message
	h.mu.Unlock()

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast queue full, dropping stats update")
	}
}

// ServeHTTP 处理WebSocket连接
func (h *StatsHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 16), id: uuid.NewString()}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump(h)
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only watches for the peer going away; clients never send data.
func (c *client) readPump(h *StatsHub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read", zap.String("client", c.id), zap.Error(err))
			}
			return
		}
	}
}

func encodeMessage(t MessageType, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{
		Type:      t,
		Timestamp: time.Now().UTC(),
		Data:      data,
		ID:        uuid.NewString(),
	})
}
