package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"social_messenger/internal/config"
	"social_messenger/internal/domain"
	"social_messenger/internal/metrics"
	"social_messenger/internal/service"
	"social_messenger/pkg/logger"
)

// Client — одно живое соединение, привязанное к проверенной identity.
// Живет только пока открыт транспорт, нигде не персистится.
type Client struct {
	id       uuid.UUID
	userID   uuid.UUID
	username string

	conn *websocket.Conn
	hub  *Hub
	cfg  config.WebSocketConfig
	log  logger.Logger

	sendMu     sync.Mutex
	send       chan []byte
	sendClosed bool

	roomsMu sync.Mutex
	rooms   map[uuid.UUID]struct{}

	idleMu    sync.Mutex
	idleTimer *time.Timer
	idle      bool
}

func NewClient(conn *websocket.Conn, hub *Hub, claims domain.Claims, cfg config.WebSocketConfig, log logger.Logger) *Client {
	return &Client{
		id:       uuid.New(),
		userID:   claims.UserID,
		username: claims.Username,
		conn:     conn,
		send:     make(chan []byte, cfg.SendBufferSize),
		hub:      hub,
		cfg:      cfg,
		log:      log,
		rooms:    make(map[uuid.UUID]struct{}),
	}
}

func (c *Client) ID() uuid.UUID     { return c.id }
func (c *Client) UserID() uuid.UUID { return c.userID }

// Run запускает насосы и блокируется до разрыва соединения
func (c *Client) Run(router *Router) {
	c.startIdleTimer()
	go c.writePump()
	c.readPump(router)
}

func (c *Client) readPump(router *Router) {
	defer func() {
		c.stopIdleTimer()
		wentOffline := c.hub.Unregister(c)
		if wentOffline {
			router.NotifyOffline(c)
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("Unexpected connection close", "error", err, "user_id", c.userID)
			}
			break
		}

		c.touchActivity()
		router.Dispatch(c, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			// Живое соединение продлевает TTL presence-зеркала
			c.hub.RefreshPresence(c.userID)
		}
	}
}

// enqueue — неблокирующая отправка: при переполненном буфере событие
// отбрасывается, клиент догонит состояние через историю. Рассылка может
// держать снапшот получателей, взятый до снятия соединения, поэтому
// закрытие канала и отправка сериализованы через sendMu.
func (c *Client) enqueue(payload []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	select {
	case c.send <- payload:
	default:
		metrics.WsBroadcastDrops.Inc()
	}
}

// closeSend идемпотентно закрывает исходящий канал
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.send)
}

func (c *Client) rememberRoom(conversationID uuid.UUID) {
	c.roomsMu.Lock()
	c.rooms[conversationID] = struct{}{}
	c.roomsMu.Unlock()
}

func (c *Client) forgetRoom(conversationID uuid.UUID) {
	c.roomsMu.Lock()
	delete(c.rooms, conversationID)
	c.roomsMu.Unlock()
}

func (c *Client) roomList() []uuid.UUID {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	out := make([]uuid.UUID, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	return out
}

func (c *Client) startIdleTimer() {
	c.idleMu.Lock()
	defer c.idleMu.Unlock()
	c.idleTimer = time.AfterFunc(c.cfg.IdleTimeout, c.markIdle)
}

// stopIdleTimer обязателен при разрыве, иначе таймер утечет
func (c *Client) stopIdleTimer() {
	c.idleMu.Lock()
	defer c.idleMu.Unlock()
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
}

// touchActivity сбрасывает окно простоя; если соединение было idle,
// рассылается обратный переход в active
func (c *Client) touchActivity() {
	c.idleMu.Lock()
	wasIdle := c.idle
	c.idle = false
	if c.idleTimer != nil {
		c.idleTimer.Reset(c.cfg.IdleTimeout)
	}
	c.idleMu.Unlock()

	if wasIdle {
		c.broadcastIdleState(service.EventActive)
	}
}

func (c *Client) markIdle() {
	c.idleMu.Lock()
	c.idle = true
	c.idleMu.Unlock()

	c.broadcastIdleState(service.EventIdle)
}

func (c *Client) broadcastIdleState(eventType string) {
	event := service.Event{
		Type: eventType,
		Data: map[string]any{
			"user_id":  c.userID,
			"username": c.username,
		},
	}
	for _, roomID := range c.roomList() {
		c.hub.ToConversation(roomID, event)
	}
}
