package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"social_messenger/internal/domain"
	"social_messenger/internal/metrics"
	"social_messenger/internal/repository"
	"social_messenger/internal/service"
	"social_messenger/pkg/logger"
)

// Hub владеет двумя реестрами: user -> соединения (multi-device presence)
// и conversation -> соединения (комнаты). Все мутации идут через его методы,
// глобального состояния нет.
type Hub struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]map[*Client]struct{}
	rooms    map[uuid.UUID]map[*Client]struct{}
	statuses map[uuid.UUID]domain.PresenceStatus

	presenceRepo repository.PresenceRepository
	presenceTTL  time.Duration
	log          logger.Logger
}

func NewHub(presenceRepo repository.PresenceRepository, presenceTTL time.Duration, log logger.Logger) *Hub {
	return &Hub{
		users:        make(map[uuid.UUID]map[*Client]struct{}),
		rooms:        make(map[uuid.UUID]map[*Client]struct{}),
		statuses:     make(map[uuid.UUID]domain.PresenceStatus),
		presenceRepo: presenceRepo,
		presenceTTL:  presenceTTL,
		log:          log,
	}
}

// Register привязывает проверенное соединение к identity. Возвращает true,
// если это первое соединение пользователя (переход offline -> online).
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	conns := h.users[c.userID]
	if conns == nil {
		conns = make(map[*Client]struct{})
		h.users[c.userID] = conns
	}
	wasOffline := len(conns) == 0
	conns[c] = struct{}{}
	if wasOffline {
		h.statuses[c.userID] = domain.StatusOnline
	}
	h.mu.Unlock()

	metrics.WsConnections.Inc()

	if wasOffline {
		h.mirrorStatus(c.userID, domain.StatusOnline)
	}
	return wasOffline
}

// Unregister гарантированно вызывается из defer readPump, а не по доброй
// воле клиента: соединение убирается из presence и из всех комнат.
// Возвращает true, если пользователь ушел в offline.
func (h *Hub) Unregister(c *Client) bool {
	h.mu.Lock()
	if conns, ok := h.users[c.userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.users, c.userID)
			delete(h.statuses, c.userID)
		}
	}
	for roomID, members := range h.rooms {
		if _, ok := members[c]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	wentOffline := h.users[c.userID] == nil
	h.mu.Unlock()

	metrics.WsConnections.Dec()
	c.closeSend()

	if wentOffline {
		h.mirrorStatus(c.userID, domain.StatusOffline)
	}
	return wentOffline
}

// Subscribe добавляет соединение в комнату беседы. Проверка членства
// выполняется до вызова, на уровне диспетчера.
func (h *Hub) Subscribe(c *Client, conversationID uuid.UUID) {
	h.mu.Lock()
	members := h.rooms[conversationID]
	if members == nil {
		members = make(map[*Client]struct{})
		h.rooms[conversationID] = members
	}
	members[c] = struct{}{}
	h.mu.Unlock()
}

// Unsubscribe идемпотентен: отписка неподписанного соединения — no-op
func (h *Hub) Unsubscribe(c *Client, conversationID uuid.UUID) {
	h.mu.Lock()
	if members, ok := h.rooms[conversationID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, conversationID)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) IsOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

func (h *Hub) ConnectionCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

func (h *Hub) RoomSize(conversationID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

func (h *Hub) Subscribed(c *Client, conversationID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[conversationID][c]
	return ok
}

// SetStatus меняет статус и рассылает presence_changed только при изменении
func (h *Hub) SetStatus(userID uuid.UUID, status domain.PresenceStatus) bool {
	h.mu.Lock()
	prev := h.statuses[userID]
	if prev == status {
		h.mu.Unlock()
		return false
	}
	h.statuses[userID] = status
	h.mu.Unlock()

	h.mirrorStatus(userID, status)
	return true
}

func (h *Hub) Status(userID uuid.UUID) domain.PresenceStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.users[userID]) == 0 {
		return domain.StatusOffline
	}
	return h.statuses[userID]
}

// ToConversation — best-effort fan-out текущим подписчикам комнаты.
// Отправка неблокирующая: медленный клиент теряет событие и догоняет
// историю через paginated fetch.
func (h *Hub) ToConversation(conversationID uuid.UUID, event service.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error("Failed to marshal event", "error", err, "type", event.Type)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[conversationID]))
	for c := range h.rooms[conversationID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(payload)
	}
	metrics.WsEventsTotal.WithLabelValues(event.Type).Add(float64(len(targets)))
}

func (h *Hub) ToUser(userID uuid.UUID, event service.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error("Failed to marshal event", "error", err, "type", event.Type)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.users[userID]))
	for c := range h.users[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(payload)
	}
}

// EvictFromConversation снимает живые подписки пользователя при удалении
// из состава, чтобы он перестал получать события беседы немедленно
func (h *Hub) EvictFromConversation(conversationID, userID uuid.UUID) {
	h.mu.Lock()
	if members, ok := h.rooms[conversationID]; ok {
		for c := range members {
			if c.userID == userID {
				delete(members, c)
				c.forgetRoom(conversationID)
			}
		}
		if len(members) == 0 {
			delete(h.rooms, conversationID)
		}
	}
	h.mu.Unlock()
}

// RefreshPresence продлевает TTL зеркала в Redis, пока у пользователя
// есть живое соединение: без продления тихое соединение «протухало» бы
// для запросов присутствия раньше фактического разрыва
func (h *Hub) RefreshPresence(userID uuid.UUID) {
	h.mu.RLock()
	online := len(h.users[userID]) > 0
	status := h.statuses[userID]
	h.mu.RUnlock()

	if !online || status == "" {
		return
	}
	h.mirrorStatus(userID, status)
}

func (h *Hub) mirrorStatus(userID uuid.UUID, status domain.PresenceStatus) {
	if h.presenceRepo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var err error
	if status == domain.StatusOffline {
		err = h.presenceRepo.Clear(ctx, userID)
	} else {
		err = h.presenceRepo.SetStatus(ctx, userID, status, h.presenceTTL)
	}
	if err != nil {
		h.log.Warn("Failed to mirror presence status", "error", err, "user_id", userID)
	}
}
