package service

import "github.com/google/uuid"

// Типы событий, уходящих подписчикам по живым соединениям
const (
	EventNewMessage       = "new_message"
	EventMessageUpdated   = "message_updated"
	EventMessageDeleted   = "message_deleted"
	EventReactionAdded    = "reaction_added"
	EventReactionRemoved  = "reaction_removed"
	EventMessageRead      = "message_read"
	EventMemberAdded      = "member_added"
	EventMemberRemoved    = "member_removed"
	EventAdminTransferred = "admin_transferred"
	EventConversationMeta = "conversation_updated"
	EventPresenceChanged  = "presence_changed"
	EventTyping           = "typing"
	EventUserViewing      = "user_viewing"
	EventIdle             = "idle"
	EventActive           = "active"
	EventError            = "error"
)

type Event struct {
	Type          string      `json:"type"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Data          interface{} `json:"data,omitempty"`
}

// Broadcaster — явная зависимость вместо глобального socket-хендла.
// Реализуется хабом; доставка best-effort и не блокирует вызывающего,
// источником истины остается БД.
type Broadcaster interface {
	ToConversation(conversationID uuid.UUID, event Event)
	ToUser(userID uuid.UUID, event Event)
	EvictFromConversation(conversationID, userID uuid.UUID)
}

// NopBroadcaster используется там, где fan-out не нужен (тесты, фоновые задачи)
type NopBroadcaster struct{}

func (NopBroadcaster) ToConversation(uuid.UUID, Event)            {}
func (NopBroadcaster) ToUser(uuid.UUID, Event)                    {}
func (NopBroadcaster) EvictFromConversation(uuid.UUID, uuid.UUID) {}
