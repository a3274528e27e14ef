package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"social_messenger/internal/domain"
	"social_messenger/internal/metrics"
	"social_messenger/internal/service"
	"social_messenger/pkg/logger"
)

// Входящие типы событий соединения
const (
	inJoinConversation  = "join_conversation"
	inLeaveConversation = "leave_conversation"
	inSendMessage       = "send_message"
	inEditMessage       = "edit_message"
	inDeleteMessage     = "delete_message"
	inAddReaction       = "add_reaction"
	inRemoveReaction    = "remove_reaction"
	inMarkRead          = "mark_read"
	inTyping            = "typing"
	inViewing           = "viewing"
	inPresenceStatus    = "presence_status"
)

const dispatchTimeout = 10 * time.Second

// inboundEvent — единый tagged-union конверт: каждый тип валидируется
// и проходит один и тот же авторизационный шлюз до бизнес-логики
type inboundEvent struct {
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Data          json.RawMessage `json:"data"`
}

type joinPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
}

type sendMessagePayload struct {
	ConversationID uuid.UUID  `json:"conversation_id"`
	Type           string     `json:"type"`
	Content        *string    `json:"content,omitempty"`
	MediaURL       *string    `json:"media_url,omitempty"`
	ReplyToID      *uuid.UUID `json:"reply_to_id,omitempty"`
}

type editMessagePayload struct {
	MessageID uuid.UUID `json:"message_id"`
	Content   string    `json:"content"`
}

type deleteMessagePayload struct {
	MessageID uuid.UUID `json:"message_id"`
}

type addReactionPayload struct {
	MessageID uuid.UUID `json:"message_id"`
	Emoji     string    `json:"emoji"`
}

type removeReactionPayload struct {
	ReactionID uuid.UUID `json:"reaction_id"`
}

type markReadPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
}

type typingPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	IsTyping       bool      `json:"is_typing"`
}

type viewingPayload struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Target         string    `json:"target"`
}

type statusPayload struct {
	Status domain.PresenceStatus `json:"status"`
}

// Router маршрутизирует входящие события соединения в сервисы.
// Нефатальные ошибки уходят клиенту scoped error-событием, соединение
// закрывается только при провале handshake.
type Router struct {
	hub          *Hub
	conversation service.ConversationService
	message      service.MessageService
	reaction     service.ReactionService
	log          logger.Logger
}

func NewRouter(hub *Hub, conversation service.ConversationService, message service.MessageService, reaction service.ReactionService, log logger.Logger) *Router {
	return &Router{
		hub:          hub,
		conversation: conversation,
		message:      message,
		reaction:     reaction,
		log:          log,
	}
}

func (r *Router) Dispatch(c *Client, data []byte) {
	var event inboundEvent
	if err := json.Unmarshal(data, &event); err != nil {
		r.sendError(c, "", "malformed event")
		return
	}

	metrics.WsInboundTotal.WithLabelValues(event.Type).Inc()

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	var err error
	switch event.Type {
	case inJoinConversation:
		err = r.handleJoin(ctx, c, event)
	case inLeaveConversation:
		err = r.handleLeave(c, event)
	case inSendMessage:
		err = r.handleSendMessage(ctx, c, event)
	case inEditMessage:
		err = r.handleEditMessage(ctx, c, event)
	case inDeleteMessage:
		err = r.handleDeleteMessage(ctx, c, event)
	case inAddReaction:
		err = r.handleAddReaction(ctx, c, event)
	case inRemoveReaction:
		err = r.handleRemoveReaction(ctx, c, event)
	case inMarkRead:
		err = r.handleMarkRead(ctx, c, event)
	case inTyping:
		err = r.handleTyping(ctx, c, event)
	case inViewing:
		err = r.handleViewing(ctx, c, event)
	case inPresenceStatus:
		err = r.handleStatus(c, event)
	default:
		r.sendError(c, event.CorrelationID, "unknown event type: "+event.Type)
		return
	}

	if err != nil {
		r.sendError(c, event.CorrelationID, err.Error())
	}
}

func (r *Router) handleJoin(ctx context.Context, c *Client, event inboundEvent) error {
	var p joinPayload
	if err := json.Unmarshal(event.Data, &p); err != nil {
		return err
	}

	// Подписка только при активном членстве
	if err := r.conversation.EnsureActiveMember(ctx, p.ConversationID, c.userID); err != nil {
		return err
	}

	r.hub.Subscribe(c, p.ConversationID)
	c.rememberRoom(p.ConversationID)
	return nil
}

func (r *Router) handleLeave(c *Client, event inboundEvent) error {
	var p joinPayload
	if err := json.Unmarshal(event.Data, &p); err != nil {
		return err
	}

	r.hub.Unsubscribe(c, p.ConversationID)
	c.forgetRoom(p.ConversationID)
	return nil
}

func (r *Router) handleSendMessage(ctx context.Context, c *Client, event inboundEvent) error {
	var p sendMessagePayload
	if err := json.Unmarshal(event.Data, &p); err != nil {
		return err
	}

	_, err := r.message.Send(ctx, p.ConversationID, c.userID, service.SendMessageInput{
		Type:          p.Type,
		Content:       p.Content,
		MediaURL:      p.MediaURL,
		ReplyToID:     p.ReplyToID,
		CorrelationID: event.CorrelationID,
	})
	return err
}

func (r *Router) handleEditMessage(ctx context.Context, c *Client, event inboundEvent) error {
	var p editMessagePayload
	if err := json.Unmarshal(event.Data, &p); err != nil {
		return err
	}

	_, err := r.message.Edit(ctx, p.MessageID, c.userID, p.Content)
	return err
}

func (r *Router) handleDeleteMessage(ctx context.Context, c *Client, event inboundEvent) error {
	var p deleteMessagePayload
	if err := json.Unmarshal(event.Data, &p); err != nil {
		return err
	}

	return r.message.Delete(ctx, p.MessageID, c.userID)
}

func (r *Router) handleAddReaction(ctx context.Context, c *Client, event inboundEvent) error {
	var p addReactionPayload
	if err := json.Unmarshal(event.Data, &p); err != nil {
		return err
	}

	_, err := r.reaction.Add(ctx, p.MessageID, c.userID, p.Emoji)
	return err
}

func (r *Router) handleRemoveReaction(ctx context.Context, c *Client, event inboundEvent) error {
	var p removeReactionPayload
	if err := json.Unmarshal(event.Data, &p); err != nil {
		return err
	}

	return r.reaction.Remove(ctx, p.ReactionID, c.userID)
}

func (r *Router) handleMarkRead(ctx context.Context, c *Client, event inboundEvent) error {
	var p markReadPayload
	if err := json.Unmarshal(event.Data, &p); err != nil {
		return err
	}

	return r.conversation.MarkRead(ctx, p.ConversationID, c.userID, p.MessageID)
}

// Typing никогда не персистится — чистый relay в комнату
func (r *Router) handleTyping(ctx context.Context, c *Client, event inboundEvent) error {
	var p typingPayload
	if err := json.Unmarshal(event.Data, &p); err != nil {
		return err
	}

	if err := r.conversation.EnsureActiveMember(ctx, p.ConversationID, c.userID); err != nil {
		return err
	}

	r.hub.ToConversation(p.ConversationID, service.Event{
		Type: service.EventTyping,
		Data: map[string]any{
			"conversation_id": p.ConversationID,
			"user_id":         c.userID,
			"username":        c.username,
			"is_typing":       p.IsTyping,
		},
	})
	return nil
}

func (r *Router) handleViewing(ctx context.Context, c *Client, event inboundEvent) error {
	var p viewingPayload
	if err := json.Unmarshal(event.Data, &p); err != nil {
		return err
	}

	if err := r.conversation.EnsureActiveMember(ctx, p.ConversationID, c.userID); err != nil {
		return err
	}

	r.hub.ToConversation(p.ConversationID, service.Event{
		Type: service.EventUserViewing,
		Data: map[string]any{
			"conversation_id": p.ConversationID,
			"user_id":         c.userID,
			"target":          p.Target,
		},
	})
	return nil
}

func (r *Router) handleStatus(c *Client, event inboundEvent) error {
	var p statusPayload
	if err := json.Unmarshal(event.Data, &p); err != nil {
		return err
	}
	if !p.Status.Valid() || p.Status == domain.StatusOffline {
		r.sendError(c, event.CorrelationID, "invalid presence status")
		return nil
	}

	// Рассылка только при фактической смене статуса
	if r.hub.SetStatus(c.userID, p.Status) {
		r.broadcastPresence(c, p.Status)
	}
	return nil
}

// NotifyOffline вызывается после снятия последнего соединения пользователя
func (r *Router) NotifyOffline(c *Client) {
	r.broadcastPresence(c, domain.StatusOffline)
}

func (r *Router) broadcastPresence(c *Client, status domain.PresenceStatus) {
	event := service.Event{
		Type: service.EventPresenceChanged,
		Data: map[string]any{
			"user_id":  c.userID,
			"username": c.username,
			"status":   status,
		},
	}
	for _, roomID := range c.roomList() {
		r.hub.ToConversation(roomID, event)
	}
}

func (r *Router) sendError(c *Client, correlationID, message string) {
	payload, err := json.Marshal(service.Event{
		Type:          service.EventError,
		CorrelationID: correlationID,
		Data:          map[string]any{"message": message},
	})
	if err != nil {
		return
	}
	c.enqueue(payload)
}
