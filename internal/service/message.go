package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"social_messenger/internal/domain"
	"social_messenger/internal/metrics"
	"social_messenger/internal/repository"
	apperrors "social_messenger/pkg/errors"
	"social_messenger/pkg/logger"
)

type MessageService interface {
	Send(ctx context.Context, conversationID, senderID uuid.UUID, input SendMessageInput) (*domain.Message, error)
	Edit(ctx context.Context, messageID, editorID uuid.UUID, newContent string) (*domain.Message, error)
	Delete(ctx context.Context, messageID, requesterID uuid.UUID) error
	History(ctx context.Context, conversationID, requesterID uuid.UUID, limit int, beforeSeq int64) ([]*domain.Message, error)
}

type SendMessageInput struct {
	Type          string
	Content       *string
	MediaURL      *string
	ReplyToID     *uuid.UUID
	CorrelationID string
}

type messageService struct {
	messageRepo repository.MessageRepository
	convRepo    repository.ConversationRepository
	broadcast   Broadcaster
	log         logger.Logger
}

func NewMessageService(messageRepo repository.MessageRepository, convRepo repository.ConversationRepository, broadcast Broadcaster, log logger.Logger) MessageService {
	return &messageService{
		messageRepo: messageRepo,
		convRepo:    convRepo,
		broadcast:   broadcast,
		log:         log,
	}
}

// Send: персист (вместе с денормализованным указателем беседы, одной
// транзакцией) — источник истины; fan-out после коммита, best-effort.
func (s *messageService) Send(ctx context.Context, conversationID, senderID uuid.UUID, input SendMessageInput) (*domain.Message, error) {
	member, err := s.convRepo.GetMember(ctx, conversationID, senderID)
	if err != nil || !member.Active() {
		return nil, apperrors.ErrNotAMember
	}

	if input.Type == "" {
		input.Type = domain.MessageTypeText
	}
	if !domain.ValidMessageType(input.Type) {
		return nil, errors.New("unknown message type: " + input.Type)
	}
	if input.Type == domain.MessageTypeText {
		if input.Content == nil || strings.TrimSpace(*input.Content) == "" {
			return nil, errors.New("text message requires content")
		}
	}

	// reply_to обязан указывать на сообщение этой же беседы
	if input.ReplyToID != nil {
		parent, err := s.messageRepo.GetByID(ctx, *input.ReplyToID)
		if err != nil {
			return nil, apperrors.ErrMessageNotFound
		}
		if parent.ConversationID != conversationID {
			return nil, errors.New("reply target belongs to another conversation")
		}
	}

	now := time.Now()
	message := &domain.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Type:           input.Type,
		Content:        input.Content,
		MediaURL:       input.MediaURL,
		ReplyToID:      input.ReplyToID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.messageRepo.CreateWithPointer(ctx, message); err != nil {
		return nil, err
	}
	metrics.MessagesSentTotal.Inc()

	s.broadcast.ToConversation(conversationID, Event{
		Type:          EventNewMessage,
		CorrelationID: input.CorrelationID,
		Data:          message,
	})

	return message, nil
}

// Edit: менять содержимое может только отправитель
func (s *messageService) Edit(ctx context.Context, messageID, editorID uuid.UUID, newContent string) (*domain.Message, error) {
	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}

	if message.SenderID != editorID {
		return nil, apperrors.ErrNotOwner
	}
	if message.IsDeleted {
		return nil, apperrors.ErrMessageNotFound
	}
	if strings.TrimSpace(newContent) == "" {
		return nil, errors.New("content cannot be empty")
	}

	conv, err := s.convRepo.GetByID(ctx, message.ConversationID)
	if err != nil {
		return nil, err
	}
	isLast := conv.LastMessageID != nil && *conv.LastMessageID == message.ID

	message.Content = &newContent
	message.IsEdited = true
	if err := s.messageRepo.UpdateContent(ctx, message, isLast); err != nil {
		return nil, err
	}

	s.broadcast.ToConversation(message.ConversationID, Event{
		Type: EventMessageUpdated,
		Data: message,
	})

	return message, nil
}

// Delete — мягкое удаление: содержимое очищается, строка и id остаются.
// Повторное удаление идемпотентно.
func (s *messageService) Delete(ctx context.Context, messageID, requesterID uuid.UUID) error {
	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}

	if message.SenderID != requesterID {
		return apperrors.ErrNotOwner
	}
	if message.IsDeleted {
		return nil
	}

	if err := s.messageRepo.SoftDeleteWithPointer(ctx, message); err != nil {
		return err
	}

	s.broadcast.ToConversation(message.ConversationID, Event{
		Type: EventMessageDeleted,
		Data: map[string]any{
			"conversation_id": message.ConversationID,
			"message_id":      message.ID,
		},
	})

	return nil
}

func (s *messageService) History(ctx context.Context, conversationID, requesterID uuid.UUID, limit int, beforeSeq int64) ([]*domain.Message, error) {
	member, err := s.convRepo.GetMember(ctx, conversationID, requesterID)
	if err != nil || !member.Active() {
		return nil, apperrors.ErrNotAMember
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.messageRepo.List(ctx, conversationID, limit, beforeSeq)
}
