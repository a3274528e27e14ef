package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"social_messenger/internal/domain"
	"social_messenger/internal/repository"
	apperrors "social_messenger/pkg/errors"
	"social_messenger/pkg/logger"
)

type ReactionService interface {
	Add(ctx context.Context, messageID, userID uuid.UUID, emoji string) (*domain.MessageReaction, error)
	Remove(ctx context.Context, reactionID, requesterID uuid.UUID) error
	ListForMessage(ctx context.Context, messageID, requesterID uuid.UUID) ([]*domain.MessageReaction, error)
}

type reactionService struct {
	reactionRepo repository.ReactionRepository
	messageRepo  repository.MessageRepository
	convRepo     repository.ConversationRepository
	broadcast    Broadcaster
	log          logger.Logger
}

func NewReactionService(reactionRepo repository.ReactionRepository, messageRepo repository.MessageRepository, convRepo repository.ConversationRepository, broadcast Broadcaster, log logger.Logger) ReactionService {
	return &reactionService{
		reactionRepo: reactionRepo,
		messageRepo:  messageRepo,
		convRepo:     convRepo,
		broadcast:    broadcast,
		log:          log,
	}
}

// Add: не больше одной реакции на пару (user, message) — повторное
// добавление заменяет прежний emoji
func (s *reactionService) Add(ctx context.Context, messageID, userID uuid.UUID, emoji string) (*domain.MessageReaction, error) {
	if emoji == "" {
		return nil, errors.New("emoji is required")
	}

	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.IsDeleted {
		return nil, apperrors.ErrMessageNotFound
	}

	member, err := s.convRepo.GetMember(ctx, message.ConversationID, userID)
	if err != nil || !member.Active() {
		return nil, apperrors.ErrNotAMember
	}

	reaction := &domain.MessageReaction{
		ID:        uuid.New(),
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: time.Now(),
	}
	if err := s.reactionRepo.Upsert(ctx, reaction); err != nil {
		return nil, err
	}

	s.broadcast.ToConversation(message.ConversationID, Event{
		Type: EventReactionAdded,
		Data: reaction,
	})

	return reaction, nil
}

// Remove: снять реакцию может только ее владелец
func (s *reactionService) Remove(ctx context.Context, reactionID, requesterID uuid.UUID) error {
	reaction, err := s.reactionRepo.GetByID(ctx, reactionID)
	if err != nil {
		return err
	}
	if reaction.UserID != requesterID {
		return apperrors.ErrNotOwner
	}

	message, err := s.messageRepo.GetByID(ctx, reaction.MessageID)
	if err != nil {
		return err
	}

	if err := s.reactionRepo.Delete(ctx, reactionID); err != nil {
		return err
	}

	s.broadcast.ToConversation(message.ConversationID, Event{
		Type: EventReactionRemoved,
		Data: map[string]any{
			"conversation_id": message.ConversationID,
			"message_id":      reaction.MessageID,
			"reaction_id":     reactionID,
			"user_id":         requesterID,
		},
	})

	return nil
}

func (s *reactionService) ListForMessage(ctx context.Context, messageID, requesterID uuid.UUID) ([]*domain.MessageReaction, error) {
	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}

	member, err := s.convRepo.GetMember(ctx, message.ConversationID, requesterID)
	if err != nil || !member.Active() {
		return nil, apperrors.ErrNotAMember
	}

	return s.reactionRepo.ListForMessage(ctx, messageID)
}
