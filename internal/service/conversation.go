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

type ConversationService interface {
	CreateDirect(ctx context.Context, creatorID, otherUserID uuid.UUID) (*domain.Conversation, error)
	CreateGroup(ctx context.Context, creatorID uuid.UUID, name string, memberIDs []uuid.UUID) (*domain.Conversation, error)
	GetForUser(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Conversation, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Conversation, error)
	UpdateMeta(ctx context.Context, conversationID, requesterID uuid.UUID, name, avatarURL *string) error
	AddMember(ctx context.Context, conversationID, requesterID, newUserID uuid.UUID) error
	RemoveMember(ctx context.Context, conversationID, requesterID, targetUserID uuid.UUID) error
	Leave(ctx context.Context, conversationID, userID uuid.UUID) error
	TransferAdmin(ctx context.Context, conversationID, requesterID, toUserID uuid.UUID) error
	MarkRead(ctx context.Context, conversationID, userID, messageID uuid.UUID) error
	EnsureActiveMember(ctx context.Context, conversationID, userID uuid.UUID) error
}

type conversationService struct {
	convRepo  repository.ConversationRepository
	userRepo  repository.UserRepository
	broadcast Broadcaster
	log       logger.Logger
}

func NewConversationService(convRepo repository.ConversationRepository, userRepo repository.UserRepository, broadcast Broadcaster, log logger.Logger) ConversationService {
	return &conversationService{
		convRepo:  convRepo,
		userRepo:  userRepo,
		broadcast: broadcast,
		log:       log,
	}
}

// CreateDirect — ровно два участника, без понятия админа. Существующий
// DIRECT между той же парой переиспользуется.
func (s *conversationService) CreateDirect(ctx context.Context, creatorID, otherUserID uuid.UUID) (*domain.Conversation, error) {
	if creatorID == otherUserID {
		return nil, errors.New("cannot start a direct conversation with yourself")
	}

	if _, err := s.userRepo.GetByID(ctx, otherUserID); err != nil {
		return nil, apperrors.ErrNotFound
	}

	if existing, err := s.convRepo.FindDirectBetween(ctx, creatorID, otherUserID); err == nil {
		// Поиск не фильтрует по left_at: вышедший участник при повторном
		// создании возвращается в тот же DIRECT, а не получает мертвую беседу
		for _, userID := range []uuid.UUID{creatorID, otherUserID} {
			if err := s.reactivateIfLeft(ctx, existing.ID, userID); err != nil {
				return nil, err
			}
		}
		return existing, nil
	} else if !errors.Is(err, apperrors.ErrConversationNotFound) {
		return nil, err
	}

	now := time.Now()
	conv := &domain.Conversation{
		ID:        uuid.New(),
		Kind:      domain.ConversationDirect,
		CreatedAt: now,
		UpdatedAt: now,
	}

	members := []*domain.ConversationMember{
		{ID: uuid.New(), ConversationID: conv.ID, UserID: creatorID, Role: domain.MemberRoleMember, JoinedAt: now},
		{ID: uuid.New(), ConversationID: conv.ID, UserID: otherUserID, Role: domain.MemberRoleMember, JoinedAt: now},
	}

	if err := s.convRepo.CreateWithMembers(ctx, conv, members); err != nil {
		return nil, err
	}

	return conv, nil
}

func (s *conversationService) CreateGroup(ctx context.Context, creatorID uuid.UUID, name string, memberIDs []uuid.UUID) (*domain.Conversation, error) {
	if name == "" {
		return nil, errors.New("group name is required")
	}

	now := time.Now()
	conv := &domain.Conversation{
		ID:        uuid.New(),
		Kind:      domain.ConversationGroup,
		Name:      &name,
		AdminID:   &creatorID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	members := []*domain.ConversationMember{
		{ID: uuid.New(), ConversationID: conv.ID, UserID: creatorID, Role: domain.MemberRoleAdmin, JoinedAt: now},
	}
	for _, id := range memberIDs {
		if id == creatorID {
			continue
		}
		members = append(members, &domain.ConversationMember{
			ID: uuid.New(), ConversationID: conv.ID, UserID: id,
			Role: domain.MemberRoleMember, JoinedAt: now,
		})
	}

	if err := s.convRepo.CreateWithMembers(ctx, conv, members); err != nil {
		return nil, err
	}

	return conv, nil
}

func (s *conversationService) GetForUser(ctx context.Context, conversationID, userID uuid.UUID) (*domain.Conversation, error) {
	if err := s.EnsureActiveMember(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.convRepo.GetByID(ctx, conversationID)
}

func (s *conversationService) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Conversation, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.convRepo.ListForUser(ctx, userID, limit, offset)
}

// UpdateMeta: переименование и смена аватара — только админ группы
func (s *conversationService) UpdateMeta(ctx context.Context, conversationID, requesterID uuid.UUID, name, avatarURL *string) error {
	if err := s.ensureGroupAdmin(ctx, conversationID, requesterID); err != nil {
		return err
	}

	if err := s.convRepo.UpdateMeta(ctx, conversationID, name, avatarURL); err != nil {
		return err
	}

	s.broadcast.ToConversation(conversationID, Event{
		Type: EventConversationMeta,
		Data: map[string]any{
			"conversation_id": conversationID,
			"name":            name,
			"avatar_url":      avatarURL,
		},
	})
	return nil
}

func (s *conversationService) AddMember(ctx context.Context, conversationID, requesterID, newUserID uuid.UUID) error {
	if err := s.ensureGroupAdmin(ctx, conversationID, requesterID); err != nil {
		return err
	}

	if _, err := s.userRepo.GetByID(ctx, newUserID); err != nil {
		return apperrors.ErrNotFound
	}

	if member, err := s.convRepo.GetMember(ctx, conversationID, newUserID); err == nil && member.Active() {
		return apperrors.ErrConflict
	}

	member := &domain.ConversationMember{
		ID:             uuid.New(),
		ConversationID: conversationID,
		UserID:         newUserID,
		Role:           domain.MemberRoleMember,
		JoinedAt:       time.Now(),
	}
	if err := s.convRepo.AddMember(ctx, member); err != nil {
		return err
	}

	s.broadcast.ToConversation(conversationID, Event{
		Type: EventMemberAdded,
		Data: map[string]any{
			"conversation_id": conversationID,
			"user_id":         newUserID,
			"added_by":        requesterID,
		},
	})
	return nil
}

// RemoveMember помечает выход и одновременно снимает живые подписки
// удаленного пользователя, чтобы события беседы к нему больше не шли
func (s *conversationService) RemoveMember(ctx context.Context, conversationID, requesterID, targetUserID uuid.UUID) error {
	if err := s.ensureGroupAdmin(ctx, conversationID, requesterID); err != nil {
		return err
	}
	if requesterID == targetUserID {
		return errors.New("admin cannot remove themselves, transfer admin first")
	}

	member, err := s.convRepo.GetMember(ctx, conversationID, targetUserID)
	if err != nil || !member.Active() {
		return apperrors.ErrNotAMember
	}

	if err := s.convRepo.MarkLeft(ctx, conversationID, targetUserID); err != nil {
		return err
	}

	s.broadcast.EvictFromConversation(conversationID, targetUserID)
	s.broadcast.ToConversation(conversationID, Event{
		Type: EventMemberRemoved,
		Data: map[string]any{
			"conversation_id": conversationID,
			"user_id":         targetUserID,
			"removed_by":      requesterID,
		},
	})
	s.broadcast.ToUser(targetUserID, Event{
		Type: EventMemberRemoved,
		Data: map[string]any{"conversation_id": conversationID, "user_id": targetUserID},
	})
	return nil
}

func (s *conversationService) Leave(ctx context.Context, conversationID, userID uuid.UUID) error {
	member, err := s.convRepo.GetMember(ctx, conversationID, userID)
	if err != nil || !member.Active() {
		return apperrors.ErrNotAMember
	}

	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.Kind == domain.ConversationGroup && member.IsAdmin() {
		return errors.New("admin must transfer the role before leaving")
	}

	if err := s.convRepo.MarkLeft(ctx, conversationID, userID); err != nil {
		return err
	}

	s.broadcast.EvictFromConversation(conversationID, userID)
	s.broadcast.ToConversation(conversationID, Event{
		Type: EventMemberRemoved,
		Data: map[string]any{"conversation_id": conversationID, "user_id": userID},
	})
	return nil
}

func (s *conversationService) TransferAdmin(ctx context.Context, conversationID, requesterID, toUserID uuid.UUID) error {
	if err := s.ensureGroupAdmin(ctx, conversationID, requesterID); err != nil {
		return err
	}

	target, err := s.convRepo.GetMember(ctx, conversationID, toUserID)
	if err != nil || !target.Active() {
		return apperrors.ErrNotAMember
	}

	if err := s.convRepo.TransferAdmin(ctx, conversationID, requesterID, toUserID); err != nil {
		return err
	}

	s.broadcast.ToConversation(conversationID, Event{
		Type: EventAdminTransferred,
		Data: map[string]any{
			"conversation_id": conversationID,
			"from_user_id":    requesterID,
			"to_user_id":      toUserID,
		},
	})
	return nil
}

// MarkRead — курсор монотонен: сдвиг назад молча игнорируется
func (s *conversationService) MarkRead(ctx context.Context, conversationID, userID, messageID uuid.UUID) error {
	if err := s.EnsureActiveMember(ctx, conversationID, userID); err != nil {
		return err
	}

	moved, err := s.convRepo.UpdateReadCursor(ctx, conversationID, userID, messageID)
	if err != nil {
		return err
	}
	if !moved {
		return nil
	}

	s.broadcast.ToConversation(conversationID, Event{
		Type: EventMessageRead,
		Data: map[string]any{
			"conversation_id": conversationID,
			"user_id":         userID,
			"message_id":      messageID,
		},
	})
	return nil
}

// reactivateIfLeft снимает отметку выхода: репозиторный AddMember
// переиспользует существующую строку членства через ON CONFLICT
func (s *conversationService) reactivateIfLeft(ctx context.Context, conversationID, userID uuid.UUID) error {
	member, err := s.convRepo.GetMember(ctx, conversationID, userID)
	if err != nil || member.Active() {
		return err
	}
	return s.convRepo.AddMember(ctx, &domain.ConversationMember{
		ID:             uuid.New(),
		ConversationID: conversationID,
		UserID:         userID,
		Role:           domain.MemberRoleMember,
		JoinedAt:       time.Now(),
	})
}

func (s *conversationService) EnsureActiveMember(ctx context.Context, conversationID, userID uuid.UUID) error {
	member, err := s.convRepo.GetMember(ctx, conversationID, userID)
	if err != nil || !member.Active() {
		return apperrors.ErrNotAMember
	}
	return nil
}

func (s *conversationService) ensureGroupAdmin(ctx context.Context, conversationID, requesterID uuid.UUID) error {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.Kind != domain.ConversationGroup {
		return apperrors.ErrForbidden
	}

	member, err := s.convRepo.GetMember(ctx, conversationID, requesterID)
	if err != nil || !member.Active() {
		return apperrors.ErrNotAMember
	}
	if !member.IsAdmin() {
		return apperrors.ErrNotAdmin
	}
	return nil
}
