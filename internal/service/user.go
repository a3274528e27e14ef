package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"social_messenger/internal/domain"
	"social_messenger/internal/repository"
	"social_messenger/pkg/logger"
)

type UserService interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, displayName, bio, avatarURL *string, isPrivate *bool) (*domain.User, error)
	PresenceOf(ctx context.Context, id uuid.UUID) (domain.PresenceStatus, error)
}

type userService struct {
	userRepo     repository.UserRepository
	presenceRepo repository.PresenceRepository
	log          logger.Logger
}

func NewUserService(userRepo repository.UserRepository, presenceRepo repository.PresenceRepository, log logger.Logger) UserService {
	return &userService{
		userRepo:     userRepo,
		presenceRepo: presenceRepo,
		log:          log,
	}
}

func (s *userService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *userService) UpdateProfile(ctx context.Context, id uuid.UUID, displayName, bio, avatarURL *string, isPrivate *bool) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if displayName != nil {
		name := strings.TrimSpace(*displayName)
		if name == "" {
			return nil, errors.New("display name cannot be empty")
		}
		if len(name) > 100 {
			return nil, errors.New("display name is too long (max 100 characters)")
		}
		user.DisplayName = name
	}
	if bio != nil {
		user.Bio = bio
	}
	if avatarURL != nil {
		user.AvatarURL = avatarURL
	}
	if isPrivate != nil {
		user.IsPrivate = *isPrivate
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}

	user.PasswordHash = ""
	return user, nil
}

// PresenceOf отвечает по зеркалу в Redis, не трогая хаб
func (s *userService) PresenceOf(ctx context.Context, id uuid.UUID) (domain.PresenceStatus, error) {
	return s.presenceRepo.GetStatus(ctx, id)
}
