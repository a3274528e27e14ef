package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"social_messenger/internal/domain"
	"social_messenger/pkg/logger"
)

// PresenceRepository зеркалирует статус пользователя в Redis с TTL,
// чтобы request-path мог отвечать на online-запросы без обращения к хабу
type PresenceRepository interface {
	SetStatus(ctx context.Context, userID uuid.UUID, status domain.PresenceStatus, ttl time.Duration) error
	GetStatus(ctx context.Context, userID uuid.UUID) (domain.PresenceStatus, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

type presenceRepository struct {
	redis *redis.Client
	log   logger.Logger
}

func NewPresenceRepository(redis *redis.Client, log logger.Logger) PresenceRepository {
	return &presenceRepository{redis: redis, log: log}
}

func presenceKey(userID uuid.UUID) string {
	return "presence:" + userID.String()
}

func (r *presenceRepository) SetStatus(ctx context.Context, userID uuid.UUID, status domain.PresenceStatus, ttl time.Duration) error {
	if err := r.redis.Set(ctx, presenceKey(userID), string(status), ttl).Err(); err != nil {
		r.log.Error("Failed to set presence status", "error", err)
		return err
	}
	return nil
}

func (r *presenceRepository) GetStatus(ctx context.Context, userID uuid.UUID) (domain.PresenceStatus, error) {
	val, err := r.redis.Get(ctx, presenceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.StatusOffline, nil
	}
	if err != nil {
		r.log.Error("Failed to get presence status", "error", err)
		return domain.StatusOffline, err
	}
	return domain.PresenceStatus(val), nil
}

func (r *presenceRepository) Clear(ctx context.Context, userID uuid.UUID) error {
	if err := r.redis.Del(ctx, presenceKey(userID)).Err(); err != nil {
		r.log.Error("Failed to clear presence status", "error", err)
		return err
	}
	return nil
}
