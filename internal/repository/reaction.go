package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"social_messenger/internal/domain"
	apperrors "social_messenger/pkg/errors"
	"social_messenger/pkg/logger"
)

type ReactionRepository interface {
	Upsert(ctx context.Context, reaction *domain.MessageReaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.MessageReaction, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListForMessage(ctx context.Context, messageID uuid.UUID) ([]*domain.MessageReaction, error)
}

type reactionRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewReactionRepository(db *pgxpool.Pool, log logger.Logger) ReactionRepository {
	return &reactionRepository{db: db, log: log}
}

// Upsert — одна реакция на пару (message, user): повторное добавление
// заменяет emoji, id существующей строки сохраняется
func (r *reactionRepository) Upsert(ctx context.Context, reaction *domain.MessageReaction) error {
	query := `
		INSERT INTO message_reactions (id, message_id, user_id, emoji, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (message_id, user_id)
		DO UPDATE SET emoji = EXCLUDED.emoji, created_at = EXCLUDED.created_at
		RETURNING id
	`

	err := r.db.QueryRow(ctx, query,
		reaction.ID, reaction.MessageID, reaction.UserID, reaction.Emoji, reaction.CreatedAt,
	).Scan(&reaction.ID)
	if err != nil {
		r.log.Error("Failed to upsert reaction", "error", err)
		return err
	}

	return nil
}

func (r *reactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.MessageReaction, error) {
	query := `
		SELECT id, message_id, user_id, emoji, created_at
		FROM message_reactions
		WHERE id = $1
	`

	reaction := &domain.MessageReaction{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&reaction.ID, &reaction.MessageID, &reaction.UserID, &reaction.Emoji, &reaction.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		r.log.Error("Failed to get reaction", "error", err)
		return nil, err
	}

	return reaction, nil
}

func (r *reactionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM message_reactions WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id)
	if err != nil {
		r.log.Error("Failed to delete reaction", "error", err)
		return err
	}

	return nil
}

func (r *reactionRepository) ListForMessage(ctx context.Context, messageID uuid.UUID) ([]*domain.MessageReaction, error) {
	query := `
		SELECT id, message_id, user_id, emoji, created_at
		FROM message_reactions
		WHERE message_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.Query(ctx, query, messageID)
	if err != nil {
		r.log.Error("Failed to list reactions", "error", err)
		return nil, err
	}
	defer rows.Close()

	var reactions []*domain.MessageReaction
	for rows.Next() {
		reaction := &domain.MessageReaction{}
		if err := rows.Scan(
			&reaction.ID, &reaction.MessageID, &reaction.UserID, &reaction.Emoji, &reaction.CreatedAt,
		); err != nil {
			r.log.Error("Failed to scan reaction", "error", err)
			return nil, err
		}
		reactions = append(reactions, reaction)
	}

	return reactions, nil
}
