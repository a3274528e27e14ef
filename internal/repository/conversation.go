package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"social_messenger/internal/domain"
	apperrors "social_messenger/pkg/errors"
	"social_messenger/pkg/logger"
)

type ConversationRepository interface {
	CreateWithMembers(ctx context.Context, conv *domain.Conversation, members []*domain.ConversationMember) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Conversation, error)
	FindDirectBetween(ctx context.Context, a, b uuid.UUID) (*domain.Conversation, error)
	UpdateMeta(ctx context.Context, id uuid.UUID, name, avatarURL *string) error

	GetMember(ctx context.Context, conversationID, userID uuid.UUID) (*domain.ConversationMember, error)
	ListActiveMembers(ctx context.Context, conversationID uuid.UUID) ([]*domain.ConversationMember, error)
	AddMember(ctx context.Context, member *domain.ConversationMember) error
	MarkLeft(ctx context.Context, conversationID, userID uuid.UUID) error
	TransferAdmin(ctx context.Context, conversationID, fromUserID, toUserID uuid.UUID) error
	UpdateReadCursor(ctx context.Context, conversationID, userID, messageID uuid.UUID) (bool, error)
}

type conversationRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewConversationRepository(db *pgxpool.Pool, log logger.Logger) ConversationRepository {
	return &conversationRepository{db: db, log: log}
}

const conversationColumns = `id, kind, name, avatar_url, admin_id,
	last_message_id, last_message_at, last_message_text, last_seq, created_at, updated_at`

// CreateWithMembers создает беседу и стартовый состав в одной транзакции
func (r *conversationRepository) CreateWithMembers(ctx context.Context, conv *domain.Conversation, members []*domain.ConversationMember) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO conversations (id, kind, name, avatar_url, admin_id, last_seq, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7)
	`
	if _, err := tx.Exec(ctx, query,
		conv.ID, conv.Kind, conv.Name, conv.AvatarURL, conv.AdminID, conv.CreatedAt, conv.UpdatedAt,
	); err != nil {
		r.log.Error("Failed to create conversation", "error", err)
		return err
	}

	memberQuery := `
		INSERT INTO conversation_members (id, conversation_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, m := range members {
		if _, err := tx.Exec(ctx, memberQuery, m.ID, m.ConversationID, m.UserID, m.Role, m.JoinedAt); err != nil {
			r.log.Error("Failed to add initial member", "error", err)
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *conversationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`

	conv := &domain.Conversation{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&conv.ID, &conv.Kind, &conv.Name, &conv.AvatarURL, &conv.AdminID,
		&conv.LastMessageID, &conv.LastMessageAt, &conv.LastMessageText, &conv.LastSeq,
		&conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrConversationNotFound
		}
		r.log.Error("Failed to get conversation", "error", err)
		return nil, err
	}

	return conv, nil
}

func (r *conversationRepository) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Conversation, error) {
	query := `
		SELECT c.id, c.kind, c.name, c.avatar_url, c.admin_id,
			c.last_message_id, c.last_message_at, c.last_message_text, c.last_seq, c.created_at, c.updated_at
		FROM conversations c
		JOIN conversation_members m ON m.conversation_id = c.id
		WHERE m.user_id = $1 AND m.left_at IS NULL
		ORDER BY c.last_message_at DESC NULLS LAST
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		r.log.Error("Failed to list conversations", "error", err)
		return nil, err
	}
	defer rows.Close()

	var conversations []*domain.Conversation
	for rows.Next() {
		conv := &domain.Conversation{}
		if err := rows.Scan(
			&conv.ID, &conv.Kind, &conv.Name, &conv.AvatarURL, &conv.AdminID,
			&conv.LastMessageID, &conv.LastMessageAt, &conv.LastMessageText, &conv.LastSeq,
			&conv.CreatedAt, &conv.UpdatedAt,
		); err != nil {
			r.log.Error("Failed to scan conversation", "error", err)
			return nil, err
		}
		conversations = append(conversations, conv)
	}

	return conversations, nil
}

// FindDirectBetween ищет существующий DIRECT между двумя пользователями,
// чтобы не плодить дубликаты
func (r *conversationRepository) FindDirectBetween(ctx context.Context, a, b uuid.UUID) (*domain.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE kind = 'DIRECT' AND id IN (
			SELECT m1.conversation_id
			FROM conversation_members m1
			JOIN conversation_members m2 ON m1.conversation_id = m2.conversation_id
			WHERE m1.user_id = $1 AND m2.user_id = $2
		)
		LIMIT 1
	`

	conv := &domain.Conversation{}
	err := r.db.QueryRow(ctx, query, a, b).Scan(
		&conv.ID, &conv.Kind, &conv.Name, &conv.AvatarURL, &conv.AdminID,
		&conv.LastMessageID, &conv.LastMessageAt, &conv.LastMessageText, &conv.LastSeq,
		&conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrConversationNotFound
		}
		r.log.Error("Failed to find direct conversation", "error", err)
		return nil, err
	}

	return conv, nil
}

func (r *conversationRepository) UpdateMeta(ctx context.Context, id uuid.UUID, name, avatarURL *string) error {
	query := `
		UPDATE conversations
		SET name = COALESCE($2, name), avatar_url = COALESCE($3, avatar_url), updated_at = $4
		WHERE id = $1
	`

	_, err := r.db.Exec(ctx, query, id, name, avatarURL, time.Now())
	if err != nil {
		r.log.Error("Failed to update conversation meta", "error", err)
		return err
	}

	return nil
}

func (r *conversationRepository) GetMember(ctx context.Context, conversationID, userID uuid.UUID) (*domain.ConversationMember, error) {
	query := `
		SELECT id, conversation_id, user_id, role, joined_at, left_at, last_read_message_id, last_read_at
		FROM conversation_members
		WHERE conversation_id = $1 AND user_id = $2
	`

	member := &domain.ConversationMember{}
	err := r.db.QueryRow(ctx, query, conversationID, userID).Scan(
		&member.ID, &member.ConversationID, &member.UserID, &member.Role,
		&member.JoinedAt, &member.LeftAt, &member.LastReadMessageID, &member.LastReadAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		r.log.Error("Failed to get member", "error", err)
		return nil, err
	}

	return member, nil
}

func (r *conversationRepository) ListActiveMembers(ctx context.Context, conversationID uuid.UUID) ([]*domain.ConversationMember, error) {
	query := `
		SELECT id, conversation_id, user_id, role, joined_at, left_at, last_read_message_id, last_read_at
		FROM conversation_members
		WHERE conversation_id = $1 AND left_at IS NULL
	`

	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		r.log.Error("Failed to list members", "error", err)
		return nil, err
	}
	defer rows.Close()

	var members []*domain.ConversationMember
	for rows.Next() {
		member := &domain.ConversationMember{}
		if err := rows.Scan(
			&member.ID, &member.ConversationID, &member.UserID, &member.Role,
			&member.JoinedAt, &member.LeftAt, &member.LastReadMessageID, &member.LastReadAt,
		); err != nil {
			r.log.Error("Failed to scan member", "error", err)
			return nil, err
		}
		members = append(members, member)
	}

	return members, nil
}

// AddMember — повторное добавление ранее вышедшего пользователя
// реактивирует его строку вместо вставки новой
func (r *conversationRepository) AddMember(ctx context.Context, member *domain.ConversationMember) error {
	query := `
		INSERT INTO conversation_members (id, conversation_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (conversation_id, user_id)
		DO UPDATE SET left_at = NULL, role = EXCLUDED.role, joined_at = EXCLUDED.joined_at
	`

	_, err := r.db.Exec(ctx, query,
		member.ID, member.ConversationID, member.UserID, member.Role, member.JoinedAt,
	)
	if err != nil {
		r.log.Error("Failed to add member", "error", err)
		return err
	}

	return nil
}

func (r *conversationRepository) MarkLeft(ctx context.Context, conversationID, userID uuid.UUID) error {
	query := `
		UPDATE conversation_members
		SET left_at = $3
		WHERE conversation_id = $1 AND user_id = $2 AND left_at IS NULL
	`

	_, err := r.db.Exec(ctx, query, conversationID, userID, time.Now())
	if err != nil {
		r.log.Error("Failed to mark member left", "error", err)
		return err
	}

	return nil
}

// TransferAdmin переносит роль между двумя строками состава и указатель
// admin_id на беседе одной транзакцией
func (r *conversationRepository) TransferAdmin(ctx context.Context, conversationID, fromUserID, toUserID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	demote := `
		UPDATE conversation_members SET role = 'MEMBER'
		WHERE conversation_id = $1 AND user_id = $2 AND left_at IS NULL
	`
	if _, err := tx.Exec(ctx, demote, conversationID, fromUserID); err != nil {
		r.log.Error("Failed to demote admin", "error", err)
		return err
	}

	promote := `
		UPDATE conversation_members SET role = 'ADMIN'
		WHERE conversation_id = $1 AND user_id = $2 AND left_at IS NULL
	`
	tag, err := tx.Exec(ctx, promote, conversationID, toUserID)
	if err != nil {
		r.log.Error("Failed to promote member", "error", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotAMember
	}

	pointer := `UPDATE conversations SET admin_id = $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.Exec(ctx, pointer, conversationID, toUserID, time.Now()); err != nil {
		r.log.Error("Failed to update admin pointer", "error", err)
		return err
	}

	return tx.Commit(ctx)
}

// UpdateReadCursor сдвигает курсор только вперед: обновление на более старое
// сообщение не проходит WHERE и возвращает false
func (r *conversationRepository) UpdateReadCursor(ctx context.Context, conversationID, userID, messageID uuid.UUID) (bool, error) {
	query := `
		UPDATE conversation_members m
		SET last_read_message_id = $3, last_read_at = $4
		FROM messages target
		WHERE m.conversation_id = $1 AND m.user_id = $2 AND m.left_at IS NULL
			AND target.id = $3 AND target.conversation_id = $1
			AND (m.last_read_message_id IS NULL OR target.seq > (
				SELECT prev.seq FROM messages prev WHERE prev.id = m.last_read_message_id
			))
	`

	tag, err := r.db.Exec(ctx, query, conversationID, userID, messageID, time.Now())
	if err != nil {
		r.log.Error("Failed to update read cursor", "error", err)
		return false, err
	}

	return tag.RowsAffected() > 0, nil
}
