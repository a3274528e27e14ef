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

type MessageRepository interface {
	CreateWithPointer(ctx context.Context, message *domain.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	UpdateContent(ctx context.Context, message *domain.Message, refreshPreview bool) error
	SoftDeleteWithPointer(ctx context.Context, message *domain.Message) error
	List(ctx context.Context, conversationID uuid.UUID, limit int, beforeSeq int64) ([]*domain.Message, error)
}

type messageRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewMessageRepository(db *pgxpool.Pool, log logger.Logger) MessageRepository {
	return &messageRepository{db: db, log: log}
}

const messageColumns = `id, conversation_id, sender_id, seq, type, content, media_url,
	reply_to_id, is_edited, is_deleted, created_at, updated_at`

// CreateWithPointer пишет сообщение и денормализованный указатель беседы
// в одной транзакции: seq выдается из last_seq строки беседы под блокировкой,
// частичное применение невозможно
func (r *messageRepository) CreateWithPointer(ctx context.Context, message *domain.Message) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	seqQuery := `
		UPDATE conversations
		SET last_seq = last_seq + 1
		WHERE id = $1
		RETURNING last_seq
	`
	if err := tx.QueryRow(ctx, seqQuery, message.ConversationID).Scan(&message.Seq); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrConversationNotFound
		}
		r.log.Error("Failed to allocate message seq", "error", err)
		return err
	}

	insertQuery := `
		INSERT INTO messages (id, conversation_id, sender_id, seq, type, content, media_url, reply_to_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if _, err := tx.Exec(ctx, insertQuery,
		message.ID, message.ConversationID, message.SenderID, message.Seq, message.Type,
		message.Content, message.MediaURL, message.ReplyToID, message.CreatedAt, message.UpdatedAt,
	); err != nil {
		r.log.Error("Failed to create message", "error", err)
		return err
	}

	pointerQuery := `
		UPDATE conversations
		SET last_message_id = $2, last_message_at = $3, last_message_text = $4, updated_at = $3
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, pointerQuery,
		message.ConversationID, message.ID, message.CreatedAt, message.Preview(),
	); err != nil {
		r.log.Error("Failed to update last message pointer", "error", err)
		return err
	}

	return tx.Commit(ctx)
}

func (r *messageRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	message := &domain.Message{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&message.ID, &message.ConversationID, &message.SenderID, &message.Seq,
		&message.Type, &message.Content, &message.MediaURL, &message.ReplyToID,
		&message.IsEdited, &message.IsDeleted, &message.CreatedAt, &message.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrMessageNotFound
		}
		r.log.Error("Failed to get message", "error", err)
		return nil, err
	}

	return message, nil
}

func (r *messageRepository) UpdateContent(ctx context.Context, message *domain.Message, refreshPreview bool) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	message.UpdatedAt = time.Now()
	query := `
		UPDATE messages
		SET content = $2, is_edited = TRUE, updated_at = $3
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query, message.ID, message.Content, message.UpdatedAt); err != nil {
		r.log.Error("Failed to update message", "error", err)
		return err
	}

	if refreshPreview {
		preview := `
			UPDATE conversations
			SET last_message_text = $2, updated_at = $3
			WHERE id = $1 AND last_message_id = $4
		`
		if _, err := tx.Exec(ctx, preview,
			message.ConversationID, message.Preview(), message.UpdatedAt, message.ID,
		); err != nil {
			r.log.Error("Failed to refresh preview text", "error", err)
			return err
		}
	}

	return tx.Commit(ctx)
}

// SoftDeleteWithPointer очищает содержимое, не удаляя строку. Если удаленное
// сообщение было последним, указатель беседы пересчитывается по следующему
// свежему неудаленному сообщению (его может не быть)
func (r *messageRepository) SoftDeleteWithPointer(ctx context.Context, message *domain.Message) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	deleteQuery := `
		UPDATE messages
		SET content = NULL, media_url = NULL, is_deleted = TRUE, updated_at = $2
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, deleteQuery, message.ID, time.Now()); err != nil {
		r.log.Error("Failed to soft delete message", "error", err)
		return err
	}

	recompute := `
		UPDATE conversations c
		SET last_message_id = next.id,
			last_message_at = next.created_at,
			last_message_text = COALESCE(next.content, ''),
			updated_at = NOW()
		FROM (
			SELECT id, created_at, content
			FROM messages
			WHERE conversation_id = $1 AND is_deleted = FALSE
			ORDER BY seq DESC
			LIMIT 1
		) next
		WHERE c.id = $1 AND c.last_message_id = $2
	`
	tag, err := tx.Exec(ctx, recompute, message.ConversationID, message.ID)
	if err != nil {
		r.log.Error("Failed to recompute last message pointer", "error", err)
		return err
	}

	// Неудаленных сообщений не осталось — указатель обнуляется
	if tag.RowsAffected() == 0 {
		clear := `
			UPDATE conversations
			SET last_message_id = NULL, last_message_at = NULL, last_message_text = NULL, updated_at = NOW()
			WHERE id = $1 AND last_message_id = $2
				AND NOT EXISTS (
					SELECT 1 FROM messages WHERE conversation_id = $1 AND is_deleted = FALSE
				)
		`
		if _, err := tx.Exec(ctx, clear, message.ConversationID, message.ID); err != nil {
			r.log.Error("Failed to clear last message pointer", "error", err)
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *messageRepository) List(ctx context.Context, conversationID uuid.UUID, limit int, beforeSeq int64) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1 AND ($3 <= 0 OR seq < $3)
		ORDER BY seq DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, conversationID, limit, beforeSeq)
	if err != nil {
		r.log.Error("Failed to list messages", "error", err)
		return nil, err
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		message := &domain.Message{}
		if err := rows.Scan(
			&message.ID, &message.ConversationID, &message.SenderID, &message.Seq,
			&message.Type, &message.Content, &message.MediaURL, &message.ReplyToID,
			&message.IsEdited, &message.IsDeleted, &message.CreatedAt, &message.UpdatedAt,
		); err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, err
		}
		messages = append(messages, message)
	}

	return messages, nil
}
