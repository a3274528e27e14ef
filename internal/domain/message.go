package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	MessageTypeText      = "TEXT"
	MessageTypeImage     = "IMAGE"
	MessageTypeVideo     = "VIDEO"
	MessageTypeAudio     = "AUDIO"
	MessageTypeLocation  = "LOCATION"
	MessageTypePostShare = "POST_SHARE"
)

func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeVideo,
		MessageTypeAudio, MessageTypeLocation, MessageTypePostShare:
		return true
	}
	return false
}

type Message struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	SenderID       uuid.UUID  `json:"sender_id"`
	Seq            int64      `json:"seq"`
	Type           string     `json:"type"`
	Content        *string    `json:"content,omitempty"`
	MediaURL       *string    `json:"media_url,omitempty"`
	ReplyToID      *uuid.UUID `json:"reply_to_id,omitempty"`
	IsEdited       bool       `json:"is_edited"`
	IsDeleted      bool       `json:"is_deleted"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Preview — текст для денормализованного указателя беседы
func (m *Message) Preview() string {
	if m.IsDeleted || m.Content == nil {
		return ""
	}
	return *m.Content
}

type MessageReaction struct {
	ID        uuid.UUID `json:"id"`
	MessageID uuid.UUID `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}
