package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	ConversationDirect = "DIRECT"
	ConversationGroup  = "GROUP"
)

const (
	MemberRoleMember = "MEMBER"
	MemberRoleAdmin  = "ADMIN"
)

type Conversation struct {
	ID              uuid.UUID  `json:"id"`
	Kind            string     `json:"kind"`
	Name            *string    `json:"name,omitempty"`
	AvatarURL       *string    `json:"avatar_url,omitempty"`
	AdminID         *uuid.UUID `json:"admin_id,omitempty"`
	LastMessageID   *uuid.UUID `json:"last_message_id,omitempty"`
	LastMessageAt   *time.Time `json:"last_message_at,omitempty"`
	LastMessageText *string    `json:"last_message_text,omitempty"`
	LastSeq         int64      `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ConversationMember — членство никогда не удаляется физически,
// выход помечается через LeftAt
type ConversationMember struct {
	ID                uuid.UUID  `json:"id"`
	ConversationID    uuid.UUID  `json:"conversation_id"`
	UserID            uuid.UUID  `json:"user_id"`
	Role              string     `json:"role"`
	JoinedAt          time.Time  `json:"joined_at"`
	LeftAt            *time.Time `json:"left_at,omitempty"`
	LastReadMessageID *uuid.UUID `json:"last_read_message_id,omitempty"`
	LastReadAt        *time.Time `json:"last_read_at,omitempty"`
}

// Active — пользователь активен в беседе, пока LeftAt не установлен
func (m *ConversationMember) Active() bool {
	return m.LeftAt == nil
}

func (m *ConversationMember) IsAdmin() bool {
	return m.Role == MemberRoleAdmin && m.Active()
}
