package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"social_messenger/internal/domain"
	apperrors "social_messenger/pkg/errors"
	"social_messenger/pkg/logger"
)

func testLogger() logger.Logger {
	return logger.New("error")
}

// recordingBroadcaster копит разосланные события, чтобы тесты могли
// проверить fan-out без живых соединений
type recordingBroadcaster struct {
	mu      sync.Mutex
	toConv  []recordedEvent
	toUser  []recordedEvent
	evicted []eviction
}

type recordedEvent struct {
	Target uuid.UUID
	Event  Event
}

type eviction struct {
	ConversationID uuid.UUID
	UserID         uuid.UUID
}

func (b *recordingBroadcaster) ToConversation(conversationID uuid.UUID, event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toConv = append(b.toConv, recordedEvent{Target: conversationID, Event: event})
}

func (b *recordingBroadcaster) ToUser(userID uuid.UUID, event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toUser = append(b.toUser, recordedEvent{Target: userID, Event: event})
}

func (b *recordingBroadcaster) EvictFromConversation(conversationID, userID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evicted = append(b.evicted, eviction{ConversationID: conversationID, UserID: userID})
}

func (b *recordingBroadcaster) convEvents(eventType string) []recordedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []recordedEvent
	for _, e := range b.toConv {
		if e.Event.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// --- user repository ---

type fakeUserRepo struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*domain.User
	sessions map[uuid.UUID]*domain.UserSession
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:    make(map[uuid.UUID]*domain.User),
		sessions: make(map[uuid.UUID]*domain.UserSession),
	}
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return apperrors.ErrNotFound
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *fakeUserRepo) CreateSession(_ context.Context, session *domain.UserSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *session
	r.sessions[session.ID] = &cp
	return nil
}

func (r *fakeUserRepo) GetSessionByTokenHash(_ context.Context, tokenHash string) (*domain.UserSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.RefreshTokenHash == tokenHash {
			cp := *s
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeUserRepo) RevokeSession(_ context.Context, sessionID uuid.UUID, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return false, apperrors.ErrNotFound
	}
	if s.RevokedAt != nil {
		return false, nil
	}
	now := time.Now()
	s.RevokedAt = &now
	s.RevokedReason = &reason
	return true, nil
}

func (r *fakeUserRepo) RevokeFamily(_ context.Context, familyID uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, s := range r.sessions {
		if s.FamilyID == familyID && s.RevokedAt == nil {
			s.RevokedAt = &now
			s.RevokedReason = &reason
		}
	}
	return nil
}

func (r *fakeUserRepo) activeSessions(familyID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, s := range r.sessions {
		if s.FamilyID == familyID && s.RevokedAt == nil {
			count++
		}
	}
	return count
}

// --- conversation repository ---

type fakeConvRepo struct {
	mu      sync.Mutex
	convs   map[uuid.UUID]*domain.Conversation
	members map[uuid.UUID]map[uuid.UUID]*domain.ConversationMember
	// seq сообщений для проверки монотонности курсора
	msgSeq map[uuid.UUID]int64
}

func newFakeConvRepo() *fakeConvRepo {
	return &fakeConvRepo{
		convs:   make(map[uuid.UUID]*domain.Conversation),
		members: make(map[uuid.UUID]map[uuid.UUID]*domain.ConversationMember),
		msgSeq:  make(map[uuid.UUID]int64),
	}
}

func (r *fakeConvRepo) CreateWithMembers(_ context.Context, conv *domain.Conversation, members []*domain.ConversationMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convs[conv.ID] = conv
	byUser := make(map[uuid.UUID]*domain.ConversationMember)
	for _, m := range members {
		byUser[m.UserID] = m
	}
	r.members[conv.ID] = byUser
	return nil
}

func (r *fakeConvRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.convs[id]; ok {
		return c, nil
	}
	return nil, apperrors.ErrConversationNotFound
}

func (r *fakeConvRepo) ListForUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Conversation
	for convID, byUser := range r.members {
		if m, ok := byUser[userID]; ok && m.Active() {
			out = append(out, r.convs[convID])
		}
	}
	return out, nil
}

func (r *fakeConvRepo) FindDirectBetween(_ context.Context, a, b uuid.UUID) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for convID, conv := range r.convs {
		if conv.Kind != domain.ConversationDirect {
			continue
		}
		byUser := r.members[convID]
		if _, okA := byUser[a]; okA {
			if _, okB := byUser[b]; okB {
				return conv, nil
			}
		}
	}
	return nil, apperrors.ErrConversationNotFound
}

func (r *fakeConvRepo) UpdateMeta(_ context.Context, id uuid.UUID, name, avatarURL *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return apperrors.ErrConversationNotFound
	}
	if name != nil {
		conv.Name = name
	}
	if avatarURL != nil {
		conv.AvatarURL = avatarURL
	}
	return nil
}

func (r *fakeConvRepo) GetMember(_ context.Context, conversationID, userID uuid.UUID) (*domain.ConversationMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.members[conversationID][userID]; ok {
		return m, nil
	}
	return nil, apperrors.ErrNotAMember
}

func (r *fakeConvRepo) ListActiveMembers(_ context.Context, conversationID uuid.UUID) ([]*domain.ConversationMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ConversationMember
	for _, m := range r.members[conversationID] {
		if m.Active() {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeConvRepo) AddMember(_ context.Context, member *domain.ConversationMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byUser := r.members[member.ConversationID]
	if byUser == nil {
		byUser = make(map[uuid.UUID]*domain.ConversationMember)
		r.members[member.ConversationID] = byUser
	}
	// Повторное добавление ушедшего реактивирует строку
	if existing, ok := byUser[member.UserID]; ok {
		existing.LeftAt = nil
		existing.Role = member.Role
		existing.JoinedAt = member.JoinedAt
		return nil
	}
	byUser[member.UserID] = member
	return nil
}

func (r *fakeConvRepo) MarkLeft(_ context.Context, conversationID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[conversationID][userID]
	if !ok {
		return apperrors.ErrNotAMember
	}
	now := time.Now()
	m.LeftAt = &now
	return nil
}

func (r *fakeConvRepo) TransferAdmin(_ context.Context, conversationID, fromUserID, toUserID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	from, okFrom := r.members[conversationID][fromUserID]
	to, okTo := r.members[conversationID][toUserID]
	if !okFrom || !okTo || !to.Active() {
		return apperrors.ErrNotAMember
	}
	from.Role = domain.MemberRoleMember
	to.Role = domain.MemberRoleAdmin
	adminID := toUserID
	r.convs[conversationID].AdminID = &adminID
	return nil
}

func (r *fakeConvRepo) UpdateReadCursor(_ context.Context, conversationID, userID, messageID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[conversationID][userID]
	if !ok {
		return false, apperrors.ErrNotAMember
	}
	if m.LastReadMessageID != nil && r.msgSeq[messageID] <= r.msgSeq[*m.LastReadMessageID] {
		return false, nil
	}
	id := messageID
	now := time.Now()
	m.LastReadMessageID = &id
	m.LastReadAt = &now
	return true, nil
}

// --- message repository ---

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages map[uuid.UUID]*domain.Message
	convs    *fakeConvRepo
}

func newFakeMessageRepo(convs *fakeConvRepo) *fakeMessageRepo {
	return &fakeMessageRepo{
		messages: make(map[uuid.UUID]*domain.Message),
		convs:    convs,
	}
}

func (r *fakeMessageRepo) CreateWithPointer(_ context.Context, message *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs.convs[message.ConversationID]
	if !ok {
		return apperrors.ErrConversationNotFound
	}
	conv.LastSeq++
	message.Seq = conv.LastSeq
	cp := *message
	r.messages[message.ID] = &cp
	r.convs.msgSeq[message.ID] = message.Seq

	id := message.ID
	at := message.CreatedAt
	text := message.Preview()
	conv.LastMessageID = &id
	conv.LastMessageAt = &at
	conv.LastMessageText = &text
	return nil
}

func (r *fakeMessageRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.messages[id]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, apperrors.ErrMessageNotFound
}

func (r *fakeMessageRepo) UpdateContent(_ context.Context, message *domain.Message, refreshPreview bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[message.ID]; !ok {
		return apperrors.ErrMessageNotFound
	}
	cp := *message
	r.messages[message.ID] = &cp
	if refreshPreview {
		text := message.Preview()
		r.convs.convs[message.ConversationID].LastMessageText = &text
	}
	return nil
}

func (r *fakeMessageRepo) SoftDeleteWithPointer(_ context.Context, message *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.messages[message.ID]
	if !ok {
		return apperrors.ErrMessageNotFound
	}
	stored.IsDeleted = true
	stored.Content = nil
	stored.MediaURL = nil

	// Указатель беседы пересчитывается на последнее неудаленное сообщение
	conv := r.convs.convs[message.ConversationID]
	var latest *domain.Message
	for _, m := range r.messages {
		if m.ConversationID != message.ConversationID || m.IsDeleted {
			continue
		}
		if latest == nil || m.Seq > latest.Seq {
			latest = m
		}
	}
	if latest == nil {
		conv.LastMessageID = nil
		conv.LastMessageAt = nil
		conv.LastMessageText = nil
		return nil
	}
	id := latest.ID
	at := latest.CreatedAt
	text := latest.Preview()
	conv.LastMessageID = &id
	conv.LastMessageAt = &at
	conv.LastMessageText = &text
	return nil
}

func (r *fakeMessageRepo) List(_ context.Context, conversationID uuid.UUID, limit int, beforeSeq int64) ([]*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Message
	for _, m := range r.messages {
		if m.ConversationID != conversationID {
			continue
		}
		if beforeSeq > 0 && m.Seq >= beforeSeq {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- reaction repository ---

type fakeReactionRepo struct {
	mu        sync.Mutex
	reactions map[uuid.UUID]*domain.MessageReaction
}

func newFakeReactionRepo() *fakeReactionRepo {
	return &fakeReactionRepo{reactions: make(map[uuid.UUID]*domain.MessageReaction)}
}

func (r *fakeReactionRepo) Upsert(_ context.Context, reaction *domain.MessageReaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Уникальность по паре (message, user): id существующей строки сохраняется
	for _, existing := range r.reactions {
		if existing.MessageID == reaction.MessageID && existing.UserID == reaction.UserID {
			existing.Emoji = reaction.Emoji
			existing.CreatedAt = reaction.CreatedAt
			reaction.ID = existing.ID
			return nil
		}
	}
	cp := *reaction
	r.reactions[reaction.ID] = &cp
	return nil
}

func (r *fakeReactionRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.MessageReaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if re, ok := r.reactions[id]; ok {
		cp := *re
		return &cp, nil
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeReactionRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.reactions, id)
	return nil
}

func (r *fakeReactionRepo) ListForMessage(_ context.Context, messageID uuid.UUID) ([]*domain.MessageReaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.MessageReaction
	for _, re := range r.reactions {
		if re.MessageID == messageID {
			cp := *re
			out = append(out, &cp)
		}
	}
	return out, nil
}
