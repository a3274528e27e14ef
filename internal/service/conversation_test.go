package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social_messenger/internal/domain"
	apperrors "social_messenger/pkg/errors"
)

type conversationFixture struct {
	svc       ConversationService
	convRepo  *fakeConvRepo
	userRepo  *fakeUserRepo
	broadcast *recordingBroadcaster

	alice uuid.UUID
	bob   uuid.UUID
	carol uuid.UUID
}

func newConversationFixture(t *testing.T) *conversationFixture {
	t.Helper()
	convRepo := newFakeConvRepo()
	userRepo := newFakeUserRepo()
	broadcast := &recordingBroadcaster{}

	f := &conversationFixture{
		svc:       NewConversationService(convRepo, userRepo, broadcast, testLogger()),
		convRepo:  convRepo,
		userRepo:  userRepo,
		broadcast: broadcast,
		alice:     uuid.New(),
		bob:       uuid.New(),
		carol:     uuid.New(),
	}

	ctx := context.Background()
	for name, id := range map[string]uuid.UUID{"alice": f.alice, "bob": f.bob, "carol": f.carol} {
		require.NoError(t, userRepo.Create(ctx, &domain.User{
			ID: id, Username: name, Email: name + "@example.com", DisplayName: name,
			CreatedAt: time.Now(), UpdatedAt: time.Now(),
		}))
	}
	return f
}

func (f *conversationFixture) group(t *testing.T, members ...uuid.UUID) *domain.Conversation {
	t.Helper()
	conv, err := f.svc.CreateGroup(context.Background(), f.alice, "team", members)
	require.NoError(t, err)
	return conv
}

func TestCreateDirect(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateDirect(ctx, f.alice, f.alice)
	assert.Error(t, err)

	_, err = f.svc.CreateDirect(ctx, f.alice, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	conv, err := f.svc.CreateDirect(ctx, f.alice, f.bob)
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationDirect, conv.Kind)
	assert.Nil(t, conv.AdminID)

	// Повторный вызов той же пары возвращает существующую беседу
	again, err := f.svc.CreateDirect(ctx, f.bob, f.alice)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)
}

// Выход из DIRECT не хоронит беседу: повторное создание той же пары
// возвращает ту же беседу и восстанавливает членство вышедшего
func TestCreateDirectReactivatesAfterLeave(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()

	conv, err := f.svc.CreateDirect(ctx, f.alice, f.bob)
	require.NoError(t, err)

	require.NoError(t, f.svc.Leave(ctx, conv.ID, f.bob))
	err = f.svc.EnsureActiveMember(ctx, conv.ID, f.bob)
	require.ErrorIs(t, err, apperrors.ErrNotAMember)

	again, err := f.svc.CreateDirect(ctx, f.alice, f.bob)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)

	// Оба участника снова активны
	assert.NoError(t, f.svc.EnsureActiveMember(ctx, conv.ID, f.alice))
	assert.NoError(t, f.svc.EnsureActiveMember(ctx, conv.ID, f.bob))
}

func TestCreateGroup(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateGroup(ctx, f.alice, "", nil)
	assert.Error(t, err)

	conv := f.group(t, f.bob, f.alice) // создатель в списке не дублируется
	assert.Equal(t, domain.ConversationGroup, conv.Kind)
	require.NotNil(t, conv.AdminID)
	assert.Equal(t, f.alice, *conv.AdminID)

	creator, err := f.convRepo.GetMember(ctx, conv.ID, f.alice)
	require.NoError(t, err)
	assert.True(t, creator.IsAdmin())

	members, err := f.convRepo.ListActiveMembers(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestUpdateMeta(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()
	conv := f.group(t, f.bob)

	// Только админ группы
	err := f.svc.UpdateMeta(ctx, conv.ID, f.bob, strPtr("renamed"), nil)
	assert.ErrorIs(t, err, apperrors.ErrNotAdmin)

	require.NoError(t, f.svc.UpdateMeta(ctx, conv.ID, f.alice, strPtr("renamed"), nil))
	assert.Equal(t, "renamed", *f.convRepo.convs[conv.ID].Name)
	assert.Len(t, f.broadcast.convEvents(EventConversationMeta), 1)

	// Для DIRECT метаданных нет
	direct, err := f.svc.CreateDirect(ctx, f.alice, f.bob)
	require.NoError(t, err)
	err = f.svc.UpdateMeta(ctx, direct.ID, f.alice, strPtr("x"), nil)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestAddMember(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()
	conv := f.group(t, f.bob)

	err := f.svc.AddMember(ctx, conv.ID, f.bob, f.carol)
	assert.ErrorIs(t, err, apperrors.ErrNotAdmin)

	require.NoError(t, f.svc.AddMember(ctx, conv.ID, f.alice, f.carol))

	// Уже активный участник — конфликт
	err = f.svc.AddMember(ctx, conv.ID, f.alice, f.carol)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	assert.Len(t, f.broadcast.convEvents(EventMemberAdded), 1)
}

func TestRemoveMember(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()
	conv := f.group(t, f.bob)

	// Админ не может удалить сам себя
	err := f.svc.RemoveMember(ctx, conv.ID, f.alice, f.alice)
	assert.Error(t, err)

	err = f.svc.RemoveMember(ctx, conv.ID, f.alice, f.carol)
	assert.ErrorIs(t, err, apperrors.ErrNotAMember)

	require.NoError(t, f.svc.RemoveMember(ctx, conv.ID, f.alice, f.bob))

	member, err := f.convRepo.GetMember(ctx, conv.ID, f.bob)
	require.NoError(t, err)
	assert.False(t, member.Active())

	// Живые подписки удаленного сняты немедленно
	require.Len(t, f.broadcast.evicted, 1)
	assert.Equal(t, eviction{ConversationID: conv.ID, UserID: f.bob}, f.broadcast.evicted[0])
	assert.Len(t, f.broadcast.convEvents(EventMemberRemoved), 1)
	assert.Len(t, f.broadcast.toUser, 1)
}

func TestLeave(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()
	conv := f.group(t, f.bob)

	// Админ сперва передает роль
	err := f.svc.Leave(ctx, conv.ID, f.alice)
	assert.Error(t, err)

	require.NoError(t, f.svc.Leave(ctx, conv.ID, f.bob))
	member, err := f.convRepo.GetMember(ctx, conv.ID, f.bob)
	require.NoError(t, err)
	assert.False(t, member.Active())

	// Ушедший не может выйти второй раз
	err = f.svc.Leave(ctx, conv.ID, f.bob)
	assert.ErrorIs(t, err, apperrors.ErrNotAMember)
}

func TestTransferAdmin(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()
	conv := f.group(t, f.bob)

	err := f.svc.TransferAdmin(ctx, conv.ID, f.alice, f.carol)
	assert.ErrorIs(t, err, apperrors.ErrNotAMember)

	require.NoError(t, f.svc.TransferAdmin(ctx, conv.ID, f.alice, f.bob))
	assert.Equal(t, f.bob, *f.convRepo.convs[conv.ID].AdminID)

	oldAdmin, err := f.convRepo.GetMember(ctx, conv.ID, f.alice)
	require.NoError(t, err)
	assert.False(t, oldAdmin.IsAdmin())

	// После передачи бывший админ может выйти
	require.NoError(t, f.svc.Leave(ctx, conv.ID, f.alice))
	assert.Len(t, f.broadcast.convEvents(EventAdminTransferred), 1)
}

// Курсор прочтения монотонен: назад не двигается и не рассылается
func TestMarkRead(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()
	conv := f.group(t, f.bob)

	first := uuid.New()
	second := uuid.New()
	f.convRepo.msgSeq[first] = 1
	f.convRepo.msgSeq[second] = 2

	err := f.svc.MarkRead(ctx, conv.ID, f.carol, first)
	assert.ErrorIs(t, err, apperrors.ErrNotAMember)

	require.NoError(t, f.svc.MarkRead(ctx, conv.ID, f.bob, second))
	assert.Len(t, f.broadcast.convEvents(EventMessageRead), 1)

	// Откат назад — молчаливый no-op
	require.NoError(t, f.svc.MarkRead(ctx, conv.ID, f.bob, first))
	assert.Len(t, f.broadcast.convEvents(EventMessageRead), 1)

	member, err := f.convRepo.GetMember(ctx, conv.ID, f.bob)
	require.NoError(t, err)
	assert.Equal(t, second, *member.LastReadMessageID)
}
