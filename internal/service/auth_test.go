package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social_messenger/internal/config"
	"social_messenger/internal/domain"
	apperrors "social_messenger/pkg/errors"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		AccessSecret:  "test-access-secret",
		RefreshSecret: "test-refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		Issuer:        "social-messenger-test",
	}
}

func newAuthFixture(t *testing.T) (AuthService, *fakeUserRepo) {
	t.Helper()
	repo := newFakeUserRepo()
	return NewAuthService(repo, testJWTConfig(), testLogger()), repo
}

func TestRegister(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "Alice", "Alice@Example.com", "password123", "")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "alice", user.DisplayName)
	assert.Empty(t, user.PasswordHash)

	_, err = svc.Register(ctx, "alice2", "alice@example.com", "password123", "")
	assert.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)

	_, err = svc.Register(ctx, "alice", "other@example.com", "password123", "")
	assert.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)

	_, err = svc.Register(ctx, "bob", "bob@example.com", "short", "")
	assert.Error(t, err)
}

func TestLogin(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "alice@example.com", "password123", "Alice")
	require.NoError(t, err)

	resp, err := svc.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Empty(t, resp.User.PasswordHash)

	_, err = svc.Login(ctx, "alice@example.com", "wrong-password")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	// Несуществующий пользователь неотличим от неверного пароля
	_, err = svc.Login(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestValidateToken(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", "alice@example.com", "password123", "Alice")
	require.NoError(t, err)

	resp, err := svc.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)

	_, err = svc.ValidateToken(ctx, "garbage.token.here")
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

// Ротация: refresh одноразовый, старый токен гаснет в момент обмена
func TestRefreshTokenRotation(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "alice@example.com", "password123", "Alice")
	require.NoError(t, err)

	login, err := svc.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)

	rotated, err := svc.RefreshToken(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, rotated.AccessToken)
	assert.NotEqual(t, login.RefreshToken, rotated.RefreshToken)

	// Повторный обмен старого токена отклоняется
	_, err = svc.RefreshToken(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
}

// Replay уже отозванного refresh отзывает всю семью: скомпрометированная
// цепочка не должна оставлять действующих сессий
func TestRefreshReuseRevokesFamily(t *testing.T) {
	svc, repo := newAuthFixture(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "alice@example.com", "password123", "Alice")
	require.NoError(t, err)

	login, err := svc.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)

	rotated, err := svc.RefreshToken(ctx, login.RefreshToken)
	require.NoError(t, err)

	// Replay старого токена
	_, err = svc.RefreshToken(ctx, login.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)

	// Токен, выданный при легитимной ротации, тоже больше не работает
	_, err = svc.RefreshToken(ctx, rotated.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)

	session, err := repo.GetSessionByTokenHash(ctx, hashToken(rotated.RefreshToken))
	require.NoError(t, err)
	assert.True(t, session.Revoked())
	assert.Equal(t, 0, repo.activeSessions(session.FamilyID))
}

// staleSessionRepo отдает сессию такой, какой ее видела бы конкурентная
// ротация, прочитавшая строку до коммита соперника: отметка отзыва еще
// не видна
type staleSessionRepo struct {
	*fakeUserRepo
	stale bool
}

func (r *staleSessionRepo) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*domain.UserSession, error) {
	session, err := r.fakeUserRepo.GetSessionByTokenHash(ctx, tokenHash)
	if err != nil || !r.stale {
		return session, err
	}
	copied := *session
	copied.RevokedAt = nil
	copied.RevokedReason = nil
	return &copied, nil
}

// Два одновременных обмена одного refresh: проигравший прошел проверку
// Revoked по устаревшему чтению, но отзыв считает затронутые строки,
// поэтому проигравший все равно попадает в ветку replay и гасит семью
func TestConcurrentRefreshLoserRevokesFamily(t *testing.T) {
	repo := newFakeUserRepo()
	stale := &staleSessionRepo{fakeUserRepo: repo}
	svc := NewAuthService(stale, testJWTConfig(), testLogger())
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "alice@example.com", "password123", "Alice")
	require.NoError(t, err)

	login, err := svc.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)

	// Победитель ротации
	rotated, err := svc.RefreshToken(ctx, login.RefreshToken)
	require.NoError(t, err)

	// Проигравший: видит сессию еще не отозванной
	stale.stale = true
	_, err = svc.RefreshToken(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)

	session, err := repo.GetSessionByTokenHash(ctx, hashToken(rotated.RefreshToken))
	require.NoError(t, err)
	assert.True(t, session.Revoked())
	assert.Equal(t, 0, repo.activeSessions(session.FamilyID))
}

func TestLogout(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "alice@example.com", "password123", "Alice")
	require.NoError(t, err)

	login, err := svc.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, login.RefreshToken))

	_, err = svc.RefreshToken(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
}
