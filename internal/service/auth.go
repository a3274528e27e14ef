package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"social_messenger/internal/config"
	"social_messenger/internal/domain"
	"social_messenger/internal/repository"
	apperrors "social_messenger/pkg/errors"
	"social_messenger/pkg/jwt"
	"social_messenger/pkg/logger"
)

type AuthService interface {
	Register(ctx context.Context, username, email, password, displayName string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*LoginResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error)
	ValidateToken(ctx context.Context, tokenString string) (*domain.Claims, error)
	Logout(ctx context.Context, refreshToken string) error
}

type LoginResponse struct {
	User         *domain.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type authService struct {
	userRepo repository.UserRepository
	jwtCfg   config.JWTConfig
	log      logger.Logger
}

func NewAuthService(userRepo repository.UserRepository, jwtCfg config.JWTConfig, log logger.Logger) AuthService {
	return &authService{
		userRepo: userRepo,
		jwtCfg:   jwtCfg,
		log:      log,
	}
}

func (s *authService) Register(ctx context.Context, username, email, password, displayName string) (*domain.User, error) {
	// Валидация входных данных
	username = strings.ToLower(strings.TrimSpace(username))
	email = strings.ToLower(strings.TrimSpace(email))
	displayName = strings.TrimSpace(displayName)
	password = strings.TrimSpace(password)

	if username == "" {
		return nil, errors.New("username is required")
	}
	if len(username) > 30 {
		return nil, errors.New("username is too long (max 30 characters)")
	}
	if email == "" {
		return nil, errors.New("email is required")
	}
	if len(password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}
	if displayName == "" {
		displayName = username
	}
	if !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return nil, errors.New("invalid email format")
	}

	if existing, _ := s.userRepo.GetByEmail(ctx, email); existing != nil {
		return nil, apperrors.ErrUserAlreadyExists
	}
	if existing, _ := s.userRepo.GetByUsername(ctx, username); existing != nil {
		return nil, apperrors.ErrUserAlreadyExists
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.log.Error("Failed to hash password", "error", err)
		return nil, errors.New("failed to hash password")
	}

	user := &domain.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: string(passwordHash),
		DisplayName:  displayName,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if strings.Contains(err.Error(), "duplicate") {
			return nil, apperrors.ErrUserAlreadyExists
		}
		s.log.Error("Failed to create user", "error", err, "email", email)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	user.PasswordHash = ""
	return user, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	password = strings.TrimSpace(password)

	if email == "" || password == "" {
		return nil, apperrors.ErrInvalidCredentials
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		// Не раскрываем, существует ли пользователь
		return nil, apperrors.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}

	// Новая пара открывает новую семью токенов
	accessToken, refreshToken, err := s.issuePair(ctx, user, uuid.New())
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := s.userRepo.Update(ctx, user); err != nil {
		s.log.Warn("Failed to update last login", "error", err)
	}

	user.PasswordHash = ""
	return &LoginResponse{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// RefreshToken реализует ротацию: старый refresh становится недействительным
// в момент обмена. Повторный обмен уже отозванного токена трактуется как
// replay — отзывается вся семья сессий этого пользователя.
func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	claims, err := jwt.ValidateRefreshToken(refreshToken, s.jwtCfg.RefreshSecret)
	if err != nil {
		return nil, apperrors.ErrInvalidRefreshToken
	}

	tokenHash := hashToken(refreshToken)
	session, err := s.userRepo.GetSessionByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, apperrors.ErrInvalidRefreshToken
	}

	if session.Revoked() {
		// Security event: токен уже обменивался
		s.log.Warn("Refresh token reuse detected, revoking token family",
			"user_id", session.UserID, "family_id", session.FamilyID)
		if err := s.userRepo.RevokeFamily(ctx, session.FamilyID, "reuse detected"); err != nil {
			s.log.Error("Failed to revoke token family", "error", err)
		}
		return nil, apperrors.ErrInvalidRefreshToken
	}

	if time.Now().After(session.ExpiresAt) {
		return nil, apperrors.ErrInvalidRefreshToken
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, apperrors.ErrInvalidRefreshToken
	}

	// Старая сессия гаснет до выдачи новой пары. Ноль затронутых строк —
	// конкурентный обмен успел первым, проигравший трактуется как replay.
	revoked, err := s.userRepo.RevokeSession(ctx, session.ID, "rotated")
	if err != nil {
		s.log.Error("Failed to revoke rotated session", "error", err)
		return nil, errors.New("failed to rotate session")
	}
	if !revoked {
		s.log.Warn("Concurrent refresh token exchange detected, revoking token family",
			"user_id", session.UserID, "family_id", session.FamilyID)
		if err := s.userRepo.RevokeFamily(ctx, session.FamilyID, "reuse detected"); err != nil {
			s.log.Error("Failed to revoke token family", "error", err)
		}
		return nil, apperrors.ErrInvalidRefreshToken
	}

	accessToken, newRefreshToken, err := s.issuePair(ctx, user, session.FamilyID)
	if err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
	}, nil
}

func (s *authService) ValidateToken(ctx context.Context, tokenString string) (*domain.Claims, error) {
	claims, err := jwt.ValidateAccessToken(tokenString, s.jwtCfg.AccessSecret)
	if err != nil {
		return nil, err
	}

	return &domain.Claims{
		UserID:   claims.UserID,
		Username: claims.Username,
		Email:    claims.Email,
	}, nil
}

func (s *authService) Logout(ctx context.Context, refreshToken string) error {
	tokenHash := hashToken(refreshToken)
	session, err := s.userRepo.GetSessionByTokenHash(ctx, tokenHash)
	if err != nil {
		return apperrors.ErrInvalidRefreshToken
	}

	// Повторный logout той же сессии — no-op
	_, err = s.userRepo.RevokeSession(ctx, session.ID, "logout")
	return err
}

func (s *authService) issuePair(ctx context.Context, user *domain.User, familyID uuid.UUID) (string, string, error) {
	accessToken, err := jwt.GenerateAccessToken(
		user.ID, user.Username, user.Email,
		s.jwtCfg.AccessSecret, s.jwtCfg.Issuer, s.jwtCfg.AccessTTL,
	)
	if err != nil {
		s.log.Error("Failed to generate access token", "error", err)
		return "", "", errors.New("failed to generate access token")
	}

	refreshToken, _, err := jwt.GenerateRefreshToken(
		user.ID, s.jwtCfg.RefreshSecret, s.jwtCfg.Issuer, s.jwtCfg.RefreshTTL,
	)
	if err != nil {
		s.log.Error("Failed to generate refresh token", "error", err)
		return "", "", errors.New("failed to generate refresh token")
	}

	session := &domain.UserSession{
		ID:               uuid.New(),
		UserID:           user.ID,
		FamilyID:         familyID,
		RefreshTokenHash: hashToken(refreshToken),
		CreatedAt:        time.Now(),
		ExpiresAt:        time.Now().Add(s.jwtCfg.RefreshTTL),
	}

	if err := s.userRepo.CreateSession(ctx, session); err != nil {
		s.log.Error("Failed to create session", "error", err)
		return "", "", errors.New("failed to create session")
	}

	return accessToken, refreshToken, nil
}

func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
