package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "social_messenger/pkg/errors"
)

const audience = "social-messenger-api"

type AccessClaims struct {
	UserID   uuid.UUID `json:"uid"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	UserID  uuid.UUID `json:"uid"`
	TokenID uuid.UUID `json:"jti_id"`
	jwt.RegisteredClaims
}

func GenerateAccessToken(userID uuid.UUID, username, email, secret, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID:   userID,
		Username: username,
		Email:    email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// GenerateRefreshToken выдает долгоживущий токен со случайным token-id,
// чтобы каждая выдача была различима при ротации
func GenerateRefreshToken(userID uuid.UUID, secret, issuer string, ttl time.Duration) (string, uuid.UUID, error) {
	now := time.Now()
	tokenID := uuid.New()
	claims := RefreshClaims{
		UserID:  userID,
		TokenID: tokenID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", uuid.Nil, err
	}
	return signed, tokenID, nil
}

func ValidateAccessToken(tokenStr, secret string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := parse(tokenStr, secret, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func ValidateRefreshToken(tokenStr, secret string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := parse(tokenStr, secret, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func parse(tokenStr, secret string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.ErrInvalidToken
		}
		return []byte(secret), nil
	}, jwt.WithAudience(audience))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return apperrors.ErrTokenExpired
		}
		return apperrors.ErrInvalidToken
	}
	if !token.Valid {
		return apperrors.ErrInvalidToken
	}
	return nil
}
