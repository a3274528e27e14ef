package errors

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrBadRequest           = errors.New("bad request")
	ErrInternalServer       = errors.New("internal server error")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrUserAlreadyExists    = errors.New("user already exists")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrNotAMember           = errors.New("not a member of this conversation")
	ErrNotAdmin             = errors.New("admin rights required")
	ErrNotOwner             = errors.New("only the owner can do this")
	ErrInvalidToken         = errors.New("invalid token")
	ErrTokenExpired         = errors.New("token expired")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")
	ErrRateLimited          = errors.New("rate limit exceeded")
	ErrConflict             = errors.New("conflict")
)

// Машинные коды для клиента (поле error в envelope)
var codes = map[error]string{
	ErrNotFound:             "NOT_FOUND",
	ErrUnauthorized:         "UNAUTHORIZED",
	ErrForbidden:            "FORBIDDEN",
	ErrBadRequest:           "BAD_REQUEST",
	ErrInternalServer:       "INTERNAL_ERROR",
	ErrInvalidCredentials:   "INVALID_CREDENTIALS",
	ErrUserAlreadyExists:    "USER_ALREADY_EXISTS",
	ErrConversationNotFound: "CONVERSATION_NOT_FOUND",
	ErrMessageNotFound:      "MESSAGE_NOT_FOUND",
	ErrNotAMember:           "NOT_A_MEMBER",
	ErrNotAdmin:             "NOT_AN_ADMIN",
	ErrNotOwner:             "NOT_OWNER",
	ErrInvalidToken:         "INVALID_TOKEN",
	ErrTokenExpired:         "TOKEN_EXPIRED",
	ErrInvalidRefreshToken:  "INVALID_REFRESH_TOKEN",
	ErrRateLimited:          "RATE_LIMITED",
	ErrConflict:             "CONFLICT",
}

func Code(err error) string {
	for sentinel, code := range codes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return "INTERNAL_ERROR"
}

func HTTPStatusFromError(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConversationNotFound), errors.Is(err, ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired), errors.Is(err, ErrInvalidRefreshToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotAMember), errors.Is(err, ErrNotAdmin), errors.Is(err, ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUserAlreadyExists), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
