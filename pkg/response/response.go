package response

import (
	"time"

	"github.com/gin-gonic/gin"

	apperrors "social_messenger/pkg/errors"
)

// Envelope — единый формат ответа REST API
type Envelope struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp string      `json:"timestamp"`
}

func OK(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Envelope{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func Fail(c *gin.Context, err error, message string) {
	c.JSON(apperrors.HTTPStatusFromError(err), Envelope{
		Success:   false,
		Message:   message,
		Error:     apperrors.Code(err),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
