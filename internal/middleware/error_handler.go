package middleware

import (
	"github.com/gin-gonic/gin"

	apperrors "social_messenger/pkg/errors"
	"social_messenger/pkg/logger"
	"social_messenger/pkg/response"
)

// ErrorHandler — единая граница: неожиданные ошибки логируются с контекстом
// запроса и уходят клиенту как generic internal error без деталей реализации
func ErrorHandler(environment string, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status := apperrors.HTTPStatusFromError(err)

		if status >= 500 {
			log.Error("Unhandled request error",
				"error", err,
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"client_ip", c.ClientIP(),
			)
			message := "internal server error"
			if environment != "production" {
				message = err.Error()
			}
			response.Fail(c, apperrors.ErrInternalServer, message)
			return
		}

		response.Fail(c, err, err.Error())
	}
}
