package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"social_messenger/internal/middleware"
	"social_messenger/internal/service"
	apperrors "social_messenger/pkg/errors"
	"social_messenger/pkg/logger"
	"social_messenger/pkg/response"
)

type UserHandler struct {
	userService service.UserService
	log         logger.Logger
}

func NewUserHandler(userService service.UserService, log logger.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		log:         log,
	}
}

type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
	Bio         *string `json:"bio,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
	IsPrivate   *bool   `json:"is_private,omitempty"`
}

func (h *UserHandler) GetMe(c *gin.Context) {
	user, err := h.userService.GetByID(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		response.Fail(c, err, err.Error())
		return
	}

	response.OK(c, http.StatusOK, "profile", user)
}

func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, apperrors.ErrBadRequest, "Invalid request: "+err.Error())
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), middleware.UserID(c), req.DisplayName, req.Bio, req.AvatarURL, req.IsPrivate)
	if err != nil {
		response.Fail(c, err, err.Error())
		return
	}

	response.OK(c, http.StatusOK, "profile updated", user)
}

func (h *UserHandler) Presence(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, apperrors.ErrBadRequest, "invalid user ID")
		return
	}

	status, err := h.userService.PresenceOf(c.Request.Context(), userID)
	if err != nil {
		response.Fail(c, err, err.Error())
		return
	}

	response.OK(c, http.StatusOK, "presence", gin.H{"user_id": userID, "status": status})
}
