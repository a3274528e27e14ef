package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"social_messenger/internal/middleware"
	"social_messenger/internal/service"
	apperrors "social_messenger/pkg/errors"
	"social_messenger/pkg/logger"
	"social_messenger/pkg/response"
)

type ConversationHandler struct {
	conversationService service.ConversationService
	log                 logger.Logger
}

func NewConversationHandler(conversationService service.ConversationService, log logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		conversationService: conversationService,
		log:                 log,
	}
}

type CreateDirectRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

type CreateGroupRequest struct {
	Name      string      `json:"name" binding:"required"`
	MemberIDs []uuid.UUID `json:"member_ids"`
}

type UpdateMetaRequest struct {
	Name      *string `json:"name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

type MemberRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

type MarkReadRequest struct {
	MessageID uuid.UUID `json:"message_id" binding:"required"`
}

func (h *ConversationHandler) CreateDirect(c *gin.Context) {
	var req CreateDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, apperrors.ErrBadRequest, "Invalid request: "+err.Error())
		return
	}

	conv, err := h.conversationService.CreateDirect(c.Request.Context(), middleware.UserID(c), req.UserID)
	if err != nil {
		response.Fail(c, err, err.Error())
		return
	}

	response.OK(c, http.StatusCreated, "conversation created", conv)
}

func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, apperrors.ErrBadRequest, "Invalid request: "+err.Error())
		return
	}

	conv, err := h.conversationService.CreateGroup(c.Request.Context(), middleware.UserID(c), req.Name, req.MemberIDs)
	if err != nil {
		response.Fail(c, err, err.Error())
		return
	}

	response.OK(c, http.StatusCreated, "group created", conv)
}

func (h *ConversationHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	conversations, err := h.conversationService.ListForUser(c.Request.Context(), middleware.UserID(c), limit, offset)
	if err != nil {
		response.Fail(c, err, err.Error())
		return
	}

	response.OK(c, http.StatusOK, "conversations", conversations)
}

func (h *ConversationHandler) GetByID(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, apperrors.ErrBadRequest, "invalid conversation ID")
		return
	}

	conv, err := h.conversationService.GetForUser(c.Request.Context(), conversationID, middleware.UserID(c))
	if err != nil {
		response.Fail(c, err, err.Error())
		return
	}

	response.OK(c, http.StatusOK, "conversation", conv)
}

func (h *ConversationHandler) UpdateMeta(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, apperrors.ErrBadRequest, "invalid conversation ID")
		return
	}

	var req UpdateMetaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, apperrors.ErrBadRequest, "Invalid request: "+err.Error())
		return
	}

	if err := h.conversationService.UpdateMeta(c.Request.Context(), conversationID, middleware.UserID(c), req.Name, req.AvatarURL); err != nil {
		response.Fail(c, err, err.Error())
		return
	}

	response.OK(c, http.StatusOK, "conversation updated", nil)
}

func (h *ConversationHandler) AddMember(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, apperrors.ErrBadRequest, "invalid conversation ID")
		return
	}

	var req MemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, apperrors.ErrBadRequest, "Invalid request: "+err.Error())
		return
	}

	if err := h.conversationService.AddMember(c.Request.Context(), conversationID, middleware.UserID(c), req.UserID); err != nil {
		response.Fail(c, err, err.Error())
		return
	}

	response.OK(c, http.StatusOK, "member added", nil)
}

func (h *ConversationHandler) RemoveMember(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, apperrors.ErrBadRequest, "invalid conversation ID")
		return
	}
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.Fail(c, apperrors.ErrBadRequest, "invalid user ID")
		return
	}

	if err := h.conversationService.RemoveMember(c.Request.Context(), conversationID, middleware.UserID(c), userID); err != nil {
		response.Fail(c, err, err.Error())
		return
	}

	response.OK(c, http.StatusOK, "member removed", nil)
}

func (h *ConversationHandler) Leave(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, apperrors.ErrBadRequest, "invalid conversation ID")
		return
	}

	if err := h.conversationService.Leave(c.Request.Context(), conversationID, middleware.UserID(c)); err != nil {
		response.Fail(c, err, err.Error())
		return
	}

	response.OK(c, http.StatusOK, "left conversation", nil)
}

func (h *ConversationHandler) TransferAdmin(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, apperrors.ErrBadRequest, "invalid conversation ID")
		return
	}

	var req MemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, apperrors.ErrBadRequest, "Invalid request: "+err.Error())
		return
	}

	if err := h.conversationService.TransferAdmin(c.Request.Context(), conversationID, middleware.UserID(c), req.UserID); err != nil {
		response.Fail(c, err, err.Error())
		return
	}

	response.OK(c, http.StatusOK, "admin transferred", nil)
}

func (h *ConversationHandler) MarkRead(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, apperrors.ErrBadRequest, "invalid conversation ID")
		return
	}

	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, apperrors.ErrBadRequest, "Invalid request: "+err.Error())
		return
	}

	if err := h.conversationService.MarkRead(c.Request.Context(), conversationID, middleware.UserID(c), req.MessageID); err != nil {
		response.Fail(c, err, err.Error())
		return
	}

	response.OK(c, http.StatusOK, "read cursor updated", nil)
}
