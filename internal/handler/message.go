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

type MessageHandler struct {
	messageService  service.MessageService
	reactionService service.ReactionService
	log             logger.Logger
}

func NewMessageHandler(messageService service.MessageService, reactionService service.ReactionService, log logger.Logger) *MessageHandler {
	return &MessageHandler{
		messageService:  messageService,
		reactionService: reactionService,
		log:             log,
	}
}

type SendMessageRequest struct {
	Type          string     `json:"type"`
	Content       *string    `json:"content,omitempty"`
	MediaURL      *string    `json:"media_url,omitempty"`
	ReplyToID     *uuid.UUID `json:"reply_to_id,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty"`
}

type EditMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

type AddReactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

// History — paginated fetch: отключенные участники догоняют
// пропущенные broadcast-события отсюда
func (h *MessageHandler) History(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, apperrors.ErrBadRequest, "invalid conversation ID")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	beforeSeq, _ := strconv.ParseInt(c.DefaultQuery("before", "0"), 10, 64)

	messages, err := h.messageService.History(c.Request.Context(), conversationID, middleware.UserID(c), limit, beforeSeq)
	if err != nil {
		response.Fail(c, err, err.Error())
		return
	}

	response.OK(c, http.StatusOK, "messages", messages)
}

func (h *MessageHandler) Send(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, apperrors.ErrBadRequest, "invalid conversation ID")
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, apperrors.ErrBadRequest, "Invalid request: "+err.Error())
		return
	}

	message, err := h.messageService.Send(c.Request.Context(), conversationID, middleware.UserID(c), service.SendMessageInput{
		Type:          req.Type,
		Content:       req.Content,
		MediaURL:      req.MediaURL,
		ReplyToID:     req.ReplyToID,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		response.Fail(c, err, err.Error())
		return
	}

	response.OK(c, http.StatusCreated, "message sent", message)
}

func (h *MessageHandler) Edit(c *gin.Context) {
	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		response.Fail(c, apperrors.ErrBadRequest, "invalid message ID")
		return
	}

	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, apperrors.ErrBadRequest, "Invalid request: "+err.Error())
		return
	}

	message, err := h.messageService.Edit(c.Request.Context(), messageID, middleware.UserID(c), req.Content)
	if err != nil {
		response.Fail(c, err, err.Error())
		return
	}

	response.OK(c, http.StatusOK, "message updated", message)
}

func (h *MessageHandler) Delete(c *gin.Context) {
	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		response.Fail(c, apperrors.ErrBadRequest, "invalid message ID")
		return
	}

	if err := h.messageService.Delete(c.Request.Context(), messageID, middleware.UserID(c)); err != nil {
		response.Fail(c, err, err.Error())
		return
	}

	response.OK(c, http.StatusOK, "message deleted", nil)
}

func (h *MessageHandler) AddReaction(c *gin.Context) {
	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		response.Fail(c, apperrors.ErrBadRequest, "invalid message ID")
		return
	}

	var req AddReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, apperrors.ErrBadRequest, "Invalid request: "+err.Error())
		return
	}

	reaction, err := h.reactionService.Add(c.Request.Context(), messageID, middleware.UserID(c), req.Emoji)
	if err != nil {
		response.Fail(c, err, err.Error())
		return
	}

	response.OK(c, http.StatusCreated, "reaction added", reaction)
}

func (h *MessageHandler) RemoveReaction(c *gin.Context) {
	reactionID, err := uuid.Parse(c.Param("reactionId"))
	if err != nil {
		response.Fail(c, apperrors.ErrBadRequest, "invalid reaction ID")
		return
	}

	if err := h.reactionService.Remove(c.Request.Context(), reactionID, middleware.UserID(c)); err != nil {
		response.Fail(c, err, err.Error())
		return
	}

	response.OK(c, http.StatusOK, "reaction removed", nil)
}

func (h *MessageHandler) ListReactions(c *gin.Context) {
	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		response.Fail(c, apperrors.ErrBadRequest, "invalid message ID")
		return
	}

	reactions, err := h.reactionService.ListForMessage(c.Request.Context(), messageID, middleware.UserID(c))
	if err != nil {
		response.Fail(c, err, err.Error())
		return
	}

	response.OK(c, http.StatusOK, "reactions", reactions)
}
