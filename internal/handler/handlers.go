package handler

import (
	"social_messenger/internal/config"
	"social_messenger/internal/service"
	"social_messenger/internal/ws"
	"social_messenger/pkg/logger"
)

type Handlers struct {
	Health       *HealthHandler
	Auth         *AuthHandler
	User         *UserHandler
	Conversation *ConversationHandler
	Message      *MessageHandler
	WebSocket    *WebSocketHandler
}

func NewHandlers(services *service.Services, hub *ws.Hub, router *ws.Router, cfg *config.Config, log logger.Logger) *Handlers {
	return &Handlers{
		Health:       NewHealthHandler(cfg),
		Auth:         NewAuthHandler(services.Auth, cfg, log),
		User:         NewUserHandler(services.User, log),
		Conversation: NewConversationHandler(services.Conversation, log),
		Message:      NewMessageHandler(services.Message, services.Reaction, log),
		WebSocket:    NewWebSocketHandler(services.Auth, hub, router, cfg, log),
	}
}
