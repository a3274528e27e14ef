package service

import (
	"social_messenger/internal/config"
	"social_messenger/internal/repository"
	"social_messenger/pkg/logger"
)

type Services struct {
	Auth         AuthService
	User         UserService
	Conversation ConversationService
	Message      MessageService
	Reaction     ReactionService
	RateLimit    RateLimitService
}

// NewServices собирает сервисный слой. Broadcaster передается явно:
// рассылка — инжектируемая зависимость, а не глобальный хендл.
func NewServices(repos *repository.Repositories, cfg *config.Config, broadcast Broadcaster, log logger.Logger) *Services {
	return &Services{
		Auth:         NewAuthService(repos.User, cfg.JWT, log),
		User:         NewUserService(repos.User, repos.Presence, log),
		Conversation: NewConversationService(repos.Conversation, repos.User, broadcast, log),
		Message:      NewMessageService(repos.Message, repos.Conversation, broadcast, log),
		Reaction:     NewReactionService(repos.Reaction, repos.Message, repos.Conversation, broadcast, log),
		RateLimit:    NewRateLimitService(repos.RateLimit, log),
	}
}
