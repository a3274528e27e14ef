package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"social_messenger/internal/config"
	"social_messenger/internal/service"
	"social_messenger/internal/ws"
	apperrors "social_messenger/pkg/errors"
	"social_messenger/pkg/logger"
	"social_messenger/pkg/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: ограничить список origin в production
	},
}

type WebSocketHandler struct {
	authService service.AuthService
	hub         *ws.Hub
	router      *ws.Router
	cfg         *config.Config
	log         logger.Logger
}

func NewWebSocketHandler(authService service.AuthService, hub *ws.Hub, router *ws.Router, cfg *config.Config, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		authService: authService,
		hub:         hub,
		router:      router,
		cfg:         cfg,
		log:         log,
	}
}

// Handle — handshake постоянного соединения. Identity проверяется до
// upgrade: непрошедшее аутентификацию соединение отклоняется раньше,
// чем возможна любая мутация реестров. Повторный handshake той же
// identity добавляет соединение, не вытесняя существующие (multi-device).
func (h *WebSocketHandler) Handle(c *gin.Context) {
	token := h.tokenFrom(c)
	if token == "" {
		response.Fail(c, apperrors.ErrUnauthorized, "missing access token")
		return
	}

	claims, err := h.authService.ValidateToken(c.Request.Context(), token)
	if err != nil {
		response.Fail(c, err, "handshake rejected")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := ws.NewClient(conn, h.hub, *claims, h.cfg.WebSocket, h.log)
	if wentOnline := h.hub.Register(client); wentOnline {
		h.log.Info("User connected", "user_id", claims.UserID)
	}

	client.Run(h.router)
}

func (h *WebSocketHandler) tokenFrom(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	authz := c.GetHeader("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}
