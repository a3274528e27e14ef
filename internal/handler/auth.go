package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"social_messenger/internal/config"
	"social_messenger/internal/service"
	apperrors "social_messenger/pkg/errors"
	"social_messenger/pkg/logger"
	"social_messenger/pkg/response"
)

const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
	// Refresh-cookie отдается только на endpoint ротации
	refreshCookiePath = "/api/v1/auth/refresh"
)

type AuthHandler struct {
	authService service.AuthService
	cfg         *config.Config
	log         logger.Logger
}

func NewAuthHandler(authService service.AuthService, cfg *config.Config, log logger.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		cfg:         cfg,
		log:         log,
	}
}

type RegisterRequest struct {
	Username    string `json:"username" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid registration request", "error", err)
		response.Fail(c, apperrors.ErrBadRequest, "Invalid request: "+err.Error())
		return
	}

	user, err := h.authService.Register(c.Request.Context(), req.Username, req.Email, req.Password, req.DisplayName)
	if err != nil {
		h.log.Warn("Registration failed", "error", err, "email", req.Email)
		response.Fail(c, err, err.Error())
		return
	}

	h.log.Info("User registered", "user_id", user.ID, "username", user.Username)
	response.OK(c, http.StatusCreated, "registered", user)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, apperrors.ErrBadRequest, "Invalid request: "+err.Error())
		return
	}

	result, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.log.Warn("Login failed", "error", err, "email", req.Email)
		response.Fail(c, err, "invalid credentials")
		return
	}

	// Токены уходят и в теле, и httpOnly-куками
	h.setTokenCookies(c, result.AccessToken, result.RefreshToken)

	h.log.Info("User logged in", "user_id", result.User.ID)
	response.OK(c, http.StatusOK, "logged in", result)
}

// RefreshToken принимает refresh из куки или из тела; при любом провале
// (протух/подделан/повторно использован) — 401 INVALID_REFRESH_TOKEN
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	token := h.refreshTokenFrom(c)
	if token == "" {
		response.Fail(c, apperrors.ErrInvalidRefreshToken, "refresh token required")
		return
	}

	result, err := h.authService.RefreshToken(c.Request.Context(), token)
	if err != nil {
		response.Fail(c, apperrors.ErrInvalidRefreshToken, "invalid refresh token")
		return
	}

	h.setTokenCookies(c, result.AccessToken, result.RefreshToken)
	response.OK(c, http.StatusOK, "rotated", result)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if token := h.refreshTokenFrom(c); token != "" {
		if err := h.authService.Logout(c.Request.Context(), token); err != nil {
			h.log.Warn("Logout failed", "error", err)
		}
	}

	h.clearTokenCookies(c)
	response.OK(c, http.StatusOK, "logged out", nil)
}

func (h *AuthHandler) refreshTokenFrom(c *gin.Context) string {
	if cookie, err := c.Cookie(refreshCookie); err == nil && cookie != "" {
		return cookie
	}
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err == nil {
		return req.RefreshToken
	}
	return ""
}

func (h *AuthHandler) setTokenCookies(c *gin.Context, accessToken, refreshToken string) {
	secure := h.cfg.Environment == "production"
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(accessCookie, accessToken, int(h.cfg.JWT.AccessTTL.Seconds()), "/", "", secure, true)
	c.SetCookie(refreshCookie, refreshToken, int(h.cfg.JWT.RefreshTTL.Seconds()), refreshCookiePath, "", secure, true)
}

func (h *AuthHandler) clearTokenCookies(c *gin.Context) {
	secure := h.cfg.Environment == "production"
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(accessCookie, "", -1, "/", "", secure, true)
	c.SetCookie(refreshCookie, "", -1, refreshCookiePath, "", secure, true)
}
