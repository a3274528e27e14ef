package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"social_messenger/internal/config"
	"social_messenger/internal/handler"
	"social_messenger/internal/metrics"
	"social_messenger/internal/middleware"
	"social_messenger/internal/repository"
	"social_messenger/internal/service"
	"social_messenger/internal/ws"
	"social_messenger/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	appLogger := logger.New(cfg.Log.Level)

	// Подключение к PostgreSQL
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", "error", err)
	}
	defer dbPool.Close()

	// Проверка подключения к БД
	if err := dbPool.Ping(context.Background()); err != nil {
		appLogger.Fatal("Failed to ping database", "error", err)
	}
	appLogger.Info("Database connection established")

	// Подключение к Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	// Проверка подключения к Redis
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		appLogger.Fatal("Failed to connect to Redis", "error", err)
	}
	appLogger.Info("Redis connection established")

	// Инициализация репозиториев
	repos := repository.NewRepositories(dbPool, rdb, appLogger)

	// Хаб владеет реестрами presence и комнат; TTL зеркала в Redis
	// привязан к idle-таймауту, чтобы запись пережила короткий reconnect
	hub := ws.NewHub(repos.Presence, 2*cfg.WebSocket.IdleTimeout, appLogger)

	// Инициализация сервисов (хаб передается как broadcaster)
	services := service.NewServices(repos, cfg, hub, appLogger)

	// Роутер входящих WS-событий
	wsRouter := ws.NewRouter(hub, services.Conversation, services.Message, services.Reaction, appLogger)

	// Инициализация middleware
	authMiddleware := middleware.NewAuthMiddleware(services.Auth, appLogger)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(services.RateLimit, appLogger)

	// Инициализация handlers
	handlers := handler.NewHandlers(services, hub, wsRouter, cfg, appLogger)

	// Настройка роутера
	router := setupRouter(handlers, authMiddleware, rateLimitMiddleware, cfg, appLogger)

	// Запуск HTTP сервера
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		appLogger.Info("Starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Ожидание сигнала для graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Fatal("Server forced to shutdown", "error", err)
	}

	appLogger.Info("Server exited")
}

func setupRouter(
	handlers *handler.Handlers,
	authMiddleware *middleware.AuthMiddleware,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	cfg *config.Config,
	log logger.Logger,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler(cfg.Environment, log))
	router.Use(metrics.GinMiddleware())

	// Health check
	router.GET("/health", handlers.Health.Check)

	// Prometheus метрики
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1
	v1 := router.Group("/api/v1")
	{
		// Публичные endpoints
		public := v1.Group("/auth")
		{
			public.POST("/register", rateLimitMiddleware.Limit(), handlers.Auth.Register)
			public.POST("/login", rateLimitMiddleware.Limit(), handlers.Auth.Login)
			public.POST("/refresh", handlers.Auth.RefreshToken)
			public.POST("/logout", handlers.Auth.Logout)
		}

		// Защищенные endpoints
		protected := v1.Group("")
		protected.Use(authMiddleware.RequireAuth())
		{
			// Пользователи
			users := protected.Group("/users")
			{
				users.GET("/me", handlers.User.GetMe)
				users.PUT("/me", handlers.User.UpdateMe)
				users.GET("/:id/presence", handlers.User.Presence)
			}

			// Диалоги и группы
			conversations := protected.Group("/conversations")
			{
				conversations.POST("/direct", handlers.Conversation.CreateDirect)
				conversations.POST("/group", handlers.Conversation.CreateGroup)
				conversations.GET("", handlers.Conversation.List)
				conversations.GET("/:id", handlers.Conversation.GetByID)
				conversations.PUT("/:id", handlers.Conversation.UpdateMeta)
				conversations.POST("/:id/members", handlers.Conversation.AddMember)
				conversations.DELETE("/:id/members/:userId", handlers.Conversation.RemoveMember)
				conversations.POST("/:id/leave", handlers.Conversation.Leave)
				conversations.POST("/:id/transfer-admin", handlers.Conversation.TransferAdmin)
				conversations.POST("/:id/read", handlers.Conversation.MarkRead)

				// Сообщения
				conversations.GET("/:id/messages", handlers.Message.History)
				conversations.POST("/:id/messages", handlers.Message.Send)
			}

			// Операции над отдельными сообщениями
			messages := protected.Group("/messages")
			{
				messages.PUT("/:messageId", handlers.Message.Edit)
				messages.DELETE("/:messageId", handlers.Message.Delete)
				messages.GET("/:messageId/reactions", handlers.Message.ListReactions)
				messages.POST("/:messageId/reactions", handlers.Message.AddReaction)
			}

			reactions := protected.Group("/reactions")
			{
				reactions.DELETE("/:reactionId", handlers.Message.RemoveReaction)
			}
		}
	}

	// WebSocket endpoint (токен проверяется до upgrade)
	router.GET("/ws", handlers.WebSocket.Handle)

	return router
}
