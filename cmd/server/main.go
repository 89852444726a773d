package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"supportdesk-gin/internal/auth"
	"supportdesk-gin/internal/channel"
	"supportdesk-gin/internal/config"
	"supportdesk-gin/internal/database"
	"supportdesk-gin/internal/escalation"
	"supportdesk-gin/internal/handlers"
	"supportdesk-gin/internal/middleware"
	"supportdesk-gin/internal/realtime"
	"supportdesk-gin/internal/repositories"
	"supportdesk-gin/internal/scheduler"
	"supportdesk-gin/internal/services"
	"supportdesk-gin/internal/session"
	"supportdesk-gin/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	// =========================================================================
	// Load configuration
	// =========================================================================
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// =========================================================================
	// Khởi tạo Logger
	// =========================================================================
	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting server",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.Int("port", cfg.App.Port),
	)

	// =========================================================================
	// Kết nối Database
	// =========================================================================
	db, err := database.NewConnection(&cfg.Database, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	// Auto migrate trong development mode
	if cfg.App.IsDevelopment() {
		if err := database.AutoMigrate(db); err != nil {
			log.Warn("auto migrate failed", zap.Error(err))
		} else {
			log.Info("database auto migration completed")
		}
	}

	// =========================================================================
	// Khởi tạo Repositories
	// =========================================================================
	tenantRepo := repositories.NewTenantRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	contactRepo := repositories.NewContactRepository(db)
	chatRepo := repositories.NewChatRepository(db)
	messageRepo := repositories.NewMessageRepository(db)

	log.Info("repositories initialized")

	// =========================================================================
	// Khởi tạo Realtime Hub + Event Bridge
	// =========================================================================
	hub := realtime.NewHub(log)
	go hub.Run()

	publishers := []realtime.Publisher{hub}

	if cfg.AMQP.URL != "" {
		bridge, err := realtime.NewAMQPBridge(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
		if err != nil {
			log.Warn("amqp bridge not available, events stay in-process", zap.Error(err))
		} else {
			defer bridge.Close()
			publishers = append(publishers, bridge)
			log.Info("amqp event bridge initialized", zap.String("exchange", cfg.AMQP.Exchange))
		}
	}

	publisher := realtime.NewMultiPublisher(publishers...)

	// =========================================================================
	// Khởi tạo Session Registry
	// =========================================================================
	sessionRegistry := session.NewRegistry(sessionRepo, publisher, log)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 10*time.Second)
	if err := sessionRegistry.Load(startCtx); err != nil {
		log.Fatal("failed to load sessions", zap.Error(err))
	}
	cancelStart()

	// =========================================================================
	// Khởi tạo Channel Registry và đăng ký channels
	// =========================================================================
	channelRegistry := channel.NewRegistry()

	gatewayChannel := channel.NewGatewayChannel(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, log)
	channelRegistry.Register(gatewayChannel)
	log.Info("registered channel", zap.String("type", gatewayChannel.Type()))

	cloudChannel := channel.NewCloudChannel(cfg.Cloud.BaseURL, log)
	channelRegistry.Register(cloudChannel)
	log.Info("registered channel", zap.String("type", cloudChannel.Type()))

	// Mock channel chỉ cho development
	if cfg.App.IsDevelopment() {
		mockChannel := channel.NewMockChannel(log)
		channelRegistry.Register(mockChannel)
		log.Info("registered channel", zap.String("type", mockChannel.Type()))
	}

	// =========================================================================
	// Khởi tạo Services
	// =========================================================================
	tenantResolver := services.NewTenantResolver(tenantRepo, log)
	identityResolver := services.NewIdentityResolver(contactRepo, chatRepo, log)
	messageStore := services.NewMessageStore(messageRepo, chatRepo, publisher, log)
	detector := escalation.NewDetector(log)
	chatService := services.NewChatService(chatRepo, messageStore, identityResolver, publisher, log)
	inboundService := services.NewInboundService(identityResolver, messageStore, detector, chatService, log)

	log.Info("services initialized")

	// =========================================================================
	// Khởi tạo Outbound Scheduler (+ Redis send lock)
	// =========================================================================
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Warn("redis not available, send lock disabled", zap.Error(err))
			redisClient = nil
		}
		cancelPing()
	}

	sendLock := scheduler.NewSendLock(redisClient, cfg.Scheduler.LockTTL, log)
	outbound := scheduler.NewScheduler(
		cfg.Scheduler,
		cfg.Cloud,
		sessionRegistry,
		channelRegistry,
		messageStore,
		sendLock,
		log,
	)
	defer outbound.Stop()

	// Session bị logout thì queue + worker của nó cũng được dọn
	sessionRegistry.OnRemove(outbound.ReleaseQueue)

	log.Info("outbound scheduler initialized",
		zap.Int("queue_size", cfg.Scheduler.QueueSize),
		zap.Duration("send_timeout", cfg.Scheduler.SendTimeout),
	)

	// =========================================================================
	// Khởi tạo Handlers
	// =========================================================================
	jwtService := auth.NewJWTService(cfg.JWT)
	authMiddleware := middleware.AuthMiddleware(jwtService)
	apiKeyMiddleware := middleware.APIKeyMiddleware(tenantResolver)

	authHandler := handlers.NewAuthHandler(tenantResolver, jwtService, log)
	webhookHandler := handlers.NewWebhookHandler(
		channelRegistry,
		tenantResolver,
		inboundService,
		sessionRegistry,
		cfg.Gateway,
		cfg.Cloud,
		log,
	)
	automationHandler := handlers.NewAutomationHandler(
		identityResolver,
		messageStore,
		chatService,
		outbound,
		detector,
		log,
	)
	chatHandler := handlers.NewChatHandler(chatService, outbound, tenantRepo, log)
	sessionHandler := handlers.NewSessionHandler(sessionRegistry, log)
	wsHandler := handlers.NewWSHandler(hub, log)

	var mockHandler *handlers.MockHandler
	if cfg.App.IsDevelopment() {
		mockHandler = handlers.NewMockHandler(channelRegistry, tenantResolver, inboundService, sessionRegistry, log)
	}

	log.Info("handlers initialized")

	// =========================================================================
	// Thiết lập Gin Router
	// =========================================================================
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logging(log))
	router.Use(middleware.CORS([]string{"*"}))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"service":  cfg.App.Name,
			"version":  "1.0.0",
			"channels": channelRegistry.GetAll(),
		})
	})

	// =========================================================================
	// API Routes
	// =========================================================================
	api := router.Group("/api")
	{
		// Webhook routes (public, tự verify signature)
		webhookHandler.RegisterRoutes(api)

		// Automation routes (X-API-Key)
		automationHandler.RegisterRoutes(api, apiKeyMiddleware)

		v1 := api.Group("/v1")
		{
			// Auth routes (đổi API key lấy JWT)
			authHandler.RegisterRoutes(v1)

			// Dashboard routes (JWT)
			chatHandler.RegisterRoutes(v1, authMiddleware)
			sessionHandler.RegisterRoutes(v1, authMiddleware)
			wsHandler.RegisterRoutes(v1, authMiddleware)

			// Mock routes chỉ bật trong development
			if mockHandler != nil {
				mockHandler.RegisterRoutes(v1)
			}
		}
	}

	log.Info("routes registered",
		zap.Strings("endpoints", []string{
			"/api/webhooks/gateway",
			"/api/webhooks/cloud",
			"/api/automation/*",
			"/api/v1/chats",
			"/api/v1/sessions",
			"/api/v1/ws",
		}),
	)

	// =========================================================================
	// Khởi động HTTP Server
	// =========================================================================
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.Int("port", cfg.App.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// =========================================================================
	// Graceful Shutdown
	// =========================================================================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}
