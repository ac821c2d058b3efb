// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mentor-go/internal/agent"
	"mentor-go/internal/config"
	"mentor-go/internal/handler"
	"mentor-go/internal/middleware"
	"mentor-go/internal/model"
	"mentor-go/internal/repository"
	"mentor-go/internal/service"
	"mentor-go/pkg/database"
	"mentor-go/pkg/es"
	"mentor-go/pkg/kafka"
	"mentor-go/pkg/llm"
	"mentor-go/pkg/log"
	"mentor-go/pkg/storage"
	"mentor-go/pkg/token"
	"mentor-go/pkg/tts"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、缓存与外部依赖
	database.InitMySQL(cfg.Database.MySQL.DSN,
		&model.User{},
		&model.UserMemory{},
		&model.ChatSession{},
		&model.ChatMessage{},
		&model.Roadmap{},
		&model.RoadmapFeedback{},
	)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	memoryRepo := repository.NewMemoryRepository(database.DB)
	chatRepo := repository.NewChatRepository(database.DB)
	roadmapRepo := repository.NewRoadmapRepository(database.DB)
	contextCache := repository.NewContextCache(database.RDB)

	// 5. 初始化智能体与 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	llmClient := llm.WithRetry(
		llm.NewClient(cfg.LLM),
		cfg.LLM.Retry.MaxAttempts,
		time.Duration(cfg.LLM.Retry.BaseDelayMS)*time.Millisecond,
	)
	ttsClient := tts.NewClient(cfg.TTS)

	planner := agent.NewPlanner(llmClient)
	executor := agent.NewExecutor(llmClient)
	evaluator := agent.NewEvaluator(llmClient)

	userService := service.NewUserService(userRepo, jwtManager)
	memoryService := service.NewMemoryService(memoryRepo)
	chatService := service.NewChatService(chatRepo, contextCache)
	contextService := service.NewContextService(memoryRepo, chatRepo, contextCache)
	traceService := service.NewTraceService()
	orchestrator := service.NewOrchestratorService(
		chatService, contextService, memoryService, traceService,
		planner, executor, evaluator, ttsClient,
	)
	roadmapService := service.NewRoadmapService(roadmapRepo, memoryService, contextService, executor, evaluator, traceService)
	dashboardService := service.NewDashboardService(memoryService, roadmapRepo)

	// 6. 启动后台 Kafka 消费者，把轨迹事件写入 Elasticsearch
	go kafka.StartConsumer(cfg.Kafka, service.NewTraceIndexer())

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 8. 注册路由
	userHandler := handler.NewUserHandler(userService)
	authHandler := handler.NewAuthHandler(userService)
	chatHandler := handler.NewChatHandler(orchestrator, chatService, memoryService)
	roadmapHandler := handler.NewRoadmapHandler(roadmapService)
	memoryHandler := handler.NewMemoryHandler(memoryService, dashboardService, traceService)

	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", authHandler.RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)

			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", userHandler.GetProfile)
				authed.POST("/logout", userHandler.Logout)
			}
		}

		// 入门问卷与用户记忆
		memory := apiV1.Group("/memory")
		memory.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			memory.GET("", memoryHandler.GetMemory)
			memory.GET("/onboarding", memoryHandler.GetOnboarding)
			memory.POST("/onboarding", memoryHandler.CompleteOnboarding)
		}

		// 聊天：同步消息、语音消息、会话管理
		chat := apiV1.Group("/chat")
		chat.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			chat.POST("/message", chatHandler.SendMessage)
			chat.POST("/voice", chatHandler.SendVoiceMessage)
			chat.GET("/sessions", chatHandler.ListSessions)
			chat.GET("/sessions/:chatId/messages", chatHandler.ListMessages)
			chat.PUT("/sessions/:chatId/title", chatHandler.UpdateTitle)
			chat.DELETE("/sessions/:chatId", chatHandler.DeleteSession)
			chat.GET("/websocket-ticket", chatHandler.GetWebsocketTicket)
		}
		// WebSocket 入口在组外，token 走路径参数
		r.GET("/chat/ws/:ticket", chatHandler.HandleWS)

		// 路线图
		roadmaps := apiV1.Group("/roadmaps")
		roadmaps.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			roadmaps.POST("", roadmapHandler.Generate)
			roadmaps.GET("/active", roadmapHandler.GetActive)
			roadmaps.GET("/archived", roadmapHandler.ListArchived)
			roadmaps.GET("/:roadmapId", roadmapHandler.GetByID)
			roadmaps.POST("/:roadmapId/steps/:stepId/feedback", roadmapHandler.SubmitStepFeedback)
			roadmaps.POST("/:roadmapId/steps/:stepId/complete", roadmapHandler.CompleteStep)
			roadmaps.POST("/regenerate", roadmapHandler.Regenerate)
		}

		// 仪表盘与轨迹
		dashboard := apiV1.Group("/dashboard")
		dashboard.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			dashboard.GET("", memoryHandler.GetDashboard)
			dashboard.GET("/traces", memoryHandler.GetTraces)
		}
	}

	// 9. 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("服务强制关闭: %v", err)
	}
	log.Info("服务已退出")
}
