package http

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"vextral/internal/ai"
	appsvc "vextral/internal/app"
	"vextral/internal/bootstrap"
	"vextral/internal/cache"
	"vextral/internal/chunker"
	"vextral/internal/config"
	"vextral/internal/parser"
	"vextral/internal/platform/rabbitmq"
	"vextral/internal/repository"
	"vextral/internal/retry"
	"vextral/internal/transport/http/handler"
	"vextral/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	cfg := app.Config
	aiClient := ai.NewClient()
	embedModel := ai.NewEmbeddingModel(aiClient, endpoint(cfg.LLM.Embedding))
	ragModel := ai.NewChatModel(aiClient, endpoint(cfg.LLM.RAG))
	generalModel := ai.NewChatModel(aiClient, endpoint(cfg.LLM.General))
	visionModel := ai.NewVisionModel(aiClient, endpoint(cfg.LLM.Vision))

	retryPolicy := retry.NewPolicy(
		cfg.Pipeline.RetryMaxAttempts,
		time.Duration(cfg.Pipeline.RetryBaseDelayMS)*time.Millisecond,
		time.Duration(cfg.Pipeline.RetryMaxDelayMS)*time.Millisecond,
	)
	// The caller waits on generation, so it gets one retry at most.
	generatePolicy := retry.NewPolicy(
		2,
		time.Duration(cfg.Pipeline.RetryBaseDelayMS)*time.Millisecond,
		time.Duration(cfg.Pipeline.RetryMaxDelayMS)*time.Millisecond,
	)

	documentRepo := repository.NewDocumentRepository(app.MySQL)
	turnRepo := repository.NewChatTurnRepository(app.MySQL)
	historyCache := cache.NewHistoryCache(
		app.Redis,
		time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)
	turnPublisher := rabbitmq.NewTurnPublisher(app.MQConn, cfg.RabbitMQ.TurnPersistQueue)

	uploadService := appsvc.NewUploadService(
		parser.NewService(visionModel),
		chunker.New(cfg.Pipeline.ChunkMaxWords, cfg.Pipeline.ChunkOverlapWords, cfg.Pipeline.ChunkMinWords),
		embedModel,
		app.Vectors,
		documentRepo,
		retryPolicy,
		cfg.Pipeline.EmbedBatchSize,
		cfg.Pipeline.EmbedWorkers,
	)
	uploadService.OnStage = func(stage appsvc.Stage, tenantID, filename string) {
		log.Printf("[upload] tenant=%s file=%s stage=%s", tenantID, filename, stage)
	}

	chatService := appsvc.NewChatService(
		embedModel,
		ragModel,
		generalModel,
		app.Vectors,
		documentRepo,
		turnRepo,
		historyCache,
		turnPublisher,
		retryPolicy,
		generatePolicy,
		cfg.Pipeline.TopK,
		cfg.Pipeline.ScoreThreshold,
		cfg.LLM.MaxHistoryTurns,
		time.Duration(cfg.Pipeline.GenerateTimeoutSec)*time.Second,
	)

	documentHandler := handler.NewDocumentHandler(uploadService, cfg.Pipeline.MaxUploadBytes)
	chatHandler := handler.NewChatHandler(chatService)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Tenant(cfg.Auth.JWTSecret, cfg.Auth.DefaultTenant))

	documents := v1.Group("/documents")
	documents.POST("", documentHandler.Upload)
	documents.GET("", documentHandler.List)
	documents.DELETE("/:filename", documentHandler.Delete)

	chat := v1.Group("/chat")
	chat.POST("/ask", chatHandler.Ask)
	chat.GET("/history", chatHandler.History)
	chat.DELETE("/history", chatHandler.ClearHistory)

	return router
}

func endpoint(ep config.ModelEndpoint) ai.Endpoint {
	return ai.Endpoint{BaseURL: ep.BaseURL, APIKey: ep.APIKey, Model: ep.Model}
}
