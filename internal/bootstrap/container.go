package bootstrap

import (
	"context"
	"log"
	"time"

	"ai-voicechat-be/internal/config"
	"ai-voicechat-be/internal/controller"
	"ai-voicechat-be/internal/gateway"
	"ai-voicechat-be/internal/pkg/logger"
	"ai-voicechat-be/internal/repository/contract"
	"ai-voicechat-be/internal/repository/implementation"
	"ai-voicechat-be/internal/repository/memory"
	"ai-voicechat-be/internal/service"
	"ai-voicechat-be/pkg/contextwindow"
	"ai-voicechat-be/pkg/llm/factory"
	"ai-voicechat-be/pkg/pipeline"
	"ai-voicechat-be/pkg/stt"
	"ai-voicechat-be/pkg/tts"

	pktNats "ai-voicechat-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	SessionController controller.ISessionController

	// WebSocket gateway
	GatewayHandler *gateway.Handler

	// Background Services (Exposed for main.go to run)
	ArchiveService service.IArchiveService

	Logger logger.ILogger
}

// NewContainer wires the app. db is optional; without it the turn archive and
// its REST endpoint are disabled.
func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. AI Providers
	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		cfg.Ai.OllamaBaseURL,
		cfg.Keys.GoogleGemini,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	sttProvider := stt.NewGeminiProvider(cfg.Keys.GoogleGemini, cfg.Ai.SttModel)
	ttsProvider := tts.NewGeminiProvider(cfg.Keys.GoogleGemini, cfg.Ai.TtsModel, cfg.Ai.TtsVoice)

	// 4. Context Store
	ttl := time.Duration(cfg.Session.TTLSeconds) * time.Second
	var sessionRepo contract.ISessionRepository
	if cfg.Session.Store == "redis" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{
				Addr: cfg.App.RedisURL,
			}
		}
		rdb := redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
		}
		sessionRepo = implementation.NewRedisSessionRepository(rdb, ttl)
		log.Printf("[INFO] Using Session Store: REDIS")
	} else {
		sessionRepo = memory.NewSessionRepository(ttl)
		log.Printf("[INFO] Using Session Store: MEMORY")
	}

	// 5. NATS lifecycle mirror (optional)
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		natsPub = nil
	}

	// 6. Turn archive (optional, needs Postgres)
	var archiveRepo contract.ITurnArchiveRepository
	var archiveService service.IArchiveService
	if db != nil {
		archiveRepo = implementation.NewTurnArchiveRepository(db)
		archiveService = service.NewArchiveService(pubSub, cfg.Keys.TurnTopic, archiveRepo)
		log.Printf("[INFO] Turn archive enabled (topic: %s)", cfg.Keys.TurnTopic)
	} else {
		log.Printf("[INFO] Turn archive disabled (no database configured)")
	}

	// 7. Services
	sessionService := service.NewSessionService(sessionRepo, natsPub, sysLogger, cfg.Session.TTLSeconds)
	publisherService := service.NewPublisherService(pubSub, cfg.Keys.TurnTopic)

	// 8. Pipeline
	assembler := contextwindow.NewAssembler(llmProvider, cfg.Pipeline.MaxWindowTurns, cfg.Pipeline.MaxWindowTokens, sysLogger)
	fallback := pipeline.NewFallbackHandler(sysLogger)
	pipeCfg := pipeline.Config{
		SttTimeout:          cfg.Pipeline.SttTimeout,
		GenerationTimeout:   cfg.Pipeline.GenerationTimeout,
		TtsTimeout:          cfg.Pipeline.TtsTimeout,
		SttConfidenceAccept: cfg.Pipeline.SttConfidenceAccept,
		SttConfidenceWarn:   cfg.Pipeline.SttConfidenceWarn,
	}

	voice := pipeline.NewVoiceCoordinator(sessionRepo, sttProvider, llmProvider, ttsProvider, assembler, fallback, publisherService, sysLogger, pipeCfg)
	text := pipeline.NewTextCoordinator(sessionRepo, llmProvider, ttsProvider, assembler, fallback, publisherService, sysLogger, pipeCfg)

	// 9. Gateway
	registry := pipeline.NewRegistry()
	router := gateway.NewRouter(registry, sessionRepo, voice, text, sysLogger)
	gatewayHandler := gateway.NewHandler(sessionService, router, sysLogger, cfg.Auth.JwtSecret, cfg.Pipeline.LatencyEstimateMs)

	// 10. Controllers
	sessionController := controller.NewSessionController(sessionService, archiveRepo)

	return &Container{
		SessionController: sessionController,
		GatewayHandler:    gatewayHandler,
		ArchiveService:    archiveService,
		Logger:            sysLogger,
	}
}
