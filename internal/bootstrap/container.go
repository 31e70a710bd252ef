package bootstrap

import (
	"context"
	"fmt"
	"log"

	"ai-docqa-be/internal/config"
	"ai-docqa-be/internal/controller"
	"ai-docqa-be/internal/handler"
	"ai-docqa-be/internal/pkg/logger"
	"ai-docqa-be/internal/repository/contract"
	"ai-docqa-be/internal/repository/implementation"
	"ai-docqa-be/internal/repository/memory"
	"ai-docqa-be/internal/repository/unitofwork"
	"ai-docqa-be/internal/service"
	"ai-docqa-be/internal/websocket"
	"ai-docqa-be/pkg/embedding"
	"ai-docqa-be/pkg/extractor"
	"ai-docqa-be/pkg/llm/factory"
	"ai-docqa-be/pkg/rag/chunker"
	"ai-docqa-be/pkg/rag/index"
	"ai-docqa-be/pkg/rag/ingest"
	"ai-docqa-be/pkg/rag/retrieval"
	"ai-docqa-be/pkg/rag/session"
	"ai-docqa-be/pkg/rag/status"
	"ai-docqa-be/pkg/storage"

	pktNats "ai-docqa-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	DocumentController controller.IDocumentController
	ChatController     controller.IChatController
	SearchController   controller.ISearchController
	HealthController   controller.IHealthController

	// WebSockets
	StatusHandler *handler.StatusHandler
	ChatHandler   *handler.ChatHandler
	WebSocketHub  *websocket.Hub

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService
	SweeperService  *service.SweeperService
	// StatusRelay is nil when NATS is not configured.
	StatusRelay *service.StatusRelayService
	ChatEngine  *session.Engine

	Logger logger.ILogger

	closers []func() error
}

// NewContainer wires the application. db is nil for the memory storage driver.
func NewContainer(db *gorm.DB, cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.IsProduction())
	c := &Container{Logger: sysLogger}

	var (
		uowFactory unitofwork.RepositoryFactory
		segments   contract.SegmentRepository
		files      storage.FileStore
		pinger     service.Pinger
	)
	if db != nil {
		uowFactory = unitofwork.NewRepositoryFactory(db)
		segments = implementation.NewSegmentRepository(db)
		local, err := storage.NewLocalStore(cfg.App.UploadDir)
		if err != nil {
			return nil, err
		}
		files = local
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		pinger = sqlDB
	} else {
		store := memory.NewStore()
		uowFactory = memory.NewRepositoryFactory(store)
		segments = memory.NewSegmentRepository(store)
		files = storage.NewMemoryStore()
		log.Printf("[WARN] Using in-memory storage, data is lost on restart")
	}

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: int64(cfg.Ingest.Workers)},
		watermillLogger,
	)
	c.closers = append(c.closers, pubSub.Close)

	// 3. Providers
	apiKey := cfg.Keys.GoogleGemini
	if cfg.Ai.EmbeddingProvider == "jina" {
		apiKey = cfg.Keys.Jina
	}
	embeddingProvider, err := embedding.New(context.Background(), embedding.Config{
		Provider:   cfg.Ai.EmbeddingProvider,
		Model:      cfg.Ai.EmbeddingModel,
		Dimension:  cfg.Ai.EmbeddingDimension,
		BaseURL:    cfg.Ai.OllamaBaseURL,
		APIKey:     apiKey,
		RPS:        cfg.Ai.EmbeddingRPS,
		QueryCache: cfg.Ai.QueryCacheTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("init embedding provider: %w", err)
	}
	log.Printf("[INFO] Using Embedding Provider: %s", cfg.Ai.EmbeddingProvider)

	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		cfg.Ai.OllamaBaseURL,
		cfg.Keys.Anthropic,
	)
	if err != nil {
		return nil, fmt.Errorf("init llm provider: %w", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// 4. Infrastructure
	// NATS
	var (
		natsPub *pktNats.Publisher
		natsSub *pktNats.Subscriber
	)
	if cfg.App.NatsURL != "" {
		natsPub, err = pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
			natsPub = nil
		} else {
			c.closers = append(c.closers, closeFunc(natsPub.Close))
		}
		natsSub, err = pktNats.NewSubscriber(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
			natsSub = nil
		} else {
			c.closers = append(c.closers, closeFunc(natsSub.Close))
		}
	}

	// Redis
	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb = redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
		}
		c.closers = append(c.closers, rdb.Close)
	}

	// WebSocket Hub
	hubLogger := logger.NewIsolatedLogger(cfg.App.HubLogFilePath)
	wsHub := websocket.NewHub(rdb, hubLogger)
	c.WebSocketHub = wsHub

	// 5. Domain
	var eventPublisher service.EventPublisher
	if natsPub != nil {
		eventPublisher = natsPub
	}
	broker := status.NewBroker()
	statusPublisher := service.NewStatusPublisher(eventPublisher, wsHub, hubLogger)

	idx := index.New(segments)
	pipeline := ingest.NewPipeline(
		uowFactory,
		files,
		extractor.NewDefaultRegistry(),
		chunker.New(chunker.WithChunkSize(cfg.Ingest.ChunkSize), chunker.WithOverlap(cfg.Ingest.ChunkOverlap)),
		embeddingProvider,
		idx,
		status.Multi{broker, statusPublisher},
		sysLogger,
		ingest.Config{ExtractTimeout: cfg.Ingest.ExtractTimeout, EmbedTimeout: cfg.Ingest.EmbedTimeout},
	)
	retriever := retrieval.NewEngine(uowFactory, embeddingProvider, idx, cfg.Chat.TopK, cfg.Ingest.EmbedTimeout)
	chatEngine := session.NewEngine(uowFactory, retriever, llmProvider, sysLogger, session.Config{
		GenerationTimeout: cfg.Chat.GenerationTimeout,
		MaxTokens:         cfg.Chat.MaxTokens,
		Temperature:       cfg.Chat.Temperature,
	})
	c.ChatEngine = chatEngine

	// 6. Services
	publisherService := service.NewPublisherService(cfg.Ingest.Topic, pubSub)
	c.ConsumerService = service.NewConsumerService(pubSub, cfg.Ingest.Topic, pipeline, cfg.Ingest.Workers, sysLogger)
	c.SweeperService = service.NewSweeperService(uowFactory, publisherService, cfg.Ingest.StaleAfter, sysLogger)
	if natsSub != nil {
		c.StatusRelay = service.NewStatusRelayService(natsSub, wsHub, hubLogger)
	}

	documentService := service.NewDocumentService(uowFactory, files, publisherService, eventPublisher, broker, sysLogger, service.DocumentServiceConfig{
		MaxUploadBytes:    cfg.App.MaxUploadBytes,
		AllowedExtensions: cfg.App.AllowedExtensions,
	})
	chatService := service.NewChatService(uowFactory, chatEngine)
	searchService := service.NewSearchService(uowFactory, retriever, idx)
	healthService := service.NewHealthService(pinger, searchService)

	// 7. Controllers & Handlers
	c.DocumentController = controller.NewDocumentController(documentService)
	c.ChatController = controller.NewChatController(chatService)
	c.SearchController = controller.NewSearchController(searchService)
	c.HealthController = controller.NewHealthController(healthService)
	c.StatusHandler = handler.NewStatusHandler(documentService, wsHub, hubLogger)
	c.ChatHandler = handler.NewChatHandler(chatService, documentService, sysLogger)

	c.closers = append(c.closers, closeFunc(func() {
		_ = sysLogger.Sync()
		_ = hubLogger.Sync()
	}))
	return c, nil
}

// Close releases infrastructure connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			log.Printf("[WARN] close: %v", err)
		}
	}
}

func closeFunc(f func()) func() error {
	return func() error {
		f()
		return nil
	}
}
