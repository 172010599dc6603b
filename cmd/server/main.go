// Command server is the composition root: it loads configuration, wires
// every store/engine/handler, and starts the gin server and pipeline
// worker pool together. Grounded on the teacher's cmd/main.go — same
// config.Load/gorm.Open/AutoMigrate/router-setup/graceful-shutdown shape,
// generalized from the agent-builder domain to documents/chunks/sessions/
// workflows/extractions.
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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/docintel/backend/internal/auth"
	"github.com/docintel/backend/internal/chunker"
	"github.com/docintel/backend/internal/comparison"
	"github.com/docintel/backend/internal/config"
	"github.com/docintel/backend/internal/embedder"
	"github.com/docintel/backend/internal/expander"
	"github.com/docintel/backend/internal/extraction"
	"github.com/docintel/backend/internal/handler"
	"github.com/docintel/backend/internal/llm"
	"github.com/docintel/backend/internal/memory"
	"github.com/docintel/backend/internal/models"
	"github.com/docintel/backend/internal/parser"
	"github.com/docintel/backend/internal/pipeline"
	"github.com/docintel/backend/internal/progressbus"
	"github.com/docintel/backend/internal/rerank"
	"github.com/docintel/backend/internal/retrieval"
	"github.com/docintel/backend/internal/store"
	"github.com/docintel/backend/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration: ", err)
	}

	db, err := initDB(cfg)
	if err != nil {
		log.Fatal("failed to connect to database: ", err)
	}

	if err := db.AutoMigrate(
		&models.Document{}, &models.Chunk{},
		&models.Collection{}, &models.CollectionDocument{},
		&models.Session{}, &models.SessionDocument{}, &models.Message{},
		&models.Job{},
		&models.Workflow{}, &models.WorkflowRun{},
		&models.Template{}, &models.TemplateFillRun{},
		&models.Extraction{}, &models.Feedback{},
	); err != nil {
		log.Fatal("failed to migrate database: ", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatal("failed to connect to redis: ", err)
	}

	h := buildHandler(cfg, db, redisClient)

	ctx, cancelPool := context.WithCancel(context.Background())
	h.Pool.Start(ctx)

	router := setupRouter(h, cfg)
	srv := &http.Server{Addr: cfg.ServerAddress(), Handler: router}

	go func() {
		log.Printf("document intelligence backend starting on %s", cfg.ServerAddress())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server: ", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("server forced to shutdown: ", err)
	}

	cancelPool()
	h.Pool.Stop()
	log.Println("server exited")
}

func initDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// buildHandler wires every store, domain engine, and ambient service into
// one Handler, the single place construction order matters: stores first,
// then the engines that depend on them, then the handler struct itself.
func buildHandler(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) *handler.Handler {
	documents := store.NewDocumentStore(db)
	chunks := store.NewChunkStore(db)
	membership := store.NewMembershipStore(db)
	collections := store.NewCollectionStore(db)
	jobs := store.NewJobStore(db)
	sessions := store.NewSessionStore(db)
	workflows := store.NewWorkflowStore(db)
	extractions := store.NewExtractionStore(db)
	feedback := store.NewFeedbackStore(db)

	var storageBackend llm.StorageBackend = llm.NewLocalStorageBackend(cfg.Storage.LocalRoot)

	embedProvider := llm.NewHTTPEmbeddingProvider(cfg.Embedding.BaseURL, cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimension)
	llmProvider := llm.NewHTTPProvider(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Timeout, cfg.LLM.MaxRetries)

	parsers := parser.NewRegistry()
	parsers.Register(parser.PDFTypeDigital, parser.TierFree, parser.NewDigitalParser())
	parsers.Register(parser.PDFTypeScanned, parser.TierPro, parser.NewScannedParser(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Timeout))

	ck := chunker.New(chunker.Config{MaxNarrativeTokens: 500})
	emb := embedder.New(embedProvider).WithBatchSize(cfg.Embedding.BatchSize)

	ingestor := handler.NewIngestor(parsers, ck, emb, chunks, documents, membership, storageBackend)

	retriever := retrieval.NewRetriever(chunks)
	reranker := rerank.NewReranker(nil, rerank.Config{
		Enabled:           true,
		MaxTokensPerChunk: cfg.Retrieval.RerankTokenBudget,
		CompressionMethod: "head_tail",
	})
	exp := expander.NewExpander(chunks)

	summarizer := memory.NewLLMSummarizer(llmProvider, cfg.LLM.CheapModel)
	memCfg := memory.DefaultConfig()
	memCfg.MaxHistoryMessages = cfg.Memory.MaxHistoryMessages
	memCfg.VerbatimMessageCount = cfg.Memory.VerbatimMessageCount
	memCfg.SummaryTriggerRatio = cfg.Memory.SummaryTriggerRatio
	memCfg.MinMessagesForSummary = cfg.Memory.MinMessagesForSummary
	memCfg.MaxKeyFacts = cfg.Memory.MaxKeyFacts
	memCfg.SummaryMaxChars = cfg.Memory.SummaryMaxChars
	memCfg.ModelInputBudget = cfg.Memory.ModelInputBudget
	memService := memory.NewService(redisClient, sessions, summarizer, memCfg)

	wfEngine := workflow.NewEngine(retriever, reranker, exp, emb, llmProvider, workflow.Config{
		DirectThresholdTokens: cfg.Retrieval.DirectSynthesisThreshold,
		DiversityRatio:        cfg.Retrieval.DiversityRatio,
		CheapModel:            cfg.LLM.CheapModel,
		SynthesisModel:        cfg.LLM.ExpensiveModel,
	})

	cmpCfg := comparison.DefaultConfig()
	cmpEngine := comparison.NewEngine(chunks, cmpCfg)

	extractor := &extraction.Pipeline{
		Chunker:        ck,
		Embedder:       emb,
		Provider:       llmProvider,
		CheapModel:     cfg.LLM.CheapModel,
		ExpensiveModel: cfg.LLM.ExpensiveModel,
	}

	verifier := auth.NewJWTVerifier([]string{cfg.LLM.BaseURL})

	bus := progressbus.NewBus(redisClient)
	pool := pipeline.NewPool(cfg.Pipeline.WorkerCount, cfg.Pipeline.QueueDepth)

	return &handler.Handler{
		Verifier:       verifier,
		Documents:      documents,
		Chunks:         chunks,
		Membership:     membership,
		Collections:    collections,
		Jobs:           jobs,
		Sessions:       sessions,
		Workflows:      workflows,
		Extractions:    extractions,
		Feedback:       feedback,
		Storage:        storageBackend,
		Embeddings:     embedProvider,
		Provider:       llmProvider,
		Parsers:        parsers,
		Chunker:        ingestor,
		Embedder:       emb,
		Retriever:      retriever,
		Reranker:       reranker,
		Expander:       exp,
		Memory:         memService,
		Workflow:       wfEngine,
		Comparison:     cmpEngine,
		Extractor:      extractor,
		Bus:            bus,
		Pool:           pool,
		CheapModel:     cfg.LLM.CheapModel,
		ExpensiveModel: cfg.LLM.ExpensiveModel,
		JobTimeout:     cfg.LLM.Timeout,
	}
}

func setupRouter(h *handler.Handler, cfg *config.Config) *gin.Engine {
	if os.Getenv("ENVIRONMENT") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	v1 := router.Group("/api/v1")
	v1.Use(handler.AuthMiddleware(h.Verifier))

	h.RegisterDocumentRoutes(v1)
	h.RegisterJobRoutes(v1)
	h.RegisterChatRoutes(v1)
	h.RegisterWorkflowRoutes(v1)
	h.RegisterExtractionRoutes(v1)

	_ = cfg
	return router
}
