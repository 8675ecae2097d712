package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chronolens/chronolens/internal/handlers"
	"github.com/chronolens/chronolens/internal/middleware"
	"github.com/chronolens/chronolens/internal/repositories"
	"github.com/chronolens/chronolens/internal/services"
	"github.com/chronolens/chronolens/internal/workers"
	"github.com/chronolens/chronolens/pkg/config"
	"github.com/chronolens/chronolens/pkg/database"
	"github.com/chronolens/chronolens/pkg/logger"
)

func main() {
	// Load configuration
	if err := config.Load(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg := config.AppConfig

	logger.Init()
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	if err := database.Init(cfg.Database.Path); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// Repositories
	snapshotRepo := repositories.NewSnapshotRepository(database.DB)
	commitRepo := repositories.NewCommitRepository(database.DB)
	commitFileRepo := repositories.NewCommitFileRepository(database.DB)
	cacheRepo := repositories.NewQueryCacheRepository(database.DB)

	// History providers: the clone is always kept for file content; the
	// commit log itself can come from git or the GitHub API.
	gitLog := services.NewGitLogService(cfg.Analysis.ClonePath)
	var provider services.CommitLogProvider = gitLog
	if cfg.GitHub.UseAPILog {
		provider = services.NewGitHubLogService(cfg.GitHub.Token)
	}

	// Analysis pipeline
	walker := services.NewCommitWalkerService(provider, cfg.Analysis.MaxCommits)
	identityService := services.NewIdentityService()
	ownershipService := services.NewOwnershipService()
	trendService := services.NewTrendService()
	orchestrator := services.NewOrchestratorService(
		snapshotRepo, commitRepo, commitFileRepo,
		gitLog, walker, identityService, ownershipService, trendService,
		cfg.Analysis.QueueDepth,
	)

	// Query path
	cacheService := services.NewCacheService(cacheRepo, cfg.Cache.TTL)
	relevanceService := services.NewRelevanceService(cfg.LLM.ContextFiles, cfg.LLM.ContextBudget)
	llmService := services.NewLLMService(cfg.LLM)
	var classifier services.QueryClassifier
	if llmService.Enabled() {
		classifier = llmService
	}
	queryRouter := services.NewQueryRouterService(
		orchestrator, classifier, llmService, relevanceService,
		cacheService, ownershipService, trendService, gitLog,
		cfg.LLM.ClassificationTimeout,
	)
	exportService := services.NewExportService(ownershipService)

	// Workers
	workerManager := workers.NewWorkerManager()
	if err := workerManager.StartAll(orchestrator, cacheService, cfg.Analysis.Workers); err != nil {
		log.Fatalf("Failed to start workers: %v", err)
	}
	defer workerManager.StopAll()

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())

	setupRoutes(router,
		handlers.NewRepositoryHandler(snapshotRepo, orchestrator),
		handlers.NewAnalyticsHandler(orchestrator, ownershipService, trendService, exportService, gitLog, gitLog),
		handlers.NewChatHandler(queryRouter, cacheService),
		handlers.NewHealthHandler(workerManager),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Infof("server starting on :%s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("forced shutdown: %v", err)
	}
	logger.Infof("server stopped")
}

func setupRoutes(router *gin.Engine,
	repositoryHandler *handlers.RepositoryHandler,
	analyticsHandler *handlers.AnalyticsHandler,
	chatHandler *handlers.ChatHandler,
	healthHandler *handlers.HealthHandler,
) {
	router.GET("/health", healthHandler.Health)

	api := router.Group("/api")
	{
		repos := api.Group("/repositories")
		{
			repos.POST("", repositoryHandler.Create)
			repos.GET("", repositoryHandler.List)
			repos.GET("/:id", repositoryHandler.Get)
			repos.DELETE("/:id", repositoryHandler.Delete)
			repos.POST("/:id/analyze", repositoryHandler.Analyze)

			repos.GET("/:id/contributors", analyticsHandler.Contributors)
			repos.GET("/:id/ownership", analyticsHandler.Ownership)
			repos.GET("/:id/experts", analyticsHandler.Experts)
			repos.GET("/:id/trends", analyticsHandler.Trends)
			repos.GET("/:id/complexity", analyticsHandler.Complexity)
			repos.GET("/:id/dependencies", analyticsHandler.Dependencies)
			repos.GET("/:id/patterns", analyticsHandler.Patterns)
			repos.GET("/:id/export", analyticsHandler.Export)
		}

		chat := api.Group("/chat")
		{
			chat.POST("/query", chatHandler.Query)
			chat.GET("/suggestions", chatHandler.Suggestions)
			chat.GET("/history", chatHandler.History)
		}
	}
}
