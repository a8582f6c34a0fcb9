package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kandev/agentflow/internal/common/config"
	"github.com/kandev/agentflow/internal/common/logger"
	"github.com/kandev/agentflow/internal/events"
	gatewayws "github.com/kandev/agentflow/internal/gateway/websocket"
	"github.com/kandev/agentflow/internal/llm"
	"github.com/kandev/agentflow/internal/orchestrator/api"
	"github.com/kandev/agentflow/internal/orchestrator/queue"
	"github.com/kandev/agentflow/internal/orchestrator/scheduler"
	"github.com/kandev/agentflow/internal/project"
	"github.com/kandev/agentflow/internal/publisher"
	"github.com/kandev/agentflow/internal/workflow"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting agentflow service...")

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Connect to the event bus
	providedBus, busCleanup, err := events.Provide(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize event bus", zap.Error(err))
	}
	defer busCleanup()
	log.Info("event bus ready", zap.String("driver", cfg.EventBus.Driver))

	// 5. Initialize the Project Store
	providedProject, projectCleanup, err := project.Provide(cfg)
	if err != nil {
		log.Fatal("failed to initialize project store", zap.Error(err))
	}
	defer projectCleanup()
	log.Info("project store ready", zap.String("base_dir", cfg.ProjectStore.BaseDir))

	// 6. Initialize the LLM Adapter
	adapter, llmCleanup, err := llm.Provide(cfg)
	if err != nil {
		log.Fatal("failed to initialize LLM adapter", zap.Error(err))
	}
	defer llmCleanup()
	log.Info("LLM adapter ready")

	// 7. Initialize the Repository Publisher
	pub, pubCleanup, err := publisher.Provide(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize repository publisher", zap.Error(err))
	}
	defer pubCleanup()

	// 8. Initialize the Workflow Engine
	engine, engineCleanup, err := workflow.Provide(cfg, providedBus.Bus, adapter, providedProject.Store, pub, log)
	if err != nil {
		log.Fatal("failed to initialize workflow engine", zap.Error(err))
	}
	defer engineCleanup()
	log.Info("workflow engine ready")

	// 9. Initialize the job queue and scheduler
	jobQueue := queue.NewJobQueue(0)
	schedCfg := scheduler.DefaultConfig()
	schedCfg.MaxConcurrent = cfg.Engine.MaxConcurrentWorkflows
	sched := scheduler.New(jobQueue, engine, log, schedCfg)
	if err := sched.Start(ctx); err != nil {
		log.Fatal("failed to start scheduler", zap.Error(err))
	}
	log.Info("scheduler started", zap.Int("max_concurrent", schedCfg.MaxConcurrent))

	// 10. Start the WebSocket hub
	wsHub := gatewayws.NewHub(log)
	go wsHub.Run(ctx)

	// 11. Setup HTTP server with Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	// 12. Register API routes
	v1 := router.Group("/api/v1")
	api.SetupRoutes(v1, engine, sched, providedBus.Bus, wsHub, log)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 13. Create HTTP server
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	// 14. Start server in goroutine
	go func() {
		log.Info("HTTP server listening", zap.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	// 15. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down agentflow service...")

	// 16. Graceful shutdown
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := sched.Stop(); err != nil {
		log.Error("scheduler stop error", zap.Error(err))
	}

	log.Info("agentflow service stopped")
}
