package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"beacon/presence-service/config"
	"beacon/presence-service/db"
	"beacon/presence-service/handlers"
	"beacon/presence-service/middleware"
	"beacon/presence-service/services"
	"beacon/presence-service/utils"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	// Initialize logger
	logger := utils.NewLogger("presence-service")

	// Connect to database
	database, err := db.Connect(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}

	// Initialize Redis client
	redisClient := services.NewRedisClient(cfg, logger)
	defer redisClient.Close()

	// Initialize services
	presenceService := services.NewPresenceService(database, redisClient, logger, cfg.StaleThreshold)
	typingStore := services.NewRedisTypingStore(redisClient, logger, cfg.TypingStaleness)

	// Start the typing indicator sweeper
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go typingStore.StartSweeper(sweepCtx, cfg.TypingSweep)

	// Initialize handlers
	presenceHandler := handlers.NewPresenceHandler(presenceService, logger)
	typingHandler := handlers.NewTypingHandler(typingStore, logger)
	prefsHandler := handlers.NewPrefsHandler(database, logger)
	wsHandler := handlers.NewWSHandler(redisClient, logger)

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS())

	// Health check endpoint
	router.GET("/health", handlers.HealthCheck)

	// Live event feed
	router.GET("/ws", middleware.Auth(cfg.JWTSecret), wsHandler.Serve)

	// API routes
	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.JWTSecret))
	{
		presence := v1.Group("/presence")
		{
			presence.POST("/heartbeat", presenceHandler.Heartbeat)
			presence.GET("/status/:user_id", presenceHandler.GetStatus)
			presence.GET("/online", presenceHandler.GetOnlineUsers)
			presence.PUT("/channel", presenceHandler.UpdateActiveChannel)
		}

		typing := v1.Group("/typing")
		{
			typing.POST("/:channel_id", typingHandler.Start)
			typing.DELETE("/:channel_id", typingHandler.Stop)
			typing.GET("/:channel_id", typingHandler.List)
		}

		prefs := v1.Group("/preferences")
		{
			prefs.GET("/notifications", prefsHandler.Get)
			prefs.PUT("/notifications", prefsHandler.Update)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting Presence Service", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop the sweeper
	stopSweeper()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
