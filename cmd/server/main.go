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

	"veochat-backend/internal/blob"
	"veochat-backend/internal/config"
	"veochat-backend/internal/database"
	"veochat-backend/internal/handlers"
	"veochat-backend/internal/repository"
	"veochat-backend/internal/router"
	"veochat-backend/internal/services"
	"veochat-backend/internal/veo"
	"veochat-backend/internal/websocket"
	"veochat-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting VeoChat Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Client ────
	redisClient, err := database.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClient.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	chatRepo := repository.NewChatRepo(pool)
	jobRepo := repository.NewJobRepo(pool)

	// ──── Step 5: Initialize Video Generation Client ────
	blobStore := blob.NewStore()
	keyManager := services.NewKeyManager(cfg.GeminiAPIKey)
	veoClient := veo.NewClient(veo.NewGoogleVendor(), keyManager, blobStore, veo.Options{
		Model:        cfg.VeoModel,
		PollInterval: cfg.PollInterval,
	})
	if keyManager.Ready() {
		log.Println("✓ Veo client initialized with environment key")
	} else {
		log.Println("✓ Veo client initialized; waiting for an API key")
	}

	// ──── Initialize Services ────
	generationService := services.NewGenerationService(veoClient, chatRepo, jobRepo, blobStore, keyManager, redisClient)

	// ──── Step 6: Start Job Worker Pool ────
	registry := worker.NewRegistry()
	workerPool := worker.NewPool(generationService, jobRepo, chatRepo, registry, cfg.WorkerCount, cfg.QueueSize, cfg.GenerationTimeout)

	sweepCtx, sweepCancel := context.WithTimeout(context.Background(), 30*time.Second)
	workerPool.SweepStale(sweepCtx)
	sweepCancel()

	workerPool.Start()

	// ──── Step 7: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClient, chatRepo)
	log.Println("✓ WebSocket hub started")

	// ──── Initialize Handlers ────
	chatHandler := handlers.NewChatHandler(chatRepo, jobRepo, workerPool, registry, blobStore, keyManager, cfg.MaxUploadBytes)
	jobHandler := handlers.NewJobHandler(jobRepo, chatRepo, registry, generationService)
	blobHandler := handlers.NewBlobHandler(blobStore)
	keyHandler := handlers.NewKeyHandler(keyManager)

	// ──── Step 8: Start HTTP Server ────
	r := router.New(chatHandler, jobHandler, blobHandler, keyHandler, wsHub, cfg.FrontendURL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ VeoChat Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/ws/sessions/{id}", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
