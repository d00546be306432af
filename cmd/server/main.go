package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rpattn/refql/internal/api"
	"github.com/rpattn/refql/internal/config"
	"github.com/rpattn/refql/internal/db"
	"github.com/rpattn/refql/internal/export"
	"github.com/rpattn/refql/internal/ingestion"
	"github.com/rpattn/refql/internal/middleware"
	"github.com/rpattn/refql/internal/schema"
	"github.com/rpattn/refql/internal/store"

	"github.com/rs/cors"
)

func main() {
	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Load collection schemas
	registry, err := schema.LoadDir(cfg.SchemaDir)
	if err != nil {
		log.Fatalf("Failed to load schemas: %v", err)
	}
	log.Printf("Loaded %d collection schemas from %s", registry.Len(), cfg.SchemaDir)

	// Setup document store
	var st store.Store
	switch cfg.StoreBackend {
	case "postgres":
		conn, err := db.NewConnection(ctx, cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer conn.Close()

		// Run migrations
		if err := db.RunMigrations(cfg.Database, cfg.MigrationsPath); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}

		st = store.NewPostgres(conn.Pool)
	default:
		st = store.NewMemory()
	}

	// Create handlers
	handler := api.New(registry, st, cfg.MaxQueryDepth)
	ingestionService := ingestion.NewService(registry, st)
	exportService := export.NewService(registry, st, export.WithMaxDepth(cfg.MaxQueryDepth))

	mux := http.NewServeMux()
	handler.Routes(mux)
	mux.Handle("POST /ingest", ingestion.NewHTTPHandler(ingestionService))
	mux.Handle("POST /export", export.NewHTTPHandler(exportService))

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	root := corsHandler.Handler(
		middleware.LoggingMiddleware(
			middleware.DataLoaderMiddleware(st)(mux),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on %s (store=%s)", cfg.ServerAddr, cfg.StoreBackend)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
