package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aircover/claimpipe/internal/archive"
	"github.com/aircover/claimpipe/internal/config"
	"github.com/aircover/claimpipe/internal/db"
	"github.com/aircover/claimpipe/internal/eligibility"
	"github.com/aircover/claimpipe/internal/etl"
	"github.com/aircover/claimpipe/internal/middleware"
	"github.com/aircover/claimpipe/internal/queue"
	"github.com/aircover/claimpipe/internal/repository"
	"github.com/aircover/claimpipe/internal/runlog"
	"github.com/aircover/claimpipe/internal/stageproc"
	"github.com/aircover/claimpipe/internal/status"
	"github.com/aircover/claimpipe/internal/tables"

	amqp "github.com/rabbitmq/amqp091-go"
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

	// Setup database connection
	conn, err := db.NewConnection(ctx, cfg.DB)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, conn.Pool, cfg.Pipeline.MigrationsPath); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Create repositories
	warehouseRepo := repository.NewWarehouseRepository(conn.Pool)
	flightRepo := repository.NewFlightRepository(conn.Pool)
	resultRepo := repository.NewResultRepository(conn.Pool)
	runLogRepo := repository.NewRunLogRepository(conn.Pool)

	// Status cache is optional; without it status polling returns 404.
	var statusStore etl.StatusStore
	if redisClient, err := status.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.DB); err != nil {
		log.Printf("Redis unavailable, run status polling disabled: %v", err)
	} else {
		defer redisClient.Close()
		statusStore = status.NewRepo(redisClient)
	}

	// Raw-upload archival is optional.
	var archiver etl.Archiver
	if cfg.S3.Enabled {
		store, err := archive.NewStore(ctx, cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey, cfg.S3.Bucket)
		if err != nil {
			log.Printf("Object store unavailable, upload archival disabled: %v", err)
		} else {
			archiver = store
		}
	}

	// The broker is optional for the server: without it completion events and
	// queued checks are skipped, uploads and synchronous checks still work.
	var publisher *queue.Publisher
	if amqpConn, err := amqp.Dial(cfg.AMQP.URL); err != nil {
		log.Printf("AMQP unavailable, event publishing disabled: %v", err)
	} else {
		defer amqpConn.Close()
		publisher, err = queue.NewPublisher(amqpConn, cfg.AMQP.Exchange)
		if err != nil {
			log.Fatalf("Failed to create publisher: %v", err)
		}
		defer publisher.Close()
	}

	// Run log with database-backed line persistence
	runs := runlog.New(cfg.Pipeline.RunLogDir, runLogRepo)
	defer runs.Close()

	router := tables.NewRouter(tables.Defaults())

	// Stage processors: external commands when configured, otherwise the
	// built-in transform and no cleaner.
	var cleaner stageproc.Processor
	if cfg.Pipeline.CleanerCommand != "" {
		cleaner = stageproc.NewSubprocess("clean", cfg.Pipeline.CleanerCommand)
	}
	var transformer stageproc.Processor = etl.NewBuiltinTransform(router)
	if cfg.Pipeline.TransformCommand != "" {
		transformer = stageproc.NewSubprocess("transform", cfg.Pipeline.TransformCommand)
	}

	// etl.Orchestrator takes a nil-able interface; wrap the concrete pointer
	// only when the broker is up.
	var events etl.EventPublisher
	if publisher != nil {
		events = publisher
	}
	orch := etl.NewOrchestrator(warehouseRepo, events)

	uploadService := etl.NewService(router, cleaner, transformer, orch, runs, statusStore, archiver, cfg.Pipeline.UploadDir)

	var checkPublisher eligibility.MessagePublisher
	if publisher != nil {
		checkPublisher = publisher
	}
	checkService := eligibility.NewService(flightRepo, resultRepo, checkPublisher)
	notifier := eligibility.NewNotifier(conn.Pool)

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	etlHandler := middleware.LoggingMiddleware(etl.NewHTTPHandler(uploadService, runs, statusStore))
	eligibilityHandler := middleware.LoggingMiddleware(eligibility.NewHTTPHandler(checkService, notifier))

	mux := http.NewServeMux()
	mux.Handle("/upload", corsHandler.Handler(etlHandler))
	mux.Handle("/runs/", corsHandler.Handler(etlHandler))
	mux.Handle("/eligibility/", corsHandler.Handler(eligibilityHandler))

	// Create HTTP server. WriteTimeout is generous because uploads run the
	// pipeline synchronously and log streams stay open until the client leaves.
	server := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     mux,
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting claim pipeline server on %s", cfg.Server.Addr)
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
