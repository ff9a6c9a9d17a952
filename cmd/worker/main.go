package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aircover/claimpipe/internal/config"
	"github.com/aircover/claimpipe/internal/db"
	"github.com/aircover/claimpipe/internal/eligibility"
	"github.com/aircover/claimpipe/internal/queue"
	"github.com/aircover/claimpipe/internal/repository"

	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	conn, err := db.NewConnection(ctx, cfg.DB)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	// The broker is not optional here; the worker exists to drain the queue.
	amqpConn, err := amqp.Dial(cfg.AMQP.URL)
	if err != nil {
		log.Fatalf("Failed to connect to AMQP broker: %v", err)
	}
	defer amqpConn.Close()

	flightRepo := repository.NewFlightRepository(conn.Pool)
	resultRepo := repository.NewResultRepository(conn.Pool)
	auditRepo := repository.NewAuditRepository(conn.Pool)

	worker := eligibility.NewWorker(flightRepo, resultRepo, auditRepo)

	consumer, err := queue.NewConsumer(
		amqpConn,
		cfg.AMQP.Exchange,
		cfg.AMQP.Queue,
		[]string{queue.TopicEligibilityCheck, queue.TopicETLCompleted},
		worker.Handle,
	)
	if err != nil {
		log.Fatalf("Failed to create consumer: %v", err)
	}
	defer consumer.Close()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down worker...")
		cancel()
	}()

	log.Printf("Worker consuming from %s on exchange %s", cfg.AMQP.Queue, cfg.AMQP.Exchange)
	if err := consumer.Start(ctx); err != nil {
		log.Fatalf("Consumer stopped: %v", err)
	}

	log.Println("Worker exited")
}
