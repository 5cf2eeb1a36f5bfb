package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/shinedetail/booking-api/internal/config"
	"github.com/shinedetail/booking-api/internal/email"
	"github.com/shinedetail/booking-api/internal/repository/postgres"
	"github.com/shinedetail/booking-api/pkg/logger"
	"github.com/shinedetail/booking-api/pkg/messaging/redis"
	"github.com/shinedetail/booking-api/pkg/metrics"
	"github.com/shinedetail/booking-api/pkg/worker"
)

// The worker runs the background halves of the booking system: the outbox
// processor that delivers notifications and the generator that keeps the
// slot horizon populated.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.NewLogger(&logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
	})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})
	if err != nil {
		log.Fatal(err, "failed to connect to Redis")
	}
	defer broker.Close()

	slotRepo := postgres.NewSlotRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)
	mailer := email.NewSMTPService(&cfg.Email, cfg.Secrets.SMTPPassword)
	m := metrics.NewMetrics("booking", "worker")

	processor := worker.NewOutboxProcessor(outboxRepo, broker, mailer, worker.OutboxProcessorConfig{
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval,
		RetryAttempts: cfg.Outbox.RetryAttempts,
		RetryDelay:    cfg.Outbox.RetryDelay,
		RetentionDays: cfg.Outbox.RetentionDays,
	}, log, m)

	generator, err := worker.NewSlotGenerator(slotRepo, cfg.Schedule, log, m)
	if err != nil {
		log.Fatal(err, "invalid schedule configuration")
	}

	setupHealthCheck(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down")
		cancel()
	}()

	go generator.Start(ctx)
	processor.Start(ctx)
}

func setupHealthCheck(log *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := http.ListenAndServe(":8081", mux); err != nil {
			log.Error(err, "health check server failed")
		}
	}()
}
