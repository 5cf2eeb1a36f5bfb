package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shinedetail/booking-api/internal/config"
	"github.com/shinedetail/booking-api/internal/handler"
	bookingHandler "github.com/shinedetail/booking-api/internal/handler/booking"
	catalogHandler "github.com/shinedetail/booking-api/internal/handler/catalog"
	slotHandler "github.com/shinedetail/booking-api/internal/handler/slot"
	"github.com/shinedetail/booking-api/internal/repository/postgres"
	"github.com/shinedetail/booking-api/internal/router"
	bookingService "github.com/shinedetail/booking-api/internal/service/booking"
	"github.com/shinedetail/booking-api/internal/service/catalog"
	"github.com/shinedetail/booking-api/internal/service/distance"
	"github.com/shinedetail/booking-api/internal/service/notification"
	"github.com/shinedetail/booking-api/internal/service/pricing"
	"github.com/shinedetail/booking-api/internal/service/slots"
	"github.com/shinedetail/booking-api/pkg/logger"
	"github.com/shinedetail/booking-api/pkg/metrics"
	"github.com/shinedetail/booking-api/pkg/token"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
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

	serviceRepo := postgres.NewServiceRepository(db)
	slotRepo := postgres.NewSlotRepository(db)
	bookingRepo := postgres.NewBookingRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	travelRate, err := decimal.NewFromString(cfg.Pricing.TravelRatePerKm)
	if err != nil {
		log.Fatal(err, "invalid travel rate", "rate", cfg.Pricing.TravelRatePerKm)
	}
	pricingEngine, err := pricing.NewEngine(travelRate)
	if err != nil {
		log.Fatal(err, "failed to build pricing engine")
	}

	catalogSvc := catalog.NewService(serviceRepo)
	slotSvc := slots.NewService(slotRepo)
	notifier := notification.NewService(outboxRepo)
	tokens := token.NewSigner(cfg.Secrets.CancelTokenSecret, cfg.CancelToken.TTL)
	m := metrics.NewMetrics("booking", "api")

	bookingSvc := bookingService.NewService(
		db,
		bookingRepo,
		slotRepo,
		catalogSvc,
		pricingEngine,
		notifier,
		tokens,
		log,
		m,
	)

	estimator := distance.NewEstimator(cfg.Distance.BaseURL, cfg.Distance.Timeout)

	h := handler.NewHandler(db)
	r := router.NewRouter(h, cfg,
		catalogHandler.NewHandler(catalogSvc),
		slotHandler.NewHandler(slotSvc),
		bookingHandler.NewHandler(bookingSvc, estimator, tokens, cfg.Distance.FallbackKm, log),
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err, "server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error(err, "forced shutdown")
	}
	log.Info("server stopped")
}
