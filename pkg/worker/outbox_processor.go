package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shinedetail/booking-api/internal/email"
	"github.com/shinedetail/booking-api/internal/model"
	"github.com/shinedetail/booking-api/internal/repository"
	"github.com/shinedetail/booking-api/pkg/logger"
	"github.com/shinedetail/booking-api/pkg/messaging"
	"github.com/shinedetail/booking-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	RetentionDays int
}

// OutboxProcessor drains notification intents committed alongside bookings
// and delivers them over email and the event broker. Delivery is
// at-least-once: an event is retried with backoff until it succeeds or
// exhausts its attempts.
type OutboxProcessor struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	mailer  email.Service
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	mailer email.Service,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *OutboxProcessor {
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		panic("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		panic("RetryDelay must be greater than 0")
	}

	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		mailer:  mailer,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	cleanup := time.NewTicker(24 * time.Hour)
	defer cleanup.Stop()

	p.logger.Info("starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("shutting down outbox processor")
			return
		case <-cleanup.C:
			p.purgeProcessed(ctx)
		case <-ticker.C:
			if err := p.processEvents(ctx); err != nil {
				p.logger.Error(err, "failed to process events")
			}
		}
	}
}

func (p *OutboxProcessor) processEvents(ctx context.Context) error {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	events, err := p.repo.GetPendingEvents(ctx, p.config.BatchSize)
	if err != nil {
		p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "error").Inc()
		return fmt.Errorf("failed to get pending events: %w", err)
	}
	p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "success").Inc()

	for _, event := range events {
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error(err, "failed to process event",
				"event_id", event.ID.String(),
				"event_type", event.EventType)
		}
	}

	return nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	err := p.deliver(ctx, event)
	if err == nil {
		p.metrics.OutboxEventsProcessed.Inc()
		if markErr := p.repo.MarkProcessed(ctx, event.ID); markErr != nil {
			return fmt.Errorf("failed to mark event processed: %w", markErr)
		}
		return nil
	}

	// RetryCount reflects attempts before this run.
	terminal := event.RetryCount+1 >= p.config.RetryAttempts
	if terminal {
		p.metrics.OutboxEventsFailed.Inc()
	} else {
		p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
	}

	retryAt := time.Now().Add(p.config.RetryDelay << event.RetryCount)
	if markErr := p.repo.MarkFailed(ctx, event.ID, err.Error(), &retryAt, terminal); markErr != nil {
		p.logger.Error(markErr, "failed to mark event failed", "event_id", event.ID.String())
	}
	return err
}

// deliver fans one event out to every channel. Email failures fail the
// event; broker publish failures are logged only, subscribers tolerate
// missed events but customers should not miss confirmations.
func (p *OutboxProcessor) deliver(ctx context.Context, event *model.OutboxEvent) error {
	var payload model.BookingEventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode event payload: %w", err)
	}

	switch event.EventType {
	case model.EventBookingConfirmed:
		if err := p.mailer.SendBookingConfirmation(ctx, &payload); err != nil {
			return err
		}
	case model.EventBookingCancelled:
		if err := p.mailer.SendBookingCancellation(ctx, &payload); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown event type %q", event.EventType)
	}

	if err := p.broker.Publish(ctx, event.EventType, event.Payload); err != nil {
		p.logger.Error(err, "failed to publish event",
			"event_id", event.ID.String(),
			"event_type", event.EventType)
	}
	return nil
}

func (p *OutboxProcessor) purgeProcessed(ctx context.Context) {
	retention := p.config.RetentionDays
	if retention <= 0 {
		retention = 30
	}
	cutoff := time.Now().AddDate(0, 0, -retention)

	deleted, err := p.repo.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		p.logger.Error(err, "failed to purge processed events")
		return
	}
	if deleted > 0 {
		p.logger.Info("purged processed outbox events", "count", deleted)
	}
}
