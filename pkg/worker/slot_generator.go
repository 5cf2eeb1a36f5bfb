package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shinedetail/booking-api/internal/config"
	"github.com/shinedetail/booking-api/internal/model"
	"github.com/shinedetail/booking-api/internal/repository"
	"github.com/shinedetail/booking-api/pkg/logger"
	"github.com/shinedetail/booking-api/pkg/metrics"
)

// SlotGenerator keeps the slot horizon topped up: every run it materializes
// the working-day grid for the configured number of days ahead. Existing
// (date, time) slots are left untouched, so re-runs are harmless and booked
// slots are never recreated.
type SlotGenerator struct {
	repo    repository.SlotRepository
	cfg     config.ScheduleConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewSlotGenerator(repo repository.SlotRepository, cfg config.ScheduleConfig, log *logger.Logger, m *metrics.Metrics) (*SlotGenerator, error) {
	if _, err := time.Parse(model.TimeFormat, cfg.DayStart); err != nil {
		return nil, fmt.Errorf("invalid day_start %q: %w", cfg.DayStart, err)
	}
	if _, err := time.Parse(model.TimeFormat, cfg.DayEnd); err != nil {
		return nil, fmt.Errorf("invalid day_end %q: %w", cfg.DayEnd, err)
	}
	if cfg.SlotMinutes <= 0 {
		return nil, fmt.Errorf("slot_minutes must be positive")
	}
	return &SlotGenerator{repo: repo, cfg: cfg, logger: log, metrics: m}, nil
}

func (g *SlotGenerator) Start(ctx context.Context) {
	g.logger.Info("starting slot generator",
		"days_ahead", g.cfg.DaysAhead,
		"interval", g.cfg.GenerateEvery.String())

	// Run once at startup so a fresh deployment has slots immediately.
	if err := g.GenerateOnce(ctx); err != nil {
		g.logger.Error(err, "initial slot generation failed")
	}

	ticker := time.NewTicker(g.cfg.GenerateEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("shutting down slot generator")
			return
		case <-ticker.C:
			if err := g.GenerateOnce(ctx); err != nil {
				g.logger.Error(err, "slot generation failed")
			}
		}
	}
}

func (g *SlotGenerator) GenerateOnce(ctx context.Context) error {
	slots := g.buildGrid(time.Now())
	if len(slots) == 0 {
		return nil
	}

	created, err := g.repo.EnsureSlots(ctx, slots)
	if err != nil {
		g.metrics.DatabaseOperations.WithLabelValues("ensure_slots", "error").Inc()
		return fmt.Errorf("failed to ensure slots: %w", err)
	}
	g.metrics.DatabaseOperations.WithLabelValues("ensure_slots", "success").Inc()

	if created > 0 {
		g.metrics.SlotsGenerated.Add(float64(created))
		g.logger.Info("generated slots", "count", created)
	}
	return nil
}

func (g *SlotGenerator) buildGrid(now time.Time) []model.Slot {
	working := workingDaySet(g.cfg.WorkingDays)
	dayStart, _ := time.Parse(model.TimeFormat, g.cfg.DayStart)
	dayEnd, _ := time.Parse(model.TimeFormat, g.cfg.DayEnd)
	step := time.Duration(g.cfg.SlotMinutes) * time.Minute

	var slots []model.Slot
	for d := 0; d < g.cfg.DaysAhead; d++ {
		date := now.AddDate(0, 0, d)
		if !working[strings.ToLower(date.Weekday().String())] {
			continue
		}

		day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
		for t := dayStart; t.Add(step).Sub(dayEnd) <= 0; t = t.Add(step) {
			slots = append(slots, model.Slot{
				ID:        uuid.New(),
				Date:      day,
				StartTime: t.Format(model.TimeFormat),
				Status:    model.SlotStatusAvailable,
			})
		}
	}
	return slots
}

func workingDaySet(days []string) map[string]bool {
	set := make(map[string]bool, len(days))
	for _, d := range days {
		set[strings.ToLower(d)] = true
	}
	if len(set) == 0 {
		for _, d := range []string{"monday", "tuesday", "wednesday", "thursday", "friday"} {
			set[d] = true
		}
	}
	return set
}
