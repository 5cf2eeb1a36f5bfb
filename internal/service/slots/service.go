package slots

import (
	"context"
	"fmt"
	"time"

	"github.com/shinedetail/booking-api/internal/model"
	"github.com/shinedetail/booking-api/internal/repository"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Service answers the public slot query: open capacity from a date onwards,
// ascending. Slot creation belongs to the schedule generator, reservation to
// the booking transaction; neither goes through here.
type Service struct {
	repo repository.SlotRepository
	now  func() time.Time
}

func NewService(repo repository.SlotRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) ListAvailable(ctx context.Context, from time.Time, limit int) ([]*model.AvailableSlot, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	// Midnight in the server's timezone, not a UTC truncation, so the
	// floor does not drift near local midnight.
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if from.Before(today) {
		from = today
	}

	available, err := s.repo.ListAvailable(ctx, from, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list available slots: %w", err)
	}
	return available, nil
}
