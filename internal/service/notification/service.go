package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/shinedetail/booking-api/internal/model"
	"github.com/shinedetail/booking-api/internal/repository"
)

// Service is the notification port of the booking transaction. Intents are
// written to the outbox inside the booking transaction, so they commit
// atomically with the booking; actual delivery (email, event publish) is the
// worker's job with at-least-once semantics, and a delivery failure never
// reaches the booking path.
type Service interface {
	BookingConfirmed(ctx context.Context, tx *sqlx.Tx, booking *model.Booking, cancelToken string) error
	BookingCancelled(ctx context.Context, tx *sqlx.Tx, booking *model.Booking) error
}

type service struct {
	outbox repository.OutboxRepository
}

func NewService(outbox repository.OutboxRepository) Service {
	return &service{outbox: outbox}
}

func (s *service) BookingConfirmed(ctx context.Context, tx *sqlx.Tx, booking *model.Booking, cancelToken string) error {
	payload := payloadFor(booking)
	payload.CancelToken = cancelToken
	return s.enqueue(ctx, tx, model.EventBookingConfirmed, payload)
}

func (s *service) BookingCancelled(ctx context.Context, tx *sqlx.Tx, booking *model.Booking) error {
	payload := payloadFor(booking)
	if booking.CancelReason != nil {
		payload.CancelReason = *booking.CancelReason
	}
	return s.enqueue(ctx, tx, model.EventBookingCancelled, payload)
}

func (s *service) enqueue(ctx context.Context, tx *sqlx.Tx, eventType string, payload model.BookingEventPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return s.outbox.CreateTx(ctx, tx, &model.OutboxEvent{
		EventType: eventType,
		Payload:   raw,
	})
}

func payloadFor(b *model.Booking) model.BookingEventPayload {
	return model.BookingEventPayload{
		BookingID:     b.ID,
		Reference:     b.Reference,
		CustomerName:  b.Customer.Name,
		CustomerEmail: b.Customer.Email,
		Address:       b.Customer.Address,
		SlotDate:      b.SlotDate.Format(model.DateFormat),
		SlotStartTime: b.SlotStartTime,
		Services:      b.Services,
		TravelCost:    b.TravelCost.StringFixed(2),
		TotalPrice:    b.TotalPrice.StringFixed(2),
	}
}
