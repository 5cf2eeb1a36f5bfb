package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/shinedetail/booking-api/internal/model"
)

// ServiceRepository is the read-only catalog lookup.
type ServiceRepository interface {
	ListActive(ctx context.Context) ([]*model.Service, error)
	FindActiveByID(ctx context.Context, id uuid.UUID) (*model.Service, error)
	// FindMany returns only the requested ids that resolve to active
	// services; callers diff the result against the request to detect
	// unknown or inactive ids.
	FindMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Service, error)
}

// SlotRepository tracks appointment slots. Reserve and Release take an
// explicit transaction handle so the status flip commits or rolls back with
// the booking that caused it.
type SlotRepository interface {
	ListAvailable(ctx context.Context, from time.Time, limit int) ([]*model.AvailableSlot, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Slot, error)
	// Reserve atomically flips available→booked. Returns false when the
	// slot was already booked; that is an expected outcome, not an error.
	Reserve(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (bool, error)
	// Release flips booked→available. Idempotent.
	Release(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error
	// EnsureSlots inserts the given slots, skipping any (date, time) that
	// already exists. Returns the number created.
	EnsureSlots(ctx context.Context, slots []model.Slot) (int64, error)
}

// BookingRepository persists bookings and their owned service lines.
type BookingRepository interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, booking *model.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	GetByReference(ctx context.Context, reference string) (*model.Booking, error)
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.Booking, error)
	UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status model.BookingStatus, cancelReason *string) error
}

// OutboxRepository stores notification intents written alongside bookings.
type OutboxRepository interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, event *model.OutboxEvent) error
	GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, retryAt *time.Time, terminal bool) error
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}
