package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/shinedetail/booking-api/internal/model"
	"github.com/shinedetail/booking-api/internal/repository"
)

type slotRepository struct {
	db *sqlx.DB
}

func NewSlotRepository(db *sqlx.DB) repository.SlotRepository {
	return &slotRepository{db: db}
}

func (r *slotRepository) ListAvailable(ctx context.Context, from time.Time, limit int) ([]*model.AvailableSlot, error) {
	query := `
		SELECT id, slot_date, start_time
		FROM slots
		WHERE status = 'available'
		AND slot_date >= $1
		ORDER BY slot_date ASC, start_time ASC
		LIMIT $2
	`
	var slots []*model.AvailableSlot
	err := r.db.SelectContext(ctx, &slots, query, from.Format(model.DateFormat), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list available slots: %w", err)
	}
	return slots, nil
}

func (r *slotRepository) Get(ctx context.Context, id uuid.UUID) (*model.Slot, error) {
	query := `
		SELECT id, slot_date, start_time, status, created_at, updated_at
		FROM slots
		WHERE id = $1
	`
	var slot model.Slot
	err := r.db.GetContext(ctx, &slot, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return &slot, nil
}

// Reserve is a compare-and-swap, not check-then-set: the WHERE clause is the
// availability check, so two racing transactions can never both flip the
// same slot.
func (r *slotRepository) Reserve(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (bool, error) {
	query := `
		UPDATE slots
		SET status = 'booked', updated_at = NOW()
		WHERE id = $1 AND status = 'available'
	`
	result, err := tx.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to reserve slot: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *slotRepository) Release(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	query := `
		UPDATE slots
		SET status = 'available', updated_at = NOW()
		WHERE id = $1 AND status = 'booked'
	`
	// Zero rows affected means the slot was already available; release is
	// idempotent by contract.
	if _, err := tx.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to release slot: %w", err)
	}
	return nil
}

func (r *slotRepository) EnsureSlots(ctx context.Context, slots []model.Slot) (int64, error) {
	query := `
		INSERT INTO slots (id, slot_date, start_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (slot_date, start_time) DO NOTHING
	`

	var created int64
	for _, slot := range slots {
		result, err := r.db.ExecContext(ctx, query,
			slot.ID,
			slot.Date.Format(model.DateFormat),
			slot.StartTime,
			model.SlotStatusAvailable,
		)
		if err != nil {
			return created, fmt.Errorf("failed to insert slot: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return created, fmt.Errorf("failed to get rows affected: %w", err)
		}
		created += rows
	}
	return created, nil
}
