package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/shinedetail/booking-api/internal/model"
	"github.com/shinedetail/booking-api/internal/repository"
)

// ErrDuplicateReference signals a booking reference collision; the service
// retries once with a fresh reference.
var ErrDuplicateReference = errors.New("duplicate booking reference")

const pqUniqueViolation = "23505"

type bookingRepository struct {
	db *sqlx.DB
}

func NewBookingRepository(db *sqlx.DB) repository.BookingRepository {
	return &bookingRepository{db: db}
}

func (r *bookingRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, booking *model.Booking) error {
	query := `
		INSERT INTO bookings (
			id, reference, slot_id,
			customer_name, customer_email, customer_phone, customer_address, customer_notes,
			distance_km, travel_cost, total_price, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	booking.CreatedAt = time.Now()
	booking.UpdatedAt = booking.CreatedAt

	_, err := tx.ExecContext(ctx, query,
		booking.ID,
		booking.Reference,
		booking.SlotID,
		booking.Customer.Name,
		booking.Customer.Email,
		booking.Customer.Phone,
		booking.Customer.Address,
		booking.Customer.Notes,
		booking.DistanceKm,
		booking.TravelCost,
		booking.TotalPrice,
		booking.Status,
		booking.CreatedAt,
		booking.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation && pqErr.Constraint == "bookings_reference_key" {
			return ErrDuplicateReference
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}

	lineQuery := `
		INSERT INTO booking_services (booking_id, service_id, service_name, price_at_booking)
		VALUES ($1, $2, $3, $4)
	`
	for _, line := range booking.Services {
		if _, err := tx.ExecContext(ctx, lineQuery,
			booking.ID,
			line.ServiceID,
			line.ServiceName,
			line.PriceAtBooking,
		); err != nil {
			return fmt.Errorf("failed to create booking service line: %w", err)
		}
	}
	return nil
}

const bookingColumns = `
	b.id, b.reference, b.slot_id,
	b.customer_name, b.customer_email, b.customer_phone, b.customer_address, b.customer_notes,
	b.distance_km, b.travel_cost, b.total_price, b.status, b.cancel_reason,
	b.created_at, b.updated_at,
	s.slot_date, s.start_time
`

type bookingRow struct {
	model.Booking
	model.Customer
}

func (r *bookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings b
		JOIN slots s ON s.id = b.slot_id
		WHERE b.id = $1
	`
	return r.getOne(ctx, query, id)
}

func (r *bookingRepository) GetByReference(ctx context.Context, reference string) (*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings b
		JOIN slots s ON s.id = b.slot_id
		WHERE b.reference = $1
	`
	return r.getOne(ctx, query, reference)
}

func (r *bookingRepository) getOne(ctx context.Context, query string, arg interface{}) (*model.Booking, error) {
	var row bookingRow
	err := r.db.GetContext(ctx, &row, query, arg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	booking := row.Booking
	booking.Customer = row.Customer
	if err := r.loadServiceLines(ctx, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *bookingRepository) loadServiceLines(ctx context.Context, booking *model.Booking) error {
	query := `
		SELECT booking_id, service_id, service_name, price_at_booking
		FROM booking_services
		WHERE booking_id = $1
		ORDER BY service_name ASC
	`
	var lines []model.BookingServiceLine
	if err := r.db.SelectContext(ctx, &lines, query, booking.ID); err != nil {
		return fmt.Errorf("failed to load booking service lines: %w", err)
	}
	booking.Services = lines
	return nil
}

// GetForUpdate locks the booking row for the duration of the transaction so
// cancellation status checks and the slot release commit as one step.
func (r *bookingRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings b
		JOIN slots s ON s.id = b.slot_id
		WHERE b.id = $1
		FOR UPDATE OF b
	`
	var row bookingRow
	err := tx.GetContext(ctx, &row, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}

	booking := row.Booking
	booking.Customer = row.Customer
	return &booking, nil
}

func (r *bookingRepository) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status model.BookingStatus, cancelReason *string) error {
	query := `
		UPDATE bookings
		SET status = $1, cancel_reason = COALESCE($2, cancel_reason), updated_at = NOW()
		WHERE id = $3
	`
	result, err := tx.ExecContext(ctx, query, status, cancelReason, id)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("booking not found")
	}
	return nil
}
