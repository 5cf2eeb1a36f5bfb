package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Customer holds the contact fields snapshotted onto a booking. The core
// validates but never deduplicates customers.
type Customer struct {
	Name    string `db:"customer_name" json:"name" validate:"required"`
	Email   string `db:"customer_email" json:"email" validate:"required,email"`
	Phone   string `db:"customer_phone" json:"phone" validate:"required,e164|numeric"`
	Address string `db:"customer_address" json:"address" validate:"required"`
	Notes   string `db:"customer_notes" json:"notes,omitempty" validate:"max=500"`
}

// Booking binds one slot, one customer and one or more services at a fixed
// total price. TotalPrice is set at creation and never recomputed.
type Booking struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	Reference    string          `db:"reference" json:"reference"`
	SlotID       uuid.UUID       `db:"slot_id" json:"slot_id"`
	Customer     Customer        `json:"customer"`
	DistanceKm   decimal.Decimal `db:"distance_km" json:"distance_km"`
	TravelCost   decimal.Decimal `db:"travel_cost" json:"travel_cost"`
	TotalPrice   decimal.Decimal `db:"total_price" json:"total_price"`
	Status       BookingStatus   `db:"status" json:"status"`
	CancelReason *string         `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`

	// Owned children, loaded with the booking.
	Services []BookingServiceLine `json:"services,omitempty"`

	// Denormalized slot fields for responses and emails.
	SlotDate      time.Time `db:"slot_date" json:"slot_date"`
	SlotStartTime string    `db:"start_time" json:"slot_start_time"`
}

// BookingServiceLine captures one service's price at the moment of booking,
// decoupled from later catalog price changes.
type BookingServiceLine struct {
	BookingID      uuid.UUID       `db:"booking_id" json:"-"`
	ServiceID      uuid.UUID       `db:"service_id" json:"service_id"`
	ServiceName    string          `db:"service_name" json:"service_name"`
	PriceAtBooking decimal.Decimal `db:"price_at_booking" json:"price_at_booking"`
}

// CanBeCancelled reports whether the cancel operation may proceed.
func (b *Booking) CanBeCancelled() bool {
	return b.Status == BookingStatusConfirmed
}

// IsCancelled reports whether the booking has been cancelled.
func (b *Booking) IsCancelled() bool {
	return b.Status == BookingStatusCancelled
}

// StartsBefore reports whether the booked slot starts before the given time.
func (b *Booking) StartsBefore(t time.Time) bool {
	start, err := time.ParseInLocation(DateFormat+" "+TimeFormat,
		b.SlotDate.Format(DateFormat)+" "+b.SlotStartTime, t.Location())
	if err != nil {
		return false
	}
	return start.Before(t)
}

// CreateBookingRequest is the inbound create payload. Either Address (to be
// resolved by the distance estimator) or DistanceKm must be supplied.
type CreateBookingRequest struct {
	SlotID     uuid.UUID   `json:"slot_id"`
	ServiceIDs []uuid.UUID `json:"service_ids"`
	Customer   Customer    `json:"customer"`
	DistanceKm *float64    `json:"distance_km,omitempty"`
}

// CancelBookingRequest carries the cancellation note and capability token.
type CancelBookingRequest struct {
	Token  string `json:"token"`
	Reason string `json:"reason"`
}

// BookingResponse is the confirmation returned to the booking UI.
type BookingResponse struct {
	ID            uuid.UUID            `json:"id"`
	Reference     string               `json:"reference"`
	SlotDate      string               `json:"slot_date"`
	SlotStartTime string               `json:"slot_start_time"`
	Customer      Customer             `json:"customer"`
	Services      []BookingServiceLine `json:"services"`
	DistanceKm    decimal.Decimal      `json:"distance_km"`
	TravelCost    decimal.Decimal      `json:"travel_cost"`
	TotalPrice    decimal.Decimal      `json:"total_price"`
	Status        BookingStatus        `json:"status"`
	CancelToken   string               `json:"cancel_token,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

// QuoteRequest asks for a price preview without mutating anything.
type QuoteRequest struct {
	ServiceIDs []uuid.UUID `json:"service_ids"`
	Address    string      `json:"address,omitempty"`
	DistanceKm *float64    `json:"distance_km,omitempty"`
}
