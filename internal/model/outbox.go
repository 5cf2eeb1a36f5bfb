package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusRetry     OutboxStatus = "retry"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// Booking lifecycle event types carried through the outbox.
const (
	EventBookingConfirmed = "booking.confirmed"
	EventBookingCancelled = "booking.cancelled"
)

// OutboxEvent is written in the same transaction as the booking it refers
// to, so notification intent commits atomically with the state change. The
// worker drains it with at-least-once semantics.
type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// BookingEventPayload is the fully assembled booking snapshot sent to the
// notification channels.
type BookingEventPayload struct {
	BookingID     uuid.UUID            `json:"booking_id"`
	Reference     string               `json:"reference"`
	CustomerName  string               `json:"customer_name"`
	CustomerEmail string               `json:"customer_email"`
	Address       string               `json:"address"`
	SlotDate      string               `json:"slot_date"`
	SlotStartTime string               `json:"slot_start_time"`
	Services      []BookingServiceLine `json:"services"`
	TravelCost    string               `json:"travel_cost"`
	TotalPrice    string               `json:"total_price"`
	CancelToken   string               `json:"cancel_token,omitempty"`
	CancelReason  string               `json:"cancel_reason,omitempty"`
}
