package model

import (
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotStatusAvailable SlotStatus = "available"
	SlotStatusBooked    SlotStatus = "booked"
)

// Slot is a bookable (date, time) unit of appointment capacity. At most one
// booking may ever hold a slot in booked state; the transition is a single
// conditional update in the store.
type Slot struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Date      time.Time  `db:"slot_date" json:"date"`
	StartTime string     `db:"start_time" json:"start_time"`
	Status    SlotStatus `db:"status" json:"status"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// AvailableSlot is the public shape returned by the slot query.
type AvailableSlot struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Date      time.Time `db:"slot_date" json:"date"`
	StartTime string    `db:"start_time" json:"start_time"`
}

const (
	DateFormat = "2006-01-02"
	TimeFormat = "15:04"
)
