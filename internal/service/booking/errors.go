package booking

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrSlotTaken is the expected outcome when two booking attempts race
	// for the same slot; callers should re-offer available slots.
	ErrSlotTaken = errors.New("booking: slot is already booked")

	// ErrNotFound is returned when the booking does not exist.
	ErrNotFound = errors.New("booking: not found")

	// ErrAlreadyCancelled is returned when cancelling a cancelled booking.
	ErrAlreadyCancelled = errors.New("booking: already cancelled")

	// ErrPastBooking is returned when cancelling a booking whose slot has
	// already started.
	ErrPastBooking = errors.New("booking: slot is in the past")

	// ErrNotCancellable is returned for states other than confirmed.
	ErrNotCancellable = errors.New("booking: cannot be cancelled in its current state")

	// ErrPersistence hides storage-layer causes from callers; the
	// underlying error is logged, never exposed.
	ErrPersistence = errors.New("booking: booking could not be completed")
)

// ValidationError enumerates every violated field so the caller can surface
// all problems at once. No state mutation has occurred when it is returned.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "booking: validation failed: " + strings.Join(parts, "; ")
}
