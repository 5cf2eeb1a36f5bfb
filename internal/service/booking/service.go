package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/shinedetail/booking-api/internal/model"
	"github.com/shinedetail/booking-api/internal/repository"
	"github.com/shinedetail/booking-api/internal/repository/postgres"
	"github.com/shinedetail/booking-api/internal/service/catalog"
	"github.com/shinedetail/booking-api/internal/service/notification"
	"github.com/shinedetail/booking-api/internal/service/pricing"
	"github.com/shinedetail/booking-api/pkg/logger"
	"github.com/shinedetail/booking-api/pkg/metrics"
	"github.com/shinedetail/booking-api/pkg/token"
)

// CreateInput is the validated-shape input of the booking transaction. The
// distance is already resolved (estimator or client-supplied); the core never
// calls out while holding the transaction.
type CreateInput struct {
	SlotID     uuid.UUID
	ServiceIDs []uuid.UUID
	Customer   model.Customer
	DistanceKm decimal.Decimal
}

// Service orchestrates the slot-booking and pricing transaction: validate,
// reserve, price, persist, notify. Every state change happens inside one
// explicitly threaded database transaction.
type Service struct {
	db       *sqlx.DB
	bookings repository.BookingRepository
	slots    repository.SlotRepository
	catalog  *catalog.Service
	pricing  *pricing.Engine
	notifier notification.Service
	tokens   *token.Signer
	logger   *logger.Logger
	metrics  *metrics.Metrics
	validate *validator.Validate
	now      func() time.Time
	newRef   func() string
	runTx    func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func NewService(
	db *sqlx.DB,
	bookings repository.BookingRepository,
	slots repository.SlotRepository,
	catalogSvc *catalog.Service,
	pricingEngine *pricing.Engine,
	notifier notification.Service,
	tokens *token.Signer,
	log *logger.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		db:       db,
		bookings: bookings,
		slots:    slots,
		catalog:  catalogSvc,
		pricing:  pricingEngine,
		notifier: notifier,
		tokens:   tokens,
		logger:   log,
		metrics:  m,
		validate: validator.New(),
		now:      time.Now,
		newRef:   newReference,
		runTx: func(ctx context.Context, fn func(*sqlx.Tx) error) error {
			return postgres.WithinTx(ctx, db, fn)
		},
	}
}

// Create runs the five-stage booking pipeline. Any stage failure aborts all
// later stages and leaves no partial state: the slot flip, booking row,
// service lines and notification intent commit or roll back as one unit.
// The returned token authorizes cancelling this booking and is embedded in
// the confirmation email.
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Booking, string, error) {
	start := s.now()

	// Stage 1: validation, collect-all. Nothing has been mutated when this
	// returns an error.
	services, err := s.validateInput(ctx, in)
	if err != nil {
		s.metrics.ValidationFailures.Inc()
		return nil, "", err
	}

	// Stage 3 ordering note: pricing is pure, so it runs before the
	// transaction is opened; the slot reservation (stage 2) stays inside
	// the transaction where it is race-free.
	quote, err := s.pricing.ComputeTotal(in.ServiceIDs, services, in.DistanceKm)
	if err != nil {
		// Ids were validated above, so this is an internal inconsistency.
		s.logger.Error(err, "pricing failed after validation", "slot_id", in.SlotID.String())
		return nil, "", ErrPersistence
	}

	slot, err := s.slots.Get(ctx, in.SlotID)
	if err != nil {
		s.logger.Error(err, "failed to load slot", "slot_id", in.SlotID.String())
		return nil, "", ErrPersistence
	}
	if slot == nil {
		return nil, "", &ValidationError{Fields: map[string]string{"slot_id": "slot does not exist"}}
	}
	if slot.Status == model.SlotStatusBooked {
		// Early, cheap answer; the in-transaction reserve below remains
		// the authoritative check.
		return nil, "", ErrSlotTaken
	}

	booking := &model.Booking{
		ID:            uuid.New(),
		Reference:     s.newRef(),
		SlotID:        in.SlotID,
		Customer:      in.Customer,
		DistanceKm:    in.DistanceKm,
		TravelCost:    quote.TravelCost,
		TotalPrice:    quote.Total,
		Status:        model.BookingStatusConfirmed,
		SlotDate:      slot.Date,
		SlotStartTime: slot.StartTime,
	}
	for _, id := range in.ServiceIDs {
		svc := services[id]
		booking.Services = append(booking.Services, model.BookingServiceLine{
			BookingID:      booking.ID,
			ServiceID:      svc.ID,
			ServiceName:    svc.Name,
			PriceAtBooking: svc.Price,
		})
	}

	// The cancel token is part of the confirmation email, so it is issued
	// before the transaction; a signing failure is logged and the email
	// simply ships without a cancel link.
	cancelToken, err := s.tokens.GenerateCancelToken(booking.ID)
	if err != nil {
		s.logger.Error(err, "failed to issue cancel token", "booking_id", booking.ID.String())
		cancelToken = ""
	}

	// Stages 2 and 4: reserve and persist atomically. One bounded retry on
	// a reference collision, never unbounded.
	err = s.commit(ctx, booking, cancelToken)
	if errors.Is(err, postgres.ErrDuplicateReference) {
		booking.Reference = s.newRef()
		err = s.commit(ctx, booking, cancelToken)
	}
	if err != nil {
		if errors.Is(err, ErrSlotTaken) {
			s.metrics.SlotConflicts.Inc()
			s.logger.Warn("slot conflict", "slot_id", in.SlotID.String())
			return nil, "", ErrSlotTaken
		}
		s.logger.Error(err, "booking transaction failed", "slot_id", in.SlotID.String())
		return nil, "", ErrPersistence
	}

	s.metrics.BookingsCreated.Inc()
	s.metrics.BookingCreateDuration.Observe(s.now().Sub(start).Seconds())
	s.logger.Info("booking created",
		"booking_id", booking.ID.String(),
		"reference", booking.Reference,
		"slot_id", in.SlotID.String(),
		"total_price", booking.TotalPrice.StringFixed(2))

	return booking, cancelToken, nil
}

// commit is the atomic unit: slot flip, booking insert, line inserts,
// notification intent. A failure in any step rolls back all of them, so a
// slot is never left booked without a booking row.
func (s *Service) commit(ctx context.Context, booking *model.Booking, cancelToken string) error {
	return s.runTx(ctx, func(tx *sqlx.Tx) error {
		reserved, err := s.slots.Reserve(ctx, tx, booking.SlotID)
		if err != nil {
			return err
		}
		if !reserved {
			return ErrSlotTaken
		}

		if err := s.bookings.CreateTx(ctx, tx, booking); err != nil {
			return err
		}

		return s.notifier.BookingConfirmed(ctx, tx, booking, cancelToken)
	})
}

// Cancel transitions a confirmed booking to cancelled and releases its slot
// as one atomic step. Already-cancelled and past-dated bookings are rejected
// with their state unchanged.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*model.Booking, error) {
	var cancelled *model.Booking

	err := s.runTx(ctx, func(tx *sqlx.Tx) error {
		booking, err := s.bookings.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if booking == nil {
			return ErrNotFound
		}
		if booking.IsCancelled() {
			return ErrAlreadyCancelled
		}
		if !booking.CanBeCancelled() {
			return ErrNotCancellable
		}
		if booking.StartsBefore(s.now()) {
			return ErrPastBooking
		}

		note := reason
		if note == "" {
			note = "cancelled by customer"
		}
		if err := s.bookings.UpdateStatusTx(ctx, tx, id, model.BookingStatusCancelled, &note); err != nil {
			return err
		}
		if err := s.slots.Release(ctx, tx, booking.SlotID); err != nil {
			return err
		}

		booking.Status = model.BookingStatusCancelled
		booking.CancelReason = &note
		if err := s.notifier.BookingCancelled(ctx, tx, booking); err != nil {
			return err
		}

		cancelled = booking
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrAlreadyCancelled),
		errors.Is(err, ErrNotCancellable),
		errors.Is(err, ErrPastBooking):
		return nil, err
	default:
		s.logger.Error(err, "cancel transaction failed", "booking_id", id.String())
		return nil, ErrPersistence
	}

	s.metrics.BookingsCancelled.Inc()
	s.logger.Info("booking cancelled", "booking_id", id.String())
	return cancelled, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		s.logger.Error(err, "failed to get booking", "booking_id", id.String())
		return nil, ErrPersistence
	}
	if booking == nil {
		return nil, ErrNotFound
	}
	return booking, nil
}

// Quote prices a service selection without touching any state.
func (s *Service) Quote(ctx context.Context, serviceIDs []uuid.UUID, distanceKm decimal.Decimal) (pricing.Quote, error) {
	if len(serviceIDs) == 0 {
		return pricing.Quote{}, &ValidationError{Fields: map[string]string{"service_ids": "at least one service is required"}}
	}
	if dups := duplicateIDs(serviceIDs); len(dups) > 0 {
		return pricing.Quote{}, &ValidationError{Fields: map[string]string{"service_ids": "duplicate service ids: " + strings.Join(dups, ", ")}}
	}

	services, err := s.catalog.FindMany(ctx, serviceIDs)
	if err != nil {
		s.logger.Error(err, "failed to resolve services for quote")
		return pricing.Quote{}, ErrPersistence
	}
	if fields := diffServices(serviceIDs, services); len(fields) > 0 {
		return pricing.Quote{}, &ValidationError{Fields: fields}
	}

	quote, err := s.pricing.ComputeTotal(serviceIDs, services, distanceKm)
	if err != nil {
		if errors.Is(err, pricing.ErrNegativeDistance) {
			return pricing.Quote{}, &ValidationError{Fields: map[string]string{"distance_km": "distance cannot be negative"}}
		}
		return pricing.Quote{}, ErrPersistence
	}
	return quote, nil
}

// validateInput collects every violation before reporting, so the caller can
// surface all problems at once instead of one per round trip.
func (s *Service) validateInput(ctx context.Context, in CreateInput) (map[uuid.UUID]*model.Service, error) {
	fields := map[string]string{}

	if err := s.validate.Struct(in.Customer); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[customerFieldName(fe.Field())] = messageFor(fe)
			}
		} else {
			return nil, fmt.Errorf("customer validation: %w", err)
		}
	}

	if in.DistanceKm.IsNegative() {
		fields["distance_km"] = "distance cannot be negative"
	}

	if len(in.ServiceIDs) == 0 {
		fields["service_ids"] = "at least one service is required"
	} else if dups := duplicateIDs(in.ServiceIDs); len(dups) > 0 {
		// Duplicates would double-charge the service and collide on the
		// booking_services primary key, so they are rejected outright.
		fields["service_ids"] = "duplicate service ids: " + strings.Join(dups, ", ")
	} else {
		services, err := s.catalog.FindMany(ctx, in.ServiceIDs)
		if err != nil {
			s.logger.Error(err, "failed to resolve services")
			return nil, ErrPersistence
		}
		for k, v := range diffServices(in.ServiceIDs, services) {
			fields[k] = v
		}
		if len(fields) == 0 {
			return services, nil
		}
	}

	return nil, &ValidationError{Fields: fields}
}

// diffServices reports the requested ids the catalog did not resolve,
// i.e. unknown or inactive services.
func diffServices(requested []uuid.UUID, found map[uuid.UUID]*model.Service) map[string]string {
	var invalid []string
	seen := map[uuid.UUID]bool{}
	for _, id := range requested {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := found[id]; !ok {
			invalid = append(invalid, id.String())
		}
	}
	if len(invalid) == 0 {
		return nil
	}
	return map[string]string{
		"service_ids": "unknown or inactive services: " + strings.Join(invalid, ", "),
	}
}

func duplicateIDs(ids []uuid.UUID) []string {
	seen := make(map[uuid.UUID]int, len(ids))
	var dups []string
	for _, id := range ids {
		seen[id]++
		if seen[id] == 2 {
			dups = append(dups, id.String())
		}
	}
	return dups
}

func customerFieldName(structField string) string {
	switch structField {
	case "Name":
		return "customer.name"
	case "Email":
		return "customer.email"
	case "Phone":
		return "customer.phone"
	case "Address":
		return "customer.address"
	case "Notes":
		return "customer.notes"
	default:
		return strings.ToLower(structField)
	}
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "email":
		return "invalid email format"
	case "e164|numeric":
		return "invalid phone format"
	case "max":
		return "value is too long"
	default:
		return "invalid value"
	}
}

// newReference builds a short customer-facing confirmation number. The
// uniqueness guarantee lives in the database constraint, not here.
func newReference() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
	return "BK-" + raw[:10]
}
