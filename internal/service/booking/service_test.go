package booking

import (
	"context"
	"errors"
	"io"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinedetail/booking-api/internal/model"
	"github.com/shinedetail/booking-api/internal/repository/postgres"
	"github.com/shinedetail/booking-api/internal/service/catalog"
	"github.com/shinedetail/booking-api/internal/service/notification"
	"github.com/shinedetail/booking-api/internal/service/pricing"
	"github.com/shinedetail/booking-api/pkg/logger"
	"github.com/shinedetail/booking-api/pkg/metrics"
	"github.com/shinedetail/booking-api/pkg/token"
)

// One registry-backed metrics instance for the whole package; promauto
// panics on duplicate registration.
var testMetrics = metrics.NewMetrics("booking", "servicetest")

var testLogger = logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// --- fakes ---------------------------------------------------------------

type fakeServiceRepo struct {
	services map[uuid.UUID]*model.Service
}

func (f *fakeServiceRepo) ListActive(ctx context.Context) ([]*model.Service, error) {
	var out []*model.Service
	for _, s := range f.services {
		if s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeServiceRepo) FindActiveByID(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	if s, ok := f.services[id]; ok && s.Active {
		return s, nil
	}
	return nil, nil
}

func (f *fakeServiceRepo) FindMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Service, error) {
	out := make(map[uuid.UUID]*model.Service)
	for _, id := range ids {
		if s, ok := f.services[id]; ok && s.Active {
			out[id] = s
		}
	}
	return out, nil
}

type fakeSlotRepo struct {
	mu               sync.Mutex
	slots            map[uuid.UUID]*model.Slot
	forceReserveFail bool
	reserveCalls     int
}

func (f *fakeSlotRepo) ListAvailable(ctx context.Context, from time.Time, limit int) ([]*model.AvailableSlot, error) {
	return nil, nil
}

func (f *fakeSlotRepo) Get(ctx context.Context, id uuid.UUID) (*model.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.slots[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeSlotRepo) Reserve(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserveCalls++
	if f.forceReserveFail {
		return false, nil
	}
	s, ok := f.slots[id]
	if !ok || s.Status != model.SlotStatusAvailable {
		return false, nil
	}
	s.Status = model.SlotStatusBooked
	return true, nil
}

func (f *fakeSlotRepo) Release(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.slots[id]; ok {
		s.Status = model.SlotStatusAvailable
	}
	return nil
}

func (f *fakeSlotRepo) EnsureSlots(ctx context.Context, slots []model.Slot) (int64, error) {
	return 0, nil
}

func (f *fakeSlotRepo) status(id uuid.UUID) model.SlotStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slots[id].Status
}

func (f *fakeSlotRepo) snapshot() map[uuid.UUID]model.Slot {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := make(map[uuid.UUID]model.Slot, len(f.slots))
	for id, s := range f.slots {
		snap[id] = *s
	}
	return snap
}

func (f *fakeSlotRepo) restore(snap map[uuid.UUID]model.Slot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range snap {
		copied := s
		f.slots[id] = &copied
	}
}

type fakeBookingRepo struct {
	mu        sync.Mutex
	bookings  map[uuid.UUID]*model.Booking
	createErr []error
	creates   int
	refs      []string
}

func (f *fakeBookingRepo) CreateTx(ctx context.Context, tx *sqlx.Tx, booking *model.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if len(f.createErr) > 0 {
		err := f.createErr[0]
		f.createErr = f.createErr[1:]
		if err != nil {
			return err
		}
	}
	f.refs = append(f.refs, booking.Reference)
	copied := *booking
	f.bookings[booking.ID] = &copied
	return nil
}

func (f *fakeBookingRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.bookings[id]; ok {
		copied := *b
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeBookingRepo) GetByReference(ctx context.Context, reference string) (*model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.bookings {
		if b.Reference == reference {
			copied := *b
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeBookingRepo) GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.Booking, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeBookingRepo) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status model.BookingStatus, cancelReason *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return errors.New("booking not found")
	}
	b.Status = status
	if cancelReason != nil {
		b.CancelReason = cancelReason
	}
	return nil
}

func (f *fakeBookingRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bookings)
}

type fakeOutboxRepo struct {
	mu     sync.Mutex
	events []*model.OutboxEvent
}

func (f *fakeOutboxRepo) CreateTx(ctx context.Context, tx *sqlx.Tx, event *model.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	event.ID = uuid.New()
	event.Status = model.OutboxStatusPending
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutboxRepo) GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.OutboxEvent(nil), f.events...), nil
}

func (f *fakeOutboxRepo) MarkProcessed(ctx context.Context, id uuid.UUID) error { return nil }

func (f *fakeOutboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, retryAt *time.Time, terminal bool) error {
	return nil
}

func (f *fakeOutboxRepo) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeOutboxRepo) typesSeen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.events {
		out = append(out, e.EventType)
	}
	return out
}

// --- fixture -------------------------------------------------------------

type fixture struct {
	svc      *Service
	slots    *fakeSlotRepo
	bookings *fakeBookingRepo
	outbox   *fakeOutboxRepo
	slotID   uuid.UUID
	basic    uuid.UUID
	premium  uuid.UUID
	tokens   *token.Signer
}

func validCustomer() model.Customer {
	return model.Customer{
		Name:    "Ada Jones",
		Email:   "ada@example.com",
		Phone:   "+15551234567",
		Address: "12 Harbour St, Oakmont",
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	basic := uuid.New()
	premium := uuid.New()
	serviceRepo := &fakeServiceRepo{services: map[uuid.UUID]*model.Service{
		basic:   {ID: basic, Name: "Exterior Wash", Price: dec("25.00"), Active: true},
		premium: {ID: premium, Name: "Full Detail", Price: dec("45.00"), Active: true},
	}}

	slotID := uuid.New()
	slotRepo := &fakeSlotRepo{slots: map[uuid.UUID]*model.Slot{
		slotID: {
			ID:        slotID,
			Date:      time.Now().AddDate(0, 0, 7),
			StartTime: "09:00",
			Status:    model.SlotStatusAvailable,
		},
	}}

	bookingRepo := &fakeBookingRepo{bookings: map[uuid.UUID]*model.Booking{}}
	outboxRepo := &fakeOutboxRepo{}

	engine, err := pricing.NewEngine(dec("0.50"))
	require.NoError(t, err)

	tokens := token.NewSigner("test-secret", time.Hour)

	svc := NewService(
		nil,
		bookingRepo,
		slotRepo,
		catalog.NewService(serviceRepo),
		engine,
		notification.NewService(outboxRepo),
		tokens,
		testLogger,
		testMetrics,
	)

	// Emulate transaction semantics over the in-memory fakes: the writes
	// of one attempt apply together or not at all, and attempts do not
	// interleave.
	var txMu sync.Mutex
	svc.runTx = func(ctx context.Context, fn func(*sqlx.Tx) error) error {
		txMu.Lock()
		defer txMu.Unlock()

		slotSnap := slotRepo.snapshot()
		bookingRepo.mu.Lock()
		bookingSnap := make(map[uuid.UUID]*model.Booking, len(bookingRepo.bookings))
		for id, b := range bookingRepo.bookings {
			copied := *b
			bookingSnap[id] = &copied
		}
		bookingRepo.mu.Unlock()
		outboxRepo.mu.Lock()
		outboxSnap := append([]*model.OutboxEvent(nil), outboxRepo.events...)
		outboxRepo.mu.Unlock()

		if err := fn(nil); err != nil {
			slotRepo.restore(slotSnap)
			bookingRepo.mu.Lock()
			bookingRepo.bookings = bookingSnap
			bookingRepo.mu.Unlock()
			outboxRepo.mu.Lock()
			outboxRepo.events = outboxSnap
			outboxRepo.mu.Unlock()
			return err
		}
		return nil
	}

	return &fixture{
		svc:      svc,
		slots:    slotRepo,
		bookings: bookingRepo,
		outbox:   outboxRepo,
		slotID:   slotID,
		basic:    basic,
		premium:  premium,
		tokens:   tokens,
	}
}

func (f *fixture) createInput() CreateInput {
	return CreateInput{
		SlotID:     f.slotID,
		ServiceIDs: []uuid.UUID{f.basic, f.premium},
		Customer:   validCustomer(),
		DistanceKm: dec("10"),
	}
}

// --- create --------------------------------------------------------------

func TestCreateBooking(t *testing.T) {
	f := newFixture(t)

	booked, cancelToken, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)
	require.NotNil(t, booked)

	assert.True(t, dec("5.00").Equal(booked.TravelCost), "travel cost: %s", booked.TravelCost)
	assert.True(t, dec("75.00").Equal(booked.TotalPrice), "total price: %s", booked.TotalPrice)
	assert.Equal(t, model.BookingStatusConfirmed, booked.Status)
	assert.Len(t, booked.Services, 2)
	assert.Regexp(t, regexp.MustCompile(`^BK-[0-9A-F]{10}$`), booked.Reference)

	// Slot flipped, booking persisted, notification intent enqueued.
	assert.Equal(t, model.SlotStatusBooked, f.slots.status(f.slotID))
	assert.Equal(t, 1, f.bookings.count())
	assert.Equal(t, []string{model.EventBookingConfirmed}, f.outbox.typesSeen())

	// The returned token cancels exactly this booking.
	id, err := f.tokens.VerifyCancelToken(cancelToken)
	require.NoError(t, err)
	assert.Equal(t, booked.ID, id)
}

func TestCreateSnapshotsServicePrices(t *testing.T) {
	f := newFixture(t)

	booked, _, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	for _, line := range booked.Services {
		if line.ServiceID == f.basic {
			assert.True(t, dec("25.00").Equal(line.PriceAtBooking))
		}
	}
}

func TestCreateCollectsAllValidationErrors(t *testing.T) {
	f := newFixture(t)

	unknown := uuid.New()
	in := CreateInput{
		SlotID:     f.slotID,
		ServiceIDs: []uuid.UUID{f.basic, unknown},
		Customer: model.Customer{
			Email:   "not-an-email",
			Phone:   "+15551234567",
			Address: "12 Harbour St",
		},
		DistanceKm: dec("-3"),
	}

	_, _, err := f.svc.Create(context.Background(), in)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "customer.name")
	assert.Contains(t, ve.Fields, "customer.email")
	assert.Contains(t, ve.Fields, "distance_km")
	assert.Contains(t, ve.Fields, "service_ids")
	assert.Contains(t, ve.Fields["service_ids"], unknown.String())

	// Nothing was touched.
	assert.Equal(t, 0, f.slots.reserveCalls)
	assert.Equal(t, 0, f.bookings.count())
	assert.Empty(t, f.outbox.typesSeen())
	assert.Equal(t, model.SlotStatusAvailable, f.slots.status(f.slotID))
}

func TestCreateRejectsDuplicateServiceIDs(t *testing.T) {
	f := newFixture(t)

	in := f.createInput()
	in.ServiceIDs = []uuid.UUID{f.basic, f.basic}

	_, _, err := f.svc.Create(context.Background(), in)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "service_ids")
	assert.Contains(t, ve.Fields["service_ids"], f.basic.String())

	// No double-charged booking, no half-done writes.
	assert.Equal(t, 0, f.bookings.count())
	assert.Equal(t, model.SlotStatusAvailable, f.slots.status(f.slotID))
}

func TestCreateRejectsInactiveService(t *testing.T) {
	f := newFixture(t)

	inactive := uuid.New()
	in := f.createInput()
	in.ServiceIDs = []uuid.UUID{inactive}

	_, _, err := f.svc.Create(context.Background(), in)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "service_ids")
}

func TestCreateUnknownSlot(t *testing.T) {
	f := newFixture(t)

	in := f.createInput()
	in.SlotID = uuid.New()

	_, _, err := f.svc.Create(context.Background(), in)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "slot_id")
}

func TestCreateSlotAlreadyBooked(t *testing.T) {
	f := newFixture(t)
	f.slots.slots[f.slotID].Status = model.SlotStatusBooked

	_, _, err := f.svc.Create(context.Background(), f.createInput())
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.Equal(t, 0, f.bookings.count())
}

func TestCreateLosesSlotRace(t *testing.T) {
	f := newFixture(t)
	// The read sees an available slot but the conditional flip fails,
	// as when another transaction commits in between.
	f.slots.forceReserveFail = true

	_, _, err := f.svc.Create(context.Background(), f.createInput())
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.Equal(t, 0, f.bookings.count())
	assert.Empty(t, f.outbox.typesSeen())
}

func TestCreateRollsBackOnPersistenceFailure(t *testing.T) {
	f := newFixture(t)
	f.bookings.createErr = []error{errors.New("insert failed")}

	_, _, err := f.svc.Create(context.Background(), f.createInput())
	assert.ErrorIs(t, err, ErrPersistence)

	// The slot reservation was rolled back with the failed insert.
	assert.Equal(t, model.SlotStatusAvailable, f.slots.status(f.slotID))
	assert.Equal(t, 0, f.bookings.count())
	assert.Empty(t, f.outbox.typesSeen())
}

func TestCreateRetriesDuplicateReferenceOnce(t *testing.T) {
	f := newFixture(t)
	f.bookings.createErr = []error{postgres.ErrDuplicateReference}

	refs := []string{"BK-AAAAAAAAAA", "BK-BBBBBBBBBB"}
	f.svc.newRef = func() string {
		r := refs[0]
		if len(refs) > 1 {
			refs = refs[1:]
		}
		return r
	}

	booked, _, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)
	assert.Equal(t, "BK-BBBBBBBBBB", booked.Reference)
	assert.Equal(t, 2, f.bookings.creates)
	assert.Equal(t, 1, f.bookings.count())
}

func TestCreateGivesUpAfterSecondDuplicate(t *testing.T) {
	f := newFixture(t)
	f.bookings.createErr = []error{postgres.ErrDuplicateReference, postgres.ErrDuplicateReference}

	_, _, err := f.svc.Create(context.Background(), f.createInput())
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, 2, f.bookings.creates)
	assert.Equal(t, 0, f.bookings.count())
	assert.Equal(t, model.SlotStatusAvailable, f.slots.status(f.slotID))
}

func TestCreateConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)

	const attempts = 8
	results := make(chan error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.svc.Create(context.Background(), f.createInput())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrSlotTaken):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, wins)
	assert.Equal(t, attempts-1, conflicts)
	assert.Equal(t, 1, f.bookings.count())
	assert.Equal(t, model.SlotStatusBooked, f.slots.status(f.slotID))
}

// --- cancel --------------------------------------------------------------

func TestCancelBooking(t *testing.T) {
	f := newFixture(t)

	booked, _, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(context.Background(), booked.ID, "change of plans")
	require.NoError(t, err)

	assert.Equal(t, model.BookingStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, "change of plans", *cancelled.CancelReason)

	// Slot released atomically with the status change.
	assert.Equal(t, model.SlotStatusAvailable, f.slots.status(f.slotID))
	assert.Equal(t, []string{model.EventBookingConfirmed, model.EventBookingCancelled}, f.outbox.typesSeen())
}

func TestCancelDefaultsReason(t *testing.T) {
	f := newFixture(t)

	booked, _, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(context.Background(), booked.ID, "")
	require.NoError(t, err)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, "cancelled by customer", *cancelled.CancelReason)
}

func TestCancelTwice(t *testing.T) {
	f := newFixture(t)

	booked, _, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), booked.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), booked.ID, "")
	assert.ErrorIs(t, err, ErrAlreadyCancelled)

	// The slot stays available; the second cancel changed nothing.
	assert.Equal(t, model.SlotStatusAvailable, f.slots.status(f.slotID))
}

func TestCancelNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Cancel(context.Background(), uuid.New(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelPastBooking(t *testing.T) {
	f := newFixture(t)

	booked, _, err := f.svc.Create(context.Background(), f.createInput())
	require.NoError(t, err)

	f.svc.now = func() time.Time { return time.Now().AddDate(0, 0, 14) }

	_, err = f.svc.Cancel(context.Background(), booked.ID, "")
	assert.ErrorIs(t, err, ErrPastBooking)

	// Booking and slot unchanged.
	kept, err := f.svc.GetByID(context.Background(), booked.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusConfirmed, kept.Status)
	assert.Equal(t, model.SlotStatusBooked, f.slots.status(f.slotID))
}

// --- quote ---------------------------------------------------------------

func TestQuote(t *testing.T) {
	f := newFixture(t)

	quote, err := f.svc.Quote(context.Background(), []uuid.UUID{f.basic, f.premium}, dec("10"))
	require.NoError(t, err)

	assert.True(t, dec("70.00").Equal(quote.ServiceTotal))
	assert.True(t, dec("5.00").Equal(quote.TravelCost))
	assert.True(t, dec("75.00").Equal(quote.Total))

	// Quoting writes nothing.
	assert.Equal(t, 0, f.bookings.count())
	assert.Equal(t, model.SlotStatusAvailable, f.slots.status(f.slotID))
}

func TestQuoteUnknownService(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Quote(context.Background(), []uuid.UUID{uuid.New()}, decimal.Zero)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "service_ids")
}

func TestQuoteNoServices(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Quote(context.Background(), nil, decimal.Zero)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "service_ids")
}

func TestQuoteRejectsDuplicateServiceIDs(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Quote(context.Background(), []uuid.UUID{f.premium, f.premium}, dec("10"))

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields["service_ids"], f.premium.String())
}

// --- helpers -------------------------------------------------------------

func TestNewReferenceFormat(t *testing.T) {
	seen := map[string]bool{}
	pattern := regexp.MustCompile(`^BK-[0-9A-F]{10}$`)
	for i := 0; i < 100; i++ {
		ref := newReference()
		assert.Regexp(t, pattern, ref)
		seen[ref] = true
	}
	assert.Greater(t, len(seen), 90, "references should be effectively unique")
}

func TestValidationErrorMessageIsStable(t *testing.T) {
	ve := &ValidationError{Fields: map[string]string{
		"customer.name": "field is required",
		"distance_km":   "distance cannot be negative",
	}}
	assert.Equal(t,
		"booking: validation failed: customer.name: field is required; distance_km: distance cannot be negative",
		ve.Error())
}
