package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/transitfare/fare-go/internal/domain"
	"github.com/transitfare/fare-go/internal/inventory"
	"github.com/transitfare/fare-go/internal/policy"
	"github.com/transitfare/fare-go/internal/promo"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

// --- fakes ---

type fakeSource struct {
	mu        sync.Mutex
	schedules map[string]*domain.Schedule
	loads     int
}

func (f *fakeSource) LoadSchedule(_ context.Context, id string) (*domain.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.loads++
	s, ok := f.schedules[id]
	if !ok {
		return nil, fmt.Errorf("schedule %s: %w", id, domain.ErrNotFound)
	}
	return s, nil
}

type fakeStore struct {
	mu sync.Mutex

	failCreate bool
	failUpdate bool
	failSave   bool
	failCancel bool

	created       []domain.BookingRecord
	updated       []domain.BookingRecord
	payments      []domain.PaymentRecord
	cancellations []domain.BookingRecord
}

var errStorageDown = errors.New("storage down")

func (f *fakeStore) CreateBooking(_ context.Context, rec domain.BookingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failCreate {
		return errStorageDown
	}
	f.created = append(f.created, rec)
	return nil
}

func (f *fakeStore) UpdateBooking(_ context.Context, rec domain.BookingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failUpdate {
		return errStorageDown
	}
	f.updated = append(f.updated, rec)
	return nil
}

func (f *fakeStore) SavePayment(_ context.Context, pay domain.PaymentRecord, rec domain.BookingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failSave {
		return errStorageDown
	}
	f.payments = append(f.payments, pay)
	f.updated = append(f.updated, rec)
	return nil
}

func (f *fakeStore) SaveCancellation(_ context.Context, rec domain.BookingRecord, pay *domain.PaymentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failCancel {
		return errStorageDown
	}
	f.cancellations = append(f.cancellations, rec)
	if pay != nil {
		f.payments = append(f.payments, *pay)
	}
	return nil
}

type fakeCatalog struct {
	rules []domain.CancellationPolicy
	codes []domain.PromotionalCode
}

func (f *fakeCatalog) LoadCancellationPolicies(context.Context) ([]domain.CancellationPolicy, error) {
	return f.rules, nil
}

func (f *fakeCatalog) LoadPromotionalCodes(context.Context) ([]domain.PromotionalCode, error) {
	return f.codes, nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	confirmed int
	paid      int
	cancelled int
	refunds   []int64
}

func (f *fakeNotifier) BookingConfirmed(context.Context, domain.BookingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed++
	return nil
}

func (f *fakeNotifier) PaymentConfirmed(context.Context, domain.PaymentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paid++
	return nil
}

func (f *fakeNotifier) BookingCancelled(_ context.Context, _ domain.BookingRecord, refund int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled++
	f.refunds = append(f.refunds, refund)
	return nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) (bool, int64, time.Duration, error) {
	return false, 0, time.Minute, nil
}

// --- fixtures ---

func businessSchedule(id string, departure time.Time) *domain.Schedule {
	sched := &domain.Schedule{
		ID:        id,
		RouteID:   "rt-1",
		Date:      departure.Truncate(24 * time.Hour),
		Departure: departure,
		Arrival:   departure.Add(4 * time.Hour),
		SeatClass: domain.ClassBusiness,
		ClassPct:  150,
		Route: &domain.Route{
			ID:             "rt-1",
			Source:         "Dhaka",
			Destination:    "Chittagong",
			BasePriceCents: 1000,
		},
	}
	for i := 1; i <= 4; i++ {
		sched.Seats = append(sched.Seats, domain.Seat{
			ID:        fmt.Sprintf("A%d", i),
			Class:     domain.ClassBusiness,
			Available: true,
		})
	}
	return sched
}

type fixture struct {
	svc      *Service
	store    *fakeStore
	source   *fakeSource
	notifier *fakeNotifier
	inv      *inventory.Inventory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	source := &fakeSource{schedules: map[string]*domain.Schedule{
		"sch-far":  businessSchedule("sch-far", testNow.Add(72*time.Hour)),
		"sch-near": businessSchedule("sch-near", testNow.Add(1*time.Hour)),
	}}
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	inv := inventory.New()

	policies, err := policy.NewTable(
		domain.CancellationPolicy{ID: "p48", RefundPct: 75, HoursBefore: 48},
		domain.CancellationPolicy{ID: "p24", RefundPct: 50, HoursBefore: 24},
	)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	promos := promo.NewRegistry(fixedClock)
	if err := promos.Add(domain.PromotionalCode{
		Code:        "WELCOME10",
		ExpiresAt:   testNow.AddDate(0, 1, 0),
		DiscountPct: 10,
		Active:      true,
	}); err != nil {
		t.Fatalf("Add promo: %v", err)
	}

	svc := New(Config{
		Source:    source,
		Store:     store,
		Catalog:   &fakeCatalog{},
		Notifier:  notifier,
		Inventory: inv,
		Policies:  policies,
		Promos:    promos,
		Now:       fixedClock,
	})

	return &fixture{svc: svc, store: store, source: source, notifier: notifier, inv: inv}
}

func (f *fixture) book(t *testing.T, scheduleID string, seats []string, promoCode string) *domain.Booking {
	t.Helper()

	b, err := f.svc.BookSeats(context.Background(), BookSeatsInput{
		CustomerID: "cust-1",
		ScheduleID: scheduleID,
		SeatIDs:    seats,
		PromoCode:  promoCode,
	})
	if err != nil {
		t.Fatalf("BookSeats: %v", err)
	}
	return b
}

func (f *fixture) payAndConfirm(t *testing.T, b *domain.Booking) *domain.Payment {
	t.Helper()

	p, err := f.svc.Pay(context.Background(), b.ID(), "card")
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if err := f.svc.ConfirmPayment(context.Background(), b.ID()); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	return p
}

// --- tests ---

func TestBookSeatsHappyPath(t *testing.T) {
	f := newFixture(t)

	b := f.book(t, "sch-far", []string{"A1", "A2"}, "")

	// 1000 base * 150% business class.
	if b.TotalCents() != 1500 {
		t.Fatalf("total = %d, want 1500", b.TotalCents())
	}
	if b.Status() != domain.BookingConfirmed || b.Paid() {
		t.Fatalf("state = %s paid=%v, want confirmed unpaid", b.Status(), b.Paid())
	}

	if len(f.store.created) != 1 {
		t.Fatalf("created records = %d, want 1", len(f.store.created))
	}
	if f.notifier.confirmed != 1 {
		t.Fatalf("confirmed events = %d, want 1", f.notifier.confirmed)
	}

	counts, err := f.inv.Counts("sch-far")
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Taken != 2 {
		t.Fatalf("taken = %d, want 2", counts.Taken)
	}

	got, err := f.svc.GetBooking(b.ID())
	if err != nil {
		t.Fatalf("GetBooking: %v", err)
	}
	if got != b {
		t.Fatal("GetBooking returned a different instance")
	}
}

func TestBookSeatsWithPromo(t *testing.T) {
	f := newFixture(t)

	b := f.book(t, "sch-far", []string{"A1"}, "welcome10")

	// 1500 minus 10%.
	if b.TotalCents() != 1350 {
		t.Fatalf("total = %d, want 1350", b.TotalCents())
	}
	if f.store.created[0].PromoCode != "welcome10" {
		t.Fatalf("promo code = %q", f.store.created[0].PromoCode)
	}
}

func TestBookSeatsInvalidPromoAborts(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.BookSeats(context.Background(), BookSeatsInput{
		CustomerID: "cust-1",
		ScheduleID: "sch-far",
		SeatIDs:    []string{"A1"},
		PromoCode:  "NOSUCHCODE",
	})
	if !errors.Is(err, domain.ErrInvalidPromo) {
		t.Fatalf("err = %v, want ErrInvalidPromo", err)
	}

	if len(f.store.created) != 0 {
		t.Fatal("booking persisted despite invalid promo")
	}

	// The claim must have been rolled back.
	counts, _ := f.inv.Counts("sch-far")
	if counts.Taken != 0 {
		t.Fatalf("taken = %d after aborted booking, want 0", counts.Taken)
	}
}

func TestBookSeatsPersistFailureReleasesSeats(t *testing.T) {
	f := newFixture(t)
	f.store.failCreate = true

	_, err := f.svc.BookSeats(context.Background(), BookSeatsInput{
		CustomerID: "cust-1",
		ScheduleID: "sch-far",
		SeatIDs:    []string{"A1", "A2"},
	})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}

	counts, _ := f.inv.Counts("sch-far")
	if counts.Taken != 0 {
		t.Fatalf("taken = %d after failed persist, want 0", counts.Taken)
	}

	// The seats must be bookable once storage recovers.
	f.store.failCreate = false
	f.book(t, "sch-far", []string{"A1", "A2"}, "")
}

func TestBookSeatsConflictOnTakenSeat(t *testing.T) {
	f := newFixture(t)

	f.book(t, "sch-far", []string{"A1"}, "")

	_, err := f.svc.BookSeats(context.Background(), BookSeatsInput{
		CustomerID: "cust-2",
		ScheduleID: "sch-far",
		SeatIDs:    []string{"A1", "A2"},
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	// A2 was untouched by the failed all-or-nothing claim.
	f.book(t, "sch-far", []string{"A2"}, "")
}

func TestBookSeatsRejectsRepeatedSeat(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.BookSeats(context.Background(), BookSeatsInput{
		CustomerID: "cust-1",
		ScheduleID: "sch-far",
		SeatIDs:    []string{"A1", "A1"},
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	if len(f.store.created) != 0 {
		t.Fatal("booking persisted despite repeated seat")
	}

	counts, _ := f.inv.Counts("sch-far")
	if counts.Taken != 0 {
		t.Fatalf("taken = %d after rejected booking, want 0", counts.Taken)
	}

	// Listing the seat once books it at the single-seat price.
	b := f.book(t, "sch-far", []string{"A1"}, "")
	if b.TotalCents() != 1500 {
		t.Fatalf("total = %d, want 1500", b.TotalCents())
	}
}

func TestConcurrentBookingsSameSeatOneWinner(t *testing.T) {
	f := newFixture(t)

	const workers = 10

	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.BookSeats(context.Background(), BookSeatsInput{
				CustomerID: fmt.Sprintf("cust-%d", i),
				ScheduleID: "sch-far",
				SeatIDs:    []string{"A1"},
			})
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else if !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
	if len(f.store.created) != 1 {
		t.Fatalf("created records = %d, want 1", len(f.store.created))
	}
}

func TestPayConfirmCompleteFlow(t *testing.T) {
	f := newFixture(t)

	b := f.book(t, "sch-far", []string{"A1"}, "")
	p := f.payAndConfirm(t, b)

	if p.Status() != domain.PaymentCompleted {
		t.Fatalf("payment status = %s, want completed", p.Status())
	}
	if !b.Paid() {
		t.Fatal("booking not marked paid")
	}
	if f.notifier.paid != 1 {
		t.Fatalf("payment events = %d, want 1", f.notifier.paid)
	}

	if err := f.svc.Complete(context.Background(), b.ID()); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if b.Status() != domain.BookingCompleted {
		t.Fatalf("status = %s, want completed", b.Status())
	}
}

func TestConfirmPaymentPersistFailureLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)

	b := f.book(t, "sch-far", []string{"A1"}, "")
	p, err := f.svc.Pay(context.Background(), b.ID(), "card")
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}

	f.store.failSave = true
	err = f.svc.ConfirmPayment(context.Background(), b.ID())
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}

	if p.Status() != domain.PaymentProcessing {
		t.Fatalf("payment status = %s, want still processing", p.Status())
	}
	if b.Paid() {
		t.Fatal("booking marked paid despite failed persist")
	}

	f.store.failSave = false
	if err := f.svc.ConfirmPayment(context.Background(), b.ID()); err != nil {
		t.Fatalf("retry ConfirmPayment: %v", err)
	}
}

func TestPayPersistFailureAllowsRetry(t *testing.T) {
	f := newFixture(t)

	b := f.book(t, "sch-far", []string{"A1"}, "")

	f.store.failSave = true
	if _, err := f.svc.Pay(context.Background(), b.ID(), "card"); !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}
	if b.Payment() != nil {
		t.Fatal("payment left attached after failed persist")
	}

	f.store.failSave = false
	if _, err := f.svc.Pay(context.Background(), b.ID(), "card"); err != nil {
		t.Fatalf("retry Pay: %v", err)
	}
}

func TestFailPaymentAllowsNewAttempt(t *testing.T) {
	f := newFixture(t)

	b := f.book(t, "sch-far", []string{"A1"}, "")

	if _, err := f.svc.Pay(context.Background(), b.ID(), "card"); err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if err := f.svc.FailPayment(context.Background(), b.ID()); err != nil {
		t.Fatalf("FailPayment: %v", err)
	}

	p2, err := f.svc.Pay(context.Background(), b.ID(), "cash")
	if err != nil {
		t.Fatalf("Pay after failure: %v", err)
	}
	if p2.Status() != domain.PaymentProcessing {
		t.Fatalf("payment status = %s, want processing", p2.Status())
	}
}

func TestCancelUnpaidReleasesSeats(t *testing.T) {
	f := newFixture(t)

	b := f.book(t, "sch-far", []string{"A1", "A2"}, "")

	refund, err := f.svc.Cancel(context.Background(), b.ID())
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if refund != 0 {
		t.Fatalf("refund = %d, want 0 for unpaid booking", refund)
	}
	if b.Status() != domain.BookingCancelled {
		t.Fatalf("status = %s, want cancelled", b.Status())
	}

	counts, _ := f.inv.Counts("sch-far")
	if counts.Available != 4 {
		t.Fatalf("available = %d, want all 4 back", counts.Available)
	}
	if f.notifier.cancelled != 1 {
		t.Fatalf("cancel events = %d, want 1", f.notifier.cancelled)
	}
}

func TestCancelPaidRefundsPerPolicy(t *testing.T) {
	f := newFixture(t)

	// 72h lead matches the 48h/75% rule; 75% of 1500 = 1125.
	b := f.book(t, "sch-far", []string{"A1"}, "")
	p := f.payAndConfirm(t, b)

	refund, err := f.svc.Cancel(context.Background(), b.ID())
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if refund != 1125 {
		t.Fatalf("refund = %d, want 1125", refund)
	}

	if p.Status() != domain.PaymentRefunded {
		t.Fatalf("payment status = %s, want refunded", p.Status())
	}
	if p.RefundedCents() != 1125 {
		t.Fatalf("refunded = %d, want 1125", p.RefundedCents())
	}
	if f.notifier.refunds[0] != 1125 {
		t.Fatalf("notified refund = %d, want 1125", f.notifier.refunds[0])
	}
}

func TestCancelPaidNoPolicyRefundsZero(t *testing.T) {
	f := newFixture(t)

	// 1h lead is below every threshold.
	b := f.book(t, "sch-near", []string{"A1"}, "")
	p := f.payAndConfirm(t, b)

	refund, err := f.svc.Cancel(context.Background(), b.ID())
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if refund != 0 {
		t.Fatalf("refund = %d, want 0", refund)
	}

	if p.Status() != domain.PaymentRefunded {
		t.Fatalf("payment status = %s, want refunded at zero", p.Status())
	}
	if b.Status() != domain.BookingCancelled {
		t.Fatalf("status = %s, want cancelled", b.Status())
	}
}

func TestCancelAbortsProcessingPayment(t *testing.T) {
	f := newFixture(t)

	b := f.book(t, "sch-far", []string{"A1"}, "")
	p, err := f.svc.Pay(context.Background(), b.ID(), "card")
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}

	refund, err := f.svc.Cancel(context.Background(), b.ID())
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if refund != 0 {
		t.Fatalf("refund = %d, want 0", refund)
	}
	if p.Status() != domain.PaymentFailed {
		t.Fatalf("payment status = %s, want failed", p.Status())
	}
}

func TestCancelCompletedRejected(t *testing.T) {
	f := newFixture(t)

	b := f.book(t, "sch-far", []string{"A1"}, "")
	f.payAndConfirm(t, b)
	if err := f.svc.Complete(context.Background(), b.ID()); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if _, err := f.svc.Cancel(context.Background(), b.ID()); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestCancelPersistFailureKeepsBookingConfirmed(t *testing.T) {
	f := newFixture(t)

	b := f.book(t, "sch-far", []string{"A1"}, "")

	f.store.failCancel = true
	if _, err := f.svc.Cancel(context.Background(), b.ID()); !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}

	if b.Status() != domain.BookingConfirmed {
		t.Fatalf("status = %s, want still confirmed", b.Status())
	}
	counts, _ := f.inv.Counts("sch-far")
	if counts.Taken != 1 {
		t.Fatalf("taken = %d, seats must stay claimed", counts.Taken)
	}
}

func TestApplyPromoRecomputesFromBase(t *testing.T) {
	f := newFixture(t)

	b := f.book(t, "sch-far", []string{"A1"}, "")
	if b.TotalCents() != 1500 {
		t.Fatalf("total = %d, want 1500", b.TotalCents())
	}

	if _, err := f.svc.ApplyPromo(context.Background(), b.ID(), "WELCOME10"); err != nil {
		t.Fatalf("ApplyPromo: %v", err)
	}
	if b.TotalCents() != 1350 {
		t.Fatalf("total = %d, want 1350", b.TotalCents())
	}

	// A second application does not stack on the discounted total.
	if _, err := f.svc.ApplyPromo(context.Background(), b.ID(), "WELCOME10"); err != nil {
		t.Fatalf("second ApplyPromo: %v", err)
	}
	if b.TotalCents() != 1350 {
		t.Fatalf("total = %d after reapply, want 1350", b.TotalCents())
	}
}

func TestApplyPromoRejectedAfterPayment(t *testing.T) {
	f := newFixture(t)

	b := f.book(t, "sch-far", []string{"A1"}, "")
	if _, err := f.svc.Pay(context.Background(), b.ID(), "card"); err != nil {
		t.Fatalf("Pay: %v", err)
	}

	if _, err := f.svc.ApplyPromo(context.Background(), b.ID(), "WELCOME10"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestBookSeatsRateLimited(t *testing.T) {
	f := newFixture(t)
	f.svc.limiter = denyLimiter{}

	_, err := f.svc.BookSeats(context.Background(), BookSeatsInput{
		CustomerID:  "cust-1",
		ScheduleID:  "sch-far",
		SeatIDs:     []string{"A1"},
		ThrottleKey: "ip:1.2.3.4",
	})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}

func TestRefreshCatalogReplacesTables(t *testing.T) {
	f := newFixture(t)
	f.svc.catalog = &fakeCatalog{
		rules: []domain.CancellationPolicy{{ID: "p1", RefundPct: 100, HoursBefore: 1}},
		codes: []domain.PromotionalCode{{
			Code:        "FRESH20",
			ExpiresAt:   testNow.AddDate(0, 1, 0),
			DiscountPct: 20,
			Active:      true,
		}},
	}

	if err := f.svc.RefreshCatalog(context.Background()); err != nil {
		t.Fatalf("RefreshCatalog: %v", err)
	}

	if !f.svc.promos.Validate("FRESH20") {
		t.Fatal("refreshed promo not usable")
	}
	if f.svc.promos.Validate("WELCOME10") {
		t.Fatal("old promo survived the replace")
	}

	rule, err := f.svc.policies.Applicable(2)
	if err != nil {
		t.Fatalf("Applicable: %v", err)
	}
	if rule.ID != "p1" {
		t.Fatalf("rule = %s, want p1", rule.ID)
	}
}

func TestEnsureScheduleLoadsOnce(t *testing.T) {
	f := newFixture(t)

	f.book(t, "sch-far", []string{"A1"}, "")
	f.book(t, "sch-far", []string{"A2"}, "")

	f.source.mu.Lock()
	loads := f.source.loads
	f.source.mu.Unlock()

	if loads != 1 {
		t.Fatalf("schedule loads = %d, want 1", loads)
	}
}
