// Package booking orchestrates the full reservation flow: seat claims,
// pricing, promo redemption, payment lifecycle and cancellation refunds.
// Every state transition is persisted before the in-memory model advances, so
// a storage failure never leaves the engine ahead of the database.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/transitfare/fare-go/internal/domain"
	"github.com/transitfare/fare-go/internal/inventory"
	"github.com/transitfare/fare-go/internal/policy"
	"github.com/transitfare/fare-go/internal/pricing"
	"github.com/transitfare/fare-go/internal/promo"
	redisrepo "github.com/transitfare/fare-go/internal/repository/redis"
)

const defaultClaimTimeout = 3 * time.Second

// RateLimiter throttles booking attempts per caller key. A nil limiter
// disables throttling.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (allowed bool, current int64, retryAfter time.Duration, err error)
}

type Config struct {
	Logger    *slog.Logger
	Source    ScheduleSource
	Store     Persister
	Catalog   CatalogSource
	Notifier  Notifier
	Inventory *inventory.Inventory
	Policies  *policy.Table
	Promos    *promo.Registry

	// Optional collaborators.
	Cache   *redisrepo.Cache
	Limiter RateLimiter

	// ClaimTimeout bounds how long a claim may wait on a contended schedule.
	ClaimTimeout time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

type Service struct {
	log      *slog.Logger
	source   ScheduleSource
	store    Persister
	catalog  CatalogSource
	notifier Notifier
	inv      *inventory.Inventory
	policies *policy.Table
	promos   *promo.Registry
	cache    *redisrepo.Cache
	limiter  RateLimiter

	claimTimeout time.Duration
	now          func() time.Time

	schedMu   sync.RWMutex
	schedules map[string]*domain.Schedule

	bookMu   sync.RWMutex
	bookings map[uuid.UUID]*entry
}

// entry serializes compound operations on one booking. The domain types guard
// their own invariants; this lock keeps multi-step flows (validate, persist,
// apply) from interleaving.
type entry struct {
	mu sync.Mutex
	b  *domain.Booking
}

func New(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = Notifiers{}
	}
	if cfg.ClaimTimeout <= 0 {
		cfg.ClaimTimeout = defaultClaimTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		log:          cfg.Logger,
		source:       cfg.Source,
		store:        cfg.Store,
		catalog:      cfg.Catalog,
		notifier:     cfg.Notifier,
		inv:          cfg.Inventory,
		policies:     cfg.Policies,
		promos:       cfg.Promos,
		cache:        cfg.Cache,
		limiter:      cfg.Limiter,
		claimTimeout: cfg.ClaimTimeout,
		now:          cfg.Now,
		schedules:    make(map[string]*domain.Schedule),
		bookings:     make(map[uuid.UUID]*entry),
	}
}

type BookSeatsInput struct {
	CustomerID string
	ScheduleID string
	SeatIDs    []string
	PromoCode  string

	// ThrottleKey identifies the caller for rate limiting; empty skips the
	// limiter.
	ThrottleKey string
}

// BookSeats claims the requested seats, prices them and confirms a booking.
// The claim is all-or-nothing; an invalid promo code aborts the whole attempt
// and returns the seats. On a persistence failure the claim is rolled back
// and ErrPersistence is returned.
func (s *Service) BookSeats(ctx context.Context, in BookSeatsInput) (*domain.Booking, error) {
	const op = "booking.Service.BookSeats"

	if s.limiter != nil && in.ThrottleKey != "" {
		allowed, _, retryAfter, err := s.limiter.Allow(ctx, in.ThrottleKey)
		if err != nil {
			// Fail open: a broken limiter must not block bookings.
			s.log.Warn("rate limiter unavailable", "error", err)
		} else if !allowed {
			return nil, fmt.Errorf("%s: retry in %s: %w", op, retryAfter, ErrRateLimited)
		}
	}

	sched, err := s.ensureSchedule(ctx, in.ScheduleID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	claimCtx, cancel := context.WithTimeout(ctx, s.claimTimeout)
	defer cancel()

	if err := s.inv.Claim(claimCtx, in.ScheduleID, in.SeatIDs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	res, err := domain.NewReservation(in.ScheduleID, sched.RouteID, sched.SeatClass, in.SeatIDs)
	if err != nil {
		s.releaseClaim(ctx, in.ScheduleID, in.SeatIDs)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	total := s.quote(sched, in.SeatIDs)

	if in.PromoCode != "" {
		total, err = s.promos.Redeem(in.PromoCode, total)
		if err != nil {
			s.releaseClaim(ctx, in.ScheduleID, in.SeatIDs)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	b := domain.NewBooking(in.CustomerID, res, total, in.PromoCode, s.now())

	rec := b.Record()
	if err := s.store.CreateBooking(ctx, rec); err != nil {
		s.releaseClaim(ctx, in.ScheduleID, in.SeatIDs)
		return nil, fmt.Errorf("%s: %v: %w", op, err, domain.ErrPersistence)
	}

	s.bookMu.Lock()
	s.bookings[b.ID()] = &entry{b: b}
	s.bookMu.Unlock()

	s.invalidate(ctx, in.ScheduleID)
	_ = s.notifier.BookingConfirmed(context.WithoutCancel(ctx), rec)

	s.log.Info("booking confirmed",
		"booking_id", b.ID(),
		"schedule_id", in.ScheduleID,
		"seats", len(in.SeatIDs),
		"total_cents", total,
	)

	return b, nil
}

// GetBooking looks up a live booking by id.
func (s *Service) GetBooking(id uuid.UUID) (*domain.Booking, error) {
	const op = "booking.Service.GetBooking"

	e, err := s.lookup(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return e.b, nil
}

// CustomerBookings lists every booking held for a customer, most recent
// first is not guaranteed.
func (s *Service) CustomerBookings(customerID string) []*domain.Booking {
	s.bookMu.RLock()
	defer s.bookMu.RUnlock()

	var out []*domain.Booking
	for _, e := range s.bookings {
		if e.b.CustomerID() == customerID {
			out = append(out, e.b)
		}
	}

	return out
}

// ApplyPromo re-prices an unpaid booking with a promo code. The discount is
// computed from the undiscounted quote, so applying a second code replaces
// the first instead of stacking.
func (s *Service) ApplyPromo(ctx context.Context, bookingID uuid.UUID, code string) (*domain.Booking, error) {
	const op = "booking.Service.ApplyPromo"

	e, err := s.lookup(bookingID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.b
	if b.Status() != domain.BookingConfirmed || b.Paid() || b.Payment() != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, b.Status(), domain.ErrInvalidTransition)
	}

	sched, err := s.ensureSchedule(ctx, b.Reservation().ScheduleID())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	base := s.quote(sched, b.Reservation().SeatIDs())
	total, err := s.promos.Redeem(code, base)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rec := b.Record()
	rec.TotalCents = total
	rec.PromoCode = code

	if err := s.store.UpdateBooking(ctx, rec); err != nil {
		return nil, fmt.Errorf("%s: %v: %w", op, err, domain.ErrPersistence)
	}

	if err := b.AdjustTotal(total, code); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return b, nil
}

// Pay opens a payment for the booking's current total and moves it to
// Processing. A Failed previous payment may be replaced; a live one blocks.
func (s *Service) Pay(ctx context.Context, bookingID uuid.UUID, method string) (*domain.Payment, error) {
	const op = "booking.Service.Pay"

	e, err := s.lookup(bookingID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.b
	p := domain.NewPayment(b.ID(), b.TotalCents(), method)

	if err := b.AttachPayment(p); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := p.Initiate(); err != nil {
		b.DetachPayment(p)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.store.SavePayment(ctx, p.Record(), b.Record()); err != nil {
		b.DetachPayment(p)
		return nil, fmt.Errorf("%s: %v: %w", op, err, domain.ErrPersistence)
	}

	return p, nil
}

// ConfirmPayment completes the booking's processing payment and marks the
// booking paid, atomically from the caller's point of view.
func (s *Service) ConfirmPayment(ctx context.Context, bookingID uuid.UUID) error {
	const op = "booking.Service.ConfirmPayment"

	e, err := s.lookup(bookingID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.b
	p := b.Payment()
	if p == nil {
		return fmt.Errorf("%s: no payment: %w", op, domain.ErrNotFound)
	}

	if p.Status() != domain.PaymentProcessing {
		return fmt.Errorf("%s: payment %s: %w", op, p.Status(), domain.ErrInvalidTransition)
	}

	if b.Status() != domain.BookingConfirmed || b.Paid() {
		return fmt.Errorf("%s: %s: %w", op, b.Status(), domain.ErrInvalidTransition)
	}

	now := s.now()

	pr := p.Record()
	pr.Status = domain.PaymentCompleted
	pr.ConfirmedAt = &now

	br := b.Record()
	br.Paid = true

	if err := s.store.SavePayment(ctx, pr, br); err != nil {
		return fmt.Errorf("%s: %v: %w", op, err, domain.ErrPersistence)
	}

	if err := p.Confirm(now); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := b.MarkPaid(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_ = s.notifier.PaymentConfirmed(context.WithoutCancel(ctx), pr)

	s.log.Info("payment confirmed", "booking_id", b.ID(), "payment_id", p.ID(), "amount_cents", p.AmountCents())

	return nil
}

// FailPayment aborts the booking's pending or processing payment. The booking
// stays confirmed and may be paid again.
func (s *Service) FailPayment(ctx context.Context, bookingID uuid.UUID) error {
	const op = "booking.Service.FailPayment"

	e, err := s.lookup(bookingID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.b
	p := b.Payment()
	if p == nil {
		return fmt.Errorf("%s: no payment: %w", op, domain.ErrNotFound)
	}

	if st := p.Status(); st != domain.PaymentPending && st != domain.PaymentProcessing {
		return fmt.Errorf("%s: payment %s: %w", op, st, domain.ErrInvalidTransition)
	}

	pr := p.Record()
	pr.Status = domain.PaymentFailed

	if err := s.store.SavePayment(ctx, pr, b.Record()); err != nil {
		return fmt.Errorf("%s: %v: %w", op, err, domain.ErrPersistence)
	}

	return p.Fail()
}

// Complete closes out a paid booking after the trip. Seats stay taken; the
// schedule has departed.
func (s *Service) Complete(ctx context.Context, bookingID uuid.UUID) error {
	const op = "booking.Service.Complete"

	e, err := s.lookup(bookingID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.b
	if b.Status() != domain.BookingConfirmed || !b.Paid() {
		return fmt.Errorf("%s: %s: %w", op, b.Status(), domain.ErrInvalidTransition)
	}

	br := b.Record()
	br.Status = domain.BookingCompleted

	if err := s.store.UpdateBooking(ctx, br); err != nil {
		return fmt.Errorf("%s: %v: %w", op, err, domain.ErrPersistence)
	}

	return b.Complete()
}

// Cancel cancels a confirmed booking, releases its seats and refunds a paid
// booking per the cancellation-policy table. When no policy covers the
// remaining lead time the payment is still marked refunded, at zero. An
// unconfirmed live payment is aborted instead of refunded. Returns the
// refunded amount in cents.
func (s *Service) Cancel(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	const op = "booking.Service.Cancel"

	e, err := s.lookup(bookingID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.b
	if b.Status() != domain.BookingConfirmed {
		return 0, fmt.Errorf("%s: %s: %w", op, b.Status(), domain.ErrInvalidTransition)
	}

	scheduleID := b.Reservation().ScheduleID()

	sched, err := s.ensureSchedule(ctx, scheduleID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var (
		refund  int64
		paySnap *domain.PaymentRecord
	)

	p := b.Payment()
	switch {
	case b.Paid():
		hours := sched.Departure.Sub(s.now()).Hours()

		rule, perr := s.policies.Applicable(hours)
		switch {
		case perr == nil:
			refund = pricing.Percentage(p.AmountCents(), rule.RefundPct)
		case errors.Is(perr, domain.ErrNoPolicy):
			refund = 0
		default:
			return 0, fmt.Errorf("%s: %w", op, perr)
		}

		pr := p.Record()
		pr.Status = domain.PaymentRefunded
		pr.RefundedCents = refund
		paySnap = &pr

	case p != nil && (p.Status() == domain.PaymentPending || p.Status() == domain.PaymentProcessing):
		pr := p.Record()
		pr.Status = domain.PaymentFailed
		paySnap = &pr
	}

	br := b.Record()
	br.Status = domain.BookingCancelled

	if err := s.store.SaveCancellation(ctx, br, paySnap); err != nil {
		return 0, fmt.Errorf("%s: %v: %w", op, err, domain.ErrPersistence)
	}

	if err := b.Cancel(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if paySnap != nil {
		switch paySnap.Status {
		case domain.PaymentRefunded:
			if err := p.Refund(refund); err != nil {
				return 0, fmt.Errorf("%s: %w", op, err)
			}
		case domain.PaymentFailed:
			if err := p.Fail(); err != nil {
				return 0, fmt.Errorf("%s: %w", op, err)
			}
		}
	}

	s.releaseClaim(ctx, scheduleID, b.Reservation().SeatIDs())
	s.invalidate(ctx, scheduleID)
	_ = s.notifier.BookingCancelled(context.WithoutCancel(ctx), br, refund)

	s.log.Info("booking cancelled", "booking_id", b.ID(), "refund_cents", refund)

	return refund, nil
}

// RefreshCatalog reloads cancellation policies and promo codes from the
// catalog source, replacing both tables wholesale.
func (s *Service) RefreshCatalog(ctx context.Context) error {
	const op = "booking.Service.RefreshCatalog"

	rules, err := s.catalog.LoadCancellationPolicies(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	codes, err := s.catalog.LoadPromotionalCodes(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.policies.Replace(rules); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.promos.Replace(codes); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("catalog refreshed", "policies", len(rules), "promos", len(codes))

	return nil
}

// EnsureSchedule loads the schedule (and provisions its seat inventory) if it
// is not resident yet.
func (s *Service) EnsureSchedule(ctx context.Context, scheduleID string) (*domain.Schedule, error) {
	const op = "booking.Service.EnsureSchedule"

	sched, err := s.ensureSchedule(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return sched, nil
}

func (s *Service) ensureSchedule(ctx context.Context, scheduleID string) (*domain.Schedule, error) {
	s.schedMu.RLock()
	sched, ok := s.schedules[scheduleID]
	s.schedMu.RUnlock()
	if ok {
		return sched, nil
	}

	loaded, err := s.source.LoadSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	s.schedMu.Lock()
	defer s.schedMu.Unlock()

	// Another caller may have won the race.
	if sched, ok = s.schedules[scheduleID]; ok {
		return sched, nil
	}

	s.schedules[scheduleID] = loaded
	if !s.inv.Loaded(scheduleID) {
		s.inv.Load(loaded)
	}

	return loaded, nil
}

// quote prices the selection: class-adjusted route base plus each seat's own
// adjustment.
func (s *Service) quote(sched *domain.Schedule, seatIDs []string) int64 {
	total := pricing.Price(sched.Route.BasePriceCents, sched.SeatClass)

	if len(sched.Seats) > 0 {
		adj := make(map[string]int64, len(sched.Seats))
		for _, seat := range sched.Seats {
			adj[seat.ID] = seat.AdjustmentCents
		}
		for _, id := range seatIDs {
			total += adj[id]
		}
	}

	return total
}

func (s *Service) lookup(id uuid.UUID) (*entry, error) {
	s.bookMu.RLock()
	defer s.bookMu.RUnlock()

	e, ok := s.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}

	return e, nil
}

// releaseClaim returns seats to the pool even when the request context is
// already gone.
func (s *Service) releaseClaim(ctx context.Context, scheduleID string, seatIDs []string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.claimTimeout)
	defer cancel()

	if err := s.inv.Release(rctx, scheduleID, seatIDs); err != nil {
		s.log.Error("seat release failed", "schedule_id", scheduleID, "error", err)
	}
}

func (s *Service) invalidate(ctx context.Context, scheduleID string) {
	if s.cache == nil {
		return
	}

	if err := s.cache.InvalidateSchedule(context.WithoutCancel(ctx), scheduleID); err != nil {
		s.log.Warn("cache invalidation failed", "schedule_id", scheduleID, "error", err)
	}
}
