package postgresrepo

import (
	"context"

	"github.com/transitfare/fare-go/internal/domain"
)

// Delegating methods so *Store satisfies the engine's collaborator ports
// (schedule source, persistence sink, catalog source) without callers
// touching individual repos.

func (s *Store) LoadSchedule(ctx context.Context, id string) (*domain.Schedule, error) {
	return s.Schedules().LoadSchedule(ctx, id)
}

func (s *Store) CreateBooking(ctx context.Context, rec domain.BookingRecord) error {
	return s.Bookings().CreateBooking(ctx, rec)
}

func (s *Store) UpdateBooking(ctx context.Context, rec domain.BookingRecord) error {
	return s.Bookings().UpdateBooking(ctx, rec)
}

func (s *Store) SavePayment(ctx context.Context, pay domain.PaymentRecord, rec domain.BookingRecord) error {
	return s.Bookings().SavePayment(ctx, pay, rec)
}

func (s *Store) SaveCancellation(ctx context.Context, rec domain.BookingRecord, pay *domain.PaymentRecord) error {
	return s.Bookings().SaveCancellation(ctx, rec, pay)
}

func (s *Store) UpdateSeatAvailability(ctx context.Context, scheduleID string, seatIDs []string, available bool) error {
	return s.Bookings().UpdateSeatAvailability(ctx, scheduleID, seatIDs, available)
}

func (s *Store) CreateRoute(ctx context.Context, rt domain.Route) error {
	return s.Catalog().CreateRoute(ctx, rt)
}

func (s *Store) CreateSchedule(ctx context.Context, sched domain.Schedule) error {
	return s.Catalog().CreateSchedule(ctx, sched)
}

func (s *Store) AddPolicy(ctx context.Context, p domain.CancellationPolicy) error {
	return s.Catalog().AddPolicy(ctx, p)
}

func (s *Store) AddPromo(ctx context.Context, c domain.PromotionalCode) error {
	return s.Catalog().AddPromo(ctx, c)
}

func (s *Store) LoadCancellationPolicies(ctx context.Context) ([]domain.CancellationPolicy, error) {
	return s.Catalog().LoadCancellationPolicies(ctx)
}

func (s *Store) LoadPromotionalCodes(ctx context.Context) ([]domain.PromotionalCode, error) {
	return s.Catalog().LoadPromotionalCodes(ctx)
}
