package booking

import (
	"context"

	"github.com/transitfare/fare-go/internal/domain"
)

// ScheduleSource hands the engine a schedule with its route and full seat
// set before any booking operation.
type ScheduleSource interface {
	LoadSchedule(ctx context.Context, id string) (*domain.Schedule, error)
}

// Persister is the transactional sink for core state transitions. Each
// method is all-or-nothing at the granularity of one engine operation; when a
// call fails the engine reverts (or never applies) its in-memory change.
type Persister interface {
	CreateBooking(ctx context.Context, rec domain.BookingRecord) error
	UpdateBooking(ctx context.Context, rec domain.BookingRecord) error
	SavePayment(ctx context.Context, pay domain.PaymentRecord, rec domain.BookingRecord) error
	SaveCancellation(ctx context.Context, rec domain.BookingRecord, pay *domain.PaymentRecord) error
}

// CatalogSource loads cancellation policies and promo codes at start and on
// demand refresh.
type CatalogSource interface {
	LoadCancellationPolicies(ctx context.Context) ([]domain.CancellationPolicy, error)
	LoadPromotionalCodes(ctx context.Context) ([]domain.PromotionalCode, error)
}

// Notifier receives booking lifecycle events. Delivery is fire-and-forget:
// the engine ignores returned errors, implementations log them.
type Notifier interface {
	BookingConfirmed(ctx context.Context, b domain.BookingRecord) error
	PaymentConfirmed(ctx context.Context, p domain.PaymentRecord) error
	BookingCancelled(ctx context.Context, b domain.BookingRecord, refundCents int64) error
}

// Notifiers fans one event out to several sinks.
type Notifiers []Notifier

func (n Notifiers) BookingConfirmed(ctx context.Context, b domain.BookingRecord) error {
	for _, s := range n {
		_ = s.BookingConfirmed(ctx, b)
	}
	return nil
}

func (n Notifiers) PaymentConfirmed(ctx context.Context, p domain.PaymentRecord) error {
	for _, s := range n {
		_ = s.PaymentConfirmed(ctx, p)
	}
	return nil
}

func (n Notifiers) BookingCancelled(ctx context.Context, b domain.BookingRecord, refundCents int64) error {
	for _, s := range n {
		_ = s.BookingCancelled(ctx, b, refundCents)
	}
	return nil
}
